// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envMCPURL                 = "MCP_URL"
	envAPIToken               = "API_TOKEN"
	envPort                   = "PORT"
	envListenAddr             = "MCP_LISTEN_ADDR"
	envAPIKey                 = "MCP_API_KEY"
	envAPISecret              = "MCP_API_SECRET"
	envSessionHeader          = "MCP_SESSION_HEADER"
	envSessionValue           = "MCP_SESSION_VALUE"
	envRequestTimeout         = "MCP_REQUEST_TIMEOUT"
	envInsecureSkipVerify     = "MCP_UPSTREAM_INSECURE"
	envLogLevel               = "MCP_LOG_LEVEL"
	envCORSOrigins            = "MCP_CORS_ORIGINS"
	envMaxBodyBytes           = "MCP_MAX_BODY_BYTES"
	envMetricsEnabled         = "MCP_METRICS_ENABLED"
	envServerReadTimeout      = "MCP_SERVER_READ_TIMEOUT"
	envServerWriteTimeout     = "MCP_SERVER_WRITE_TIMEOUT"
	envServerIdleTimeout      = "MCP_SERVER_IDLE_TIMEOUT"
	envGracefulShutdown       = "MCP_GRACEFUL_SHUTDOWN"
	defaultPort               = "8080"
	defaultRequestTimeout     = 60 * time.Second
	defaultSessionHeader      = "x-session-id"
	defaultLogLevel           = "info"
	defaultMaxBodyBytes       = 1 << 20
	defaultServerReadTimeout  = 30 * time.Second
	defaultServerWriteTimeout = 90 * time.Second
	defaultServerIdleTimeout  = 120 * time.Second
	defaultGracefulShutdown   = 10 * time.Second
)

// Config captures runtime settings for the wrapper.
type Config struct {
	ListenAddr              string
	Upstream                *url.URL
	APIToken                string
	APIKey                  string
	APISecret               string
	SessionHeader           string
	SessionValue            string
	RequestTimeout          time.Duration
	InsecureSkipVerify      bool
	LogLevel                string
	CORSOrigins             []string
	MaxBodyBytes            int64
	MetricsEnabled          bool
	ServerReadTimeout       time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	GracefulShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and validates the
// upstream endpoint. API_TOKEN is read but only enforced by RequireAPIToken,
// since one-shot tool calls from the command line never authenticate callers.
func Load() (Config, error) {
	upstreamRaw := strings.TrimSpace(os.Getenv(envMCPURL))
	if upstreamRaw == "" {
		return Config{}, errors.New("MCP_URL is required")
	}

	upstream, err := url.Parse(upstreamRaw)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MCP_URL: %w", err)
	}
	if !upstream.IsAbs() || upstream.Host == "" {
		return Config{}, errors.New("MCP_URL must be absolute (scheme://host)")
	}

	listenAddr := getString(envListenAddr, "")
	if listenAddr == "" {
		listenAddr = ":" + getString(envPort, defaultPort)
	}

	cfg := Config{
		ListenAddr:              listenAddr,
		Upstream:                upstream,
		APIToken:                strings.TrimSpace(os.Getenv(envAPIToken)),
		APIKey:                  strings.TrimSpace(os.Getenv(envAPIKey)),
		APISecret:               strings.TrimSpace(os.Getenv(envAPISecret)),
		SessionHeader:           getString(envSessionHeader, defaultSessionHeader),
		SessionValue:            strings.TrimSpace(os.Getenv(envSessionValue)),
		RequestTimeout:          getDuration(envRequestTimeout, defaultRequestTimeout),
		InsecureSkipVerify:      getBool(envInsecureSkipVerify, false),
		LogLevel:                strings.ToLower(getString(envLogLevel, defaultLogLevel)),
		CORSOrigins:             getList(envCORSOrigins),
		MaxBodyBytes:            getInt64(envMaxBodyBytes, defaultMaxBodyBytes),
		MetricsEnabled:          getBool(envMetricsEnabled, true),
		ServerReadTimeout:       getDuration(envServerReadTimeout, defaultServerReadTimeout),
		ServerWriteTimeout:      getDuration(envServerWriteTimeout, defaultServerWriteTimeout),
		ServerIdleTimeout:       getDuration(envServerIdleTimeout, defaultServerIdleTimeout),
		GracefulShutdownTimeout: getDuration(envGracefulShutdown, defaultGracefulShutdown),
	}

	return cfg, nil
}

// RequireAPIToken reports an error when no caller credential is configured.
func (c Config) RequireAPIToken() error {
	if c.APIToken == "" {
		return errors.New("API_TOKEN is required")
	}
	return nil
}

// SignRequests reports whether outbound calls carry HMAC auth headers.
func (c Config) SignRequests() bool {
	return c.APIKey != "" && c.APISecret != ""
}

func getString(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func getInt64(key string, fallback int64) int64 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(val, 10, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

// getList splits a comma separated variable, dropping blank entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
