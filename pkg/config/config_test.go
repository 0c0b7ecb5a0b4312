// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envMCPURL, envAPIToken, envPort, envListenAddr, envAPIKey, envAPISecret,
		envSessionHeader, envSessionValue, envRequestTimeout, envInsecureSkipVerify,
		envLogLevel, envCORSOrigins, envMaxBodyBytes, envMetricsEnabled,
		envServerReadTimeout, envServerWriteTimeout, envServerIdleTimeout, envGracefulShutdown,
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMCPURL, "https://mcp.example.com/mcp")
	t.Setenv(envAPIToken, " secret ")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ListenAddr)
	require.Equal(t, "https://mcp.example.com/mcp", cfg.Upstream.String())
	require.Equal(t, "secret", cfg.APIToken)
	require.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.MetricsEnabled)
	require.False(t, cfg.SignRequests())
	require.Empty(t, cfg.CORSOrigins)
	require.NoError(t, cfg.RequireAPIToken())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMCPURL, "http://localhost:9000/mcp")
	t.Setenv(envPort, "3000")
	t.Setenv(envRequestTimeout, "5s")
	t.Setenv(envLogLevel, "DEBUG")
	t.Setenv(envCORSOrigins, "https://a.example, ,https://b.example")
	t.Setenv(envMaxBodyBytes, "2048")
	t.Setenv(envMetricsEnabled, "false")
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":3000", cfg.ListenAddr)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	require.Equal(t, int64(2048), cfg.MaxBodyBytes)
	require.False(t, cfg.MetricsEnabled)
	require.True(t, cfg.SignRequests())

	t.Setenv(envListenAddr, "127.0.0.1:7000")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:7000", cfg.ListenAddr)
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMCPURL, "https://mcp.example.com")
	t.Setenv(envRequestTimeout, "soon")
	t.Setenv(envMaxBodyBytes, "-1")
	t.Setenv(envMetricsEnabled, "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, defaultRequestTimeout, cfg.RequestTimeout)
	require.Equal(t, int64(defaultMaxBodyBytes), cfg.MaxBodyBytes)
	require.True(t, cfg.MetricsEnabled)
}

func TestLoadValidatesUpstream(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.EqualError(t, err, "MCP_URL is required")

	t.Setenv(envMCPURL, "/relative/path")
	_, err = Load()
	require.EqualError(t, err, "MCP_URL must be absolute (scheme://host)")
}

func TestRequireAPIToken(t *testing.T) {
	clearEnv(t)
	t.Setenv(envMCPURL, "https://mcp.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.EqualError(t, cfg.RequireAPIToken(), "API_TOKEN is required")
}
