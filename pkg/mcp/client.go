// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-core-stack/mcp-actions-wrapper/pkg/auth"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/config"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/metrics"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/normalize"
)

const acceptHeader = "application/json, text/event-stream"

// Client invokes tools on a remote MCP endpoint over JSON-RPC and returns
// their results as JSON-safe values.
type Client struct {
	// endpoint is the upstream URL every call is posted to.
	endpoint *url.URL
	// client performs outbound HTTP requests with tuned transport settings.
	client *http.Client
	// signer adds HMAC headers when a key pair is configured; nil otherwise.
	signer        *auth.Signer
	sessionHeader string
	sessionValue  string
	logger        zerolog.Logger
	normalizer    *normalize.Normalizer
	metrics       *metrics.Metrics
	newID         func() string
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMetrics records every invocation on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger replaces the component logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.normalizer = normalize.New(logger)
	}
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// New constructs a Client for the upstream configured in cfg.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("upstream URL is required")
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, // nolint:gosec -- opt-in for development scenarios
		},
	}

	logger := log.With().Str("component", "mcp").Logger()
	endpoint := *cfg.Upstream

	c := &Client{
		endpoint: &endpoint,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		signer:        auth.NewSigner(cfg.APIKey, cfg.APISecret),
		sessionHeader: cfg.SessionHeader,
		sessionValue:  cfg.SessionValue,
		logger:        logger,
		normalizer:    normalize.New(logger),
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke calls tool with args and returns its normalized result. Failures
// are reported as *TransportError, *ProtocolError or *ToolExecutionError.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (any, error) {
	start := time.Now()
	event := c.logger.With().Str("tool", tool).Logger()

	result, err := c.invoke(ctx, tool, args, event)
	outcome := Outcome(err)
	c.metrics.ObserveInvocation(tool, outcome, time.Since(start))

	if err != nil {
		event.Error().
			Err(err).
			Str("outcome", outcome).
			Dur("duration", time.Since(start)).
			Msg("tool invocation failed")
		return nil, err
	}

	event.Info().
		Dur("duration", time.Since(start)).
		Msg("tool invoked")
	return result, nil
}

func (c *Client) invoke(ctx context.Context, tool string, args map[string]any, event zerolog.Logger) (any, error) {
	rpcReq := NewRequest(c.newID(), tool, args)
	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("encode tool request: %v", err), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("build upstream request: %v", err), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)
	if c.sessionValue != "" {
		req.Header.Set(c.sessionHeader, c.sessionValue)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set(middleware.RequestIDHeader, reqID)
	}
	if err := c.signer.Sign(req); err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("sign request: %v", err), Err: err}
	}

	event.Debug().Str("request_id", rpcReq.ID).Msg("calling upstream tool")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("perform upstream request: %v", err), Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			event.Error().Err(closeErr).Msg("close upstream response body failed")
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{
			Message: fmt.Sprintf("read upstream response: %v", err),
			Status:  resp.StatusCode,
			Err:     err,
		}
	}
	if !utf8.Valid(data) {
		return nil, &TransportError{
			Message: "Unexpected MCP response (body is not valid UTF-8)",
			Status:  resp.StatusCode,
		}
	}
	text := string(data)

	if resp.StatusCode >= http.StatusBadRequest {
		event.Warn().
			Int("status", resp.StatusCode).
			Str("upstream_body", snippet(text)).
			Msg("upstream returned error status")
	}

	payload, err := envelope(resp.Header.Get("Content-Type"), text)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, &TransportError{
			Message: msgNoData + snippet(text),
			Status:  resp.StatusCode,
			Body:    snippet(text),
		}
	}

	raw, err := Classify(payload)
	if err != nil {
		var toolErr *ToolExecutionError
		if errors.As(err, &toolErr) {
			toolErr.Tool = tool
		}
		var transportErr *TransportError
		if errors.As(err, &transportErr) {
			transportErr.Status = resp.StatusCode
		}
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return c.normalizer.Normalize(raw), nil
}

// envelope extracts the JSON-RPC document from a response body. Plain JSON
// bodies are taken whole; everything else is parsed as an event stream.
func envelope(contentType, text string) (json.RawMessage, error) {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
		return parseDocument(text)
	}
	return ParseEnvelope(text)
}
