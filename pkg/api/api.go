// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package api exposes the REST routes that front the upstream MCP tools.
// Handlers validate the inbound body, hand the call to an Invoker and
// render its normalized result or failure as JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/go-core-stack/mcp-actions-wrapper/pkg/auth"
	"github.com/go-core-stack/mcp-actions-wrapper/pkg/metrics"
)

const defaultMaxBodyBytes = 1 << 20

// Invoker calls a named tool and returns its JSON-safe result.
type Invoker interface {
	Invoke(ctx context.Context, tool string, args map[string]any) (any, error)
}

// Opts configures the router.
type Opts struct {
	// Invoker performs the upstream tool calls.
	Invoker Invoker
	// APIToken is the secret callers must present on /api routes.
	APIToken string
	// Metrics, when set, is served on /metrics and counts requests.
	Metrics *metrics.Metrics
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string
	// MaxBodyBytes caps inbound JSON bodies.
	MaxBodyBytes int64
	Logger       zerolog.Logger
}

// API holds the route handlers.
type API struct {
	opts   Opts
	logger zerolog.Logger
}

// New builds the router.
func New(o Opts) http.Handler {
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	a := &API{
		opts:   o,
		logger: o.Logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.logRequests)
	r.Use(middleware.Recoverer)
	if len(o.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: o.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", auth.HeaderXAPIKey, auth.HeaderAPIKeyPlain},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", a.healthz)
	if o.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", o.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(o.APIToken, a.logger))
		r.Post("/api/list-accessible-customers", a.listAccessibleCustomers)
		r.Post("/api/search", a.search)
		r.Post("/api/tools/{tool}", a.callTool)
	})

	return r
}

func (a *API) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok")
}

// logRequests emits one structured line per request and feeds the request
// counter, keyed by the matched route pattern.
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m := httpsnoop.CaptureMetrics(next, w, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		a.opts.Metrics.ObserveRequest(route, m.Code)

		event := a.logger.Info()
		if m.Code >= http.StatusInternalServerError {
			event = a.logger.Error()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Str("remote_addr", r.RemoteAddr).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", m.Code).
			Int64("bytes", m.Written).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// fail reports an invocation failure. Every failure kind maps to 500 with
// the error message as payload.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	a.logger.Debug().
		Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("invocation failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errBodyTooLarge and errInvalidBody classify body decoding failures.
var (
	errBodyTooLarge = errors.New("request body too large")
	errInvalidBody  = errors.New("invalid JSON body")
)
