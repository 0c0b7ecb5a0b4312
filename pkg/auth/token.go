// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderXAPIKey       = "X-Api-Key"
	HeaderAPIKeyPlain   = "Api-Key"
)

// Authorized reports whether the request headers present token through any of
// the accepted forms: "Authorization: Bearer <token>", a raw Authorization
// value, X-Api-Key or Api-Key.
func Authorized(h http.Header, token string) bool {
	if token == "" {
		return false
	}

	authz := strings.TrimSpace(h.Get(HeaderAuthorization))
	candidates := []string{
		authz,
		strings.TrimSpace(h.Get(HeaderXAPIKey)),
		strings.TrimSpace(h.Get(HeaderAPIKeyPlain)),
	}
	if rest, ok := strings.CutPrefix(authz, "Bearer "); ok {
		candidates = append(candidates, rest)
	}

	matched := false
	for _, c := range candidates {
		if c != "" && subtle.ConstantTimeCompare([]byte(c), []byte(token)) == 1 {
			matched = true
		}
	}
	return matched
}

// RequireToken rejects requests that do not carry token with 403 Forbidden.
func RequireToken(token string, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Authorized(r.Header, token) {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("rejected unauthenticated request")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "Forbidden"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
