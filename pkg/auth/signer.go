// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderAPIKey    = "x-api-key-id"
	HeaderSignature = "x-signature"
	HeaderTimestamp = "x-timestamp"
)

// ErrSignerNotConfigured is returned when signing is attempted without a key pair.
var ErrSignerNotConfigured = errors.New("signer key and secret must be set")

// Signer adds HMAC headers to tool calls sent to gateways that front the
// upstream MCP server.
type Signer struct {
	Key    string
	Secret string
	Now    func() time.Time
}

// NewSigner returns a signer for the key pair. A nil signer is valid and
// leaves requests untouched.
func NewSigner(key, secret string) *Signer {
	if key == "" || secret == "" {
		return nil
	}
	return &Signer{
		Key:    key,
		Secret: secret,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Sign sets the key id, timestamp and signature headers on req. The
// signature covers method, path and timestamp joined by newlines.
func (s *Signer) Sign(req *http.Request) error {
	if s == nil {
		return nil
	}
	if s.Key == "" || s.Secret == "" {
		return ErrSignerNotConfigured
	}

	timestamp := s.Now().UTC().Format(time.RFC3339)
	req.Header.Set(HeaderAPIKey, s.Key)
	req.Header.Set(HeaderTimestamp, timestamp)
	req.Header.Set(HeaderSignature, Signature(s.Secret, req.Method, req.URL.Path, timestamp))
	return nil
}

// Signature computes the hex encoded HMAC-SHA256 for a request line.
func Signature(secret, method, path, timestamp string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join([]string{method, path, timestamp}, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
