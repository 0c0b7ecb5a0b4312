// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mcp

import (
	"errors"

	"github.com/go-core-stack/mcp-actions-wrapper/pkg/metrics"
)

// maxSnippet caps how much raw upstream text is attached to errors.
const maxSnippet = 500

// TransportError means no usable payload came back: the call failed, the
// body was unreadable or the stream held no data.
type TransportError struct {
	Message string
	Status  int    // Status is the upstream HTTP status, zero when no response arrived.
	Body    string // Body holds the leading part of the raw response.
	Err     error
}

func (e *TransportError) Error() string { return e.Message }

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the JSON-RPC envelope was malformed or carried an
// error object.
type ProtocolError struct {
	Message string
	Code    int
	Body    string
	Err     error
}

func (e *ProtocolError) Error() string { return e.Message }

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolExecutionError means the tool ran and flagged its own result as an
// error.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string { return e.Message }

// Outcome maps an invocation error onto its metrics label.
func Outcome(err error) string {
	var (
		protoErr *ProtocolError
		toolErr  *ToolExecutionError
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &toolErr):
		return metrics.OutcomeToolError
	case errors.As(err, &protoErr):
		return metrics.OutcomeProtocolError
	default:
		return metrics.OutcomeTransportError
	}
}

func snippet(text string) string {
	n := 0
	for i := range text {
		if n == maxSnippet {
			return text[:i]
		}
		n++
	}
	return text
}
