// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mcp

import (
	"encoding/json"
	"strings"
)

const (
	dataPrefix = "data: "

	msgInvalidJSON = "Unexpected MCP response (invalid JSON): "
	msgNoData      = "Unexpected MCP response (no SSE data): "
)

// ParseEnvelope returns the JSON carried by the last "data: " line of an
// event stream. A stream without data, or whose last data line is blank,
// yields nil and no error. Malformed JSON yields a *ProtocolError.
//
// Earlier data lines are treated as intermediate frames and ignored.
func ParseEnvelope(raw string) (json.RawMessage, error) {
	last, found := "", false
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, dataPrefix) {
			last, found = line, true
		}
	}
	if !found {
		return nil, nil
	}

	payload := strings.TrimSpace(strings.TrimPrefix(last, dataPrefix))
	if payload == "" {
		return nil, nil
	}
	return validJSON(payload, raw)
}

// parseDocument accepts a body that is a plain JSON document rather than an
// event stream.
func parseDocument(raw string) (json.RawMessage, error) {
	payload := strings.TrimSpace(raw)
	if payload == "" {
		return nil, nil
	}
	return validJSON(payload, raw)
}

func validJSON(payload, raw string) (json.RawMessage, error) {
	var probe json.RawMessage
	if err := json.Unmarshal([]byte(payload), &probe); err != nil {
		body := snippet(raw)
		return nil, &ProtocolError{
			Message: msgInvalidJSON + body,
			Body:    body,
			Err:     err,
		}
	}
	return json.RawMessage(payload), nil
}
