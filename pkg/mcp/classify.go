// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mcp

import (
	"bytes"
	"encoding/json"
)

const (
	msgRPCError       = "MCP error"
	msgToolErrorFlag  = "Tool returned isError:true"
	structuredContent = "structuredContent"
)

// Classify inspects a decoded JSON-RPC payload and returns the raw tool
// result, or the error the payload represents:
//
//   - no payload: *TransportError
//   - a JSON-RPC error object: *ProtocolError
//   - a result flagged isError: *ToolExecutionError
//
// The result prefers result.structuredContent.result, then result itself. A
// nil result with a nil error means the tool returned nothing.
func Classify(payload json.RawMessage) (json.RawMessage, error) {
	if !truthy(payload) {
		return nil, &TransportError{Message: msgNoData + snippet(string(payload))}
	}
	if !isObject(payload) {
		return nil, nil
	}

	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, &ProtocolError{
			Message: msgInvalidJSON + snippet(string(payload)),
			Body:    snippet(string(payload)),
			Err:     err,
		}
	}

	if truthy(resp.Error) {
		return nil, rpcError(resp.Error)
	}

	var result map[string]json.RawMessage
	if isObject(resp.Result) {
		// Result is an object, so this cannot fail.
		_ = json.Unmarshal(resp.Result, &result)
	}

	if isTrue(result["isError"]) {
		return nil, &ToolExecutionError{Message: toolErrorText(result["content"])}
	}

	if inner := nested(result[structuredContent], "result"); inner != nil {
		return inner, nil
	}
	if isNull(resp.Result) {
		return nil, nil
	}
	return resp.Result, nil
}

func rpcError(raw json.RawMessage) *ProtocolError {
	perr := &ProtocolError{Message: msgRPCError, Body: snippet(string(raw))}
	if !isObject(raw) {
		return perr
	}

	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)

	var code int
	if json.Unmarshal(fields["code"], &code) == nil {
		perr.Code = code
	}

	var msg string
	switch {
	case json.Unmarshal(fields["message"], &msg) == nil:
		if msg != "" {
			perr.Message = msg
		}
	case truthy(fields["message"]):
		perr.Message = string(fields["message"])
	}
	return perr
}

// toolErrorText returns the first text block of a content list.
func toolErrorText(content json.RawMessage) string {
	var blocks []json.RawMessage
	if json.Unmarshal(content, &blocks) != nil {
		return msgToolErrorFlag
	}
	for _, raw := range blocks {
		if !isObject(raw) {
			continue
		}
		var fields map[string]json.RawMessage
		_ = json.Unmarshal(raw, &fields)

		var typ, text string
		if json.Unmarshal(fields["type"], &typ) != nil || typ != "text" {
			continue
		}
		if json.Unmarshal(fields["text"], &text) != nil {
			continue
		}
		if text == "" {
			break
		}
		return text
	}
	return msgToolErrorFlag
}

// nested returns obj[key] when obj is an object holding a non-null key.
func nested(obj json.RawMessage, key string) json.RawMessage {
	if !isObject(obj) {
		return nil
	}
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(obj, &fields)
	if v, ok := fields[key]; ok && !isNull(v) {
		return v
	}
	return nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func isTrue(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("true"))
}

// truthy follows JSON-RPC peers written in dynamic languages, where null,
// false, 0 and "" all count as absent.
func truthy(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	switch string(bytes.TrimSpace(raw)) {
	case "false", `""`:
		return false
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil && f == 0 {
		return false
	}
	return true
}
