// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package mcp

import "encoding/json"

const (
	jsonRPCVersion = "2.0"

	// MethodToolsCall is the JSON-RPC method for invoking a tool.
	MethodToolsCall = "tools/call"
)

// Request is the JSON-RPC envelope of a single tool invocation.
type Request struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      string     `json:"id"`
	Method  string     `json:"method"`
	Params  CallParams `json:"params"`
}

// CallParams names the tool and carries its arguments.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewRequest builds a tools/call request. Nil arguments are sent as an empty
// object.
func NewRequest(id, tool string, args map[string]any) Request {
	if args == nil {
		args = map[string]any{}
	}
	return Request{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Method:  MethodToolsCall,
		Params: CallParams{
			Name:      tool,
			Arguments: args,
		},
	}
}

// Response is a JSON-RPC response with result and error kept raw until
// classification.
type Response struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}
