// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package mcp calls tools on a remote MCP server. A call is posted as a
// JSON-RPC tools/call request, the reply is read in full, the JSON-RPC
// document is recovered from its event-stream framing, classified into a
// result or one of three error kinds, and the result is normalized into a
// value that is always safe to encode as JSON.
package mcp
