// Package mcp is the assistant's client for a single MCP (Model Context
// Protocol) tool server.
//
// MCP speaks JSON-RPC 2.0. Three transports are supported: stdio
// (newline-delimited frames to a subprocess), streamable HTTP, and
// WebSocket. On top of a Transport:
//
//   - [Client] is one protocol session: the initialize handshake,
//     tools/list (cached as the tool catalog) and tools/call.
//   - [Manager] owns at most one Client, connecting lazily on the first
//     Acquire and tearing it down on Release.
//   - [Dispatcher] validates the loosely typed [Call] a model emits and
//     routes it to the session, always answering with a [Result] value.
//
// Tool failures of every kind travel as Result{IsError: true} so the
// agent loop can hand them back to the model as data.
package mcp
