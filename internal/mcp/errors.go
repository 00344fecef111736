package mcp

import (
	"errors"
	"fmt"
)

// Request validation failures. They surface to the model as
// Result{IsError: true} and never reach the session.
var (
	// ErrEmptyRequest means the request carried no recognizable method.
	ErrEmptyRequest = errors.New("request has no method")

	// ErrMissingToolName means a tools/call request had no tool name.
	ErrMissingToolName = errors.New("tools/call requires params.name")
)

// ErrSessionClosed is returned when an operation targets a session
// that has been shut down, or a connect that was overtaken by Release.
var ErrSessionClosed = errors.New("mcp session closed")

// ErrChannelLost is returned by a transport whose connection was torn
// down after a timeout or I/O failure. A lost transport never reopens;
// the server must be dialed and initialized again.
var ErrChannelLost = errors.New("mcp channel lost")

// UnsupportedMethodError rejects any method other than tools/list and
// tools/call.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method: %s", e.Method)
}

// ConnectionError reports a failure to open the channel or complete the
// handshake, or a transport failure mid-request.
type ConnectionError struct {
	Server string
	Op     string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mcp %s: %s: %v", e.Server, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError reports a reply that does not have the expected shape,
// or a JSON-RPC error returned for a protocol operation.
type ProtocolError struct {
	Method string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Method, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// ToolExecutionError reports that the remote tool ran and failed, or
// that the server refused the call.
type ToolExecutionError struct {
	Tool    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}
