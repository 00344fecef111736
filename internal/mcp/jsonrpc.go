package mcp

import (
	"encoding/json"
	"fmt"
)

// jsonrpcVersion is the JSON-RPC protocol version used by MCP.
const jsonrpcVersion = "2.0"

// Standard JSON-RPC error codes used when answering server requests.
const (
	codeMethodNotFound = -32601
)

// Request is a JSON-RPC 2.0 request message.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewRequest creates a JSON-RPC 2.0 request with the given method and params.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{
		JSONRPC: jsonrpcVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// Response is a JSON-RPC 2.0 response message. Exactly one of Result
// or Error is set in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Notification is a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// NewNotification creates a JSON-RPC 2.0 notification.
func NewNotification(method string, params any) *Notification {
	return &Notification{
		JSONRPC: jsonrpcVersion,
		Method:  method,
		Params:  params,
	}
}

// frameHeader is the part of an inbound frame needed to tell responses
// from server-initiated requests and notifications. The ID stays raw
// because servers may use string IDs for their own requests.
type frameHeader struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
}

// serverReply answers a server-initiated request.
type serverReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// classifyFrame decodes one inbound frame while waiting for the
// response to request id. It returns:
//   - resp when the frame is the awaited response;
//   - reply when the frame is a server request that must be answered
//     (ping gets an empty result, everything else method-not-found);
//   - neither when the frame should be skipped (notifications, other
//     IDs, non-JSON noise). err is set only for undecodable frames.
func classifyFrame(frame []byte, id int64) (resp *Response, reply []byte, err error) {
	var hdr frameHeader
	if err := json.Unmarshal(frame, &hdr); err != nil {
		return nil, nil, err
	}

	if hdr.Method != "" {
		if len(hdr.ID) == 0 {
			return nil, nil, nil // notification
		}
		out := serverReply{JSONRPC: jsonrpcVersion, ID: hdr.ID}
		if hdr.Method == "ping" {
			out.Result = struct{}{}
		} else {
			out.Error = &RPCError{Code: codeMethodNotFound, Message: "method not supported by client: " + hdr.Method}
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, nil, err
		}
		return nil, data, nil
	}

	var r Response
	if err := json.Unmarshal(frame, &r); err != nil {
		return nil, nil, err
	}
	if r.ID != id {
		return nil, nil, nil
	}
	return &r, nil, nil
}
