package mcp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Method is one of the two operations a model may request.
type Method string

const (
	MethodListTools Method = "tools/list"
	MethodCallTool  Method = "tools/call"
)

// Call is the request a model embeds in a tool-request reply:
//
//	{"method": "tools/call", "params": {"name": "search_issues", "arguments": {...}}}
type Call struct {
	Method Method     `json:"method"`
	Params CallParams `json:"params"`
}

// CallParams carries the tool name and arguments for tools/call. Both
// are ignored for tools/list.
type CallParams struct {
	Name      string         `json:"name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ParseCall decodes an untyped request object. A payload that is not
// an object, or whose method is missing or not a string, is reported
// as ErrEmptyRequest. ParseCall does not check the method value; see
// Validate.
func ParseCall(raw json.RawMessage) (Call, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Call{}, ErrEmptyRequest
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrEmptyRequest, err)
	}

	var call Call
	rawMethod, ok := fields["method"]
	if !ok {
		return Call{}, ErrEmptyRequest
	}
	if err := json.Unmarshal(rawMethod, &call.Method); err != nil {
		return Call{}, fmt.Errorf("%w: method is not a string", ErrEmptyRequest)
	}

	if rawParams, ok := fields["params"]; ok && string(rawParams) != "null" {
		if err := json.Unmarshal(rawParams, &call.Params); err != nil {
			return Call{}, fmt.Errorf("invalid params for %s: %w", call.Method, err)
		}
	}

	return call, nil
}

// Validate checks the call in order: a method must be present, a
// tools/call must name its tool, and the method must be one of the two
// supported operations.
func (c Call) Validate() error {
	if strings.TrimSpace(string(c.Method)) == "" {
		return ErrEmptyRequest
	}
	switch c.Method {
	case MethodCallTool:
		if strings.TrimSpace(c.Params.Name) == "" {
			return ErrMissingToolName
		}
		return nil
	case MethodListTools:
		return nil
	default:
		return &UnsupportedMethodError{Method: string(c.Method)}
	}
}

// ContentBlock is a single content item in a tool result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Result is the envelope returned for every dispatched call. On
// success Content is present (possibly empty); on failure only Error
// is meaningful.
type Result struct {
	IsError bool           `json:"isError"`
	Content []ContentBlock `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// MarshalJSON emits exactly one payload: content for success (as [] when
// empty) or error for failure.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.IsError {
		return json.Marshal(struct {
			IsError bool   `json:"isError"`
			Error   string `json:"error"`
		}{true, r.Error})
	}
	content := r.Content
	if content == nil {
		content = []ContentBlock{}
	}
	return json.Marshal(struct {
		IsError bool           `json:"isError"`
		Content []ContentBlock `json:"content"`
	}{false, content})
}

// Text joins the result's text content, or returns the error message
// for failed results.
func (r Result) Text() string {
	if r.IsError {
		return r.Error
	}
	return extractText(r.Content)
}

// TextResult wraps text in a single-item success envelope.
func TextResult(text string) Result {
	return Result{Content: []ContentBlock{{Type: "text", Text: text}}}
}

// ErrorResult converts err into a failure envelope.
func ErrorResult(err error) Result {
	return Result{IsError: true, Error: err.Error()}
}

// extractText joins all text content blocks into a single string.
// Non-text blocks are represented as inline markers.
func extractText(blocks []ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			parts = append(parts, b.Text)
		case "image":
			parts = append(parts, "[image]")
		case "resource":
			parts = append(parts, "[resource]")
		default:
			parts = append(parts, fmt.Sprintf("[%s]", b.Type))
		}
	}
	return strings.Join(parts, "\n")
}
