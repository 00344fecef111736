package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/jaya/github-mcp-openai-assistant/internal/httpkit"
)

const (
	// sessionHeader carries the server-assigned session ID.
	sessionHeader = "Mcp-Session-Id"

	// maxResponseBytes caps a single JSON response body.
	maxResponseBytes = 10 << 20
)

// errNoResponse is returned when an SSE stream ends before the
// awaited response arrives.
var errNoResponse = errors.New("event stream ended without a response")

// HTTPConfig configures an HTTP MCP transport that communicates with a
// remote MCP server over streamable HTTP (JSON-RPC over POST).
type HTTPConfig struct {
	// URL is the MCP server endpoint.
	URL string

	// Headers are additional HTTP headers sent with every request.
	Headers map[string]string

	// BearerToken, when set, is sent as an Authorization header.
	BearerToken string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport communicates with an MCP server over streamable HTTP.
// Each JSON-RPC request is an HTTP POST; the reply is either a JSON
// body or a text/event-stream carrying the response as an event.
type HTTPTransport struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	mu        sync.RWMutex
	sessionID string
	closed    bool
}

// NewHTTPTransport creates an HTTP transport for the given config.
// The underlying HTTP client is constructed via httpkit.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := []httpkit.ClientOption{
		httpkit.WithLogger(logger),
		httpkit.WithBearerToken(cfg.BearerToken),
	}
	for k, v := range cfg.Headers {
		opts = append(opts, httpkit.WithHeader(k, v))
	}

	return &HTTPTransport{
		url:        cfg.URL,
		httpClient: httpkit.NewClient(opts...),
		logger:     logger,
	}
}

// Send POSTs a JSON-RPC request and returns the matching response.
func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := t.post(ctx, body, true)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return nil, fmt.Errorf("MCP server returned %d: %s", httpResp.StatusCode, errBody)
	}

	mediaType, _, _ := mime.ParseMediaType(httpResp.Header.Get("Content-Type"))
	if mediaType == "text/event-stream" {
		return t.readEventStream(ctx, httpResp.Body, req.ID)
	}

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("response id %d does not match request id %d", resp.ID, req.ID)
	}
	return &resp, nil
}

// Notify POSTs a JSON-RPC notification. The server may answer 200 or
// 202; no body is expected.
func (t *HTTPTransport) Notify(ctx context.Context, notif *Notification) error {
	body, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return t.postNoReply(ctx, body)
}

// Close ends the server-side session when one was assigned. Later
// calls fail with ErrSessionClosed. The HTTP client's connection pool
// is left to httpkit.
func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	sid := t.sessionID
	t.sessionID = ""
	t.closed = true
	t.mu.Unlock()
	if sid == "" {
		return nil
	}

	req, err := http.NewRequest(http.MethodDelete, t.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set(sessionHeader, sid)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Debug("MCP session delete failed", "error", err)
		return nil
	}
	httpkit.DrainAndClose(resp.Body, 1<<20)
	return nil
}

// post sends body and records any session ID the server assigns.
func (t *HTTPTransport) post(ctx context.Context, body []byte, expectReply bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if expectReply {
		httpReq.Header.Set("Accept", "application/json, text/event-stream")
	}

	t.mu.RLock()
	closed, sid := t.closed, t.sessionID
	t.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}
	if sid != "" {
		httpReq.Header.Set(sessionHeader, sid)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", t.url, err)
	}

	if sid := httpResp.Header.Get(sessionHeader); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}
	return httpResp, nil
}

// postNoReply sends a notification or a reply to a server request.
func (t *HTTPTransport) postNoReply(ctx context.Context, body []byte) error {
	httpResp, err := t.post(ctx, body, false)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(httpResp.Body, 1<<20)

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusAccepted {
		errBody := httpkit.ReadErrorBody(httpResp.Body, 1<<20)
		return fmt.Errorf("MCP server returned %d for notification: %s", httpResp.StatusCode, errBody)
	}
	return nil
}

// readEventStream reads SSE events until the response to id arrives.
// Each event's data lines are joined and classified like a stdio frame.
func (t *HTTPTransport) readEventStream(ctx context.Context, r io.Reader, id int64) (*Response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBytes)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		if line != "" {
			if rest, ok := strings.CutPrefix(line, "data:"); ok {
				data = append(data, strings.TrimPrefix(rest, " "))
			}
			continue
		}
		if len(data) == 0 {
			continue
		}

		frame := []byte(strings.Join(data, "\n"))
		data = data[:0]

		resp, reply, err := classifyFrame(frame, id)
		if err != nil {
			t.logger.Debug("skipping undecodable MCP event", "error", err)
			continue
		}
		if reply != nil {
			if err := t.postNoReply(ctx, reply); err != nil {
				return nil, err
			}
			continue
		}
		if resp != nil {
			return resp, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}

	// A final event without a trailing blank line.
	if len(data) > 0 {
		if resp, _, err := classifyFrame([]byte(strings.Join(data, "\n")), id); err == nil && resp != nil {
			return resp, nil
		}
	}
	return nil, errNoResponse
}
