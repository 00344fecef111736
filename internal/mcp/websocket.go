package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jaya/github-mcp-openai-assistant/internal/buildinfo"
)

// WebSocketConfig configures a WebSocket MCP transport. Each JSON-RPC
// message travels as one text frame.
type WebSocketConfig struct {
	// URL is the ws:// or wss:// endpoint. http and https schemes are
	// rewritten to their WebSocket equivalents.
	URL string

	// Headers are sent with the upgrade request.
	Headers map[string]string

	// BearerToken, when set, is sent as an Authorization header on the
	// upgrade request.
	BearerToken string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// WebSocketTransport talks to an MCP server over a single WebSocket
// connection. The connection is dialed on first use. After a read or
// write failure the transport is lost and every later call returns
// ErrChannelLost.
type WebSocketTransport struct {
	config WebSocketConfig
	logger *slog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	lost   bool
}

// NewWebSocketTransport creates a WebSocket transport. No connection is
// made until the first Send or Notify.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketTransport{config: cfg, logger: logger}
}

// dial opens the connection if needed. Caller must hold t.mu.
func (t *WebSocketTransport) dial(ctx context.Context) error {
	if t.closed {
		return ErrSessionClosed
	}
	if t.lost {
		return ErrChannelLost
	}
	if t.conn != nil {
		return nil
	}

	u, err := url.Parse(t.config.URL)
	if err != nil {
		return fmt.Errorf("parse websocket url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	header := http.Header{}
	header.Set("User-Agent", buildinfo.UserAgent())
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}
	if t.config.BearerToken != "" {
		header.Set("Authorization", "Bearer "+t.config.BearerToken)
	}

	t.logger.Info("connecting to MCP WebSocket", "url", u.Redacted())

	dialer := websocket.Dialer{
		Proxy:           http.ProxyFromEnvironment,
		ReadBufferSize:  1024 * 1024,
		WriteBufferSize: 64 * 1024,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return fmt.Errorf("dial websocket: %w", err)
	}
	conn.SetReadLimit(maxResponseBytes)

	t.conn = conn
	return nil
}

// wsRead is the outcome of a single frame read.
type wsRead struct {
	data []byte
	err  error
}

// Send writes a request frame and reads frames until the matching
// response arrives, answering server requests along the way.
func (t *WebSocketTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return nil, err
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := t.write(data); err != nil {
		return nil, err
	}

	conn := t.conn
	for {
		ch := make(chan wsRead, 1)
		go func() {
			_, msg, readErr := conn.ReadMessage()
			ch <- wsRead{data: msg, err: readErr}
		}()

		select {
		case <-ctx.Done():
			t.reset()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.reset()
				return nil, fmt.Errorf("read websocket: %w", res.err)
			}

			resp, reply, err := classifyFrame(res.data, req.ID)
			if err != nil {
				t.logger.Debug("skipping undecodable MCP frame", "error", err)
				continue
			}
			if reply != nil {
				if err := t.write(reply); err != nil {
					return nil, err
				}
				continue
			}
			if resp != nil {
				return resp, nil
			}
		}
	}
}

// Notify writes a notification frame.
func (t *WebSocketTransport) Notify(ctx context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.dial(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return t.write(data)
}

// Close sends a close frame and drops the connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	if t.conn == nil {
		return nil
	}
	_ = t.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := t.conn.Close()
	t.conn = nil
	return err
}

// write sends one text frame. Caller must hold t.mu.
func (t *WebSocketTransport) write(data []byte) error {
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.reset()
		return fmt.Errorf("write websocket: %w", err)
	}
	return nil
}

// reset drops a broken connection and marks the transport lost.
// Caller must hold t.mu.
func (t *WebSocketTransport) reset() {
	t.lost = true
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}
