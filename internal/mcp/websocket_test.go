package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

func newWebSocketServer(t *testing.T, gotAuth chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case gotAuth <- r.Header.Get("Authorization"):
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg struct {
				ID     *int64 `json:"id"`
				Method string `json:"method"`
			}
			if json.Unmarshal(data, &msg) != nil || msg.ID == nil {
				continue
			}

			var result string
			switch msg.Method {
			case "initialize":
				// Ask the client something first; it must answer and keep waiting.
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":"srv-1","method":"ping"}`))
				_, reply, err := conn.ReadMessage()
				if err != nil || !strings.Contains(string(reply), `"id":"srv-1"`) {
					return
				}
				result = `{"protocolVersion":"2024-11-05","serverInfo":{"name":"ws","version":"1"}}`
			case "tools/call":
				result = `{"content":[{"type":"text","text":"called"}]}`
			case "drop":
				return
			default:
				result = `{}`
			}
			_ = conn.WriteMessage(websocket.TextMessage,
				[]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, *msg.ID, result)))
		}
	}))
}

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	gotAuth := make(chan string, 1)
	srv := newWebSocketServer(t, gotAuth)
	defer srv.Close()

	tr := NewWebSocketTransport(WebSocketConfig{URL: srv.URL, BearerToken: "ghp_ws"})
	client := NewClient("ws", tr, nil)
	defer client.Shutdown()

	result := client.CallTool(context.Background(), "get_me", nil)
	if result.IsError {
		t.Fatalf("CallTool: %s", result.Error)
	}
	if result.Text() != "called" {
		t.Errorf("text = %q, want called", result.Text())
	}
	if client.ServerInfo().Name != "ws" {
		t.Errorf("server name = %q, want ws", client.ServerInfo().Name)
	}
	if auth := <-gotAuth; auth != "Bearer ghp_ws" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestWebSocketTransport_NoRedialAfterFailure(t *testing.T) {
	srv := newWebSocketServer(t, make(chan string, 1))
	defer srv.Close()

	tr := NewWebSocketTransport(WebSocketConfig{URL: srv.URL})
	client := NewClient("ws", tr, nil)
	defer client.Shutdown()

	if err := client.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := tr.Send(context.Background(), NewRequest(50, "drop", nil)); err == nil {
		t.Fatal("expected read error after the server dropped the connection")
	}
	if _, err := tr.Send(context.Background(), NewRequest(51, "tools/call", nil)); !errors.Is(err, ErrChannelLost) {
		t.Fatalf("Send after drop = %v, want ErrChannelLost", err)
	}
}

func TestWebSocketTransport_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	tr := NewWebSocketTransport(WebSocketConfig{URL: srv.URL})
	if _, err := tr.Send(context.Background(), NewRequest(1, "initialize", nil)); err == nil {
		t.Fatal("expected dial error against a non-websocket endpoint")
	}
}

func TestWebSocketTransport_SendAfterClose(t *testing.T) {
	tr := NewWebSocketTransport(WebSocketConfig{URL: "ws://127.0.0.1:1"})
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tr.Notify(context.Background(), NewNotification("x", nil)); err != ErrSessionClosed {
		t.Fatalf("Notify after Close = %v, want ErrSessionClosed", err)
	}
}
