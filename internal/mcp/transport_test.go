package mcp

import (
	"strings"
	"testing"

	"github.com/jaya/github-mcp-openai-assistant/internal/config"
)

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.MCPConfig
		want    string
		wantErr bool
	}{
		{name: "stdio", cfg: config.MCPConfig{Transport: config.TransportStdio, Command: "docker"}, want: "*mcp.StdioTransport"},
		{name: "http", cfg: config.MCPConfig{Transport: config.TransportHTTP, URL: "https://api.example.com/mcp"}, want: "*mcp.HTTPTransport"},
		{name: "websocket", cfg: config.MCPConfig{Transport: config.TransportWebSocket, URL: "wss://example.com/mcp"}, want: "*mcp.WebSocketTransport"},
		{name: "stdio without command", cfg: config.MCPConfig{Transport: config.TransportStdio}, wantErr: true},
		{name: "http without url", cfg: config.MCPConfig{Transport: config.TransportHTTP}, wantErr: true},
		{name: "unknown", cfg: config.MCPConfig{Transport: "carrier-pigeon"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTransport: %v", err)
			}
			if got := typeName(tr); got != tt.want {
				t.Errorf("type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(tr Transport) string {
	switch tr.(type) {
	case *StdioTransport:
		return "*mcp.StdioTransport"
	case *HTTPTransport:
		return "*mcp.HTTPTransport"
	case *WebSocketTransport:
		return "*mcp.WebSocketTransport"
	default:
		return "unknown"
	}
}

func TestStdioEnv(t *testing.T) {
	cfg := config.MCPConfig{
		Env:           map[string]string{"B": "2", "A": "1"},
		Credential:    config.Secret("ghp_abc"),
		CredentialEnv: "GITHUB_PERSONAL_ACCESS_TOKEN",
	}
	got := strings.Join(stdioEnv(cfg), " ")
	want := "A=1 B=2 GITHUB_PERSONAL_ACCESS_TOKEN=ghp_abc"
	if got != want {
		t.Errorf("stdioEnv = %q, want %q", got, want)
	}
}

func TestStdioEnv_NoCredential(t *testing.T) {
	cfg := config.MCPConfig{CredentialEnv: "GITHUB_PERSONAL_ACCESS_TOKEN"}
	if env := stdioEnv(cfg); len(env) != 0 {
		t.Errorf("stdioEnv = %v, want empty", env)
	}
}
