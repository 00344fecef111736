package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jaya/github-mcp-openai-assistant/internal/config"
)

// Transport is the interface for MCP server communication.
// Implementations handle the details of sending JSON-RPC requests and
// receiving responses over a specific channel.
type Transport interface {
	// Send sends a JSON-RPC request and returns the response.
	// The transport handles framing, encoding, and correlation.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Notify sends a JSON-RPC notification (no response expected).
	Notify(ctx context.Context, notif *Notification) error

	// Close shuts down the transport and releases resources.
	// For stdio transports this terminates the subprocess.
	Close() error
}

// NewTransport builds the transport described by cfg. The credential
// is handed over unchanged: as cfg.CredentialEnv in the subprocess
// environment for stdio, or as a bearer token for http and websocket.
func NewTransport(cfg config.MCPConfig, logger *slog.Logger) (Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("transport", cfg.Transport)

	switch cfg.Transport {
	case config.TransportStdio, "":
		if cfg.Command == "" {
			return nil, fmt.Errorf("mcp %s: stdio transport requires a command", cfg.Name)
		}
		return NewStdioTransport(StdioConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Env:     stdioEnv(cfg),
			Logger:  logger,
		}), nil

	case config.TransportHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp %s: http transport requires a url", cfg.Name)
		}
		return NewHTTPTransport(HTTPConfig{
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			BearerToken: cfg.Credential.Reveal(),
			Logger:      logger,
		}), nil

	case config.TransportWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp %s: websocket transport requires a url", cfg.Name)
		}
		return NewWebSocketTransport(WebSocketConfig{
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			BearerToken: cfg.Credential.Reveal(),
			Logger:      logger,
		}), nil

	default:
		return nil, fmt.Errorf("mcp %s: unknown transport %q", cfg.Name, cfg.Transport)
	}
}

// stdioEnv renders the configured environment as KEY=VALUE pairs in a
// stable order, followed by the credential variable.
func stdioEnv(cfg config.MCPConfig) []string {
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		env = append(env, k+"="+cfg.Env[k])
	}
	if cfg.CredentialEnv != "" && cfg.Credential != "" {
		env = append(env, cfg.CredentialEnv+"="+cfg.Credential.Reveal())
	}
	return env
}

// Dialer returns a DialFunc that builds a fresh transport from cfg for
// every connection attempt.
func Dialer(cfg config.MCPConfig, logger *slog.Logger) DialFunc {
	return func(context.Context) (Transport, error) {
		return NewTransport(cfg, logger)
	}
}
