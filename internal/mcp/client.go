package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jaya/github-mcp-openai-assistant/internal/buildinfo"
	"github.com/jaya/github-mcp-openai-assistant/internal/config"
)

// protocolVersion is the MCP protocol version we advertise during initialization.
const protocolVersion = "2024-11-05"

// maxListPages bounds tools/list pagination against servers that keep
// returning a cursor.
const maxListPages = 100

// ToolDefinition is an MCP tool as returned by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// callToolResult is the result payload of a tools/call response.
type callToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// toolsListResult is the result payload of a tools/list response.
type toolsListResult struct {
	Tools      []ToolDefinition `json:"tools"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ServerInfo identifies the server, as reported in the initialize response.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult is the full initialize response result.
type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Capabilities    json.RawMessage `json:"capabilities"`
}

// Client is a protocol session with a single MCP server. It owns the
// transport, performs the handshake at most once, and exposes typed
// access to tools/list and tools/call.
type Client struct {
	name      string
	transport Transport
	logger    *slog.Logger
	nextID    atomic.Int64

	// initMu serializes the handshake so concurrent first callers
	// observe exactly one initialize exchange.
	initMu sync.Mutex

	mu          sync.RWMutex
	initialized bool
	closed      bool
	server      ServerInfo
	tools       []ToolDefinition
}

// NewClient creates an MCP client for the given server. The transport
// determines how messages are delivered (stdio, HTTP or WebSocket).
func NewClient(name string, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		name:      name,
		transport: transport,
		logger:    logger.With("mcp_server", name),
	}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Initialized reports whether the handshake has completed.
func (c *Client) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized
}

// Alive reports whether the session can still carry traffic: the
// handshake completed and neither Shutdown nor a channel failure has
// ended it.
func (c *Client) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initialized && !c.closed
}

// ServerInfo returns the server identity captured during the handshake.
func (c *Client) ServerInfo() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Initialize performs the MCP handshake: an initialize request followed
// by the notifications/initialized notification. It is idempotent; once
// the handshake succeeds later calls return nil without I/O.
func (c *Client) Initialize(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.RLock()
	initialized, closed := c.initialized, c.closed
	c.mu.RUnlock()
	if closed {
		return &ConnectionError{Server: c.name, Op: "initialize", Err: ErrSessionClosed}
	}
	if initialized {
		return nil
	}

	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "github-mcp-assistant",
			"version": buildinfo.Version,
		},
	}

	resp, err := c.send(ctx, "initialize", params)
	if err != nil {
		return &ConnectionError{Server: c.name, Op: "initialize", Err: err}
	}
	if resp.Error != nil {
		return &ConnectionError{Server: c.name, Op: "initialize", Err: resp.Error}
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return &ConnectionError{Server: c.name, Op: "initialize",
			Err: &ProtocolError{Method: "initialize", Err: err}}
	}

	if err := c.transport.Notify(ctx, NewNotification("notifications/initialized", nil)); err != nil {
		c.lose(err)
		return &ConnectionError{Server: c.name, Op: "initialized notification", Err: err}
	}

	c.mu.Lock()
	c.initialized = true
	c.server = result.ServerInfo
	c.mu.Unlock()

	c.logger.Info("MCP server initialized",
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)
	return nil
}

// ListTools returns the server's tool catalog, initializing first if
// needed and following nextCursor pagination. The catalog is cached
// until Shutdown.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	c.mu.RLock()
	if c.tools != nil {
		defer c.mu.RUnlock()
		return c.tools, nil
	}
	c.mu.RUnlock()

	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}

	tools := []ToolDefinition{}
	cursor := ""
	for page := 0; ; page++ {
		if page >= maxListPages {
			return nil, &ProtocolError{Method: "tools/list",
				Err: fmt.Errorf("pagination exceeded %d pages", maxListPages)}
		}

		var params any
		if cursor != "" {
			params = map[string]any{"cursor": cursor}
		}

		resp, err := c.send(ctx, "tools/list", params)
		if err != nil {
			return nil, &ConnectionError{Server: c.name, Op: "tools/list", Err: err}
		}
		if resp.Error != nil {
			return nil, &ProtocolError{Method: "tools/list", Err: resp.Error}
		}

		var result toolsListResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, &ProtocolError{Method: "tools/list", Err: err}
		}
		if result.Tools == nil {
			return nil, &ProtocolError{Method: "tools/list", Err: errors.New("result has no tools array")}
		}
		tools = append(tools, result.Tools...)

		if result.NextCursor == "" {
			break
		}
		cursor = result.NextCursor
	}

	c.mu.Lock()
	if !c.closed {
		c.tools = tools
	}
	c.mu.Unlock()

	c.logger.Info("discovered MCP tools", "count", len(tools))
	return tools, nil
}

// CallTool invokes a tool by name. It never returns a Go error: every
// failure is folded into a Result with IsError set. A nil args map is
// sent as an empty object.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) Result {
	if err := c.Initialize(ctx); err != nil {
		return ErrorResult(err)
	}

	if args == nil {
		args = map[string]any{}
	}
	params := map[string]any{
		"name":      name,
		"arguments": args,
	}

	resp, err := c.send(ctx, "tools/call", params)
	if err != nil {
		return ErrorResult(&ConnectionError{Server: c.name, Op: "tools/call " + name, Err: err})
	}
	if resp.Error != nil {
		return ErrorResult(&ToolExecutionError{Tool: name, Message: resp.Error.Message})
	}

	var result callToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return ErrorResult(&ProtocolError{Method: "tools/call", Err: err})
	}

	if result.IsError {
		return ErrorResult(&ToolExecutionError{Tool: name, Message: extractText(result.Content)})
	}

	c.logger.Debug("MCP tool call complete", "tool", name, "blocks", len(result.Content))
	return Result{Content: result.Content}
}

// Ping checks whether the MCP server is responsive.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.send(ctx, "ping", nil)
	if err != nil {
		return &ConnectionError{Server: c.name, Op: "ping", Err: err}
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

// Shutdown closes the transport and discards the cached catalog. It is
// idempotent; later operations fail with ErrSessionClosed.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.initialized = false
	c.tools = nil
	c.mu.Unlock()

	c.logger.Info("closing MCP client")
	return c.transport.Close()
}

// send issues a JSON-RPC request over the transport. JSON-RPC errors
// are left on the response for the caller to classify. A transport
// failure ends the session.
func (c *Client) send(ctx context.Context, method string, params any) (*Response, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrSessionClosed
	}

	id := c.nextID.Add(1)
	c.logger.Log(ctx, config.LevelTrace, "MCP request", "method", method, "id", id)
	resp, err := c.transport.Send(ctx, NewRequest(id, method, params))
	if err != nil {
		c.lose(err)
		return nil, err
	}
	return resp, nil
}

// lose closes the session after a transport failure. The server may
// no longer hold the handshake, so nothing more is sent on this
// transport.
func (c *Client) lose(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.initialized = false
	c.tools = nil
	c.mu.Unlock()

	c.logger.Warn("MCP session lost", "error", err)
	_ = c.transport.Close()
}
