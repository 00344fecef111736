package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Acquirer supplies a live session. *Manager is the production
// implementation.
type Acquirer interface {
	Acquire(ctx context.Context) (*Client, error)
}

// Dispatcher validates model-issued requests and routes them to the
// session. It never returns a Go error: every failure is reported as a
// Result with IsError set.
type Dispatcher struct {
	sessions Acquirer
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher backed by sessions.
func NewDispatcher(sessions Acquirer, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sessions: sessions, logger: logger}
}

// Dispatch decodes an untyped request object and executes it.
func (d *Dispatcher) Dispatch(ctx context.Context, raw json.RawMessage) Result {
	call, err := ParseCall(raw)
	if err != nil {
		d.logger.Debug("rejected tool request", "error", err)
		return ErrorResult(err)
	}
	return d.Execute(ctx, call)
}

// Execute validates call and routes it. Invalid requests never reach
// the session.
func (d *Dispatcher) Execute(ctx context.Context, call Call) Result {
	if err := call.Validate(); err != nil {
		d.logger.Debug("rejected tool request", "method", call.Method, "error", err)
		return ErrorResult(err)
	}

	client, err := d.sessions.Acquire(ctx)
	if err != nil {
		return ErrorResult(err)
	}

	switch call.Method {
	case MethodListTools:
		tools, err := client.ListTools(ctx)
		if err != nil {
			return ErrorResult(err)
		}
		data, err := json.MarshalIndent(tools, "", "  ")
		if err != nil {
			return ErrorResult(fmt.Errorf("encode tool catalog: %w", err))
		}
		return TextResult(string(data))

	default: // MethodCallTool; Validate rejected everything else.
		d.logger.Info("dispatching tool call", "tool", call.Params.Name)
		return client.CallTool(ctx, call.Params.Name, call.Params.Arguments)
	}
}
