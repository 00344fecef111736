// Package agent implements the agent loop: ask the model for the next
// action, dispatch tool requests to the MCP server, feed each result
// back as an observation, and stop at the first final answer.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jaya/github-mcp-openai-assistant/internal/config"
	"github.com/jaya/github-mcp-openai-assistant/internal/events"
	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
	"github.com/jaya/github-mcp-openai-assistant/internal/mcp"
	"github.com/jaya/github-mcp-openai-assistant/internal/transcript"
)

// Dispatcher routes a model-issued request to the tool server.
// *mcp.Dispatcher is the production implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, raw json.RawMessage) mcp.Result
}

// Recorder persists the conversation as it happens. *transcript.Store
// is the production implementation.
type Recorder interface {
	StartConversation(ctx context.Context, model string) (string, error)
	AppendTurn(ctx context.Context, conversationID, role, content string) error
	RecordDispatch(ctx context.Context, conversationID string, d transcript.Dispatch) error
}

// Config wires a Loop.
type Config struct {
	LLM        llm.Client
	Model      string
	Dispatcher Dispatcher

	// Seed is prepended to every new conversation (system prompt,
	// tool catalog hint, identity).
	Seed []llm.Message

	// MaxToolCalls bounds dispatches per Ask; zero means unbounded.
	MaxToolCalls int
	// MaxHistory bounds the conversation; zero keeps everything.
	MaxHistory int
	// ModelTimeout and ToolTimeout bound each model call and each
	// dispatch; zero means no deadline beyond the caller's context.
	ModelTimeout time.Duration
	ToolTimeout  time.Duration

	Events   *events.Bus
	Recorder Recorder
	Logger   *slog.Logger
}

// Result is the outcome of one Ask.
type Result struct {
	RequestID    string
	Answer       string
	Model        string
	Iterations   int
	ToolCalls    int
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
}

// Loop runs episodes against one conversation. The conversation carries
// over from one Ask to the next until Reset. Ask calls are serialized.
type Loop struct {
	cfg    Config
	logger *slog.Logger

	mu             sync.Mutex
	conv           *Conversation
	conversationID string
}

// NewLoop creates a loop with an empty conversation.
func NewLoop(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		cfg:    cfg,
		logger: logger,
		conv:   NewConversation(cfg.MaxHistory),
	}
}

// Ask runs one episode for question and returns the final answer.
// Tool failures are fed back to the model, not returned. The episode
// ends with an error only when the model call fails, the reply is
// malformed, the tool call bound is hit, or ctx is done.
func (l *Loop) Ask(ctx context.Context, question string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := time.Now()
	res := &Result{
		RequestID: "r_" + uuid.NewString()[:8],
		Model:     l.cfg.Model,
	}
	log := l.logger.With("request_id", res.RequestID)

	if l.conv.Len() == 0 {
		l.seed(ctx)
	}
	l.cfg.Events.Emit(events.SourceAgent, events.KindRequestStart, map[string]any{
		"request_id":      res.RequestID,
		"conversation_id": l.conversationID,
		"model":           l.cfg.Model,
	})
	log.Info("agent request started", "model", l.cfg.Model, "question_len", len(question))

	l.append(ctx, llm.RoleUser, question)

	err := l.run(ctx, log, res)
	res.Elapsed = time.Since(start)

	done := map[string]any{
		"request_id":       res.RequestID,
		"iterations":       res.Iterations,
		"tool_calls":       res.ToolCalls,
		"total_tokens_in":  res.InputTokens,
		"total_tokens_out": res.OutputTokens,
		"elapsed_ms":       res.Elapsed.Milliseconds(),
	}
	if err != nil {
		done["error"] = err.Error()
		log.Warn("agent request failed", "error", err, "iterations", res.Iterations)
	} else {
		log.Info("agent request completed",
			"iterations", res.Iterations,
			"tool_calls", res.ToolCalls,
			"elapsed", res.Elapsed,
		)
	}
	l.cfg.Events.Emit(events.SourceAgent, events.KindRequestComplete, done)

	if err != nil {
		return nil, err
	}
	return res, nil
}

// run is the episode body: an explicit loop, one model call per
// iteration, ending only at a final answer or an error.
func (l *Loop) run(ctx context.Context, log *slog.Logger, res *Result) error {
	for iter := 0; ; iter++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Iterations = iter + 1

		l.cfg.Events.Emit(events.SourceAgent, events.KindLLMCall, map[string]any{
			"request_id": res.RequestID,
			"iter":       iter,
			"model":      l.cfg.Model,
		})

		resp, err := l.chat(ctx)
		if err != nil {
			return fmt.Errorf("model call: %w", err)
		}
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		if resp.Model != "" {
			res.Model = resp.Model
		}

		content := resp.Message.Content
		l.append(ctx, llm.RoleAssistant, content)

		l.cfg.Events.Emit(events.SourceAgent, events.KindLLMResponse, map[string]any{
			"request_id": res.RequestID,
			"iter":       iter,
			"model":      res.Model,
			"tokens_in":  resp.InputTokens,
			"tokens_out": resp.OutputTokens,
		})
		log.Log(ctx, config.LevelTrace, "model reply", "iter", iter, "content", content)

		reply, err := ParseReply(content)
		if err != nil {
			return err
		}
		if reply.Final() {
			res.Answer = reply.Answer
			return nil
		}

		if l.cfg.MaxToolCalls > 0 && res.ToolCalls >= l.cfg.MaxToolCalls {
			return fmt.Errorf("%w after %d calls", ErrMaxToolCalls, res.ToolCalls)
		}
		res.ToolCalls++

		result := l.dispatch(ctx, log, res.RequestID, reply.RPC)
		l.append(ctx, llm.RoleUser, observation(reply.RPC, result))
	}
}

// seed starts a fresh conversation with the configured seed turns.
func (l *Loop) seed(ctx context.Context) {
	if l.cfg.Recorder != nil {
		id, err := l.cfg.Recorder.StartConversation(ctx, l.cfg.Model)
		if err != nil {
			l.logger.Warn("transcript unavailable", "error", err)
		}
		l.conversationID = id
	}
	for _, m := range l.cfg.Seed {
		l.append(ctx, m.Role, m.Content)
	}
}

// append adds a turn to the conversation and the transcript.
func (l *Loop) append(ctx context.Context, role, content string) {
	l.conv.Append(role, content)
	if l.cfg.Recorder == nil || l.conversationID == "" {
		return
	}
	if err := l.cfg.Recorder.AppendTurn(ctx, l.conversationID, role, content); err != nil {
		l.logger.Warn("failed to record turn", "error", err)
	}
}

// chat calls the model with the whole conversation under the model
// timeout.
func (l *Loop) chat(ctx context.Context) (*llm.ChatResponse, error) {
	if l.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.ModelTimeout)
		defer cancel()
	}
	return l.cfg.LLM.Chat(ctx, l.cfg.Model, l.conv.Messages())
}

// dispatch hands the request to the dispatcher under the tool timeout
// and records the outcome.
func (l *Loop) dispatch(ctx context.Context, log *slog.Logger, requestID string, rpc json.RawMessage) mcp.Result {
	method, tool := describe(rpc)

	l.cfg.Events.Emit(events.SourceAgent, events.KindToolCall, map[string]any{
		"request_id": requestID,
		"method":     method,
		"tool":       tool,
	})
	log.Info("dispatching tool request", "method", method, "tool", tool)

	dctx := ctx
	if l.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, l.cfg.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	result := l.cfg.Dispatcher.Dispatch(dctx, rpc)
	elapsed := time.Since(start)

	l.cfg.Events.Emit(events.SourceAgent, events.KindToolDone, map[string]any{
		"request_id":  requestID,
		"method":      method,
		"tool":        tool,
		"ok":          !result.IsError,
		"duration_ms": elapsed.Milliseconds(),
	})
	if result.IsError {
		log.Warn("tool request failed", "method", method, "tool", tool, "error", result.Error)
	}

	if l.cfg.Recorder != nil && l.conversationID != "" {
		rec := transcript.Dispatch{
			Method:   method,
			Tool:     tool,
			IsError:  result.IsError,
			Error:    result.Error,
			Duration: elapsed,
		}
		if call, err := mcp.ParseCall(rpc); err == nil && call.Params.Arguments != nil {
			if data, err := json.Marshal(call.Params.Arguments); err == nil {
				rec.Arguments = string(data)
			}
		}
		if err := l.cfg.Recorder.RecordDispatch(ctx, l.conversationID, rec); err != nil {
			log.Warn("failed to record dispatch", "error", err)
		}
	}
	return result
}

// Reset clears the conversation so the next Ask starts fresh.
func (l *Loop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conv.Reset()
	l.conversationID = ""
}

// ConversationID returns the transcript ID of the current
// conversation, or "" when none is being recorded.
func (l *Loop) ConversationID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conversationID
}

// History returns a copy of the current conversation.
func (l *Loop) History() []llm.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conv.Messages()
}

// observationTurn is the user-role turn fed back after a dispatch.
type observationTurn struct {
	Type   string          `json:"type"`
	RPC    json.RawMessage `json:"rpc"`
	Result mcp.Result      `json:"result"`
}

// observation serializes a dispatch and its result for the model.
func observation(rpc json.RawMessage, result mcp.Result) string {
	data, err := json.Marshal(observationTurn{Type: "observation", RPC: rpc, Result: result})
	if err != nil {
		data, _ = json.Marshal(result)
	}
	return string(data)
}

// describe extracts method and tool name for logs, events and
// transcripts without validating.
func describe(rpc json.RawMessage) (method, tool string) {
	call, err := mcp.ParseCall(rpc)
	if err != nil {
		return "", ""
	}
	return string(call.Method), call.Params.Name
}
