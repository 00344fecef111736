// Package llm provides chat clients for the supported model providers.
// Every provider is reduced to plain role/content turns; tool use is
// negotiated in the reply text, not through provider tool-calling APIs.
package llm

import (
	"context"
	"errors"
	"time"
)

// Roles used in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyReply is returned when a provider answers without any text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends the full conversation and returns the next assistant turn.
	Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error)
}

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the unified response from any LLM provider. Wire
// format conversion happens at provider boundaries.
type ChatResponse struct {
	Model     string
	CreatedAt time.Time
	Message   Message

	// Token usage (provider-neutral)
	InputTokens  int
	OutputTokens int
}

// splitSystem separates system turns from the rest of the conversation
// for providers that take the system prompt out of band.
func splitSystem(messages []Message) (system []string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
