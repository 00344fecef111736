package agent

import (
	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
)

// minRecentTurns is the floor on non-system turns kept when trimming.
const minRecentTurns = 10

// Conversation is the ordered list of turns sent to the model. It is
// owned by a single Loop and not safe for concurrent use.
type Conversation struct {
	messages []llm.Message
	maxTurns int
}

// NewConversation creates an empty conversation. maxTurns bounds the
// history; zero or less keeps everything.
func NewConversation(maxTurns int) *Conversation {
	return &Conversation{maxTurns: maxTurns}
}

// Append adds a turn, trimming the oldest non-system turns when the
// bound is exceeded. System turns are always kept.
func (c *Conversation) Append(role, content string) {
	c.messages = append(c.messages, llm.Message{Role: role, Content: content})

	if c.maxTurns <= 0 || len(c.messages) <= c.maxTurns {
		return
	}

	var system, other []llm.Message
	for _, m := range c.messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}

	keep := c.maxTurns - len(system)
	if keep < minRecentTurns {
		keep = minRecentTurns
	}
	if len(other) > keep {
		other = other[len(other)-keep:]
	}
	c.messages = append(system, other...)
}

// Messages returns a copy of the turns in order.
func (c *Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Reset drops every turn.
func (c *Conversation) Reset() {
	c.messages = nil
}
