package agent

import (
	"fmt"
	"testing"

	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
)

func TestConversation_KeepsSystemTurnsWhenTrimming(t *testing.T) {
	c := NewConversation(12)
	c.Append(llm.RoleSystem, "prompt")
	c.Append(llm.RoleSystem, "identity")
	for i := 0; i < 30; i++ {
		c.Append(llm.RoleUser, fmt.Sprintf("turn %d", i))
	}

	msgs := c.Messages()
	if len(msgs) != 12 {
		t.Fatalf("len = %d, want 12", len(msgs))
	}
	if msgs[0].Content != "prompt" || msgs[1].Content != "identity" {
		t.Errorf("system turns not kept first: %v", msgs[:2])
	}
	if last := msgs[len(msgs)-1].Content; last != "turn 29" {
		t.Errorf("last = %q, want turn 29", last)
	}
	if msgs[2].Content != "turn 20" {
		t.Errorf("oldest kept = %q, want turn 20", msgs[2].Content)
	}
}

func TestConversation_MinimumRecentTurns(t *testing.T) {
	c := NewConversation(5)
	for i := 0; i < 6; i++ {
		c.Append(llm.RoleSystem, "sys")
	}
	for i := 0; i < 20; i++ {
		c.Append(llm.RoleUser, "u")
	}
	if got := c.Len(); got != 6+minRecentTurns {
		t.Errorf("len = %d, want %d", got, 6+minRecentTurns)
	}
}

func TestConversation_Unbounded(t *testing.T) {
	c := NewConversation(0)
	for i := 0; i < 500; i++ {
		c.Append(llm.RoleUser, "u")
	}
	if c.Len() != 500 {
		t.Errorf("len = %d, want 500", c.Len())
	}
}

func TestConversation_MessagesIsACopy(t *testing.T) {
	c := NewConversation(0)
	c.Append(llm.RoleUser, "original")
	msgs := c.Messages()
	msgs[0].Content = "mutated"
	if c.Messages()[0].Content != "original" {
		t.Error("Messages() exposed internal state")
	}
	c.Reset()
	if c.Len() != 0 {
		t.Errorf("len after Reset = %d", c.Len())
	}
}
