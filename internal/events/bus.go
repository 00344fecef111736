// Package events provides a publish/subscribe bus for progress events
// from the agent loop. The bus is nil-safe: calling Publish on a nil
// *Bus is a no-op, so components do not need guard checks.
package events

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the agent loop.
	SourceAgent = "agent"
	// SourceMCP identifies events about the tool-server session.
	SourceMCP = "mcp"
)

// Kind constants describe the type of event within a source.
const (
	// KindRequestStart signals the beginning of an Ask.
	// Data: request_id, conversation_id, model.
	KindRequestStart = "request_start"
	// KindLLMCall signals the start of a model call.
	// Data: request_id, iter, model.
	KindLLMCall = "llm_call"
	// KindLLMResponse signals completion of a model call.
	// Data: request_id, iter, model, tokens_in, tokens_out, reply.
	KindLLMResponse = "llm_response"
	// KindToolCall signals that a tool request is being dispatched.
	// Data: request_id, method, tool.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a dispatch.
	// Data: request_id, method, tool, ok, duration_ms.
	KindToolDone = "tool_done"
	// KindRequestComplete signals the end of an Ask.
	// Data: request_id, iterations, tool_calls, total_tokens_in,
	// total_tokens_out, elapsed_ms, error.
	KindRequestComplete = "request_complete"
)

// Event represents a single event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// String renders the event on one line with data keys in sorted order.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s/%s", e.Timestamp.Format("15:04:05.000"), e.Source, e.Kind)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	return b.String()
}

// Subscription is a live registration on a Bus. Events arrive on C
// until Unsubscribe closes it.
type Subscription struct {
	C <-chan Event
	c chan Event
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Publish sends an event to all subscribers, dropping it for any
// subscriber whose buffer is full. Safe to call on a nil receiver.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.c <- e:
		default:
		}
	}
}

// Emit stamps and publishes an event. Safe to call on a nil receiver.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	if b == nil {
		return
	}
	b.Publish(Event{Timestamp: time.Now(), Source: source, Kind: kind, Data: data})
}

// Subscribe registers a subscriber with the given channel buffer. The
// caller must eventually call Unsubscribe.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	c := make(chan Event, bufSize)
	s := &Subscription{C: c, c: c}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[s] = struct{}{}
	return s
}

// Unsubscribe removes a subscription and closes its channel. Calling it
// twice is a no-op.
func (b *Bus) Unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.c)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
