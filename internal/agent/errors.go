package agent

import (
	"errors"
	"fmt"
)

// ErrMalformedReply is the sentinel behind every MalformedReplyError.
var ErrMalformedReply = errors.New("malformed model reply")

// ErrMaxToolCalls is returned when an episode asks for more tool calls
// than the configured bound allows.
var ErrMaxToolCalls = errors.New("tool call limit reached")

// MalformedReplyError reports a model reply that could not be parsed
// into a final answer or a tool request. It ends the episode.
type MalformedReplyError struct {
	Raw string
	Err error
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformedReply, e.Err)
}

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedReply) hold for every
// MalformedReplyError.
func (e *MalformedReplyError) Is(target error) bool {
	return target == ErrMalformedReply
}
