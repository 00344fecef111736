package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// replyTypeFinal is the discriminator value of a terminal reply. Any
// other type is a tool request.
const replyTypeFinal = "final_answer"

// Reply is a parsed model reply: either a final answer or a tool
// request carrying the raw RPC object for the dispatcher.
type Reply struct {
	// Type is the discriminator the model sent.
	Type string

	// Answer is the markdown answer when Final is true.
	Answer string

	// RPC is the embedded request when Final is false.
	RPC json.RawMessage
}

// Final reports whether the reply ends the episode.
func (r Reply) Final() bool {
	return r.Type == replyTypeFinal
}

// wireReply is the JSON shape the model is prompted to emit.
type wireReply struct {
	Type           string          `json:"type"`
	AnswerMarkdown *string         `json:"answer_markdown"`
	RPC            json.RawMessage `json:"rpc"`
}

// ParseReply decodes a model reply. Surrounding whitespace is ignored;
// anything else that is not a well-formed reply is a
// *MalformedReplyError.
func ParseReply(raw string) (Reply, error) {
	malformed := func(err error) (Reply, error) {
		return Reply{}, &MalformedReplyError{Raw: raw, Err: err}
	}

	var w wireReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &w); err != nil {
		return malformed(err)
	}
	if w.Type == "" {
		return malformed(errors.New("reply has no type"))
	}

	if w.Type == replyTypeFinal {
		if w.AnswerMarkdown == nil {
			return malformed(errors.New("final_answer has no answer_markdown"))
		}
		return Reply{Type: w.Type, Answer: *w.AnswerMarkdown}, nil
	}

	if len(w.RPC) == 0 || string(w.RPC) == "null" {
		return malformed(fmt.Errorf("%q reply has no rpc", w.Type))
	}
	return Reply{Type: w.Type, RPC: w.RPC}, nil
}
