// Package render formats assistant output for the terminal: final
// answers as markdown, HTML or JSON, and tool results as a readable
// report.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/yuin/goldmark"
)

// Format selects how answers are written.
type Format string

// Supported output formats.
const (
	FormatText Format = "text"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// ParseFormat validates a -o flag value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatHTML, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, html or json)", s)
	}
}

// AnswerMeta is optional detail included in JSON output.
type AnswerMeta struct {
	RequestID    string `json:"request_id,omitempty"`
	Model        string `json:"model,omitempty"`
	Iterations   int    `json:"iterations,omitempty"`
	ToolCalls    int    `json:"tool_calls,omitempty"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms,omitempty"`
}

// Answer writes a final answer in the requested format. Text is the
// markdown as produced by the model; HTML is rendered with goldmark;
// JSON wraps the markdown and meta in one object.
func Answer(w io.Writer, format Format, markdown string, meta AnswerMeta) error {
	switch format {
	case FormatHTML:
		html, err := MarkdownToHTML(markdown)
		if err != nil {
			return fmt.Errorf("render html: %w", err)
		}
		_, err = io.WriteString(w, html)
		return err

	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Answer string `json:"answer_markdown"`
			AnswerMeta
		}{markdown, meta})

	default:
		_, err := fmt.Fprintln(w, markdown)
		return err
	}
}

// MarkdownToHTML renders markdown to an HTML fragment.
func MarkdownToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
