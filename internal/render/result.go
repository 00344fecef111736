package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaya/github-mcp-openai-assistant/internal/mcp"
)

// Report headings.
const (
	resultHeader  = "📄 MCP RESPONSE:"
	successHeader = "✅ SUCCESS RESPONSE:"
	errorHeader   = "❌ ERROR RESPONSE:"
)

var separator = strings.Repeat("=", 80)

// maxItemsPreview is how many search items the summary lists.
const maxItemsPreview = 3

// Result formats a tool result as a readable report. When the first
// text block is JSON it is pretty-printed, and search-style payloads
// (total_count plus items) get a short summary.
func Result(res mcp.Result) string {
	out := []string{"", resultHeader, separator}
	if res.IsError {
		out = append(out, errorHeader, indentJSON(res))
	} else {
		out = append(out, successHeader)
		if len(res.Content) == 0 {
			out = append(out, "📝 FULL RESPONSE:", indentJSON(res))
		} else {
			out = append(out, formatContent(res.Content)...)
		}
	}
	out = append(out, separator)
	return strings.Join(out, "\n")
}

func formatContent(content []mcp.ContentBlock) []string {
	text := content[0].Text
	if text == "" {
		return []string{"📝 CONTENT:", indentJSON(content)}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, []byte(text), "", "  "); err != nil {
		return []string{"📝 TEXT RESPONSE:", text}
	}
	out := []string{"📊 PARSED DATA:", pretty.String()}

	if s, ok := extractSummary([]byte(text)); ok {
		out = append(out, s.lines()...)
	}
	return out
}

// summary is the digest of a search-style payload.
type summary struct {
	total json.Number
	items []summaryItem
}

type summaryItem struct {
	number string
	title  string
	state  string
	repo   string
}

// searchPayload matches GitHub search results.
type searchPayload struct {
	TotalCount json.Number      `json:"total_count"`
	Items      []map[string]any `json:"items"`
}

func extractSummary(data []byte) (summary, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p searchPayload
	if err := dec.Decode(&p); err != nil || len(p.Items) == 0 {
		return summary{}, false
	}

	s := summary{total: p.TotalCount}
	if s.total == "" {
		s.total = "0"
	}
	for _, item := range p.Items {
		repo := "unknown"
		if url, _ := item["repository_url"].(string); strings.Contains(url, "/repos/") {
			repo = url[strings.LastIndex(url, "/repos/")+len("/repos/"):]
		}
		s.items = append(s.items, summaryItem{
			number: field(item, "number", "?"),
			title:  field(item, "title", "No title"),
			state:  field(item, "state", "unknown"),
			repo:   repo,
		})
	}
	return s, true
}

// field renders item[key], or def when the key is absent.
func field(item map[string]any, key, def string) string {
	v, ok := item[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

func (s summary) lines() []string {
	out := []string{
		"\n📈 SUMMARY:",
		"   Total found: " + s.total.String(),
		fmt.Sprintf("   Items returned: %d", len(s.items)),
		"\n📋 ITEMS:",
	}
	for i, item := range s.items {
		if i == maxItemsPreview {
			out = append(out, fmt.Sprintf("   ... and %d more items", len(s.items)-maxItemsPreview))
			break
		}
		out = append(out,
			fmt.Sprintf("   %d. #%s - %s", i+1, item.number, item.title),
			fmt.Sprintf("      State: %s | Repo: %s", item.state, item.repo),
		)
	}
	return out
}

func indentJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
