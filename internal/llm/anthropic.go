package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jaya/github-mcp-openai-assistant/internal/httpkit"
)

// AnthropicClient is a client for the Anthropic Messages API.
type AnthropicClient struct {
	client    *anthropic.Client
	maxTokens int
	logger    *slog.Logger
}

// NewAnthropicClient creates a new Anthropic client. baseURL is only
// set in tests and for proxies.
func NewAnthropicClient(apiKey string, maxTokens int, baseURL string, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	// LLM responses can take significant time before sending headers.
	t := httpkit.NewTransport()
	t.ResponseHeaderTimeout = 120 * time.Second

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(
			httpkit.WithTimeout(0),
			httpkit.WithTransport(t),
			httpkit.WithLogger(logger),
		)),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	cl := anthropic.NewClient(opts...)
	return &AnthropicClient{
		client:    &cl,
		maxTokens: maxTokens,
		logger:    logger.With("provider", "anthropic"),
	}
}

// Chat sends the conversation to the Messages API. System turns are
// lifted into the system parameter.
func (c *AnthropicClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	system, rest := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(c.maxTokens),
		Messages:  convertToAnthropic(rest),
	}
	for _, s := range system {
		params.System = append(params.System, anthropic.TextBlockParam{Text: s})
	}

	c.logger.Debug("sending messages request",
		"model", model,
		"messages", len(params.Messages),
		"system_len", len(strings.Join(system, "")),
	)

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	if b.Len() == 0 {
		return nil, ErrEmptyReply
	}

	return &ChatResponse{
		Model:     string(msg.Model),
		CreatedAt: time.Now(),
		Message: Message{
			Role:    RoleAssistant,
			Content: b.String(),
		},
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// convertToAnthropic maps turns onto user and assistant messages.
// Consecutive turns with the same role are merged since the API
// requires alternation.
func convertToAnthropic(messages []Message) []anthropic.MessageParam {
	var (
		out  []anthropic.MessageParam
		role string
		buf  []string
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		block := anthropic.NewTextBlock(strings.Join(buf, "\n\n"))
		if role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
		buf = nil
	}

	for _, m := range messages {
		r := RoleUser
		if m.Role == RoleAssistant {
			r = RoleAssistant
		}
		if r != role {
			flush()
			role = r
		}
		buf = append(buf, m.Content)
	}
	flush()
	return out
}
