package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/jaya/github-mcp-openai-assistant/internal/httpkit"
)

// OllamaClient is a client for a local Ollama server.
type OllamaClient struct {
	client *api.Client
	logger *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) (*OllamaClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	// Large local models can take minutes to load; ctx bounds the call.
	httpClient := httpkit.NewClient(httpkit.WithTimeout(0), httpkit.WithLogger(logger))

	return &OllamaClient{
		client: api.NewClient(u, httpClient),
		logger: logger.With("provider", "ollama"),
	}, nil
}

// Chat sends a non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	stream := false
	req := &api.ChatRequest{
		Model:    model,
		Messages: make([]api.Message, 0, len(messages)),
		Stream:   &stream,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, api.Message{Role: m.Role, Content: m.Content})
	}

	c.logger.Debug("sending chat request", "model", model, "messages", len(messages))

	var (
		text strings.Builder
		last api.ChatResponse
	)
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		last = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if text.Len() == 0 {
		return nil, ErrEmptyReply
	}

	return &ChatResponse{
		Model:     last.Model,
		CreatedAt: last.CreatedAt,
		Message: Message{
			Role:    RoleAssistant,
			Content: text.String(),
		},
		InputTokens:  last.PromptEvalCount,
		OutputTokens: last.EvalCount,
	}, nil
}
