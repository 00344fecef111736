package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jaya/github-mcp-openai-assistant/internal/config"
)

// MultiClient routes requests to the appropriate provider based on model name.
type MultiClient struct {
	clients  map[string]Client // provider name → client
	models   map[string]string // model name → provider name
	fallback Client            // default client for unknown models
}

// NewMultiClient creates a client that routes to multiple providers.
func NewMultiClient(fallback Client) *MultiClient {
	return &MultiClient{
		clients:  make(map[string]Client),
		models:   make(map[string]string),
		fallback: fallback,
	}
}

// AddProvider registers a client for a provider name.
func (m *MultiClient) AddProvider(name string, client Client) {
	m.clients[name] = client
}

// AddModel maps a model name to a provider.
func (m *MultiClient) AddModel(modelName, providerName string) {
	m.models[modelName] = providerName
}

// clientFor returns the appropriate client for a model.
func (m *MultiClient) clientFor(model string) Client {
	if provider, ok := m.models[model]; ok {
		if client, ok := m.clients[provider]; ok {
			return client
		}
	}
	return m.fallback
}

// Chat sends a request to the appropriate provider for the model.
func (m *MultiClient) Chat(ctx context.Context, model string, messages []Message) (*ChatResponse, error) {
	client := m.clientFor(model)
	if client == nil {
		return nil, fmt.Errorf("no provider configured for model %q", model)
	}
	return client.Chat(ctx, model, messages)
}

// New builds a MultiClient from configuration. Only providers that are
// referenced by a configured model are constructed; the default
// model's provider becomes the fallback.
func New(cfg *config.Config, logger *slog.Logger) (*MultiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	built := make(map[string]Client)
	build := func(provider string) (Client, error) {
		if c, ok := built[provider]; ok {
			return c, nil
		}
		var c Client
		switch provider {
		case config.ProviderOpenAI:
			c = NewOpenAIClient(cfg.OpenAI.APIKey.Reveal(), cfg.OpenAI.BaseURL, logger)
		case config.ProviderAnthropic:
			c = NewAnthropicClient(cfg.Anthropic.APIKey.Reveal(), cfg.Anthropic.MaxTokens, "", logger)
		case config.ProviderOllama:
			oc, err := NewOllamaClient(cfg.Ollama.URL, logger)
			if err != nil {
				return nil, err
			}
			c = oc
		default:
			return nil, fmt.Errorf("unknown provider %q", provider)
		}
		built[provider] = c
		return c, nil
	}

	var fallback Client
	if p := cfg.ProviderFor(cfg.Models.Default); p != "" {
		c, err := build(p)
		if err != nil {
			return nil, err
		}
		fallback = c
	}

	mc := NewMultiClient(fallback)
	for _, m := range cfg.Models.Available {
		c, err := build(m.Provider)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", m.Name, err)
		}
		mc.AddProvider(m.Provider, c)
		mc.AddModel(m.Name, m.Provider)
	}

	logger.Debug("LLM providers ready", "providers", len(built), "models", len(cfg.Models.Available))
	return mc, nil
}
