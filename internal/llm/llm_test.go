package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jaya/github-mcp-openai-assistant/internal/config"
)

var conversation = []Message{
	{Role: RoleSystem, Content: "You are a GitHub assistant."},
	{Role: RoleSystem, Content: `{"type":"identity","github_login":"octocat"}`},
	{Role: RoleUser, Content: "How many open issues?"},
	{Role: RoleAssistant, Content: `{"type":"tool_request","rpc":{"method":"tools/list"}}`},
	{Role: RoleUser, Content: `{"type":"observation"}`},
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
	}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1700000000,"model":"gpt-5",
			"choices":[{"index":0,"message":{"role":"assistant","content":"{\"type\":\"final_answer\",\"answer_markdown\":\"3\"}"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":4,"total_tokens":16}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-5", conversation)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "gpt-5" || len(got.Messages) != len(conversation) {
		t.Errorf("request = %+v", got)
	}
	if got.Messages[1].Role != RoleSystem {
		t.Errorf("identity turn role = %q, want system", got.Messages[1].Role)
	}
	if resp.Message.Content != `{"type":"final_answer","answer_markdown":"3"}` {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 12 || resp.OutputTokens != 4 {
		t.Errorf("tokens = %d/%d, want 12/4", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","choices":[]}`)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient("sk-test", srv.URL, nil).Chat(context.Background(), "gpt-5", conversation)
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
}

func TestAnthropicClient_Chat(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-sonnet-4-5",
			"content":[{"type":"text","text":"hello"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":20,"output_tokens":3}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-ant-test", 1024, srv.URL, nil)
	resp, err := c.Chat(context.Background(), "claude-sonnet-4-5", conversation)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if apiKey != "sk-ant-test" {
		t.Errorf("X-Api-Key = %q", apiKey)
	}
	if got.MaxTokens != 1024 {
		t.Errorf("max_tokens = %d, want 1024", got.MaxTokens)
	}
	if len(got.System) != 2 {
		t.Errorf("system blocks = %d, want 2", len(got.System))
	}
	// user, assistant, user(observation)
	if len(got.Messages) != 3 {
		t.Errorf("messages = %d, want 3", len(got.Messages))
	}
	if resp.Message.Content != "hello" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 20 || resp.OutputTokens != 3 {
		t.Errorf("tokens = %d/%d, want 20/3", resp.InputTokens, resp.OutputTokens)
	}
}

func TestConvertToAnthropic_MergesSameRole(t *testing.T) {
	msgs := convertToAnthropic([]Message{
		{Role: RoleUser, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleAssistant, Content: "c"},
		{Role: RoleUser, Content: "d"},
	})
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	var got struct {
		Model    string    `json:"model"`
		Stream   *bool     `json:"stream"`
		Messages []Message `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"model":"qwen3","created_at":"2025-01-01T00:00:00Z",
			"message":{"role":"assistant","content":"local answer"},"done":true,
			"prompt_eval_count":30,"eval_count":5}`)
	}))
	defer srv.Close()

	c, err := NewOllamaClient(srv.URL, nil)
	if err != nil {
		t.Fatalf("NewOllamaClient: %v", err)
	}
	resp, err := c.Chat(context.Background(), "qwen3", conversation)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if got.Stream == nil || *got.Stream {
		t.Error("request did not disable streaming")
	}
	if len(got.Messages) != len(conversation) {
		t.Errorf("messages = %d, want %d", len(got.Messages), len(conversation))
	}
	if resp.Message.Content != "local answer" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.InputTokens != 30 || resp.OutputTokens != 5 {
		t.Errorf("tokens = %d/%d, want 30/5", resp.InputTokens, resp.OutputTokens)
	}
}

func TestNewOllamaClient_BadURL(t *testing.T) {
	if _, err := NewOllamaClient("://nope", nil); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

// stubClient records which model it was asked for.
type stubClient struct {
	name  string
	model string
}

func (s *stubClient) Chat(_ context.Context, model string, _ []Message) (*ChatResponse, error) {
	s.model = model
	return &ChatResponse{Model: model, Message: Message{Role: RoleAssistant, Content: s.name}}, nil
}

func TestMultiClient_Routing(t *testing.T) {
	openai := &stubClient{name: "openai"}
	ollama := &stubClient{name: "ollama"}

	mc := NewMultiClient(openai)
	mc.AddProvider("ollama", ollama)
	mc.AddModel("qwen3", "ollama")

	resp, err := mc.Chat(context.Background(), "qwen3", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ollama" {
		t.Errorf("qwen3 routed to %q, want ollama", resp.Message.Content)
	}

	resp, err = mc.Chat(context.Background(), "gpt-5", nil)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "openai" {
		t.Errorf("unknown model routed to %q, want fallback", resp.Message.Content)
	}
}

func TestMultiClient_NoFallback(t *testing.T) {
	if _, err := NewMultiClient(nil).Chat(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error with no provider")
	}
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Models.Available = append(cfg.Models.Available,
		config.ModelConfig{Name: "claude-sonnet-4-5", Provider: config.ProviderAnthropic},
		config.ModelConfig{Name: "qwen3", Provider: config.ProviderOllama},
	)

	mc, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := mc.clientFor("claude-sonnet-4-5").(*AnthropicClient); !ok {
		t.Error("claude model not routed to AnthropicClient")
	}
	if _, ok := mc.clientFor("qwen3").(*OllamaClient); !ok {
		t.Error("qwen3 not routed to OllamaClient")
	}
	if _, ok := mc.clientFor("gpt-5").(*OpenAIClient); !ok {
		t.Error("default model not routed to OpenAIClient")
	}
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem(conversation)
	if len(system) != 2 || len(rest) != 3 {
		t.Errorf("split = %d system, %d rest; want 2, 3", len(system), len(rest))
	}
}
