// Package config handles assistant configuration loading.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/assistant/config.yaml, /etc/assistant/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "assistant", "config.yaml"))
	}

	paths = append(paths, "/etc/assistant/config.yaml")
	return paths
}

// ErrNoConfig is returned by FindConfig when no explicit path was given
// and none of the default search paths exist.
var ErrNoConfig = errors.New("no config file found")

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, DefaultSearchPaths())
}

// Transport kinds accepted in MCPConfig.Transport.
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Provider names accepted in ModelConfig.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// Config holds all assistant configuration.
type Config struct {
	Models     ModelsConfig    `yaml:"models"`
	OpenAI     OpenAIConfig    `yaml:"openai"`
	Anthropic  AnthropicConfig `yaml:"anthropic"`
	Ollama     OllamaConfig    `yaml:"ollama"`
	MCP        MCPConfig       `yaml:"mcp"`
	GitHub     GitHubConfig    `yaml:"github"`
	Agent      AgentConfig     `yaml:"agent"`
	PromptsDir string          `yaml:"prompts_dir"`
	DataDir    string          `yaml:"data_dir"`
	LogLevel   string          `yaml:"log_level"`
	LogFormat  string          `yaml:"log_format"` // text or json
}

// ModelsConfig defines which model answers and which provider serves it.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // openai, anthropic, ollama
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey  Secret `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // optional, for compatible gateways
}

// Configured reports whether an API key is present.
func (c OpenAIConfig) Configured() bool { return c.APIKey != "" }

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey    Secret `yaml:"api_key"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Configured reports whether an API key is present.
func (c AnthropicConfig) Configured() bool { return c.APIKey != "" }

// OllamaConfig defines the local Ollama endpoint.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// MCPConfig describes how to reach the tool server. Only one transport
// is active; which fields matter depends on Transport.
type MCPConfig struct {
	// Name identifies the server in logs.
	Name string `yaml:"name"`

	// Transport is stdio (default), http or websocket.
	Transport string `yaml:"transport"`

	// Command, Args and Env launch the stdio server.
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	// URL and Headers address an http or websocket server.
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// Credential is handed to the server untouched: as the
	// CredentialEnv variable for stdio, or as a bearer token otherwise.
	Credential    Secret `yaml:"credential"`
	CredentialEnv string `yaml:"credential_env"`
}

// GitHubConfig holds the identity the assistant acts as.
type GitHubConfig struct {
	Login  string `yaml:"login"`
	Token  Secret `yaml:"token"`
	APIURL string `yaml:"api_url"` // GitHub Enterprise base URL; empty for github.com
}

// AgentConfig bounds a single episode of the agent loop. Zero timeouts
// disable the corresponding deadline.
type AgentConfig struct {
	MaxToolCalls    int `yaml:"max_tool_calls"`
	MaxHistory      int `yaml:"max_history"`
	ModelTimeoutSec int `yaml:"model_timeout_sec"`
	ToolTimeoutSec  int `yaml:"tool_timeout_sec"`
}

// ModelTimeout returns the per-call model timeout, or zero for none.
func (c AgentConfig) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSec) * time.Second
}

// ToolTimeout returns the per-dispatch tool timeout, or zero for none.
func (c AgentConfig) ToolTimeout() time.Duration {
	return time.Duration(c.ToolTimeoutSec) * time.Second
}

// Load reads configuration from a YAML file. Environment variables of
// the form ${NAME} are expanded before parsing, and defaults are
// applied to anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Default returns the configuration used when no file is found. API
// keys are taken from the conventional environment variables.
func Default() *Config {
	cfg := &Config{
		OpenAI:    OpenAIConfig{APIKey: Secret(os.Getenv("OPENAI_API_KEY"))},
		Anthropic: AnthropicConfig{APIKey: Secret(os.Getenv("ANTHROPIC_API_KEY"))},
		GitHub: GitHubConfig{
			Login: os.Getenv("GITHUB_LOGIN"),
			Token: Secret(os.Getenv("GITHUB_TOKEN")),
		},
	}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.Models.Default == "" {
		c.Models.Default = "gpt-5"
	}
	if len(c.Models.Available) == 0 {
		c.Models.Available = []ModelConfig{{Name: c.Models.Default, Provider: ProviderOpenAI}}
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = ProviderOpenAI
		}
	}
	if c.Anthropic.MaxTokens == 0 {
		c.Anthropic.MaxTokens = 4096
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}

	if c.MCP.Name == "" {
		c.MCP.Name = "github"
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = TransportStdio
	}
	if c.MCP.Transport == TransportStdio && c.MCP.Command == "" {
		c.MCP.Command = "docker"
		c.MCP.Args = []string{
			"run", "-i", "--rm",
			"-e", "GITHUB_PERSONAL_ACCESS_TOKEN",
			"ghcr.io/github/github-mcp-server", "stdio",
		}
	}
	if c.MCP.CredentialEnv == "" {
		c.MCP.CredentialEnv = "GITHUB_PERSONAL_ACCESS_TOKEN"
	}
	if c.MCP.Credential == "" {
		c.MCP.Credential = c.GitHub.Token
	}

	if c.Agent.MaxToolCalls == 0 {
		c.Agent.MaxToolCalls = 25
	}
	if c.Agent.MaxHistory == 0 {
		c.Agent.MaxHistory = 200
	}
	if c.PromptsDir == "" {
		c.PromptsDir = "prompts"
	}
	c.PromptsDir = expandHome(c.PromptsDir)
	c.DataDir = expandHome(c.DataDir)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate reports every configuration problem found, joined into a
// single error. A nil return means the config is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.MCP.Transport {
	case TransportStdio:
		if c.MCP.Command == "" {
			errs = append(errs, errors.New("mcp.command is required for stdio transport"))
		}
	case TransportHTTP, TransportWebSocket:
		if c.MCP.URL == "" {
			errs = append(errs, fmt.Errorf("mcp.url is required for %s transport", c.MCP.Transport))
		}
	default:
		errs = append(errs, fmt.Errorf("mcp.transport %q is not one of stdio, http, websocket", c.MCP.Transport))
	}

	found := false
	for _, m := range c.Models.Available {
		switch m.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderOllama:
		default:
			errs = append(errs, fmt.Errorf("model %q: unknown provider %q", m.Name, m.Provider))
		}
		if m.Name == c.Models.Default {
			found = true
		}
	}
	if !found {
		errs = append(errs, fmt.Errorf("models.default %q is not listed in models.available", c.Models.Default))
	}

	if c.Agent.MaxToolCalls < 0 {
		errs = append(errs, errors.New("agent.max_tool_calls must not be negative"))
	}
	if c.Agent.ModelTimeoutSec < 0 || c.Agent.ToolTimeoutSec < 0 {
		errs = append(errs, errors.New("agent timeouts must not be negative"))
	}

	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ProviderFor returns the provider configured for model, or "" when the
// model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return ""
}
