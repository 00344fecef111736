package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
	if errors.Is(err, ErrNoConfig) {
		t.Error("missing explicit path must not be reported as ErrNoConfig")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	_, err := FindConfig("")
	if !errors.Is(err, ErrNoConfig) {
		t.Fatalf("FindConfig(\"\") = %v, want ErrNoConfig", err)
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: info\n"), 0600)
	t.Chdir(dir)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("github:\n  token: ${ASSISTANT_TEST_TOKEN}\n"), 0600)
	t.Setenv("ASSISTANT_TEST_TOKEN", "ghp_secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GitHub.Token.Reveal() != "ghp_secret123" {
		t.Errorf("token = %q, want %q", cfg.GitHub.Token.Reveal(), "ghp_secret123")
	}
	// The MCP credential falls back to the GitHub token.
	if cfg.MCP.Credential.Reveal() != "ghp_secret123" {
		t.Errorf("mcp credential = %q, want github token", cfg.MCP.Credential.Reveal())
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("{}\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MCP.Transport != TransportStdio {
		t.Errorf("transport = %q, want %q", cfg.MCP.Transport, TransportStdio)
	}
	if cfg.MCP.Command != "docker" {
		t.Errorf("command = %q, want docker", cfg.MCP.Command)
	}
	if cfg.Agent.MaxToolCalls != 25 {
		t.Errorf("max_tool_calls = %d, want 25", cfg.Agent.MaxToolCalls)
	}
	if got := cfg.ProviderFor(cfg.Models.Default); got != ProviderOpenAI {
		t.Errorf("ProviderFor(default) = %q, want %q", got, ProviderOpenAI)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestLoad_WebSocketTransport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(`
mcp:
  name: remote
  transport: websocket
  url: ws://tools.internal:9000/mcp
agent:
  max_tool_calls: 3
  tool_timeout_sec: 30
`), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MCP.Command != "" {
		t.Errorf("command = %q, want empty for websocket transport", cfg.MCP.Command)
	}
	if cfg.Agent.ToolTimeout().Seconds() != 30 {
		t.Errorf("ToolTimeout() = %v, want 30s", cfg.Agent.ToolTimeout())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.MCP.Transport = "carrier-pigeon"
	cfg.Models.Available = append(cfg.Models.Available, ModelConfig{Name: "x", Provider: "bogus"})
	cfg.Agent.MaxToolCalls = -1

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	msg := err.Error()
	for _, want := range []string{"carrier-pigeon", "bogus", "max_tool_calls"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Validate() error %q missing %q", msg, want)
		}
	}
}

func TestSecret_NeverPrinted(t *testing.T) {
	s := Secret("ghp_abcdef")

	if got := fmt.Sprintf("%v %s", s, s); strings.Contains(got, "ghp_") {
		t.Errorf("formatted secret leaked: %q", got)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("connecting", "credential", s)
	if strings.Contains(buf.String(), "ghp_") {
		t.Errorf("logged secret leaked: %q", buf.String())
	}

	if s.Reveal() != "ghp_abcdef" {
		t.Errorf("Reveal() = %q", s.Reveal())
	}
	if Secret("").String() != "" {
		t.Error("empty secret should render empty")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{" debug ", slog.LevelDebug, false},
		{"trace", LevelTrace, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(context.Background(), LevelTrace, "wire")
	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("output %q does not render TRACE level", buf.String())
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in, want string
	}{
		{"~", home},
		{"~/data", filepath.Join(home, "data")},
		{"/var/lib/assistant", "/var/lib/assistant"},
		{"~other/data", "~other/data"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
