package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
)

// File names looked up in the prompts directory.
const (
	SystemFile = "system.txt"
	ToolsFile  = "tools.json"
)

// Set is the prompt material loaded from a prompts directory.
type Set struct {
	// System is the system prompt.
	System string
	// Tools is the tool catalog hint, compacted JSON, or empty.
	Tools string
}

// Load reads the prompt set from dir. A missing system.txt falls back to
// BaseSystemPrompt; a missing tools.json yields no catalog hint. A
// tools.json that is not valid JSON is an error.
func Load(dir string, logger *slog.Logger) (Set, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set := Set{System: BaseSystemPrompt()}
	if dir == "" {
		return set, nil
	}

	system, err := readOptional(filepath.Join(dir, SystemFile))
	if err != nil {
		return Set{}, err
	}
	if s := strings.TrimSpace(system); s != "" {
		set.System = s
		logger.Debug("loaded system prompt", "path", filepath.Join(dir, SystemFile), "len", len(s))
	}

	tools, err := readOptional(filepath.Join(dir, ToolsFile))
	if err != nil {
		return Set{}, err
	}
	if strings.TrimSpace(tools) != "" {
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(tools)); err != nil {
			return Set{}, fmt.Errorf("parse %s: %w", ToolsFile, err)
		}
		set.Tools = buf.String()
		logger.Debug("loaded tool catalog hint", "path", filepath.Join(dir, ToolsFile), "len", buf.Len())
	}
	return set, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// identityTurn names the GitHub user the assistant acts for.
type identityTurn struct {
	Type        string  `json:"type"`
	GitHubLogin *string `json:"github_login"`
}

// IdentityMessage renders the identity turn. An empty login is sent as
// null so the model knows it is unknown.
func IdentityMessage(login string) string {
	turn := identityTurn{Type: "identity"}
	if login != "" {
		turn.GitHubLogin = &login
	}
	data, _ := json.Marshal(turn)
	return string(data)
}

// Seed returns the system turns that open a conversation: the system
// prompt, the tool catalog hint when present, and the identity.
func (s Set) Seed(login string) []llm.Message {
	seed := []llm.Message{{Role: llm.RoleSystem, Content: s.System}}
	if s.Tools != "" {
		seed = append(seed, llm.Message{Role: llm.RoleSystem, Content: s.Tools})
	}
	return append(seed, llm.Message{Role: llm.RoleSystem, Content: IdentityMessage(login)})
}
