package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jaya/github-mcp-openai-assistant/internal/agent"
	"github.com/jaya/github-mcp-openai-assistant/internal/config"
	"github.com/jaya/github-mcp-openai-assistant/internal/events"
	"github.com/jaya/github-mcp-openai-assistant/internal/identity"
	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
	"github.com/jaya/github-mcp-openai-assistant/internal/mcp"
	"github.com/jaya/github-mcp-openai-assistant/internal/prompts"
	"github.com/jaya/github-mcp-openai-assistant/internal/transcript"
)

// transcriptFile is the transcript database name inside data_dir.
const transcriptFile = "transcripts.db"

// app holds the components shared by the commands. Close releases the
// tool-server session and the transcript store.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	manager    *mcp.Manager
	dispatcher *mcp.Dispatcher
	store      *transcript.Store // nil when transcripts are disabled
	bus        *events.Bus
	stderr     io.Writer
}

// loadConfig locates and parses the YAML configuration file. With no
// explicit path and no file in the search paths, the environment-based
// default configuration is used.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if errors.Is(err, config.ErrNoConfig) {
		return config.Default(), "", nil
	}
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newApp loads and validates configuration and wires the session
// manager. Nothing connects until the first tool request.
func newApp(stderr io.Writer, opts options) (*app, error) {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := config.NewLogger(stderr, level, cfg.LogFormat)
	if cfgPath != "" {
		logger.Debug("config loaded", "path", cfgPath)
	} else {
		logger.Debug("no config file found, using defaults")
	}

	manager := mcp.NewManager(cfg.MCP.Name, mcp.Dialer(cfg.MCP, logger), logger)

	a := &app{
		cfg:        cfg,
		logger:     logger,
		manager:    manager,
		dispatcher: mcp.NewDispatcher(manager, logger),
		stderr:     stderr,
	}
	if opts.verbose {
		a.bus = events.New()
	}
	return a, nil
}

// openStore opens the transcript store when data_dir is set.
func (a *app) openStore() error {
	if a.cfg.DataDir == "" || a.store != nil {
		return nil
	}
	if err := os.MkdirAll(a.cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	store, err := transcript.NewStore(filepath.Join(a.cfg.DataDir, transcriptFile))
	if err != nil {
		return fmt.Errorf("open transcript store: %w", err)
	}
	a.store = store
	return nil
}

// newLoop builds the agent loop: model providers, seed prompts with the
// resolved identity, and the transcript recorder.
func (a *app) newLoop(ctx context.Context) (*agent.Loop, error) {
	client, err := llm.New(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("model providers: %w", err)
	}

	set, err := prompts.Load(a.cfg.PromptsDir, a.logger)
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	login := identity.NewResolver(a.cfg.GitHub, nil, a.logger).Resolve(ctx)

	if err := a.openStore(); err != nil {
		a.logger.Warn("transcripts disabled", "error", err)
	}

	lc := agent.Config{
		LLM:          client,
		Model:        a.cfg.Models.Default,
		Dispatcher:   a.dispatcher,
		Seed:         set.Seed(login),
		MaxToolCalls: a.cfg.Agent.MaxToolCalls,
		MaxHistory:   a.cfg.Agent.MaxHistory,
		ModelTimeout: a.cfg.Agent.ModelTimeout(),
		ToolTimeout:  a.cfg.Agent.ToolTimeout(),
		Events:       a.bus,
		Logger:       a.logger,
	}
	// A nil *transcript.Store must not become a non-nil Recorder.
	if a.store != nil {
		lc.Recorder = a.store
	}
	return agent.NewLoop(lc), nil
}

// watchEvents prints bus events to stderr. The returned function
// unsubscribes and waits until every queued event has been printed.
func (a *app) watchEvents() func() {
	if a.bus == nil {
		return func() {}
	}
	sub := a.bus.Subscribe(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sub.C {
			fmt.Fprintf(a.stderr, "· %s\n", e)
		}
	}()
	return func() {
		a.bus.Unsubscribe(sub)
		<-done
	}
}

// shutdown closes the app for use in defer, logging any error.
func (a *app) shutdown() {
	if err := a.Close(); err != nil {
		a.logger.Error("shutdown failed", "error", err)
	}
}

// Close releases the tool-server session and the transcript store.
func (a *app) Close() error {
	err := a.manager.Release()
	if a.store != nil {
		err = errors.Join(err, a.store.Close())
	}
	return err
}
