package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jaya/github-mcp-openai-assistant/internal/agent"
	"github.com/jaya/github-mcp-openai-assistant/internal/events"
	"github.com/jaya/github-mcp-openai-assistant/internal/llm"
	"github.com/jaya/github-mcp-openai-assistant/internal/mcp"
	"github.com/jaya/github-mcp-openai-assistant/internal/render"
	"github.com/jaya/github-mcp-openai-assistant/internal/repl"
	"github.com/jaya/github-mcp-openai-assistant/internal/transcript"
)

// answerPrinter renders final answers in the selected format.
func answerPrinter(format render.Format) repl.PrintFunc {
	return func(w io.Writer, res *agent.Result) error {
		return render.Answer(w, format, res.Answer, render.AnswerMeta{
			RequestID:    res.RequestID,
			Model:        res.Model,
			Iterations:   res.Iterations,
			ToolCalls:    res.ToolCalls,
			InputTokens:  res.InputTokens,
			OutputTokens: res.OutputTokens,
			ElapsedMS:    res.Elapsed.Milliseconds(),
		})
	}
}

// runChat handles the interactive conversation. The tool-server session
// is released when the conversation ends, however it ends.
func runChat(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, opts options) error {
	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer a.shutdown()

	loop, err := a.newLoop(ctx)
	if err != nil {
		return err
	}
	stop := a.watchEvents()
	defer stop()

	return repl.New(repl.Config{
		In:     stdin,
		Out:    stdout,
		Agent:  loop,
		Print:  answerPrinter(opts.format),
		Logger: a.logger,
	}).Run(ctx)
}

// runAsk answers a single question and exits.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, question string) error {
	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer a.shutdown()

	loop, err := a.newLoop(ctx)
	if err != nil {
		return err
	}
	stop := a.watchEvents()
	res, err := loop.Ask(ctx, question)
	stop()
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	return answerPrinter(opts.format)(stdout, res)
}

// runTools lists the tool server's catalog.
func runTools(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer a.shutdown()

	client, err := a.manager.Acquire(ctx)
	if err != nil {
		return err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}

	if opts.format == render.FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}

	info := client.ServerInfo()
	fmt.Fprintf(stdout, "%s %s: %d tools\n\n", info.Name, info.Version, len(tools))
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, t := range tools {
		fmt.Fprintf(tw, "  %s\t%s\n", t.Name, firstLine(t.Description))
	}
	return tw.Flush()
}

// runCall invokes one tool through the dispatcher, exactly as a model
// request would be routed, and prints the result.
func runCall(ctx context.Context, stdout, stderr io.Writer, opts options, tool, rawArgs string) error {
	var args map[string]any
	if strings.TrimSpace(rawArgs) != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer a.shutdown()

	stop := a.watchEvents()
	a.bus.Emit(events.SourceMCP, events.KindToolCall, map[string]any{
		"method": string(mcp.MethodCallTool),
		"tool":   tool,
	})
	start := time.Now()
	res := a.dispatcher.Execute(ctx, mcp.Call{
		Method: mcp.MethodCallTool,
		Params: mcp.CallParams{Name: tool, Arguments: args},
	})
	a.bus.Emit(events.SourceMCP, events.KindToolDone, map[string]any{
		"method":      string(mcp.MethodCallTool),
		"tool":        tool,
		"ok":          !res.IsError,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	stop()

	if opts.format == render.FormatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprintln(stdout, render.Result(res))
	return err
}

// runHistory lists recent conversations, or prints one in full.
func runHistory(ctx context.Context, stdout, stderr io.Writer, opts options, id string) error {
	a, err := newApp(stderr, opts)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if a.cfg.DataDir == "" {
		return fmt.Errorf("transcripts are disabled: set data_dir in the config")
	}
	if err := a.openStore(); err != nil {
		return err
	}

	if id == "" {
		convs, err := a.store.Recent(ctx, 20)
		if err != nil {
			return err
		}
		if opts.format == render.FormatJSON {
			return json.NewEncoder(stdout).Encode(convs)
		}
		if len(convs) == 0 {
			fmt.Fprintln(stdout, "No conversations recorded.")
			return nil
		}
		tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tUPDATED\tMODEL\tTURNS\tFIRST QUESTION")
		for _, c := range convs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
				c.ID, c.UpdatedAt.Local().Format(time.DateTime), c.Model, c.Turns, c.Title)
		}
		return tw.Flush()
	}

	turns, err := a.store.Turns(ctx, id)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		return fmt.Errorf("conversation %s: %w", id, transcript.ErrNotFound)
	}
	dispatches, err := a.store.Dispatches(ctx, id)
	if err != nil {
		return err
	}
	if opts.format == render.FormatJSON {
		return json.NewEncoder(stdout).Encode(map[string]any{
			"id":         id,
			"turns":      turns,
			"dispatches": dispatches,
		})
	}

	for _, t := range turns {
		if t.Role == llm.RoleSystem {
			continue
		}
		fmt.Fprintf(stdout, "[%s] %s: %s\n", t.CreatedAt.Local().Format(time.TimeOnly), t.Role, t.Content)
	}
	if len(dispatches) > 0 {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, "Tool dispatches:")
		for _, d := range dispatches {
			status := "ok"
			if d.IsError {
				status = "error: " + d.Error
			}
			fmt.Fprintf(stdout, "  %s %s %s (%s) %s\n", d.Method, d.Tool, d.Arguments, d.Duration.Round(time.Millisecond), status)
		}
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
