// Package repl runs the interactive conversation on a terminal.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jaya/github-mcp-openai-assistant/internal/agent"
)

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

// exitWords end the session, compared case-insensitively.
var exitWords = map[string]bool{"exit": true, "quit": true, "bye": true, "q": true}

// ResetCommand clears the conversation without leaving the session.
const ResetCommand = "/reset"

// Agent answers questions over a running conversation. *agent.Loop is
// the production implementation.
type Agent interface {
	Ask(ctx context.Context, question string) (*agent.Result, error)
	Reset()
}

// PrintFunc writes a final answer. The default prints the markdown.
type PrintFunc func(w io.Writer, res *agent.Result) error

// Config wires a REPL.
type Config struct {
	In     io.Reader
	Out    io.Writer
	Agent  Agent
	Print  PrintFunc
	Logger *slog.Logger
}

// REPL reads questions line by line and prints the agent's answers.
type REPL struct {
	in     io.Reader
	out    io.Writer
	agent  Agent
	print  PrintFunc
	logger *slog.Logger
}

// New creates a REPL.
func New(cfg Config) *REPL {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	printFn := cfg.Print
	if printFn == nil {
		printFn = func(w io.Writer, res *agent.Result) error {
			_, err := fmt.Fprintln(w, res.Answer)
			return err
		}
	}
	return &REPL{in: cfg.In, out: cfg.Out, agent: cfg.Agent, print: printFn, logger: logger}
}

// Run prompts until an exit word, end of input, or ctx cancellation.
// A failed question is reported and the session continues.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, "🤖 GitHub Code Assistant - Interactive Mode")
	fmt.Fprintln(r.out, "Type 'exit', 'quit', or 'bye' to end the conversation")
	fmt.Fprintln(r.out, strings.Repeat("=", 50))

	lines := r.readLines(ctx)
	for {
		fmt.Fprint(r.out, "\nUser: ")

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\n👋 Goodbye!")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(r.out, "\n👋 Goodbye!")
			return nil
		}

		question := strings.TrimSpace(line)
		switch {
		case question == "":
			continue
		case exitWords[strings.ToLower(question)]:
			fmt.Fprintln(r.out, "👋 Goodbye!")
			return nil
		case question == ResetCommand:
			r.agent.Reset()
			fmt.Fprintln(r.out, "Assistant: Conversation cleared.")
			continue
		}

		fmt.Fprintln(r.out, "Assistant: Thinking ...")
		res, err := r.agent.Ask(ctx, question)
		if err != nil {
			if ctx.Err() != nil {
				fmt.Fprintln(r.out, "\n👋 Goodbye!")
				return nil
			}
			r.logger.Warn("question failed", "error", err)
			fmt.Fprintf(r.out, "Assistant: Sorry, something went wrong: %v\n", err)
			continue
		}

		fmt.Fprint(r.out, "Assistant: ")
		if err := r.print(r.out, res); err != nil {
			return fmt.Errorf("print answer: %w", err)
		}
	}
}

// readLines feeds input lines to a channel that closes at end of input.
// The reader goroutine exits when ctx is done or input ends.
func (r *REPL) readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
			r.logger.Warn("reading input failed", "error", err)
		}
	}()
	return lines
}
