// Assistant answers questions about GitHub by letting a language model
// drive a GitHub MCP tool server.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]); without one, API keys
// and the GitHub token are read from the environment.
//
// Usage:
//
//	assistant                       Start an interactive conversation
//	assistant chat                  Same as above
//	assistant ask <question>        Ask a single question
//	assistant tools                 List the tool server's tools
//	assistant call <tool> [json]    Call one tool directly
//	assistant history [id]          List or show recorded conversations
//	assistant init [dir]            Write a starter config and prompt
//	assistant version               Print version and build information
//	assistant -o json version       Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jaya/github-mcp-openai-assistant/internal/buildinfo"
	"github.com/jaya/github-mcp-openai-assistant/internal/render"
)

// main constructs the OS-level environment and delegates to [run], so
// the whole lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:])
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the global flags shared by every command.
type options struct {
	configPath string
	format     render.Format
	verbose    bool
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package's global state gets in the way of calling run from parallel
// tests, and the flag surface is small.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	var opts options
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			opts.configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-v" || args[i] == "--verbose":
			opts.verbose = true
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	format, err := render.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	opts.format = format

	switch command {
	case "", "chat":
		return runChat(ctx, stdin, stdout, stderr, opts)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: assistant ask <question>")
		}
		return runAsk(ctx, stdout, stderr, opts, strings.Join(cmdArgs, " "))
	case "tools":
		return runTools(ctx, stdout, stderr, opts)
	case "call":
		if len(cmdArgs) == 0 || len(cmdArgs) > 2 {
			return fmt.Errorf("usage: assistant call <tool> [json-arguments]")
		}
		rawArgs := ""
		if len(cmdArgs) == 2 {
			rawArgs = cmdArgs[1]
		}
		return runCall(ctx, stdout, stderr, opts, cmdArgs[0], rawArgs)
	case "history":
		id := ""
		if len(cmdArgs) > 0 {
			id = cmdArgs[0]
		}
		return runHistory(ctx, stdout, stderr, opts, id)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, opts.format)
	case "help":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, format render.Format) error {
	info := buildinfo.Info()
	if format == render.FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Assistant - GitHub questions answered through an MCP tool server")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: assistant [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  chat                  Interactive conversation (default)")
	fmt.Fprintln(w, "  ask <question>        Ask a single question")
	fmt.Fprintln(w, "  tools                 List the tool server's tools")
	fmt.Fprintln(w, "  call <tool> [json]    Call one tool with JSON arguments")
	fmt.Fprintln(w, "  history [id]          List recent conversations or show one")
	fmt.Fprintln(w, "  init [dir]            Write config.yaml and prompts/ (default: .)")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>        Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt      Output format: text (default), json or html")
	fmt.Fprintln(w, "  -v, --verbose         Print agent progress events to stderr")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/assistant/config.yaml, /etc/assistant/config.yaml")
	return nil
}
