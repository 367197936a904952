// Command relay replays captured Responses API event streams through the
// reconstruction engine and validates JSON documents against schemas.
//
// Usage:
//
//	relay [--config FILE] [-v] replay [-j N] [--json] [--follow] [--out DIR] PATTERN...
//	relay [--config FILE] [-v] validate (--schema FILE | --name NAME) [--strict|--allow-unknown] [--max-depth N] DOC
//
// PATTERN may use ** to match nested directories. DOC may be "-" for stdin.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/fwojciec/relay/yaml"
	"github.com/spf13/cobra"
)

// errReported signals a failure whose details were already printed.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		}
		os.Exit(1)
	}
}

// app holds global flags and the I/O streams shared by subcommands.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "relay",
		Short: "Reconstruct streamed model responses and validate structured output",
		Long: `Relay decodes captured server-sent event streams from the Responses API,
reassembles text and function-call arguments, and validates completed
arguments against JSON Schemas registered in a YAML configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newReplayCmd(a), newValidateCmd(a))
	return root
}

// loadConfig returns the configuration file, or an empty one when no
// --config flag was given.
func (a *app) loadConfig() (yaml.File, error) {
	if a.configPath == "" {
		return yaml.File{}, nil
	}
	f, err := yaml.Load(a.configPath)
	if err != nil {
		return yaml.File{}, fmt.Errorf("load config: %w", err)
	}
	return f, nil
}

// newLogger creates a structured logger with the configured verbosity.
func (a *app) newLogger() *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
}
