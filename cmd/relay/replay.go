package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/relay"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/schema"
	"github.com/fwojciec/relay/stream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type replayOptions struct {
	jobs   int
	json   bool
	follow bool
	outDir string
}

func newReplayCmd(a *app) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay PATTERN...",
		Short: "Replay captured event streams",
		Long: `Replay reads each file matching PATTERN as a captured event stream,
runs it through the engine and prints one summary per stream. Tool call
arguments are validated against the schema registered under the function
name. Refused streams are reported but are a legitimate outcome; the
command fails when any stream fails or is cancelled.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.replay(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "Number of streams replayed in parallel")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&opts.follow, "follow", false, "Print events as they are reconstructed (implies -j 1)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Directory to save one result file per stream")
	return cmd
}

func (a *app) replay(ctx context.Context, patterns []string, opts replayOptions) error {
	if opts.jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", opts.jobs)
	}
	if opts.follow {
		opts.jobs = 1
	}
	paths, err := expand(patterns)
	if err != nil {
		return err
	}
	f, err := a.loadConfig()
	if err != nil {
		return err
	}
	reg, err := f.Registry()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}
	log := a.newLogger()

	var follow io.Writer
	if opts.follow {
		follow = a.stdout
	}

	// The registry is read-only after compilation and shared by all streams.
	results := make([]relay.Result, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.jobs)
	for i, path := range paths {
		g.Go(func() error {
			res, err := replayFile(ctx, path, f.Config, reg, log, follow, opts.json)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = res
			if opts.outDir != "" {
				out := filepath.Join(opts.outDir, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))+".json")
				if err := relayjson.Save(out, res); err != nil {
					return fmt.Errorf("%s: save result: %w", path, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := a.printResults(paths, results, opts.json); err != nil {
		return err
	}
	var failed, refused int
	for _, r := range results {
		switch r.Status {
		case relay.StatusCompleted:
		case relay.StatusRefused:
			refused++
		default:
			failed++
		}
	}
	if refused > 0 && !opts.json {
		fmt.Fprintf(a.stderr, "%s of %d refused\n", plural(refused, "stream"), len(results))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d streams did not complete", failed, len(results))
	}
	return nil
}

// expand resolves glob patterns into a sorted list of unique file paths.
func expand(patterns []string) ([]string, error) {
	var paths []string
	for _, p := range patterns {
		if !doublestar.ValidatePattern(filepath.ToSlash(p)) {
			return nil, fmt.Errorf("invalid glob pattern: %s", p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", p, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %s", p)
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

// replayFile runs one captured stream through the engine. Stream failures
// are reported in the result; only I/O setup errors are returned.
func replayFile(ctx context.Context, path string, cfg relay.Config, reg *schema.Registry, log *slog.Logger, follow io.Writer, asJSON bool) (relay.Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return relay.Result{}, err
	}
	s, err := stream.New(ctx, stream.FromReader(file, 0),
		stream.WithConfig(cfg),
		stream.WithValidator(reg),
		stream.WithLogger(log),
		stream.WithStreamID(path),
	)
	if err != nil {
		file.Close()
		return relay.Result{}, err
	}
	defer s.Close()

	var enc *relayjson.Encoder
	if follow != nil && asJSON {
		enc = relayjson.NewEncoder(follow)
	}
	for evt, err := range s.All() {
		if err != nil || follow == nil {
			continue
		}
		if enc != nil {
			if err := enc.Encode(evt); err != nil {
				return relay.Result{}, err
			}
			continue
		}
		printEvent(follow, evt)
	}
	return s.Result()
}

func printEvent(w io.Writer, evt relay.Event) {
	switch e := evt.(type) {
	case relay.EventOutputTextDelta:
		fmt.Fprint(w, e.Delta)
	case relay.EventOutputTextCompleted:
		fmt.Fprintln(w)
	case relay.EventFunctionCallCompleted:
		fmt.Fprintf(w, "→ %s(%s)\n", e.Name, e.Arguments)
	case relay.EventRefused:
		fmt.Fprintf(w, "refused: %s\n", e.Reason)
	}
}

func (a *app) printResults(paths []string, results []relay.Result, asJSON bool) error {
	if asJSON {
		for _, r := range results {
			data, err := relayjson.MarshalResult(r)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s\n", data)
		}
		return nil
	}
	st := newStyles(defaultTheme())
	for i, r := range results {
		printSummary(a.stdout, st, paths[i], r)
	}
	return nil
}

func printSummary(w io.Writer, st styles, path string, r relay.Result) {
	fmt.Fprintf(w, "%s %s", st.status(r.Status), st.bold.Render(path))
	if r.ResponseID != "" {
		fmt.Fprintf(w, " %s", st.muted.Render(r.ResponseID))
	}
	if n := r.Usage.Total(); n > 0 {
		fmt.Fprintf(w, " %s", st.muted.Render(fmt.Sprintf("%d tokens", n)))
	}
	fmt.Fprintln(w)

	if r.Err != nil {
		fmt.Fprintf(w, "  %s\n", st.failure.Render(r.Err.Error()))
	} else if r.Status == relay.StatusRefused {
		fmt.Fprintf(w, "  %s\n", st.warning.Render("refusal: "+r.Reason))
	}
	if text := r.Text(); text != "" {
		fmt.Fprintf(w, "  text: %s\n", text)
	}
	for _, c := range r.ToolCalls {
		fmt.Fprintf(w, "  call %s %s %s", st.muted.Render(c.ID), st.call.Render(c.Name), c.Arguments)
		printValidation(w, st, c.Validation)
	}
	if v := r.OutputValidation; v != nil {
		fmt.Fprintf(w, "  output %s", st.muted.Render(v.Schema))
		printValidation(w, st, v)
	}
	for _, p := range r.Partial {
		if p.IsCall() {
			fmt.Fprintf(w, "  partial call %s %s %s\n", st.muted.Render(p.CallID), st.call.Render(p.Name), p.Content)
		} else {
			fmt.Fprintf(w, "  partial text[%d] %s\n", p.ItemIndex, p.Content)
		}
	}
}

func printValidation(w io.Writer, st styles, v *relay.ValidationResult) {
	switch {
	case v == nil:
		fmt.Fprintln(w)
	case v.Valid():
		fmt.Fprintf(w, " %s\n", st.success.Render("valid"))
	default:
		fmt.Fprintf(w, " %s\n", st.failure.Render(plural(len(v.Violations), "violation")))
		for _, viol := range v.Violations {
			fmt.Fprintf(w, "    %s\n", viol)
		}
	}
}
