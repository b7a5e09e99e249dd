package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/phobologic/perlgraph/internal/config"
	"github.com/phobologic/perlgraph/internal/discover"
	"github.com/phobologic/perlgraph/internal/export"
	"github.com/phobologic/perlgraph/internal/persist"
	"github.com/phobologic/perlgraph/internal/pipeline"
	"github.com/phobologic/perlgraph/internal/report"
	"github.com/phobologic/perlgraph/internal/store"
	"github.com/phobologic/perlgraph/internal/toon"
	"github.com/phobologic/perlgraph/internal/transform"
)

// extractFlagKeys binds extract flags to config keys.
var extractFlagKeys = map[string]string{
	"output.dir":          "output",
	"output.format":       "format",
	"output.individual":   "individual",
	"output.top":          "top",
	"workers":             "jobs",
	"input.extensions":    "ext",
	"input.exclude":       "exclude",
	"input.recursive":     "recursive",
	"input.max_file_size": "max-file-size",
	"store.path":          "store",
	"store.reset":         "reset",
	"store.batch_size":    "batch-size",
	"store.retries":       "retries",
}

type extractOptions struct {
	noRecursive bool
	progress    bool
	quiet       bool
}

func newExtractCmd(gopts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	o := &extractOptions{}
	d := config.Default()

	cmd := &cobra.Command{
		Use:   "extract [path]",
		Short: "Extract a project AST from Perl files",
		Long: `Extract discovers Perl files under path (default "."), builds the
structural tree of each file, resolves cross-file calls, and writes
combined_project_ast.json and project_summary.json to the output directory.
With --store the transformed graph is also written to a SQLite database.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runExtract(cmd, gopts, o, path, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", d.Output.Dir, "directory for the AST artifacts")
	f.StringP("format", "f", d.Output.Format, "artifact format: json or yaml")
	f.Bool("individual", false, "also write one AST per file under individual_files/")
	f.Int("top", d.Output.Top, "number of ranked files listed in the summary")
	f.IntP("jobs", "j", 0, "parallel workers (default: number of CPUs)")
	f.StringSlice("ext", d.Input.Extensions, "file extensions to include")
	f.StringSlice("exclude", nil, "glob patterns to exclude (slash separated, relative to path)")
	f.BoolP("recursive", "r", true, "search directories recursively")
	f.BoolVar(&o.noRecursive, "no-recursive", false, "disable recursive search")
	f.Int64("max-file-size", d.Input.MaxFileSize, "skip files larger than this many bytes (0 disables)")
	f.String("store", "", "SQLite graph store to write the transformed graph to")
	f.Bool("reset", false, "clear the graph store before writing")
	f.Int("batch-size", d.Store.BatchSize, "nodes or relationships per store batch")
	f.Int("retries", d.Store.Retries, "extra attempts for a failed store batch")
	f.BoolVar(&o.progress, "progress", false, "show a progress bar while parsing")
	f.BoolVarP(&o.quiet, "quiet", "q", false, "do not print the summary")
	return cmd
}

func runExtract(cmd *cobra.Command, gopts *globalOptions, o *extractOptions, path string, stdout, stderr io.Writer) error {
	root, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("input path: %w", err)
	}
	cfgDir := root
	if !info.IsDir() {
		cfgDir = filepath.Dir(root)
	}

	cfg, err := loadConfig(cmd, gopts, cfgDir, extractFlagKeys, stderr)
	if err != nil {
		return err
	}
	if o.noRecursive {
		cfg.Input.Recursive = false
	}
	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	entries, err := discover.Files(root, discover.Options{
		Extensions:  cfg.Input.Extensions,
		Recursive:   cfg.Input.Recursive,
		Exclude:     cfg.Input.Exclude,
		MaxFileSize: cfg.Input.MaxFileSize,
	})
	if err != nil {
		if errors.Is(err, discover.ErrNoFiles) {
			return fmt.Errorf("no Perl files found in %s", path)
		}
		return fmt.Errorf("discovering files: %w", err)
	}

	ctx := cmd.Context()
	var progress pipeline.Progress
	if o.progress {
		bar := newProgressBar(len(entries), stderr)
		defer bar.Finish()
		progress = bar
	}

	res, err := pipeline.Run(ctx, entries, pipeline.Options{Workers: cfg.Workers, Progress: progress})
	if err != nil {
		return err
	}
	for _, fe := range res.Failed {
		_, _ = fmt.Fprintf(stderr, "Warning: %s: %s\n", fe.File, fe.Error)
	}

	written, err := export.WriteProject(cfg.Output.Dir, res.Project, format, cfg.Output.Individual)
	if err != nil {
		return err
	}
	slog.Debug("export.written", "files", len(written), "combined", written[0])

	summary, err := report.Build(res, report.Options{Top: cfg.Output.Top})
	if err != nil {
		return err
	}

	g := transform.Transform(res.Project)
	summary.AddGraph(g)

	if cfg.Store.Path != "" {
		rep, err := persistGraph(ctx, cfg.Store, g, written[0])
		if err != nil {
			return err
		}
		summary.AddPersistence(rep)
		if rerr := rep.Err(); rerr != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: store: %v\n", rerr)
		}
	}

	if _, err := summary.WriteFile(cfg.Output.Dir); err != nil {
		return err
	}

	if !o.quiet {
		_, _ = fmt.Fprintln(stdout, toon.EncodeSummary(filepath.Base(root), summary))
	}
	return nil
}

// persistGraph hands a graph to the SQLite store at cfg.Path inside a
// recorded run.
func persistGraph(ctx context.Context, cfg config.StoreConfig, g *transform.Graph, source string) (*persist.Report, error) {
	s, err := store.OpenPath(cfg.Path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if cfg.Reset {
		if err := s.Reset(ctx); err != nil {
			return nil, fmt.Errorf("reset store: %w", err)
		}
	}
	if _, err := s.BeginRun(ctx, source, store.Digest(g)); err != nil {
		return nil, err
	}

	rep, err := persist.Handoff(ctx, s, g, persist.Options{
		BatchSize:  cfg.BatchSize,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
	})
	if err != nil {
		return nil, err
	}

	nodes, rels := rep.Written()
	if err := s.FinishRun(ctx, nodes, rels, len(rep.Failed())); err != nil {
		return nil, err
	}
	return rep, nil
}

func newProgressBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Parsing files"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)
}
