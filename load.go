package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/phobologic/perlgraph/internal/config"
	"github.com/phobologic/perlgraph/internal/export"
	"github.com/phobologic/perlgraph/internal/model"
	"github.com/phobologic/perlgraph/internal/store"
	"github.com/phobologic/perlgraph/internal/subset"
	"github.com/phobologic/perlgraph/internal/toon"
	"github.com/phobologic/perlgraph/internal/transform"
)

// storeFlagKeys binds the store flags of load and stats to config keys.
var storeFlagKeys = map[string]string{
	"store.path":       "store",
	"store.reset":      "reset",
	"store.batch_size": "batch-size",
	"store.retries":    "retries",
}

var statsFlagKeys = map[string]string{
	"store.path": "store",
}

var errNoStore = errors.New("no store configured (use --store or store.path)")

type loadOptions struct {
	file string
	pkg  string
	top  int
}

func newLoadCmd(gopts *globalOptions, stdout, stderr io.Writer) *cobra.Command {
	o := &loadOptions{}

	cmd := &cobra.Command{
		Use:   "load <ast-file>",
		Short: "Write a saved project AST to the graph store",
		Long: `Load reads a combined project AST written by extract (JSON or YAML,
picked by extension), transforms it into nodes and relationships, and writes
them to the SQLite graph store in batches.

--file, --package and --top narrow the project before it is written; they
combine in that order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, gopts, ".", storeFlagKeys, stderr)
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return errNoStore
			}

			p, err := export.ReadProject(args[0])
			if err != nil {
				return err
			}
			p = narrowProject(p, o)
			if len(p.Files) == 0 {
				return errors.New("no files left to load after filtering")
			}
			g := transform.Transform(p)

			rep, err := persistGraph(cmd.Context(), cfg.Store, g, args[0])
			if err != nil {
				return err
			}

			nodes, rels := rep.Written()
			_, _ = fmt.Fprintf(stdout, "loaded %d nodes and %d relationships into %s\n", nodes, rels, cfg.Store.Path)
			_, _ = fmt.Fprintln(stdout, toon.EncodeCounts(g.NodeCounts(), g.RelationshipCounts()))
			if rerr := rep.Err(); rerr != nil {
				return fmt.Errorf("store: %w", rerr)
			}
			return nil
		},
	}

	d := config.Default()
	f := cmd.Flags()
	f.String("store", "", "SQLite graph store")
	f.Bool("reset", false, "clear the graph store before writing")
	f.Int("batch-size", d.Store.BatchSize, "nodes or relationships per store batch")
	f.Int("retries", d.Store.Retries, "extra attempts for a failed store batch")
	f.StringVar(&o.file, "file", "", "load only files whose path contains this text")
	f.StringVar(&o.pkg, "package", "", "load only packages whose name contains this text, with their callers and callees")
	f.IntVar(&o.top, "top", 0, "load only the N highest-ranked files")
	return cmd
}

func narrowProject(p *model.Project, o *loadOptions) *model.Project {
	if o.file != "" {
		p = subset.ByFile(p, o.file)
	}
	if o.pkg != "" {
		p = subset.ByPackage(p, o.pkg)
	}
	if o.top > 0 {
		p = subset.Top(p, o.top)
	}
	return p
}

func newStatsCmd(gopts *globalOptions, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show node and relationship counts in the graph store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, gopts, ".", statsFlagKeys, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return errNoStore
			}
			if _, err := os.Stat(cfg.Store.Path); err != nil {
				return fmt.Errorf("store: %w", err)
			}

			s, err := store.OpenPath(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			st, err := s.Stats(cmd.Context())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(stdout, "store: %s\nruns: %d\n", s.Path(), st.Runs)
			if r := st.LastRun; r != nil {
				_, _ = fmt.Fprintf(stdout, "last_run: %s %s digest=%s failed_batches=%d\n",
					r.ID, r.StartedAt, r.Digest, r.FailedBatches)
			}
			_, _ = fmt.Fprintln(stdout, toon.EncodeCounts(st.Nodes, st.Relationships))
			return nil
		},
	}

	cmd.Flags().String("store", "", "SQLite graph store")
	return cmd
}
