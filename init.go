package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/perlgraph/internal/config"
)

type initOptions struct {
	dryRun bool
	force  bool
}

// newInitCmd implements `perlgraph init`, which writes a config file holding
// the default settings.
func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	o := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a " + config.FileName + " with the default settings",
		Long: `Init writes ` + config.FileName + ` to dir (default ".") with every setting at its
default value. extract picks the file up from its input directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(o, dir, stdout, stderr)
		},
	}

	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "print the file instead of writing it")
	cmd.Flags().BoolVar(&o.force, "force", false, "overwrite an existing file")
	return cmd
}

func runInit(o *initOptions, dir string, stdout, stderr io.Writer) error {
	content, err := defaultConfigYAML()
	if err != nil {
		return err
	}

	if o.dryRun {
		_, _ = fmt.Fprint(stdout, string(content))
		return nil
	}

	path := filepath.Join(dir, config.FileName)
	if !o.force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	return nil
}

func defaultConfigYAML() ([]byte, error) {
	body, err := yaml.Marshal(config.Default())
	if err != nil {
		return nil, fmt.Errorf("encoding default config: %w", err)
	}
	header := "# perlgraph configuration. Environment variables PERLGRAPH_<SECTION>_<KEY>\n" +
		"# and command line flags take precedence over these values.\n"
	return append([]byte(header), body...), nil
}
