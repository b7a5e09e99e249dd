// perlgraph extracts the structure of a Perl code base into a project AST
// and a node/relationship graph.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/phobologic/perlgraph/internal/config"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configFile string
	verbose    bool
}

// globalFlagKeys binds persistent flags to config keys.
var globalFlagKeys = map[string]string{
	"log.level":  "log-level",
	"log.format": "log-format",
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(withDefaultCommand(args, root))
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalOptions{}

	root := &cobra.Command{
		Use:   "perlgraph",
		Short: "Extract the structure of a Perl code base",
		Long: `perlgraph segments Perl sources into packages, subroutines, imports and
top-level code, resolves calls that cross file boundaries, and writes the
result as a project AST plus an optional SQLite graph store.

Running perlgraph without a subcommand is the same as "perlgraph extract".`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate("perlgraph {{.Version}}\n")

	pf := root.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default is <input>/"+config.FileName+")")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log at debug level")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "text", "log format: text or json")

	root.AddCommand(
		newExtractCmd(g, stdout, stderr),
		newLoadCmd(g, stdout, stderr),
		newStatsCmd(g, stdout),
		newInitCmd(stdout, stderr),
	)
	return root
}

// withDefaultCommand prefixes args with "extract" unless they already name a
// subcommand or only ask for help or the version.
func withDefaultCommand(args []string, root *cobra.Command) []string {
	known := map[string]bool{"help": true, "completion": true}
	for _, c := range root.Commands() {
		known[c.Name()] = true
		for _, a := range c.Aliases {
			known[a] = true
		}
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			break
		}
		switch a {
		case "-h", "--help", "--version":
			return args
		}
		if strings.HasPrefix(a, "-") {
			if flagsWithValue[a] {
				i++
			}
			continue
		}
		if known[a] {
			return args
		}
		break
	}
	return append([]string{"extract"}, args...)
}

// flagsWithValue lists persistent flags that take a separate value argument.
var flagsWithValue = map[string]bool{
	"--config":     true,
	"--log-level":  true,
	"--log-format": true,
}

// loadConfig reads the configuration for a command run in dir, applies the
// command's bound flags, and installs the configured logger.
func loadConfig(cmd *cobra.Command, g *globalOptions, dir string, keys map[string]string, stderr io.Writer) (*config.Config, error) {
	bound := make(map[string]string, len(globalFlagKeys)+len(keys))
	for k, v := range globalFlagKeys {
		bound[k] = v
	}
	for k, v := range keys {
		bound[k] = v
	}

	cfg, err := config.Load(config.Options{
		Dir:     dir,
		File:    g.configFile,
		FlagSet: cmd.Flags(),
		Flags:   bound,
	})
	if err != nil {
		return nil, err
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	}
	slog.SetDefault(cfg.Log.NewLogger(stderr))
	return cfg, nil
}
