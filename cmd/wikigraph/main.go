// Package main provides the wikigraph CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"wikigraph/compile"
	"wikigraph/config"
	"wikigraph/internal/logging"
	"wikigraph/structural"
)

// Version is the current wikigraph CLI version.
var Version = "0.3.0"

// app carries the state shared by every command: the persistent flags,
// the loaded configuration and the logger built from it.
type app struct {
	configPath string
	verbose    bool
	recovery   string

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "wikigraph",
		Short: "Compile wiki markup into a structural and semantic graph",
		Long: `wikigraph compiles Creole-style wiki markup into two views of the
same document: a structural tree (headings, paragraphs, lists, inline
formatting) and a semantic graph of references, tags and backlinks.

Examples:
  wikigraph tree notes.wiki              # Show the structural tree
  wikigraph compile notes.wiki --pretty  # Emit the graph as JSON
  wikigraph query backlinks notes.wiki Home
  wikigraph batch ./wiki --save          # Compile a directory into the store`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: wikigraph.yaml in this or a parent directory)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&a.recovery, "recovery", "", "Recovery strategy: skip, attach_to_parent, create_placeholder")

	root.AddCommand(
		a.tokensCmd(),
		a.treeCmd(),
		a.compileCmd(),
		a.queryCmd(),
		a.walkCmd(),
		a.diffCmd(),
		a.storeCmd(),
		a.batchCmd(),
		a.watchCmd(),
		a.rulesCmd(),
		a.initCmd(),
	)
	return root
}

// setup loads configuration, applies flag overrides and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.NewLoader(logging.Discard()).Load(a.configPath, "")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if a.recovery != "" {
		if _, err := structural.ParseRecoveryStrategy(a.recovery); err != nil {
			return err
		}
		cfg.Recovery = a.recovery
	}
	if a.verbose {
		cfg.Log.Level = "debug"
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func (a *app) compiler() (*compile.Compiler, error) {
	return compile.NewFromConfig(a.cfg, a.logger)
}

// compileFile reads and compiles one document, reporting recorded build
// errors on stderr.
func (a *app) compileFile(cmd *cobra.Command, path string) (*compile.Result, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("reading document: %w", err)
	}
	c, err := a.compiler()
	if err != nil {
		return nil, "", err
	}
	res, err := c.Compile(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", path, err)
	}
	for _, e := range res.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: %s: %s\n", path, e.Line, e.Severity, e.Message)
	}
	return res, string(data), nil
}
