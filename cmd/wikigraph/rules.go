package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"wikigraph/config"
	"wikigraph/linkmatch"
)

func (a *app) rulesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage link classification rules",
		Long: `Manage the link rules file (config links.rules_file).

Each rule names a link class and the glob patterns of targets that belong
to it. The first matching rule wins; unmatched targets are external when
they start with http:// or https:// and internal otherwise.`,
	}
	cmd.PersistentFlags().StringVar(&file, "file", "", "Rules file (default from config links.rules_file)")

	rulesPath := func() (string, error) {
		if file != "" {
			return file, nil
		}
		if a.cfg.Links.RulesFile != "" {
			return a.cfg.Links.RulesFile, nil
		}
		return "", fmt.Errorf("no rules file: pass --file or set links.rules_file")
	}
	load := func() (*linkmatch.Matcher, string, error) {
		path, err := rulesPath()
		if err != nil {
			return nil, "", err
		}
		m, err := linkmatch.LoadRulesOrEmpty(path)
		if err != nil {
			return nil, "", err
		}
		return m, path, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := load()
			if err != nil {
				return err
			}
			for _, r := range m.Rules() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", r.Name, strings.Join(r.Patterns, " "))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print the patterns of one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := load()
			if err != nil {
				return err
			}
			r, ok := m.Rule(args[0])
			if !ok {
				return fmt.Errorf("no rule %q in %s", args[0], path)
			}
			for _, p := range r.Patterns {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <pattern>...",
		Short: "Add a rule, or replace the patterns of an existing one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, patterns := args[0], args[1:]
			for _, p := range patterns {
				if !doublestar.ValidatePattern(p) {
					return fmt.Errorf("invalid pattern %q", p)
				}
			}
			m, path, err := load()
			if err != nil {
				return err
			}
			m.AddRule(name, patterns)
			if err := m.SaveRules(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved rule %s to %s\n", name, path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <name>",
		Short: "Remove a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, path, err := load()
			if err != nil {
				return err
			}
			if !m.RemoveRule(args[0]) {
				return fmt.Errorf("no rule %q in %s", args[0], path)
			}
			return m.SaveRules(path)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "classify <target>...",
		Short: "Print the class each target would get",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if file != "" {
				cfg.Links.RulesFile = file
			}
			m, err := cfg.Matcher()
			if err != nil {
				return err
			}
			for _, target := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", target, m.Classify(target))
			}
			return nil
		},
	})
	return cmd
}

func (a *app) initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default " + config.ProjectConfigFile,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.ProjectConfigFile)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.DefaultConfig().SaveToFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	return cmd
}
