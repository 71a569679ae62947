package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"wikigraph/compile"
	"wikigraph/internal/ignore"
	"wikigraph/internal/watch"
	"wikigraph/store"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		save   bool
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Recompile documents as they change",
		Long: `Watch a directory and recompile every matching document whenever its
content changes. With --save each successful compilation is stored.
Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			ig, err := ignore.LoadFS(os.DirFS(root))
			if err != nil {
				return err
			}
			c, err := a.compiler()
			if err != nil {
				return err
			}

			var db *store.DB
			if save {
				if db, err = a.openStore(dbPath); err != nil {
					return err
				}
				defer db.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(watch.Config{
				Root:    root,
				Include: a.cfg.Batch.Include,
				Skip:    ig.Match,
				Logger:  a.logger,
			}, c)
			if err != nil {
				return fmt.Errorf("creating watcher: %w", err)
			}
			if err := seed(w, root, a.cfg.Batch.Include, ig); err != nil {
				return err
			}
			if err := w.Start(ctx); err != nil {
				return err
			}
			return a.reportWatch(ctx, cmd, root, w, db)
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save every recompiled document to the store")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from config store.path)")
	return cmd
}

// seed records the documents already present so only real edits are
// reported.
func seed(w *watch.Watcher, root, include string, ig *ignore.Matcher) error {
	fsys := os.DirFS(root)
	paths, err := compile.Discover(fsys, include, ig.Skip)
	if err != nil {
		return err
	}
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(p)))
		if err != nil {
			continue
		}
		w.Seed(p, string(data))
	}
	return nil
}

func (a *app) reportWatch(ctx context.Context, cmd *cobra.Command, root string, w *watch.Watcher, db *store.DB) error {
	out := cmd.OutOrStdout()
	for ev := range w.Events() {
		switch {
		case ev.Err != nil:
			fmt.Fprintf(out, "FAIL %s: %v\n", ev.Path, ev.Err)
		case ev.Operation == watch.OpDelete:
			fmt.Fprintf(out, "%-6s %s\n", ev.Operation, ev.Path)
		default:
			res := ev.Result
			fmt.Fprintf(out, "%-6s %s nodes=%d refs=%d tags=%d errors=%d\n",
				ev.Operation, ev.Path, res.Structure.Len(),
				len(res.Semantic.References()), len(res.Semantic.Tags()), len(res.Errors))
			if db != nil {
				path := filepath.ToSlash(filepath.Join(root, filepath.FromSlash(ev.Path)))
				if _, err := db.SaveDocument(ctx, path, ev.Source, res.Structure, res.Semantic); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
