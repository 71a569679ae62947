package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"wikigraph/cas"
	"wikigraph/compile"
	"wikigraph/graph"
	"wikigraph/internal/ignore"
	"wikigraph/serialize"
	"wikigraph/store"
)

func (a *app) openStore(dbPath string) (*store.DB, error) {
	if dbPath == "" {
		dbPath = a.cfg.Store.Path
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return db, nil
}

func (a *app) storeCmd() *cobra.Command {
	var (
		dbPath   string
		force    bool
		edgeType string
	)
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Save and inspect compiled documents in the SQLite store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default from config store.path)")

	saveCmd := &cobra.Command{
		Use:   "save <file>...",
		Short: "Compile documents and save them",
		Long: `Compile documents and save them.

A document whose source is identical to the newest saved copy at the same
path is not saved again unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			for _, path := range args {
				res, src, err := a.compileFile(cmd, path)
				if err != nil {
					return err
				}
				if !force {
					prev, err := db.FindByDigest(ctx, cas.Blake3HashHex([]byte(src)))
					switch {
					case err == nil && prev.Path == path:
						fmt.Fprintf(cmd.OutOrStdout(), "%s %s (unchanged)\n", prev.ID, path)
						continue
					case err != nil && !errors.Is(err, store.ErrDocumentNotFound):
						return err
					}
				}
				doc, err := db.SaveDocument(ctx, path, src, res.Structure, res.Semantic)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d nodes, %d edges)\n",
					doc.ID, path, doc.NodeCount, doc.EdgeCount)
			}
			return nil
		},
	}
	saveCmd.Flags().BoolVar(&force, "force", false, "Save even when identical source is already stored")
	cmd.AddCommand(saveCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "list [path]",
		Short: "List saved documents, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			var path string
			if len(args) == 1 {
				path = args[0]
			}
			docs, err := db.Documents(cmd.Context(), path)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPATH\tDIGEST\tNODES\tEDGES\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					d.ID, d.Path, cas.ShortHash(d.Digest), d.NodeCount, d.EdgeCount,
					time.UnixMilli(d.CreatedAt).Format(time.RFC3339))
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <doc-id> <kind>",
		Short: "List the stored nodes of one kind (e.g. REFERENCE, HEADING)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := graph.ParseKind(args[1])
			if !ok {
				return fmt.Errorf("unknown node kind %q", args[1])
			}
			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			if _, err := db.Document(ctx, args[0]); err != nil {
				return err
			}
			nodes, err := db.NodesByKind(ctx, args[0], kind)
			if err != nil {
				return err
			}
			for _, n := range nodes {
				in, err := db.EdgesTo(ctx, args[0], n.ID, graph.EdgeSemanticLink)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s line=%d %q links=%d\n", n.ID, n.Line, n.Content, len(in))
			}
			return nil
		},
	})

	edgesCmd := &cobra.Command{
		Use:   "edges <doc-id> <node-id>",
		Short: "List the stored edges of one type leaving and entering a node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, ok := graph.ParseEdgeType(strings.ToUpper(edgeType))
			if !ok {
				return fmt.Errorf("unknown edge type %q", edgeType)
			}
			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := cmd.Context()
			docID, nodeID := args[0], args[1]
			if _, err := db.Document(ctx, docID); err != nil {
				return err
			}
			out, err := db.EdgesFrom(ctx, docID, nodeID, typ)
			if err != nil {
				return err
			}
			in, err := db.EdgesTo(ctx, docID, nodeID, typ)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range out {
				fmt.Fprintf(w, "-> %s %s %q\n", e.Target, e.Type, e.Label)
			}
			for _, e := range in {
				fmt.Fprintf(w, "<- %s %s %q\n", e.Source, e.Type, e.Label)
			}
			return nil
		},
	}
	edgesCmd.Flags().StringVar(&edgeType, "type", graph.EdgeSemanticLink.String(), "Edge type (e.g. SEMANTIC_LINK, TAG_RELATION, STRUCTURAL_CHILD)")
	cmd.AddCommand(edgesCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <doc-id>",
		Short: "Delete a saved document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openStore(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.DeleteDocument(cmd.Context(), args[0])
		},
	})
	return cmd
}

func (a *app) batchCmd() *cobra.Command {
	var (
		include string
		workers int
		outDir  string
		save    bool
		dbPath  string
	)
	cmd := &cobra.Command{
		Use:   "batch [dir]",
		Short: "Compile every document under a directory",
		Long: `Compile every document under a directory concurrently.

Files are selected with the include glob (config batch.include) and
filtered by .wikigraphignore. Each document is compiled independently.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			if !cmd.Flags().Changed("include") {
				include = a.cfg.Batch.Include
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Batch.Workers
			}
			if workers < 1 {
				return fmt.Errorf("--workers must be positive")
			}

			fsys := os.DirFS(root)
			ig, err := ignore.LoadFS(fsys)
			if err != nil {
				return err
			}
			paths, err := compile.Discover(fsys, include, ig.Skip)
			if err != nil {
				return err
			}

			c, err := a.compiler()
			if err != nil {
				return err
			}
			results, err := c.CompileFS(cmd.Context(), fsys, paths, workers)
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
			return a.reportBatch(cmd, root, results, outDir, db)
		},
	}
	cmd.Flags().StringVar(&include, "include", "", "Glob of files to compile (default from config)")
	cmd.Flags().IntVarP(&workers, "workers", "j", 0, "Concurrent compilations (default from config)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write <path>.json for each document into this directory")
	cmd.Flags().BoolVar(&save, "save", false, "Save every compiled document to the store")
	cmd.Flags().StringVar(&dbPath, "db", "", "Database path (default from config store.path)")
	return cmd
}

func (a *app) reportBatch(cmd *cobra.Command, root string, results []compile.FileResult, outDir string, db *store.DB) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts := serialize.Options{Pretty: a.cfg.Output.Pretty, Compress: a.cfg.Output.Compress}

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", r.Path, r.Err)
			continue
		}
		res := r.Result
		fmt.Fprintf(out, "ok   %s nodes=%d refs=%d tags=%d errors=%d\n",
			r.Path, res.Structure.Len(), len(res.Semantic.References()),
			len(res.Semantic.Tags()), len(res.Errors))

		if outDir != "" {
			if err := writeJSON(filepath.Join(outDir, filepath.FromSlash(r.Path)+".json"), res, opts); err != nil {
				return err
			}
		}
		if db != nil {
			path := filepath.ToSlash(filepath.Join(root, filepath.FromSlash(r.Path)))
			if _, err := db.SaveDocument(ctx, path, r.Source, res.Structure, res.Semantic); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(out, "%d documents, %d failed\n", len(results), failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

func writeJSON(path string, res *compile.Result, opts serialize.Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return writeFileWith(path, func(w io.Writer) error {
		return serialize.Write(w, serialize.Build(res.Structure, res.Semantic), opts)
	})
}

// writeFileWith creates path and fills it with write. A failed close is
// reported like a failed write.
func writeFileWith(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output: %w", cerr)
		}
	}()
	return write(f)
}
