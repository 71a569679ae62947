package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"wikigraph/diff"
	"wikigraph/graph"
	"wikigraph/lexer"
	"wikigraph/serialize"
	"wikigraph/traverse"
)

func (a *app) tokensCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <file>",
		Short: "Print the block tokens of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading document: %w", err)
			}
			l := lexer.NewBlockLexer(string(data), lexer.WithLogger(a.logger))
			if err := l.Tokenize(); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			fmt.Fprint(cmd.OutOrStdout(), l.String())
			return nil
		},
	}
}

func (a *app) treeCmd() *cobra.Command {
	var layer string
	cmd := &cobra.Command{
		Use:   "tree <file>",
		Short: "Print the structural tree or the semantic summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}
			switch layer {
			case "structural":
				graph.PrintTree(cmd.OutOrStdout(), res.Structure, res.Structure.Root())
			case "semantic":
				fmt.Fprint(cmd.OutOrStdout(), res.Semantic.Summary(false))
			default:
				return fmt.Errorf("unknown layer %q (want structural or semantic)", layer)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&layer, "layer", "structural", "Layer to print: structural or semantic")
	return cmd
}

func (a *app) compileCmd() *cobra.Command {
	var (
		output         string
		pretty         bool
		compress       bool
		structuralOnly bool
	)
	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a document and write the graph as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}

			opts := serialize.Options{Pretty: a.cfg.Output.Pretty, Compress: a.cfg.Output.Compress}
			if cmd.Flags().Changed("pretty") {
				opts.Pretty = pretty
			}
			if cmd.Flags().Changed("zstd") {
				opts.Compress = compress
			}

			sem := res.Semantic
			if structuralOnly {
				sem = nil
			}
			doc := serialize.Build(res.Structure, sem)

			write := func(w io.Writer) error { return serialize.Write(w, doc, opts) }
			if output == "" || output == "-" {
				return write(cmd.OutOrStdout())
			}
			return writeFileWith(output, write)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")
	cmd.Flags().BoolVar(&compress, "zstd", false, "Compress the output with zstd")
	cmd.Flags().BoolVar(&structuralOnly, "structural-only", false, "Omit the semantic layer")
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the semantic graph of a document",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "backlinks <file> <node-id|target>",
		Short: "List the links pointing at a node or link target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}
			sem := res.Semantic
			id := args[1]
			if _, ok := sem.Node(id); !ok {
				ref, found := sem.ReferenceCache()[id]
				if !found {
					return fmt.Errorf("no node or reference %q", id)
				}
				id = ref
			}
			printNodes(cmd.OutOrStdout(), sem.FindBacklinks(id))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "tag <file> <name>",
		Short: "Show a tag and the links that carry it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}
			nodes := res.Semantic.SearchTag(strings.TrimPrefix(args[1], "#"))
			if len(nodes) == 0 {
				return fmt.Errorf("no tag %q", args[1])
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "target <file> <name>",
		Short: "Show a link target and the links pointing at it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}
			nodes := res.Semantic.FindAllLinksToTarget(args[1])
			if len(nodes) == 0 {
				return fmt.Errorf("no target %q", args[1])
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	})
	return cmd
}

func printNodes(w io.Writer, nodes []*graph.Node) {
	for _, n := range nodes {
		fmt.Fprintln(w, n.String())
	}
}

func (a *app) walkCmd() *cobra.Command {
	var (
		layer     string
		order     string
		direction string
		depth     int
		kind      string
		from      string
		to        string
	)
	cmd := &cobra.Command{
		Use:   "walk <file>",
		Short: "Traverse a layer depth- or breadth-first",
		Long: `Traverse the structural tree or the semantic graph of a document.

Without --kind every visited node is printed, indented by depth. With
--kind only matching nodes are listed. With --to the shortest path from
--from (default: the document root) is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := traverse.ParseDirection(direction)
			if err != nil {
				return err
			}
			if order != "dfs" && order != "bfs" {
				return fmt.Errorf("unknown order %q (want dfs or bfs)", order)
			}
			bfs := order == "bfs"

			res, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}

			var l graph.Layer
			var starts []*graph.Node
			switch layer {
			case "structural":
				l = res.Structure
				starts = []*graph.Node{res.Structure.Root()}
			case "semantic":
				l = res.Semantic
				starts = res.Semantic.QueryNodes(func(n *graph.Node) bool { return n.Kind == graph.KindLink })
			default:
				return fmt.Errorf("unknown layer %q (want structural or semantic)", layer)
			}
			if from != "" {
				n, ok := l.Node(from)
				if !ok {
					return fmt.Errorf("no node %q in the %s layer", from, layer)
				}
				starts = []*graph.Node{n}
			}

			e := traverse.New(l, traverse.WithLogger(a.logger))
			out := cmd.OutOrStdout()

			if to != "" {
				if len(starts) != 1 {
					return fmt.Errorf("--to needs a single start node, use --from")
				}
				p, ok := e.ShortestPath(starts[0].ID, to, dir)
				if !ok {
					return fmt.Errorf("no path from %s to %s", starts[0].ID, to)
				}
				fmt.Fprintf(out, "%s (%d hops)\n", p, p.Len())
				return nil
			}

			if kind != "" {
				k, ok := graph.ParseKind(strings.ToUpper(kind))
				if !ok {
					return fmt.Errorf("unknown node kind %q", kind)
				}
				pred := func(n *graph.Node) bool { return n.Kind == k }
				if bfs {
					printNodes(out, e.BFSCollect(starts, dir, depth, pred))
				} else {
					printNodes(out, e.DFSCollect(starts, dir, depth, pred))
				}
				return nil
			}

			visit := func(n *graph.Node, d int) bool {
				fmt.Fprintf(out, "%s%s\n", strings.Repeat("  ", d), n.String())
				return true
			}
			if bfs {
				e.BFSVisit(starts, dir, depth, visit)
			} else {
				e.DFSVisit(starts, dir, depth, visit)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&layer, "layer", "structural", "Layer to walk: structural or semantic")
	cmd.Flags().StringVar(&order, "order", "dfs", "Traversal order: dfs or bfs")
	cmd.Flags().StringVar(&direction, "direction", "forward", "Direction: forward, backward or bidirectional")
	cmd.Flags().IntVar(&depth, "depth", traverse.Unbounded, "Maximum depth (negative for unbounded)")
	cmd.Flags().StringVar(&kind, "kind", "", "Only list nodes of this kind (e.g. LINK, HEADING)")
	cmd.Flags().StringVar(&from, "from", "", "Start node id")
	cmd.Flags().StringVar(&to, "to", "", "Print the shortest path to this node id")
	return cmd
}

func (a *app) diffCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two documents block by block",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, _, err := a.compileFile(cmd, args[0])
			if err != nil {
				return err
			}
			after, _, err := a.compileFile(cmd, args[1])
			if err != nil {
				return err
			}

			d := diff.Compare(
				diff.Snapshot{Name: args[0], Structure: before.Structure, Semantic: before.Semantic},
				diff.Snapshot{Name: args[1], Structure: after.Structure, Semantic: after.Semantic},
			)
			if asJSON {
				data, err := d.FormatJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), d.FormatText())
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the diff as JSON")
	return cmd
}
