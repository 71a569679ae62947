package diff

import (
	"fmt"
	"strconv"

	"wikigraph/cas"
	"wikigraph/graph"
	"wikigraph/semantic"
	"wikigraph/structural"
)

// Snapshot is one side of a comparison. Semantic may be nil.
type Snapshot struct {
	Name      string
	Structure *structural.Layer
	Semantic  *semantic.Layer
}

// unit is a comparable block keyed by its structural path.
type unit struct {
	path  string
	node  *graph.Node
	sig   string
	value string
}

// Compare diffs two compiled documents. Blocks are matched by structural
// path (kind and position among same-kind siblings) and compared by
// content hash and metadata. When both sides carry a semantic layer,
// references and tags are compared by target and by inbound link count.
func Compare(before, after Snapshot) *DocumentDiff {
	d := &DocumentDiff{Before: before.Name, After: after.Name}

	d.Units = append(d.Units, diffUnits(blocks(before.Structure), blocks(after.Structure))...)
	if before.Semantic != nil && after.Semantic != nil {
		d.Units = append(d.Units, diffUnits(semanticUnits(before.Semantic), semanticUnits(after.Semantic))...)
	}

	d.ComputeSummary()
	return d
}

func diffUnits(before, after []unit) []UnitDiff {
	old := make(map[string]unit, len(before))
	for _, u := range before {
		old[u.path] = u
	}
	seen := make(map[string]bool, len(after))

	var out []UnitDiff
	for _, u := range after {
		seen[u.path] = true
		prev, ok := old[u.path]
		switch {
		case !ok:
			out = append(out, UnitDiff{
				Kind:   u.node.Kind.String(),
				Path:   u.path,
				Action: ActionAdded,
				After:  u.value,
				Line:   u.node.SourceLine,
			})
		case prev.sig != u.sig:
			out = append(out, UnitDiff{
				Kind:   u.node.Kind.String(),
				Path:   u.path,
				Action: ActionModified,
				Before: prev.value,
				After:  u.value,
				Line:   u.node.SourceLine,
			})
		}
	}
	for _, u := range before {
		if seen[u.path] {
			continue
		}
		out = append(out, UnitDiff{
			Kind:   u.node.Kind.String(),
			Path:   u.path,
			Action: ActionRemoved,
			Before: u.value,
			Line:   u.node.SourceLine,
		})
	}
	return out
}

// blocks lists the block-level nodes of s in document order.
func blocks(s *structural.Layer) []unit {
	if s == nil || s.Root() == nil {
		return nil
	}
	var out []unit
	var walk func(n *graph.Node, path string)
	walk = func(n *graph.Node, path string) {
		counts := make(map[graph.Kind]int)
		for _, id := range n.Children {
			c, ok := s.Node(id)
			if !ok || !isBlock(n.Kind, c.Kind) {
				continue
			}
			p := fmt.Sprintf("%s/%s[%d]", path, c.Kind, counts[c.Kind])
			counts[c.Kind]++
			out = append(out, unit{path: p, node: c, sig: signature(c), value: c.Content})
			walk(c, p)
		}
	}
	walk(s.Root(), "")
	return out
}

// isBlock reports whether a child of kind child under a parent of kind
// parent is a block rather than inline content.
func isBlock(parent, child graph.Kind) bool {
	switch parent {
	case graph.KindDocumentRoot, graph.KindHeading:
		switch child {
		case graph.KindHeading, graph.KindParagraph, graph.KindList,
			graph.KindHorizontalRule, graph.KindVerbatimBlock, graph.KindImage:
			return true
		}
	case graph.KindList:
		return child == graph.KindListItem
	case graph.KindListItem:
		return child == graph.KindList
	}
	return false
}

func signature(n *graph.Node) string {
	sig := n.ContentHash
	if len(n.Metadata) > 0 {
		meta, err := cas.CanonicalJSON(n.Metadata)
		if err == nil {
			sig += string(meta)
		}
	}
	return sig
}

// semanticUnits keys references by target and tags by name. The
// signature is the inbound link count.
func semanticUnits(sem *semantic.Layer) []unit {
	var out []unit
	add := func(path string, n *graph.Node) {
		links := len(sem.SemanticSources(n.ID))
		out = append(out, unit{
			path:  path,
			node:  n,
			sig:   strconv.Itoa(links),
			value: fmt.Sprintf("%s (%d links)", n.Content, links),
		})
	}
	for _, n := range sem.References() {
		add("reference:"+n.Meta(graph.MetaTarget), n)
	}
	for _, n := range sem.Tags() {
		add("tag:"+n.Content, n)
	}
	return out
}
