// Package semantic derives the link and tag graph from a structural tree.
package semantic

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"wikigraph/graph"
	"wikigraph/linkmatch"
)

// Edge labels written by extraction.
const (
	LabelLinksTo    = "links_to"
	LabelTagged     = "tagged"
	LabelLinkedFrom = "linked_from"
)

// Option configures a Layer.
type Option func(*Layer)

// WithLogger sets the layer's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Layer) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMatcher sets the matcher used to classify reference targets.
func WithMatcher(m *linkmatch.Matcher) Option {
	return func(l *Layer) { l.matcher = m }
}

// WithBacklinks makes extraction append a BACKLINK edge, reference to
// link, for every SEMANTIC_LINK edge.
func WithBacklinks(enabled bool) Option {
	return func(l *Layer) { l.backlinks = enabled }
}

// Layer holds REFERENCE and TAG nodes, the link nodes that point at them,
// and an append-only edge list indexed in both directions.
type Layer struct {
	nodes map[string]*graph.Node
	order []string

	edges    []graph.Edge
	outgoing map[string][]int
	incoming map[string][]int

	refCache map[string]string // target -> REFERENCE id
	tagCache map[string]string // tag name -> TAG id

	matcher   *linkmatch.Matcher
	backlinks bool
	logger    *slog.Logger
}

// New creates an empty semantic layer.
func New(opts ...Option) *Layer {
	l := &Layer{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "semantic"))
	l.reset()
	return l
}

func (l *Layer) reset() {
	l.nodes = make(map[string]*graph.Node)
	l.order = nil
	l.edges = nil
	l.outgoing = make(map[string][]int)
	l.incoming = make(map[string][]int)
	l.refCache = make(map[string]string)
	l.tagCache = make(map[string]string)
}

// Extract discards all semantic state and rebuilds it from the tree under
// root. Links whose url starts with '#' become tags; all others become
// references.
func (l *Layer) Extract(tree graph.Layer, root *graph.Node) {
	l.reset()
	if root == nil {
		return
	}
	l.logger.Debug("semantic extraction started", slog.String("root", root.ID))

	l.extractLinks(tree, root)
	l.extractTags(tree, root)

	if l.backlinks {
		n := len(l.edges)
		for i := 0; i < n; i++ {
			e := l.edges[i]
			if e.Type == graph.EdgeSemanticLink {
				l.edges = append(l.edges, graph.Edge{
					Source: e.Target,
					Target: e.Source,
					Type:   graph.EdgeBacklink,
					Label:  LabelLinkedFrom,
				})
			}
		}
	}
	l.RebuildIndex()

	l.logger.Debug("semantic extraction ended",
		slog.Int("references", len(l.refCache)),
		slog.Int("tags", len(l.tagCache)),
		slog.Int("edges", len(l.edges)))
}

func (l *Layer) extractLinks(tree graph.Layer, n *graph.Node) {
	if n.Kind == graph.KindLink {
		target := n.Meta(graph.MetaURL)
		if target != "" && !strings.HasPrefix(target, "#") {
			ref := l.reference(target, n.SourceLine)
			l.register(n)
			l.edges = append(l.edges, graph.Edge{
				Source: n.ID,
				Target: ref.ID,
				Type:   graph.EdgeSemanticLink,
				Label:  LabelLinksTo,
			})
		}
	}
	for _, c := range tree.ForwardNeighbors(n.ID) {
		l.extractLinks(tree, c)
	}
}

func (l *Layer) extractTags(tree graph.Layer, n *graph.Node) {
	if n.Kind == graph.KindLink {
		if name, ok := strings.CutPrefix(n.Meta(graph.MetaURL), "#"); ok && name != "" {
			tag := l.tag(name, n.SourceLine)
			l.register(n)
			l.edges = append(l.edges, graph.Edge{
				Source: n.ID,
				Target: tag.ID,
				Type:   graph.EdgeTagRelation,
				Label:  LabelTagged,
			})
		}
	}
	for _, c := range tree.ForwardNeighbors(n.ID) {
		l.extractTags(tree, c)
	}
}

// reference returns the REFERENCE node for target, creating it once.
func (l *Layer) reference(target string, line int) *graph.Node {
	if id, ok := l.refCache[target]; ok {
		return l.nodes[id]
	}
	ref := graph.NewNode(graph.KindReference, target, line)
	ref.SetMeta(graph.MetaTarget, target).
		SetMeta(graph.MetaLinkType, l.matcher.Classify(target))
	l.register(ref)
	l.refCache[target] = ref.ID
	return ref
}

// tag returns the TAG node for name, creating it once.
func (l *Layer) tag(name string, line int) *graph.Node {
	if id, ok := l.tagCache[name]; ok {
		return l.nodes[id]
	}
	tag := graph.NewNode(graph.KindTag, name, line)
	tag.SetMeta(graph.MetaTagName, name)
	l.register(tag)
	l.tagCache[name] = tag.ID
	return tag
}

func (l *Layer) register(n *graph.Node) {
	if _, ok := l.nodes[n.ID]; ok {
		return
	}
	l.nodes[n.ID] = n
	l.order = append(l.order, n.ID)
}

// RebuildIndex recomputes the outgoing and incoming indices from the
// edge list.
func (l *Layer) RebuildIndex() {
	l.outgoing = make(map[string][]int, len(l.nodes))
	l.incoming = make(map[string][]int, len(l.nodes))
	for i, e := range l.edges {
		l.outgoing[e.Source] = append(l.outgoing[e.Source], i)
		l.incoming[e.Target] = append(l.incoming[e.Target], i)
	}
}

// AddEdge appends an edge between two nodes already in the layer.
func (l *Layer) AddEdge(source, target string, typ graph.EdgeType, label string) error {
	if _, ok := l.nodes[source]; !ok {
		return fmt.Errorf("edge source %s not in semantic layer", source)
	}
	if _, ok := l.nodes[target]; !ok {
		return fmt.Errorf("edge target %s not in semantic layer", target)
	}
	i := len(l.edges)
	l.edges = append(l.edges, graph.Edge{Source: source, Target: target, Type: typ, Label: label})
	l.outgoing[source] = append(l.outgoing[source], i)
	l.incoming[target] = append(l.incoming[target], i)
	return nil
}

// AddCrossReference registers both nodes and links them with a
// CROSS_REFERENCE edge.
func (l *Layer) AddCrossReference(from, to *graph.Node, label string) error {
	if from == nil || to == nil {
		return fmt.Errorf("cross reference needs two nodes")
	}
	l.register(from)
	l.register(to)
	return l.AddEdge(from.ID, to.ID, graph.EdgeCrossReference, label)
}

// FindBacklinks returns the distinct sources of edges into id, in edge
// order. Materialized BACKLINK edges are not counted.
func (l *Layer) FindBacklinks(id string) []*graph.Node {
	var out []*graph.Node
	seen := make(map[string]bool)
	for _, i := range l.incoming[id] {
		e := l.edges[i]
		if e.Type == graph.EdgeBacklink || seen[e.Source] {
			continue
		}
		if n, ok := l.nodes[e.Source]; ok {
			seen[e.Source] = true
			out = append(out, n)
		}
	}
	return out
}

// SearchTag returns the TAG node named name followed by the nodes that
// carry it. It returns nil if no such tag exists.
func (l *Layer) SearchTag(name string) []*graph.Node {
	var out []*graph.Node
	for _, tag := range l.QueryNodes(func(n *graph.Node) bool {
		return n.Kind == graph.KindTag && n.Content == name
	}) {
		out = append(out, tag)
		out = append(out, l.FindBacklinks(tag.ID)...)
	}
	return out
}

// FindAllLinksToTarget returns the REFERENCE node for target followed by
// the links pointing at it.
func (l *Layer) FindAllLinksToTarget(target string) []*graph.Node {
	var out []*graph.Node
	for _, ref := range l.QueryNodes(func(n *graph.Node) bool {
		return n.Kind == graph.KindReference && n.Meta(graph.MetaTarget) == target
	}) {
		out = append(out, ref)
		out = append(out, l.FindBacklinks(ref.ID)...)
	}
	return out
}

// SemanticTargets returns the targets of the edges leaving id.
func (l *Layer) SemanticTargets(id string) []*graph.Node {
	return l.resolve(l.outgoing[id], func(e graph.Edge) string { return e.Target })
}

// SemanticSources returns the sources of the edges entering id.
func (l *Layer) SemanticSources(id string) []*graph.Node {
	return l.resolve(l.incoming[id], func(e graph.Edge) string { return e.Source })
}

func (l *Layer) resolve(idx []int, end func(graph.Edge) string) []*graph.Node {
	var out []*graph.Node
	for _, i := range idx {
		if n, ok := l.nodes[end(l.edges[i])]; ok {
			out = append(out, n)
		}
	}
	return out
}

// RemoveNode deletes id, every edge touching it and any cache entry
// pointing at it, then rebuilds the indices.
func (l *Layer) RemoveNode(id string) error {
	if _, ok := l.nodes[id]; !ok {
		return fmt.Errorf("node %s not in semantic layer", id)
	}
	delete(l.nodes, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}

	kept := l.edges[:0]
	for _, e := range l.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	l.edges = kept

	for k, v := range l.refCache {
		if v == id {
			delete(l.refCache, k)
		}
	}
	for k, v := range l.tagCache {
		if v == id {
			delete(l.tagCache, k)
		}
	}

	l.RebuildIndex()
	l.logger.Debug("semantic node removed", slog.String("id", id), slog.Int("edges", len(l.edges)))
	return nil
}

// Node looks a node up by id.
func (l *Layer) Node(id string) (*graph.Node, bool) {
	n, ok := l.nodes[id]
	return n, ok
}

// QueryNodes returns the nodes matching predicate in registration order.
func (l *Layer) QueryNodes(predicate func(*graph.Node) bool) []*graph.Node {
	var out []*graph.Node
	for _, id := range l.order {
		if n := l.nodes[id]; predicate(n) {
			out = append(out, n)
		}
	}
	return out
}

// ForwardNeighbors is SemanticTargets.
func (l *Layer) ForwardNeighbors(id string) []*graph.Node { return l.SemanticTargets(id) }

// BackwardNeighbors is SemanticSources.
func (l *Layer) BackwardNeighbors(id string) []*graph.Node { return l.SemanticSources(id) }

// Nodes returns every node in registration order.
func (l *Layer) Nodes() []*graph.Node {
	return l.QueryNodes(func(*graph.Node) bool { return true })
}

// Len returns the number of nodes in the layer.
func (l *Layer) Len() int { return len(l.nodes) }

// References returns the REFERENCE nodes.
func (l *Layer) References() []*graph.Node {
	return l.QueryNodes(func(n *graph.Node) bool { return n.Kind == graph.KindReference })
}

// Tags returns the TAG nodes.
func (l *Layer) Tags() []*graph.Node {
	return l.QueryNodes(func(n *graph.Node) bool { return n.Kind == graph.KindTag })
}

// Edges returns a copy of the edge list.
func (l *Layer) Edges() []graph.Edge {
	out := make([]graph.Edge, len(l.edges))
	copy(out, l.edges)
	return out
}

// Outgoing returns the edge positions leaving id.
func (l *Layer) Outgoing(id string) []int { return append([]int(nil), l.outgoing[id]...) }

// Incoming returns the edge positions entering id.
func (l *Layer) Incoming(id string) []int { return append([]int(nil), l.incoming[id]...) }

// ReferenceCache returns a copy of the target -> REFERENCE id map.
func (l *Layer) ReferenceCache() map[string]string { return copyMap(l.refCache) }

// TagCache returns a copy of the tag name -> TAG id map.
func (l *Layer) TagCache() map[string]string { return copyMap(l.tagCache) }

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// IndexedIDs returns every id present in either index, sorted.
func (l *Layer) IndexedIDs() []string {
	set := make(map[string]bool, len(l.outgoing)+len(l.incoming))
	for id := range l.outgoing {
		set[id] = true
	}
	for id := range l.incoming {
		set[id] = true
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Summary renders counts and, unless brief, every reference, tag and edge.
func (l *Layer) Summary(brief bool) string {
	refs, tags := l.References(), l.Tags()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Semantic layer: %d nodes, %d edges\n", len(l.nodes), len(l.edges))
	fmt.Fprintf(&sb, "  references: %d\n", len(refs))
	fmt.Fprintf(&sb, "  tags: %d\n", len(tags))
	if brief {
		return sb.String()
	}

	for _, r := range refs {
		fmt.Fprintf(&sb, "  REFERENCE %s (%s) <- %d links\n",
			r.Meta(graph.MetaTarget), r.Meta(graph.MetaLinkType), len(l.FindBacklinks(r.ID)))
	}
	for _, t := range tags {
		fmt.Fprintf(&sb, "  TAG #%s <- %d links\n", t.Content, len(l.FindBacklinks(t.ID)))
	}
	for _, e := range l.edges {
		fmt.Fprintf(&sb, "  %s -[%s %s]-> %s\n", e.Source, e.Type, e.Label, e.Target)
	}
	return sb.String()
}

var _ graph.Layer = (*Layer)(nil)
