// Package structural builds the owned document tree from block tokens.
package structural

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"wikigraph/graph"
	"wikigraph/lexer"
)

// PlaceholderPrefix marks the content of nodes created by
// RecoverCreatePlaceholder.
const PlaceholderPrefix = "[UNRECOGNIZED] "

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

// WithRecovery sets the recovery strategy.
func WithRecovery(r RecoveryStrategy) Option {
	return func(l *Layer) { l.strategy = r }
}

// Layer is the structural view of a document: a tree rooted at a
// DOCUMENT_ROOT node plus a registry of every node it owns.
type Layer struct {
	root  *graph.Node
	nodes map[string]*graph.Node
	order []string

	parents []*graph.Node // innermost container last, root at the bottom
	lists   []*graph.Node // open LIST containers, innermost last

	strategy RecoveryStrategy
	errs     []*BuildError

	inline *lexer.InlineLexer
	logger *slog.Logger
}

// New creates an empty layer holding only the document root.
func New(opts ...Option) *Layer {
	l := &Layer{
		strategy: DefaultRecovery,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(slog.String("component", "structural"))
	l.inline = lexer.NewInlineLexer(lexer.WithLogger(l.logger))
	l.reset()
	return l
}

func (l *Layer) reset() {
	l.root = graph.NewNode(graph.KindDocumentRoot, "", 0)
	l.nodes = map[string]*graph.Node{l.root.ID: l.root}
	l.order = []string{l.root.ID}
	l.parents = []*graph.Node{l.root}
	l.lists = nil
	l.errs = nil
}

// SetRecoveryStrategy changes the strategy used by subsequent builds.
func (l *Layer) SetRecoveryStrategy(r RecoveryStrategy) { l.strategy = r }

// RecoveryStrategy returns the configured strategy.
func (l *Layer) RecoveryStrategy() RecoveryStrategy { return l.strategy }

// Build discards any previous tree and builds a new one from tokens.
// Non-fatal problems are recorded and available from Errors; a fatal one
// stops the build and is returned (errors.Is(err, ErrFatalBuild)).
func (l *Layer) Build(tokens []lexer.BlockToken) error {
	l.reset()
	l.logger.Debug("structural build started", slog.Int("tokens", len(tokens)))

	for i, tok := range tokens {
		if err := l.process(i, tok); err != nil {
			l.logger.Error("structural build aborted", slog.String("error", err.Error()))
			return fmt.Errorf("building structure: %w", err)
		}
	}
	l.closeLists()

	l.logger.Debug("structural build ended",
		slog.Int("nodes", len(l.nodes)), slog.Int("errors", len(l.errs)))
	return nil
}

func (l *Layer) process(idx int, tok lexer.BlockToken) error {
	isList := tok.Kind == lexer.BlockUnorderedItem || tok.Kind == lexer.BlockOrderedItem
	if !isList {
		l.closeLists()
	}

	switch tok.Kind {
	case lexer.BlockHeading:
		l.addHeading(tok)
	case lexer.BlockParagraph:
		n := l.newNode(graph.KindParagraph, tok.Text, tok.Line)
		l.attach(l.top(), n)
		l.addInline(n, tok.Text, tok.Line)
	case lexer.BlockUnorderedItem, lexer.BlockOrderedItem:
		if tok.Level < 1 {
			return l.applyRecovery(idx, tok, SeverityError, fmt.Sprintf("invalid list level %d", tok.Level))
		}
		l.addListItem(tok)
	case lexer.BlockHorizontalRule:
		l.attach(l.top(), l.newNode(graph.KindHorizontalRule, "", tok.Line))
	case lexer.BlockVerbatim:
		l.attach(l.top(), l.newNode(graph.KindVerbatimBlock, tok.Text, tok.Line))
	case lexer.BlockImage:
		l.addImage(idx, tok)
	case lexer.BlockNewline:
		l.attach(l.top(), l.newNode(graph.KindNewline, "", tok.Line))
	case lexer.BlockEnd:
		// lists were closed above
	default:
		return l.applyRecovery(idx, tok, SeverityError, fmt.Sprintf("unrecognized token kind %s", tok.Kind))
	}
	return nil
}

func (l *Layer) addHeading(tok lexer.BlockToken) {
	for len(l.parents) > 1 {
		top := l.top()
		if top.Kind != graph.KindHeading || top.Level() < tok.Level {
			break
		}
		l.parents = l.parents[:len(l.parents)-1]
	}

	h := l.newNode(graph.KindHeading, tok.Text, tok.Line)
	h.SetMeta(graph.MetaLevel, strconv.Itoa(tok.Level))
	l.attach(l.top(), h)
	l.parents = append(l.parents, h)
	l.addInline(h, tok.Text, tok.Line)
}

// addListItem adjusts the open lists to the item's level, then appends
// the item to the innermost list.
func (l *Layer) addListItem(tok lexer.BlockToken) {
	listType := "unordered"
	if tok.Kind == lexer.BlockOrderedItem {
		listType = "ordered"
	}

	for len(l.lists) > tok.Level {
		l.lists = l.lists[:len(l.lists)-1]
	}
	// switching between * and # at the same depth starts a new list
	if len(l.lists) == tok.Level && l.lists[len(l.lists)-1].Meta(graph.MetaListType) != listType {
		l.lists = l.lists[:len(l.lists)-1]
	}
	for len(l.lists) < tok.Level {
		list := l.newNode(graph.KindList, "", tok.Line)
		list.SetMeta(graph.MetaListType, listType)
		l.attach(l.listParent(), list)
		l.lists = append(l.lists, list)
	}

	item := l.newNode(graph.KindListItem, tok.Text, tok.Line)
	item.SetMeta(graph.MetaLevel, strconv.Itoa(tok.Level))
	l.attach(l.lists[len(l.lists)-1], item)
	l.addInline(item, tok.Text, tok.Line)
}

// listParent is where a new list container goes: under the last item of
// the enclosing list, or under the current block container at top level.
func (l *Layer) listParent() *graph.Node {
	if len(l.lists) == 0 {
		return l.top()
	}
	enclosing := l.lists[len(l.lists)-1]
	if n := len(enclosing.Children); n > 0 {
		if last, ok := l.nodes[enclosing.Children[n-1]]; ok && last.Kind == graph.KindListItem {
			return last
		}
	}
	return enclosing
}

func (l *Layer) addImage(idx int, tok lexer.BlockToken) {
	url, alt, found := strings.Cut(tok.Text, "|")
	url = strings.TrimSpace(url)
	alt = strings.TrimSpace(alt)
	if !found {
		alt = url
	}
	if url == "" {
		l.record(&BuildError{
			Message:  "image without a url",
			Line:     tok.Line,
			Index:    idx,
			Severity: SeverityWarning,
			Recovery: "kept empty image",
		})
	}

	img := l.newNode(graph.KindImage, alt, tok.Line)
	img.SetMeta(graph.MetaURL, url).SetMeta(graph.MetaAlt, alt)
	l.attach(l.top(), img)
}

// applyRecovery applies the configured strategy to a token the builder could
// not place. An unknown strategy is fatal.
func (l *Layer) applyRecovery(idx int, tok lexer.BlockToken, sev Severity, msg string) error {
	var action string
	switch l.strategy {
	case RecoverSkip:
		action = "skipped"
	case RecoverAttachToParent:
		p := l.newNode(graph.KindParagraph, tok.Text, tok.Line)
		p.SetMeta(graph.MetaRecovery, RecoverAttachToParent.String())
		l.attach(l.top(), p)
		action = "attached to parent as paragraph"
	case RecoverCreatePlaceholder:
		p := l.newNode(graph.KindParagraph, PlaceholderPrefix+tok.Text, tok.Line)
		p.SetMeta(graph.MetaRecovery, RecoverCreatePlaceholder.String())
		l.attach(l.top(), p)
		action = "created placeholder"
	default:
		fatal := &BuildError{
			Message:  fmt.Sprintf("%s; invalid recovery strategy %s", msg, l.strategy),
			Line:     tok.Line,
			Index:    idx,
			Severity: SeverityFatal,
		}
		l.errs = append(l.errs, fatal)
		return fatal
	}

	l.record(&BuildError{Message: msg, Line: tok.Line, Index: idx, Severity: sev, Recovery: action})
	return nil
}

func (l *Layer) record(e *BuildError) {
	l.logger.Warn("build error recorded",
		slog.String("severity", e.Severity.String()),
		slog.Int("line", e.Line),
		slog.String("message", e.Message),
		slog.String("recovery", e.Recovery))
	l.errs = append(l.errs, e)
}

// addInline lexes text and hangs the resulting inline nodes under parent.
func (l *Layer) addInline(parent *graph.Node, text string, line int) {
	if text == "" {
		return
	}
	l.attachInline(parent, l.inline.Tokenize(text, line))
}

func (l *Layer) attachInline(parent *graph.Node, toks []lexer.InlineToken) {
	for _, t := range toks {
		n := l.inlineNode(t)
		l.attach(parent, n)
		if len(t.Children) > 0 {
			l.attachInline(n, t.Children)
		}
	}
}

func (l *Layer) inlineNode(t lexer.InlineToken) *graph.Node {
	switch t.Kind {
	case lexer.InlineBold:
		return l.newNode(graph.KindBold, t.Content, t.Line)
	case lexer.InlineItalic:
		return l.newNode(graph.KindItalic, t.Content, t.Line)
	case lexer.InlineLink:
		return l.newNode(graph.KindLink, t.Content, t.Line).SetMeta(graph.MetaURL, t.URL)
	case lexer.InlineImage:
		return l.newNode(graph.KindImage, t.Content, t.Line).
			SetMeta(graph.MetaURL, t.URL).
			SetMeta(graph.MetaAlt, t.Content)
	case lexer.InlineVerbatim:
		return l.newNode(graph.KindVerbatimInline, t.Content, t.Line)
	case lexer.InlineLineBreak:
		return l.newNode(graph.KindLineBreak, "", t.Line)
	default:
		return l.newNode(graph.KindText, t.Content, t.Line)
	}
}

func (l *Layer) newNode(kind graph.Kind, content string, line int) *graph.Node {
	n := graph.NewNode(kind, content, line)
	l.nodes[n.ID] = n
	l.order = append(l.order, n.ID)
	return n
}

func (l *Layer) attach(parent, child *graph.Node) {
	parent.AddChild(child)
	l.logger.Debug("node attached",
		slog.String("kind", child.Kind.String()),
		slog.String("parent", parent.Kind.String()),
		slog.Int("line", child.SourceLine))
}

func (l *Layer) top() *graph.Node { return l.parents[len(l.parents)-1] }

func (l *Layer) closeLists() { l.lists = nil }

// Errors returns the errors recorded by the last build.
func (l *Layer) Errors() []*BuildError {
	out := make([]*BuildError, len(l.errs))
	copy(out, l.errs)
	return out
}

// ClearErrors empties the error log.
func (l *Layer) ClearErrors() { l.errs = nil }

// Root returns the document root.
func (l *Layer) Root() *graph.Node { return l.root }

// Len returns the number of nodes in the registry, root included.
func (l *Layer) Len() int { return len(l.nodes) }

// Nodes returns every node in creation order.
func (l *Layer) Nodes() []*graph.Node {
	out := make([]*graph.Node, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.nodes[id])
	}
	return out
}

// Node looks a node up by id.
func (l *Layer) Node(id string) (*graph.Node, bool) {
	n, ok := l.nodes[id]
	return n, ok
}

// QueryNodes returns the nodes matching predicate, in creation order.
func (l *Layer) QueryNodes(predicate func(*graph.Node) bool) []*graph.Node {
	var out []*graph.Node
	for _, id := range l.order {
		if n := l.nodes[id]; predicate(n) {
			out = append(out, n)
		}
	}
	return out
}

// ForwardNeighbors returns the children of id.
func (l *Layer) ForwardNeighbors(id string) []*graph.Node {
	n, ok := l.nodes[id]
	if !ok {
		return nil
	}
	out := make([]*graph.Node, 0, len(n.Children))
	for _, cid := range n.Children {
		if c, ok := l.nodes[cid]; ok {
			out = append(out, c)
		}
	}
	return out
}

// BackwardNeighbors returns the parent of id, if any.
func (l *Layer) BackwardNeighbors(id string) []*graph.Node {
	n, ok := l.nodes[id]
	if !ok || n.Parent == "" {
		return nil
	}
	if p, ok := l.nodes[n.Parent]; ok {
		return []*graph.Node{p}
	}
	return nil
}

// RemoveNode detaches id from its parent and drops it and its whole
// subtree from the registry. The root cannot be removed.
func (l *Layer) RemoveNode(id string) error {
	n, ok := l.nodes[id]
	if !ok {
		return fmt.Errorf("node %s not found", id)
	}
	if n == l.root {
		return fmt.Errorf("cannot remove the document root")
	}
	if p, ok := l.nodes[n.Parent]; ok {
		p.RemoveChild(id)
	}

	removed := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if c, ok := l.nodes[cur]; ok {
			stack = append(stack, c.Children...)
		}
		removed[cur] = true
		delete(l.nodes, cur)
	}

	kept := l.order[:0]
	for _, oid := range l.order {
		if !removed[oid] {
			kept = append(kept, oid)
		}
	}
	l.order = kept

	l.logger.Debug("node removed", slog.String("id", id), slog.Int("subtree", len(removed)))
	return nil
}

var _ graph.Layer = (*Layer)(nil)
