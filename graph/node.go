package graph

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"wikigraph/cas"
)

// NewNode creates a node with a fresh id, version 1 and its content hash.
func NewNode(kind Kind, content string, line int) *Node {
	n := &Node{
		ID:         NewID(),
		Kind:       kind,
		Content:    content,
		Metadata:   make(map[string]string),
		SourceLine: line,
		Version:    1,
	}
	n.updateHash()
	return n
}

func (n *Node) updateHash() {
	n.ContentHash = cas.ContentHash(n.Kind.String(), n.Content)
}

// SetMeta sets a metadata entry and returns the node for chaining.
func (n *Node) SetMeta(key, value string) *Node {
	if n.Metadata == nil {
		n.Metadata = make(map[string]string)
	}
	n.Metadata[key] = value
	return n
}

// Meta returns a metadata value, or "" when absent.
func (n *Node) Meta(key string) string {
	return n.Metadata[key]
}

// Level returns the integer "level" metadata (headings, list items), 0 if unset.
func (n *Node) Level() int {
	lvl, err := strconv.Atoi(n.Metadata[MetaLevel])
	if err != nil {
		return 0
	}
	return lvl
}

// AddChild appends child to n's children and points child back at n.
// A nil child is ignored.
func (n *Node) AddChild(child *Node) {
	if child == nil {
		return
	}
	n.Children = append(n.Children, child.ID)
	child.Parent = n.ID
}

// RemoveChild drops every occurrence of childID from n's children.
// It reports whether anything was removed.
func (n *Node) RemoveChild(childID string) bool {
	kept := n.Children[:0]
	removed := false
	for _, id := range n.Children {
		if id == childID {
			removed = true
			continue
		}
		kept = append(kept, id)
	}
	n.Children = kept
	return removed
}

// FindChild returns the position of childID among n's children, or -1.
func (n *Node) FindChild(childID string) int {
	for i, id := range n.Children {
		if id == childID {
			return i
		}
	}
	return -1
}

// UpdateContent replaces the content. Version and hash only move when the
// content actually changes.
func (n *Node) UpdateContent(content string) {
	if n.Content == content {
		return
	}
	n.Content = content
	n.Version++
	n.updateHash()
}

// Truncate shortens s to at most limit runes, ending a cut string in
// "...". It never splits a multi-byte character.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := max(limit-3, 0)
	for i := range s {
		if keep == 0 {
			return s[:i] + "..."
		}
		keep--
	}
	return s
}

// String returns a short human-readable summary of the node.
func (n *Node) String() string {
	content := "[empty]"
	if n.Content != "" {
		content = Truncate(n.Content, 53)
	}
	return fmt.Sprintf("%s %s line=%d children=%d v%d %q",
		n.ID, n.Kind, n.SourceLine, len(n.Children), n.Version, content)
}

// PrintTree writes root and its forward neighbors as an indented outline.
func PrintTree(w io.Writer, l Layer, root *Node) {
	printTree(w, l, root, 0)
}

func printTree(w io.Writer, l Layer, n *Node, depth int) {
	if n == nil {
		return
	}
	fmt.Fprintf(w, "%s- %s\n", strings.Repeat("  ", depth), n.String())
	for _, child := range l.ForwardNeighbors(n.ID) {
		printTree(w, l, child, depth+1)
	}
}
