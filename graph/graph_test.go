package graph

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if !strings.HasPrefix(id, "node_") {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("id %s issued twice", id)
		}
		seen[id] = true
	}
}

func TestNewNode(t *testing.T) {
	n := NewNode(KindParagraph, "hello", 3)
	if n.ID == "" {
		t.Error("expected id to be assigned")
	}
	if n.Version != 1 {
		t.Errorf("expected version 1, got %d", n.Version)
	}
	if n.ContentHash == "" {
		t.Error("expected content hash")
	}
	if n.SourceLine != 3 {
		t.Errorf("expected line 3, got %d", n.SourceLine)
	}
	if n.Metadata == nil {
		t.Error("metadata map should be initialized")
	}
}

func TestUpdateContent(t *testing.T) {
	n := NewNode(KindText, "a", 1)
	hash := n.ContentHash

	n.UpdateContent("a")
	if n.Version != 1 || n.ContentHash != hash {
		t.Errorf("unchanged content must not bump version: v%d", n.Version)
	}

	n.UpdateContent("b")
	if n.Version != 2 {
		t.Errorf("expected version 2, got %d", n.Version)
	}
	if n.ContentHash == hash {
		t.Error("expected hash to change")
	}

	// Same content under a different kind hashes differently.
	other := NewNode(KindBold, "b", 1)
	if other.ContentHash == n.ContentHash {
		t.Error("kind should be part of the hash")
	}
}

func TestAddRemoveFindChild(t *testing.T) {
	parent := NewNode(KindList, "", 1)
	a := NewNode(KindListItem, "a", 1)
	b := NewNode(KindListItem, "b", 2)

	parent.AddChild(a)
	parent.AddChild(b)
	parent.AddChild(nil)

	if len(parent.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(parent.Children))
	}
	if a.Parent != parent.ID || b.Parent != parent.ID {
		t.Error("children should point back at parent")
	}
	if parent.FindChild(b.ID) != 1 {
		t.Errorf("FindChild(b) = %d, want 1", parent.FindChild(b.ID))
	}
	if parent.FindChild("missing") != -1 {
		t.Error("FindChild(missing) should be -1")
	}

	if !parent.RemoveChild(a.ID) {
		t.Error("RemoveChild should report removal")
	}
	if parent.RemoveChild(a.ID) {
		t.Error("second RemoveChild should report nothing removed")
	}
	if len(parent.Children) != 1 || parent.Children[0] != b.ID {
		t.Errorf("unexpected children after removal: %v", parent.Children)
	}
}

func TestLevel(t *testing.T) {
	n := NewNode(KindHeading, "x", 1)
	if n.Level() != 0 {
		t.Errorf("unset level should be 0")
	}
	n.SetMeta(MetaLevel, "3")
	if n.Level() != 3 {
		t.Errorf("Level() = %d, want 3", n.Level())
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindDocumentRoot, "DOCUMENT_ROOT"},
		{KindLink, "LINK"},
		{KindReference, "REFERENCE"},
		{KindExternalRef, "EXTERNAL_REF"},
		{Kind(99), "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(tt.kind), got, tt.want)
		}
	}

	k, ok := ParseKind("VERBATIM_INLINE")
	if !ok || k != KindVerbatimInline {
		t.Errorf("ParseKind(VERBATIM_INLINE) = %v, %v", k, ok)
	}
	if _, ok := ParseKind("nope"); ok {
		t.Error("ParseKind should reject unknown names")
	}
}

func TestKindGroups(t *testing.T) {
	if !KindList.IsStructural() || KindList.IsInline() {
		t.Error("LIST is structural")
	}
	if !KindLineBreak.IsInline() || KindLineBreak.IsSemantic() {
		t.Error("LINEBREAK is inline")
	}
	if !KindTag.IsSemantic() || KindTag.IsStructural() {
		t.Error("TAG is semantic")
	}
}

func TestEdgeTypeString(t *testing.T) {
	if EdgeTagRelation.String() != "TAG_RELATION" {
		t.Errorf("got %s", EdgeTagRelation.String())
	}
	if EdgeType(42).String() != "UNKNOWN(42)" {
		t.Errorf("got %s", EdgeType(42).String())
	}
}

func TestParseEdgeType(t *testing.T) {
	for e := EdgeStructuralChild; e <= EdgeTagRelation; e++ {
		got, ok := ParseEdgeType(e.String())
		if !ok || got != e {
			t.Errorf("ParseEdgeType(%q) = %v, %v", e.String(), got, ok)
		}
	}
	if _, ok := ParseEdgeType("LINKS_TO"); ok {
		t.Error("unknown name should not parse")
	}
}

func TestNodeString_Truncates(t *testing.T) {
	n := NewNode(KindParagraph, strings.Repeat("x", 80), 1)
	s := n.String()
	if !strings.Contains(s, "...") {
		t.Errorf("expected truncation marker in %q", s)
	}

	empty := NewNode(KindDocumentRoot, "", 0)
	if !strings.Contains(empty.String(), "[empty]") {
		t.Errorf("expected [empty] in %q", empty.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"abcdefghijkl", 10, "abcdefg..."},
		{"ééééééééééé", 8, "ééééé..."},
		{"日本語のテキストです", 6, "日本語..."},
		{"abcdef", 2, "..."},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.limit)
		if got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) split a character", tt.in, tt.limit)
		}
	}

	n := NewNode(KindParagraph, strings.Repeat("ü", 80), 1)
	if !utf8.ValidString(n.String()) {
		t.Errorf("String produced invalid UTF-8: %q", n.String())
	}
}

// mapLayer is a minimal tree-shaped Layer for exercising PrintTree.
type mapLayer map[string]*Node

func (m mapLayer) Node(id string) (*Node, bool) {
	n, ok := m[id]
	return n, ok
}

func (m mapLayer) QueryNodes(pred func(*Node) bool) []*Node {
	var out []*Node
	for _, n := range m {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

func (m mapLayer) ForwardNeighbors(id string) []*Node {
	var out []*Node
	for _, c := range m[id].Children {
		out = append(out, m[c])
	}
	return out
}

func (m mapLayer) BackwardNeighbors(id string) []*Node {
	if p, ok := m[m[id].Parent]; ok {
		return []*Node{p}
	}
	return nil
}

func TestPrintTree(t *testing.T) {
	root := NewNode(KindDocumentRoot, "", 0)
	h := NewNode(KindHeading, "Title", 1)
	p := NewNode(KindParagraph, "Body", 2)
	root.AddChild(h)
	h.AddChild(p)
	l := mapLayer{root.ID: root, h.ID: h, p.ID: p}

	var buf bytes.Buffer
	PrintTree(&buf, l, root)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[2], "    - ") {
		t.Errorf("paragraph should be indented twice: %q", lines[2])
	}
}
