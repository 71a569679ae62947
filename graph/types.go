// Package graph provides the core IR types shared by the structural and
// semantic layers.
package graph

import (
	"strconv"
	"sync/atomic"
)

// Kind represents the type of a node.
// The integer values are part of the serialized output.
type Kind int

const (
	// structural
	KindDocumentRoot Kind = iota
	KindHeading
	KindParagraph
	KindList
	KindListItem
	KindHorizontalRule
	KindVerbatimBlock
	KindNewline

	// inline
	KindText
	KindBold
	KindItalic
	KindLink
	KindImage
	KindVerbatimInline
	KindLineBreak

	// semantic
	KindTag
	KindReference
	KindFootnote
	KindComment

	// across documents
	KindBacklink
	KindExternalRef
)

var kindNames = [...]string{
	KindDocumentRoot:   "DOCUMENT_ROOT",
	KindHeading:        "HEADING",
	KindParagraph:      "PARAGRAPH",
	KindList:           "LIST",
	KindListItem:       "LIST_ITEM",
	KindHorizontalRule: "HORIZONTAL_RULE",
	KindVerbatimBlock:  "VERBATIM_BLOCK",
	KindNewline:        "NEWLINE",
	KindText:           "TEXT",
	KindBold:           "BOLD",
	KindItalic:         "ITALIC",
	KindLink:           "LINK",
	KindImage:          "IMAGE",
	KindVerbatimInline: "VERBATIM_INLINE",
	KindLineBreak:      "LINEBREAK",
	KindTag:            "TAG",
	KindReference:      "REFERENCE",
	KindFootnote:       "FOOTNOTE",
	KindComment:        "COMMENT",
	KindBacklink:       "BACKLINK",
	KindExternalRef:    "EXTERNAL_REF",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "UNKNOWN(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind resolves a kind name as printed by String.
func ParseKind(name string) (Kind, bool) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), true
		}
	}
	return 0, false
}

// IsStructural reports whether k is a block-level container or leaf.
func (k Kind) IsStructural() bool { return k >= KindDocumentRoot && k <= KindNewline }

// IsInline reports whether k is produced by the inline lexer.
func (k Kind) IsInline() bool { return k >= KindText && k <= KindLineBreak }

// IsSemantic reports whether k is a synthetic semantic-layer node.
func (k Kind) IsSemantic() bool { return k >= KindTag && k <= KindExternalRef }

// EdgeType represents the type of relationship between nodes.
type EdgeType int

const (
	EdgeStructuralChild EdgeType = iota // parent -> child, exported by the store only
	EdgeSemanticLink                    // LINK -> REFERENCE
	EdgeBacklink                        // REFERENCE -> LINK, materialized on request
	EdgeCrossReference                  // any -> any, caller supplied
	EdgeTagRelation                     // LINK -> TAG
)

var edgeTypeNames = [...]string{
	EdgeStructuralChild: "STRUCTURAL_CHILD",
	EdgeSemanticLink:    "SEMANTIC_LINK",
	EdgeBacklink:        "BACKLINK",
	EdgeCrossReference:  "CROSS_REFERENCE",
	EdgeTagRelation:     "TAG_RELATION",
}

func (e EdgeType) String() string {
	if e >= 0 && int(e) < len(edgeTypeNames) {
		return edgeTypeNames[e]
	}
	return "UNKNOWN(" + strconv.Itoa(int(e)) + ")"
}

// ParseEdgeType is the inverse of EdgeType.String.
func ParseEdgeType(name string) (EdgeType, bool) {
	for i, n := range edgeTypeNames {
		if n == name {
			return EdgeType(i), true
		}
	}
	return 0, false
}

// Metadata keys written by the layers.
const (
	MetaLevel    = "level"
	MetaURL      = "url"
	MetaAlt      = "alt"
	MetaListType = "list_type"
	MetaTagName  = "tag_name"
	MetaTarget   = "target"
	MetaLinkType = "link_type"
	MetaRecovery = "recovery"
)

// Node is a vertex of the document graph. Relations to other nodes are
// held as ids and resolved through the owning layer.
type Node struct {
	ID          string
	Kind        Kind
	Content     string
	Metadata    map[string]string
	Children    []string
	Parent      string // empty for the document root and for semantic nodes
	SourceLine  int
	Version     int
	ContentHash string
}

// Edge is a typed, labelled relation in the semantic layer.
type Edge struct {
	Source string
	Target string
	Type   EdgeType
	Label  string
}

// Layer is the capability every graph layer exposes to generic algorithms.
// Forward neighbors are children (tree layers) or outgoing edge targets
// (edge layers); backward neighbors are the parent or incoming edge sources.
type Layer interface {
	Node(id string) (*Node, bool)
	QueryNodes(predicate func(*Node) bool) []*Node
	ForwardNeighbors(id string) []*Node
	BackwardNeighbors(id string) []*Node
}

var nextID atomic.Uint64

// NewID returns a process-unique node id of the form node_N.
// Ids are never reused, including across layers and documents.
func NewID() string {
	return "node_" + strconv.FormatUint(nextID.Add(1), 10)
}
