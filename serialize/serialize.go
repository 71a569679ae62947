// Package serialize renders compiled layers as JSON. It is write-only.
package serialize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"wikigraph/cas"
	"wikigraph/graph"
	"wikigraph/semantic"
	"wikigraph/structural"
)

// Node is the JSON shape of a structural node.
type Node struct {
	Type     int               `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Children []string          `json:"children"`
	Parent   string            `json:"parent,omitempty"`
}

// SemanticNode is the JSON shape of a semantic-layer node.
type SemanticNode struct {
	Type     int               `json:"type"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Edge is the JSON shape of a semantic edge.
type Edge struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	Type     int    `json:"type"`
	EdgeType string `json:"edge_type"`
	Label    string `json:"label"`
}

// Document is the full output: the structural tree and, when present,
// the semantic graph with its indices and dedup caches.
type Document struct {
	Root  string          `json:"root"`
	Nodes map[string]Node `json:"nodes"`

	SemanticNodes map[string]SemanticNode `json:"semantic_nodes,omitempty"`
	Edges         []Edge                  `json:"edges,omitempty"`
	Outgoing      map[string][]int        `json:"outgoing,omitempty"`
	Incoming      map[string][]int        `json:"incoming,omitempty"`
	References    map[string]string       `json:"references,omitempty"`
	Tags          map[string]string       `json:"tags,omitempty"`
}

// Options controls the rendering.
type Options struct {
	Pretty   bool // indent with two spaces
	Compress bool // zstd-compress the output
}

// Build converts the layers into a Document. sem may be nil.
func Build(s *structural.Layer, sem *semantic.Layer) *Document {
	doc := &Document{
		Root:  s.Root().ID,
		Nodes: make(map[string]Node, s.Len()),
	}
	for _, n := range s.Nodes() {
		doc.Nodes[n.ID] = Node{
			Type:     int(n.Kind),
			Content:  n.Content,
			Metadata: metadata(n),
			Children: append([]string{}, n.Children...),
			Parent:   n.Parent,
		}
	}

	if sem == nil {
		return doc
	}

	doc.SemanticNodes = make(map[string]SemanticNode, sem.Len())
	for _, n := range sem.Nodes() {
		doc.SemanticNodes[n.ID] = SemanticNode{
			Type:     int(n.Kind),
			Content:  n.Content,
			Metadata: metadata(n),
		}
	}

	doc.Edges = make([]Edge, 0, len(sem.Edges()))
	for _, e := range sem.Edges() {
		doc.Edges = append(doc.Edges, Edge{
			Source:   e.Source,
			Target:   e.Target,
			Type:     int(e.Type),
			EdgeType: e.Type.String(),
			Label:    e.Label,
		})
	}

	doc.Outgoing = make(map[string][]int)
	doc.Incoming = make(map[string][]int)
	for _, id := range sem.IndexedIDs() {
		if out := sem.Outgoing(id); len(out) > 0 {
			doc.Outgoing[id] = out
		}
		if in := sem.Incoming(id); len(in) > 0 {
			doc.Incoming[id] = in
		}
	}
	doc.References = sem.ReferenceCache()
	doc.Tags = sem.TagCache()
	return doc
}

func metadata(n *graph.Node) map[string]string {
	if len(n.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.Metadata))
	for k, v := range n.Metadata {
		out[k] = v
	}
	return out
}

// Marshal renders doc as canonical JSON (sorted keys).
func Marshal(doc *Document, opts Options) ([]byte, error) {
	data, err := cas.CanonicalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	if opts.Pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			return nil, fmt.Errorf("indenting document: %w", err)
		}
		buf.WriteByte('\n')
		data = buf.Bytes()
	}
	if opts.Compress {
		return compress(data)
	}
	return data, nil
}

// Write marshals doc and writes it to w.
func Write(w io.Writer, doc *Document, opts Options) error {
	data, err := Marshal(doc, opts)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing document: %w", err)
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("closing encoder: %w", err)
	}
	return compressed.Bytes(), nil
}

// Decompress reverses the Compress option.
func Decompress(r io.Reader) ([]byte, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return data, nil
}
