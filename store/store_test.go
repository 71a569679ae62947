package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"wikigraph/cas"
	"wikigraph/graph"
	"wikigraph/lexer"
	"wikigraph/semantic"
	"wikigraph/structural"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "sub", "wiki.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func compileLayers(t *testing.T, src string) (*structural.Layer, *semantic.Layer) {
	t.Helper()
	toks, err := lexer.Tokenize(src)
	if err != nil {
		t.Fatalf("tokenize: %v", err)
	}
	s := structural.New()
	if err := s.Build(toks); err != nil {
		t.Fatalf("build: %v", err)
	}
	sem := semantic.New()
	sem.Extract(s, s.Root())
	return s, sem
}

const source = "= Notes =\nSee [[Home]] and [[Home|home page]] and [[#todo]].\n"

func TestSaveDocument(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, sem := compileLayers(t, source)

	doc, err := db.SaveDocument(ctx, "notes.wiki", source, s, sem)
	if err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if doc.Digest != cas.Blake3HashHex([]byte(source)) {
		t.Error("digest should be the BLAKE3 of the source")
	}
	// structural nodes plus one REFERENCE and one TAG
	if doc.NodeCount != s.Len()+2 {
		t.Errorf("node count = %d, want %d", doc.NodeCount, s.Len()+2)
	}

	got, err := db.Document(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Document failed: %v", err)
	}
	if got.Path != "notes.wiki" || got.NodeCount != doc.NodeCount || got.EdgeCount != doc.EdgeCount {
		t.Errorf("stored document = %+v, want %+v", got, doc)
	}
}

func TestNodesAndEdges(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, sem := compileLayers(t, source)
	doc, err := db.SaveDocument(ctx, "notes.wiki", source, s, sem)
	if err != nil {
		t.Fatal(err)
	}

	refs, err := db.NodesByKind(ctx, doc.ID, graph.KindReference)
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 || refs[0].Layer != LayerSemantic || refs[0].Metadata[graph.MetaTarget] != "Home" {
		t.Fatalf("references = %+v", refs)
	}

	links, err := db.EdgesTo(ctx, doc.ID, refs[0].ID, graph.EdgeSemanticLink)
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 2 {
		t.Errorf("links into Home = %d, want 2", len(links))
	}

	heads, err := db.NodesByKind(ctx, doc.ID, graph.KindHeading)
	if err != nil {
		t.Fatal(err)
	}
	if len(heads) != 1 || heads[0].Parent != s.Root().ID {
		t.Fatalf("headings = %+v", heads)
	}
	children, err := db.EdgesFrom(ctx, doc.ID, heads[0].ID, graph.EdgeStructuralChild)
	if err != nil {
		t.Fatal(err)
	}
	h, _ := s.Node(heads[0].ID)
	if len(children) != len(h.Children) {
		t.Errorf("child edges = %d, want %d", len(children), len(h.Children))
	}
	for i, e := range children {
		if e.Target != h.Children[i] {
			t.Errorf("child %d = %s, want %s", i, e.Target, h.Children[i])
		}
	}
}

func TestDocumentsAndDigest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, sem := compileLayers(t, source)

	first, err := db.SaveDocument(ctx, "a.wiki", source, s, sem)
	if err != nil {
		t.Fatal(err)
	}
	second, err := db.SaveDocument(ctx, "b.wiki", source, s, nil)
	if err != nil {
		t.Fatal(err)
	}

	all, err := db.Documents(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != second.ID {
		t.Errorf("documents = %+v", all)
	}

	onlyA, err := db.Documents(ctx, "a.wiki")
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyA) != 1 || onlyA[0].ID != first.ID {
		t.Errorf("documents(a.wiki) = %+v", onlyA)
	}

	byDigest, err := db.FindByDigest(ctx, first.Digest)
	if err != nil {
		t.Fatal(err)
	}
	if byDigest.ID != second.ID {
		t.Errorf("FindByDigest should return the newest match")
	}
	if _, err := db.FindByDigest(ctx, "nope"); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s, sem := compileLayers(t, source)
	doc, err := db.SaveDocument(ctx, "x.wiki", source, s, sem)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteDocument(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteDocument failed: %v", err)
	}
	if _, err := db.Document(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	nodes, err := db.NodesByKind(ctx, doc.ID, graph.KindHeading)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Error("nodes should be deleted with the document")
	}
	if err := db.DeleteDocument(ctx, doc.ID); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
