// Package store persists compiled documents in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"wikigraph/cas"
	"wikigraph/graph"
	"wikigraph/semantic"
	"wikigraph/structural"
)

//go:embed schema.sql
var schemaSQL string

//go:embed pragmas.sql
var pragmasSQL string

// Node layers as recorded in the nodes table.
const (
	LayerStructural = "structural"
	LayerSemantic   = "semantic"
)

var ErrDocumentNotFound = errors.New("document not found")

// DB wraps a SQLite connection holding compiled documents.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
	path string
}

// Open opens or creates the database at dbPath and applies the schema.
func Open(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	for _, pragma := range strings.Split(pragmasSQL, "\n") {
		pragma = strings.TrimSpace(pragma)
		if pragma == "" || strings.HasPrefix(pragma, "--") {
			continue
		}
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// Document describes one stored compilation.
type Document struct {
	ID        string
	Path      string
	Digest    string // BLAKE3 of the source text
	Root      string
	NodeCount int
	EdgeCount int
	CreatedAt int64
}

// Node is a stored graph node.
type Node struct {
	DocID       string
	ID          string
	Layer       string
	Kind        graph.Kind
	Content     string
	Metadata    map[string]string
	Parent      string
	Line        int
	Version     int
	ContentHash string
}

// Edge is a stored edge. Structural parent/child links are stored as
// STRUCTURAL_CHILD edges in child order.
type Edge struct {
	DocID  string
	Seq    int
	Source string
	Target string
	Type   graph.EdgeType
	Label  string
}

// SaveDocument stores both layers of one compiled document under a fresh
// id. sem may be nil.
func (db *DB) SaveDocument(ctx context.Context, path, source string, s *structural.Layer, sem *semantic.Layer) (*Document, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	doc := &Document{
		ID:        uuid.New().String(),
		Path:      path,
		Digest:    cas.Blake3HashHex([]byte(source)),
		Root:      s.Root().ID,
		CreatedAt: cas.NowMs(),
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, path, digest, root, node_count, edge_count, created_at)
		VALUES (?, ?, ?, ?, 0, 0, ?)
	`, doc.ID, doc.Path, doc.Digest, doc.Root, doc.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting document: %w", err)
	}

	seen := make(map[string]bool)
	for _, n := range s.Nodes() {
		if err := insertNode(ctx, tx, doc.ID, LayerStructural, n); err != nil {
			return nil, err
		}
		seen[n.ID] = true
		doc.NodeCount++
	}

	seq := 0
	for _, n := range s.Nodes() {
		for _, c := range n.Children {
			if err := insertEdge(ctx, tx, doc.ID, seq, graph.Edge{
				Source: n.ID, Target: c, Type: graph.EdgeStructuralChild, Label: "child",
			}); err != nil {
				return nil, err
			}
			seq++
			doc.EdgeCount++
		}
	}

	if sem != nil {
		// link nodes are shared with the structural layer and already stored
		for _, n := range sem.Nodes() {
			if seen[n.ID] {
				continue
			}
			if err := insertNode(ctx, tx, doc.ID, LayerSemantic, n); err != nil {
				return nil, err
			}
			doc.NodeCount++
		}
		for i, e := range sem.Edges() {
			if err := insertEdge(ctx, tx, doc.ID, i, e); err != nil {
				return nil, err
			}
			doc.EdgeCount++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET node_count = ?, edge_count = ? WHERE id = ?`,
		doc.NodeCount, doc.EdgeCount, doc.ID,
	); err != nil {
		return nil, fmt.Errorf("updating document counts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing document: %w", err)
	}
	return doc, nil
}

func insertNode(ctx context.Context, tx *sql.Tx, docID, layer string, n *graph.Node) error {
	meta := n.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	var parent any
	if n.Parent != "" {
		parent = n.Parent
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (doc_id, id, layer, kind, content, metadata, parent, line, version, content_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, docID, n.ID, layer, n.Kind.String(), n.Content, string(metaJSON), parent, n.SourceLine, n.Version, n.ContentHash)
	if err != nil {
		return fmt.Errorf("inserting node %s: %w", n.ID, err)
	}
	return nil
}

func insertEdge(ctx context.Context, tx *sql.Tx, docID string, seq int, e graph.Edge) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (doc_id, seq, src, dst, type, label)
		VALUES (?, ?, ?, ?, ?, ?)
	`, docID, seq, e.Source, e.Target, e.Type.String(), e.Label)
	if err != nil {
		return fmt.Errorf("inserting edge: %w", err)
	}
	return nil
}

const documentColumns = `id, path, digest, root, node_count, edge_count, created_at`

func scanDocument(row interface{ Scan(...any) error }) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.Path, &d.Digest, &d.Root, &d.NodeCount, &d.EdgeCount, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

// Document returns a stored document by id.
func (db *DB) Document(ctx context.Context, id string) (*Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	d, err := scanDocument(db.conn.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return d, nil
}

// Documents lists stored documents, newest first. A non-empty path
// restricts the list to compilations of that path.
func (db *DB) Documents(ctx context.Context, path string) ([]*Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `SELECT ` + documentColumns + ` FROM documents`
	var args []any
	if path != "" {
		query += ` WHERE path = ?`
		args = append(args, path)
	}
	query += ` ORDER BY created_at DESC, rowid DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// FindByDigest returns the newest document compiled from identical
// source text.
func (db *DB) FindByDigest(ctx context.Context, digest string) (*Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	d, err := scanDocument(db.conn.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE digest = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, digest))
	if err == sql.ErrNoRows {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document: %w", err)
	}
	return d, nil
}

// NodesByKind returns a document's nodes of one kind.
func (db *DB) NodesByKind(ctx context.Context, docID string, kind graph.Kind) ([]*Node, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, layer, content, metadata, parent, line, version, content_hash
		FROM nodes WHERE doc_id = ? AND kind = ? ORDER BY rowid
	`, docID, kind.String())
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n := &Node{DocID: docID, Kind: kind}
		var metaJSON string
		var parent sql.NullString
		if err := rows.Scan(&n.ID, &n.Layer, &n.Content, &metaJSON, &parent, &n.Line, &n.Version, &n.ContentHash); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}
		n.Parent = parent.String
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// EdgesTo returns the edges of one type entering target.
func (db *DB) EdgesTo(ctx context.Context, docID, target string, typ graph.EdgeType) ([]*Edge, error) {
	return db.edges(ctx, `doc_id = ? AND dst = ? AND type = ?`, docID, target, typ.String())
}

// EdgesFrom returns the edges of one type leaving source.
func (db *DB) EdgesFrom(ctx context.Context, docID, source string, typ graph.EdgeType) ([]*Edge, error) {
	return db.edges(ctx, `doc_id = ? AND src = ? AND type = ?`, docID, source, typ.String())
}

func (db *DB) edges(ctx context.Context, where string, args ...any) ([]*Edge, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT doc_id, seq, src, dst, type, label FROM edges WHERE `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying edges: %w", err)
	}
	defer rows.Close()

	var edges []*Edge
	for rows.Next() {
		var e Edge
		var typ string
		if err := rows.Scan(&e.DocID, &e.Seq, &e.Source, &e.Target, &typ, &e.Label); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Type = parseEdgeType(typ)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

func parseEdgeType(s string) graph.EdgeType {
	if t, ok := graph.ParseEdgeType(s); ok {
		return t
	}
	return graph.EdgeType(-1)
}

// DeleteDocument removes a document with its nodes and edges.
func (db *DB) DeleteDocument(ctx context.Context, id string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// pragmas only reach one pooled connection, so do not rely on cascades
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("deleting edges: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("deleting nodes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDocumentNotFound
	}
	return tx.Commit()
}
