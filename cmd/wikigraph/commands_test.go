package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wikigraph/config"
	"wikigraph/serialize"
)

const doc = "= Notes =\nSee [[Home]] and [[Home|home page]] and [[#todo]].\n* one\n* two\n"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// runCLI executes a fresh command tree with an isolated config file.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cfg := writeFile(t, t.TempDir(), "wikigraph.yaml", "log:\n  level: error\n")

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	if root.Use != "wikigraph" {
		t.Errorf("expected Use 'wikigraph', got %q", root.Use)
	}
	if root.Short == "" {
		t.Error("Short description should not be empty")
	}

	want := []string{"tokens", "tree", "compile", "query", "walk", "diff", "store", "batch", "watch", "rules", "init"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, flag := range []string{"config", "verbose", "recovery"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestTokensCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", "= Title =\n")
	out, _, err := runCLI(t, "tokens", path)
	if err != nil {
		t.Fatalf("tokens failed: %v", err)
	}
	for _, want := range []string{"Type: HEADING", "Text: Title", "Type: ENDOF"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTokensCommand_LexError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", "{{unclosed")
	if _, _, err := runCLI(t, "tokens", path); err == nil || !strings.Contains(err.Error(), "a.wiki") {
		t.Errorf("expected error naming the file, got %v", err)
	}
}

func TestTreeCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", doc)

	out, _, err := runCLI(t, "tree", path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"DOCUMENT_ROOT", "HEADING", "LIST_ITEM", "LINK"} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "tree", "--layer", "semantic", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "REFERENCE Home") || !strings.Contains(out, "TAG #todo") {
		t.Errorf("semantic summary:\n%s", out)
	}

	if _, _, err := runCLI(t, "tree", "--layer", "other", path); err == nil {
		t.Error("expected error for unknown layer")
	}
}

func TestTreeCommand_ReportsBuildErrors(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", "{{ }}\n")
	_, stderr, err := runCLI(t, "tree", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stderr, "a.wiki:1: WARNING: image without a url") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestCompileCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wiki", doc)
	outPath := filepath.Join(dir, "a.json")

	if _, _, err := runCLI(t, "compile", path, "-o", outPath, "--pretty"); err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var got serialize.Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got.Nodes) == 0 || len(got.Edges) != 3 {
		t.Errorf("nodes = %d, edges = %d", len(got.Nodes), len(got.Edges))
	}
	if !bytes.Contains(data, []byte("\n  ")) {
		t.Error("--pretty should indent")
	}
}

func TestCompileCommand_ZstdAndStructuralOnly(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", doc)

	out, _, err := runCLI(t, "compile", path, "--zstd", "--structural-only")
	if err != nil {
		t.Fatal(err)
	}
	plain, err := serialize.Decompress(strings.NewReader(out))
	if err != nil {
		t.Fatalf("output is not zstd: %v", err)
	}
	if bytes.Contains(plain, []byte("semantic_nodes")) {
		t.Error("--structural-only should drop the semantic layer")
	}
}

func TestQueryCommands(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", doc)

	out, _, err := runCLI(t, "query", "backlinks", path, "Home")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, " LINK "); n != 2 {
		t.Errorf("backlinks lines = %d:\n%s", n, out)
	}

	out, _, err = runCLI(t, "query", "tag", path, "#todo")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], " TAG ") {
		t.Errorf("tag output:\n%s", out)
	}

	out, _, err = runCLI(t, "query", "target", path, "Home")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, " REFERENCE ") {
		t.Errorf("target output:\n%s", out)
	}

	if _, _, err := runCLI(t, "query", "target", path, "Nowhere"); err == nil {
		t.Error("expected error for unknown target")
	}
	if _, _, err := runCLI(t, "query", "backlinks", path, "Nowhere"); err == nil {
		t.Error("expected error for unknown node")
	}
}

func TestWalkCommand(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", doc)

	out, _, err := runCLI(t, "walk", path, "--kind", "link")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 3 {
		t.Errorf("links = %d, want 3:\n%s", n, out)
	}

	out, _, err = runCLI(t, "walk", path, "--depth", "1", "--order", "bfs")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "DOCUMENT_ROOT") || !strings.HasPrefix(lines[1], "  ") {
		t.Errorf("depth-limited walk:\n%s", out)
	}

	if _, _, err := runCLI(t, "walk", path, "--order", "random"); err == nil {
		t.Error("expected error for unknown order")
	}
	if _, _, err := runCLI(t, "walk", path, "--direction", "sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if _, _, err := runCLI(t, "walk", path, "--from", "node_missing"); err == nil {
		t.Error("expected error for unknown start node")
	}
}

func TestDiffCommand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.wiki", "= T =\nold text\n")
	b := writeFile(t, dir, "b.wiki", "= T =\nnew text\n* added\n")

	out, _, err := runCLI(t, "diff", a, b)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"~ PARAGRAPH", "+ LIST", "old text -> new text", "Summary:"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q:\n%s", want, out)
		}
	}

	out, _, err = runCLI(t, "diff", a, b, "--json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"unitsModified": 1`) {
		t.Errorf("json diff:\n%s", out)
	}
}

func TestStoreCommands(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wiki", doc)
	db := filepath.Join(dir, "db", "wiki.db")

	out, _, err := runCLI(t, "store", "save", "--db", db, path)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	id := strings.Fields(out)[0]

	out, _, err = runCLI(t, "store", "list", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "a.wiki") {
		t.Errorf("list output:\n%s", out)
	}

	out, _, err = runCLI(t, "store", "show", "--db", db, id, "REFERENCE")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"Home" links=2`) {
		t.Errorf("show output:\n%s", out)
	}

	refID := nodeIDWithContent(t, out, "Home")
	out, _, err = runCLI(t, "store", "edges", "--db", db, id, refID)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Count(out, "<- ") != 2 || strings.Contains(out, "-> ") {
		t.Errorf("reference edges:\n%s", out)
	}

	out, _, err = runCLI(t, "store", "show", "--db", db, id, "LINK")
	if err != nil {
		t.Fatal(err)
	}
	linkID := nodeIDWithContent(t, out, "Home")
	out, _, err = runCLI(t, "store", "edges", "--db", db, id, linkID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "-> ") || !strings.Contains(out, "SEMANTIC_LINK") {
		t.Errorf("link edges:\n%s", out)
	}
	if _, _, err := runCLI(t, "store", "edges", "--db", db, "--type", "LINKS_TO", id, linkID); err == nil {
		t.Error("unknown edge type should fail")
	}

	if _, _, err := runCLI(t, "store", "rm", "--db", db, id); err != nil {
		t.Fatalf("rm failed: %v", err)
	}
	if _, _, err := runCLI(t, "store", "show", "--db", db, id, "REFERENCE"); err == nil {
		t.Error("show after rm should fail")
	}
}

// nodeIDWithContent picks the id from a "store show" line whose quoted
// content matches.
func nodeIDWithContent(t *testing.T, out, content string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, fmt.Sprintf(" %q ", content)) {
			return strings.Fields(line)[0]
		}
	}
	t.Fatalf("no node with content %q in:\n%s", content, out)
	return ""
}

func TestStoreSave_SkipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wiki", doc)
	db := filepath.Join(dir, "wiki.db")

	out, _, err := runCLI(t, "store", "save", "--db", db, path)
	if err != nil {
		t.Fatal(err)
	}
	id := strings.Fields(out)[0]

	out, _, err = runCLI(t, "store", "save", "--db", db, path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, id) || !strings.Contains(out, "(unchanged)") {
		t.Errorf("second save should be skipped:\n%s", out)
	}

	out, _, err = runCLI(t, "store", "save", "--db", db, "--force", path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(out, id) || strings.Contains(out, "unchanged") {
		t.Errorf("--force should store a new copy:\n%s", out)
	}

	writeFile(t, dir, "a.wiki", doc+"more\n")
	out, _, err = runCLI(t, "store", "save", "--db", db, path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "unchanged") {
		t.Errorf("edited source should be saved:\n%s", out)
	}

	out, _, err = runCLI(t, "store", "list", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, "a.wiki"); got != 3 {
		t.Errorf("expected 3 stored copies, got %d:\n%s", got, out)
	}
}

func TestBatchCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.wiki", doc)
	writeFile(t, dir, "sub/b.creole", "[[a]]\n")
	writeFile(t, dir, "private/c.wiki", "secret\n")
	writeFile(t, dir, "notes.md", "not included\n")
	writeFile(t, dir, ".wikigraphignore", "private/\n")
	outDir := filepath.Join(t.TempDir(), "json")
	db := filepath.Join(t.TempDir(), "wiki.db")

	out, _, err := runCLI(t, "batch", dir, "-j", "2", "--out", outDir, "--save", "--db", db)
	if err != nil {
		t.Fatalf("batch failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok   a.wiki") || !strings.Contains(out, "ok   sub/b.creole") {
		t.Errorf("batch output:\n%s", out)
	}
	if strings.Contains(out, "private") || strings.Contains(out, "notes.md") {
		t.Errorf("ignored files were compiled:\n%s", out)
	}
	if !strings.Contains(out, "2 documents, 0 failed") {
		t.Errorf("batch summary:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, "sub", "b.creole.json")); err != nil {
		t.Errorf("json output missing: %v", err)
	}

	out, _, err = runCLI(t, "store", "list", "--db", db)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "sub/b.creole") {
		t.Errorf("saved documents:\n%s", out)
	}
}

func TestBatchCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.wiki", "fine\n")
	writeFile(t, dir, "bad.wiki", "{{broken")

	out, _, err := runCLI(t, "batch", dir)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 documents failed") {
		t.Errorf("expected failure count, got %v", err)
	}
	if !strings.Contains(out, "FAIL bad.wiki") {
		t.Errorf("output:\n%s", out)
	}
}

func TestRecoveryFlag(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.wiki", "text\n")
	if _, _, err := runCLI(t, "--recovery", "bogus", "tree", path); err == nil {
		t.Error("expected error for unknown recovery strategy")
	}
	if _, _, err := runCLI(t, "--recovery", "skip", "tree", path); err != nil {
		t.Errorf("valid recovery rejected: %v", err)
	}
}

func TestRulesCommands(t *testing.T) {
	file := filepath.Join(t.TempDir(), "conf", "links.yaml")

	if _, _, err := runCLI(t, "rules", "list"); err == nil {
		t.Error("rules without a file should fail")
	}
	if _, _, err := runCLI(t, "rules", "add", "--file", file, "bad", "["); err == nil {
		t.Error("invalid pattern should be rejected")
	}

	out, _, err := runCLI(t, "rules", "add", "--file", file, "docs", "docs/**")
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if !strings.Contains(out, "Saved rule docs") {
		t.Errorf("add output:\n%s", out)
	}
	if _, _, err := runCLI(t, "rules", "add", "--file", file, "wiki", "wiki:*", "Wiki*"); err != nil {
		t.Fatal(err)
	}

	out, _, err = runCLI(t, "rules", "list", "--file", file)
	if err != nil {
		t.Fatal(err)
	}
	if out != "docs: docs/**\nwiki: wiki:* Wiki*\n" {
		t.Errorf("list output:\n%s", out)
	}

	out, _, err = runCLI(t, "rules", "show", "--file", file, "wiki")
	if err != nil {
		t.Fatal(err)
	}
	if out != "wiki:*\nWiki*\n" {
		t.Errorf("show output:\n%s", out)
	}

	out, _, err = runCLI(t, "rules", "classify", "--file", file, "docs/a/b", "WikiHome", "https://x.org", "Other")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"docs/a/b\tdocs", "WikiHome\twiki", "https://x.org\texternal", "Other\tinternal"} {
		if !strings.Contains(out, want) {
			t.Errorf("classify output missing %q:\n%s", want, out)
		}
	}

	if _, _, err := runCLI(t, "rules", "rm", "--file", file, "docs"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCLI(t, "rules", "rm", "--file", file, "docs"); err == nil {
		t.Error("removing a missing rule should fail")
	}
	if _, _, err := runCLI(t, "rules", "show", "--file", file, "docs"); err == nil {
		t.Error("removed rule should be gone from the file")
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	out, _, err := runCLI(t, "init", dir)
	if err != nil {
		t.Fatalf("init failed: %v", err)
	}
	path := filepath.Join(dir, config.ProjectConfigFile)
	if !strings.Contains(out, path) {
		t.Errorf("init output:\n%s", out)
	}

	c, err := config.LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("written config should validate: %v", err)
	}

	if _, _, err := runCLI(t, "init", dir); err == nil {
		t.Error("init should refuse to overwrite")
	}
	if _, _, err := runCLI(t, "init", "--force", dir); err != nil {
		t.Errorf("init --force failed: %v", err)
	}
}

func TestWriteFileWith(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	err := writeFileWith(path, func(w io.Writer) error {
		_, err := io.WriteString(w, "{}")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := os.ReadFile(path); string(data) != "{}" {
		t.Errorf("file content = %q", data)
	}

	errWrite := errors.New("disk full")
	if err := writeFileWith(path, func(io.Writer) error { return errWrite }); !errors.Is(err, errWrite) {
		t.Errorf("write error lost: %v", err)
	}

	if err := writeFileWith(filepath.Join(t.TempDir(), "missing", "x.json"), func(io.Writer) error { return nil }); err == nil {
		t.Error("expected create error")
	}
}
