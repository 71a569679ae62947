// Package ignore filters document trees with gitignore-style rules.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the per-tree ignore file read by LoadFS.
const FileName = ".wikigraphignore"

// Defaults are always applied before any ignore file.
var Defaults = []string{
	".git/",
	".hg/",
	".svn/",
	".wikigraph/",
	"node_modules/",
	"*.bak",
	"*.swp",
	"*~",
}

type rule struct {
	glob    string
	negated bool
	dirOnly bool
}

// Matcher holds ignore rules; the last matching rule decides.
type Matcher struct {
	rules []rule
}

// New returns a matcher holding patterns.
func New(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p)
	}
	return m
}

// Add parses one gitignore line. Blank lines and comments are skipped.
func (m *Matcher) Add(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	var r rule
	if strings.HasPrefix(line, "!") {
		r.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	// a leading slash anchors to the root; otherwise a bare name matches
	// at any depth
	if strings.HasPrefix(line, "/") {
		line = line[1:]
	} else if !strings.Contains(line, "/") {
		line = "**/" + line
	}
	r.glob = line
	m.rules = append(m.rules, r)
}

// Len returns the number of rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Match reports whether the slash-separated path is ignored.
func (m *Matcher) Match(p string, isDir bool) bool {
	p = strings.TrimPrefix(path.Clean(p), "./")

	ignored := false
	for _, r := range m.rules {
		var hit bool
		if r.dirOnly && !isDir {
			hit = underDir(r.glob, p)
		} else {
			hit = matchGlob(r.glob, p)
		}
		if hit {
			ignored = !r.negated
		}
	}
	return ignored
}

// Skip is Match for files, shaped for compile.Discover.
func (m *Matcher) Skip(p string) bool { return m.Match(p, false) }

// underDir reports whether any ancestor directory of p matches glob.
func underDir(glob, p string) bool {
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		if matchGlob(glob, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

// matchGlob matches p itself or anything below it.
func matchGlob(glob, p string) bool {
	if ok, _ := doublestar.Match(glob, p); ok {
		return true
	}
	if strings.HasSuffix(glob, "/**") {
		return false
	}
	ok, _ := doublestar.Match(glob+"/**", p)
	return ok
}

// LoadFS builds a matcher from Defaults plus the ignore file at the root
// of fsys, if present.
func LoadFS(fsys fs.FS) (*Matcher, error) {
	m := New(Defaults...)

	f, err := fsys.Open(FileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("opening %s: %w", FileName, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.Add(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", FileName, err)
	}
	return m, nil
}
