package compile

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome of compiling one file in a batch.
type FileResult struct {
	Path   string
	Source string
	Result *Result
	Err    error
}

// Discover returns the files in fsys matching the include glob, sorted.
// skip, when non-nil, filters out ignored paths.
func Discover(fsys fs.FS, include string, skip func(path string) bool) ([]string, error) {
	matches, err := doublestar.Glob(fsys, include, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", include, err)
	}
	paths := matches[:0]
	for _, p := range matches {
		if skip != nil && skip(p) {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

// CompileFS compiles each path from fsys with at most workers running at
// once. Per-file failures are reported in the results, which keep the
// order of paths; only cancellation of ctx is returned as an error.
func (c *Compiler) CompileFS(ctx context.Context, fsys fs.FS, paths []string, workers int) ([]FileResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.compileFile(fsys, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Compiler) compileFile(fsys fs.FS, path string) FileResult {
	fr := FileResult{Path: path}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		fr.Err = fmt.Errorf("reading %s: %w", path, err)
		return fr
	}
	fr.Source = string(data)

	res, err := c.Compile(fr.Source)
	if err != nil {
		c.logger.Warn("compile failed", slog.String("path", path), slog.String("error", err.Error()))
		fr.Err = fmt.Errorf("%s: %w", path, err)
		return fr
	}
	fr.Result = res
	return fr
}
