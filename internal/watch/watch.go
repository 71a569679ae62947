// Package watch recompiles documents as they change on disk.
package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"wikigraph/cas"
	"wikigraph/compile"
)

// Operation is the kind of change an Event reports.
type Operation string

const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Event is one processed change. Result is nil for deletes and failures.
type Event struct {
	Path      string // slash-separated, relative to the watched root
	Operation Operation
	Source    string
	Result    *compile.Result
	Err       error
}

// Config configures a Watcher.
type Config struct {
	Root     string
	Include  string
	Skip     func(path string, isDir bool) bool // e.g. ignore.Matcher.Match
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher compiles documents under a root whenever their content changes.
type Watcher struct {
	cfg      Config
	compiler *compile.Compiler
	fsw      *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]fsnotify.Op

	hashMu sync.Mutex
	hashes map[string]string // relative path -> BLAKE3 of the source

	events chan Event
}

// New creates a Watcher. Start must be called to begin watching.
func New(cfg Config, c *compile.Compiler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Watcher{
		cfg:      cfg,
		compiler: c,
		fsw:      fsw,
		logger:   logger.With(slog.String("component", "watch")),
		pending:  make(map[string]fsnotify.Op),
		hashes:   make(map[string]string),
		events:   make(chan Event, 100),
	}, nil
}

// Events returns the channel of processed changes. It is closed when the
// watcher stops.
func (w *Watcher) Events() <-chan Event { return w.events }

// Start adds watches below the root and processes changes until ctx is
// done.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.cfg.Root); err != nil {
		w.fsw.Close()
		close(w.events)
		return fmt.Errorf("watching %s: %w", w.cfg.Root, err)
	}
	go w.loop(ctx)
	w.logger.Info("watching", slog.String("root", w.cfg.Root), slog.Duration("debounce", w.cfg.Debounce))
	return nil
}

// Seed records the current content of path so an unchanged save does not
// produce an event.
func (w *Watcher) Seed(path, source string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[path] = cas.Blake3HashHex([]byte(source))
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) skipDir(path string) bool {
	rel, err := w.rel(path)
	if err != nil {
		return true
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	return w.cfg.Skip != nil && w.cfg.Skip(rel, true)
}

func (w *Watcher) rel(path string) (string, error) {
	r, err := filepath.Rel(w.cfg.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(r), nil
}

// wanted reports whether a file path is a document to compile.
func (w *Watcher) wanted(rel string) bool {
	if ok, _ := doublestar.Match(w.cfg.Include, rel); !ok {
		return false
	}
	return w.cfg.Skip == nil || !w.cfg.Skip(rel, false)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.events)
	defer w.fsw.Close()

	ticker := time.NewTicker(w.cfg.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return
		}
	}
	rel, err := w.rel(ev.Name)
	if err != nil || !w.wanted(rel) {
		return
	}

	w.pendingMu.Lock()
	w.pending[ev.Name] |= ev.Op
	w.pendingMu.Unlock()
	w.logger.Debug("change detected", slog.String("path", rel), slog.String("op", ev.Op.String()))
}

func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.pendingMu.Unlock()

	for path := range batch {
		if ctx.Err() != nil {
			return
		}
		if ev, ok := w.process(path); ok {
			w.send(ctx, ev)
		}
	}
}

// process compiles one changed file. It reports false when the content
// is unchanged since the last event.
func (w *Watcher) process(path string) (Event, bool) {
	rel, _ := w.rel(path)
	ev := Event{Path: rel}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		w.hashMu.Lock()
		_, known := w.hashes[rel]
		delete(w.hashes, rel)
		w.hashMu.Unlock()
		ev.Operation = OpDelete
		return ev, known
	}
	if err != nil {
		ev.Operation = OpModify
		ev.Err = err
		return ev, true
	}

	hash := cas.Blake3HashHex(data)
	w.hashMu.Lock()
	old, had := w.hashes[rel]
	w.hashes[rel] = hash
	w.hashMu.Unlock()
	if had && old == hash {
		return ev, false
	}

	ev.Operation = OpModify
	if !had {
		ev.Operation = OpCreate
	}
	ev.Source = string(data)
	ev.Result, ev.Err = w.compiler.Compile(ev.Source)
	return ev, true
}

func (w *Watcher) send(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	}
}
