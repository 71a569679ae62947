// Package compile runs the lex, build and extract phases over a document.
package compile

import (
	"fmt"
	"io"
	"log/slog"

	"wikigraph/config"
	"wikigraph/lexer"
	"wikigraph/linkmatch"
	"wikigraph/semantic"
	"wikigraph/structural"
)

// Result holds every artifact of one compilation.
type Result struct {
	Tokens    []lexer.BlockToken
	Structure *structural.Layer
	Semantic  *semantic.Layer
	// Errors are the non-fatal problems recorded while building.
	Errors []*structural.BuildError
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLogger sets the logger handed to every phase.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecovery sets the structural recovery strategy.
func WithRecovery(r structural.RecoveryStrategy) Option {
	return func(c *Compiler) { c.recovery = r }
}

// WithMatcher sets the link classifier.
func WithMatcher(m *linkmatch.Matcher) Option {
	return func(c *Compiler) { c.matcher = m }
}

// WithBacklinks enables BACKLINK edge materialization.
func WithBacklinks(enabled bool) Option {
	return func(c *Compiler) { c.backlinks = enabled }
}

// Compiler turns wiki source into structural and semantic layers. Each
// call builds fresh layers, so one Compiler may serve many goroutines.
type Compiler struct {
	recovery  structural.RecoveryStrategy
	matcher   *linkmatch.Matcher
	backlinks bool
	logger    *slog.Logger
}

// New creates a Compiler.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		recovery: structural.DefaultRecovery,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a Compiler from loaded configuration.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Compiler, error) {
	r, err := cfg.RecoveryStrategy()
	if err != nil {
		return nil, err
	}
	m, err := cfg.Matcher()
	if err != nil {
		return nil, err
	}
	return New(
		WithLogger(logger),
		WithRecovery(r),
		WithMatcher(m),
		WithBacklinks(cfg.Semantic.MaterializeBacklinks),
	), nil
}

// Compile lexes, builds and extracts src. A lexing failure or a fatal
// build error is returned; recorded build errors are in Result.Errors.
func (c *Compiler) Compile(src string) (*Result, error) {
	tokens, err := lexer.Tokenize(src, lexer.WithLogger(c.logger))
	if err != nil {
		return nil, fmt.Errorf("lexing: %w", err)
	}

	s := structural.New(structural.WithLogger(c.logger), structural.WithRecovery(c.recovery))
	if err := s.Build(tokens); err != nil {
		return nil, err
	}

	sem := semantic.New(
		semantic.WithLogger(c.logger),
		semantic.WithMatcher(c.matcher),
		semantic.WithBacklinks(c.backlinks),
	)
	sem.Extract(s, s.Root())

	return &Result{
		Tokens:    tokens,
		Structure: s,
		Semantic:  sem,
		Errors:    s.Errors(),
	}, nil
}
