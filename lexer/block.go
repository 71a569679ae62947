package lexer

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Option configures a lexer.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used for debug tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// BlockLexer scans a whole document into a flat sequence of block tokens.
type BlockLexer struct {
	src    string
	pos    int
	line   int
	tokens []BlockToken
	ready  bool
	logger *slog.Logger
}

// NewBlockLexer creates a lexer over src. CRLF line endings are normalized.
func NewBlockLexer(src string, opts ...Option) *BlockLexer {
	o := buildOptions(opts)
	return &BlockLexer{
		src:    strings.ReplaceAll(src, "\r\n", "\n"),
		line:   1,
		logger: o.logger.With(slog.String("component", "block-lexer")),
	}
}

// Tokenize scans the document. The resulting sequence always ends with
// exactly one END token, even for empty input.
func (l *BlockLexer) Tokenize() error {
	l.pos, l.line, l.tokens, l.ready = 0, 1, nil, false
	l.logger.Debug("block tokenization started", slog.Int("bytes", len(l.src)))

	for !l.end() {
		if err := l.next(); err != nil {
			return err
		}
	}
	l.tokens = append(l.tokens, BlockToken{Kind: BlockEnd, Line: l.line})
	l.ready = true

	l.logger.Debug("block tokenization ended", slog.Int("tokens", len(l.tokens)))
	return nil
}

// Tokens returns the scanned tokens. It fails with ErrUseBeforeReady if
// Tokenize has not completed successfully.
func (l *BlockLexer) Tokens() ([]BlockToken, error) {
	if !l.ready {
		return nil, ErrUseBeforeReady
	}
	out := make([]BlockToken, len(l.tokens))
	copy(out, l.tokens)
	return out, nil
}

// Tokenize is a convenience wrapper that scans src and returns its tokens.
func Tokenize(src string, opts ...Option) ([]BlockToken, error) {
	l := NewBlockLexer(src, opts...)
	if err := l.Tokenize(); err != nil {
		return nil, err
	}
	return l.Tokens()
}

// String renders the scanned tokens for debugging.
func (l *BlockLexer) String() string {
	var sb strings.Builder
	for _, t := range l.tokens {
		fmt.Fprintf(&sb, "Type: %s\n", t.Kind)
		fmt.Fprintf(&sb, "Loc: %d\n", t.Line)
		if t.Text != "" {
			fmt.Fprintf(&sb, "Text: %s\n", t.Text)
		}
		if t.Level > 0 {
			fmt.Fprintf(&sb, "Level: %d\n", t.Level)
		}
		sb.WriteString("--------------------------------------------\n")
	}
	return sb.String()
}

func (l *BlockLexer) next() error {
	if l.blankLine() {
		return l.readBlankLine()
	}
	if err := l.skipIndent(); err != nil {
		return err
	}

	switch {
	case l.peek() == '=':
		return l.readHeading()
	case l.peek() == '*':
		return l.readListItem('*', BlockUnorderedItem)
	case l.peek() == '#':
		return l.readListItem('#', BlockOrderedItem)
	case l.isRule():
		return l.readRule()
	case l.hasPrefix("{{{"):
		return l.readVerbatim()
	case l.hasPrefix("{{"):
		return l.readImage()
	default:
		return l.readParagraph()
	}
}

/*=== Reading Functions ===*/

func (l *BlockLexer) readHeading() error {
	line := l.line
	level := 0
	for !l.end() && l.peek() == '=' {
		level++
		if err := l.advance(1); err != nil {
			return err
		}
	}

	text, err := l.readRestOfLine()
	if err != nil {
		return err
	}
	text = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(text), "="))

	l.emit(BlockToken{Kind: BlockHeading, Line: line, Text: text, Level: level})
	return l.consumeNewline()
}

func (l *BlockLexer) readListItem(marker byte, kind BlockKind) error {
	line := l.line
	level := 0
	for !l.end() && l.peek() == marker {
		level++
		if err := l.advance(1); err != nil {
			return err
		}
	}

	text, err := l.readRestOfLine()
	if err != nil {
		return err
	}

	l.emit(BlockToken{Kind: kind, Line: line, Text: strings.TrimSpace(text), Level: level})
	return l.consumeNewline()
}

func (l *BlockLexer) readRule() error {
	line := l.line
	if _, err := l.readRestOfLine(); err != nil {
		return err
	}
	l.emit(BlockToken{Kind: BlockHorizontalRule, Line: line})
	return l.consumeNewline()
}

// readParagraph accumulates soft-wrapped lines. It stops before a line
// that starts another block, right after an empty line, or when the
// following line is whitespace-only and newline terminated.
func (l *BlockLexer) readParagraph() error {
	line := l.line
	var text strings.Builder

	for !l.end() {
		if l.isBlockStart() {
			break
		}

		rest, err := l.readRestOfLine()
		if err != nil {
			return err
		}
		text.WriteString(rest)

		if !l.end() && l.peek() == '\n' {
			if err := l.advance(1); err != nil {
				return err
			}

			if !l.end() && l.peek() == '\n' {
				break
			}
			if l.blankLineTerminated() {
				break
			}
		}
		text.WriteByte('\n')
	}

	l.emit(BlockToken{Kind: BlockParagraph, Line: line, Text: strings.TrimSpace(text.String())})
	return nil
}

// readVerbatim reads a {{{ ... }}} block. Nested triple braces are
// balanced; content is kept byte for byte. An unclosed block runs to the
// end of input.
func (l *BlockLexer) readVerbatim() error {
	line := l.line
	if err := l.advance(3); err != nil {
		return err
	}

	var text strings.Builder
	depth := 1
	for !l.end() && depth > 0 {
		switch {
		case l.hasPrefix("{{{"):
			depth++
			text.WriteString("{{{")
			if err := l.advance(3); err != nil {
				return err
			}
		case l.hasPrefix("}}}"):
			depth--
			if depth > 0 {
				text.WriteString("}}}")
			}
			if err := l.advance(3); err != nil {
				return err
			}
		default:
			text.WriteByte(l.peek())
			if err := l.advance(1); err != nil {
				return err
			}
		}
	}

	l.emit(BlockToken{Kind: BlockVerbatim, Line: line, Text: text.String()})

	// anything trailing the closing braces on that line is dropped
	if _, err := l.readRestOfLine(); err != nil {
		return err
	}
	return l.consumeNewline()
}

// readImage reads a {{url|alt}} block. The raw payload is kept for the
// structural layer to split.
func (l *BlockLexer) readImage() error {
	line := l.line
	if err := l.advance(2); err != nil {
		return err
	}

	var text strings.Builder
	for !l.end() && !l.hasPrefix("}}") {
		text.WriteByte(l.peek())
		if err := l.advance(1); err != nil {
			return err
		}
	}
	// an unclosed image runs into the end of input here
	if err := l.advance(2); err != nil {
		return err
	}

	l.emit(BlockToken{Kind: BlockImage, Line: line, Text: strings.TrimSpace(text.String())})

	if l.blankLine() {
		if _, err := l.readRestOfLine(); err != nil {
			return err
		}
		return l.consumeNewline()
	}
	return nil
}

func (l *BlockLexer) readBlankLine() error {
	line := l.line
	if _, err := l.readRestOfLine(); err != nil {
		return err
	}
	l.emit(BlockToken{Kind: BlockNewline, Line: line})
	return l.consumeNewline()
}

/*=== Helper Functions ===*/

func (l *BlockLexer) emit(t BlockToken) {
	l.logger.Debug("token", slog.String("kind", t.Kind.String()), slog.Int("line", t.Line))
	l.tokens = append(l.tokens, t)
}

func (l *BlockLexer) end() bool { return l.pos >= len(l.src) }

// peek returns the current byte. Callers check end() first.
func (l *BlockLexer) peek() byte {
	if l.end() {
		return 0
	}
	return l.src[l.pos]
}

func (l *BlockLexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.src[l.pos:], s)
}

// advance moves n bytes forward, counting every newline it crosses.
func (l *BlockLexer) advance(n int) error {
	if l.end() || l.pos+n > len(l.src) {
		return &LexError{Line: l.line, Msg: fmt.Sprintf("unexpected end of input while advancing %d steps", n)}
	}
	l.line += strings.Count(l.src[l.pos:l.pos+n], "\n")
	l.pos += n
	return nil
}

// readRestOfLine consumes up to, not including, the next newline.
func (l *BlockLexer) readRestOfLine() (string, error) {
	start := l.pos
	idx := strings.IndexByte(l.src[l.pos:], '\n')
	n := len(l.src) - l.pos
	if idx >= 0 {
		n = idx
	}
	if n == 0 {
		return "", nil
	}
	if err := l.advance(n); err != nil {
		return "", err
	}
	return l.src[start:l.pos], nil
}

func (l *BlockLexer) consumeNewline() error {
	if !l.end() && l.peek() == '\n' {
		return l.advance(1)
	}
	return nil
}

func (l *BlockLexer) skipIndent() error {
	for !l.end() && (l.peek() == ' ' || l.peek() == '\t') {
		if err := l.advance(1); err != nil {
			return err
		}
	}
	return nil
}

// blankLine reports whether the rest of the current line is whitespace.
func (l *BlockLexer) blankLine() bool {
	for i := l.pos; i < len(l.src) && l.src[i] != '\n'; i++ {
		if !isSpace(l.src[i]) {
			return false
		}
	}
	return true
}

// blankLineTerminated is the paragraph lookahead: the upcoming line is
// whitespace-only and ends in a newline (not end of input).
func (l *BlockLexer) blankLineTerminated() bool {
	i := l.pos
	for i < len(l.src) && l.src[i] != '\n' {
		if !isSpace(l.src[i]) {
			return false
		}
		i++
	}
	return i < len(l.src) && l.src[i] == '\n'
}

func (l *BlockLexer) isRule() bool {
	if !l.hasPrefix("----") {
		return false
	}
	for i := l.pos + 4; i < len(l.src) && l.src[i] != '\n'; i++ {
		if l.src[i] != '-' && !isSpace(l.src[i]) {
			return false
		}
	}
	return true
}

func (l *BlockLexer) isBlockStart() bool {
	if l.end() {
		return false
	}
	switch l.peek() {
	case '=', '*', '#':
		return true
	}
	return l.isRule() || l.hasPrefix("{{")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\v' || c == '\f'
}
