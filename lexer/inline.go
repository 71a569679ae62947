package lexer

import (
	"log/slog"
	"strings"
)

type inlineState int

const (
	stateNormal inlineState = iota
	stateBold
	stateItalic
	stateLink
	stateImage
	stateVerbatim
	stateEscape
)

var openers = map[inlineState]string{
	stateBold:     "**",
	stateItalic:   "//",
	stateLink:     "[[",
	stateImage:    "{{",
	stateVerbatim: "{{{",
}

var closers = map[inlineState]string{
	stateBold:     "**",
	stateItalic:   "//",
	stateLink:     "]]",
	stateImage:    "}}",
	stateVerbatim: "}}}",
}

// InlineLexer tokenizes the text of a single block. It never fails:
// unterminated constructs fall back to literal text.
type InlineLexer struct {
	logger *slog.Logger
}

// NewInlineLexer creates an inline lexer.
func NewInlineLexer(opts ...Option) *InlineLexer {
	o := buildOptions(opts)
	return &InlineLexer{logger: o.logger.With(slog.String("component", "inline-lexer"))}
}

// Tokenize lexes text whose first character sits on line.
func (l *InlineLexer) Tokenize(text string, line int) []InlineToken {
	s := &inlineScanner{lexer: l, src: text, line: line, last: make(map[string]int, len(closers))}
	for _, c := range closers {
		s.last[c] = strings.LastIndex(text, c)
	}
	return s.run()
}

// inlineScanner holds the state of one Tokenize call.
type inlineScanner struct {
	lexer *InlineLexer
	src   string
	pos   int
	line  int
	state inlineState

	// last start offset of each closer in src, -1 when absent
	last map[string]int

	// pending literal text and the line it started on
	text     strings.Builder
	textLine int

	// construct being accumulated
	acc      strings.Builder
	openPos  int
	openLine int

	out []InlineToken
}

func (s *inlineScanner) run() []InlineToken {
	for {
		if s.pos >= len(s.src) {
			if s.state == stateNormal || s.state == stateEscape {
				break
			}
			s.unterminated()
			continue
		}

		switch s.state {
		case stateNormal:
			s.normal()
		case stateEscape:
			s.writeText(s.src[s.pos : s.pos+1])
			s.pos++
			s.state = stateNormal
		case stateBold, stateItalic:
			s.formatting()
		case stateLink, stateImage, stateVerbatim:
			s.raw()
		}
	}
	s.flushText()
	return s.out
}

func (s *inlineScanner) normal() {
	switch {
	case s.src[s.pos] == '~':
		if s.pos+1 < len(s.src) {
			s.pos++
			s.state = stateEscape
			return
		}
		s.writeText("~")
		s.pos++
	case s.hasPrefix(`\\`):
		s.flushText()
		s.emit(InlineToken{Kind: InlineLineBreak, Line: s.line})
		s.pos += 2
	case s.hasPrefix("**"):
		s.tryOpen(stateBold)
	case s.hasPrefix("//") && !precededByScheme(s.src, s.pos):
		s.tryOpen(stateItalic)
	case s.hasPrefix("[["):
		s.tryOpen(stateLink)
	case s.hasPrefix("{{{"):
		s.tryOpen(stateVerbatim)
	case s.hasPrefix("{{"):
		s.tryOpen(stateImage)
	default:
		s.writeText(s.src[s.pos : s.pos+1])
		s.pos++
	}
}

// formatting accumulates bold or italic content. Escapes and nested
// link, image and verbatim constructs are copied whole so a terminator
// inside them does not close the span.
func (s *inlineScanner) formatting() {
	if s.atCloser() {
		inner := s.acc.String()
		kind := InlineBold
		if s.state == stateItalic {
			kind = InlineItalic
		}
		s.pos += len(closers[s.state])
		s.close(InlineToken{
			Kind:     kind,
			Content:  inner,
			Line:     s.openLine,
			Children: s.lexer.Tokenize(inner, s.openLine),
		})
		return
	}

	chunk := s.src[s.pos : s.pos+1]
	switch {
	case s.src[s.pos] == '~' && s.pos+1 < len(s.src):
		chunk = s.src[s.pos : s.pos+2]
	case s.hasPrefix("[["):
		chunk = s.spanTo("[[", "]]")
	case s.hasPrefix("{{{"):
		chunk = s.spanTo("{{{", "}}}")
	case s.hasPrefix("{{"):
		chunk = s.spanTo("{{", "}}")
	}
	s.accumulate(chunk)
}

// raw accumulates link, image or verbatim content up to the first closer.
func (s *inlineScanner) raw() {
	if !s.atCloser() {
		s.accumulate(s.src[s.pos : s.pos+1])
		return
	}

	inner := s.acc.String()
	s.pos += len(closers[s.state])

	switch s.state {
	case stateLink:
		target, text := splitPipe(inner)
		s.close(InlineToken{Kind: InlineLink, Content: text, URL: target, Line: s.openLine})
	case stateImage:
		url, alt := splitPipe(inner)
		s.close(InlineToken{Kind: InlineImage, Content: alt, URL: url, Line: s.openLine})
	case stateVerbatim:
		s.close(InlineToken{Kind: InlineVerbatim, Content: inner, Line: s.openLine})
	}
}

// atCloser reports whether the current state's terminator starts at pos.
// The italic terminator is ignored right after a URL scheme.
func (s *inlineScanner) atCloser() bool {
	if !s.hasPrefix(closers[s.state]) {
		return false
	}
	if s.state == stateItalic && precededByScheme(s.src, s.pos) {
		return false
	}
	return true
}

// tryOpen enters st unless its closer never occurs after the opener, in
// which case the opener is literal text right away.
func (s *inlineScanner) tryOpen(st inlineState) {
	opener := openers[st]
	if !s.closerFrom(closers[st], s.pos+len(opener)) {
		s.lexer.logger.Debug("unterminated inline construct",
			slog.String("opener", opener), slog.Int("line", s.line))
		s.writeText(opener)
		s.pos += len(opener)
		return
	}
	s.open(st)
}

// closerFrom reports whether closer starts anywhere at or after from.
func (s *inlineScanner) closerFrom(closer string, from int) bool {
	return s.last[closer] >= from
}

func (s *inlineScanner) open(st inlineState) {
	s.openPos = s.pos
	s.openLine = s.line
	s.acc.Reset()
	s.state = st
	s.pos += len(openers[st])
}

func (s *inlineScanner) close(tok InlineToken) {
	s.flushText()
	s.emit(tok)
	s.acc.Reset()
	s.state = stateNormal
}

// unterminated turns the pending opener into literal text and resumes
// scanning right after it.
func (s *inlineScanner) unterminated() {
	opener := openers[s.state]
	s.lexer.logger.Debug("unterminated inline construct",
		slog.String("opener", opener), slog.Int("line", s.openLine))

	s.line = s.openLine
	s.writeText(opener)
	s.pos = s.openPos + len(opener)
	s.acc.Reset()
	s.state = stateNormal
}

func (s *inlineScanner) accumulate(chunk string) {
	s.acc.WriteString(chunk)
	s.line += strings.Count(chunk, "\n")
	s.pos += len(chunk)
}

func (s *inlineScanner) writeText(chunk string) {
	if s.text.Len() == 0 {
		s.textLine = s.line
	}
	s.text.WriteString(chunk)
	s.line += strings.Count(chunk, "\n")
}

func (s *inlineScanner) flushText() {
	if s.text.Len() == 0 {
		return
	}
	s.emit(InlineToken{Kind: InlineText, Content: s.text.String(), Line: s.textLine})
	s.text.Reset()
}

func (s *inlineScanner) emit(tok InlineToken) {
	s.out = append(s.out, tok)
}

func (s *inlineScanner) hasPrefix(p string) bool {
	return strings.HasPrefix(s.src[s.pos:], p)
}

// spanTo returns the source from pos through the first closer, or just
// the opener when no closer follows.
func (s *inlineScanner) spanTo(opener, closer string) string {
	if !s.closerFrom(closer, s.pos+len(opener)) {
		return opener
	}
	rest := s.src[s.pos+len(opener):]
	if i := strings.Index(rest, closer); i >= 0 {
		return s.src[s.pos : s.pos+len(opener)+i+len(closer)]
	}
	return opener
}

// splitPipe splits "target|text" at the first pipe. A bare target is also
// its own text.
func splitPipe(s string) (target, text string) {
	target, text, found := strings.Cut(s, "|")
	target = strings.TrimSpace(target)
	text = strings.TrimSpace(text)
	if !found {
		text = target
	}
	return target, text
}

// precededByScheme reports whether src[:i] ends in a URL scheme, so a
// "//" at i belongs to the URL rather than opening italics.
func precededByScheme(src string, i int) bool {
	tail := strings.ToLower(src[max(0, i-6):i])
	return strings.HasSuffix(tail, "http:") ||
		strings.HasSuffix(tail, "https:") ||
		strings.HasSuffix(tail, "ftp:")
}
