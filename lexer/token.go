// Package lexer turns wiki markup into block tokens and inline token trees.
package lexer

import (
	"errors"
	"fmt"
	"strconv"
)

// BlockKind identifies a line-level token.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockNewline
	BlockUnorderedItem
	BlockOrderedItem
	BlockHorizontalRule
	BlockParagraph
	BlockVerbatim
	BlockImage
	BlockEnd
)

func (k BlockKind) String() string {
	switch k {
	case BlockHeading:
		return "HEADING"
	case BlockNewline:
		return "NEWLINE"
	case BlockUnorderedItem:
		return "ULISTITEM"
	case BlockOrderedItem:
		return "OLISTITEM"
	case BlockHorizontalRule:
		return "HORIZONTALRULE"
	case BlockParagraph:
		return "PARAGRAPH"
	case BlockVerbatim:
		return "VERBATIMBLOCK"
	case BlockImage:
		return "IMAGE"
	case BlockEnd:
		return "ENDOF"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(k)) + ")"
	}
}

// BlockToken is one line-level lexical unit.
type BlockToken struct {
	Kind  BlockKind
	Line  int    // line the construct starts on (1-based)
	Text  string // raw text; empty for rules, newlines and END
	Level int    // run length for headings and list items, 0 otherwise
}

// HasText reports whether the token carries inline-lexable text.
func (t BlockToken) HasText() bool {
	switch t.Kind {
	case BlockHeading, BlockUnorderedItem, BlockOrderedItem, BlockParagraph, BlockImage:
		return true
	}
	return false
}

// InlineKind identifies a character-level token inside a block's text.
type InlineKind int

const (
	InlineText InlineKind = iota
	InlineBold
	InlineItalic
	InlineLink
	InlineImage
	InlineVerbatim
	InlineLineBreak
)

func (k InlineKind) String() string {
	switch k {
	case InlineText:
		return "TEXT"
	case InlineBold:
		return "BOLD"
	case InlineItalic:
		return "ITALIC"
	case InlineLink:
		return "LINK"
	case InlineImage:
		return "IMAGE"
	case InlineVerbatim:
		return "VERBATIM"
	case InlineLineBreak:
		return "LINEBREAK"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(k)) + ")"
	}
}

// InlineToken is a node of the inline token tree. Only BOLD and ITALIC
// carry children; LINK and IMAGE are leaves with Content and URL set.
type InlineToken struct {
	Kind     InlineKind
	Content  string
	URL      string
	Line     int
	Children []InlineToken
}

// ErrUseBeforeReady is returned when tokens are requested before a scan.
var ErrUseBeforeReady = errors.New("lexer: tokens requested before tokenize")

// LexError reports an unexpected end of input while scanning.
type LexError struct {
	Line int
	Msg  string
}

func (e *LexError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("block lexer: %s, at line %d", e.Msg, e.Line)
	}
	return "block lexer: " + e.Msg
}
