// Package sentence turns block-level chapter text into ordered speakable
// chunks with stable ids, and annotates the source blocks so every sentence
// can be targeted by id for highlighting.
package sentence

import (
	"fmt"
	"html"
	"strings"
)

// Chunk is one normalized sentence, the unit of synthesis and highlighting.
// Ids are unique and sequential within one chapter render; their order is
// the playback order.
type Chunk struct {
	ID   string
	Text string
}

// Kind classifies a block-level element.
type Kind int

const (
	// KindParagraph is a regular paragraph.
	KindParagraph Kind = iota
	// KindHeading is a heading of any level.
	KindHeading
	// KindListItem is a single list item.
	KindListItem
	// KindBlockquote is a quoted block.
	KindBlockquote
)

// Block is one block-level element of rendered chapter content.
type Block struct {
	Kind  Kind
	Level int // heading level; zero for other kinds
	Text  string
}

// Span marks the byte range of one sentence inside a block's text, keyed by
// its chunk id. Spans exist even for sentences whose speech text normalized
// to empty, so the id-to-position mapping stays complete.
type Span struct {
	ID    string
	Start int
	End   int
}

// MarkedBlock is a block whose sentences have been annotated with chunk ids.
type MarkedBlock struct {
	Block
	Spans []Span
}

// HTML returns the block text with each sentence wrapped in an inline span
// element carrying its chunk id.
func (mb MarkedBlock) HTML() string {
	var b strings.Builder
	pos := 0
	for _, sp := range mb.Spans {
		b.WriteString(html.EscapeString(mb.Text[pos:sp.Start]))
		fmt.Fprintf(&b, `<span id=%q>%s</span>`, sp.ID, html.EscapeString(mb.Text[sp.Start:sp.End]))
		pos = sp.End
	}
	b.WriteString(html.EscapeString(mb.Text[pos:]))
	return b.String()
}

// SpanAt returns the span containing the given byte offset, if any.
func (mb MarkedBlock) SpanAt(offset int) (Span, bool) {
	for _, sp := range mb.Spans {
		if offset >= sp.Start && offset < sp.End {
			return sp, true
		}
	}
	return Span{}, false
}
