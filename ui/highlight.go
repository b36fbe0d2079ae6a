package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

// renderNarration builds the reading view used while narration is active.
// Every sentence stays addressable by chunk id, the active one is styled,
// and the returned map gives the content line each sentence's block starts
// on so the reader can keep the spoken sentence scrolled into view.
func renderNarration(blocks []sentence.MarkedBlock, active string, width int) (string, map[string]int) {
	if width < 1 {
		width = 1
	}

	var out strings.Builder
	lineOf := make(map[string]int)

	// line tracks the cursor: the content line the next write lands on.
	line := 0
	for i, mb := range blocks {
		if i > 0 {
			out.WriteString("\n\n")
			line += 2
		}
		rendered := renderMarkedBlock(mb, active, width)
		for _, sp := range mb.Spans {
			lineOf[sp.ID] = line
		}
		out.WriteString(rendered)
		line += strings.Count(rendered, "\n")
	}
	return out.String(), lineOf
}

// renderMarkedBlock styles one block sentence by sentence and wraps it. The
// wrap happens after styling; reflow measures printable width only, so the
// escape sequences do not count against the line.
func renderMarkedBlock(mb sentence.MarkedBlock, active string, width int) string {
	base := blockStyle(mb.Kind)

	var b strings.Builder
	switch mb.Kind {
	case sentence.KindListItem:
		b.WriteString("• ")
	case sentence.KindBlockquote:
		b.WriteString(narrationQuoteStyle.Render("│ "))
	}

	pos := 0
	for _, sp := range mb.Spans {
		if sp.Start > pos {
			b.WriteString(base.Render(mb.Text[pos:sp.Start]))
		}
		if seg := mb.Text[sp.Start:sp.End]; seg != "" {
			if sp.ID == active && active != "" {
				b.WriteString(highlightStyle.Render(seg))
			} else {
				b.WriteString(base.Render(seg))
			}
		}
		pos = sp.End
	}
	if pos < len(mb.Text) {
		b.WriteString(base.Render(mb.Text[pos:]))
	}

	return wordwrap.String(b.String(), width)
}

func blockStyle(kind sentence.Kind) lipgloss.Style {
	switch kind {
	case sentence.KindHeading:
		return narrationHeadingStyle
	case sentence.KindBlockquote:
		return narrationQuoteStyle
	default:
		return lipgloss.NewStyle()
	}
}
