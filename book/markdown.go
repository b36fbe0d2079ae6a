package book

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

// openMarkdown loads a markdown file as a single-chapter book. The TOC is
// synthesized from its headings.
func openMarkdown(path string) (*Book, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	src := StripFrontmatter(raw)

	blocks, toc := markdownBlocks(src)
	title := firstHeading(blocks)
	if title == "" {
		base := filepath.Base(path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &Book{
		Path:  path,
		Title: title,
		toc:   toc,
		single: &Chapter{
			Title:    title,
			Blocks:   blocks,
			Markdown: string(src),
		},
	}, nil
}

// markdownBlocks walks the goldmark AST and flattens the document into
// block elements. Code blocks are not speakable and are dropped.
func markdownBlocks(source []byte) ([]sentence.Block, []TOCEntry) {
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var blocks []sentence.Block
	var toc []TOCEntry
	emit := func(kind sentence.Kind, level int, text string) {
		if text == "" {
			return
		}
		blocks = append(blocks, sentence.Block{Kind: kind, Level: level, Text: text})
	}

	var walk func(n ast.Node, quoted bool)
	walk = func(n ast.Node, quoted bool) {
		switch t := n.(type) {
		case *ast.Heading:
			txt := inlineText(t, source)
			emit(sentence.KindHeading, t.Level, txt)
			if txt != "" {
				level := t.Level - 1
				if level < 0 {
					level = 0
				}
				toc = append(toc, TOCEntry{Title: txt, Level: level})
			}
			return

		case *ast.Blockquote:
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c, true)
			}
			return

		case *ast.ListItem:
			// The item's own content first, nested lists after.
			var parts []string
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if _, ok := c.(*ast.List); ok {
					continue
				}
				if s := inlineText(c, source); s != "" {
					parts = append(parts, s)
				}
			}
			emit(sentence.KindListItem, 0, strings.Join(parts, " "))
			for c := t.FirstChild(); c != nil; c = c.NextSibling() {
				if _, ok := c.(*ast.List); ok {
					walk(c, quoted)
				}
			}
			return

		case *ast.Paragraph:
			kind := sentence.KindParagraph
			if quoted {
				kind = sentence.KindBlockquote
			}
			emit(kind, 0, inlineText(t, source))
			return

		case *ast.TextBlock:
			kind := sentence.KindParagraph
			if quoted {
				kind = sentence.KindBlockquote
			}
			emit(kind, 0, inlineText(t, source))
			return

		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock, *ast.ThematicBreak:
			return
		}

		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c, quoted)
		}
	}
	walk(doc, false)
	return blocks, toc
}

// inlineText extracts the plain text beneath a block node. Inline markup is
// unwrapped, autolinks keep their URL so pronunciation rules can see it, and
// images contribute nothing.
func inlineText(node ast.Node, source []byte) string {
	var buf strings.Builder
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteString(" ")
			}
		case *ast.String:
			buf.Write(t.Value)
		case *ast.AutoLink:
			buf.Write(t.URL(source))
		case *ast.Image:
			return
		default:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c)
			}
		}
	}
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c)
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}

// StripFrontmatter removes a leading YAML frontmatter fence so metadata is
// neither rendered nor narrated.
func StripFrontmatter(src []byte) []byte {
	lines := bytes.SplitAfter(src, []byte("\n"))
	if len(lines) < 2 || strings.TrimRight(string(lines[0]), "\r\n") != "---" {
		return src
	}
	offset := len(lines[0])
	for _, line := range lines[1:] {
		offset += len(line)
		switch strings.TrimRight(string(line), "\r\n") {
		case "---", "...":
			return src[offset:]
		}
	}
	return src
}
