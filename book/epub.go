package book

import (
	"fmt"
	"io"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

func openEPUB(path string) (*Book, error) {
	rc, err := epub.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open epub: %w", err)
	}
	if len(rc.Rootfiles) == 0 {
		rc.Close()
		return nil, fmt.Errorf("open epub: %s has no rootfile", path)
	}

	// Multi-rootfile EPUBs are rare; the first rendition is the book.
	rf := rc.Rootfiles[0]

	b := &Book{
		Path:   path,
		Title:  strings.TrimSpace(rf.Title),
		titles: make(map[int]string),
		rc:     rc,
	}
	for _, ref := range rf.Spine.Itemrefs {
		if ref.Item == nil {
			continue
		}
		b.spine = append(b.spine, ref.Item)
	}
	if len(b.spine) == 0 {
		rc.Close()
		return nil, fmt.Errorf("open epub: %s has an empty spine", path)
	}

	// The TOC is best effort. A book without a usable NCX still reads
	// fine, chapters just fall back to numbered titles.
	b.toc = readNCX(rf, b.spine)
	for _, entry := range b.toc {
		if _, ok := b.titles[entry.Chapter]; !ok {
			b.titles[entry.Chapter] = entry.Title
		}
	}
	return b, nil
}

func (b *Book) epubChapter(i int) (*Chapter, error) {
	r, err := b.spine[i].Open()
	if err != nil {
		return nil, fmt.Errorf("chapter %d: %w", i, err)
	}
	defer r.Close() //nolint:errcheck

	blocks, err := extractBlocks(r)
	if err != nil {
		return nil, fmt.Errorf("chapter %d: %w", i, err)
	}

	title := b.titles[i]
	if title == "" {
		title = firstHeading(blocks)
	}
	if title == "" {
		title = fmt.Sprintf("Section %d", i+1)
	}
	return &Chapter{
		Index:    i,
		Title:    title,
		Blocks:   blocks,
		Markdown: renderMarkdown(blocks),
	}, nil
}

func firstHeading(blocks []sentence.Block) string {
	for _, blk := range blocks {
		if blk.Kind == sentence.KindHeading {
			return blk.Text
		}
	}
	return ""
}

// extractBlocks walks an XHTML chapter document and flattens it into block
// elements. Inline markup is discarded; only the readable text survives.
func extractBlocks(r io.Reader) ([]sentence.Block, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var blocks []sentence.Block
	emit := func(kind sentence.Kind, level int, text string) {
		if text == "" {
			return
		}
		blocks = append(blocks, sentence.Block{Kind: kind, Level: level, Text: text})
	}

	var walk func(n *html.Node, quoted bool)
	walk = func(n *html.Node, quoted bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "head", "script", "style", "nav", "table", "figure":
				return
			case "h1", "h2", "h3", "h4", "h5", "h6":
				emit(sentence.KindHeading, int(n.Data[1]-'0'), flatText(n, nil))
				return
			case "li":
				emit(sentence.KindListItem, 0, flatText(n, nestedLists))
				// Sublists become their own items.
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && nestedLists[c.Data] {
						walk(c, quoted)
					}
				}
				return
			case "p":
				kind := sentence.KindParagraph
				if quoted {
					kind = sentence.KindBlockquote
				}
				emit(kind, 0, flatText(n, nil))
				return
			case "blockquote":
				if hasElement(n, "p") {
					quoted = true
				} else {
					emit(sentence.KindBlockquote, 0, flatText(n, nil))
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, quoted)
		}
	}
	walk(doc, false)
	return blocks, nil
}

var nestedLists = map[string]bool{"ul": true, "ol": true}

// flatText collects the text content beneath n with whitespace collapsed,
// skipping any element named in skip.
func flatText(n *html.Node, skip map[string]bool) string {
	var parts []string
	var collect func(n *html.Node)
	collect = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			parts = append(parts, n.Data)
			return
		case html.ElementNode:
			if skip[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func hasElement(n *html.Node, name string) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == name {
			return true
		}
		if hasElement(c, name) {
			return true
		}
	}
	return false
}
