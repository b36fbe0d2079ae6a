// Package book opens EPUB and markdown books and extracts their chapters
// as ordered block-level text: the input for both terminal rendering and
// narration.
package book

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/taylorskalyo/goreader/epub"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

// Extensions lists the file patterns recognized as books, in shelf-discovery
// form.
var Extensions = []string{
	"*.epub", "*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown",
}

var (
	// ErrUnsupported means the path does not look like a book we can open.
	ErrUnsupported = errors.New("unsupported book format")

	// ErrNoChapter means a chapter index was out of range.
	ErrNoChapter = errors.New("no such chapter")
)

// Chapter is one readable unit of a book: its blocks feed the narration
// normalizer, and Markdown is the terminal rendition of the same content.
type Chapter struct {
	Index    int
	Title    string
	Blocks   []sentence.Block
	Markdown string
}

// TOCEntry is one line of the table of contents, resolved to the chapter it
// starts in. Level is the nesting depth, starting at zero.
type TOCEntry struct {
	Title   string
	Level   int
	Chapter int
}

// Book is an opened EPUB or markdown file. EPUB chapters are extracted
// lazily from the archive, which stays open until Close. Markdown files are
// single-chapter books parsed up front.
type Book struct {
	Path  string
	Title string

	toc    []TOCEntry
	spine  []*epub.Item
	titles map[int]string
	single *Chapter
	rc     *epub.ReadCloser
}

// Open opens the book at path, choosing the backend by file extension.
func Open(path string) (*Book, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return openEPUB(path)
	case ".md", ".mdown", ".mkdn", ".mkd", ".markdown":
		return openMarkdown(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}

// Close releases the underlying archive, if any. The book must not be used
// afterwards.
func (b *Book) Close() error {
	if b.rc != nil {
		b.rc.Close()
		b.rc = nil
	}
	return nil
}

// Chapters returns how many chapters the book has.
func (b *Book) Chapters() int {
	if b.single != nil {
		return 1
	}
	return len(b.spine)
}

// Chapter extracts chapter i. For EPUBs this reads and parses the spine
// document on every call; callers keep the result for as long as the chapter
// is on screen.
func (b *Book) Chapter(i int) (*Chapter, error) {
	if b.single != nil {
		if i != 0 {
			return nil, fmt.Errorf("%w: %d", ErrNoChapter, i)
		}
		return b.single, nil
	}
	if i < 0 || i >= len(b.spine) {
		return nil, fmt.Errorf("%w: %d", ErrNoChapter, i)
	}
	return b.epubChapter(i)
}

// TOC returns the table of contents, flattened in reading order. It may be
// empty; not every book carries one.
func (b *Book) TOC() []TOCEntry {
	return b.toc
}

// renderMarkdown turns extracted blocks back into markdown for the terminal
// renderer. Consecutive list items group into one list.
func renderMarkdown(blocks []sentence.Block) string {
	var md strings.Builder
	for i, blk := range blocks {
		if i > 0 {
			if blk.Kind == sentence.KindListItem && blocks[i-1].Kind == sentence.KindListItem {
				md.WriteString("\n")
			} else {
				md.WriteString("\n\n")
			}
		}
		switch blk.Kind {
		case sentence.KindHeading:
			level := blk.Level
			if level < 1 {
				level = 1
			} else if level > 6 {
				level = 6
			}
			md.WriteString(strings.Repeat("#", level) + " " + blk.Text)
		case sentence.KindListItem:
			md.WriteString("- " + blk.Text)
		case sentence.KindBlockquote:
			md.WriteString("> " + blk.Text)
		default:
			md.WriteString(blk.Text)
		}
	}
	return md.String()
}
