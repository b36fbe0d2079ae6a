package book

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aperture-reader/aperture/narrate/sentence"
)

func writeMarkdown(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpenMarkdown(t *testing.T) {
	src := `---
author: somebody
tags: [a, b]
---
# River Notes

A first paragraph. With two sentences.

## Upstream

- paddle
- dry bag

> The river decides.

` + "```go\nfmt.Println(\"never spoken\")\n```" + `

Closing thoughts.
`
	path := writeMarkdown(t, "river.md", src)

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close() //nolint:errcheck

	if b.Title != "River Notes" {
		t.Errorf("Expected title %q, got %q", "River Notes", b.Title)
	}
	if b.Chapters() != 1 {
		t.Fatalf("Expected 1 chapter, got %d", b.Chapters())
	}

	ch, err := b.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter: %v", err)
	}

	want := []sentence.Block{
		{Kind: sentence.KindHeading, Level: 1, Text: "River Notes"},
		{Kind: sentence.KindParagraph, Text: "A first paragraph. With two sentences."},
		{Kind: sentence.KindHeading, Level: 2, Text: "Upstream"},
		{Kind: sentence.KindListItem, Text: "paddle"},
		{Kind: sentence.KindListItem, Text: "dry bag"},
		{Kind: sentence.KindBlockquote, Text: "The river decides."},
		{Kind: sentence.KindParagraph, Text: "Closing thoughts."},
	}
	if len(ch.Blocks) != len(want) {
		t.Fatalf("Expected %d blocks, got %d: %#v", len(want), len(ch.Blocks), ch.Blocks)
	}
	for i, w := range want {
		if ch.Blocks[i] != w {
			t.Errorf("Block %d: expected %#v, got %#v", i, w, ch.Blocks[i])
		}
	}

	if strings.Contains(ch.Markdown, "author: somebody") {
		t.Error("Frontmatter leaked into chapter markdown")
	}
	if !strings.Contains(ch.Markdown, "# River Notes") {
		t.Error("Chapter markdown lost the document body")
	}
}

func TestMarkdownTOC(t *testing.T) {
	path := writeMarkdown(t, "toc.md", "# Top\n\ntext\n\n## Middle\n\ntext\n\n### Deep\n")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close() //nolint:errcheck

	want := []TOCEntry{
		{Title: "Top", Level: 0, Chapter: 0},
		{Title: "Middle", Level: 1, Chapter: 0},
		{Title: "Deep", Level: 2, Chapter: 0},
	}
	got := b.TOC()
	if len(got) != len(want) {
		t.Fatalf("Expected %d TOC entries, got %d: %#v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Errorf("Entry %d: expected %#v, got %#v", i, w, got[i])
		}
	}
}

func TestMarkdownTitleFallsBackToFileName(t *testing.T) {
	path := writeMarkdown(t, "plain-notes.md", "No headings here, just prose.\n")

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close() //nolint:errcheck

	if b.Title != "plain-notes" {
		t.Errorf("Expected file name title, got %q", b.Title)
	}
}

func TestMarkdownInlineContent(t *testing.T) {
	src := "Read [the guide](https://example.com/guide) and run `make test` today.\n\n" +
		"![diagram](diagram.png)\n\n" +
		"Nested *emphasis with **strong** inside* survives.\n"
	path := writeMarkdown(t, "inline.md", src)

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close() //nolint:errcheck

	ch, err := b.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter: %v", err)
	}

	want := []string{
		"Read the guide and run make test today.",
		"Nested emphasis with strong inside survives.",
	}
	if len(ch.Blocks) != len(want) {
		t.Fatalf("Expected %d blocks, got %d: %#v", len(want), len(ch.Blocks), ch.Blocks)
	}
	for i, w := range want {
		if ch.Blocks[i].Text != w {
			t.Errorf("Block %d: expected %q, got %q", i, w, ch.Blocks[i].Text)
		}
	}
}

func TestMarkdownNestedLists(t *testing.T) {
	src := "- outer one\n  - inner one\n  - inner two\n- outer two\n"
	path := writeMarkdown(t, "lists.md", src)

	b, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close() //nolint:errcheck

	ch, err := b.Chapter(0)
	if err != nil {
		t.Fatalf("Chapter: %v", err)
	}

	want := []string{"outer one", "inner one", "inner two", "outer two"}
	if len(ch.Blocks) != len(want) {
		t.Fatalf("Expected %d blocks, got %d: %#v", len(want), len(ch.Blocks), ch.Blocks)
	}
	for i, w := range want {
		if ch.Blocks[i].Text != w {
			t.Errorf("Block %d: expected %q, got %q", i, w, ch.Blocks[i].Text)
		}
		if ch.Blocks[i].Kind != sentence.KindListItem {
			t.Errorf("Block %d: expected list item kind", i)
		}
	}
}

func TestStripFrontmatter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced frontmatter removed",
			input:    "---\ntitle: x\n---\nbody\n",
			expected: "body\n",
		},
		{
			name:     "dots close the fence",
			input:    "---\ntitle: x\n...\nbody\n",
			expected: "body\n",
		},
		{
			name:     "no frontmatter untouched",
			input:    "# Heading\nbody\n",
			expected: "# Heading\nbody\n",
		},
		{
			name:     "unterminated fence untouched",
			input:    "---\ntitle: x\nbody\n",
			expected: "---\ntitle: x\nbody\n",
		},
		{
			name:     "thematic break mid-document untouched",
			input:    "body\n---\nmore\n",
			expected: "body\n---\nmore\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(StripFrontmatter([]byte(tt.input)))
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}
