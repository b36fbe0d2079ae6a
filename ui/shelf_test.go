package ui

import (
	"testing"

	"github.com/aperture-reader/aperture/library"
)

func testShelf(t *testing.T, titles map[string]string) shelfModel {
	t.Helper()
	lib, err := library.Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for path, title := range titles {
		lib.Add(path, title)
	}
	return newShelfModel(&commonModel{lib: lib, height: 40})
}

func TestShelfFilter(t *testing.T) {
	m := testShelf(t, map[string]string{
		"/books/gopl.epub":  "The Go Programming Language",
		"/books/moby.epub":  "Moby Dick",
		"/books/action.md":  "Go in Action",
		"/books/durian.txt": "A Treatise on Durian",
	})
	if len(m.filtered) != 4 {
		t.Fatalf("Expected 4 items unfiltered, got %d", len(m.filtered))
	}

	m.filterState = filtering
	m.filterInput.SetValue("go")
	m.applyFilter()

	if len(m.filtered) != 2 {
		t.Fatalf("Expected 2 matches for %q, got %d", "go", len(m.filtered))
	}
	for _, it := range m.filtered {
		if it.title != "The Go Programming Language" && it.title != "Go in Action" {
			t.Errorf("Unexpected match %q", it.title)
		}
	}

	// Clearing the query restores everything.
	m.filterInput.SetValue("")
	m.applyFilter()
	if len(m.filtered) != 4 {
		t.Errorf("Expected 4 items after clearing, got %d", len(m.filtered))
	}
}

func TestShelfFilterClampsCursor(t *testing.T) {
	m := testShelf(t, map[string]string{
		"/books/gopl.epub": "The Go Programming Language",
		"/books/moby.epub": "Moby Dick",
	})
	m.cursor = 1

	m.filterState = filtering
	m.filterInput.SetValue("moby")
	m.applyFilter()

	if len(m.filtered) != 1 {
		t.Fatalf("Expected 1 match, got %d", len(m.filtered))
	}
	if m.cursor != 0 {
		t.Errorf("Expected the cursor clamped to 0, got %d", m.cursor)
	}
}

func TestShelfAddDiscoveredDedupes(t *testing.T) {
	m := testShelf(t, map[string]string{
		"/books/moby.epub": "Moby Dick",
	})

	// Same file name means same library id, even from another directory.
	m.addDiscovered("/elsewhere/moby.epub", "elsewhere/moby.epub", "a minute ago")
	if len(m.items) != 1 {
		t.Fatalf("Expected the known book deduped, got %d items", len(m.items))
	}

	m.addDiscovered("/elsewhere/fresh.md", "elsewhere/fresh.md", "a minute ago")
	if len(m.items) != 2 {
		t.Fatalf("Expected the new book appended, got %d items", len(m.items))
	}
	if it := m.items[1]; it.inLibrary {
		t.Error("Expected a discovered book to be outside the library")
	}
}

func TestShelfSelectedItem(t *testing.T) {
	m := testShelf(t, nil)
	if _, ok := m.selectedItem(); ok {
		t.Error("Expected no selection on an empty shelf")
	}

	m = testShelf(t, map[string]string{"/books/moby.epub": "Moby Dick"})
	it, ok := m.selectedItem()
	if !ok {
		t.Fatal("Expected a selection")
	}
	if it.title != "Moby Dick" {
		t.Errorf("Expected Moby Dick, got %q", it.title)
	}
}

func TestShelfVisibleRangeFollowsCursor(t *testing.T) {
	titles := map[string]string{
		"/books/a.md": "Book A",
		"/books/b.md": "Book B",
		"/books/c.md": "Book C",
		"/books/d.md": "Book D",
		"/books/e.md": "Book E",
		"/books/f.md": "Book F",
	}
	m := testShelf(t, titles)
	m.common.height = 8 + shelfLinesPerItem*2 // room for two items

	start, end := m.visibleRange()
	if start != 0 || end != 2 {
		t.Fatalf("Expected window [0,2), got [%d,%d)", start, end)
	}

	m.cursor = 4
	start, end = m.visibleRange()
	if m.cursor < start || m.cursor >= end {
		t.Errorf("Cursor %d outside window [%d,%d)", m.cursor, start, end)
	}
}
