package library

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("Expected empty library, got %d entries", l.Len())
	}
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("Expected an error for a corrupt library file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	l, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.Add("/books/voyage.epub", "The Voyage")
	l.SetPosition("voyage.epub", 4)
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	e, ok := reloaded.Get("voyage.epub")
	if !ok {
		t.Fatal("Expected the saved entry to survive a reload")
	}
	if e.Path != "/books/voyage.epub" || e.Title != "The Voyage" || e.LastPosition != 4 {
		t.Errorf("Entry round trip mangled: %#v", e)
	}
	if e.ReadAt.IsZero() {
		t.Error("Expected a read timestamp after SetPosition")
	}
}

func TestSaveFileShape(t *testing.T) {
	dir := t.TempDir()

	l, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.Add("/books/voyage.epub", "The Voyage")
	if err := l.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// The file is a JSON object keyed by book id.
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Library file is not a JSON object: %v", err)
	}
	book, ok := raw["voyage.epub"]
	if !ok {
		t.Fatalf("Expected voyage.epub key, got %v", raw)
	}
	for _, field := range []string{"path", "title", "last_position"} {
		if _, ok := book[field]; !ok {
			t.Errorf("Expected field %q in entry, got %v", field, book)
		}
	}
}

func TestAddKeepsPosition(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	l.Add("/old/voyage.epub", "The Voyage")
	l.SetPosition("voyage.epub", 7)

	// Reopening from a new path keeps the position.
	e := l.Add("/new/voyage.epub", "The Voyage")
	if e.LastPosition != 7 {
		t.Errorf("Expected position 7 after re-add, got %d", e.LastPosition)
	}
	if e.Path != "/new/voyage.epub" {
		t.Errorf("Expected refreshed path, got %q", e.Path)
	}
	if l.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", l.Len())
	}
}

func TestAddKeepsTitleWhenBlank(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	l.Add("/books/voyage.epub", "The Voyage")
	e := l.Add("/books/voyage.epub", "")
	if e.Title != "The Voyage" {
		t.Errorf("Blank title overwrote the stored one: %q", e.Title)
	}
}

func TestSetPositionUnknownID(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.SetPosition("ghost.epub", 3)
	if l.Len() != 0 {
		t.Error("SetPosition on an unknown id created an entry")
	}
}

func TestRemove(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	l.Add("/books/voyage.epub", "The Voyage")
	l.Remove("voyage.epub")
	if _, ok := l.Get("voyage.epub"); ok {
		t.Error("Expected entry to be gone after Remove")
	}
}

func TestEntriesOrder(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	l.Add("/books/a.epub", "Alpha")
	l.Add("/books/b.epub", "Beta")
	l.Add("/books/c.epub", "Gamma")

	// Force distinct read times.
	l.mu.Lock()
	now := time.Now()
	for id, offset := range map[string]time.Duration{
		"a.epub": -2 * time.Hour,
		"c.epub": -1 * time.Hour,
	} {
		e := l.entries[id]
		e.ReadAt = now.Add(offset)
		l.entries[id] = e
	}
	l.mu.Unlock()

	entries := l.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	// c was read most recently, a before it, b never.
	if entries[0].Title != "Gamma" || entries[1].Title != "Alpha" || entries[2].Title != "Beta" {
		t.Errorf("Unexpected order: %q, %q, %q", entries[0].Title, entries[1].Title, entries[2].Title)
	}
}

func TestID(t *testing.T) {
	if got := ID("/some/dir/book.epub"); got != "book.epub" {
		t.Errorf("Expected book.epub, got %q", got)
	}
}
