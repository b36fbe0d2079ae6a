package ui

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateString(t *testing.T) {
	if got := stateShelf.String(); got != "showing shelf" {
		t.Errorf("stateShelf = %q", got)
	}
	if got := stateReading.String(); got != "reading book" {
		t.Errorf("stateReading = %q", got)
	}
}

func TestStripAbsolutePath(t *testing.T) {
	cwd := t.TempDir()
	full := filepath.Join(cwd, "books", "moby.epub")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := stripAbsolutePath(full, cwd)
	want := filepath.Join("books", "moby.epub")
	if got != want {
		t.Errorf("stripAbsolutePath() = %q, want %q", got, want)
	}
}

func TestIndent(t *testing.T) {
	if got := indent("a\nb", 2); got != "  a\n  b\n" {
		t.Errorf("indent() = %q", got)
	}
	if got := indent("a", 0); got != "a" {
		t.Errorf("indent() with zero = %q", got)
	}
	if got := indent("", 4); got != "" {
		t.Errorf("indent() of empty = %q", got)
	}
}
