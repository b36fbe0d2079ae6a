// Package library persists the bookshelf: the books the reader knows about
// and the chapter each one was left at.
package library

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the on-disk name of the library index.
const FileName = "library.json"

// Entry records one book. LastPosition is the chapter index reading resumes
// at.
type Entry struct {
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	LastPosition int       `json:"last_position"`
	AddedAt      time.Time `json:"added_at,omitempty"`
	ReadAt       time.Time `json:"last_read,omitempty"`
}

// ID returns the library key for a book path. Keys are file names, so a
// book moved between directories keeps its reading position.
func ID(path string) string {
	return filepath.Base(path)
}

// Library is an in-memory view of the library file. It is safe for
// concurrent use; changes only reach disk on Save.
type Library struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
}

// Load reads the library index from dir. A missing file is an empty
// library, not an error.
func Load(dir string) (*Library, error) {
	l := &Library{
		path:    filepath.Join(dir, FileName),
		entries: make(map[string]Entry),
	}
	data, err := os.ReadFile(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load library: %w", err)
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, fmt.Errorf("load library: parse %s: %w", FileName, err)
	}
	return l, nil
}

// Save writes the index to disk atomically.
func (l *Library) Save() error {
	l.mu.Lock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.Unlock()
	if err != nil {
		return fmt.Errorf("save library: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("save library: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("save library: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("save library: %w", err)
	}
	return nil
}

// Add registers a book and returns its entry. Opening a known book again
// refreshes its path and title but keeps the reading position.
func (l *Library) Add(path, title string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := ID(path)
	e, ok := l.entries[id]
	if !ok {
		e = Entry{AddedAt: time.Now()}
	}
	e.Path = path
	if title != "" {
		e.Title = title
	}
	l.entries[id] = e
	return e
}

// Get looks up a book by id.
func (l *Library) Get(id string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	return e, ok
}

// SetPosition records the chapter a book is open at and stamps the read
// time. Unknown ids are ignored.
func (l *Library) SetPosition(id string, chapter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return
	}
	e.LastPosition = chapter
	e.ReadAt = time.Now()
	l.entries[id] = e
}

// Remove forgets a book. The file itself is untouched.
func (l *Library) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, id)
}

// Len returns the number of known books.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns all books, most recently read first. Never-read books
// follow, newest additions first.
func (l *Library) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.ReadAt.Equal(b.ReadAt) {
			return a.ReadAt.After(b.ReadAt)
		}
		if !a.AddedAt.Equal(b.AddedAt) {
			return a.AddedAt.After(b.AddedAt)
		}
		return a.Title < b.Title
	})
	return entries
}
