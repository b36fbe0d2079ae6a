package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestKeyChangesWithEveryParameter(t *testing.T) {
	base := Key("piper", "en-amy", "en-US", 1.0, "Hello there.")

	variants := []string{
		Key("http", "en-amy", "en-US", 1.0, "Hello there."),
		Key("piper", "en-joe", "en-US", 1.0, "Hello there."),
		Key("piper", "en-amy", "en-GB", 1.0, "Hello there."),
		Key("piper", "en-amy", "en-US", 1.25, "Hello there."),
		Key("piper", "en-amy", "en-US", 1.0, "Hello there!"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced the same key", i)
		}
	}

	if again := Key("piper", "en-amy", "en-US", 1.0, "Hello there."); again != base {
		t.Errorf("Key() not deterministic: %s vs %s", base, again)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()

	key := Key("piper", "en-amy", "en-US", 1.0, "Hello.")
	audio := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x00}, 4096)

	if _, ok := s.Get(key); ok {
		t.Fatal("Get() on empty store = hit")
	}
	if err := s.Put(key, audio); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, ok := s.Get(key)
	if !ok {
		t.Fatal("Get() after Put() = miss")
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("Get() returned %d bytes, want %d and equal content", len(got), len(audio))
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	key := Key("piper", "en-amy", "en-US", 1.0, "Persist me.")
	audio := bytes.Repeat([]byte{0xAA, 0x55}, 2048)

	s, err := NewStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if err := s.Put(key, audio); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := NewStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("reopen NewStore() error = %v", err)
	}
	defer s2.Close()

	got, ok := s2.Get(key)
	if !ok {
		t.Fatal("Get() after reopen = miss")
	}
	if !bytes.Equal(got, audio) {
		t.Error("Get() after reopen returned different content")
	}
}

func TestStoreEvictsLeastRecentlyUsed(t *testing.T) {
	s, err := NewStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()

	// Incompressible entries so each occupies its full size on disk.
	entrySize := 400 << 10
	keys := make([]string, 3)
	for i := range keys {
		keys[i] = Key("piper", "en-amy", "en-US", 1.0, string(rune('a'+i)))
		if err := s.Put(keys[i], randomBytes(entrySize, byte(i))); err != nil {
			t.Fatalf("Put(%d) error = %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Two fit, the first should have been evicted for the third.
	if _, ok := s.Get(keys[0]); ok {
		t.Error("oldest entry survived eviction")
	}
	if _, ok := s.Get(keys[2]); !ok {
		t.Error("newest entry missing")
	}

	// Touch keys[1] so keys[2] becomes the eviction candidate.
	time.Sleep(2 * time.Millisecond)
	if _, ok := s.Get(keys[1]); !ok {
		t.Fatal("second entry missing before refresh test")
	}
	time.Sleep(2 * time.Millisecond)
	key3 := Key("piper", "en-amy", "en-US", 1.0, "d")
	if err := s.Put(key3, randomBytes(entrySize, 9)); err != nil {
		t.Fatalf("Put(d) error = %v", err)
	}
	if _, ok := s.Get(keys[1]); !ok {
		t.Error("recently used entry was evicted")
	}
	if _, ok := s.Get(keys[2]); ok {
		t.Error("least recently used entry survived")
	}
}

func TestStoreRejectsOversizedEntry(t *testing.T) {
	s, err := NewStore(t.TempDir(), 8<<10)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()

	err = s.Put("big", randomBytes(64<<10, 7))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Put() error = %v, want %v", err, ErrTooLarge)
	}
}

func TestStoreSweepsOrphanFiles(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "deadbeefdeadbeefdeadbeefdeadbeef.cache")
	if err := os.WriteFile(orphan, []byte("stale"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := NewStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Error("orphan cache file survived open")
	}
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer s.Close()

	if err := s.Put("k1", randomBytes(4096, 1)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.Len() != 0 || s.Size() != 0 {
		t.Errorf("after Clear: Len() = %d, Size() = %d", s.Len(), s.Size())
	}
	if _, ok := s.Get("k1"); ok {
		t.Error("Get() after Clear = hit")
	}
}

// randomBytes returns data zstd cannot usefully compress.
func randomBytes(n int, seed byte) []byte {
	out := make([]byte, n)
	x := uint32(seed) + 1
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = byte(x >> 24)
	}
	return out
}
