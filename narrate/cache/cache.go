// Package cache stores synthesized audio on disk so repeated readings of the
// same sentences skip the engine. Entries are zstd-compressed and evicted
// least-recently-used once a byte budget is exceeded.
package cache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultBudget is how much disk the cache may use when not configured.
const DefaultBudget int64 = 64 << 20

const indexFile = "cache.index"

// ErrTooLarge means a single entry exceeds the whole cache budget.
var ErrTooLarge = errors.New("cache: entry larger than budget")

// Key derives the cache key for one synthesis request. Every parameter that
// changes the audio is part of it.
func Key(engine, voice, language string, speed float64, text string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%.4f\x00%s", engine, voice, language, speed, text)
	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	Key        string
	File       string
	Size       int64 // bytes on disk
	RawSize    int64
	Compressed bool
	SavedAt    time.Time
	LastAccess time.Time
}

// Store is a disk-backed audio cache. It is safe for concurrent use. The
// index persists across runs; call Close to write it out.
type Store struct {
	dir    string
	budget int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	index map[string]*entry
	size  int64
}

// NewStore opens (or creates) a cache directory with the given byte budget.
func NewStore(dir string, budget int64) (*Store, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}

	s := &Store{
		dir:     dir,
		budget:  budget,
		encoder: encoder,
		decoder: decoder,
		index:   make(map[string]*entry),
	}

	// A broken or missing index just means starting cold.
	if err := s.loadIndex(); err != nil {
		s.index = make(map[string]*entry)
	}
	for _, e := range s.index {
		s.size += e.Size
	}
	s.sweepOrphans()

	return s, nil
}

// Get returns the audio stored under key, if present and readable.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.index[key]
	if !ok {
		return nil, false
	}

	data, err := os.ReadFile(e.File)
	if err != nil {
		s.dropLocked(e)
		return nil, false
	}
	if e.Compressed {
		raw, err := s.decoder.DecodeAll(data, nil)
		if err != nil {
			s.dropLocked(e)
			return nil, false
		}
		data = raw
	}

	e.LastAccess = time.Now()
	return data, true
}

// Put stores audio under key, evicting the least recently used entries until
// it fits. Entries larger than the whole budget are refused.
func (s *Store) Put(key string, audio []byte) error {
	compressed := s.encoder.EncodeAll(audio, nil)
	data := audio
	isCompressed := false
	if len(compressed) < len(audio) {
		data = compressed
		isCompressed = true
	}
	diskSize := int64(len(data))

	s.mu.Lock()
	defer s.mu.Unlock()

	if diskSize > s.budget {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, diskSize)
	}
	if old, ok := s.index[key]; ok {
		s.dropLocked(old)
	}
	for s.size+diskSize > s.budget && len(s.index) > 0 {
		s.evictOldestLocked()
	}

	path := s.entryPath(key)
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	now := time.Now()
	s.index[key] = &entry{
		Key:        key,
		File:       path,
		Size:       diskSize,
		RawSize:    int64(len(audio)),
		Compressed: isCompressed,
		SavedAt:    now,
		LastAccess: now,
	}
	s.size += diskSize
	return nil
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index)
}

// Size returns the bytes used on disk.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear removes every entry and persists the empty index.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.index {
		os.Remove(e.File)
	}
	s.index = make(map[string]*entry)
	s.size = 0
	return s.saveIndexLocked()
}

// Close persists the index. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveIndexLocked()
}

func (s *Store) entryPath(key string) string {
	name := key
	if len(name) > 32 {
		name = name[:32]
	}
	return filepath.Join(s.dir, name+".cache")
}

func (s *Store) dropLocked(e *entry) {
	os.Remove(e.File)
	s.size -= e.Size
	delete(s.index, e.Key)
}

func (s *Store) evictOldestLocked() {
	var oldest *entry
	for _, e := range s.index {
		if oldest == nil || e.LastAccess.Before(oldest.LastAccess) {
			oldest = e
		}
	}
	if oldest != nil {
		s.dropLocked(oldest)
	}
}

// sweepOrphans deletes entry files the index does not know about, which a
// crash between Put and Close can leave behind.
func (s *Store) sweepOrphans() {
	known := make(map[string]bool, len(s.index))
	for _, e := range s.index {
		known[e.File] = true
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.cache"))
	if err != nil {
		return
	}
	for _, path := range matches {
		if !known[path] {
			os.Remove(path)
		}
	}
}

func (s *Store) loadIndex() error {
	f, err := os.Open(filepath.Join(s.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(&s.index)
}

func (s *Store) saveIndexLocked() error {
	path := filepath.Join(s.dir, indexFile)
	tmp, err := os.CreateTemp(s.dir, "index-*")
	if err != nil {
		return err
	}
	err = gob.NewEncoder(tmp).Encode(s.index)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "entry-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
