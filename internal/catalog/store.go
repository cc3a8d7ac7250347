package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Store owns the cache document file. All mutation of the on-disk state goes
// through one Load → mutate → Save cycle; Save is atomic (temp file + rename)
// so a concurrent reader never observes a partially written document.
type Store struct {
	path string
	mu   sync.Mutex // serializes saves; loads of the last-saved file are safe
}

// NewStore creates a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Load reads the cache document. A missing, unreadable, or corrupt file is a
// cold start, not an error: it logs and returns an empty document.
func (s *Store) Load() *Document {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cache file unreadable, starting cold", "path", s.path, "error", err)
		}
		return NewDocument()
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("cache file corrupt, starting cold", "path", s.path, "error", err)
		return NewDocument()
	}
	if doc.Version == 0 || doc.Providers == nil {
		slog.Warn("cache file missing required fields, starting cold", "path", s.path)
		return NewDocument()
	}
	return &doc
}

// Save writes the document atomically: marshal, write to a temp file in the
// same directory, then rename over the target. On failure the previous file
// is left untouched.
func (s *Store) Save(doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache document: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Purge removes the document from disk. The next Load is a cold start.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing cache file: %w", err)
	}
	return nil
}
