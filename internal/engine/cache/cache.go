// Package cache persists whole-file fingerprints across runs so unchanged
// inputs are skipped entirely.
// The map only grows: entries are inserted and looked up, never evicted.
// Skipping assumes identical bytes yield identical output for an identical
// rule configuration; changing the rule set without clearing the cache
// will not reprocess unchanged files. Both are stated caveats of the
// design, surfaced in run results rather than silently ignored
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	perr "reconfilter/internal/platform/errors"
	"reconfilter/internal/platform/logger"
)

// DefaultPath is where the CLI keeps cache state unless told otherwise
const DefaultPath = ".reconfilter/state.json"

// Entry marks one file fingerprint as processed. Entries are never mutated
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	ProcessedAt time.Time `json:"processed_at"`
}

// Store is the persisted fingerprint map. Safe for concurrent use
type Store struct {
	path    string
	mu      sync.Mutex
	entries map[string]Entry
}

// Open loads the state file at path, starting fresh when it is missing.
// A corrupt state file is discarded with a warning rather than failing
// the run
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	s := &Store{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeCache, "read cache state %s", path)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		log := logger.With("cache")
		log.Warn().Str("path", path).Err(err).Msg("discarding corrupt cache state")
		s.entries = make(map[string]Entry)
	}
	return s, nil
}

// ShouldSkip reports whether fp was processed by a previous run
func (s *Store) ShouldSkip(fp string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[fp]
	return ok
}

// MarkProcessed inserts fp and persists the state atomically
func (s *Store) MarkProcessed(fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[fp]; ok {
		return nil
	}
	s.entries[fp] = Entry{Fingerprint: fp, ProcessedAt: time.Now().UTC()}
	return s.save()
}

// Len returns the number of cached fingerprints
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// save writes the full map via temp file and rename; caller holds mu
func (s *Store) save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return perr.Wrapf(err, perr.ErrorCodeCache, "cache dir for %s", s.path)
	}
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return perr.Wrap(err, perr.ErrorCodeCache, "encode cache state")
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		return perr.Wrapf(err, perr.ErrorCodeCache, "temp cache state for %s", s.path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return perr.Wrapf(err, perr.ErrorCodeCache, "write cache state %s", s.path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return perr.Wrapf(err, perr.ErrorCodeCache, "close cache state %s", s.path)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return perr.Wrapf(err, perr.ErrorCodeCache, "commit cache state %s", s.path)
	}
	return nil
}
