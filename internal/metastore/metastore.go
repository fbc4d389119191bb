// Package metastore persists Cache Entries as small self-describing JSON
// files under META_DIR, one per save id, written atomically so a crash
// never leaves a half-written record.
package metastore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/rs/zerolog"
)

// Entry is the durable record for one Cache Entry.
type Entry struct {
	SaveID      string   `json:"save_id"`
	Model       string   `json:"model"`
	Signatures  []uint64 `json:"signatures"`
	WordCount   int      `json:"word_count"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	BytesOnDisk int64    `json:"bytes_on_disk,omitempty"`
}

// Store is the metadata directory handle. It serializes writes to avoid
// torn reads of the same file from concurrent admissions, but readers use
// the in-memory LCP Index rather than re-reading from disk on the hot path.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

func New(dir string, logger zerolog.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

func (s *Store) path(saveID string) string {
	return filepath.Join(s.dir, saveID+".json")
}

// Put atomically writes entry to disk, replacing any prior record for the
// same save id.
func (s *Store) Put(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("metastore: marshal entry %s: %w", entry.SaveID, err)
	}
	if err := atomic.WriteFile(s.path(entry.SaveID), bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("metastore: write entry %s: %w", entry.SaveID, err)
	}
	return nil
}

// Touch updates last_used_at for an existing entry in place, atomically.
func (s *Store) Touch(saveID string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.read(saveID)
	if err != nil {
		return err
	}
	entry.LastUsedAt = when
	buf, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("metastore: marshal entry %s: %w", saveID, err)
	}
	return atomic.WriteFile(s.path(saveID), bytes.NewReader(buf))
}

// Get reads a single entry by save id.
func (s *Store) Get(saveID string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.read(saveID)
	if os.IsNotExist(err) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *Store) read(saveID string) (Entry, error) {
	data, err := os.ReadFile(s.path(saveID))
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("metastore: unmarshal %s: %w", saveID, err)
	}
	return entry, nil
}

// Delete removes an entry's metadata record. Missing files are not an error.
func (s *Store) Delete(saveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(saveID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("metastore: delete %s: %w", saveID, err)
	}
	return nil
}

// List returns every currently readable entry, for the Janitor's enumeration
// pass. Corrupt or unparseable records are skipped (they were already moved
// aside by LoadAll at startup; any found here are logged and ignored).
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, _ := s.scan(false)
	return entries
}

// LoadAll scans META_DIR at startup, parsing every record. Corrupt or
// unparseable records are moved aside with a .corrupt suffix and logged;
// they never abort startup.
func (s *Store) LoadAll() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("metastore: create META_DIR %s: %w", s.dir, err)
	}
	return s.scan(true)
}

func (s *Store) scan(quarantineCorrupt bool) ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("metastore: read META_DIR %s: %w", s.dir, err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		full := filepath.Join(s.dir, f.Name())
		data, err := os.ReadFile(full)
		if err != nil {
			s.logger.Warn().Err(err).Str("file", f.Name()).Msg("metastore: skipping unreadable record")
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.logger.Warn().Err(err).Str("file", f.Name()).Msg("metastore: skipping corrupt record")
			if quarantineCorrupt {
				_ = os.Rename(full, full+".corrupt")
			}
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
