// Package jsonfile implements a CandidateStore persisted to a single JSON document.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/merge"
)

// document is the on-disk layout.
type document struct {
	Candidates []api.ExpenseCandidate `json:"candidates"`
	LastScan   *time.Time             `json:"last_scan,omitempty"`
}

func (d *document) indexOf(id string) int {
	for i, c := range d.Candidates {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Store keeps candidates in one JSON file shared by every process that opens it.
// Each operation holds an OS lock on <path>.lock and works on a fresh read of the file,
// so a daemon and a CLI command never overwrite each other's changes.
type Store struct {
	path   string
	lock   *flock.Flock
	logger *slog.Logger

	// mu serializes goroutines of this process; the file lock only excludes other processes.
	mu sync.Mutex
}

// New opens the store at path and checks that an existing file is readable.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("json store: file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	s := &Store{path: path, lock: flock.New(path + ".lock"), logger: logger}

	var existing int
	err := s.read(func(doc *document) error {
		existing = len(doc.Candidates)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	logger.Info("json store initialized", "file", path, "existing_count", existing)
	return s, nil
}

// read runs fn on the current document under a shared lock.
func (s *Store) read(fn func(doc *document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.RLock(); err != nil {
		return fmt.Errorf("locking %s: %w", s.path, err)
	}
	defer s.lock.Unlock() //nolint:errcheck // released on close anyway

	doc, err := s.load()
	if err != nil {
		return err
	}
	return fn(&doc)
}

// update runs fn on the current document under an exclusive lock and writes the
// document back when fn reports a change.
func (s *Store) update(fn func(doc *document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("locking %s: %w", s.path, err)
	}
	defer s.lock.Unlock() //nolint:errcheck // released on close anyway

	doc, err := s.load()
	if err != nil {
		return err
	}
	changed, err := fn(&doc)
	if err != nil || !changed {
		return err
	}
	return s.flush(doc)
}

func (s *Store) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("reading json file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("decoding json file: %w", err)
	}
	return doc, nil
}

// flush writes the document through a temporary file so readers never see a partial write.
func (s *Store) flush(doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".spendsense-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}

	s.logger.Debug("wrote candidates to json", "total_count", len(doc.Candidates))
	return nil
}

// LoadAll returns every candidate in insertion order.
func (s *Store) LoadAll(_ context.Context) ([]api.ExpenseCandidate, error) {
	var out []api.ExpenseCandidate
	err := s.read(func(doc *document) error {
		out = make([]api.ExpenseCandidate, len(doc.Candidates))
		copy(out, doc.Candidates)
		return nil
	})
	return out, err
}

// Get returns one candidate.
func (s *Store) Get(_ context.Context, id string) (api.ExpenseCandidate, error) {
	var c api.ExpenseCandidate
	err := s.read(func(doc *document) error {
		i := doc.indexOf(id)
		if i < 0 {
			return api.ErrNotFound
		}
		c = doc.Candidates[i]
		return nil
	})
	return c, err
}

// Upsert inserts or replaces candidates by id. A new id whose amount, merchant and day
// match a stored candidate is skipped, since another writer already recorded that expense.
func (s *Store) Upsert(_ context.Context, candidates []api.ExpenseCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	return s.update(func(doc *document) (bool, error) {
		keys := make(map[merge.Key]struct{}, len(doc.Candidates))
		for _, c := range doc.Candidates {
			keys[merge.KeyOf(c)] = struct{}{}
		}

		changed := false
		for _, c := range candidates {
			if i := doc.indexOf(c.ID); i >= 0 {
				doc.Candidates[i] = c
				changed = true
				continue
			}
			key := merge.KeyOf(c)
			if _, dup := keys[key]; dup {
				s.logger.Debug("skipping candidate already stored under another id", "id", c.ID)
				continue
			}
			keys[key] = struct{}{}
			doc.Candidates = append(doc.Candidates, c)
			changed = true
		}
		return changed, nil
	})
}

// UpdateStatus changes the status of id from `from` to `to`.
func (s *Store) UpdateStatus(_ context.Context, id string, from, to api.Status) (bool, error) {
	var updated bool
	err := s.update(func(doc *document) (bool, error) {
		i := doc.indexOf(id)
		if i < 0 {
			return false, api.ErrNotFound
		}
		if doc.Candidates[i].Status != from {
			return false, nil
		}
		doc.Candidates[i].Status = to
		updated = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return updated, nil
}

// Delete removes a candidate.
func (s *Store) Delete(_ context.Context, id string) error {
	return s.update(func(doc *document) (bool, error) {
		i := doc.indexOf(id)
		if i < 0 {
			return false, api.ErrNotFound
		}
		doc.Candidates = append(doc.Candidates[:i], doc.Candidates[i+1:]...)
		return true, nil
	})
}

// LastScan returns the last recorded scan time, or the zero time.
func (s *Store) LastScan(_ context.Context) (time.Time, error) {
	var t time.Time
	err := s.read(func(doc *document) error {
		if doc.LastScan != nil {
			t = *doc.LastScan
		}
		return nil
	})
	return t, err
}

// SetLastScan records the scan time.
func (s *Store) SetLastScan(_ context.Context, t time.Time) error {
	return s.update(func(doc *document) (bool, error) {
		doc.LastScan = &t
		return true, nil
	})
}

// Close releases the lock file handle.
func (s *Store) Close() error {
	return s.lock.Close()
}
