// Package memory implements an in-process CandidateStore.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/merge"
)

// Store keeps candidates in memory in insertion order.
type Store struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]api.ExpenseCandidate
	keys     map[merge.Key]string
	lastScan time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		byID: make(map[string]api.ExpenseCandidate),
		keys: make(map[merge.Key]string),
	}
}

// LoadAll returns every candidate in insertion order.
func (s *Store) LoadAll(_ context.Context) ([]api.ExpenseCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.ExpenseCandidate, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out, nil
}

// Get returns one candidate.
func (s *Store) Get(_ context.Context, id string) (api.ExpenseCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return api.ExpenseCandidate{}, api.ErrNotFound
	}
	return c, nil
}

// Upsert inserts or replaces candidates by id. A new id whose amount, merchant and day
// match a stored candidate is skipped.
func (s *Store) Upsert(_ context.Context, candidates []api.ExpenseCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candidates {
		key := merge.KeyOf(c)
		prev, exists := s.byID[c.ID]
		_, dup := s.keys[key]
		switch {
		case exists:
			delete(s.keys, merge.KeyOf(prev))
		case dup:
			continue
		default:
			s.order = append(s.order, c.ID)
		}
		s.byID[c.ID] = c
		s.keys[key] = c.ID
	}
	return nil
}

// UpdateStatus changes the status of id from `from` to `to`.
func (s *Store) UpdateStatus(_ context.Context, id string, from, to api.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return false, api.ErrNotFound
	}
	if c.Status != from {
		return false, nil
	}
	c.Status = to
	s.byID[id] = c
	return true, nil
}

// Delete removes a candidate.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return api.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.keys, merge.KeyOf(c))
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// LastScan returns the last recorded scan time, or the zero time.
func (s *Store) LastScan(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastScan, nil
}

// SetLastScan records the scan time.
func (s *Store) SetLastScan(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScan = t
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
