// Package lifecycle moves candidates from pending to confirmed or rejected.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Outcome describes what a transition request did.
type Outcome int

// Transition outcomes. Only Updated changed the store.
const (
	Updated Outcome = iota
	NotFound
	AlreadyFinal
	StoreUnavailable
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case NotFound:
		return "not_found"
	case AlreadyFinal:
		return "already_final"
	case StoreUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// Manager applies user decisions to stored candidates.
// Decisions on one id are serialized, so a confirm that is still submitting to the ledger
// cannot race another confirm or a reject of the same candidate.
type Manager struct {
	store  api.CandidateStore
	logger *slog.Logger
	locks  keyedMutex
}

// SubmitFunc records a confirmed expense outside the store, typically api.Ledger.Submit.
type SubmitFunc func(ctx context.Context, candidate api.ExpenseCandidate) error

// New creates a lifecycle manager.
func New(store api.CandidateStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, logger: logger}
}

// Confirm marks a pending candidate as confirmed.
func (m *Manager) Confirm(ctx context.Context, id string) Outcome {
	defer m.locks.lock(id)()
	return m.transition(ctx, id, api.StatusConfirmed)
}

// ConfirmWith hands a pending candidate to submit and marks it confirmed once submit
// succeeds. A submit error is returned and leaves the candidate pending. A nil submit
// behaves like Confirm. submit runs at most once per candidate of this manager.
func (m *Manager) ConfirmWith(ctx context.Context, id string, submit SubmitFunc) (api.ExpenseCandidate, Outcome, error) {
	defer m.locks.lock(id)()

	candidate, err := m.store.Get(ctx, id)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return api.ExpenseCandidate{}, NotFound, nil
	case err != nil:
		m.logger.Error("failed to load candidate", "id", id, "error", err)
		return api.ExpenseCandidate{}, StoreUnavailable, nil
	case candidate.Status != api.StatusPending:
		return candidate, AlreadyFinal, nil
	}

	if submit != nil {
		if err := submit(ctx, candidate); err != nil {
			m.logger.Error("submission failed, candidate stays pending", "id", id, "error", err)
			return candidate, StoreUnavailable, err
		}
	}

	outcome := m.transition(ctx, id, api.StatusConfirmed)
	if outcome == Updated {
		candidate.Status = api.StatusConfirmed
	}
	return candidate, outcome, nil
}

// Reject marks a pending candidate as rejected. Rejected candidates stay in the store.
func (m *Manager) Reject(ctx context.Context, id string) Outcome {
	defer m.locks.lock(id)()
	return m.transition(ctx, id, api.StatusRejected)
}

func (m *Manager) transition(ctx context.Context, id string, to api.Status) Outcome {
	logger := m.logger.With("id", id, "to", to)

	changed, err := m.store.UpdateStatus(ctx, id, api.StatusPending, to)
	switch {
	case errors.Is(err, api.ErrNotFound):
		logger.Info("candidate not found, ignoring decision")
		return NotFound
	case err != nil:
		logger.Error("failed to update candidate status", "error", err)
		return StoreUnavailable
	case !changed:
		logger.Info("candidate already decided, ignoring decision")
		return AlreadyFinal
	}

	logger.Info("candidate status updated")
	return Updated
}

// Get returns one candidate. The boolean is false when it is missing or the store failed.
func (m *Manager) Get(ctx context.Context, id string) (api.ExpenseCandidate, bool) {
	c, err := m.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, api.ErrNotFound) {
			m.logger.Error("failed to load candidate", "id", id, "error", err)
		}
		return api.ExpenseCandidate{}, false
	}
	return c, true
}

// Pending returns the review queue.
func (m *Manager) Pending(ctx context.Context) []api.ExpenseCandidate {
	return m.List(ctx, api.StatusPending)
}

// List returns candidates in the given status, or all candidates when status is empty.
// Store failures yield an empty list.
func (m *Manager) List(ctx context.Context, status api.Status) []api.ExpenseCandidate {
	all, err := m.store.LoadAll(ctx)
	if err != nil {
		m.logger.Error("failed to load candidates", "error", err)
		return []api.ExpenseCandidate{}
	}
	if status == "" {
		return all
	}

	out := make([]api.ExpenseCandidate, 0, len(all))
	for _, c := range all {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sync.Mutex
	refs int
}

// lock blocks until key is free and returns the unlock function.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
