// Package merge reconciles newly parsed candidates with the candidates already stored.
package merge

import (
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Key identifies the real-world event behind a candidate: amount, merchant and calendar day.
type Key struct {
	Amount   string
	Merchant string
	Day      string
}

// KeyOf returns the dedup key of c. Amounts compare numerically, so 450 and 450.00 share a key.
func KeyOf(c api.ExpenseCandidate) Key {
	return Key{
		Amount:   c.Amount.String(),
		Merchant: c.Merchant,
		Day:      c.TransactionDate.Format(time.DateOnly),
	}
}

// IsDuplicate reports whether a and b describe the same expense.
func IsDuplicate(a, b api.ExpenseCandidate) bool {
	return a.Amount.Equal(b.Amount) && a.Merchant == b.Merchant && sameDay(a.TransactionDate, b.TransactionDate)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type options struct {
	newID func() string
	now   func() time.Time
}

// Option configures Merge.
type Option func(*options)

// WithIDGenerator overrides the id source. The default is a random UUID.
func WithIDGenerator(fn func() string) Option {
	return func(o *options) { o.newID = fn }
}

// WithClock overrides the clock used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Merge appends every incoming candidate that has no duplicate among existing candidates
// or the candidates already appended by this call. Existing entries are returned first and
// unchanged, so the additions are always result[len(existing):].
//
// Appended candidates get a fresh id, status pending and createdAt now. Merge holds no state.
func Merge(existing, incoming []api.ExpenseCandidate, opts ...Option) []api.ExpenseCandidate {
	o := options{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	merged := make([]api.ExpenseCandidate, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	index := make(map[Key]struct{}, len(merged)+len(incoming))
	for _, c := range merged {
		index[KeyOf(c)] = struct{}{}
	}

	for _, c := range incoming {
		key := KeyOf(c)
		if _, dup := index[key]; dup {
			continue
		}
		index[key] = struct{}{}

		c.ID = o.newID()
		c.Status = api.StatusPending
		c.CreatedAt = o.now()
		merged = append(merged, c)
	}

	return merged
}
