// Package storetest holds behaviour tests shared by every CandidateStore implementation.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Candidate returns a pending candidate with the given id and amount.
func Candidate(id string, amount int64) api.ExpenseCandidate {
	day := time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC)
	return api.ExpenseCandidate{
		ID:              id,
		Amount:          decimal.NewFromInt(amount),
		Merchant:        "Zomato",
		Category:        api.CategoryFood,
		PaymentMethod:   api.PaymentUPI,
		TransactionDate: day,
		Description:     "Auto-detected from SMS: Zomato",
		Confidence:      0.6,
		NeedsReview:     true,
		OriginalText:    "Rs.450 debited from A/c XX1234 on 26-12-24 to Zomato via UPI",
		SourceSender:    "SBIINB",
		SourceTimestamp: day.Add(10 * time.Hour),
		Status:          api.StatusPending,
		CreatedAt:       day.Add(11 * time.Hour),
	}
}

// Run exercises the CandidateStore contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) api.CandidateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, api.ErrNotFound)

		last, err := s.LastScan(ctx)
		require.NoError(t, err)
		assert.True(t, last.IsZero())
	})

	t.Run("upsert keeps order and replaces by id", func(t *testing.T) {
		s := newStore(t)

		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{Candidate("a", 450), Candidate("b", 120)}))
		updated := Candidate("a", 460)
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{updated, Candidate("c", 2499)}))

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
		assert.True(t, all[0].Amount.Equal(decimal.NewFromInt(460)))

		got, err := s.Get(ctx, "c")
		require.NoError(t, err)
		want := Candidate("c", 2499)
		assert.True(t, want.Amount.Equal(got.Amount))
		assert.Equal(t, want.Merchant, got.Merchant)
		assert.Equal(t, want.Category, got.Category)
		assert.Equal(t, want.PaymentMethod, got.PaymentMethod)
		assert.True(t, want.TransactionDate.Equal(got.TransactionDate))
		assert.Equal(t, want.OriginalText, got.OriginalText)
		assert.Equal(t, want.SourceSender, got.SourceSender)
		assert.InDelta(t, want.Confidence, got.Confidence, 1e-9)
		assert.True(t, got.NeedsReview)
		assert.Equal(t, api.StatusPending, got.Status)
	})

	t.Run("update status is compare and set", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{Candidate("a", 450)}))

		changed, err := s.UpdateStatus(ctx, "a", api.StatusPending, api.StatusRejected)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = s.UpdateStatus(ctx, "a", api.StatusPending, api.StatusConfirmed)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, api.StatusRejected, got.Status)

		_, err = s.UpdateStatus(ctx, "missing", api.StatusPending, api.StatusConfirmed)
		assert.ErrorIs(t, err, api.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{Candidate("a", 450), Candidate("b", 120)}))

		require.NoError(t, s.Delete(ctx, "a"))
		assert.ErrorIs(t, s.Delete(ctx, "a"), api.ErrNotFound)

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "b", all[0].ID)
	})

	t.Run("natural key is unique", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{Candidate("a", 450)}))

		same := Candidate("b", 450)
		same.TransactionDate = same.TransactionDate.Add(15 * time.Hour)
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{same, Candidate("c", 120)}))

		all, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, []string{"a", "c"}, []string{all[0].ID, all[1].ID})

		_, err = s.Get(ctx, "b")
		assert.ErrorIs(t, err, api.ErrNotFound)

		require.NoError(t, s.Delete(ctx, "a"))
		require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{same}))
		_, err = s.Get(ctx, "b")
		assert.NoError(t, err)
	})

	t.Run("last scan round trip", func(t *testing.T) {
		s := newStore(t)
		ts := time.Date(2024, time.December, 27, 8, 30, 0, 0, time.UTC)

		require.NoError(t, s.SetLastScan(ctx, ts))
		require.NoError(t, s.SetLastScan(ctx, ts.Add(time.Hour)))

		got, err := s.LastScan(ctx)
		require.NoError(t, err)
		assert.True(t, ts.Add(time.Hour).Equal(got), "got %v", got)
	})
}

// RunShared checks that separate handles on one backing store, such as the daemon and a
// CLI command, see and keep each other's writes. open must return a new handle on the same
// storage every call; the storage must start empty.
func RunShared(t *testing.T, open func(t *testing.T) api.CandidateStore) {
	t.Helper()
	ctx := context.Background()

	daemon := open(t)
	cmd := open(t)

	require.NoError(t, daemon.Upsert(ctx, []api.ExpenseCandidate{Candidate("a", 450)}))

	changed, err := cmd.UpdateStatus(ctx, "a", api.StatusPending, api.StatusConfirmed)
	require.NoError(t, err)
	require.True(t, changed)

	ts := time.Date(2024, time.December, 27, 8, 30, 0, 0, time.UTC)
	require.NoError(t, daemon.SetLastScan(ctx, ts))
	require.NoError(t, daemon.Upsert(ctx, []api.ExpenseCandidate{Candidate("b", 120)}))

	// Same expense as b, detected independently by the other handle.
	require.NoError(t, cmd.Upsert(ctx, []api.ExpenseCandidate{Candidate("b2", 120)}))

	changed, err = daemon.UpdateStatus(ctx, "a", api.StatusPending, api.StatusRejected)
	require.NoError(t, err)
	assert.False(t, changed, "status change made by the other handle must be visible")

	fresh := open(t)
	got, err := fresh.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, api.StatusConfirmed, got.Status)

	all, err := fresh.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"a", "b"}, []string{all[0].ID, all[1].ID})

	last, err := fresh.LastScan(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(last), "got %v", last)
}

// Broken is a CandidateStore whose every operation fails with Err.
type Broken struct {
	Err error
}

func (b Broken) LoadAll(context.Context) ([]api.ExpenseCandidate, error) { return nil, b.Err }

func (b Broken) Get(context.Context, string) (api.ExpenseCandidate, error) {
	return api.ExpenseCandidate{}, b.Err
}

func (b Broken) Upsert(context.Context, []api.ExpenseCandidate) error { return b.Err }

func (b Broken) UpdateStatus(context.Context, string, api.Status, api.Status) (bool, error) {
	return false, b.Err
}

func (b Broken) Delete(context.Context, string) error { return b.Err }

func (b Broken) LastScan(context.Context) (time.Time, error) { return time.Time{}, b.Err }

func (b Broken) SetLastScan(context.Context, time.Time) error { return b.Err }

func (b Broken) Close() error { return nil }
