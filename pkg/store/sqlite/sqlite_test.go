package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "spendsense.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) api.CandidateStore {
		return newTestStore(t)
	})
}

func TestStore_SharedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spendsense.db")
	storetest.RunShared(t, func(t *testing.T) api.CandidateStore {
		s, err := New(path, nil)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "spendsense.db")

	s, err := New(path, nil)
	require.NoError(t, err)
	c := storetest.Candidate("a", 450)
	c.Amount = decimal.RequireFromString("450.50")
	require.NoError(t, s.Upsert(ctx, []api.ExpenseCandidate{c}))
	require.NoError(t, s.Close())

	reopened, err := New(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "450.5", got.Amount.String())
}

func TestNew_EmptyPath(t *testing.T) {
	_, err := New("", nil)
	assert.Error(t, err)
}
