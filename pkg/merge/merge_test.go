package merge

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

var now = time.Date(2024, time.December, 27, 9, 0, 0, 0, time.UTC)

func candidate(amount, merchant string, day time.Time) api.ExpenseCandidate {
	return api.ExpenseCandidate{
		Amount:          decimal.RequireFromString(amount),
		Merchant:        merchant,
		Category:        api.CategoryOther,
		TransactionDate: day,
	}
}

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

func TestIsDuplicate(t *testing.T) {
	day := time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC)
	base := candidate("450", "Zomato", day)

	tests := []struct {
		name  string
		other api.ExpenseCandidate
		want  bool
	}{
		{name: "identical", other: base, want: true},
		{name: "same amount different scale", other: candidate("450.00", "Zomato", day), want: true},
		{name: "same day later time", other: candidate("450", "Zomato", day.Add(23*time.Hour)), want: true},
		{name: "different amount", other: candidate("450.01", "Zomato", day), want: false},
		{name: "different merchant", other: candidate("450", "zomato", day), want: false},
		{name: "next day", other: candidate("450", "Zomato", day.AddDate(0, 0, 1)), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDuplicate(base, tt.other))
			assert.Equal(t, tt.want, KeyOf(base) == KeyOf(tt.other))
		})
	}
}

func TestMerge(t *testing.T) {
	day := time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC)
	existing := []api.ExpenseCandidate{candidate("450", "Zomato", day)}
	existing[0].ID = "old"
	existing[0].Status = api.StatusConfirmed

	incoming := []api.ExpenseCandidate{
		candidate("450.00", "Zomato", day),
		candidate("120", "Metro", day),
		candidate("120", "Metro", day),
		candidate("2499", "Amazon", day.AddDate(0, 0, -1)),
	}

	merged := Merge(existing, incoming, sequentialIDs(), WithClock(func() time.Time { return now }))

	require.Len(t, merged, 3)
	assert.Equal(t, existing[0], merged[0])

	added := merged[len(existing):]
	assert.Equal(t, "id-1", added[0].ID)
	assert.Equal(t, "Metro", added[0].Merchant)
	assert.Equal(t, "id-2", added[1].ID)
	assert.Equal(t, "Amazon", added[1].Merchant)
	for _, c := range added {
		assert.Equal(t, api.StatusPending, c.Status)
		assert.True(t, now.Equal(c.CreatedAt))
	}

	// Inputs are not modified.
	assert.Empty(t, incoming[1].ID)
	assert.Equal(t, api.StatusConfirmed, existing[0].Status)
}

func TestMerge_Idempotent(t *testing.T) {
	day := time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC)
	batch := []api.ExpenseCandidate{
		candidate("450", "Zomato", day),
		candidate("120", "Metro", day),
	}
	opts := []Option{sequentialIDs(), WithClock(func() time.Time { return now })}

	once := Merge(nil, batch, opts...)
	twice := Merge(once, batch, opts...)

	assert.Equal(t, once, twice)
}

func TestMerge_DefaultIDsAreUnique(t *testing.T) {
	day := time.Date(2024, time.December, 26, 0, 0, 0, 0, time.UTC)
	merged := Merge(nil, []api.ExpenseCandidate{
		candidate("1", "A shop", day),
		candidate("2", "A shop", day),
	})

	require.Len(t, merged, 2)
	assert.NotEmpty(t, merged[0].ID)
	assert.NotEqual(t, merged[0].ID, merged[1].ID)
	assert.False(t, merged[0].CreatedAt.IsZero())
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
}
