package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

func candidate() api.ExpenseCandidate {
	return api.ExpenseCandidate{
		ID:              "a",
		Amount:          decimal.RequireFromString("2499.00"),
		Merchant:        "Unknown Merchant",
		Category:        api.CategoryShopping,
		PaymentMethod:   api.PaymentCard,
		TransactionDate: time.Date(2024, time.December, 24, 0, 0, 0, 0, time.UTC),
		Description:     "Auto-detected from SMS: Unknown Merchant",
	}
}

func TestLedger_Submit(t *testing.T) {
	var (
		calls atomic.Int32
		got   map[string]any
		auth  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/api/expenses", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	l, err := New(Config{BaseURL: srv.URL + "/api/", Token: "secret", RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	require.NoError(t, l.Submit(context.Background(), candidate()))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, map[string]any{
		"amount":        2499.0,
		"category":      "Shopping",
		"paymentMethod": "Card",
		"date":          "2024-12-24T00:00:00Z",
		"description":   "Auto-detected from SMS: Unknown Merchant",
	}, got)
}

func TestLedger_SubmitClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"No token, authorization denied"}`))
	}))
	defer srv.Close()

	l, err := New(Config{BaseURL: srv.URL, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	err = l.Submit(context.Background(), candidate())
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.Code)
	assert.Contains(t, statusErr.Body, "authorization denied")
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
