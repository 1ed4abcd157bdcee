// Package rest implements a Ledger that posts confirmed expenses to the expense-tracker HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Config holds configuration for the REST ledger.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:5000/api.
	BaseURL string
	// Token is sent as a bearer token.
	Token string
	// Timeout per request. Defaults to 10 seconds.
	Timeout time.Duration
	// Attempts for retryable failures. Defaults to 3.
	Attempts uint
	// RetryDelay defaults to one second.
	RetryDelay time.Duration
	// RequestsPerSecond caps the submit rate. Defaults to 5.
	RequestsPerSecond float64
}

// Expense is the request body accepted by POST /expenses.
type Expense struct {
	Amount        json.Number `json:"amount"`
	Category      string      `json:"category"`
	PaymentMethod string      `json:"paymentMethod"`
	Date          time.Time   `json:"date"`
	Description   string      `json:"description"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ledger api returned %d: %s", e.Code, e.Body)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Ledger posts expenses over HTTP.
type Ledger struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a REST ledger.
func New(cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("rest ledger: base URL is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}

	return &Ledger{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  logger,
	}, nil
}

// ToExpense maps a candidate onto the API body.
func ToExpense(c api.ExpenseCandidate) Expense {
	return Expense{
		Amount:        json.Number(c.Amount.String()),
		Category:      string(c.Category),
		PaymentMethod: string(c.PaymentMethod),
		Date:          c.TransactionDate,
		Description:   c.Description,
	}
}

// Submit posts the candidate, retrying network failures, 429 and 5xx responses.
func (l *Ledger) Submit(ctx context.Context, c api.ExpenseCandidate) error {
	body, err := json.Marshal(ToExpense(c))
	if err != nil {
		return fmt.Errorf("marshaling expense: %w", err)
	}

	err = retry.Do(
		func() error {
			if err := l.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			return l.post(ctx, body)
		},
		retry.RetryIf(func(err error) bool {
			if !retry.IsRecoverable(err) {
				return false
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.Retryable()
			}
			return ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			l.logger.Warn("ledger submit failed, will retry", "id", c.ID, "attempt", n+1, "error", err)
		}),
		retry.Attempts(l.cfg.Attempts),
		retry.Delay(l.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("submitting expense %s: %w", c.ID, err)
	}

	l.logger.Info("submitted expense to ledger api", "id", c.ID, "amount", c.Amount.StringFixed(2))
	return nil
}

func (l *Ledger) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.cfg.BaseURL+"/expenses", bytes.NewReader(body))
	if err != nil {
		return retry.Unrecoverable(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if l.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+l.cfg.Token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting expense: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

// Close is a no-op.
func (l *Ledger) Close() error { return nil }
