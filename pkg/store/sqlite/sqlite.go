// Package sqlite implements a CandidateStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/spendsense/pkg/api"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	seq              INTEGER PRIMARY KEY AUTOINCREMENT,
	id               TEXT NOT NULL UNIQUE,
	amount           TEXT NOT NULL,
	merchant         TEXT NOT NULL,
	category         TEXT NOT NULL,
	payment_method   TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	day              TEXT NOT NULL,
	description      TEXT NOT NULL,
	confidence       REAL NOT NULL,
	needs_review     INTEGER NOT NULL,
	original_text    TEXT NOT NULL,
	source_sender    TEXT NOT NULL,
	source_timestamp TEXT NOT NULL,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_candidates_status ON candidates(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_candidates_natural_key ON candidates(amount, merchant, day);
CREATE TABLE IF NOT EXISTS scan_state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const selectColumns = `id, amount, merchant, category, payment_method, transaction_date, description,
	confidence, needs_review, original_text, source_sender, source_timestamp, status, created_at`

const lastScanKey = "last_scan"

// Store persists candidates in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New opens (creating if needed) the database at path and applies the schema.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return nil, errors.New("sqlite store: database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent upserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logger.Info("sqlite store initialized", "path", path)
	return &Store{db: db, logger: logger}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (api.ExpenseCandidate, error) {
	var (
		c                                  api.ExpenseCandidate
		amount, txDate, srcTime, createdAt string
		needsReview                        int
	)
	err := row.Scan(&c.ID, &amount, &c.Merchant, &c.Category, &c.PaymentMethod, &txDate, &c.Description,
		&c.Confidence, &needsReview, &c.OriginalText, &c.SourceSender, &srcTime, &c.Status, &createdAt)
	if err != nil {
		return c, err
	}

	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, fmt.Errorf("parsing amount of %s: %w", c.ID, err)
	}
	if c.TransactionDate, err = time.Parse(time.RFC3339Nano, txDate); err != nil {
		return c, fmt.Errorf("parsing transaction date of %s: %w", c.ID, err)
	}
	if c.SourceTimestamp, err = time.Parse(time.RFC3339Nano, srcTime); err != nil {
		return c, fmt.Errorf("parsing source timestamp of %s: %w", c.ID, err)
	}
	if c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return c, fmt.Errorf("parsing created_at of %s: %w", c.ID, err)
	}
	c.NeedsReview = needsReview != 0
	return c, nil
}

// LoadAll returns every candidate in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]api.ExpenseCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM candidates ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying candidates: %w", err)
	}
	defer rows.Close()

	out := []api.ExpenseCandidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns one candidate.
func (s *Store) Get(ctx context.Context, id string) (api.ExpenseCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM candidates WHERE id = ?`, id)
	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return api.ExpenseCandidate{}, api.ErrNotFound
	}
	if err != nil {
		return api.ExpenseCandidate{}, fmt.Errorf("getting candidate %s: %w", id, err)
	}
	return c, nil
}

// Upsert inserts or replaces candidates by id in one transaction. A new id whose amount,
// merchant and day match a stored row is ignored, so concurrent writers cannot store one
// expense twice.
func (s *Store) Upsert(ctx context.Context, candidates []api.ExpenseCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	update, err := tx.PrepareContext(ctx, `
		UPDATE candidates SET
			amount = ?, merchant = ?, category = ?, payment_method = ?, transaction_date = ?, day = ?,
			description = ?, confidence = ?, needs_review = ?, original_text = ?, source_sender = ?,
			source_timestamp = ?, status = ?, created_at = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}
	defer update.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO candidates (
			amount, merchant, category, payment_method, transaction_date, day, description,
			confidence, needs_review, original_text, source_sender, source_timestamp, status, created_at, id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer insert.Close()

	inserted := 0
	for _, c := range candidates {
		args := candidateArgs(c)
		res, err := update.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("updating candidate %s: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		}
		if n > 0 {
			continue
		}

		res, err = insert.ExecContext(ctx, args...)
		if err != nil {
			return fmt.Errorf("inserting candidate %s: %w", c.ID, err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("reading affected rows: %w", err)
		}
		if n == 0 {
			s.logger.Debug("skipping candidate already stored under another id", "id", c.ID)
			continue
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.logger.Debug("upserted candidates", "count", len(candidates), "inserted", inserted)
	return nil
}

// candidateArgs returns the column values in update order, with the id last.
func candidateArgs(c api.ExpenseCandidate) []any {
	needsReview := 0
	if c.NeedsReview {
		needsReview = 1
	}
	return []any{
		c.Amount.String(),
		c.Merchant,
		string(c.Category),
		string(c.PaymentMethod),
		c.TransactionDate.Format(time.RFC3339Nano),
		c.TransactionDate.Format(time.DateOnly),
		c.Description,
		c.Confidence,
		needsReview,
		c.OriginalText,
		c.SourceSender,
		c.SourceTimestamp.Format(time.RFC3339Nano),
		string(c.Status),
		c.CreatedAt.Format(time.RFC3339Nano),
		c.ID,
	}
}

// UpdateStatus changes the status of id from `from` to `to`.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to api.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidates SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("updating status of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM candidates WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, api.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("checking candidate %s: %w", id, err)
	}
	return false, nil
}

// Delete removes a candidate.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting candidate %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return api.ErrNotFound
	}
	return nil
}

// LastScan returns the last recorded scan time, or the zero time.
func (s *Store) LastScan(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM scan_state WHERE key = ?`, lastScanKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last scan: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing last scan: %w", err)
	}
	return t, nil
}

// SetLastScan records the scan time.
func (s *Store) SetLastScan(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_state (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, lastScanKey, t.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("recording last scan: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
