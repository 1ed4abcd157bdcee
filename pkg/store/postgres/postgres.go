// Package postgres provides a PostgreSQL CandidateStore.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/spendsense/pkg/api"
)

//go:embed migrations/001_create_candidates.sql
var migrationSQL string

const lastScanKey = "last_scan"

const selectColumns = `id, amount::text, merchant, category, payment_method, transaction_date, description,
	confidence, needs_review, original_text, source_sender, source_timestamp, status, created_at`

// Config holds the PostgreSQL connection settings.
type Config struct {
	// DSN, when set, is used instead of the individual fields.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// ConnString returns the libpq connection string for cfg.
func (cfg Config) ConnString() string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
}

// Store persists candidates in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, verifies the connection and runs migrations.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) runMigrations(ctx context.Context) error {
	s.logger.Info("running database migrations")
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Info("migrations completed successfully")
	return nil
}

func scanCandidate(row pgx.Row) (api.ExpenseCandidate, error) {
	var (
		c      api.ExpenseCandidate
		amount string
	)
	err := row.Scan(&c.ID, &amount, &c.Merchant, &c.Category, &c.PaymentMethod, &c.TransactionDate, &c.Description,
		&c.Confidence, &c.NeedsReview, &c.OriginalText, &c.SourceSender, &c.SourceTimestamp, &c.Status, &c.CreatedAt)
	if err != nil {
		return c, err
	}
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, fmt.Errorf("parsing amount of %s: %w", c.ID, err)
	}
	return c, nil
}

// LoadAll returns every candidate in insertion order.
func (s *Store) LoadAll(ctx context.Context) ([]api.ExpenseCandidate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+selectColumns+` FROM candidates ORDER BY seq`)
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
	c, err := scanCandidate(s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM candidates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return api.ExpenseCandidate{}, api.ErrNotFound
	}
	if err != nil {
		return api.ExpenseCandidate{}, fmt.Errorf("getting candidate %s: %w", id, err)
	}
	return c, nil
}

// upsertSQL replaces a row by id, or inserts it when the id is new. The insert is dropped
// when another row already holds the same amount, merchant and day.
const upsertSQL = `
	WITH updated AS (
		UPDATE candidates SET
			amount = $2::numeric,
			merchant = $3::text,
			category = $4::text,
			payment_method = $5::text,
			transaction_date = $6::date,
			description = $7::text,
			confidence = $8::double precision,
			needs_review = $9::boolean,
			original_text = $10::text,
			source_sender = $11::text,
			source_timestamp = $12::timestamptz,
			status = $13::text,
			created_at = $14::timestamptz,
			updated_at = NOW()
		WHERE id = $1::text
		RETURNING id
	)
	INSERT INTO candidates (
		id, amount, merchant, category, payment_method, transaction_date, description,
		confidence, needs_review, original_text, source_sender, source_timestamp, status, created_at
	)
	SELECT $1::text, $2::numeric, $3::text, $4::text, $5::text, $6::date, $7::text,
		$8::double precision, $9::boolean, $10::text, $11::text, $12::timestamptz, $13::text, $14::timestamptz
	WHERE NOT EXISTS (SELECT 1 FROM updated)
	ON CONFLICT DO NOTHING
`

// Upsert inserts or replaces candidates by id in one transaction. A new id whose amount,
// merchant and day match a stored row is ignored, so concurrent writers cannot store one
// expense twice.
func (s *Store) Upsert(ctx context.Context, candidates []api.ExpenseCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, c := range candidates {
		batch.Queue(upsertSQL,
			c.ID,
			c.Amount.String(),
			c.Merchant,
			string(c.Category),
			string(c.PaymentMethod),
			c.TransactionDate.Format(time.DateOnly),
			c.Description,
			c.Confidence,
			c.NeedsReview,
			c.OriginalText,
			c.SourceSender,
			c.SourceTimestamp,
			string(c.Status),
			c.CreatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range candidates {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("upserting candidate %s: %w", candidates[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("upserted candidates", "count", len(candidates))
	return nil
}

// UpdateStatus changes the status of id from `from` to `to`.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to api.Status) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE candidates SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("updating status of %s: %w", id, err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking candidate %s: %w", id, err)
	}
	if !exists {
		return false, api.ErrNotFound
	}
	return false, nil
}

// Delete removes a candidate.
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM candidates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting candidate %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

// LastScan returns the last recorded scan time, or the zero time.
func (s *Store) LastScan(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := s.pool.QueryRow(ctx, `SELECT value FROM scan_state WHERE key = $1`, lastScanKey).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading last scan: %w", err)
	}
	return t, nil
}

// SetLastScan records the scan time.
func (s *Store) SetLastScan(ctx context.Context, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, lastScanKey, t)
	if err != nil {
		return fmt.Errorf("recording last scan: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}
