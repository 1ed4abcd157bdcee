// Package orchestrator drives the detection pipeline from a message source into the candidate store.
//
// Two triggers feed the pipeline: Backfill scans a trailing window of history and OnMessage
// reacts to a single live message. Both end in the same load, merge and upsert step, which is
// serialized so a live message cannot be lost to a concurrent scan.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/merge"
	"github.com/ArionMiles/spendsense/pkg/parser"
)

// DefaultMaxCount caps the number of messages read by one backfill.
const DefaultMaxCount = 500

// Stats counts pipeline activity and absorbed failures.
type Stats struct {
	MessagesSeen         atomic.Int64
	CandidatesDetected   atomic.Int64
	CandidatesAdded      atomic.Int64
	DuplicatesSuppressed atomic.Int64
	SourceFailures       atomic.Int64
	StoreFailures        atomic.Int64
	NotificationsEmitted atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	MessagesSeen         int64 `json:"messages_seen"`
	CandidatesDetected   int64 `json:"candidates_detected"`
	CandidatesAdded      int64 `json:"candidates_added"`
	DuplicatesSuppressed int64 `json:"duplicates_suppressed"`
	SourceFailures       int64 `json:"source_failures"`
	StoreFailures        int64 `json:"store_failures"`
	NotificationsEmitted int64 `json:"notifications_emitted"`
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		MessagesSeen:         s.MessagesSeen.Load(),
		CandidatesDetected:   s.CandidatesDetected.Load(),
		CandidatesAdded:      s.CandidatesAdded.Load(),
		DuplicatesSuppressed: s.DuplicatesSuppressed.Load(),
		SourceFailures:       s.SourceFailures.Load(),
		StoreFailures:        s.StoreFailures.Load(),
		NotificationsEmitted: s.NotificationsEmitted.Load(),
	}
}

// Report summarizes one backfill run.
type Report struct {
	Since      time.Time              `json:"since"`
	FinishedAt time.Time              `json:"finished_at"`
	Scanned    int                    `json:"scanned"`
	Detected   int                    `json:"detected"`
	Added      []api.ExpenseCandidate `json:"added"`
	// Skipped is set when the source denied read permission or failed.
	Skipped bool `json:"skipped"`
}

// Config holds orchestrator dependencies.
type Config struct {
	Source   api.MessageSource
	Store    api.CandidateStore
	Notifier api.Notifier
	Parser   *parser.Parser
	// MaxCount caps messages per backfill. Defaults to DefaultMaxCount.
	MaxCount int
	// MergeOptions are passed to every merge, mainly to fix ids and clocks in tests.
	MergeOptions []merge.Option
	Clock        func() time.Time
}

// Orchestrator runs backfills and live message handling.
type Orchestrator struct {
	source    api.MessageSource
	store     api.CandidateStore
	notifier  api.Notifier
	parser    *parser.Parser
	maxCount  int
	mergeOpts []merge.Option
	now       func() time.Time
	logger    *slog.Logger

	// mu serializes load-merge-upsert.
	mu    sync.Mutex
	stats Stats
}

// New creates an orchestrator. A nil parser uses the built-in rules.
func New(cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	p := cfg.Parser
	if p == nil {
		p = parser.New(nil)
	}
	maxCount := cfg.MaxCount
	if maxCount <= 0 {
		maxCount = DefaultMaxCount
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Orchestrator{
		source:    cfg.Source,
		store:     cfg.Store,
		notifier:  cfg.Notifier,
		parser:    p,
		maxCount:  maxCount,
		mergeOpts: cfg.MergeOptions,
		now:       now,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Stats returns the live counters.
func (o *Orchestrator) Stats() *Stats {
	return &o.stats
}

// Backfill scans messages received in the trailing window and stores new candidates.
// Source and store failures are logged and counted; the report then shows zero messages.
// The scan time is recorded only when the source was read successfully.
func (o *Orchestrator) Backfill(ctx context.Context, windowDays int) Report {
	start := o.now()
	report := Report{Since: start.AddDate(0, 0, -windowDays)}
	logger := o.logger.With("window_days", windowDays, "since", report.Since)

	if !o.source.HasReadPermission(ctx) {
		logger.Warn("message read permission not granted, skipping backfill")
		report.Skipped = true
		report.FinishedAt = o.now()
		return report
	}

	msgs, err := o.source.ListMessages(ctx, report.Since, o.maxCount)
	if err != nil {
		o.stats.SourceFailures.Add(1)
		logger.Error("failed to list messages, treating as empty", "error", err)
		report.Skipped = true
		report.FinishedAt = o.now()
		return report
	}
	report.Scanned = len(msgs)
	o.stats.MessagesSeen.Add(int64(len(msgs)))

	candidates := o.parser.ParseBatch(msgs)
	report.Detected = len(candidates)
	o.stats.CandidatesDetected.Add(int64(len(candidates)))

	report.Added = o.mergeAndStore(ctx, candidates)

	report.FinishedAt = o.now()
	if err := o.store.SetLastScan(ctx, report.FinishedAt); err != nil {
		o.stats.StoreFailures.Add(1)
		logger.Error("failed to record scan time", "error", err)
	}

	logger.Info("backfill complete",
		"scanned", report.Scanned,
		"detected", report.Detected,
		"added", len(report.Added),
	)
	return report
}

// OnMessage handles one live message. It returns the stored candidate when the message
// produced a new one, and emits EventCandidateDetected for it.
func (o *Orchestrator) OnMessage(ctx context.Context, msg api.RawMessage) (api.ExpenseCandidate, bool) {
	o.stats.MessagesSeen.Add(1)

	candidate, ok := o.parser.Parse(msg)
	if !ok {
		o.logger.Debug("message is not an expense", "sender", msg.Sender)
		return api.ExpenseCandidate{}, false
	}
	o.stats.CandidatesDetected.Add(1)

	added := o.mergeAndStore(ctx, []api.ExpenseCandidate{*candidate})
	if len(added) == 0 {
		return api.ExpenseCandidate{}, false
	}

	c := added[0]
	o.logger.Info("expense detected",
		"id", c.ID,
		"merchant", c.Merchant,
		"amount", c.Amount.StringFixed(2),
		"category", c.Category,
	)
	if o.notifier != nil {
		o.notifier.Emit(api.EventCandidateDetected, c)
		o.stats.NotificationsEmitted.Add(1)
	}
	return c, true
}

// Listen subscribes OnMessage to the source's live feed.
// The caller owns the returned subscription; closing it stops the listener.
func (o *Orchestrator) Listen(ctx context.Context) (api.Subscription, error) {
	if !o.source.HasReadPermission(ctx) {
		o.logger.Warn("message read permission not granted, not listening")
		return nil, api.ErrPermissionDenied
	}

	sub, err := o.source.Subscribe(ctx, func(msg api.RawMessage) {
		o.OnMessage(ctx, msg)
	})
	if err != nil {
		o.stats.SourceFailures.Add(1)
		return nil, err
	}

	o.logger.Info("listening for live messages")
	return sub, nil
}

// mergeAndStore merges candidates into the stored collection and persists the additions.
// A failed load aborts the merge so candidates are not stored against an unknown baseline.
func (o *Orchestrator) mergeAndStore(ctx context.Context, candidates []api.ExpenseCandidate) []api.ExpenseCandidate {
	if len(candidates) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := o.store.LoadAll(ctx)
	if err != nil {
		o.stats.StoreFailures.Add(1)
		o.logger.Error("failed to load candidates, dropping batch", "count", len(candidates), "error", err)
		return nil
	}

	merged := merge.Merge(existing, candidates, o.mergeOpts...)
	added := merged[len(existing):]

	if dups := len(candidates) - len(added); dups > 0 {
		o.stats.DuplicatesSuppressed.Add(int64(dups))
		o.logger.Debug("suppressed duplicate candidates", "count", dups)
	}
	if len(added) == 0 {
		return nil
	}

	if err := o.store.Upsert(ctx, added); err != nil {
		o.stats.StoreFailures.Add(1)
		o.logger.Error("failed to store candidates", "count", len(added), "error", err)
		return nil
	}

	stored := o.storedOnly(ctx, added)
	o.stats.CandidatesAdded.Add(int64(len(stored)))
	return stored
}

// storedOnly drops candidates the store declined because another writer had already
// recorded the same expense under a different id.
func (o *Orchestrator) storedOnly(ctx context.Context, added []api.ExpenseCandidate) []api.ExpenseCandidate {
	stored := make([]api.ExpenseCandidate, 0, len(added))
	for _, c := range added {
		_, err := o.store.Get(ctx, c.ID)
		if errors.Is(err, api.ErrNotFound) {
			o.stats.DuplicatesSuppressed.Add(1)
			o.logger.Debug("candidate stored concurrently by another writer", "id", c.ID)
			continue
		}
		if err != nil {
			o.logger.Warn("failed to verify stored candidate", "id", c.ID, "error", err)
		}
		stored = append(stored, c)
	}
	return stored
}
