// Package poll turns a list-style message source into a live subscription.
//
// Sources without push delivery re-list recent messages on an interval; a seen-key cache
// makes sure each message is delivered once even though consecutive polls overlap.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Item is a listed message with a stable identity.
type Item struct {
	Key     string
	Message api.RawMessage
}

// FetchFunc lists messages received at or after since.
type FetchFunc func(ctx context.Context, since time.Time) ([]Item, error)

// Config controls polling.
type Config struct {
	// Interval between polls. Defaults to 30 seconds.
	Interval time.Duration
	// Overlap is how far before the previous poll each later poll looks back, so messages
	// indexed late are still seen. Defaults to 5 minutes.
	Overlap time.Duration
	// Start is the lower bound of the first poll. Defaults to now, so history is not replayed.
	Start time.Time
	Clock func() time.Time
}

// Subscription is a running poller.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Close stops polling and waits for the current poll to finish.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Subscribe starts polling fetch and calls fn once per new message, in listing order.
// Polling stops when ctx is canceled or the subscription is closed.
func Subscribe(ctx context.Context, cfg Config, fetch FetchFunc, fn func(api.RawMessage), logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Overlap <= 0 {
		cfg.Overlap = 5 * time.Minute
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	since := cfg.Start
	if since.IsZero() {
		since = now()
	}

	// Keys only need to outlive the overlap window.
	seen := cache.New(cfg.Overlap+2*cfg.Interval, 10*time.Minute)

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)

		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		polled := false
		for {
			select {
			case <-ctx.Done():
				logger.Info("poller stopping", "reason", ctx.Err())
				return
			case <-ticker.C:
				pollStart := now()
				lower := since
				if polled {
					lower = since.Add(-cfg.Overlap)
				}
				items, err := fetch(ctx, lower)
				if err != nil {
					logger.Warn("poll failed", "error", err)
					continue
				}

				delivered := 0
				for _, it := range items {
					if _, ok := seen.Get(it.Key); ok {
						continue
					}
					seen.SetDefault(it.Key, struct{}{})
					fn(it.Message)
					delivered++
				}
				since = pollStart
				polled = true

				logger.Debug("poll complete", "listed", len(items), "delivered", delivered)
			}
		}
	}()

	return sub
}
