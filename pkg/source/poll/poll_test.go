package poll

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

type recorder struct {
	mu   sync.Mutex
	msgs []api.RawMessage
}

func (r *recorder) add(m api.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Body)
	}
	return out
}

func TestSubscribe_DeliversEachMessageOnce(t *testing.T) {
	var calls atomic.Int32
	fetch := func(_ context.Context, _ time.Time) ([]Item, error) {
		n := calls.Add(1)
		items := []Item{{Key: "1", Message: api.RawMessage{Body: "first"}}}
		if n >= 2 {
			items = append(items, Item{Key: "2", Message: api.RawMessage{Body: "second"}})
		}
		if n == 3 {
			return nil, errors.New("temporary failure")
		}
		return items, nil
	}

	rec := &recorder{}
	sub := Subscribe(context.Background(), Config{Interval: 5 * time.Millisecond}, fetch, rec.add, nil)
	defer sub.Close()

	require.Eventually(t, func() bool { return calls.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, sub.Close())

	assert.Equal(t, []string{"first", "second"}, rec.bodies())
}

func TestSubscribe_FirstPollStartsAtStart(t *testing.T) {
	start := time.Date(2024, time.December, 26, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return start.Add(time.Minute) }

	sinces := make(chan time.Time, 16)
	fetch := func(_ context.Context, since time.Time) ([]Item, error) {
		select {
		case sinces <- since:
		default:
		}
		return nil, nil
	}

	sub := Subscribe(context.Background(), Config{
		Interval: 5 * time.Millisecond,
		Overlap:  time.Hour,
		Start:    start,
		Clock:    clock,
	}, fetch, func(api.RawMessage) {}, nil)

	first := <-sinces
	second := <-sinces
	require.NoError(t, sub.Close())

	assert.True(t, first.Equal(start))
	assert.True(t, second.Equal(start.Add(time.Minute).Add(-time.Hour)))
}

func TestSubscription_CloseOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := Subscribe(ctx, Config{Interval: time.Hour}, func(context.Context, time.Time) ([]Item, error) {
		return nil, nil
	}, func(api.RawMessage) {}, nil)

	cancel()
	done := make(chan struct{})
	go func() {
		sub.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after context cancellation")
	}
	assert.NoError(t, sub.Close())
}
