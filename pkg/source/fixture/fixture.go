// Package fixture implements a MessageSource backed by a fixed set of messages.
//
// It serves the built-in sample notifications, messages loaded from a dump file, or
// messages pushed at runtime (the HTTP webhook uses Push).
package fixture

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ArionMiles/spendsense/pkg/api"
)

//go:embed content/samples.json
var samplesJSON []byte

type sample struct {
	Body   string `json:"body"`
	Sender string `json:"sender"`
	Age    string `json:"age"`
}

// Samples returns the built-in sample notifications, received relative to now.
func Samples(now time.Time) []api.RawMessage {
	var raw []sample
	if err := json.Unmarshal(samplesJSON, &raw); err != nil {
		panic(fmt.Sprintf("fixture: embedded samples: %v", err))
	}

	msgs := make([]api.RawMessage, 0, len(raw))
	for _, s := range raw {
		age, err := time.ParseDuration(s.Age)
		if err != nil {
			panic(fmt.Sprintf("fixture: sample age %q: %v", s.Age, err))
		}
		msgs = append(msgs, api.RawMessage{Body: s.Body, Sender: s.Sender, ReceivedAt: now.Add(-age)})
	}
	return msgs
}

// LoadFile reads messages written by the dump command.
func LoadFile(path string) ([]api.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture file: %w", err)
	}
	var msgs []api.RawMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("parsing fixture file: %w", err)
	}
	return msgs, nil
}

// Source is an in-memory inbox.
type Source struct {
	mu        sync.RWMutex
	messages  []api.RawMessage
	listeners map[int]func(api.RawMessage)
	nextID    int
	permitted bool
	listErr   error
}

// Option configures a Source.
type Option func(*Source)

// WithPermission sets the answer of HasReadPermission. The default is true.
func WithPermission(granted bool) Option {
	return func(s *Source) { s.permitted = granted }
}

// WithListError makes ListMessages fail, to exercise fail-open paths.
func WithListError(err error) Option {
	return func(s *Source) { s.listErr = err }
}

// New creates a source holding msgs.
func New(msgs []api.RawMessage, opts ...Option) *Source {
	s := &Source{
		messages:  append([]api.RawMessage(nil), msgs...),
		listeners: make(map[int]func(api.RawMessage)),
		permitted: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasReadPermission implements api.MessageSource.
func (s *Source) HasReadPermission(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permitted
}

// SetPermission changes the permission answer.
func (s *Source) SetPermission(granted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.permitted = granted
}

// ListMessages returns messages received at or after since, newest first, capped at maxCount.
func (s *Source) ListMessages(_ context.Context, since time.Time, maxCount int) ([]api.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listErr != nil {
		return nil, s.listErr
	}
	if !s.permitted {
		return nil, api.ErrPermissionDenied
	}

	out := make([]api.RawMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if !m.ReceivedAt.Before(since) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })

	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out, nil
}

// Subscribe registers fn for messages passed to Push.
func (s *Source) Subscribe(_ context.Context, fn func(api.RawMessage)) (api.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return &subscription{source: s, id: id}, nil
}

// Push adds msg to the inbox and delivers it to every subscriber synchronously.
func (s *Source) Push(msg api.RawMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	listeners := make([]func(api.RawMessage), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}
}

// Listeners returns the number of active subscriptions.
func (s *Source) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

type subscription struct {
	source *Source
	id     int
}

func (sub *subscription) Close() error {
	sub.source.mu.Lock()
	defer sub.source.mu.Unlock()
	delete(sub.source.listeners, sub.id)
	return nil
}
