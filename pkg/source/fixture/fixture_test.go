package fixture

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

var now = time.Date(2024, time.December, 26, 12, 0, 0, 0, time.UTC)

func TestSamples(t *testing.T) {
	msgs := Samples(now)
	require.Len(t, msgs, 5)
	assert.Equal(t, "SBIINB", msgs[0].Sender)
	assert.Equal(t, now, msgs[0].ReceivedAt)
	assert.Equal(t, now.Add(-48*time.Hour), msgs[2].ReceivedAt)
}

func TestSource_ListMessages(t *testing.T) {
	ctx := context.Background()
	s := New(Samples(now))

	tests := []struct {
		name     string
		since    time.Time
		maxCount int
		want     []string
	}{
		{name: "window", since: now.Add(-30 * time.Hour), want: []string{"SBIINB", "HDFCBK"}},
		{name: "since is inclusive", since: now, want: []string{"SBIINB"}},
		{name: "max count keeps newest", since: now.AddDate(0, 0, -30), maxCount: 2, want: []string{"SBIINB", "HDFCBK"}},
		{name: "everything", since: time.Time{}, want: []string{"SBIINB", "HDFCBK", "ICICIB", "SBIINB", "AXISBK"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := s.ListMessages(ctx, tt.since, tt.maxCount)
			require.NoError(t, err)
			senders := make([]string, 0, len(msgs))
			for _, m := range msgs {
				senders = append(senders, m.Sender)
			}
			assert.Equal(t, tt.want, senders)
		})
	}
}

func TestSource_Permission(t *testing.T) {
	ctx := context.Background()
	s := New(Samples(now), WithPermission(false))

	assert.False(t, s.HasReadPermission(ctx))
	_, err := s.ListMessages(ctx, time.Time{}, 0)
	assert.ErrorIs(t, err, api.ErrPermissionDenied)

	s.SetPermission(true)
	assert.True(t, s.HasReadPermission(ctx))
}

func TestSource_SubscribeAndPush(t *testing.T) {
	ctx := context.Background()
	s := New(nil)

	var got []api.RawMessage
	sub, err := s.Subscribe(ctx, func(m api.RawMessage) { got = append(got, m) })
	require.NoError(t, err)
	assert.Equal(t, 1, s.Listeners())

	msg := api.RawMessage{Body: "Rs.99 debited", Sender: "HDFCBK", ReceivedAt: now}
	s.Push(msg)
	require.NoError(t, sub.Close())
	s.Push(msg)

	assert.Equal(t, []api.RawMessage{msg}, got)
	assert.Equal(t, 0, s.Listeners())

	listed, err := s.ListMessages(ctx, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	data, err := json.Marshal(Samples(now)[:2])
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	msgs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, now.Equal(msgs[0].ReceivedAt))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
