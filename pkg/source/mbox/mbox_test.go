package mbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMessage struct {
	from    string
	date    time.Time
	headers string
	body    string
}

func writeMbox(t *testing.T, msgs []testMessage) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "inbox.mbox")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := mbox.NewWriter(f)
	for _, m := range msgs {
		mw, err := w.CreateMessage(m.from, m.date)
		require.NoError(t, err)
		_, err = fmt.Fprintf(mw, "From: %s\r\nDate: %s\r\n%s\r\n%s\r\n",
			m.from, m.date.Format(time.RFC1123Z), m.headers, m.body)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return path
}

func TestSource_ListMessages(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	path := writeMbox(t, []testMessage{
		{
			from:    "HDFCBK <alerts@hdfcbank.net>",
			date:    now.Add(-48 * time.Hour),
			headers: "Message-Id: <a1@hdfcbank.net>\r\nContent-Type: text/plain\r\n",
			body:    "INR 120.00 debited from Card XX5678\r\nat Metro Card Recharge on 25-12-24",
		},
		{
			from:    "alerts@sbi.co.in",
			date:    now.Add(-time.Hour),
			headers: "Content-Type: text/plain\r\nContent-Transfer-Encoding: quoted-printable\r\n",
			body:    "Rs.450 debited from A/c XX1234 to Zomato via UPI =E2=82=B9",
		},
		{
			from: "ICICIB <alerts@icicibank.com>",
			date: now.AddDate(0, 0, -90),
			headers: "Content-Type: multipart/alternative; boundary=\"b1\"\r\n",
			body: "--b1\r\nContent-Type: text/html\r\n\r\n<p>html</p>\r\n" +
				"--b1\r\nContent-Type: text/plain\r\n\r\nRs 2499.00 spent on Amazon India\r\n--b1--",
		},
	})

	s, err := New(Config{Path: path}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	assert.True(t, s.HasReadPermission(ctx))

	msgs, err := s.ListMessages(ctx, now.AddDate(0, 0, -30), 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "alerts@sbi.co.in", msgs[0].Sender)
	assert.Equal(t, "Rs.450 debited from A/c XX1234 to Zomato via UPI ₹", msgs[0].Body)
	assert.True(t, now.Add(-time.Hour).Equal(msgs[0].ReceivedAt))

	assert.Equal(t, "HDFCBK", msgs[1].Sender)
	assert.Equal(t, "INR 120.00 debited from Card XX5678 at Metro Card Recharge on 25-12-24", msgs[1].Body)

	all, err := s.ListMessages(ctx, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Rs 2499.00 spent on Amazon India", all[2].Body)

	capped, err := s.ListMessages(ctx, time.Time{}, 1)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	assert.Equal(t, "alerts@sbi.co.in", capped[0].Sender)
}

func TestRead_KeysAreStable(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	path := writeMbox(t, []testMessage{
		{from: "a@bank.example", date: now, headers: "Message-Id: <x@bank>\r\n", body: "Rs.1 debited"},
		{from: "b@bank.example", date: now, body: "Rs.2 debited"},
	})

	read := func() []string {
		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()

		items, err := Read(context.Background(), f, nil)
		require.NoError(t, err)
		keys := make([]string, 0, len(items))
		for _, it := range items {
			keys = append(keys, it.Key)
		}
		return keys
	}

	first := read()
	require.Len(t, first, 2)
	assert.Equal(t, "<x@bank>", first[0])
	assert.Len(t, first[1], 64)
	assert.Equal(t, first, read())
}

func TestSource_MissingFile(t *testing.T) {
	s, err := New(Config{Path: filepath.Join(t.TempDir(), "missing.mbox")}, nil)
	require.NoError(t, err)

	assert.False(t, s.HasReadPermission(context.Background()))
	_, err = s.ListMessages(context.Background(), time.Time{}, 0)
	assert.Error(t, err)

	_, err = New(Config{}, nil)
	assert.Error(t, err)
}

func TestTextBody_SkipsNonText(t *testing.T) {
	body, err := textBody("application/pdf", "", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Empty(t, body)
}
