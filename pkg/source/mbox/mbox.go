// Package mbox implements a MessageSource over an mbox archive, such as an exported
// SMS backup or a mail spool that a bank alert forwarder appends to.
package mbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-mbox"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/source/poll"
)

// Config holds configuration for the mbox source.
type Config struct {
	// Path to the mbox file.
	Path string
	// PollInterval between re-reads for live delivery. Defaults to 30 seconds.
	PollInterval time.Duration
}

// Source reads messages from an mbox file.
type Source struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an mbox source.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, errors.New("mbox source: path is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Source{cfg: cfg, logger: logger}, nil
}

// HasReadPermission reports whether the archive can be opened.
func (s *Source) HasReadPermission(_ context.Context) bool {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		s.logger.Warn("cannot open mbox", "path", s.cfg.Path, "error", err)
		return false
	}
	f.Close()
	return true
}

// ListMessages returns up to maxCount messages received at or after since, newest first.
func (s *Source) ListMessages(ctx context.Context, since time.Time, maxCount int) ([]api.RawMessage, error) {
	items, err := s.list(ctx, since)
	if err != nil {
		return nil, err
	}
	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}

	msgs := make([]api.RawMessage, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.Message)
	}
	return msgs, nil
}

// Subscribe re-reads the archive on an interval and delivers each new message once.
func (s *Source) Subscribe(ctx context.Context, fn func(api.RawMessage)) (api.Subscription, error) {
	return poll.Subscribe(ctx, poll.Config{Interval: s.cfg.PollInterval}, s.list, fn,
		s.logger.With("component", "mbox_poller")), nil
}

func (s *Source) list(ctx context.Context, since time.Time) ([]poll.Item, error) {
	f, err := os.Open(s.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening mbox: %w", err)
	}
	defer f.Close()

	items, err := Read(ctx, f, s.logger)
	if err != nil {
		return nil, err
	}

	out := items[:0]
	for _, it := range items {
		if !it.Message.ReceivedAt.Before(since) {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Message.ReceivedAt.After(out[j].Message.ReceivedAt)
	})
	return out, nil
}

// Read parses every message in an mbox stream. Messages that fail to parse are logged and skipped.
func Read(ctx context.Context, r io.Reader, logger *slog.Logger) ([]poll.Item, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mr := mbox.NewReader(r)
	var items []poll.Item
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading mbox message %d: %w", i, err)
		}

		it, err := parseMessage(raw)
		if err != nil {
			logger.Warn("skipping unparsable message", "index", i, "error", err)
			continue
		}
		if it.Message.Body == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func parseMessage(r io.Reader) (poll.Item, error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return poll.Item{}, fmt.Errorf("parsing headers: %w", err)
	}

	received, err := msg.Header.Date()
	if err != nil {
		return poll.Item{}, fmt.Errorf("parsing date: %w", err)
	}

	body, err := textBody(msg.Header.Get("Content-Type"), msg.Header.Get("Content-Transfer-Encoding"), msg.Body)
	if err != nil {
		return poll.Item{}, fmt.Errorf("reading body: %w", err)
	}

	raw := api.RawMessage{
		Body:       strings.Join(strings.Fields(body), " "),
		Sender:     sender(msg.Header.Get("From")),
		ReceivedAt: received,
	}

	key := strings.TrimSpace(msg.Header.Get("Message-Id"))
	if key == "" {
		sum := sha256.Sum256([]byte(raw.Sender + "\x00" + received.UTC().Format(time.RFC3339) + "\x00" + raw.Body))
		key = hex.EncodeToString(sum[:])
	}
	return poll.Item{Key: key, Message: raw}, nil
}

func sender(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name
	}
	return addr.Address
}

// textBody returns the first text/plain content of a possibly multipart body.
func textBody(contentType, encoding string, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			text, err := textBody(part.Header.Get("Content-Type"), part.Header.Get("Content-Transfer-Encoding"), part)
			if err != nil {
				return "", err
			}
			if text != "" {
				return text, nil
			}
		}
	}

	if mediaType != "text/plain" {
		return "", nil
	}
	if strings.EqualFold(encoding, "quoted-printable") {
		body = quotedprintable.NewReader(body)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
