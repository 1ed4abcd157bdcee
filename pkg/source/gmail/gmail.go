// Package gmail implements a MessageSource that reads bank alerts from a Gmail inbox.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/source/poll"
)

// DefaultQuery restricts listing to the inbox.
const DefaultQuery = "in:inbox"

// pageSize is the Gmail API maximum for messages.list.
const pageSize = 500

// Config holds configuration for the Gmail source.
type Config struct {
	// Query is a Gmail search expression; the time bound is appended. Defaults to DefaultQuery.
	Query string
	// PollInterval between live polls. Defaults to 30 seconds.
	PollInterval time.Duration
	// RetryDelay is the wait before retrying a rate-limited call. Defaults to 10 seconds.
	RetryDelay time.Duration
	// Endpoint overrides the API base URL.
	Endpoint string
}

// Source reads messages from Gmail.
type Source struct {
	client *gmail.Service
	cfg    Config
	logger *slog.Logger
}

// New creates a Gmail source using an authorized HTTP client.
func New(httpClient *http.Client, cfg Config, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Query == "" {
		cfg.Query = DefaultQuery
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := gmail.NewService(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Source{client: client, cfg: cfg, logger: logger}, nil
}

// HasReadPermission reports whether the authorized account's mailbox can be read.
func (s *Source) HasReadPermission(ctx context.Context) bool {
	if _, err := s.client.Users.GetProfile("me").Context(ctx).Do(); err != nil {
		s.logger.Warn("gmail profile check failed", "error", err)
		return false
	}
	return true
}

// ListMessages returns up to maxCount messages received at or after since, newest first.
func (s *Source) ListMessages(ctx context.Context, since time.Time, maxCount int) ([]api.RawMessage, error) {
	items, err := s.list(ctx, since, maxCount)
	if err != nil {
		return nil, err
	}
	msgs := make([]api.RawMessage, 0, len(items))
	for _, it := range items {
		msgs = append(msgs, it.Message)
	}
	return msgs, nil
}

// Subscribe polls the inbox and delivers each new message once.
func (s *Source) Subscribe(ctx context.Context, fn func(api.RawMessage)) (api.Subscription, error) {
	fetch := func(ctx context.Context, since time.Time) ([]poll.Item, error) {
		return s.list(ctx, since, pageSize)
	}
	return poll.Subscribe(ctx, poll.Config{Interval: s.cfg.PollInterval}, fetch, fn,
		s.logger.With("component", "gmail_poller")), nil
}

func (s *Source) list(ctx context.Context, since time.Time, maxCount int) ([]poll.Item, error) {
	query := BuildQuery(s.cfg.Query, since)
	logger := s.logger.With("query", query)

	var ids []string
	pageToken := ""
	for {
		call := s.client.Users.Messages.List("me").Q(query).MaxResults(pageSize).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		err := s.withRetry(ctx, func() error {
			var err error
			resp, err = call.Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing messages: %w", err)
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || (maxCount > 0 && len(ids) >= maxCount) {
			break
		}
		pageToken = resp.NextPageToken
	}
	if maxCount > 0 && len(ids) > maxCount {
		ids = ids[:maxCount]
	}

	logger.Debug("found messages", "count", len(ids))

	items := make([]poll.Item, 0, len(ids))
	for _, id := range ids {
		var msg *gmail.Message
		err := s.withRetry(ctx, func() error {
			var err error
			msg, err = s.client.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
			return err
		})
		if err != nil {
			logger.Error("failed to get message", "message_id", id, "error", err)
			continue
		}

		raw := ToRawMessage(msg)
		if raw.Body == "" {
			logger.Warn("empty message body", "message_id", id)
			continue
		}
		// after: has second granularity.
		if raw.ReceivedAt.Before(since) {
			continue
		}
		items = append(items, poll.Item{Key: id, Message: raw})
	}
	return items, nil
}

func (s *Source) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				s.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(s.cfg.RetryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// BuildQuery bounds query to messages after since.
func BuildQuery(query string, since time.Time) string {
	if since.IsZero() {
		return query
	}
	bound := fmt.Sprintf("after:%d", since.Unix())
	if strings.TrimSpace(query) == "" {
		return bound
	}
	return query + " " + bound
}

// ToRawMessage converts a full Gmail message.
func ToRawMessage(msg *gmail.Message) api.RawMessage {
	raw := api.RawMessage{
		ReceivedAt: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "From") {
				raw.Sender = senderName(h.Value)
				break
			}
		}
	}

	raw.Body = extractBody(msg)
	return raw
}

// senderName keeps the display name, which is where banks put their short code.
func senderName(from string) string {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	if addr.Name != "" {
		return addr.Name + " <" + addr.Address + ">"
	}
	return addr.Address
}

var (
	tagPattern        = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

func extractBody(msg *gmail.Message) string {
	if msg.Payload != nil {
		if body := findPart(msg.Payload, "text/plain"); body != "" {
			return collapse(body)
		}
		if body := findPart(msg.Payload, "text/html"); body != "" {
			return collapse(html.UnescapeString(tagPattern.ReplaceAllString(body, " ")))
		}
	}
	return collapse(html.UnescapeString(msg.Snippet))
}

// findPart walks the MIME tree depth first and decodes the first part of the given type.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		if data, err := decode(part.Body.Data); err == nil {
			return data
		}
	}
	for _, p := range part.Parts {
		if body := findPart(p, mimeType); body != "" {
			return body
		}
	}
	return ""
}

func decode(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		b, err = base64.RawURLEncoding.DecodeString(data)
	}
	return string(b), err
}

func collapse(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
