// Package parser assembles expense candidates from raw notifications.
package parser

import (
	"time"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/categorizer"
	"github.com/ArionMiles/spendsense/pkg/classifier"
	"github.com/ArionMiles/spendsense/pkg/extractor"
	"github.com/ArionMiles/spendsense/pkg/rules"
)

// DescriptionPrefix precedes the merchant in generated descriptions.
const DescriptionPrefix = "Auto-detected from SMS: "

// Parser runs classify, extract and categorize in sequence.
type Parser struct {
	classifier  *classifier.Classifier
	extractor   *extractor.Extractor
	categorizer *categorizer.Categorizer
	now         func() time.Time
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock overrides the clock used for createdAt and missing receive times.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) { p.now = now }
}

// New creates a parser over lib. A nil library selects rules.Default().
func New(lib *rules.Library, opts ...Option) *Parser {
	if lib == nil {
		lib = rules.Default()
	}
	p := &Parser{
		classifier:  classifier.New(lib),
		extractor:   extractor.New(lib),
		categorizer: categorizer.New(lib),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse turns one message into a candidate. Id and status are assigned at merge time.
// It returns false when the message is not an expense or has no positive amount.
func (p *Parser) Parse(msg api.RawMessage) (*api.ExpenseCandidate, bool) {
	if !p.classifier.Classify(msg.Body, msg.Sender).Accepted() {
		return nil, false
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = p.now()
	}

	fields := p.extractor.Extract(msg.Body, receivedAt)
	if !fields.HasAmount || !fields.Amount.IsPositive() {
		return nil, false
	}

	cat := p.categorizer.Categorize(fields.Merchant, msg.Body)

	return &api.ExpenseCandidate{
		Amount:          fields.Amount,
		Merchant:        fields.Merchant,
		Category:        cat.Category,
		PaymentMethod:   fields.PaymentMethod,
		TransactionDate: fields.Date,
		Description:     DescriptionPrefix + fields.Merchant,
		Confidence:      cat.Confidence,
		NeedsReview:     cat.Confidence < api.ReviewThreshold,
		OriginalText:    msg.Body,
		SourceSender:    msg.Sender,
		SourceTimestamp: receivedAt,
		CreatedAt:       p.now(),
	}, true
}

// ParseBatch parses messages in order and keeps only the ones that produced a candidate.
func (p *Parser) ParseBatch(msgs []api.RawMessage) []api.ExpenseCandidate {
	out := make([]api.ExpenseCandidate, 0, len(msgs))
	for _, msg := range msgs {
		if c, ok := p.Parse(msg); ok {
			out = append(out, *c)
		}
	}
	return out
}
