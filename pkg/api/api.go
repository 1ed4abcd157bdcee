// Package api defines the core data structures and collaborator interfaces for spendsense.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Common collaborator errors.
var (
	// ErrNotFound is returned by stores when a candidate id does not exist.
	ErrNotFound = errors.New("candidate not found")
	// ErrPermissionDenied is returned by message sources that cannot read the inbox.
	ErrPermissionDenied = errors.New("message read permission denied")
)

// EventCandidateDetected is emitted when a live message produced a new candidate.
const EventCandidateDetected = "candidateDetected"

// UnknownMerchant is used when no merchant pattern matches.
const UnknownMerchant = "Unknown Merchant"

// ReviewThreshold is the confidence below which a candidate needs manual review.
const ReviewThreshold = 0.7

// RawMessage is an inbound text notification as delivered by a message source.
type RawMessage struct {
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	ReceivedAt time.Time `json:"received_at"`
}

// Category is the expense category label.
type Category string

// Categories in declaration order. Order matters for tie-breaking.
const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryBills         Category = "Bills"
	CategoryEntertainment Category = "Entertainment"
	CategoryHealth        Category = "Health"
	CategoryOther         Category = "Other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryTransport, CategoryShopping, CategoryBills,
		CategoryEntertainment, CategoryHealth, CategoryOther:
		return true
	}
	return false
}

// PaymentMethod is how the expense was paid.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentCash       PaymentMethod = "Cash"
	PaymentCard       PaymentMethod = "Card"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentNetBanking PaymentMethod = "Net Banking"
)

// Status is the review state of a candidate.
type Status string

// Candidate lifecycle states. Confirmed and rejected are terminal.
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusRejected
}

// ExpenseCandidate is an expense inferred from a message, awaiting user review.
type ExpenseCandidate struct {
	ID              string          `json:"id"`
	Amount          decimal.Decimal `json:"amount"`
	Merchant        string          `json:"merchant"`
	Category        Category        `json:"category"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	TransactionDate time.Time       `json:"transaction_date"`
	Description     string          `json:"description"`
	// Confidence is the category-assignment confidence, not a truth probability.
	Confidence  float64 `json:"confidence"`
	NeedsReview bool    `json:"needs_review"`

	// Provenance, kept for audit and duplicate comparison.
	OriginalText    string    `json:"original_text"`
	SourceSender    string    `json:"source_sender"`
	SourceTimestamp time.Time `json:"source_timestamp"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageSource reads raw notifications from an inbox.
type MessageSource interface {
	// HasReadPermission reports whether the inbox may be read. Callers skip reads when false.
	HasReadPermission(ctx context.Context) bool
	// ListMessages returns up to maxCount messages received at or after since.
	ListMessages(ctx context.Context, since time.Time, maxCount int) ([]RawMessage, error)
	// Subscribe delivers live messages to fn until the returned subscription is closed.
	Subscribe(ctx context.Context, fn func(RawMessage)) (Subscription, error)
}

// Subscription is a live listener owned by the caller. Closing it stops delivery.
type Subscription interface {
	Close() error
}

// CandidateStore is a document collection of candidates keyed by id.
type CandidateStore interface {
	LoadAll(ctx context.Context) ([]ExpenseCandidate, error)
	Get(ctx context.Context, id string) (ExpenseCandidate, error)
	// Upsert inserts or replaces candidates by id without touching other records.
	Upsert(ctx context.Context, candidates []ExpenseCandidate) error
	// UpdateStatus sets the status to `to` only when the stored status equals `from`.
	// It reports whether a record changed; ErrNotFound is returned for unknown ids.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// Delete removes a candidate. It is an administrative operation.
	Delete(ctx context.Context, id string) error
	LastScan(ctx context.Context) (time.Time, error)
	SetLastScan(ctx context.Context, t time.Time) error
	Close() error
}

// Notifier publishes fire-and-forget events.
type Notifier interface {
	Emit(event string, payload ExpenseCandidate)
}

// Ledger receives confirmed expenses. It is called by the review flow, never by the pipeline.
type Ledger interface {
	Submit(ctx context.Context, candidate ExpenseCandidate) error
	Close() error
}
