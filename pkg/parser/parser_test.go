package parser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/categorizer"
)

var (
	now      = time.Date(2024, time.December, 27, 9, 0, 0, 0, time.UTC)
	received = time.Date(2024, time.December, 26, 20, 15, 0, 0, time.UTC)
)

func newParser() *Parser {
	return New(nil, WithClock(func() time.Time { return now }))
}

func TestParse(t *testing.T) {
	p := newParser()

	tests := []struct {
		name        string
		body        string
		amount      string
		merchant    string
		category    api.Category
		method      api.PaymentMethod
		confidence  float64
		needsReview bool
	}{
		{
			name:        "upi food",
			body:        "Rs.450 debited from A/c XX1234 to Zomato via UPI",
			amount:      "450",
			merchant:    "Zomato via",
			category:    api.CategoryFood,
			method:      api.PaymentUPI,
			confidence:  categorizer.ConfidenceOne,
			needsReview: true,
		},
		{
			name:        "card transport",
			body:        "INR 120.00 debited from Card XX5678 at Metro Card Recharge",
			amount:      "120",
			merchant:    "Metro Card Recharge",
			category:    api.CategoryTransport,
			method:      api.PaymentCard,
			confidence:  categorizer.ConfidenceOne,
			needsReview: true,
		},
		{
			name:        "card shopping",
			body:        "Rs 2499.00 spent on Amazon India using Card XX9012",
			amount:      "2499",
			merchant:    api.UnknownMerchant,
			category:    api.CategoryShopping,
			method:      api.PaymentCard,
			confidence:  categorizer.ConfidenceOne,
			needsReview: true,
		},
		{
			name:        "two food keywords",
			body:        "Rs.320 debited from A/c XX1234 at Swiggy food court on 26-12-24",
			amount:      "320",
			merchant:    "Swiggy food court",
			category:    api.CategoryFood,
			method:      api.PaymentCard,
			confidence:  categorizer.ConfidenceTwo,
			needsReview: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := p.Parse(api.RawMessage{Body: tt.body, Sender: "HDFCBK", ReceivedAt: received})
			require.True(t, ok)

			assert.Equal(t, tt.amount, c.Amount.String())
			assert.True(t, c.Amount.IsPositive())
			assert.Contains(t, c.Merchant, tt.merchant)
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.method, c.PaymentMethod)
			assert.Equal(t, tt.confidence, c.Confidence)
			assert.Equal(t, tt.needsReview, c.NeedsReview)
			assert.Equal(t, DescriptionPrefix+c.Merchant, c.Description)

			assert.Equal(t, tt.body, c.OriginalText)
			assert.Equal(t, "HDFCBK", c.SourceSender)
			assert.True(t, received.Equal(c.SourceTimestamp))
			assert.True(t, now.Equal(c.CreatedAt))
			assert.Empty(t, c.ID)
			assert.Empty(t, c.Status)
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	p := newParser()

	tests := map[string]string{
		"credit":    "Rs.500 credited to A/c XX1234",
		"otp":       "Your OTP is 4521",
		"zero":      "Rs.0 debited from A/c XX1234",
		"no amount": "Payment failed for your order",
		"empty":     "",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			c, ok := p.Parse(api.RawMessage{Body: body, ReceivedAt: received})
			assert.False(t, ok)
			assert.Nil(t, c)
		})
	}
}

func TestParse_LowConfidenceNeedsReview(t *testing.T) {
	c, ok := newParser().Parse(api.RawMessage{Body: "Rs 10 debited from A/c XX1234", ReceivedAt: received})
	require.True(t, ok)

	assert.Equal(t, api.CategoryOther, c.Category)
	assert.InDelta(t, categorizer.ConfidenceNone, c.Confidence, 1e-9)
	assert.True(t, c.NeedsReview)
}

func TestParse_MissingReceiveTimeUsesClock(t *testing.T) {
	c, ok := newParser().Parse(api.RawMessage{Body: "Rs 10 debited from A/c XX1234"})
	require.True(t, ok)

	assert.True(t, now.Equal(c.SourceTimestamp))
	assert.True(t, time.Date(2024, time.December, 27, 0, 0, 0, 0, time.UTC).Equal(c.TransactionDate))
}

func TestParseBatch(t *testing.T) {
	got := newParser().ParseBatch([]api.RawMessage{
		{Body: "Rs.450 debited from A/c XX1234 to Zomato via UPI", ReceivedAt: received},
		{Body: "Your OTP is 4521", ReceivedAt: received},
		{Body: "Rs 2499.00 spent on Amazon India using Card XX9012", ReceivedAt: received},
	})

	require.Len(t, got, 2)
	assert.Equal(t, api.CategoryFood, got[0].Category)
	assert.Equal(t, api.CategoryShopping, got[1].Category)

	for _, c := range got {
		assert.Contains(t, []float64{0.30, 0.60, 0.80, 0.95}, c.Confidence)
	}
}
