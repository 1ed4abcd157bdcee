package categorizer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ArionMiles/spendsense/pkg/api"
)

func TestCategorize(t *testing.T) {
	c := New(nil)

	tests := []struct {
		name       string
		merchant   string
		message    string
		category   api.Category
		confidence float64
	}{
		{
			name:       "single keyword",
			merchant:   "Zomato",
			message:    "Rs.450 debited to Zomato via UPI",
			category:   api.CategoryFood,
			confidence: ConfidenceOne,
		},
		{
			name:       "tie goes to earlier category",
			merchant:   "Swiggy",
			message:    "Rs.100 paid to Swiggy for Uber",
			category:   api.CategoryFood,
			confidence: ConfidenceOne,
		},
		{
			name:       "metro recharge is transport",
			merchant:   "Metro Card Recharge",
			message:    "INR 120.00 debited from Card XX5678",
			category:   api.CategoryTransport,
			confidence: ConfidenceOne,
		},
		{
			name:       "two keywords",
			merchant:   "Apollo Pharmacy",
			message:    "Rs 300 spent",
			category:   api.CategoryHealth,
			confidence: ConfidenceTwo,
		},
		{
			name:       "strong match",
			merchant:   "PVR Cinema",
			message:    "Rs 600 spent on movie ticket",
			category:   api.CategoryEntertainment,
			confidence: ConfidenceStrong,
		},
		{
			name:       "no match",
			merchant:   api.UnknownMerchant,
			message:    "Rs 10 debited",
			category:   api.CategoryOther,
			confidence: ConfidenceNone,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Categorize(tt.merchant, tt.message)
			assert.Equal(t, tt.category, got.Category)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
		})
	}
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 0.30, Confidence(0), 1e-9)
	assert.InDelta(t, 0.30, Confidence(-1), 1e-9)
	assert.InDelta(t, 0.60, Confidence(1), 1e-9)
	assert.InDelta(t, 0.80, Confidence(2), 1e-9)
	assert.InDelta(t, 0.95, Confidence(3), 1e-9)
	assert.InDelta(t, 0.95, Confidence(12), 1e-9)
}

func TestCategorize_ConfidenceUsesHighestCount(t *testing.T) {
	c := New(nil)

	// Bills scores 2 (recharge, mobile) and Transport 1 (metro).
	got := c.Categorize("Metro", "mobile recharge")
	assert.Equal(t, api.CategoryBills, got.Category)
	assert.Equal(t, 2, got.Matches)
	assert.InDelta(t, ConfidenceTwo, got.Confidence, 1e-9)
}
