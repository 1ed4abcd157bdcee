package extractor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

var received = time.Date(2024, time.December, 27, 18, 45, 0, 0, time.UTC)

func TestExtract(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name     string
		body     string
		amount   string
		merchant string
		date     time.Time
		method   api.PaymentMethod
	}{
		{
			name:     "upi debit",
			body:     "Rs.450 debited from A/c XX1234 to Zomato via UPI",
			amount:   "450",
			merchant: "Zomato via",
			date:     time.Date(2024, time.December, 27, 0, 0, 0, 0, time.UTC),
			method:   api.PaymentUPI,
		},
		{
			name:     "card debit with date",
			body:     "INR 120.00 debited from Card XX5678 at Metro Card Recharge on 25-12-24",
			amount:   "120",
			merchant: "Metro Card Recharge",
			date:     time.Date(2024, time.December, 25, 0, 0, 0, 0, time.UTC),
			method:   api.PaymentCard,
		},
		{
			name:     "no merchant",
			body:     "Rs 2499.00 spent on Amazon India using Card XX9012",
			amount:   "2499",
			merchant: api.UnknownMerchant,
			date:     time.Date(2024, time.December, 27, 0, 0, 0, 0, time.UTC),
			method:   api.PaymentCard,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := e.Extract(tt.body, received)
			require.True(t, f.HasAmount)
			assert.Equal(t, tt.amount, f.Amount.String())
			assert.Equal(t, tt.merchant, f.Merchant)
			assert.True(t, tt.date.Equal(f.Date), "date %v", f.Date)
			assert.Equal(t, tt.method, f.PaymentMethod)
		})
	}
}

func TestAmount(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{name: "prefixed", body: "Rs.1,23,456.78 debited", want: "123456.78", ok: true},
		{name: "prefix beats suffix", body: "INR 10 then 20 INR", want: "10", ok: true},
		{name: "suffixed", body: "debited 1,250.50 INR", want: "1250.5", ok: true},
		{name: "rupee symbol", body: "₹ 75 paid", want: "75", ok: true},
		{name: "verb adjacent", body: "Amount withdrawn 300 at ATM", want: "300", ok: true},
		{name: "none", body: "Your OTP is 4521", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.Amount(tt.body)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestMerchant(t *testing.T) {
	e := New(nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "at", body: "Rs 500 spent at Cafe Coffee Day on 01-01-25", want: "Cafe Coffee Day"},
		{name: "to with period", body: "Rs 89 paid to Uber India. Ref 1234", want: "Uber India"},
		{name: "merchant keyword", body: "Rs 80 spent, merchant PharmEasy for order", want: "PharmEasy"},
		{name: "upi handle", body: "Rs.75 debited via UPI/swiggy@ybl/Ref 123", want: "swiggy@ybl"},
		{name: "too short", body: "Rs 10 paid to AB.", want: api.UnknownMerchant},
		{name: "none", body: "Rs 10 debited", want: api.UnknownMerchant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Merchant(tt.body))
		})
	}
}

func TestDate(t *testing.T) {
	e := New(nil)
	ist := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2025, time.March, 3, 23, 10, 0, 0, ist)

	tests := []struct {
		name string
		body string
		want time.Time
	}{
		{name: "dashes two digit year", body: "on 25-12-24", want: time.Date(2024, time.December, 25, 0, 0, 0, 0, ist)},
		{name: "slashes four digit year", body: "on 5/1/2025", want: time.Date(2025, time.January, 5, 0, 0, 0, 0, ist)},
		{name: "dots", body: "on 05.01.2025", want: time.Date(2025, time.January, 5, 0, 0, 0, 0, ist)},
		{name: "impossible date", body: "on 31/02/2024", want: time.Date(2025, time.March, 3, 0, 0, 0, 0, ist)},
		{name: "missing", body: "no date here", want: time.Date(2025, time.March, 3, 0, 0, 0, 0, ist)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Date(tt.body, at)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func TestPaymentMethod(t *testing.T) {
	e := New(nil)

	tests := map[string]api.PaymentMethod{
		"paid via GPay":          api.PaymentUPI,
		"UPI payment using Card": api.PaymentUPI,
		"POS purchase":           api.PaymentCard,
		"ATM withdrawal":         api.PaymentCash,
		"NEFT transfer":          api.PaymentNetBanking,
		"paid using net banking": api.PaymentNetBanking,
		"debited for your order": api.PaymentCard,
	}
	for body, want := range tests {
		assert.Equal(t, want, e.PaymentMethod(body), body)
	}
}
