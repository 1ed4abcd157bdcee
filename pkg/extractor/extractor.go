// Package extractor pulls amount, merchant, date and payment method out of notification text.
package extractor

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/rules"
)

// Merchant names outside (minMerchantLen, maxMerchantLen) are treated as non-matches.
const (
	minMerchantLen = 2
	maxMerchantLen = 50
)

// Fields holds everything extracted from one message.
type Fields struct {
	Amount decimal.Decimal
	// HasAmount is false when no amount pattern produced a number.
	HasAmount     bool
	Merchant      string
	Date          time.Time
	PaymentMethod api.PaymentMethod
}

// Extractor runs the ordered pattern chains of a rule library.
type Extractor struct {
	lib *rules.Library
}

// New creates an extractor. A nil library selects rules.Default().
func New(lib *rules.Library) *Extractor {
	if lib == nil {
		lib = rules.Default()
	}
	return &Extractor{lib: lib}
}

// Extract pulls all fields from body. receivedAt is the date fallback.
func (e *Extractor) Extract(body string, receivedAt time.Time) Fields {
	amount, ok := e.Amount(body)
	return Fields{
		Amount:        amount,
		HasAmount:     ok,
		Merchant:      e.Merchant(body),
		Date:          e.Date(body, receivedAt),
		PaymentMethod: e.PaymentMethod(body),
	}
}

// Amount returns the first amount matched by the priority-ordered amount patterns.
// Thousands separators are stripped before parsing.
func (e *Extractor) Amount(body string) (decimal.Decimal, bool) {
	for _, re := range e.lib.AmountPatterns {
		m := re.FindStringSubmatch(body)
		if len(m) < 2 {
			continue
		}
		amount, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
		if err != nil {
			continue
		}
		return amount, true
	}
	return decimal.Zero, false
}

// Merchant returns the first acceptable merchant match, or api.UnknownMerchant.
func (e *Extractor) Merchant(body string) string {
	for _, re := range e.lib.MerchantPatterns {
		m := re.FindStringSubmatch(body)
		if len(m) < 2 {
			continue
		}
		name := strings.TrimSpace(m[1])
		if n := utf8.RuneCountInString(name); n > minMerchantLen && n < maxMerchantLen {
			return name
		}
	}
	return api.UnknownMerchant
}

// Date returns the DD-MM-YY[YY] date found in body, or the day of receivedAt.
// Two-digit years are read as 2000+YY. Impossible dates fall back to receivedAt.
func (e *Extractor) Date(body string, receivedAt time.Time) time.Time {
	loc := receivedAt.Location()
	if m := e.lib.DatePattern.FindStringSubmatch(body); len(m) == 4 {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		if validDate(year, month, day) {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
		}
	}
	y, mo, d := receivedAt.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, loc)
}

func validDate(year, month, day int) bool {
	if month < 1 || month > 12 || day < 1 {
		return false
	}
	// Day 0 of the next month is the last day of this one.
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return day <= last
}

// PaymentMethod picks the first method whose keywords occur in body.
func (e *Extractor) PaymentMethod(body string) api.PaymentMethod {
	text := rules.Fold(body)
	for _, m := range e.lib.PaymentMethods {
		if rules.ContainsAny(text, m.Keywords) {
			return m.Method
		}
	}
	return e.lib.DefaultPaymentMethod
}
