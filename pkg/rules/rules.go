// Package rules holds the fixed rule tables used to detect and classify expense notifications.
//
// Keyword tables live in an embedded JSON document so they can be inspected and overridden
// without code changes. Regex chains are compiled once and shared; they are safe for concurrent use.
package rules

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/ArionMiles/spendsense/pkg/api"
)

//go:embed content/rules.json
var defaultRules []byte

// Amount patterns in priority order: currency-prefixed, currency-suffixed, verb-adjacent.
var (
	amountPrefixed = regexp.MustCompile(`(?i)(?:inr|rs\.?|₹)\s*([\d,]+(?:\.\d{2})?)`)
	amountSuffixed = regexp.MustCompile(`(?i)([\d,]+(?:\.\d{2})?)\s*(?:inr|rs\.?|₹)`)
	amountVerb     = regexp.MustCompile(`(?i)(?:debited|paid|spent|withdrawn)\s+(?:inr|rs\.?|₹)?\s*([\d,]+(?:\.\d{2})?)`)
)

// Merchant patterns in priority order.
var (
	merchantAtTo    = regexp.MustCompile(`(?i)(?:at|to)\s+([A-Z][A-Z\s&.-]+?)(?:\s+on|\s+for|\.|\s+upi|$)`)
	merchantKeyword = regexp.MustCompile(`(?i)merchant\s+([A-Z][A-Z\s&.-]+?)(?:\s+on|\s+for|\.|\s+ref|$)`)
	merchantUPI     = regexp.MustCompile(`(?i)UPI/([A-Za-z0-9@.\s]+?)(?:/|\.|\s+on)`)
)

var datePattern = regexp.MustCompile(`(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})`)

// CategoryRule is the keyword set scored for one category.
type CategoryRule struct {
	Name     api.Category `json:"name"`
	Keywords []string     `json:"keywords"`
}

// MethodRule maps keywords to a payment method.
type MethodRule struct {
	Method   api.PaymentMethod `json:"method"`
	Keywords []string          `json:"keywords"`
}

// document is the on-disk shape of the keyword tables.
type document struct {
	TrustedSenders       []string          `json:"trustedSenders"`
	TransactionKeywords  []string          `json:"transactionKeywords"`
	ExpenseKeywords      []string          `json:"expenseKeywords"`
	CreditKeywords       []string          `json:"creditKeywords"`
	Categories           []CategoryRule    `json:"categories"`
	PaymentMethods       []MethodRule      `json:"paymentMethods"`
	DefaultPaymentMethod api.PaymentMethod `json:"defaultPaymentMethod"`
}

// Library is the complete, immutable rule set.
type Library struct {
	// TrustedSenders are upper-case sender tokens matched as substrings.
	TrustedSenders      []string
	TransactionKeywords []string
	ExpenseKeywords     []string
	CreditKeywords      []string
	// Categories are scored in this order; earlier entries win ties.
	Categories           []CategoryRule
	PaymentMethods       []MethodRule
	DefaultPaymentMethod api.PaymentMethod

	// CurrencyPatterns detect the presence of a currency amount.
	CurrencyPatterns []*regexp.Regexp
	// AmountPatterns are tried in order; the first capture group is the amount.
	AmountPatterns []*regexp.Regexp
	// MerchantPatterns are tried in order; the first capture group is the merchant.
	MerchantPatterns []*regexp.Regexp
	DatePattern      *regexp.Regexp
}

var loadDefault = sync.OnceValues(func() (*Library, error) {
	return Load(defaultRules)
})

// Default returns the built-in library. It panics if the embedded tables are malformed.
func Default() *Library {
	lib, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("rules: embedded rule tables: %v", err))
	}
	return lib
}

// LoadFile reads keyword tables from a JSON file.
func LoadFile(path string) (*Library, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return Load(data)
}

// Load parses keyword tables and attaches the compiled pattern chains.
func Load(data []byte) (*Library, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("categories: at least one category is required")
	}
	categories := make([]CategoryRule, 0, len(doc.Categories))
	for i, c := range doc.Categories {
		if !c.Name.Valid() || c.Name == api.CategoryOther {
			return nil, fmt.Errorf("categories[%d]: invalid category %q", i, c.Name)
		}
		categories = append(categories, CategoryRule{Name: c.Name, Keywords: normalize(c.Keywords)})
	}

	methods := make([]MethodRule, 0, len(doc.PaymentMethods))
	for _, m := range doc.PaymentMethods {
		methods = append(methods, MethodRule{Method: m.Method, Keywords: normalize(m.Keywords)})
	}
	if doc.DefaultPaymentMethod == "" {
		doc.DefaultPaymentMethod = api.PaymentCard
	}

	senders := make([]string, 0, len(doc.TrustedSenders))
	for _, s := range doc.TrustedSenders {
		if s = strings.TrimSpace(s); s != "" {
			senders = append(senders, strings.ToUpper(s))
		}
	}

	return &Library{
		TrustedSenders:       senders,
		TransactionKeywords:  normalize(doc.TransactionKeywords),
		ExpenseKeywords:      normalize(doc.ExpenseKeywords),
		CreditKeywords:       normalize(doc.CreditKeywords),
		Categories:           categories,
		PaymentMethods:       methods,
		DefaultPaymentMethod: doc.DefaultPaymentMethod,
		CurrencyPatterns:     []*regexp.Regexp{amountPrefixed, amountSuffixed},
		AmountPatterns:       []*regexp.Regexp{amountPrefixed, amountSuffixed, amountVerb},
		MerchantPatterns:     []*regexp.Regexp{merchantAtTo, merchantKeyword, merchantUPI},
		DatePattern:          datePattern,
	}, nil
}

// normalize folds keywords and drops blanks and repeats, keeping first-seen order.
func normalize(keywords []string) []string {
	seen := make(map[string]struct{}, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = Fold(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Fold returns the case-folded form of s used for all keyword matching.
func Fold(s string) string {
	// A Caser is stateful; create one per call so Fold is safe for concurrent use.
	return cases.Fold().String(s)
}

// ContainsAny reports whether folded text contains any of the keywords.
func ContainsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// CountMatches returns how many keywords occur in folded text.
func CountMatches(text string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}
