// Package classifier decides whether a notification is an outgoing financial transaction.
package classifier

import (
	"strings"

	"github.com/ArionMiles/spendsense/pkg/rules"
)

// Result is the outcome of classifying one message.
type Result struct {
	// IsTransaction is true when the message looks like a transaction alert with an amount.
	IsTransaction bool
	// IsExpense is true when the message has expense polarity and no credit polarity.
	IsExpense bool
}

// Accepted reports whether the message should continue through the pipeline.
func (r Result) Accepted() bool {
	return r.IsTransaction && r.IsExpense
}

// Classifier applies the sender, keyword and amount rules of a rule library.
type Classifier struct {
	lib *rules.Library
}

// New creates a classifier. A nil library selects rules.Default().
func New(lib *rules.Library) *Classifier {
	if lib == nil {
		lib = rules.Default()
	}
	return &Classifier{lib: lib}
}

// Classify evaluates a message body and its sender. An empty sender is never trusted,
// but the message can still qualify through its transaction keywords; webhook posts and
// mail without a From header arrive that way.
func (c *Classifier) Classify(body, sender string) Result {
	if body == "" {
		return Result{}
	}
	text := rules.Fold(body)
	return Result{
		IsTransaction: c.isTransaction(body, text, sender),
		IsExpense:     c.isExpense(text),
	}
}

func (c *Classifier) isTransaction(body, text, sender string) bool {
	if !c.hasAmount(body) {
		return false
	}
	return c.TrustedSender(sender) || rules.ContainsAny(text, c.lib.TransactionKeywords)
}

// Credit keywords always win so that refunds and incoming transfers never become expenses.
func (c *Classifier) isExpense(text string) bool {
	if rules.ContainsAny(text, c.lib.CreditKeywords) {
		return false
	}
	return rules.ContainsAny(text, c.lib.ExpenseKeywords)
}

func (c *Classifier) hasAmount(body string) bool {
	for _, re := range c.lib.CurrencyPatterns {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}

// TrustedSender reports whether sender contains a known bank or wallet token.
func (c *Classifier) TrustedSender(sender string) bool {
	if sender == "" {
		return false
	}
	upper := strings.ToUpper(sender)
	for _, token := range c.lib.TrustedSenders {
		if strings.Contains(upper, token) {
			return true
		}
	}
	return false
}
