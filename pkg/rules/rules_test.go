package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/spendsense/pkg/api"
)

func TestDefault(t *testing.T) {
	lib := Default()

	names := make([]api.Category, 0, len(lib.Categories))
	for _, c := range lib.Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []api.Category{
		api.CategoryFood,
		api.CategoryTransport,
		api.CategoryShopping,
		api.CategoryBills,
		api.CategoryEntertainment,
		api.CategoryHealth,
	}, names)

	assert.Contains(t, lib.TrustedSenders, "HDFC")
	assert.Equal(t, []string{"credited", "received", "refund"}, lib.CreditKeywords)
	assert.Equal(t, api.PaymentCard, lib.DefaultPaymentMethod)
	assert.Same(t, lib, Default())
}

func TestLoad(t *testing.T) {
	lib, err := Load([]byte(`{
		"trustedSenders": [" hdfc ", ""],
		"expenseKeywords": ["Debited", "debited", "  "],
		"categories": [{"name": "Food", "keywords": ["Zomato"]}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"HDFC"}, lib.TrustedSenders)
	assert.Equal(t, []string{"debited"}, lib.ExpenseKeywords)
	assert.Equal(t, []string{"zomato"}, lib.Categories[0].Keywords)
	assert.Equal(t, api.PaymentCard, lib.DefaultPaymentMethod)
	assert.Len(t, lib.AmountPatterns, 3)
	assert.Len(t, lib.MerchantPatterns, 3)
}

func TestLoad_Errors(t *testing.T) {
	tests := map[string]string{
		"malformed":     `{`,
		"no categories": `{"categories": []}`,
		"other":         `{"categories": [{"name": "Other", "keywords": ["x"]}]}`,
		"unknown":       `{"categories": [{"name": "Travel", "keywords": ["x"]}]}`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, defaultRules, 0o600))

	lib, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, lib.Categories, 6)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestMatching(t *testing.T) {
	text := Fold("Paid at CAFE Coffee Day")
	assert.True(t, ContainsAny(text, []string{"upi", "cafe"}))
	assert.False(t, ContainsAny(text, []string{"upi"}))
	assert.Equal(t, 2, CountMatches(text, []string{"cafe", "cafe coffee day", "swiggy"}))
}
