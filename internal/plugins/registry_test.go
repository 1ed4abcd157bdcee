package plugins

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmailapi "google.golang.org/api/gmail/v1"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		StorePath:  filepath.Join(dir, "candidates.json"),
		LedgerPath: filepath.Join(dir, "expenses.csv"),
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestDefault_Names(t *testing.T) {
	r := Default()

	names := make([]string, 0)
	for _, p := range r.List() {
		names = append(names, p.Name())
		assert.NotEmpty(t, p.Description())
	}
	assert.Equal(t, []string{
		"fixture", "gmail", "mbox",
		"json", "memory", "postgres", "sqlite",
		"csv", "none", "rest", "sheets",
	}, names)

	assert.Error(t, r.RegisterSource(&fixtureSource{}))
	assert.Error(t, r.RegisterStore(&memoryStore{}))
	assert.Error(t, r.RegisterLedger(&csvLedger{}))
}

func TestScopes(t *testing.T) {
	r := Default()

	scopes, err := r.Scopes("gmail", "sheets")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{gmailapi.GmailReadonlyScope, sheetsapi.SpreadsheetsScope}, scopes)

	scopes, err = r.Scopes("fixture", "csv")
	require.NoError(t, err)
	assert.Empty(t, scopes)

	_, err = r.Scopes("sms", "csv")
	assert.Error(t, err)
	_, err = r.Scopes("fixture", "paper")
	assert.Error(t, err)
}

func TestCreate_LocalPlugins(t *testing.T) {
	ctx := context.Background()
	r := Default()
	env := Env{Config: testConfig(t)}

	source, err := r.CreateSource(ctx, env)
	require.NoError(t, err)
	assert.True(t, source.HasReadPermission(ctx))

	store, err := r.CreateStore(ctx, env)
	require.NoError(t, err)
	defer store.Close()
	all, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	ledger, err := r.CreateLedger(ctx, env)
	require.NoError(t, err)
	require.NoError(t, ledger.Close())

	env.Config.Ledger = config.LedgerNone
	ledger, err = r.CreateLedger(ctx, env)
	require.NoError(t, err)
	assert.NoError(t, ledger.Submit(ctx, api.ExpenseCandidate{ID: "x"}))
}

func TestCreate_GoogleWithoutClient(t *testing.T) {
	env := Env{Config: testConfig(t)}
	env.Config.Source = config.SourceGmail

	_, err := Default().CreateSource(context.Background(), env)
	assert.ErrorContains(t, err, "no google client configured")
}

func TestCreate_GoogleRequestsScopes(t *testing.T) {
	var requested []string
	env := Env{
		Config: testConfig(t),
		Google: func(_ context.Context, scopes []string) (*http.Client, error) {
			requested = scopes
			return http.DefaultClient, nil
		},
	}
	env.Config.Source = config.SourceGmail

	source, err := Default().CreateSource(context.Background(), env)
	require.NoError(t, err)
	assert.NotNil(t, source)
	assert.Equal(t, []string{gmailapi.GmailReadonlyScope}, requested)
}
