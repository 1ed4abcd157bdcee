package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, SourceFixture, cfg.Source)
	assert.Equal(t, StoreJSON, cfg.Store)
	assert.Equal(t, "data/candidates.json", cfg.StorePath)
	assert.Equal(t, LedgerCSV, cfg.Ledger)
	assert.Equal(t, "data/expenses.csv", cfg.LedgerPath)
	assert.Equal(t, 30, cfg.BackfillDays)
	assert.Equal(t, 500, cfg.BackfillMax)
	assert.Equal(t, "@every 6h", cfg.BackfillSchedule)
	assert.Equal(t, 30, cfg.PollInterval)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.False(t, cfg.NeedsGoogle())
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLocation(t *testing.T) {
	c := Config{TimeZone: "Asia/Kolkata"}
	assert.Equal(t, "Asia/Kolkata", c.Location().String())

	c.TimeZone = "Mars/Olympus"
	assert.Equal(t, time.UTC, c.Location())
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"SPENDSENSE_STORE": "sqlite",
		"SPENDSENSE_BACKFILL_DAYS": 7,
		"GSHEETS_ID": "from-file"
	}`), 0o600))

	t.Setenv("SPENDSENSE_BACKFILL_DAYS", "14")
	t.Setenv("SPENDSENSE_SOURCE", "gmail")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreSQLite, cfg.Store)
	assert.Equal(t, "data/spendsense.db", cfg.StorePath)
	assert.Equal(t, 14, cfg.BackfillDays)
	assert.Equal(t, SourceGmail, cfg.Source)
	assert.Equal(t, "from-file", cfg.Sheets.ID)
	assert.Equal(t, "db", cfg.Postgres.Host)
	assert.Equal(t, 6543, cfg.Postgres.Port)
	assert.True(t, cfg.NeedsGoogle())
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SPENDSENSE_LEDGER=none\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("SPENDSENSE_LEDGER") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, LedgerNone, cfg.Ledger)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "schedule off", mutate: func(c *Config) { c.BackfillSchedule = "off" }},
		{name: "unknown source", mutate: func(c *Config) { c.Source = "sms" }, wantErr: `unknown source "sms"`},
		{name: "mbox needs path", mutate: func(c *Config) { c.Source = SourceMbox }, wantErr: "SPENDSENSE_MBOX_PATH"},
		{name: "postgres needs host", mutate: func(c *Config) { c.Store = StorePostgres }, wantErr: "POSTGRES_HOST"},
		{name: "rest needs url", mutate: func(c *Config) { c.Ledger = LedgerREST }, wantErr: "SPENDSENSE_REST_URL"},
		{name: "bad schedule", mutate: func(c *Config) { c.BackfillSchedule = "every day" }, wantErr: "SPENDSENSE_BACKFILL_SCHEDULE"},
		{name: "negative window", mutate: func(c *Config) { c.BackfillDays = -1 }, wantErr: "SPENDSENSE_BACKFILL_DAYS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
