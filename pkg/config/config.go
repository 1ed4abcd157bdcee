// Package config loads spendsense settings from an optional JSON file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// ClientSecretFile is the default path to the Google OAuth credentials JSON file.
const ClientSecretFile = "data/client_secret.json"

// Plugin names.
const (
	SourceFixture = "fixture"
	SourceGmail   = "gmail"
	SourceMbox    = "mbox"

	StoreMemory   = "memory"
	StoreJSON     = "json"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"

	LedgerNone   = "none"
	LedgerCSV    = "csv"
	LedgerSheets = "sheets"
	LedgerREST   = "rest"
)

// Config holds the application configuration.
type Config struct {
	// Source selects the message source. Environment variable: SPENDSENSE_SOURCE
	Source string `koanf:"SPENDSENSE_SOURCE"`
	// Store selects the candidate store. Environment variable: SPENDSENSE_STORE
	Store     string `koanf:"SPENDSENSE_STORE"`
	StorePath string `koanf:"SPENDSENSE_STORE_PATH"`
	// Ledger receives confirmed expenses. Environment variable: SPENDSENSE_LEDGER
	Ledger     string `koanf:"SPENDSENSE_LEDGER"`
	LedgerPath string `koanf:"SPENDSENSE_LEDGER_PATH"`

	// BackfillDays is the trailing window scanned by each backfill.
	BackfillDays int `koanf:"SPENDSENSE_BACKFILL_DAYS"`
	// BackfillMax caps the messages read by one backfill.
	BackfillMax int `koanf:"SPENDSENSE_BACKFILL_MAX"`
	// BackfillSchedule is a cron spec for periodic backfills; "off" disables them.
	BackfillSchedule string `koanf:"SPENDSENSE_BACKFILL_SCHEDULE"`
	// TimeZone is the IANA zone the backfill schedule runs in. Defaults to Local.
	TimeZone string `koanf:"SPENDSENSE_TIMEZONE"`
	// PollInterval is in seconds.
	PollInterval int `koanf:"SPENDSENSE_POLL_INTERVAL"`

	// HTTPAddr is the review API listen address; empty disables the API.
	HTTPAddr string `koanf:"SPENDSENSE_HTTP_ADDR"`
	// APISecret, when set, requires an HS256 bearer token on the review API.
	APISecret string `koanf:"SPENDSENSE_API_SECRET"`

	RulesFile   string `koanf:"SPENDSENSE_RULES_FILE"`
	FixtureFile string `koanf:"SPENDSENSE_FIXTURE_FILE"`
	GmailQuery  string `koanf:"SPENDSENSE_GMAIL_QUERY"`
	MboxPath    string `koanf:"SPENDSENSE_MBOX_PATH"`
	RESTURL     string `koanf:"SPENDSENSE_REST_URL"`
	RESTToken   string `koanf:"SPENDSENSE_REST_TOKEN"`

	SecretsFile string `koanf:"SPENDSENSE_CLIENT_SECRET"`
	TokenFile   string `koanf:"SPENDSENSE_TOKEN_FILE"`

	Sheets   SheetsConfig   `koanf:",squash"`
	Postgres PostgresConfig `koanf:",squash"`
}

// SheetsConfig holds Google Sheets ledger settings.
type SheetsConfig struct {
	// Title is used when creating a new spreadsheet.
	Title string `koanf:"GSHEETS_TITLE"`
	// ID of an existing spreadsheet.
	ID string `koanf:"GSHEETS_ID"`
	// Name of the tab within the spreadsheet.
	Name string `koanf:"GSHEETS_NAME"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	// DSN, when set, overrides the individual fields.
	DSN      string `koanf:"POSTGRES_DSN"`
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// Load reads path (if non-empty), then .env, then the process environment. Later sources win.
func Load(path string) (Config, error) {
	// A missing .env is normal.
	_ = godotenv.Load()

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), kjson.Parser()); err != nil {
			return Config{}, fmt.Errorf("loading %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	setDefault(&c.Source, SourceFixture)
	setDefault(&c.Store, StoreJSON)
	setDefault(&c.Ledger, LedgerCSV)
	setDefault(&c.BackfillSchedule, "@every 6h")
	setDefault(&c.TimeZone, "Local")
	setDefault(&c.SecretsFile, ClientSecretFile)
	setDefault(&c.TokenFile, "data/token.json")
	setDefault(&c.Sheets.Title, "spendsense expenses")
	setDefault(&c.Sheets.Name, "Sheet1")
	setDefault(&c.Postgres.SSLMode, "disable")

	switch c.Store {
	case StoreJSON:
		setDefault(&c.StorePath, "data/candidates.json")
	case StoreSQLite:
		setDefault(&c.StorePath, "data/spendsense.db")
	}
	if c.Ledger == LedgerCSV {
		setDefault(&c.LedgerPath, "data/expenses.csv")
	}

	if c.BackfillDays == 0 {
		c.BackfillDays = 30
	}
	if c.BackfillMax == 0 {
		c.BackfillMax = 500
	}
	if c.PollInterval == 0 {
		c.PollInterval = 30
	}
	if c.Postgres.Port == 0 {
		c.Postgres.Port = 5432
	}
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourceFixture, SourceGmail:
	case SourceMbox:
		if c.MboxPath == "" {
			errs = append(errs, errors.New("SPENDSENSE_MBOX_PATH is required for the mbox source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}

	switch c.Store {
	case StoreMemory, StoreJSON, StoreSQLite:
	case StorePostgres:
		if c.Postgres.Host == "" && c.Postgres.DSN == "" {
			errs = append(errs, errors.New("POSTGRES_HOST or POSTGRES_DSN is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	switch c.Ledger {
	case LedgerNone, LedgerCSV, LedgerSheets:
	case LedgerREST:
		if c.RESTURL == "" {
			errs = append(errs, errors.New("SPENDSENSE_REST_URL is required for the rest ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ledger %q", c.Ledger))
	}

	if c.BackfillDays < 0 {
		errs = append(errs, fmt.Errorf("SPENDSENSE_BACKFILL_DAYS must not be negative, got %d", c.BackfillDays))
	}
	if c.BackfillMax < 0 {
		errs = append(errs, fmt.Errorf("SPENDSENSE_BACKFILL_MAX must not be negative, got %d", c.BackfillMax))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("SPENDSENSE_POLL_INTERVAL must not be negative, got %d", c.PollInterval))
	}
	if c.BackfillSchedule != "off" {
		if _, err := cron.ParseStandard(c.BackfillSchedule); err != nil {
			errs = append(errs, fmt.Errorf("SPENDSENSE_BACKFILL_SCHEDULE: %w", err))
		}
	}

	return errors.Join(errs...)
}

// PollEvery returns PollInterval as a duration.
func (c Config) PollEvery() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// Location returns the schedule time zone, falling back to UTC when it is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NeedsGoogle reports whether the configuration uses a Google API.
func (c Config) NeedsGoogle() bool {
	return c.Source == SourceGmail || c.Ledger == LedgerSheets
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
