package plugins

import (
	"context"
	"fmt"
	"log/slog"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/ledger/csv"
	"github.com/ArionMiles/spendsense/pkg/ledger/rest"
	"github.com/ArionMiles/spendsense/pkg/ledger/sheets"
)

type noneLedger struct{}

func (p *noneLedger) Name() string             { return "none" }
func (p *noneLedger) Description() string      { return "Confirm locally without recording anywhere" }
func (p *noneLedger) RequiredScopes() []string { return nil }

func (p *noneLedger) NewLedger(_ context.Context, env Env) (api.Ledger, error) {
	return discard{logger: env.logger("ledger", p.Name())}, nil
}

type discard struct {
	logger *slog.Logger
}

func (d discard) Submit(_ context.Context, c api.ExpenseCandidate) error {
	d.logger.Debug("discarding confirmed expense", "id", c.ID)
	return nil
}

func (d discard) Close() error { return nil }

type csvLedger struct{}

func (p *csvLedger) Name() string             { return "csv" }
func (p *csvLedger) Description() string      { return "Append confirmed expenses to a CSV file" }
func (p *csvLedger) RequiredScopes() []string { return nil }

func (p *csvLedger) NewLedger(_ context.Context, env Env) (api.Ledger, error) {
	return csv.New(csv.Config{FilePath: env.Config.LedgerPath}, env.logger("ledger", p.Name()))
}

type sheetsLedger struct{}

func (p *sheetsLedger) Name() string        { return "sheets" }
func (p *sheetsLedger) Description() string { return "Append confirmed expenses to a Google Sheet" }

func (p *sheetsLedger) RequiredScopes() []string {
	return []string{sheetsapi.SpreadsheetsScope}
}

func (p *sheetsLedger) NewLedger(ctx context.Context, env Env) (api.Ledger, error) {
	httpClient, err := env.googleClient(ctx, p.RequiredScopes())
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}
	return sheets.New(ctx, httpClient, sheets.Config{
		SheetTitle: env.Config.Sheets.Title,
		SheetID:    env.Config.Sheets.ID,
		SheetName:  env.Config.Sheets.Name,
	}, env.logger("ledger", p.Name()))
}

type restLedger struct{}

func (p *restLedger) Name() string             { return "rest" }
func (p *restLedger) Description() string      { return "POST confirmed expenses to an expense-tracker API" }
func (p *restLedger) RequiredScopes() []string { return nil }

func (p *restLedger) NewLedger(_ context.Context, env Env) (api.Ledger, error) {
	return rest.New(rest.Config{
		BaseURL: env.Config.RESTURL,
		Token:   env.Config.RESTToken,
	}, env.logger("ledger", p.Name()))
}
