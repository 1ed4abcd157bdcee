// Package sheets implements a Ledger that appends confirmed expenses to a Google Sheet.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// DefaultRetryDelay is the wait before retrying a rate-limited append.
const DefaultRetryDelay = 60 * time.Second

// Header is written to a newly created spreadsheet.
var Header = []any{"Date", "Merchant", "Amount", "Category", "Payment Method", "Description", "ID"}

// Ledger appends rows to a spreadsheet.
type Ledger struct {
	client      *sheets.Service
	spreadsheet *sheets.Spreadsheet
	sheetName   string
	retryDelay  time.Duration
	logger      *slog.Logger
}

// Config holds configuration for the Sheets ledger.
type Config struct {
	// SheetTitle is the title for a new spreadsheet (if SheetID is empty).
	SheetTitle string
	// SheetID is the ID of an existing spreadsheet to use.
	SheetID string
	// SheetName is the name of the sheet within the spreadsheet. Defaults to Sheet1.
	SheetName string
	// RetryDelay defaults to DefaultRetryDelay.
	RetryDelay time.Duration
	// Endpoint overrides the API base URL.
	Endpoint string
}

// New creates a Sheets ledger, creating the spreadsheet if SheetID is empty or unreadable.
func New(ctx context.Context, httpClient *http.Client, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SheetName == "" {
		cfg.SheetName = "Sheet1"
	}
	if cfg.SheetTitle == "" {
		cfg.SheetTitle = "spendsense expenses"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets service: %w", err)
	}

	l := &Ledger{
		client:     client,
		sheetName:  cfg.SheetName,
		retryDelay: cfg.RetryDelay,
		logger:     logger,
	}

	spreadsheet, err := l.initSpreadsheet(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing spreadsheet: %w", err)
	}
	l.spreadsheet = spreadsheet

	logger.Info("sheets ledger initialized", "spreadsheet_id", spreadsheet.SpreadsheetId)
	return l, nil
}

func (l *Ledger) initSpreadsheet(ctx context.Context, cfg Config) (*sheets.Spreadsheet, error) {
	if cfg.SheetID != "" {
		spreadsheet, err := l.client.Spreadsheets.Get(cfg.SheetID).Context(ctx).Do()
		if err == nil {
			l.logger.Info("using existing spreadsheet", "title", spreadsheet.Properties.Title, "id", cfg.SheetID)
			return spreadsheet, nil
		}
		l.logger.Warn("failed to get spreadsheet, will create new one", "id", cfg.SheetID, "error", err)
	}

	spreadsheet, err := l.client.Spreadsheets.Create(&sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title: cfg.SheetTitle,
		},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating spreadsheet: %w", err)
	}

	l.logger.Info("created new spreadsheet", "title", cfg.SheetTitle, "id", spreadsheet.SpreadsheetId)

	if err := l.writeHeaders(ctx, spreadsheet.SpreadsheetId); err != nil {
		return nil, fmt.Errorf("writing headers: %w", err)
	}
	return spreadsheet, nil
}

func (l *Ledger) writeHeaders(ctx context.Context, spreadsheetID string) error {
	headerRange := fmt.Sprintf("%s!A1:G1", l.sheetName)
	headerReq := sheets.ValueRange{Values: [][]any{Header}}

	_, err := l.client.Spreadsheets.Values.Update(spreadsheetID, headerRange, &headerReq).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("updating headers: %w", err)
	}
	return nil
}

// Row returns the sheet row for a candidate.
func Row(c api.ExpenseCandidate) []any {
	return []any{
		c.TransactionDate.Format(time.DateOnly),
		c.Merchant,
		c.Amount.InexactFloat64(),
		string(c.Category),
		string(c.PaymentMethod),
		c.Description,
		c.ID,
	}
}

// Submit appends one row, retrying when rate limited.
func (l *Ledger) Submit(ctx context.Context, c api.ExpenseCandidate) error {
	writeRange := fmt.Sprintf("%s!A2:G2", l.sheetName)
	writeReq := sheets.ValueRange{Values: [][]any{Row(c)}}

	err := retry.Do(
		func() error {
			_, err := l.client.Spreadsheets.Values.Append(l.spreadsheet.SpreadsheetId, writeRange, &writeReq).
				ValueInputOption("USER_ENTERED").
				InsertDataOption("INSERT_ROWS").
				Context(ctx).
				Do()
			return err
		},
		retry.RetryIf(func(err error) bool {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
				l.logger.Warn("rate limited, will retry", "error", err)
				return true
			}
			return false
		}),
		retry.Attempts(3),
		retry.Delay(l.retryDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("appending row to sheet: %w", err)
	}

	l.logger.Info("wrote expense to sheet", "id", c.ID, "merchant", c.Merchant)
	return nil
}

// SpreadsheetID returns the ID of the spreadsheet being written to.
func (l *Ledger) SpreadsheetID() string {
	if l.spreadsheet == nil {
		return ""
	}
	return l.spreadsheet.SpreadsheetId
}

// Close is a no-op.
func (l *Ledger) Close() error { return nil }
