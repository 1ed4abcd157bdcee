// Package csv implements a Ledger that appends confirmed expenses to a CSV file.
package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ArionMiles/spendsense/pkg/api"
)

// Header is the first row of a new ledger file.
var Header = []string{"ID", "Date", "Merchant", "Amount", "Category", "Payment Method", "Description", "Confidence", "Sender"}

// Ledger appends one row per confirmed expense.
type Ledger struct {
	filePath string
	file     *os.File
	writer   *csv.Writer
	mu       sync.Mutex
	logger   *slog.Logger
}

// Config holds configuration for the CSV ledger.
type Config struct {
	// FilePath is the path to the CSV output file.
	FilePath string
}

// New opens or creates the ledger file, writing the header when it is empty.
func New(cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("creating csv directory: %w", err)
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	l := &Ledger{
		filePath: cfg.FilePath,
		file:     file,
		writer:   csv.NewWriter(file),
		logger:   logger,
	}

	stat, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("stat csv file: %w (close error: %w)", err, closeErr)
		}
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	if stat.Size() == 0 {
		if err := l.writeRecord(Header); err != nil {
			if closeErr := file.Close(); closeErr != nil {
				return nil, fmt.Errorf("writing headers: %w (close error: %w)", err, closeErr)
			}
			return nil, fmt.Errorf("writing headers: %w", err)
		}
	}

	logger.Info("csv ledger initialized", "file", cfg.FilePath)
	return l, nil
}

func (l *Ledger) writeRecord(record []string) error {
	if err := l.writer.Write(record); err != nil {
		return err
	}
	l.writer.Flush()
	return l.writer.Error()
}

// Record returns the CSV row for a candidate.
func Record(c api.ExpenseCandidate) []string {
	return []string{
		c.ID,
		c.TransactionDate.Format(time.DateOnly),
		c.Merchant,
		c.Amount.StringFixed(2),
		string(c.Category),
		string(c.PaymentMethod),
		c.Description,
		strconv.FormatFloat(c.Confidence, 'f', 2, 64),
		c.SourceSender,
	}
}

// Submit appends the candidate and flushes it to disk.
func (l *Ledger) Submit(_ context.Context, c api.ExpenseCandidate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writeRecord(Record(c)); err != nil {
		return fmt.Errorf("writing csv record: %w", err)
	}

	l.logger.Debug("wrote expense to csv", "id", c.ID)
	return nil
}

// Close closes the CSV file.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	l.logger.Info("csv ledger closed", "file", l.filePath)
	return nil
}
