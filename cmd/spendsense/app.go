package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ArionMiles/spendsense/internal/plugins"
	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/client"
	"github.com/ArionMiles/spendsense/pkg/lifecycle"
	"github.com/ArionMiles/spendsense/pkg/orchestrator"
	"github.com/ArionMiles/spendsense/pkg/parser"
	"github.com/ArionMiles/spendsense/pkg/rules"
)

func (c *cli) env() plugins.Env {
	return plugins.Env{
		Config: c.cfg,
		Google: c.googleClient,
		Logger: c.logger,
	}
}

func (c *cli) googleClient(ctx context.Context, scopes []string) (*http.Client, error) {
	return client.New(ctx, client.Config{
		SecretsFile: c.cfg.SecretsFile,
		TokenFile:   c.cfg.TokenFile,
		Scopes:      scopes,
	})
}

func (c *cli) openStore(ctx context.Context) (api.CandidateStore, error) {
	store, err := c.registry.CreateStore(ctx, c.env())
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", c.cfg.Store, err)
	}
	return store, nil
}

func (c *cli) openSource(ctx context.Context) (api.MessageSource, error) {
	source, err := c.registry.CreateSource(ctx, c.env())
	if err != nil {
		return nil, fmt.Errorf("opening %s source: %w", c.cfg.Source, err)
	}
	return source, nil
}

func (c *cli) openLedger(ctx context.Context) (api.Ledger, error) {
	ledger, err := c.registry.CreateLedger(ctx, c.env())
	if err != nil {
		return nil, fmt.Errorf("opening %s ledger: %w", c.cfg.Ledger, err)
	}
	return ledger, nil
}

// parser builds a parser from SPENDSENSE_RULES_FILE, or the built-in rules when unset.
func (c *cli) parser() (*parser.Parser, error) {
	if c.cfg.RulesFile == "" {
		return parser.New(nil), nil
	}
	lib, err := rules.LoadFile(c.cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	return parser.New(lib), nil
}

func (c *cli) newOrchestrator(source api.MessageSource, store api.CandidateStore, notifier api.Notifier) (*orchestrator.Orchestrator, error) {
	p, err := c.parser()
	if err != nil {
		return nil, err
	}
	return orchestrator.New(orchestrator.Config{
		Source:   source,
		Store:    store,
		Notifier: notifier,
		Parser:   p,
		MaxCount: c.cfg.BackfillMax,
	}, c.logger), nil
}

var errNotPending = errors.New("candidate is not pending")

// confirm records a pending candidate in the ledger and only then marks it confirmed,
// so a ledger failure leaves it pending for another attempt.
func confirm(ctx context.Context, ledger api.Ledger, manager *lifecycle.Manager, id string) (api.ExpenseCandidate, error) {
	candidate, outcome, err := manager.ConfirmWith(ctx, id, ledger.Submit)
	if err != nil {
		return candidate, fmt.Errorf("submitting to ledger: %w", err)
	}
	if err := outcomeErr(id, outcome); err != nil {
		return candidate, err
	}
	return candidate, nil
}

func outcomeErr(id string, outcome lifecycle.Outcome) error {
	switch outcome {
	case lifecycle.Updated:
		return nil
	case lifecycle.NotFound:
		return fmt.Errorf("%w: %s", api.ErrNotFound, id)
	case lifecycle.AlreadyFinal:
		return fmt.Errorf("%w: %s", errNotPending, id)
	default:
		return fmt.Errorf("candidate store unavailable")
	}
}
