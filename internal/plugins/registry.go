// Package plugins provides a plugin registry for message sources, candidate stores and ledgers.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/config"
)

// Env is what a plugin needs to build its component.
type Env struct {
	Config config.Config
	// Google returns an OAuth client for the requested scopes. Only Google-backed plugins call it.
	Google func(ctx context.Context, scopes []string) (*http.Client, error)
	Logger *slog.Logger
}

func (e Env) logger(kind, name string) *slog.Logger {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", kind, "plugin", name)
}

func (e Env) googleClient(ctx context.Context, scopes []string) (*http.Client, error) {
	if e.Google == nil {
		return nil, fmt.Errorf("no google client configured")
	}
	return e.Google(ctx, scopes)
}

// Plugin is the metadata shared by every plugin kind.
type Plugin interface {
	// Name is the value selected in configuration (e.g. "gmail", "sqlite").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
}

// SourcePlugin builds a message source.
type SourcePlugin interface {
	Plugin
	NewSource(ctx context.Context, env Env) (api.MessageSource, error)
}

// StorePlugin builds a candidate store.
type StorePlugin interface {
	Plugin
	NewStore(ctx context.Context, env Env) (api.CandidateStore, error)
}

// LedgerPlugin builds a ledger.
type LedgerPlugin interface {
	Plugin
	NewLedger(ctx context.Context, env Env) (api.Ledger, error)
}

// Registry manages available plugins.
type Registry struct {
	sources map[string]SourcePlugin
	stores  map[string]StorePlugin
	ledgers map[string]LedgerPlugin
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourcePlugin),
		stores:  make(map[string]StorePlugin),
		ledgers: make(map[string]LedgerPlugin),
	}
}

// Default returns a registry holding every built-in plugin.
func Default() *Registry {
	r := NewRegistry()
	for _, p := range []SourcePlugin{&fixtureSource{}, &gmailSource{}, &mboxSource{}} {
		mustRegister(r.RegisterSource(p))
	}
	for _, p := range []StorePlugin{&memoryStore{}, &jsonStore{}, &sqliteStore{}, &postgresStore{}} {
		mustRegister(r.RegisterStore(p))
	}
	for _, p := range []LedgerPlugin{&noneLedger{}, &csvLedger{}, &sheetsLedger{}, &restLedger{}} {
		mustRegister(r.RegisterLedger(p))
	}
	return r
}

func mustRegister(err error) {
	if err != nil {
		panic(err)
	}
}

// RegisterSource registers a source plugin.
func (r *Registry) RegisterSource(plugin SourcePlugin) error {
	name := plugin.Name()
	if _, exists := r.sources[name]; exists {
		return fmt.Errorf("source plugin %q already registered", name)
	}
	r.sources[name] = plugin
	return nil
}

// RegisterStore registers a store plugin.
func (r *Registry) RegisterStore(plugin StorePlugin) error {
	name := plugin.Name()
	if _, exists := r.stores[name]; exists {
		return fmt.Errorf("store plugin %q already registered", name)
	}
	r.stores[name] = plugin
	return nil
}

// RegisterLedger registers a ledger plugin.
func (r *Registry) RegisterLedger(plugin LedgerPlugin) error {
	name := plugin.Name()
	if _, exists := r.ledgers[name]; exists {
		return fmt.Errorf("ledger plugin %q already registered", name)
	}
	r.ledgers[name] = plugin
	return nil
}

// GetSource returns a source plugin by name.
func (r *Registry) GetSource(name string) (SourcePlugin, error) {
	plugin, exists := r.sources[name]
	if !exists {
		return nil, fmt.Errorf("source plugin %q not found", name)
	}
	return plugin, nil
}

// GetStore returns a store plugin by name.
func (r *Registry) GetStore(name string) (StorePlugin, error) {
	plugin, exists := r.stores[name]
	if !exists {
		return nil, fmt.Errorf("store plugin %q not found", name)
	}
	return plugin, nil
}

// GetLedger returns a ledger plugin by name.
func (r *Registry) GetLedger(name string) (LedgerPlugin, error) {
	plugin, exists := r.ledgers[name]
	if !exists {
		return nil, fmt.Errorf("ledger plugin %q not found", name)
	}
	return plugin, nil
}

// List returns every registered plugin sorted by kind then name.
func (r *Registry) List() []Plugin {
	out := make([]Plugin, 0, len(r.sources)+len(r.stores)+len(r.ledgers))
	out = append(out, sorted(r.sources)...)
	out = append(out, sorted(r.stores)...)
	out = append(out, sorted(r.ledgers)...)
	return out
}

func sorted[P Plugin](m map[string]P) []Plugin {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Plugin, 0, len(names))
	for _, name := range names {
		out = append(out, m[name])
	}
	return out
}

// Scopes returns the OAuth scopes required by the named source and ledger, deduplicated and sorted.
func (r *Registry) Scopes(sourceName, ledgerName string) ([]string, error) {
	source, err := r.GetSource(sourceName)
	if err != nil {
		return nil, err
	}
	ledger, err := r.GetLedger(ledgerName)
	if err != nil {
		return nil, err
	}

	scopeSet := make(map[string]struct{})
	for _, scope := range source.RequiredScopes() {
		scopeSet[scope] = struct{}{}
	}
	for _, scope := range ledger.RequiredScopes() {
		scopeSet[scope] = struct{}{}
	}

	scopes := make([]string, 0, len(scopeSet))
	for scope := range scopeSet {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	return scopes, nil
}

// CreateSource builds the configured message source.
func (r *Registry) CreateSource(ctx context.Context, env Env) (api.MessageSource, error) {
	plugin, err := r.GetSource(env.Config.Source)
	if err != nil {
		return nil, err
	}
	return plugin.NewSource(ctx, env)
}

// CreateStore builds the configured candidate store.
func (r *Registry) CreateStore(ctx context.Context, env Env) (api.CandidateStore, error) {
	plugin, err := r.GetStore(env.Config.Store)
	if err != nil {
		return nil, err
	}
	return plugin.NewStore(ctx, env)
}

// CreateLedger builds the configured ledger.
func (r *Registry) CreateLedger(ctx context.Context, env Env) (api.Ledger, error) {
	plugin, err := r.GetLedger(env.Config.Ledger)
	if err != nil {
		return nil, err
	}
	return plugin.NewLedger(ctx, env)
}
