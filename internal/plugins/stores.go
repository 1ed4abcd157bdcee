package plugins

import (
	"context"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/store/jsonfile"
	"github.com/ArionMiles/spendsense/pkg/store/memory"
	"github.com/ArionMiles/spendsense/pkg/store/postgres"
	"github.com/ArionMiles/spendsense/pkg/store/sqlite"
)

type memoryStore struct{}

func (p *memoryStore) Name() string             { return "memory" }
func (p *memoryStore) Description() string      { return "Volatile in-process store" }
func (p *memoryStore) RequiredScopes() []string { return nil }

func (p *memoryStore) NewStore(context.Context, Env) (api.CandidateStore, error) {
	return memory.New(), nil
}

type jsonStore struct{}

func (p *jsonStore) Name() string             { return "json" }
func (p *jsonStore) Description() string      { return "Single JSON document on disk" }
func (p *jsonStore) RequiredScopes() []string { return nil }

func (p *jsonStore) NewStore(_ context.Context, env Env) (api.CandidateStore, error) {
	return jsonfile.New(env.Config.StorePath, env.logger("store", p.Name()))
}

type sqliteStore struct{}

func (p *sqliteStore) Name() string             { return "sqlite" }
func (p *sqliteStore) Description() string      { return "Embedded SQLite database" }
func (p *sqliteStore) RequiredScopes() []string { return nil }

func (p *sqliteStore) NewStore(_ context.Context, env Env) (api.CandidateStore, error) {
	return sqlite.New(env.Config.StorePath, env.logger("store", p.Name()))
}

type postgresStore struct{}

func (p *postgresStore) Name() string             { return "postgres" }
func (p *postgresStore) Description() string      { return "PostgreSQL database" }
func (p *postgresStore) RequiredScopes() []string { return nil }

func (p *postgresStore) NewStore(ctx context.Context, env Env) (api.CandidateStore, error) {
	pg := env.Config.Postgres
	return postgres.New(ctx, postgres.Config{
		DSN:      pg.DSN,
		Host:     pg.Host,
		Port:     pg.Port,
		Database: pg.Database,
		User:     pg.User,
		Password: pg.Password,
		SSLMode:  pg.SSLMode,
	}, env.logger("store", p.Name()))
}
