package plugins

import (
	"context"
	"fmt"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/ArionMiles/spendsense/pkg/api"
	"github.com/ArionMiles/spendsense/pkg/source/fixture"
	"github.com/ArionMiles/spendsense/pkg/source/gmail"
	"github.com/ArionMiles/spendsense/pkg/source/mbox"
)

type fixtureSource struct{}

func (p *fixtureSource) Name() string { return "fixture" }

func (p *fixtureSource) Description() string {
	return "Built-in sample notifications, or messages from SPENDSENSE_FIXTURE_FILE"
}

func (p *fixtureSource) RequiredScopes() []string { return nil }

func (p *fixtureSource) NewSource(_ context.Context, env Env) (api.MessageSource, error) {
	if path := env.Config.FixtureFile; path != "" {
		msgs, err := fixture.LoadFile(path)
		if err != nil {
			return nil, err
		}
		env.logger("source", p.Name()).Info("loaded fixture messages", "path", path, "count", len(msgs))
		return fixture.New(msgs), nil
	}
	return fixture.New(fixture.Samples(time.Now())), nil
}

type gmailSource struct{}

func (p *gmailSource) Name() string { return "gmail" }

func (p *gmailSource) Description() string {
	return "Read bank notification e-mails from Gmail"
}

func (p *gmailSource) RequiredScopes() []string {
	return []string{gmailapi.GmailReadonlyScope}
}

func (p *gmailSource) NewSource(ctx context.Context, env Env) (api.MessageSource, error) {
	httpClient, err := env.googleClient(ctx, p.RequiredScopes())
	if err != nil {
		return nil, fmt.Errorf("creating gmail client: %w", err)
	}
	return gmail.New(httpClient, gmail.Config{
		Query:        env.Config.GmailQuery,
		PollInterval: env.Config.PollEvery(),
	}, env.logger("source", p.Name()))
}

type mboxSource struct{}

func (p *mboxSource) Name() string { return "mbox" }

func (p *mboxSource) Description() string {
	return "Read notifications from an exported mbox archive"
}

func (p *mboxSource) RequiredScopes() []string { return nil }

func (p *mboxSource) NewSource(_ context.Context, env Env) (api.MessageSource, error) {
	return mbox.New(mbox.Config{
		Path:         env.Config.MboxPath,
		PollInterval: env.Config.PollEvery(),
	}, env.logger("source", p.Name()))
}
