package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ohmynofan/blum-farming-bot/internal/app/worker"
	"github.com/ohmynofan/blum-farming-bot/internal/config"
	"github.com/ohmynofan/blum-farming-bot/internal/storage/claimlog"
	"github.com/ohmynofan/blum-farming-bot/internal/storage/sessionstore"
)

type App struct{ cfg config.Config }

func New(cfg config.Config) *App { return &App{cfg: cfg} }

// Run starts one runner per stored session and blocks until all of them
// return. Accounts share nothing but the claim log.
func (app *App) Run(ctx context.Context) error {
	sessions := sessionstore.New(app.cfg.SessionsDir)
	phones, err := sessions.List()
	if err != nil {
		return err
	}
	if len(phones) == 0 {
		return fmt.Errorf("no sessions found in %s", app.cfg.SessionsDir)
	}

	proxies, err := app.cfg.LoadProxies()
	if err != nil {
		return err
	}

	store, err := claimlog.NewStore(app.cfg.DataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	deps := worker.Deps{Sessions: sessions, Claims: store, Proxies: proxies}

	// A plain group: one account stopping on a fatal error must not cancel
	// the others. Wait reports the first fatal error once all have returned.
	var g errgroup.Group
	for idx, phone := range phones {
		g.Go(func() error {
			return worker.Run(ctx, phone, idx, app.cfg, deps)
		})
	}
	return g.Wait()
}
