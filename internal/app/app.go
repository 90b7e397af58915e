// Package app wires configuration, storage and the relay services into a
// runnable Telegram bot.
package app

import (
	"context"
	"fmt"

	"github.com/m3rciful/topicrelay/core/bootstrap"
	"github.com/m3rciful/topicrelay/core/cmd"
	coreconfig "github.com/m3rciful/topicrelay/core/config"
	coretelegram "github.com/m3rciful/topicrelay/core/telegram"
	"github.com/m3rciful/topicrelay/core/telegram/sender"
	"github.com/m3rciful/topicrelay/core/telegram/state"
	"github.com/m3rciful/topicrelay/internal/access"
	"github.com/m3rciful/topicrelay/internal/console"
	"github.com/m3rciful/topicrelay/internal/filter"
	"github.com/m3rciful/topicrelay/internal/handler"
	"github.com/m3rciful/topicrelay/internal/relay"
	"github.com/m3rciful/topicrelay/internal/settings"
	"github.com/m3rciful/topicrelay/internal/store"
	"github.com/m3rciful/topicrelay/internal/verify"
)

// App holds the bootstrapped infrastructure.
type App struct {
	cfg   *Config
	store store.Store

	closers []func()
}

// Bootstrap initializes logging and storage for cfg.
func Bootstrap(carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("app: unexpected config type %T", carrier)
	}
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	var st store.Store
	if res.DB != nil {
		st = store.NewPostgres(res.DB, res.Migrate)
	} else {
		st = store.NewMemory()
	}
	return New(cfg, st), nil
}

// New builds an App over an existing store.
func New(cfg *Config, st store.Store) *App {
	return &App{cfg: cfg, store: st}
}

// Services are the wired relay services behind one Handler.
type Services struct {
	Settings *settings.Resolver
	Access   *access.Control
	Handler  *handler.Handler

	filter *filter.Engine
}

// Close releases service caches.
func (s *Services) Close() {
	if s.filter != nil {
		s.filter.Close()
	}
}

// Services builds the relay services on top of msgr. backup may be nil, in
// which case backup mirroring runs inline.
func (a *App) Services(msgr coretelegram.Messenger, backup sender.Enqueuer) (*Services, error) {
	res := settings.New(a.store)
	ctl := access.New(a.cfg.Telegram.AdminIDs, res)

	engine, err := filter.New(res, a.store, msgr)
	if err != nil {
		return nil, fmt.Errorf("app: filter: %w", err)
	}

	h := handler.New(handler.Deps{
		Users:  a.store,
		Gate:   verify.New(a.store, res, ctl, msgr),
		Filter: engine,
		Relay: relay.New(a.store, res, ctl, msgr, relay.Options{
			AdminGroupID: a.cfg.Telegram.AdminGroupID,
			Backup:       backup,
		}),
		Console: console.New(res, state.NewManager(a.store), msgr),
	})
	return &Services{Settings: res, Access: ctl, Handler: h, filter: engine}, nil
}

// TelegramRunOptions describes how the bot runtime hosts the services.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	return coretelegram.RunOptions{
		Config:            a.CoreConfig(),
		Registry:          reg,
		Middlewares:       coretelegram.DefaultMiddlewares(a.CoreConfig(), nil),
		DispatcherOptions: sender.Options{MaxRetries: 1},
		BuildRoutes: func(rt coretelegram.Runtime) ([]coretelegram.Route, error) {
			svc, err := a.Services(rt.Messenger, rt.Dispatcher)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, svc.Close)
			return svc.Handler.Routes(rt.Registry, svc.Access)
		},
		BeforeDeliver: a.store.EnsureSchema,
		OnStart: func(ctx context.Context, _ coretelegram.Runtime) error {
			// Failures are logged by the store and retried per delivery.
			_ = a.store.EnsureSchema(ctx)
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			return a.Close()
		},
	}, nil
}

// CoreConfig returns the core part of the configuration.
func (a *App) CoreConfig() *coreconfig.Config {
	return a.cfg.CoreConfig()
}

// Close releases services and the store.
func (a *App) Close() error {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("app: close store: %w", err)
	}
	return nil
}
