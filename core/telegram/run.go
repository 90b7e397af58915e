package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/topicrelay/core/config"
	"github.com/m3rciful/topicrelay/core/logger"
	tghelpers "github.com/m3rciful/topicrelay/core/telegram/helpers"
	tgsender "github.com/m3rciful/topicrelay/core/telegram/sender"
)

// Middleware is a named bot-wide middleware installed with bot.Use.
type Middleware struct {
	Name string
	Use  tele.MiddlewareFunc
}

// Route binds a handler to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls RunTelegram. Config is required.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route
	// BuildRoutes runs once the bot exists, for handlers that need a Messenger.
	BuildRoutes func(rt Runtime) ([]Route, error)
	// BeforeDeliver runs ahead of every webhook delivery.
	BeforeDeliver func(ctx context.Context) error

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime is what lifecycle hooks and route builders get to work with.
type Runtime struct {
	Bot        *tele.Bot
	Messenger  *BotMessenger
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram builds the bot, installs middlewares and routes, and serves
// updates until ctx is done. The background dispatcher is closed on return.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if opts.Config == nil {
		return errors.New("telegram: nil config")
	}
	cfg := opts.Config
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen:      cfg.Webhook.Listen,
			Port:        cfg.Webhook.Port,
			URL:         cfg.Webhook.URL,
			Path:        cfg.Webhook.Path,
			SecretToken: cfg.Webhook.SecretToken,
		},
		BeforeDeliver: opts.BeforeDeliver,
	})

	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Telegram.Token,
		Poller:  poller,
		Client:  BuildHTTPClient(cfg.Telegram.HTTPRetries),
		OnError: logHandlerError,
	})
	if err != nil {
		return fmt.Errorf("telegram: new bot: %w", err)
	}
	logMode(ctx, poller, time.Since(start))
	if _, polling := poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		dropWebhook(ctx, bot)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	defer dispatcher.Close()

	rt := Runtime{
		Bot:        bot,
		Messenger:  NewBotMessenger(bot),
		Dispatcher: dispatcher,
		Registry:   opts.Registry,
	}
	if err := install(bot, rt, opts); err != nil {
		return err
	}
	InitBotCommands(bot, rt.Registry, cfg.Telegram.AdminGroupID)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		bot.Start()
	}()
	select {
	case <-ctx.Done():
		bot.Stop()
		<-done
	case <-done:
	}

	if opts.OnStop != nil {
		// ctx is already cancelled here; shutdown work gets its own.
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func install(bot *tele.Bot, rt Runtime, opts RunOptions) error {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	routes := opts.Routes
	if opts.BuildRoutes != nil {
		built, err := opts.BuildRoutes(rt)
		if err != nil {
			return fmt.Errorf("telegram: build routes: %w", err)
		}
		routes = append(routes, built...)
	}
	for _, r := range routes {
		if r.Endpoint != nil && r.Handler != nil {
			bot.Handle(r.Endpoint, r.Handler)
		}
	}
	return nil
}

func logHandlerError(err error, c tele.Context) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		ctx = context.Background()
	}
	logger.Error(ctx, logger.ComponentTG, "handler.error",
		slog.String("status", logger.Status(err)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}

func logMode(ctx context.Context, poller tele.Poller, took time.Duration) {
	attrs := []slog.Attr{slog.Duration("duration", logger.RoundMS(took))}
	switch p := poller.(type) {
	case *Ingress:
		attrs = append(attrs,
			slog.String("mode", RunModeWebhook),
			slog.String("listen", p.opts.Listen),
			slog.String("path", p.opts.Path),
			slog.String("public_url", p.opts.PublicURL),
		)
	case *tele.LongPoller:
		attrs = append(attrs,
			slog.String("mode", RunModeLongpoll),
			slog.Int("timeout_seconds", int(p.Timeout/time.Second)),
		)
	}
	logger.Info(ctx, logger.ComponentTG, "mode", attrs...)
}

// dropWebhook clears a webhook left over from an earlier webhook run so
// getUpdates is not rejected.
func dropWebhook(ctx context.Context, bot *tele.Bot) {
	if err := bot.RemoveWebhook(false); err != nil {
		logger.Warn(ctx, logger.ComponentTG, "webhook.delete",
			slog.String("status", "fail"),
			slog.String("err", logger.SanitizeLimit(strings.TrimSpace(err.Error()), 256)),
		)
		return
	}
	logger.Info(ctx, logger.ComponentTG, "webhook.delete", slog.String("status", "ok"))
}
