// Package app wires the intake bot together: storage, Telegram client, asset
// cache, display, conversation engine, dispatch loop and operator site.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/intakebot/core/bootstrap"
	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/dispatch"
	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/telegram"
	"github.com/m3rciful/intakebot/core/telegram/sender"
	"github.com/m3rciful/intakebot/internal/assets"
	"github.com/m3rciful/intakebot/internal/display"
	"github.com/m3rciful/intakebot/internal/engine"
	"github.com/m3rciful/intakebot/internal/notify"
	"github.com/m3rciful/intakebot/internal/site"
	"github.com/m3rciful/intakebot/internal/storage"
	"github.com/m3rciful/intakebot/migrations"
)

const shutdownTimeout = 10 * time.Second

// App holds the wired components of a running bot.
type App struct {
	cfg        *Config
	db         *sqlx.DB
	client     *telegram.Client
	registry   *telegram.Registry
	dispatcher *sender.Dispatcher
	loop       *dispatch.Loop
	site       *site.Server
	modules    bootstrap.Modules
}

// Bootstrap prepares infrastructure and builds the application.
func Bootstrap(cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	return build(cfg, telegram.ClientOptions{
		Token:           cfg.Telegram.Token,
		APIURL:          cfg.Telegram.APIURL,
		LongPollTimeout: cfg.Telegram.LongPollTimeout(),
	})
}

func build(cfg *Config, clientOpts telegram.ClientOptions) (*App, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:     &cfg.Config,
		Database:   cfg.Database,
		Migrations: migrations.FS,
	})
	if err != nil {
		return nil, err
	}
	a, err := wire(cfg, res.DB, clientOpts)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return a, nil
}

func wire(cfg *Config, db *sqlx.DB, clientOpts telegram.ClientOptions) (*App, error) {
	client, err := telegram.NewClient(clientOpts)
	if err != nil {
		return nil, err
	}
	repos := storage.New(db)

	cache, err := assets.NewCache(assets.CacheOptions{
		Store:     repos.Assets,
		Uploader:  client,
		Files:     os.DirFS(cfg.Assets.Dir),
		ChannelID: cfg.Telegram.CacheChannelID,
	})
	if err != nil {
		return nil, err
	}

	registry := telegram.NewRegistry()
	if err := engine.RegisterCommands(registry); err != nil {
		return nil, err
	}

	dispatcher := sender.NewDispatcher(sender.Options{
		QueueSize:    cfg.Sender.QueueSize,
		Workers:      cfg.Sender.Workers,
		MaxRetries:   cfg.Sender.MaxRetries,
		RetryBackoff: cfg.Sender.RetryBackoff(),
	})

	eng, err := engine.New(engine.Options{
		Sessions:                repos.Sessions,
		Records:                 repos.Records,
		Display:                 display.New(client, repos.Sessions, cache),
		Surface:                 client,
		Commands:                registry,
		Notifier:                notify.New(cfg.Telegram.AdminID, client, dispatcher),
		RecordTestRegistrations: cfg.Flows.RecordTestRegistrations,
		EditInPlace:             cfg.Flows.EditInPlace,
	})
	if err != nil {
		dispatcher.Close()
		return nil, err
	}

	loop := dispatch.New(dispatch.Options{
		Source:  client,
		Handler: eng,
		Middlewares: []dispatch.Middleware{
			dispatch.Recover(),
			dispatch.Logging(),
			dispatch.RateLimit(dispatch.RateLimitOptions{
				Interval:  cfg.RateLimit.Interval(),
				Exclude:   dispatch.ExcludeSet(cfg.RateLimit.Exempt()),
				OnLimited: answerLimited(client),
			}),
		},
		PollTimeout: cfg.Telegram.LongPollTimeout(),
		Backoff:     cfg.Telegram.FetchBackoff(),
	})

	a := &App{
		cfg:        cfg,
		db:         db,
		client:     client,
		registry:   registry,
		dispatcher: dispatcher,
		loop:       loop,
		site: site.New(site.Options{
			Listen:  cfg.Site.Listen,
			Dir:     cfg.Site.Dir,
			DB:      db,
			Cursor:  loop.Cursor,
			Pending: dispatcher.Pending,
		}),
	}
	if cfg.Assets.Prewarm {
		a.modules.Seeders = append(a.modules.Seeders, bootstrap.Named{
			Name: "assets.prewarm",
			Seeder: bootstrap.SeederFunc(func(ctx context.Context) error {
				return cache.Prewarm(ctx, engine.Assets())
			}),
		})
	}
	return a, nil
}

// answerLimited stops the button spinner of dropped callbacks.
func answerLimited(surface chat.Surface) dispatch.Handler {
	return dispatch.HandlerFunc(func(ctx context.Context, ev chat.Event) error {
		if cb, ok := ev.(chat.Callback); ok {
			return surface.AnswerCallback(ctx, cb.CallbackID)
		}
		return nil
	})
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	return telegram.RunOptions{
		Client:     a.client,
		Registry:   a.registry,
		Loop:       a.loop,
		Dispatcher: a.dispatcher,
		OnStart:    a.start,
		OnStop:     a.stop,
	}, nil
}

func (a *App) start(ctx context.Context, _ telegram.Runtime) error {
	if err := a.modules.Seed(ctx); err != nil {
		logger.Warn(ctx, "app", "seed", logger.Err(err))
	}
	return a.site.Start(ctx)
}

func (a *App) stop(ctx context.Context, _ telegram.Runtime) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	var errs []error
	if err := a.site.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("app: close db: %w", err))
	}
	logger.Info(ctx, "app", "stopped", slog.Int("pending_count", a.dispatcher.Pending()))
	return errors.Join(errs...)
}
