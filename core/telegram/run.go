package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/intakebot/core/dispatch"
	"github.com/m3rciful/intakebot/core/logger"
	tgsender "github.com/m3rciful/intakebot/core/telegram/sender"
)

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Client   *Client
	Registry *Registry
	Loop     *dispatch.Loop

	// Dispatcher is closed after the loop stops so queued sends can finish.
	Dispatcher *tgsender.Dispatcher

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Client     *Client
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
	Loop       *dispatch.Loop
}

// RunTelegram prepares the bot (webhook cleanup, command menu) and runs the
// dispatch loop until ctx is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Client == nil || opts.Loop == nil {
		return fmt.Errorf("telegram: client and loop are required")
	}
	rt := Runtime{
		Client:     opts.Client,
		Dispatcher: opts.Dispatcher,
		Registry:   opts.Registry,
		Loop:       opts.Loop,
	}
	defer func() {
		if rt.Dispatcher != nil {
			rt.Dispatcher.Close()
		}
	}()

	start := time.Now()
	if !opts.DisableWebhookCleanup {
		if err := opts.Client.DeleteWebhook(ctx); err != nil {
			logger.Warn(ctx, "tg", "delete_webhook",
				slog.String("status", "fail"),
				logger.Err(err),
			)
		}
	}
	if err := opts.Client.SetCommands(opts.Registry); err != nil {
		logger.Error(ctx, "tg.wire", "register.commands.set_failed", logger.Err(err))
	}
	logger.Info(ctx, "tg", "mode",
		slog.String("status", "ok"),
		slog.Duration("duration", time.Since(start)),
	)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := opts.Loop.Run(ctx)

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
