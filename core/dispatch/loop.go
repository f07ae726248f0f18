// Package dispatch runs the sequential update loop: it pulls events from a
// Source in order, feeds each one through a middleware chain to a Handler and
// advances the resumption cursor.
package dispatch

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
)

const (
	defaultPollTimeout = 30 * time.Second
	defaultBackoff     = 3 * time.Second
)

// Source yields ordered batches of events starting at cursor. Implementations
// block for at most timeout when nothing is pending.
type Source interface {
	Fetch(ctx context.Context, cursor int, timeout time.Duration) ([]chat.Event, error)
}

// Handler processes one event to completion.
type Handler interface {
	Handle(ctx context.Context, ev chat.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev chat.Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev chat.Event) error {
	return f(ctx, ev)
}

// Middleware wraps a Handler.
type Middleware func(next Handler) Handler

// Chain applies middlewares so that the first one is outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Options configures a Loop.
type Options struct {
	Source      Source
	Handler     Handler
	Middlewares []Middleware

	// PollTimeout bounds a single fetch; 0 selects 30s.
	PollTimeout time.Duration
	// Backoff is the pause after a failed fetch; 0 selects 3s.
	Backoff time.Duration
	// Cursor is the first update id to request.
	Cursor int
}

// Loop is the single consumer of a Source. Events are handled one at a time,
// so handlers never race on per-user state.
type Loop struct {
	source      Source
	handler     Handler
	pollTimeout time.Duration
	backoff     time.Duration
	cursor      atomic.Int64
}

// New builds a Loop from options.
func New(opts Options) *Loop {
	l := &Loop{
		source:      opts.Source,
		handler:     Chain(opts.Handler, opts.Middlewares...),
		pollTimeout: opts.PollTimeout,
		backoff:     opts.Backoff,
	}
	if l.pollTimeout <= 0 {
		l.pollTimeout = defaultPollTimeout
	}
	if l.backoff <= 0 {
		l.backoff = defaultBackoff
	}
	l.cursor.Store(int64(opts.Cursor))
	return l
}

// Cursor returns the next update id the loop will request.
func (l *Loop) Cursor() int {
	return int(l.cursor.Load())
}

// Run fetches and handles events until ctx is cancelled. Handler errors never
// stop the loop; fetch errors are retried after the back-off.
func (l *Loop) Run(ctx context.Context) error {
	logger.Info(ctx, "dispatch", "loop.start",
		slog.Int("cursor", l.Cursor()),
		slog.Duration("poll_timeout", l.pollTimeout),
		slog.Duration("backoff", l.backoff),
	)
	for {
		if ctx.Err() != nil {
			logger.Info(context.Background(), "dispatch", "loop.stop", slog.Int("cursor", l.Cursor()))
			return nil
		}

		events, err := l.source.Fetch(ctx, l.Cursor(), l.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Warn(ctx, "dispatch", "fetch.failed",
				slog.String("status", "retry"),
				slog.Int("cursor", l.Cursor()),
				slog.Duration("backoff", l.backoff),
				logger.Err(err),
			)
			sleep(ctx, l.backoff)
			continue
		}

		for _, ev := range events {
			if ev == nil {
				continue
			}
			_ = l.handler.Handle(ctx, ev)
			l.advance(ev.UpdateID())
		}
	}
}

func (l *Loop) advance(updateID int) {
	next := int64(updateID) + 1
	if next > l.cursor.Load() {
		l.cursor.Store(next)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
