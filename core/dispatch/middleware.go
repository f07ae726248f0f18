package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/intakebot/core/chat"
	"github.com/m3rciful/intakebot/core/logger"
)

// Recover catches panics in handlers so one bad event cannot stop the loop.
func Recover() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, ev chat.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error(ctx, "dispatch", "panic",
						slog.String("err", fmt.Sprint(r)),
						slog.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("dispatch: panic: %v", r)
				}
			}()
			return next.Handle(ctx, ev)
		})
	}
}

// Logging sets the correlation context of an event, logs its receipt (sampled)
// and writes one summary line once the handler returns.
func Logging() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, ev chat.Event) error {
			start := time.Now()
			user := chat.Sender(ev)
			name := HandlerName(ev)

			ctx = logger.WithRID(ctx, logger.BuildRID(ev.UpdateID(), user.ID))
			ctx = logger.WithEventMeta(ctx, ev.UpdateID(), user.ID, ev.Kind())
			ctx = logger.WithHandler(ctx, name)

			if logger.ShouldSampleDebug() {
				attrs := []slog.Attr{slog.String("status", "ok")}
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.Language != "" {
					attrs = append(attrs, slog.String("lang", user.Language))
				}
				switch e := ev.(type) {
				case chat.Message:
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(e.Text, 256)))
				case chat.Callback:
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(e.Data, 256)))
				}
				logger.Debug(ctx, "dispatch", "update.received", attrs...)
			}

			err := next.Handle(ctx, ev)
			logSummary(ctx, name, start, err)
			return err
		})
	}
}

func logSummary(ctx context.Context, name string, start time.Time, err error) {
	status, level := "ok", slog.LevelInfo
	if err != nil {
		status, level = "fail", slog.LevelError
	}
	if errors.Is(err, context.Canceled) {
		status, level = "cancelled", slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("outcome", status),
		slog.Duration("duration", time.Since(start)),
	}
	if err != nil {
		attrs = append(attrs,
			logger.Err(err),
			slog.String("err_code", deriveErrorCode(err)),
			slog.String("cause", name),
		)
	}
	logger.Event(ctx, "dispatch", level, "handler.handled", attrs...)
}

// HandlerName derives a stable, low-cardinality handler label for an event.
func HandlerName(ev chat.Event) string {
	switch e := ev.(type) {
	case chat.Message:
		if cmd := e.Command(); cmd != "" {
			return strings.TrimPrefix(cmd, "/")
		}
		return "text"
	case chat.Callback:
		key, _, _ := strings.Cut(strings.TrimPrefix(e.Data, "\f"), "|")
		key = strings.TrimSpace(key)
		if key == "" {
			return "callback"
		}
		return "cb:" + strings.ToLower(key)
	default:
		return ev.Kind()
	}
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	type coder interface{ Code() string }
	var c coder
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval time.Duration
	// Exclude lists event kinds (chat.KindMessage, chat.KindCallback) that bypass limiting.
	Exclude map[string]struct{}
	// OnLimited runs instead of the handler for dropped events.
	OnLimited Handler
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// RateLimit enforces a minimum interval between events of the same user.
// Dropped events still advance the cursor.
func RateLimit(opts RateLimitOptions) Middleware {
	var (
		mu       sync.Mutex
		lastSeen = make(map[int64]time.Time)
	)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, ev chat.Event) error {
			user := chat.Sender(ev)
			if opts.Interval <= 0 || user.ID == 0 {
				return next.Handle(ctx, ev)
			}
			if _, skip := opts.Exclude[ev.Kind()]; skip {
				return next.Handle(ctx, ev)
			}

			ts := now()
			mu.Lock()
			if last, ok := lastSeen[user.ID]; ok && ts.Sub(last) < opts.Interval {
				mu.Unlock()
				logger.Warn(ctx, "dispatch", "rate_limit",
					slog.String("status", "rate_limited"),
					slog.Bool("rate_limited", true),
				)
				if opts.OnLimited != nil {
					return opts.OnLimited.Handle(ctx, ev)
				}
				return nil
			}
			lastSeen[user.ID] = ts
			mu.Unlock()
			return next.Handle(ctx, ev)
		})
	}
}

// ExcludeSet converts configured update kinds into a lookup set.
func ExcludeSet(kinds []string) map[string]struct{} {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}
