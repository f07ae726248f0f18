package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	metaKey
)

// eventMeta is the correlation data attached to every line written while an
// update is handled.
type eventMeta struct {
	rid      string
	updateID int
	userID   int64
	kind     string
	handler  string
}

func metaFrom(ctx context.Context) eventMeta {
	if ctx == nil {
		return eventMeta{}
	}
	m, _ := ctx.Value(metaKey).(eventMeta)
	return m
}

func withMeta(ctx context.Context, edit func(*eventMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores log in ctx; FromContext returns it instead of L.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored by WithLogger or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches a correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *eventMeta) { m.rid = rid })
}

// RIDFrom returns the correlation id of ctx.
func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithEventMeta attaches the update id, the author and the event kind.
// Every conversation is a private chat, so the user id doubles as the chat id.
func WithEventMeta(ctx context.Context, updateID int, userID int64, kind string) context.Context {
	return withMeta(ctx, func(m *eventMeta) {
		m.updateID = updateID
		m.userID = userID
		if kind != "" {
			m.kind = kind
		}
	})
}

// WithHandler names the handler that processes the current update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *eventMeta) { m.handler = handler })
}

// HandlerFrom returns the handler name of ctx.
func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// KindFrom returns the event kind stored by WithEventMeta.
func KindFrom(ctx context.Context) string { return metaFrom(ctx).kind }

// UserIDFrom returns the Telegram user id stored by WithEventMeta.
func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

// UpdateIDFrom returns the update id stored by WithEventMeta.
func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }
