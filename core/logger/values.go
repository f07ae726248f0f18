package logger

import (
	"log/slog"
	"strings"
	"time"
)

// RoundMS trims d to whole milliseconds.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

// Preview describes a list without logging all of it: <key>_total,
// <key>_preview with at most limit comma separated items and <key>_truncated.
func Preview(key string, values []string, limit int) []slog.Attr {
	shown := values
	if limit < 0 {
		limit = 0
	}
	if len(shown) > limit {
		shown = shown[:limit]
	}
	return []slog.Attr{
		slog.Int(key+"_total", len(values)),
		slog.String(key+"_preview", strings.Join(shown, ", ")),
		slog.Bool(key+"_truncated", len(shown) < len(values)),
	}
}
