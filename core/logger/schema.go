package logger

import "strings"

// Level names as written to the level field.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// enum is a closed set of values a field may carry. Aliases map onto the
// canonical spelling.
type enum map[string]string

func newEnum(values ...string) enum {
	e := make(enum, len(values))
	for _, v := range values {
		e[v] = v
	}
	return e
}

func (e enum) alias(from, to string) enum {
	e[from] = to
	return e
}

func (e enum) lookup(v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "", false
	}
	if canon, ok := e[v]; ok {
		return canon, true
	}
	return v, false
}

var (
	levels = enum{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"fatal": LevelFatal,
	}.alias("warning", LevelWarn)

	statuses = newEnum("ok", "fail", "skip", "retry", "rate_limited", "cancelled").
		alias("error", "fail").
		alias("canceled", "cancelled")

	// cache values describe how the asset cache served a reference.
	cacheStates = newEnum("hit", "miss", "refresh", "stale")

	outcomes = newEnum("ok", "fail", "cancelled", "rate_limited")
)

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if canon, ok := levels.lookup(level); ok {
		return canon
	}
	return strings.ToUpper(level)
}

// normalizeStatus keeps unknown statuses but reports them as not canonical.
func normalizeStatus(status string) (string, bool) { return statuses.lookup(status) }

func normalizeCache(cache string) (string, bool) { return cacheStates.lookup(cache) }

func normalizeOutcome(outcome string) (string, bool) { return outcomes.lookup(outcome) }

// defaultKeyOrder puts correlation fields first, then the conversation and
// asset fields, then transport and error details.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "kind", "handler",
	"state", "next_state", "op", "outcome", "duration_ms", "message_id",
	"asset", "cache", "upload_id",
	"record", "record_id", "lang",
	"cursor", "count", "listen", "http_code",
	"driver", "db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"rate_limited", "pending_count",
}
