package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

	redacted = "[redacted]"
)

// secretKeys never reach a sink in clear text.
var secretKeys = map[string]struct{}{
	"token":     {},
	"bot_token": {},
	"password":  {},
	"dsn":       {},
}

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders every record as one flat line: either a JSON
// object or space separated key=value pairs. Known keys come first in
// keyOrder, the rest follow alphabetically.
type structuredHandler struct {
	cfg    handlerConfig
	attrs  []slog.Attr
	groups []string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = slices.Clone(defaultKeyOrder)
	}
	return &structuredHandler{cfg: cfg}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}
	rec := h.newRecord(r.Time)
	rec.set("level", normalizeLevel(r.Level.String()))
	for _, a := range h.attrs {
		rec.add(h.groups, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.add(h.groups, a)
		return true
	})
	rec.fromContext(ctx)
	rec.finish(r.Message, h.cfg.format == formatJSON)

	var line []byte
	if h.cfg.format == formatJSON {
		var err error
		if line, err = rec.json(h.cfg.keyOrder); err != nil {
			return err
		}
	} else {
		line = rec.kv(h.cfg.keyOrder)
	}
	return h.cfg.writer.Write(append(line, '\n'))
}

func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(slices.Clone(h.attrs), attrs...)
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), name)
	return &clone
}

// record collects the flattened fields of one log line.
type record map[string]any

func (h *structuredHandler) newRecord(t time.Time) record {
	rec := make(record, 16)
	ts := t.UTC()
	rec["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	if h.cfg.format == formatJSON {
		rec["ts_unix_nano"] = ts.UnixNano()
	}
	return rec
}

func (rec record) set(key string, val any) { rec[key] = val }

func (rec record) setDefault(key string, val any) {
	if _, ok := rec[key]; !ok {
		rec[key] = val
	}
}

func (rec record) str(key string) string {
	switch v := rec[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// add flattens groups into dotted keys.
func (rec record) add(groups []string, a slog.Attr) {
	key := a.Key
	if prefix := strings.Join(groups, "."); prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			rec.add([]string{key}, child)
		}
		return
	}
	if key == "" {
		return
	}
	if _, secret := secretKeys[a.Key]; secret {
		rec[key] = redacted
		return
	}
	if k, v, ok := convertValue(key, a.Value.Resolve()); ok {
		rec[k] = v
	}
}

// fromContext fills correlation fields that the call site did not set.
func (rec record) fromContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	if rid := RIDFrom(ctx); rid != "" {
		rec.setDefault("rid", rid)
	}
	if uid := UserIDFrom(ctx); uid != 0 {
		rec.setDefault("user_id", uid)
	}
	if id := UpdateIDFrom(ctx); id != 0 {
		rec.setDefault("update_id", id)
	}
	if kind := KindFrom(ctx); kind != "" {
		rec.setDefault("kind", kind)
	}
	if name := HandlerFrom(ctx); name != "" {
		rec.setDefault("handler", name)
	}
}

func (rec record) finish(msg string, keepFullRID bool) {
	if rid := rec.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != "" && compact != rid {
			if keepFullRID {
				rec.setDefault("rid_full", rid)
			}
			rec["rid"] = compact
		}
	}
	if rec.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		rec["event"] = msg
	}
	if rec.str("component") == "" {
		rec["component"] = "app"
	}

	if s := rec.str("status"); s != "" {
		if norm, ok := normalizeStatus(s); ok {
			rec["status"] = norm
		}
	}
	for key, norm := range map[string]func(string) (string, bool){
		"cache":   normalizeCache,
		"outcome": normalizeOutcome,
	} {
		if v := rec.str(key); v != "" {
			if n, ok := norm(v); ok {
				rec[key] = n
			} else {
				delete(rec, key)
			}
		}
	}

	for k, v := range rec {
		if v == nil || (isStringish(v) && rec.str(k) == "") {
			delete(rec, k)
		}
	}
}

func isStringish(v any) bool {
	switch v.(type) {
	case string, fmt.Stringer:
		return true
	}
	return false
}

// keys lists known keys in order, then the rest sorted.
func (rec record) keys(order []string) []string {
	out := make([]string, 0, len(rec))
	seen := make(map[string]struct{}, len(rec))
	for _, k := range order {
		if _, ok := rec[k]; ok {
			if _, dup := seen[k]; !dup {
				out = append(out, k)
				seen[k] = struct{}{}
			}
		}
	}
	tail := len(out)
	for k := range rec {
		if _, ok := seen[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out[tail:])
	return out
}

func (rec record) json(order []string) ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range rec.keys(order) {
		data, err := json.Marshal(rec[k])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", k, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(k))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (rec record) kv(order []string) []byte {
	var b strings.Builder
	for i, k := range rec.keys(order) {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(kvValue(rec[k]))
	}
	return []byte(b.String())
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= 32 || r == '=' || r == '"'
}

// convertValue maps a slog value onto a JSON friendly one. Durations become
// whole milliseconds under a *_ms key.
func convertValue(key string, val slog.Value) (string, any, bool) {
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return key + "_ms"
	}
}
