package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/intakebot/core/buildinfo"
	coreconfig "github.com/m3rciful/intakebot/core/config"
)

var (
	initOnce   sync.Once
	shutdownMu sync.Mutex
	shutdowned bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs; every helper in
	// this package tolerates that so packages can log from tests.
	L *slog.Logger
)

// settings is the resolved logging section of the config.
type settings struct {
	format  logFormat
	order   []string
	level   slog.Level
	sample  [2]int
	profile string
	file    string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	keep, of := parseDebugSample(cfg)
	return settings{
		format:  selectFormat(cfg),
		order:   selectKeyOrder(cfg),
		level:   selectLevel(cfg),
		sample:  [2]int{keep, of},
		profile: selectProfile(cfg),
		file:    selectFile(cfg),
	}
}

// InitLogger configures the global structured logger. Calls after the first
// one are no-ops.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		set := resolveSettings(cfg)
		levelVar.Set(set.level)
		debugSampler.Set(set.sample[0], set.sample[1])
		traceOverride = detectTraceFlag()

		outputs := []io.Writer{os.Stdout}
		if set.file != "" {
			f, err := openLogFile(set.file)
			if err != nil {
				log.Printf("logger: %v", err)
			} else {
				outputs = append(outputs, f)
				logClosers = append(logClosers, f)
			}
		}
		logWriter = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   set.format,
			keyOrder: set.order,
		}))
		slog.SetDefault(L)
		logStartup(set)
	})
	return nil
}

func logStartup(set settings) {
	Info(context.Background(), "app", "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("build_version", buildinfo.Version),
		slog.String("build_commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("cfg_profile", set.profile),
		slog.String("debug_sample", debugSampler.Ratio().String()),
		slog.Bool("trace", traceOverride),
	)
}

// Shutdown drains queued lines and closes file sinks. Later calls are no-ops.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutdowned {
		return nil
	}
	shutdowned = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func selectFormat(cfg *coreconfig.Config) logFormat {
	if cfg == nil {
		return formatJSON
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	// Without an explicit format, developer profiles get readable lines.
	switch selectProfile(cfg) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

// selectKeyOrder reads logging.keys_order, a comma separated key list.
func selectKeyOrder(cfg *coreconfig.Config) []string {
	var order []string
	if cfg != nil && strings.TrimSpace(cfg.Logging.KeysOrder) != "default" {
		for _, k := range strings.Split(cfg.Logging.KeysOrder, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
	}
	if len(order) == 0 {
		return slices.Clone(defaultKeyOrder)
	}
	return order
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func selectLevel(cfg *coreconfig.Config) slog.Level {
	if cfg != nil {
		if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))]; ok {
			return lvl
		}
	}
	return slog.LevelInfo
}

// selectFile returns the path of the optional file sink; both logging.dir
// and logging.bot_file must be set.
func selectFile(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	file := strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || file == "" {
		return ""
	}
	return filepath.Join(dir, file)
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func selectProfile(cfg *coreconfig.Config) string {
	if cfg == nil {
		return ""
	}
	if p := strings.ToLower(strings.TrimSpace(cfg.Logging.Profile)); p != "" {
		return p
	}
	return "prod"
}

const defaultDebugSample = "1/50"

// parseDebugSample falls back to one in fifty when the configured ratio
// cannot be read.
func parseDebugSample(cfg *coreconfig.Config) (int, int) {
	spec := defaultDebugSample
	if cfg != nil && strings.TrimSpace(cfg.Logging.DebugSample) != "" {
		spec = cfg.Logging.DebugSample
	}
	if keep, of, ok := parseRatioSpec(spec); ok {
		return keep, of
	}
	log.Printf("logger: unreadable debug_sample %q, using %s", spec, defaultDebugSample)
	keep, of, _ := parseRatioSpec(defaultDebugSample)
	return keep, of
}

// TRACE=1 or LOG_TRACE=1 logs every sampled event.
func detectTraceFlag() bool {
	for _, name := range []string{"TRACE", "LOG_TRACE"} {
		switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
		case "1", "true", "on", "yes":
			return true
		}
	}
	return false
}

// ShouldSampleDebug reports whether a high-volume debug event should be
// logged this time.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
