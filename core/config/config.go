package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultLongPollTimeout is used when telegram.longpoll_timeout_seconds is zero.
	DefaultLongPollTimeout = 30 * time.Second
	// DefaultFetchBackoff is the pause after a failed update fetch.
	DefaultFetchBackoff = 3 * time.Second
)

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// APIURL overrides the Bot API endpoint; empty means the public one.
	APIURL string `yaml:"api_url" envconfig:"TELEGRAM_API_URL"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
	FetchBackoffMS         int `yaml:"fetch_backoff_ms" envconfig:"TELEGRAM_FETCH_BACKOFF_MS"`
	// CacheChannelID is the chat that receives one-time asset uploads.
	CacheChannelID int64 `yaml:"cache_channel_id" envconfig:"TELEGRAM_CACHE_CHANNEL_ID"`
}

// LongPollTimeout returns the configured long poll timeout or the default.
func (t TelegramConfig) LongPollTimeout() time.Duration {
	if t.LongPollTimeoutSeconds <= 0 {
		return DefaultLongPollTimeout
	}
	return time.Duration(t.LongPollTimeoutSeconds) * time.Second
}

// FetchBackoff returns the pause applied after a failed fetch.
func (t TelegramConfig) FetchBackoff() time.Duration {
	if t.FetchBackoffMS <= 0 {
		return DefaultFetchBackoff
	}
	return time.Duration(t.FetchBackoffMS) * time.Millisecond
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": inline button presses
// - "message": text messages and commands
//
// Messages carry conversation input, so they bypass the limiter whether or
// not they are listed. See Exempt.
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Interval returns the minimum spacing between two events of one user.
func (r RateLimitConfig) Interval() time.Duration {
	if r.IntervalMS <= 0 {
		return 0
	}
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// Exempt returns the update kinds the limiter must pass through. Message
// updates are always included: the loop stamps events when it processes them,
// so a backlog of text after a restart would otherwise be dropped unanswered.
func (r RateLimitConfig) Exempt() []string {
	out := make([]string, 0, len(r.ExcludeUpdates)+1)
	hasMessage := false
	for _, v := range r.ExcludeUpdates {
		if v == UpdateMessage {
			hasMessage = true
		}
		out = append(out, v)
	}
	if !hasMessage {
		out = append(out, UpdateMessage)
	}
	return out
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads the core configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills dst from the YAML file at path, then applies environment
// overrides. A ".env" file next to the working directory is loaded first when
// present; variables already set in the environment win over it.
func Decode(path string, dst any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize validates the core sections and fills defaults. Every problem
// found is reported, not only the first one.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Errorf(format, args...))
		}
	}

	tg := &cfg.Telegram
	tg.Token = strings.TrimSpace(tg.Token)
	tg.APIURL = strings.TrimRight(strings.TrimSpace(tg.APIURL), "/")
	check(tg.Token != "", "telegram token is required")
	check(tg.CacheChannelID != 0, "telegram.cache_channel_id is required")
	check(tg.LongPollTimeoutSeconds >= 0, "telegram.longpoll_timeout_seconds must be >= 0")
	check(tg.FetchBackoffMS >= 0, "telegram.fetch_backoff_ms must be >= 0")

	rl := &cfg.RateLimit
	check(rl.IntervalMS >= 0, "rate_limit.interval_ms must be >= 0")
	kept := rl.ExcludeUpdates[:0]
	for _, v := range rl.ExcludeUpdates {
		switch key := strings.ToLower(strings.TrimSpace(v)); key {
		case "":
		case UpdateCallback, UpdateMessage:
			kept = append(kept, key)
		default:
			check(false, "invalid rate_limit.exclude_updates value %q; allowed: %s, %s", v, UpdateCallback, UpdateMessage)
		}
	}
	rl.ExcludeUpdates = kept

	return errors.Join(problems...)
}
