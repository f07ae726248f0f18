package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/intakebot/core/config"
	coredatabase "github.com/m3rciful/intakebot/core/database"
)

// AssetsConfig locates the local images.
type AssetsConfig struct {
	Dir string `yaml:"dir" envconfig:"ASSETS_DIR"`
	// Prewarm uploads every image at start-up.
	Prewarm bool `yaml:"prewarm" envconfig:"ASSETS_PREWARM"`
}

// FlowsConfig toggles optional behaviour of the conversation.
type FlowsConfig struct {
	RecordTestRegistrations bool `yaml:"record_test_registrations" envconfig:"FLOWS_RECORD_TEST_REGISTRATIONS"`
	EditInPlace             bool `yaml:"edit_in_place" envconfig:"FLOWS_EDIT_IN_PLACE"`
}

// SiteConfig configures the operator HTTP server.
type SiteConfig struct {
	Listen string `yaml:"listen" envconfig:"SITE_LISTEN"`
	Dir    string `yaml:"dir" envconfig:"SITE_DIR"`
}

// SenderConfig sizes the outbound worker pool used for admin notifications.
type SenderConfig struct {
	QueueSize      int `yaml:"queue_size"`
	Workers        int `yaml:"workers"`
	MaxRetries     int `yaml:"max_retries"`
	RetryBackoffMS int `yaml:"retry_backoff_ms"`
}

// Config is the full configuration of the intake bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	Assets   AssetsConfig        `yaml:"assets"`
	Flows    FlowsConfig         `yaml:"flows"`
	Site     SiteConfig          `yaml:"site"`
	Sender   SenderConfig        `yaml:"sender"`
}

// CoreConfig implements cmd.ConfigCarrier.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads, overrides and validates the configuration at path.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	c.Assets.Dir = strings.TrimSpace(c.Assets.Dir)
	if c.Assets.Dir == "" {
		c.Assets.Dir = "assets/images"
	}
	c.Site.Listen = strings.TrimSpace(c.Site.Listen)
	if c.Sender.MaxRetries < 0 || c.Sender.RetryBackoffMS < 0 {
		return fmt.Errorf("sender.max_retries and sender.retry_backoff_ms must be >= 0")
	}
	return nil
}

// RetryBackoff returns the pause between notification retries; 0 selects the
// dispatcher default.
func (s SenderConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffMS) * time.Millisecond
}
