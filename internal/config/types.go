// Package config loads postsched's settings file and platform credentials.
//
// The settings file is JSON or YAML (by extension) and decoded strictly:
// unknown keys are errors. Credentials never live in the file; they come
// from the environment, optionally seeded from a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	logx "postsched/pkg/logx"
)

const (
	DefaultPath         = "postsched.yaml"
	DefaultStorePath    = "scheduled_posts.json"
	DefaultPollInterval = "1m"
	DefaultTickTimeout  = 10 * time.Minute
	DefaultCallTimeout  = 30 * time.Second
	DefaultRatePerSec   = 1
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Store     StoreConfig     `json:"store"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Platforms PlatformsConfig `json:"platforms"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StoreConfig struct {
	Path string `json:"path"`
}

// SchedulerConfig controls due-post polling.
//
// PollInterval accepts a Go duration ("1m"), HH:MM ("00:01") or a cron
// expression ("*/5 * * * *"). Timezone is an IANA name; empty means the
// host's local zone. It is used for --at input and for timestamps stored
// without an offset.
type SchedulerConfig struct {
	PollInterval string `json:"poll_interval"`
	Timezone     string `json:"timezone,omitempty"`
	TickTimeout  string `json:"tick_timeout,omitempty"`
}

type PlatformsConfig struct {
	// RatePerSec caps publish calls per platform; 0 disables the limit.
	RatePerSec int    `json:"rate_per_sec"`
	Timeout    string `json:"timeout,omitempty"`

	Mastodon MastodonSettings `json:"mastodon"`
	Telegram TelegramSettings `json:"telegram"`
}

type MastodonSettings struct {
	Visibility string `json:"visibility,omitempty"`
}

type TelegramSettings struct {
	// ChatID is used when TELEGRAM_CHAT_ID is unset.
	ChatID string `json:"chat_id,omitempty"`
	APIURL string `json:"api_url,omitempty"`
}

// Default returns the settings used when no file exists. Parse decodes on
// top of it, so omitted keys keep these values.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Store:     StoreConfig{Path: DefaultStorePath},
		Scheduler: SchedulerConfig{PollInterval: DefaultPollInterval},
		Platforms: PlatformsConfig{RatePerSec: DefaultRatePerSec},
	}
}

// Validate checks fields that can be checked without other packages.
// The poll schedule itself is validated by the watch loop.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" && !logx.ValidLevel(lvl) {
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("store.path is required")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.TickTimeout(); err != nil {
		return err
	}
	if _, err := c.CallTimeout(); err != nil {
		return err
	}
	if c.Platforms.RatePerSec < 0 {
		return fmt.Errorf("platforms.rate_per_sec must be >= 0")
	}
	switch strings.TrimSpace(c.Platforms.Mastodon.Visibility) {
	case "", "public", "unlisted", "private", "direct":
	default:
		return fmt.Errorf("platforms.mastodon.visibility: unknown value %q", c.Platforms.Mastodon.Visibility)
	}
	return nil
}

// Location resolves scheduler.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

func (c *Config) TickTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.tick_timeout", c.Scheduler.TickTimeout, DefaultTickTimeout)
}

func (c *Config) CallTimeout() (time.Duration, error) {
	return ParseDurationOrDefault("platforms.timeout", c.Platforms.Timeout, DefaultCallTimeout)
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: c.Logging.File.Path},
	}
}
