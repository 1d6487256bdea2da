// Package config loads the service configuration from a JSON5 file
// with environment variable overlays. Secrets are expected from the
// environment; the file covers everything else.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Config is the full service configuration.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	OpenAI    OpenAIConfig    `json:"openai"`
	Reminders RemindersConfig `json:"reminders"`
	Store     StoreConfig     `json:"store"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// TelegramConfig holds the bot credentials and delivery fallback.
type TelegramConfig struct {
	Token string `json:"token"`
	// DefaultChatID receives reminders stored before per-user tracking
	// existed (rows without a user id).
	DefaultChatID string `json:"default_chat_id"`
}

// OpenAIConfig holds the interpretation and transcription settings.
type OpenAIConfig struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
	// Language is an optional ISO 639-1 hint for transcription and the
	// language reminders are written in ("" = follow the user).
	Language string `json:"language"`
}

// RemindersConfig holds timing and scheduling knobs.
type RemindersConfig struct {
	// Timezone is the default zone for interpreting due times.
	Timezone string `json:"timezone"`
	// LinkTimeoutSec is the message pairing window in seconds.
	LinkTimeoutSec int `json:"link_timeout_sec"`
	// SoloWaitSec is how long a message waits for a counterpart before
	// being processed on its own. Must be below LinkTimeoutSec.
	SoloWaitSec int `json:"solo_wait_sec"`
	// DueCron is the cron expression for the due reminder sweep.
	DueCron string `json:"due_cron"`
	// WeeklyCron is the cron expression for the undated reminder review.
	WeeklyCron string `json:"weekly_cron"`
}

// StoreConfig holds the sqlite location.
type StoreConfig struct {
	Path string `json:"path"`
}

// TelemetryConfig holds tracing settings. An empty endpoint disables
// export.
type TelemetryConfig struct {
	OTLPEndpoint string `json:"otlp_endpoint"`
	Insecure     bool   `json:"insecure"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Reminders: RemindersConfig{
			Timezone:       "UTC",
			LinkTimeoutSec: 30,
			SoloWaitSec:    5,
			DueCron:        "* * * * *",
			WeeklyCron:     "0 10 * * 0",
		},
		Store: StoreConfig{
			Path: "~/.remind/reminders.db",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A
// missing file is not an error; env-only configuration is supported.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config. Env vars take
// precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("REMIND_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("REMIND_DEFAULT_CHAT_ID", &c.Telegram.DefaultChatID)
	envStr("REMIND_OPENAI_API_KEY", &c.OpenAI.APIKey)
	envStr("REMIND_OPENAI_MODEL", &c.OpenAI.Model)
	envStr("REMIND_LANGUAGE", &c.OpenAI.Language)
	envStr("REMIND_TIMEZONE", &c.Reminders.Timezone)
	envStr("REMIND_STORE_PATH", &c.Store.Path)
	envStr("REMIND_OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)

	if v := os.Getenv("REMIND_LINK_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reminders.LinkTimeoutSec = n
		}
	}
	if v := os.Getenv("REMIND_SOLO_WAIT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Reminders.SoloWaitSec = n
		}
	}
}

// Validate checks the config for startup-blocking problems.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required (REMIND_TELEGRAM_TOKEN)")
	}
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai api key is required (REMIND_OPENAI_API_KEY)")
	}
	if c.Reminders.LinkTimeoutSec <= 0 {
		return fmt.Errorf("link_timeout_sec must be positive, got %d", c.Reminders.LinkTimeoutSec)
	}
	if c.Reminders.SoloWaitSec <= 0 {
		return fmt.Errorf("solo_wait_sec must be positive, got %d", c.Reminders.SoloWaitSec)
	}
	if c.Reminders.SoloWaitSec >= c.Reminders.LinkTimeoutSec {
		return fmt.Errorf("solo_wait_sec (%d) must be below link_timeout_sec (%d)",
			c.Reminders.SoloWaitSec, c.Reminders.LinkTimeoutSec)
	}
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Reminders.Timezone, err)
	}
	return nil
}

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}

// LinkTimeout returns the pairing window as a duration.
func (c *Config) LinkTimeout() time.Duration {
	return time.Duration(c.Reminders.LinkTimeoutSec) * time.Second
}

// SoloWait returns the solo processing delay as a duration.
func (c *Config) SoloWait() time.Duration {
	return time.Duration(c.Reminders.SoloWaitSec) * time.Second
}
