package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reminders.LinkTimeoutSec != 30 || cfg.Reminders.SoloWaitSec != 5 {
		t.Errorf("defaults = %+v", cfg.Reminders)
	}
	if cfg.Reminders.DueCron != "* * * * *" || cfg.Reminders.WeeklyCron != "0 10 * * 0" {
		t.Errorf("cron defaults = %+v", cfg.Reminders)
	}
}

func TestLoad_JSON5WithComments(t *testing.T) {
	path := writeConfig(t, `{
		// pairing window tuned down for tests
		reminders: {
			link_timeout_sec: 10,
			solo_wait_sec: 2,
			timezone: "Europe/Moscow",
		},
		store: { path: "/tmp/test.db" },
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reminders.LinkTimeoutSec != 10 || cfg.Reminders.SoloWaitSec != 2 {
		t.Errorf("reminders = %+v", cfg.Reminders)
	}
	if cfg.Reminders.Timezone != "Europe/Moscow" {
		t.Errorf("timezone = %q", cfg.Reminders.Timezone)
	}
	if cfg.Store.Path != "/tmp/test.db" {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `{ telegram: { token: "file-token" } }`)
	t.Setenv("REMIND_TELEGRAM_TOKEN", "env-token")
	t.Setenv("REMIND_TIMEZONE", "Asia/Tokyo")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Reminders.Timezone != "Asia/Tokyo" {
		t.Errorf("timezone = %q, want env override", cfg.Reminders.Timezone)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Telegram.Token = "t"
		cfg.OpenAI.APIKey = "k"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, true},
		{"missing api key", func(c *Config) { c.OpenAI.APIKey = "" }, true},
		{"solo wait above window", func(c *Config) { c.Reminders.SoloWaitSec = 60 }, true},
		{"solo wait equals window", func(c *Config) { c.Reminders.SoloWaitSec = 30 }, true},
		{"zero link timeout", func(c *Config) { c.Reminders.LinkTimeoutSec = 0 }, true},
		{"bad timezone", func(c *Config) { c.Reminders.Timezone = "Mars/Olympus" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	cfg := Default()
	if cfg.LinkTimeout().Seconds() != 30 || cfg.SoloWait().Seconds() != 5 {
		t.Errorf("durations = %v, %v", cfg.LinkTimeout(), cfg.SoloWait())
	}
}
