package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	// Realtime mode without a websocket URL is invalid; the default carries
	// no endpoint, so switch to polling for the check.
	cfg.Transport.Mode = ModePolling
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.API.BaseURL = "https://hr.example.com/api/v1"
	cfg.API.WebsocketURL = "wss://hr.example.com/ws"
	cfg.API.UserID = "u-42"
	cfg.Cache.TTL = 45 * time.Second

	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.API.BaseURL != cfg.API.BaseURL {
		t.Errorf("base_url = %q, want %q", loaded.API.BaseURL, cfg.API.BaseURL)
	}
	if loaded.Cache.TTL != 45*time.Second {
		t.Errorf("cache ttl = %s, want 45s", loaded.Cache.TTL)
	}
	if loaded.Retry.MaxAttempts != 3 {
		t.Errorf("retry max_attempts = %d, want default 3 preserved", loaded.Retry.MaxAttempts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown transport mode", func(c *Config) { c.Transport.Mode = "carrier-pigeon" }},
		{"realtime without websocket url", func(c *Config) { c.Transport.Mode = ModeRealtime; c.API.WebsocketURL = "" }},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"max delay below base", func(c *Config) { c.Retry.MaxDelay = c.Retry.BaseDelay / 2 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero typing ttl", func(c *Config) { c.Typing.TTL = 0 }},
		{"negative debounce", func(c *Config) { c.Notify.Debounce = -time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Transport.Mode = ModePolling
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
