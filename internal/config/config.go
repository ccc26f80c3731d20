package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Transport modes.
const (
	ModeRealtime = "realtime"
	ModePolling  = "polling"
)

// Config is the per-install ~/.huddl/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	API       API       `toml:"api"`
	Transport Transport `toml:"transport"`
	Cache     Cache     `toml:"cache"`
	Retry     Retry     `toml:"retry"`
	Typing    Typing    `toml:"typing"`
	Notify    Notify    `toml:"notify"`
}

// API configures the backend REST surface and viewer identity.
type API struct {
	BaseURL        string        `toml:"base_url"`
	WebsocketURL   string        `toml:"websocket_url"`
	Token          string        `toml:"token"`
	UserID         string        `toml:"user_id"`
	UserName       string        `toml:"user_name"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// Transport selects push or polling delivery.
type Transport struct {
	Mode         string        `toml:"mode"`
	PollInterval time.Duration `toml:"poll_interval"`
}

// Cache bounds how long fetched lists stay fresh.
type Cache struct {
	TTL time.Duration `toml:"ttl"`
}

// Retry shapes the exponential backoff for failed fetches.
type Retry struct {
	MaxAttempts int           `toml:"max_attempts"`
	BaseDelay   time.Duration `toml:"base_delay"`
	MaxDelay    time.Duration `toml:"max_delay"`
}

// Typing holds the server TTL for typing signals and the local auto-stop
// safety margin on top of it.
type Typing struct {
	TTL        time.Duration `toml:"ttl"`
	StopBuffer time.Duration `toml:"stop_buffer"`
}

// Notify controls how long the store coalesces mutations before broadcasting.
type Notify struct {
	Debounce time.Duration `toml:"debounce"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultProfile: "main",
		API: API{
			RequestTimeout: 10 * time.Second,
		},
		Transport: Transport{
			Mode:         ModeRealtime,
			PollInterval: 3 * time.Second,
		},
		Cache:  Cache{TTL: 30 * time.Second},
		Retry:  Retry{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
		Typing: Typing{TTL: 5 * time.Second, StopBuffer: time.Second},
		Notify: Notify{Debounce: 100 * time.Millisecond},
	}
}

// Load reads config from the given path, layered over defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Transport.Mode {
	case ModeRealtime, ModePolling:
	default:
		return fmt.Errorf("invalid transport mode %q: must be %q or %q", c.Transport.Mode, ModeRealtime, ModePolling)
	}
	if c.Transport.Mode == ModeRealtime && c.API.WebsocketURL == "" {
		return fmt.Errorf("transport mode %q requires api.websocket_url", ModeRealtime)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry delays invalid: base %s, max %s", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Typing.TTL <= 0 {
		return fmt.Errorf("typing.ttl must be positive, got %s", c.Typing.TTL)
	}
	if c.Notify.Debounce < 0 {
		return fmt.Errorf("notify.debounce must not be negative, got %s", c.Notify.Debounce)
	}
	return nil
}
