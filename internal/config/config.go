// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Browser backends.
const (
	BrowserRod  = "rod"
	BrowserHTTP = "http"
)

// Messaging providers.
const (
	ProviderLINE     = "line"
	ProviderTelegram = "telegram"
)

// Config holds the application configuration.
type Config struct {
	DataDir      string
	StoreDriver  string
	ListenAddr   string
	Port         int
	LogLevel     string
	LogBuffer    int
	Browser      string
	BrowserBin   string
	NavTimeout   time.Duration
	SettleDelay  time.Duration
	IdleInterval time.Duration
	Provider     string
	SendInterval time.Duration
	MessageLimit int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:     envOr("DATA_DIR", "./data"),
		StoreDriver: strings.ToLower(envOr("STORE_DRIVER", DriverJSON)),
		ListenAddr:  envOr("LISTEN_ADDR", "127.0.0.1"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		Browser:     strings.ToLower(envOr("BROWSER", BrowserRod)),
		BrowserBin:  os.Getenv("BROWSER_BIN"),
		Provider:    strings.ToLower(envOr("MESSAGING_PROVIDER", ProviderLINE)),
	}

	var err error
	if cfg.Port, err = envInt("PORT", 7860); err != nil {
		return nil, err
	}
	if cfg.LogBuffer, err = envInt("LOG_BUFFER", 500); err != nil {
		return nil, err
	}
	if cfg.MessageLimit, err = envInt("MESSAGE_LIMIT", 4800); err != nil {
		return nil, err
	}
	if cfg.NavTimeout, err = envDuration("NAV_TIMEOUT", 60*time.Second); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = envDuration("SETTLE_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.IdleInterval, err = envDuration("IDLE_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SendInterval, err = envDuration("SEND_INTERVAL", time.Second); err != nil {
		return nil, err
	}

	switch cfg.StoreDriver {
	case DriverJSON, DriverSQLite:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %s or %s", cfg.StoreDriver, DriverJSON, DriverSQLite)
	}
	switch cfg.Browser {
	case BrowserRod, BrowserHTTP:
	default:
		return nil, fmt.Errorf("invalid BROWSER %q: want %s or %s", cfg.Browser, BrowserRod, BrowserHTTP)
	}
	switch cfg.Provider {
	case ProviderLINE, ProviderTelegram:
	default:
		return nil, fmt.Errorf("invalid MESSAGING_PROVIDER %q: want %s or %s", cfg.Provider, ProviderLINE, ProviderTelegram)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %d", cfg.Port)
	}
	if cfg.MessageLimit <= 0 {
		return nil, fmt.Errorf("MESSAGE_LIMIT must be positive, got %d", cfg.MessageLimit)
	}

	return cfg, nil
}

// Addr is the listen address of the operator API.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.ListenAddr, strconv.Itoa(c.Port))
}

// DatabasePath is the SQLite file used when StoreDriver is sqlite.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "pagewatch.db")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid %s %q: negative duration", key, raw)
	}
	return v, nil
}
