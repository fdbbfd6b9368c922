// Package config holds the client and development-hub configuration and the
// flag/env parsing shared by the CLI subcommands.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// ClientConfig configures the realtime client: hub endpoint, credentials,
// and the reconnection policy knobs.
type ClientConfig struct {
	HubURL     string
	RoomAPIURL string
	APIKey     string
	LogLevel   string

	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration

	// Reconnection policy: attempt n waits min(Base*2^(n-1), Max); after
	// MaxReconnectAttempts involuntary drops the client stays disconnected
	// until an explicit Connect.
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
}

// HubConfig configures the development hub.
type HubConfig struct {
	Listen       string
	APIKey       string
	DBPath       string
	APIKeyPepper string
	LogLevel     string

	WriteTimeout time.Duration
}

const (
	defaultHubURL               = "https://mk1.averox.com"
	defaultHandshakeTimeout     = 20 * time.Second
	defaultRequestTimeout       = 30 * time.Second
	defaultReconnectBaseDelay   = 1 * time.Second
	defaultReconnectMaxDelay    = 5 * time.Second
	defaultMaxReconnectAttempts = 5

	defaultHubListen       = ":8787"
	defaultHubWriteTimeout = 10 * time.Second
)

// DefaultClient returns a ClientConfig with env-derived endpoint/credential
// values and the stock timing policy.
func DefaultClient() ClientConfig {
	return ClientConfig{
		HubURL:               envOrDefault("AVEROX_HUB_URL", defaultHubURL),
		RoomAPIURL:           envOrDefault("AVEROX_ROOM_API", ""),
		APIKey:               envOrDefault("AVEROX_API_KEY", ""),
		LogLevel:             envOrDefault("AVEROX_LOG_LEVEL", "info"),
		HandshakeTimeout:     defaultHandshakeTimeout,
		RequestTimeout:       defaultRequestTimeout,
		ReconnectBaseDelay:   defaultReconnectBaseDelay,
		ReconnectMaxDelay:    defaultReconnectMaxDelay,
		MaxReconnectAttempts: envIntOrDefault("AVEROX_MAX_RECONNECTS", defaultMaxReconnectAttempts),
	}
}

// ClientFlags returns an env-defaulted ClientConfig and a flag set with the
// common client flags bound to it.  Subcommands may register extra flags on
// the set before parsing; call [ClientConfig.Normalize] after Parse.
func ClientFlags(name string) (*ClientConfig, *flag.FlagSet) {
	cfg := DefaultClient()

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.HubURL, "hub", cfg.HubURL, "Real-time hub base URL")
	fs.StringVar(&cfg.RoomAPIURL, "room-api", cfg.RoomAPIURL, "Conferencing room API base URL (defaults to <hub>/api)")
	fs.StringVar(&cfg.APIKey, "api-key", cfg.APIKey, "Service API key")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	return &cfg, fs
}

// Normalize trims, defaults, and validates the config.  It is safe to call
// on hand-built configs in tests.
func (c *ClientConfig) Normalize() error {
	c.HubURL = strings.TrimRight(strings.TrimSpace(c.HubURL), "/")
	c.RoomAPIURL = strings.TrimRight(strings.TrimSpace(c.RoomAPIURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)

	if c.HubURL == "" {
		return errors.New("missing --hub or AVEROX_HUB_URL")
	}
	if c.APIKey == "" {
		return errors.New("missing --api-key or AVEROX_API_KEY")
	}
	if c.RoomAPIURL == "" {
		c.RoomAPIURL = c.HubURL + "/api"
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = defaultReconnectBaseDelay
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = defaultReconnectMaxDelay
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	return nil
}

// ParseHubFlags parses the development hub subcommand flags.
func ParseHubFlags(args []string) (HubConfig, error) {
	cfg := HubConfig{
		Listen:       envOrDefault("AVEROX_HUB_LISTEN", defaultHubListen),
		APIKey:       envOrDefault("AVEROX_HUB_STATIC_KEY", ""),
		DBPath:       envOrDefault("AVEROX_HUB_DB_PATH", ""),
		APIKeyPepper: envOrDefault("AVEROX_HUB_KEY_PEPPER", ""),
		LogLevel:     envOrDefault("AVEROX_LOG_LEVEL", "info"),
		WriteTimeout: defaultHubWriteTimeout,
	}

	fs := flag.NewFlagSet("hub", flag.ContinueOnError)
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Listen address")
	fs.StringVar(&cfg.APIKey, "static-key", cfg.APIKey, "Accept this single API key (instead of the key store)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite API key store path")
	fs.StringVar(&cfg.APIKeyPepper, "key-pepper", cfg.APIKeyPepper, "API key hash pepper")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	if cfg.APIKey == "" && cfg.DBPath == "" {
		return cfg, errors.New("hub requires --static-key or --db")
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
