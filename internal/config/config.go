// Package config defines the server configuration and how it is loaded.
package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn error"`

	// LogFormat selects colored text (tint) or JSON output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// StaticPath is the directory holding the web UI. Empty disables it.
	StaticPath string `koanf:"static_path"`

	// LedgerDSN is the SQLite settlement ledger: a file path or ":memory:".
	LedgerDSN string `koanf:"ledger_dsn" validate:"required"`

	// GeminiAPIKey authenticates receipt extraction calls.
	GeminiAPIKey  string `koanf:"gemini_api_key"`
	GeminiModel   string `koanf:"gemini_model" validate:"required"`
	GeminiBaseURL string `koanf:"gemini_base_url" validate:"required,url"`

	// ExtractionTimeout bounds one extraction round trip.
	ExtractionTimeout time.Duration `koanf:"extraction_timeout" validate:"gt=0"`

	// BreakerFailures consecutive extraction failures open the circuit for
	// BreakerCooldown.
	BreakerFailures uint32        `koanf:"breaker_failures" validate:"min=1"`
	BreakerCooldown time.Duration `koanf:"breaker_cooldown" validate:"gt=0"`

	// DefaultTipPercent applies to new and reset bills.
	DefaultTipPercent float64 `koanf:"default_tip_percent" validate:"gte=0"`

	// SettlementBaseURL prefixes payment links: <base>/pay?token=...
	SettlementBaseURL string `koanf:"settlement_base_url" validate:"required,url"`

	// SettlementSecret signs payment links. A random secret is generated at
	// startup when empty, so links do not survive a restart.
	SettlementSecret  string        `koanf:"settlement_secret"`
	SettlementLinkTTL time.Duration `koanf:"settlement_link_ttl" validate:"gt=0"`

	// Sessions idle longer than SessionIdleTTL are dropped every PruneInterval.
	SessionIdleTTL time.Duration `koanf:"session_idle_ttl" validate:"gt=0"`
	PruneInterval  time.Duration `koanf:"prune_interval" validate:"gt=0"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":8080",
		StaticPath:        "../frontend",
		LedgerDSN:         ":memory:",
		GeminiModel:       "gemini-2.5-flash",
		GeminiBaseURL:     "https://generativelanguage.googleapis.com",
		ExtractionTimeout: 60 * time.Second,
		BreakerFailures:   5,
		BreakerCooldown:   30 * time.Second,
		DefaultTipPercent: 18,
		SettlementBaseURL: "http://localhost:8080",
		SettlementLinkTTL: 24 * time.Hour,
		SessionIdleTTL:    2 * time.Hour,
		PruneInterval:     5 * time.Minute,
	}
}

// DefaultTip returns DefaultTipPercent as a decimal.
func (c *Config) DefaultTip() decimal.Decimal {
	return decimal.NewFromFloat(c.DefaultTipPercent)
}
