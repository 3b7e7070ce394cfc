package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Logging configuration
	LogLevel string

	// Solana RPC configuration
	SolanaRPCURL  string
	SolanaNetwork string // "mainnet" or "devnet"

	// Wallet bridge configuration (the external provider daemon)
	WalletBridgeURL string

	// Local session persistence
	SessionDBPath string

	// Polling configuration
	HistoryPollInterval    time.Duration
	HistoryFetchTimeout    time.Duration
	HistoryLimit           int
	BalanceRefreshInterval time.Duration

	// Optional integrations
	NATSURL     string // empty disables event publishing
	MetricsAddr string // empty disables the metrics listener
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Solana RPC configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}

	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be \"mainnet\" or \"devnet\", got %q", cfg.SolanaNetwork))
	}

	// Wallet bridge configuration
	cfg.WalletBridgeURL = getEnvOrDefault("WALLET_BRIDGE_URL", "http://localhost:8199")

	// Session persistence
	cfg.SessionDBPath = getEnvOrDefault("SESSION_DB_PATH", DefaultSessionDBPath())

	// Polling configuration
	historyInterval, err := parseDuration("HISTORY_POLL_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryPollInterval = historyInterval
	}

	historyTimeout, err := parseDuration("HISTORY_FETCH_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryFetchTimeout = historyTimeout
	}

	historyLimit, err := parseInt("HISTORY_LIMIT", 5)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryLimit = historyLimit
	}

	balanceInterval, err := parseDuration("BALANCE_REFRESH_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BalanceRefreshInterval = balanceInterval
	}

	// Optional integrations
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// Validate polling bounds
	if cfg.HistoryPollInterval != 0 && cfg.HistoryPollInterval < time.Second {
		errs = append(errs, fmt.Errorf("HISTORY_POLL_INTERVAL must be at least 1 second"))
	}
	if cfg.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("HISTORY_LIMIT must be at least 1"))
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for daemon initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.SolanaNetwork != "mainnet" && c.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SolanaNetwork must be \"mainnet\" or \"devnet\""))
	}

	if c.WalletBridgeURL == "" {
		errs = append(errs, fmt.Errorf("WalletBridgeURL is required"))
	}

	if c.SessionDBPath == "" {
		errs = append(errs, fmt.Errorf("SessionDBPath is required"))
	}

	if c.HistoryPollInterval < time.Second {
		errs = append(errs, fmt.Errorf("HistoryPollInterval must be at least 1 second"))
	}

	if c.HistoryFetchTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HistoryFetchTimeout must be positive"))
	}

	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("HistoryLimit must be at least 1"))
	}

	if c.BalanceRefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("BalanceRefreshInterval must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// DefaultSessionDBPath returns the default location for the session database.
// Falls back to the working directory when the user config dir is unavailable.
func DefaultSessionDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "soldash.db"
	}
	return filepath.Join(dir, "soldash", "session.db")
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
