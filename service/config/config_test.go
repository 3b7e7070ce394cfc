package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Setup: only the required variable is set
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.devnet.solana.com", cfg.SolanaRPCURL)
	assert.Equal(t, "devnet", cfg.SolanaNetwork)
	assert.Equal(t, "http://localhost:8199", cfg.WalletBridgeURL)
	assert.Equal(t, 15*time.Second, cfg.HistoryPollInterval)
	assert.Equal(t, 10*time.Second, cfg.HistoryFetchTimeout)
	assert.Equal(t, 5, cfg.HistoryLimit)
	assert.Equal(t, 15*time.Second, cfg.BalanceRefreshInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.MetricsAddr)
	assert.NotEmpty(t, cfg.SessionDBPath)
}

func TestLoad_MissingRPCURL(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOLANA_RPC_URL")
}

func TestLoad_InvalidNetwork(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("SOLANA_NETWORK", "localnet")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOLANA_NETWORK")
}

func TestLoad_InvalidDuration(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	t.Setenv("HISTORY_POLL_INTERVAL", "often")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HISTORY_POLL_INTERVAL")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	t.Setenv("SOLANA_NETWORK", "mainnet")
	t.Setenv("WALLET_BRIDGE_URL", "http://localhost:9000")
	t.Setenv("HISTORY_POLL_INTERVAL", "30s")
	t.Setenv("HISTORY_LIMIT", "10")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("METRICS_ADDR", ":9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "mainnet", cfg.SolanaNetwork)
	assert.Equal(t, "http://localhost:9000", cfg.WalletBridgeURL)
	assert.Equal(t, 30*time.Second, cfg.HistoryPollInterval)
	assert.Equal(t, 10, cfg.HistoryLimit)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		SolanaRPCURL:           "https://api.devnet.solana.com",
		SolanaNetwork:          "devnet",
		WalletBridgeURL:        "http://localhost:8199",
		SessionDBPath:          "session.db",
		HistoryPollInterval:    15 * time.Second,
		HistoryFetchTimeout:    10 * time.Second,
		HistoryLimit:           5,
		BalanceRefreshInterval: 15 * time.Second,
	}
	require.NoError(t, valid.Validate())

	invalid := *valid
	invalid.HistoryLimit = 0
	err := invalid.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HistoryLimit")
}
