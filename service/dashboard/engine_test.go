package dashboard

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soldash/soldash/service/config"
	"github.com/soldash/soldash/service/session"
)

func testConfig(t *testing.T, bridgeURL string) *config.Config {
	t.Helper()
	return &config.Config{
		LogLevel:               "error",
		SolanaRPCURL:           "https://api.devnet.solana.com",
		SolanaNetwork:          "devnet",
		WalletBridgeURL:        bridgeURL,
		SessionDBPath:          filepath.Join(t.TempDir(), "session.db"),
		HistoryPollInterval:    time.Hour,
		HistoryFetchTimeout:    time.Second,
		HistoryLimit:           5,
		BalanceRefreshInterval: time.Hour,
	}
}

func newTestEngine(t *testing.T, bridgeURL string) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := New(testConfig(t, bridgeURL), logger)
	require.NoError(t, err)
	return engine
}

func TestEngine_StartWithoutBridge(t *testing.T) {
	// No bridge daemon is listening on this address
	engine := newTestEngine(t, "http://127.0.0.1:1")

	require.NoError(t, engine.Start(context.Background()))

	snap := engine.Session()
	assert.Equal(t, session.StatusNoProvider, snap.Status)
	assert.Zero(t, engine.Balance())
	assert.Empty(t, engine.RecentActivity())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(ctx))
}

func TestEngine_BridgePresentButIdle(t *testing.T) {
	// Minimal bridge: healthy, no held session, no events over plain HTTP
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /v1/session", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	bridge := httptest.NewServer(mux)
	defer bridge.Close()

	engine := newTestEngine(t, bridge.URL)

	err := engine.Start(context.Background())
	// Subscribing over websocket fails against this plain HTTP stub, which
	// surfaces as an initialization error with the session in error state.
	if err == nil {
		assert.Equal(t, session.StatusIdle, engine.Session().Status)
	} else {
		assert.Equal(t, session.StatusError, engine.Session().Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, engine.Shutdown(ctx))
}

func TestEngine_DarkModePreference(t *testing.T) {
	engine := newTestEngine(t, "http://127.0.0.1:1")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		engine.Shutdown(ctx)
	}()

	assert.False(t, engine.DarkMode())
	engine.SetDarkMode(true)
	assert.True(t, engine.DarkMode())
}
