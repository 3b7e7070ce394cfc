package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soldash/soldash/service/config"
	"github.com/soldash/soldash/service/history"
	"github.com/soldash/soldash/service/metrics"
	"github.com/soldash/soldash/service/nats"
	"github.com/soldash/soldash/service/persist"
	"github.com/soldash/soldash/service/provider"
	"github.com/soldash/soldash/service/session"
	"github.com/soldash/soldash/service/solana"
	"github.com/soldash/soldash/service/transfer"
)

// Engine assembles the wallet dashboard: session lifecycle, balance
// refresh, history polling, and event publishing. It is the long-running
// core behind the run command.
type Engine struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics // nil when MetricsAddr is unset

	store     *persist.Store
	prov      *provider.Bridge
	manager   *session.Manager
	chain     *solana.Client
	poller    *history.Poller
	submitter *transfer.Submitter
	publisher nats.Publisher // nil when NATSURL is unset

	metricsServer *http.Server

	mu       sync.Mutex
	balance  uint64
	activity []solana.ActivityEntry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an engine from configuration. NATS and metrics are optional;
// leaving their addresses unset disables them.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.MetricsAddr != "" {
		registry := prometheus.NewRegistry()
		e.metrics = metrics.NewMetrics(registry)

		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		e.metricsServer = &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}

	store, err := persist.NewStore(cfg.SessionDBPath, logger)
	if err != nil {
		// Session persistence is a convenience; the dashboard still works
		// without it, sessions just don't survive restarts.
		logger.Warn("failed to open session store, persistence disabled",
			"path", cfg.SessionDBPath,
			"error", err,
		)
		store = persist.Disabled(logger)
	}
	e.store = store

	e.prov = provider.NewBridge(cfg.WalletBridgeURL, nil, logger)
	e.manager = session.NewManager(e.prov, store, e.metrics, logger)

	rpcClient := solana.NewRPCClient(cfg.SolanaRPCURL)
	e.chain = solana.NewClient(rpcClient, cfg.SolanaNetwork, e.metrics, logger)

	e.poller = history.NewPoller(
		e.chain,
		cfg.HistoryPollInterval,
		cfg.HistoryFetchTimeout,
		cfg.HistoryLimit,
		e.metrics,
		logger,
	)
	e.poller.OnActivity = e.handleActivity

	e.submitter = transfer.NewSubmitter(e.chain, e.manager, e.metrics, logger)

	if cfg.NATSURL != "" {
		pub, err := nats.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create NATS publisher: %w", err)
		}
		e.publisher = pub
	}

	return e, nil
}

// Start initializes the session and starts the background loops. The
// returned error reflects initialization only; a missing provider is not
// an error, the engine keeps running and reports it through the session.
func (e *Engine) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	if e.metricsServer != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.logger.Info("starting metrics server", "addr", e.metricsServer.Addr)
			if err := e.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				e.logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	// The watch callback runs on the manager's dispatch goroutine and keeps
	// the poller and publisher in step with the session.
	e.manager.Watch(e.handleSessionChange)

	if err := e.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	e.wg.Add(1)
	go e.balanceLoop(loopCtx)

	return nil
}

// Shutdown stops the loops and releases every resource.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.poller.Stop()
	e.manager.Close()

	if e.metricsServer != nil {
		if err := e.metricsServer.Shutdown(ctx); err != nil {
			e.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
	e.wg.Wait()

	if e.publisher != nil {
		e.publisher.Close()
	}
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("failed to close session store: %w", err)
	}

	e.logger.Info("engine shutdown complete")
	return nil
}

// Session returns the current session snapshot.
func (e *Engine) Session() session.Session {
	return e.manager.Snapshot()
}

// Connect runs a human-initiated connection attempt.
func (e *Engine) Connect(ctx context.Context) error {
	return e.manager.Connect(ctx)
}

// Disconnect ends the session and clears persisted state.
func (e *Engine) Disconnect(ctx context.Context) {
	e.manager.Disconnect(ctx)
}

// SendTransfer validates, signs, submits, and confirms a SOL transfer from
// the connected wallet.
func (e *Engine) SendTransfer(ctx context.Context, to string, amount float64) transfer.Result {
	return e.submitter.Submit(ctx, transfer.Request{
		From:   e.manager.Snapshot().Address,
		To:     to,
		Amount: amount,
	})
}

// Balance returns the last refreshed lamport balance.
func (e *Engine) Balance() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// RecentActivity returns the last fetched activity batch.
func (e *Engine) RecentActivity() []solana.ActivityEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]solana.ActivityEntry, len(e.activity))
	copy(out, e.activity)
	return out
}

// handleSessionChange reacts to committed session transitions. It must not
// call back into the manager's mutating operations.
func (e *Engine) handleSessionChange(s session.Session) {
	e.poller.SetAddress(s.Address)

	if s.Address == "" {
		e.mu.Lock()
		e.balance = 0
		e.activity = nil
		e.mu.Unlock()
	}

	if e.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.publisher.PublishSession(ctx, nats.FromSession(s)); err != nil {
			e.logger.Warn("failed to publish session event", "error", err)
		}
	}
}

// handleActivity receives each successful history poll.
func (e *Engine) handleActivity(address string, entries []solana.ActivityEntry) {
	e.mu.Lock()
	e.activity = entries
	e.mu.Unlock()

	if e.publisher != nil {
		events := make([]*nats.ActivityEvent, len(entries))
		for i, entry := range entries {
			events[i] = nats.FromActivityEntry(address, entry)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.publisher.PublishActivity(ctx, events); err != nil {
			e.logger.Warn("failed to publish activity events", "error", err)
		}
	}
}

// balanceLoop refreshes the connected wallet's balance on an interval.
func (e *Engine) balanceLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.BalanceRefreshInterval)
	defer ticker.Stop()

	e.refreshBalance(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.refreshBalance(ctx)
		}
	}
}

func (e *Engine) refreshBalance(ctx context.Context) {
	snap := e.manager.Snapshot()
	if snap.Status != session.StatusConnected {
		return
	}

	lamports, err := e.chain.Balance(ctx, snap.Address)
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordBalanceRefresh("error")
		}
		e.logger.WarnContext(ctx, "balance refresh failed",
			"address", snap.Address,
			"error", err,
		)
		return
	}
	if e.metrics != nil {
		e.metrics.RecordBalanceRefresh("success")
	}

	e.mu.Lock()
	e.balance = lamports
	e.mu.Unlock()
}

// DarkMode reads the persisted theme preference.
func (e *Engine) DarkMode() bool {
	dark, _ := e.store.LoadDarkMode()
	return dark
}

// SetDarkMode persists the theme preference.
func (e *Engine) SetDarkMode(enabled bool) {
	e.store.SaveDarkMode(enabled)
}
