package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/soldash/soldash/service/metrics"
	"github.com/soldash/soldash/service/solana"
)

// ActivityFetcher fetches recent transaction activity for an address.
// solana.Client satisfies this.
type ActivityFetcher interface {
	RecentActivity(ctx context.Context, address string, limit int) ([]solana.ActivityEntry, error)
}

// Poller periodically fetches recent activity for the tracked address and
// hands each batch to the OnActivity callback. Exactly one polling loop runs
// at a time; SetAddress replaces the tracked address and restarts the loop,
// and an empty address stops polling entirely.
type Poller struct {
	fetcher  ActivityFetcher
	interval time.Duration
	timeout  time.Duration
	limit    int
	logger   *slog.Logger
	metrics  *metrics.Metrics // optional

	// OnActivity receives each successfully fetched batch. Set before the
	// first SetAddress call; not guarded afterwards.
	OnActivity func(address string, entries []solana.ActivityEntry)

	mu      sync.Mutex
	address string
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewPoller creates a history poller. The loop starts on the first
// SetAddress call with a non-empty address.
func NewPoller(fetcher ActivityFetcher, interval, timeout time.Duration, limit int, m *metrics.Metrics, logger *slog.Logger) *Poller {
	return &Poller{
		fetcher:  fetcher,
		interval: interval,
		timeout:  timeout,
		limit:    limit,
		logger:   logger,
		metrics:  m,
	}
}

// SetAddress changes the tracked address. The previous loop is cancelled and
// fully drained before any new loop starts, so a batch for a stale address
// is never delivered after this returns. An empty address just stops.
func (p *Poller) SetAddress(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if address == p.address {
		return
	}
	p.stopLocked()
	p.address = address

	if address == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(ctx, address, done)
}

// Stop cancels the polling loop and waits for it to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.address = ""
}

// stopLocked cancels the current loop and waits for it. Callers hold p.mu;
// the loop never takes the lock, so waiting here cannot deadlock.
func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

func (p *Poller) loop(ctx context.Context, address string, done chan struct{}) {
	defer close(done)

	// First fetch immediately, then on the interval.
	p.poll(ctx, address)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, address)
		}
	}
}

func (p *Poller) poll(ctx context.Context, address string) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	entries, err := p.fetcher.RecentActivity(ctx, address, p.limit)
	if err != nil {
		p.recordPoll("error", time.Since(start))
		// Transient RPC failures are expected; keep the previous batch and
		// try again next tick.
		p.logger.WarnContext(ctx, "history poll failed",
			"address", address,
			"error", err,
		)
		return
	}
	p.recordPoll("success", time.Since(start))

	p.logger.DebugContext(ctx, "history poll completed",
		"address", address,
		"entries", len(entries),
	)

	if ctx.Err() == nil && p.OnActivity != nil {
		p.OnActivity(address, entries)
	}
}

func (p *Poller) recordPoll(status string, duration time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordHistoryPoll(status, duration.Seconds())
}
