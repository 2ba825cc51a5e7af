package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/hazelgrove/moodsync/internal/logging"
)

// Monitor derives an online/offline signal from a periodic probe of the
// remote store and fires onOnline on every offline-to-online transition.
// The first probe only establishes the baseline.
type Monitor struct {
	probe    func(ctx context.Context) error
	interval time.Duration
	onOnline func(ctx context.Context)
	logger   *logging.Logger

	mu     sync.Mutex
	probed bool
	online bool
}

func NewMonitor(probe func(ctx context.Context) error, interval time.Duration, onOnline func(ctx context.Context), logger *logging.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		interval: interval,
		onOnline: onOnline,
		logger:   logger,
	}
}

// Online reports the last observed reachability state.
func (monitor *Monitor) Online() bool {
	monitor.mu.Lock()
	defer monitor.mu.Unlock()
	return monitor.online
}

// Start probes until ctx is cancelled.
func (monitor *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(monitor.interval)
		defer ticker.Stop()

		monitor.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				monitor.Check(ctx)
			}
		}
	}()
}

// Check runs one probe and handles the resulting transition, if any.
func (monitor *Monitor) Check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, monitor.interval)
	err := monitor.probe(probeCtx)
	cancel()
	nowOnline := err == nil

	monitor.mu.Lock()
	wasProbed := monitor.probed
	wasOnline := monitor.online
	monitor.probed = true
	monitor.online = nowOnline
	monitor.mu.Unlock()

	if !wasProbed {
		return
	}
	if nowOnline && !wasOnline {
		monitor.logger.Info("remote store reachable again, refetching active queries")
		monitor.onOnline(ctx)
	}
	if !nowOnline && wasOnline {
		monitor.logger.Warn("remote store unreachable, continuing offline", "error", err)
	}
}
