package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// tickFunc is one worker's unit of periodic work.
type tickFunc func(ctx context.Context) error

// TickWorker runs a tickFunc on its own interval until stopped, immediately
// on startup and then on every tick thereafter. The same run-loop shape
// backs the accrual engine, the obligation timer sweep, and the
// collateral monitor, since none of the three differ in anything but what
// they tick.
type TickWorker struct {
	name     string
	interval time.Duration
	tick     tickFunc
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewTickWorker(name string, interval time.Duration, tick tickFunc, logger zerolog.Logger) *TickWorker {
	return &TickWorker{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger.With().Str("component", name).Logger(),
	}
}

// Start begins the background loop. A no-op if already running.
func (w *TickWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info().Dur("interval", w.interval).Msg("starting worker")
	go w.run(ctx)
}

// Stop blocks until the loop has exited. A no-op if not running.
func (w *TickWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
	w.logger.Info().Msg("worker stopped")
}

func (w *TickWorker) run(ctx context.Context) {
	w.mu.Lock()
	doneCh := w.doneCh
	stopCh := w.stopCh
	w.mu.Unlock()
	defer close(doneCh)

	w.runOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-stopCh:
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *TickWorker) runOnce(ctx context.Context) {
	start := time.Now()
	if err := w.tick(ctx); err != nil {
		w.logger.Error().Err(err).Msg("tick failed")
		return
	}
	w.logger.Debug().Dur("elapsed", time.Since(start)).Msg("tick completed")
}

// IsRunning reports whether the worker's loop is active.
func (w *TickWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// NewAccrualWorker ticks the interest accrual engine's RunDueCycles at the
// configured poll interval.
func NewAccrualWorker(engine *InterestAccrualEngine, interval time.Duration, logger zerolog.Logger) *TickWorker {
	return NewTickWorker("accrual_worker", interval, engine.RunDueCycles, logger)
}

// NewObligationTimerWorker ticks ObligationService.AdvanceTimers at the
// configured poll interval.
func NewObligationTimerWorker(svc *ObligationService, interval time.Duration, logger zerolog.Logger) *TickWorker {
	return NewTickWorker("obligation_timer_worker", interval, func(ctx context.Context) error {
		return svc.AdvanceTimers(ctx, time.Now().UTC())
	}, logger)
}

// NewCollateralMonitorWorker ticks CollateralMonitor.Tick at the configured
// poll interval.
func NewCollateralMonitorWorker(monitor *CollateralMonitor, interval time.Duration, logger zerolog.Logger) *TickWorker {
	return NewTickWorker("collateral_monitor_worker", interval, monitor.Tick, logger)
}
