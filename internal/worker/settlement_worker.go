// Package worker runs the periodic settlement jobs.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"savings-ledger/internal/core/domain"
	"savings-ledger/internal/core/ports"
)

// Config sets the job cadence. A zero SweepInterval disables the sweep.
type Config struct {
	ScanInterval  time.Duration
	SweepInterval time.Duration
	RunTimeout    time.Duration
}

// SettlementWorker recovers stale batches and scans for users at the
// threshold on every scan tick, and sweeps all pending credits on the slower
// tick.
type SettlementWorker struct {
	engine   ports.SettlementEngine
	cfg      Config
	log      zerolog.Logger
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewSettlementWorker(engine ports.SettlementEngine, cfg Config, log zerolog.Logger) *SettlementWorker {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 5 * time.Minute
	}
	return &SettlementWorker{
		engine: engine,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled.
func (w *SettlementWorker) Start(ctx context.Context) {
	defer close(w.done)
	w.log.Info().
		Dur("scan_interval", w.cfg.ScanInterval).
		Dur("sweep_interval", w.cfg.SweepInterval).
		Msg("starting settlement worker")

	scan := time.NewTicker(w.cfg.ScanInterval)
	defer scan.Stop()

	var sweepC <-chan time.Time
	if w.cfg.SweepInterval > 0 {
		sweep := time.NewTicker(w.cfg.SweepInterval)
		defer sweep.Stop()
		sweepC = sweep.C
	}

	for {
		select {
		case <-scan.C:
			w.scan(ctx)
		case <-sweepC:
			w.sweep(ctx)
		case <-w.stopCh:
			w.log.Info().Msg("stopping settlement worker")
			return
		case <-ctx.Done():
			w.log.Info().Msg("context cancelled, stopping settlement worker")
			return
		}
	}
}

// Stop signals the loop and waits for the current run to finish.
func (w *SettlementWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.done
}

func (w *SettlementWorker) scan(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	// Recover first so released credits are eligible for this scan.
	recovered, err := w.engine.RecoverStale(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("stale settlement recovery failed")
	} else if len(recovered) > 0 {
		w.report("recover", recovered)
	}

	outcomes, err := w.engine.ScanAndSettle(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("scheduled scan failed")
		return
	}
	w.report("scan", outcomes)
}

func (w *SettlementWorker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.RunTimeout)
	defer cancel()

	outcomes, err := w.engine.SweepAll(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("scheduled sweep failed")
		return
	}
	w.report("sweep", outcomes)
}

func (w *SettlementWorker) report(job string, outcomes []domain.SettlementOutcome) {
	var settled, failed int
	var net int64
	for i := range outcomes {
		switch outcomes[i].Status {
		case domain.SettlementStatusSettled:
			settled++
			net += outcomes[i].NetAmount
		case domain.SettlementStatusFailed:
			failed++
		}
	}
	w.log.Info().
		Str("job", job).
		Int("settled", settled).
		Int("failed", failed).
		Int64("net_total", net).
		Msg("settlement job finished")
}
