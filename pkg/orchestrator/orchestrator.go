// Package orchestrator schedules the scoring -> windowing -> meta-analysis
// -> alerting pipeline on a fixed interval, one tick at a time, across
// every monitored system (§4.9).
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/codeready-toolchain/sentinel/pkg/alert"
	"github.com/codeready-toolchain/sentinel/pkg/config"
	"github.com/codeready-toolchain/sentinel/pkg/lease"
	"github.com/codeready-toolchain/sentinel/pkg/meta"
	"github.com/codeready-toolchain/sentinel/pkg/scorer"
	"github.com/codeready-toolchain/sentinel/pkg/store"
	"github.com/codeready-toolchain/sentinel/pkg/telemetry"
	"github.com/codeready-toolchain/sentinel/pkg/window"
)

// Orchestrator runs the pipeline on a ticker, one tick at a time
// (running guarded by a mutex so a slow tick never overlaps the next).
type Orchestrator struct {
	store     *store.Store
	cfg       *config.Config
	scorer    *scorer.Scorer
	windower  *window.Windower
	analyser  *meta.Analyser
	evaluator *alert.Evaluator
	leases    *lease.Manager
	metrics   *telemetry.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// New builds an Orchestrator wiring every pipeline stage over store.
func New(s *store.Store, cfg *config.Config, sc *scorer.Scorer, w *window.Windower, an *meta.Analyser, ev *alert.Evaluator, leases *lease.Manager, metrics *telemetry.Metrics) *Orchestrator {
	return &Orchestrator{
		store:     s,
		cfg:       cfg,
		scorer:    sc,
		windower:  w,
		analyser:  an,
		evaluator: ev,
		leases:    leases,
		metrics:   metrics,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the ticker loop in a background goroutine. Safe to
// call once; a second call is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		slog.Warn("orchestrator already started, ignoring duplicate Start call")
		return
	}
	o.running = true
	o.mu.Unlock()

	interval := o.cfg.Pipeline.OrchestratorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	slog.Info("starting orchestrator", "interval", interval)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-ticker.C:
				o.tick(ctx)
			}
		}
	}()
}

// Stop signals the ticker loop to exit and waits for the current tick
// to finish.
func (o *Orchestrator) Stop() {
	slog.Info("stopping orchestrator")
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
	slog.Info("orchestrator stopped")
}

// tick re-reads pipeline config overrides (§6.4), then runs scoring,
// windowing, meta-analysis, and alert evaluation for every monitored
// system in turn, each guarded by that system's partition lease.
func (o *Orchestrator) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if o.metrics != nil {
			o.metrics.OrchestratorTickDuration.Observe(time.Since(start).Seconds())
		}
	}()

	var override config.PipelineConfig
	if err := o.store.AppConfig.Get(ctx, "pipeline", &override); err == nil {
		o.cfg.Pipeline = &override
	}

	systems, err := o.store.Systems.ListSystems(ctx)
	if err != nil {
		slog.Error("orchestrator: list systems failed", "error", err)
		return
	}

	now := time.Now()
	for _, sys := range systems {
		o.runSystem(ctx, sys.ID, now)
	}
}

func (o *Orchestrator) runSystem(ctx context.Context, systemID string, now time.Time) {
	if o.leases != nil {
		l, ok, err := o.leases.Acquire(ctx, systemID, 5*time.Minute)
		if err != nil {
			slog.Error("orchestrator: lease acquire failed", "system_id", systemID, "error", err)
			return
		}
		if !ok {
			slog.Debug("orchestrator: system lease held elsewhere, skipping", "system_id", systemID)
			return
		}
		defer func() {
			if err := l.Release(ctx); err != nil {
				slog.Warn("orchestrator: lease release failed", "system_id", systemID, "error", err)
			}
		}()
	}

	if err := o.scorer.Run(ctx, systemID); err != nil {
		slog.Error("orchestrator: scoring failed", "system_id", systemID, "error", err)
	}

	windowSize := time.Duration(o.cfg.Pipeline.WindowMinutes) * time.Minute
	if _, err := o.windower.Advance(ctx, systemID, windowSize, now, o.cfg.Pipeline.MaxEventsPerWindow); err != nil {
		slog.Error("orchestrator: windowing failed", "system_id", systemID, "error", err)
	}

	if err := o.analyser.RunSystem(ctx, systemID); err != nil {
		slog.Error("orchestrator: meta-analysis failed", "system_id", systemID, "error", err)
	}

	if err := o.evaluator.Run(ctx, systemID, now); err != nil {
		slog.Error("orchestrator: alert evaluation failed", "system_id", systemID, "error", err)
	}
}
