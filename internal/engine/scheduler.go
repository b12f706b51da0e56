package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sproutgrid/greenhouse-engine/internal/domain"
)

// DeviceLister enumerates the devices to evaluate each tick.
type DeviceLister interface {
	ListActiveDevices(ctx context.Context) ([]domain.Device, error)
}

// TickReporter receives the summary of a completed tick (report export).
type TickReporter interface {
	ReportTick(ctx context.Context, summary TickSummary) error
}

// TickSummary aggregates one pass over all active devices.
type TickSummary struct {
	StartedAt        time.Time     `json:"startedAt"`
	Duration         time.Duration `json:"duration"`
	DevicesEvaluated int           `json:"devicesEvaluated"`
	DevicesSkipped   int           `json:"devicesSkipped"`
	AlertsRaised     int           `json:"alertsRaised"`
	AlertsCleared    int           `json:"alertsCleared"`
	Recommendations  int           `json:"recommendations"`
	SkippedDevices   []string      `json:"skippedDevices,omitempty"`
}

// Scheduler drives one full evaluation pass per tick interval. Devices
// run concurrently under a bounded worker limit; each carries its own
// deadline so one slow store cannot stall the tick.
type Scheduler struct {
	engine        *Engine
	lister        DeviceLister
	reporter      TickReporter
	interval      time.Duration
	workers       int
	deviceTimeout time.Duration
	log           zerolog.Logger
}

// NewScheduler builds a Scheduler. reporter may be nil.
func NewScheduler(eng *Engine, lister DeviceLister, reporter TickReporter, interval time.Duration, workers int, deviceTimeout time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if workers <= 0 {
		workers = 8
	}
	if deviceTimeout <= 0 {
		deviceTimeout = 30 * time.Second
	}
	return &Scheduler{
		engine:        eng,
		lister:        lister,
		reporter:      reporter,
		interval:      interval,
		workers:       workers,
		deviceTimeout: deviceTimeout,
		log:           log,
	}
}

// Run ticks until the context is cancelled. The first pass starts
// immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Tick(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-ticker.C:
			s.Tick(ctx, t.UTC())
		}
	}
}

// Tick evaluates every active device once. A failing device is logged
// and retried next tick; it never aborts the pass.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickSummary {
	summary := TickSummary{StartedAt: now}
	devices, err := s.lister.ListActiveDevices(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("device listing failed; tick skipped")
		return summary
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, dev := range devices {
		g.Go(func() error {
			dctx, cancel := context.WithTimeout(gctx, s.deviceTimeout)
			defer cancel()
			eval, err := s.engine.EvaluateDevice(dctx, dev, now)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.DevicesSkipped++
				summary.SkippedDevices = append(summary.SkippedDevices, dev.ID)
				s.log.Error().Err(err).Str("device", dev.ID).Msg("device evaluation skipped")
				return nil
			}
			summary.DevicesEvaluated++
			summary.Recommendations += len(eval.Recommendations)
			for _, out := range eval.Alerts {
				switch out.Decision {
				case "raised":
					summary.AlertsRaised++
				case "cleared":
					summary.AlertsCleared++
				}
			}
			return nil
		})
	}
	g.Wait()
	summary.Duration = time.Since(now)

	s.log.Info().
		Int("evaluated", summary.DevicesEvaluated).
		Int("skipped", summary.DevicesSkipped).
		Int("raised", summary.AlertsRaised).
		Int("cleared", summary.AlertsCleared).
		Int("recommendations", summary.Recommendations).
		Dur("took", summary.Duration).
		Msg("evaluation tick complete")

	if s.reporter != nil {
		if err := s.reporter.ReportTick(ctx, summary); err != nil {
			s.log.Error().Err(err).Msg("tick report export failed")
		}
	}
	return summary
}
