package alert

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulse-analytics/pulse/internal/core/storage"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 4

// Scheduler evaluates every enabled alert on a fixed interval.
// Each tick lists alerts afresh, so definition changes apply on the next tick.
type Scheduler struct {
	interval time.Duration
	workers  int
	store    storage.AlertStore
	service  *Service
	nowFn    func() time.Time
}

// NewScheduler creates a scheduler that processes up to workers alerts at once.
func NewScheduler(interval time.Duration, workers int, store storage.AlertStore, service *Service) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Scheduler{
		interval: interval,
		workers:  workers,
		store:    store,
		service:  service,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start runs an initial pass, then one pass per tick until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting alert scheduler",
		"interval", s.interval,
		"workers", s.workers,
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// RunOnce evaluates all enabled alerts against a single instant.
// One alert failing does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	alerts, err := s.store.ListEnabledAlerts(ctx)
	if err != nil {
		slog.Error("[Scheduler] Failed to list alerts", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	now := s.nowFn()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	triggered := 0
	results := make([]bool, len(alerts))
	for i, a := range alerts {
		g.Go(func() error {
			res, err := s.service.Process(gctx, a, now)
			if err != nil {
				slog.Error("[Scheduler] Alert evaluation failed",
					"alert_id", a.ID,
					"site_id", a.SiteID,
					"error", err,
				)
				return nil
			}
			results[i] = res.Triggered()
			return nil
		})
	}
	_ = g.Wait()

	for _, fired := range results {
		if fired {
			triggered++
		}
	}
	slog.Debug("[Scheduler] Alert pass complete", "alerts", len(alerts), "triggered", triggered)
}
