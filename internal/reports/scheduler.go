package reports

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// SummaryRefresher keeps the dashboard aggregate warm on a fixed cadence
// so overview cards never trigger the aggregation query on the hot path.
type SummaryRefresher struct {
	cron     *cron.Cron
	service  *Service
	schedule string
	logger   *zap.Logger
	mu       sync.Mutex
	running  bool
}

// NewSummaryRefresher creates a refresher with the given cron schedule.
// An empty schedule defaults to once a minute.
func NewSummaryRefresher(service *Service, schedule string, logger *zap.Logger) *SummaryRefresher {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &SummaryRefresher{
		cron:     cron.New(),
		service:  service,
		schedule: schedule,
		logger:   logger,
	}
}

// Start begins the refresh loop and primes the cache once immediately
func (r *SummaryRefresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("summary refresher already running")
	}

	_, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.service.RefreshSummary(ctx); err != nil {
			r.logger.Warn("Dashboard summary refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", r.schedule, err)
	}

	if _, err := r.service.RefreshSummary(ctx); err != nil {
		r.logger.Warn("Initial dashboard summary refresh failed", zap.Error(err))
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("Summary refresher started", zap.String("schedule", r.schedule))
	return nil
}

// Stop halts the refresh loop
func (r *SummaryRefresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	r.cron.Stop()
	r.running = false
}
