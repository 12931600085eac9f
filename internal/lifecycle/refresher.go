package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Refresher drives the periodic full-list refresh: pull new pending tasks
// from the remote store and mirror tracker state onto sent tasks.
type Refresher struct {
	service  *Service
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher creates a refresher running at the given interval.
func NewRefresher(service *Service, interval time.Duration, logger *zap.Logger) *Refresher {
	return &Refresher{
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// Start runs the refresh loop until the context is canceled. An immediate
// refresh precedes the ticker so surfaces have data on boot.
func (r *Refresher) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping task refresher")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	added, err := r.service.SyncTasks(ctx)
	if err != nil {
		r.logger.Error("task refresh failed", zap.Error(err))
		return
	}
	if added > 0 {
		r.logger.Info("pulled new tasks", zap.Int("added", added))
	}
}
