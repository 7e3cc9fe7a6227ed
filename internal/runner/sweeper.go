package runner

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/store"
)

// Sweeper recovers work abandoned by crashed runners. A run whose
// heartbeat (updated_at) has not moved for the staleness window is not
// coming back: jobs with no progress become failed, jobs with partial
// progress become partial, and running campaigns become failed with
// their pending rows intact for inspection.
type Sweeper struct {
	store     store.Store
	staleness time.Duration
}

// NewSweeper creates a sweeper. staleness below one minute is clamped to
// the two-hour default to keep a slow-but-alive run from being stolen.
func NewSweeper(st store.Store, staleness time.Duration) *Sweeper {
	if staleness < time.Minute {
		staleness = 2 * time.Hour
	}
	return &Sweeper{store: st, staleness: staleness}
}

// Sweep runs one recovery pass and returns how many records it touched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	jobs, err := s.store.SweepStaleJobs(ctx, s.staleness)
	if err != nil {
		return 0, err
	}
	campaigns, err := s.store.SweepStaleCampaigns(ctx, s.staleness)
	if err != nil {
		return jobs, err
	}

	if jobs+campaigns > 0 {
		zap.L().Info("swept stale work",
			zap.Int("jobs", jobs),
			zap.Int("campaigns", campaigns),
			zap.Duration("staleness", s.staleness),
		)
	}
	return jobs + campaigns, nil
}

// Loop sweeps on a fixed interval until the context is cancelled.
func (s *Sweeper) Loop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				zap.L().Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}
