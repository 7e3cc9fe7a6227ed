// Package worker polls the store for claimable work and fans it out to
// the job and campaign runners. Ownership lives entirely in the store's
// claim statements, so any number of workers can run side by side.
package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

// Config bounds the worker's polling and concurrency.
type Config struct {
	// MaxConcurrentRuns caps jobs and campaigns in flight at once.
	MaxConcurrentRuns int
	// PollInterval is how long to sleep when no work was claimable.
	PollInterval time.Duration
	// CampaignLease is the heartbeat age after which a running campaign
	// is considered orphaned and may be picked up.
	CampaignLease time.Duration
}

// JobRunner runs one claimed job to a terminal status.
type JobRunner interface {
	Run(ctx context.Context, job *model.Job) (model.JobStatus, error)
}

// CampaignRunner drives one running campaign.
type CampaignRunner interface {
	Run(ctx context.Context, campaignID string) (model.CampaignStatus, error)
}

// Worker is the background claim-and-run loop.
type Worker struct {
	store     store.Store
	jobs      JobRunner
	campaigns CampaignRunner
	cfg       Config
}

// New creates a worker. A nil campaigns runner disables campaign claims
// (the worker has no mail transport); another worker's lease claim will
// pick those up. Zero config fields get conservative defaults.
func New(st store.Store, jobs JobRunner, campaigns CampaignRunner, cfg Config) *Worker {
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.CampaignLease <= 0 {
		cfg.CampaignLease = 2 * time.Minute
	}
	return &Worker{store: st, jobs: jobs, campaigns: campaigns, cfg: cfg}
}

// Run polls until the context is cancelled, then waits for in-flight
// runs to wind down. Runner failures are logged, never fatal to the
// loop: the store already holds the failed run's terminal state, or the
// sweeper will.
func (w *Worker) Run(ctx context.Context) error {
	zap.L().Info("worker started",
		zap.Int("max_concurrent_runs", w.cfg.MaxConcurrentRuns),
		zap.Duration("poll_interval", w.cfg.PollInterval),
	)

	var g errgroup.Group
	g.SetLimit(w.cfg.MaxConcurrentRuns)

	for {
		if ctx.Err() != nil {
			break
		}

		claimed := w.claimOnce(ctx, &g)

		if !claimed {
			timer := time.NewTimer(w.cfg.PollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}

	zap.L().Info("worker draining in-flight runs")
	_ = g.Wait()
	zap.L().Info("worker stopped")
	return ctx.Err()
}

// claimOnce tries to claim one job and one campaign, scheduling each on
// the group. Reports whether anything was claimed.
func (w *Worker) claimOnce(ctx context.Context, g *errgroup.Group) bool {
	claimed := false

	job, err := w.store.ClaimQueuedJob(ctx)
	if err != nil {
		zap.L().Error("claim job failed", zap.Error(err))
	} else if job != nil {
		claimed = true
		g.Go(func() error {
			status, err := w.jobs.Run(ctx, job)
			if err != nil {
				zap.L().Error("job run failed",
					zap.String("job_id", job.ID),
					zap.String("status", string(status)),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if w.campaigns == nil {
		return claimed
	}

	campaign, err := w.store.ClaimRunningCampaign(ctx, w.cfg.CampaignLease)
	if err != nil {
		zap.L().Error("claim campaign failed", zap.Error(err))
	} else if campaign != nil {
		claimed = true
		g.Go(func() error {
			status, err := w.campaigns.Run(ctx, campaign.ID)
			if err != nil {
				zap.L().Error("campaign run failed",
					zap.String("campaign_id", campaign.ID),
					zap.String("status", string(status)),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	return claimed
}
