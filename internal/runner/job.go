// Package runner drives jobs and campaigns through their state machines.
// The store is the only authoritative state; a runner crash at any point
// leaves a resumable or sweepable record, never a corrupted one.
package runner

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/agent"
	"github.com/agentiq/crm-engine/internal/governor"
	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

// Enricher produces a profile for one company. Satisfied by *agent.Agent.
type Enricher interface {
	Enrich(ctx context.Context, companyName, websiteHint string) (*model.CompanyProfile, *agent.Outcome, error)
}

// JobConfig bounds a job run.
type JobConfig struct {
	// Budget is the wall-clock limit for one run; exhausted budget ends
	// the job partial. Zero means unlimited.
	Budget time.Duration
	// CreditLimit fails the job once credits_used reaches it. Zero means
	// unlimited.
	CreditLimit int
	// RatePerMin paces each run's units. Non-positive falls back to 10.
	RatePerMin float64
}

// JobRunner executes one claimed job at a time, unit by unit.
type JobRunner struct {
	store    store.Store
	enricher Enricher
	cfg      JobConfig
}

// NewJobRunner creates a job runner.
func NewJobRunner(st store.Store, enricher Enricher, cfg JobConfig) *JobRunner {
	return &JobRunner{store: st, enricher: enricher, cfg: cfg}
}

// Run processes every unit of an already-claimed job and applies the
// terminal status. Per-unit failures are recorded and the run continues;
// only store failures, credit exhaustion, and context cancellation stop
// it early. Returns the job's terminal status.
func (r *JobRunner) Run(ctx context.Context, job *model.Job) (model.JobStatus, error) {
	log := zap.L().With(zap.String("job_id", job.ID), zap.String("org_id", job.OrgID))
	log.Info("job started",
		zap.Int("total_items", job.TotalItems),
		zap.Int("already_completed", job.CompletedItems),
	)

	// Each run paces off its own governor, so concurrent jobs on one
	// runner never steal each other's admissions.
	rate := r.cfg.RatePerMin
	if rate <= 0 {
		rate = 10
	}
	gov, err := governor.New(rate)
	if err != nil {
		return job.Status, err
	}

	var deadline time.Time
	if r.cfg.Budget > 0 {
		deadline = time.Now().Add(r.cfg.Budget)
	}

	creditsUsed := job.CreditsUsed

	for i, company := range job.Input.Companies {
		// Cancellation and budget are observed only at unit boundaries;
		// an in-flight unit always completes and is recorded.
		if err := ctx.Err(); err != nil {
			// Process shutdown. The job stays running and is either
			// resumed or recovered by the sweeper.
			return job.Status, err
		}

		cancelled, err := r.store.IsCancelRequested(ctx, job.ID)
		if err != nil {
			return r.fail(ctx, job.ID, "store unreachable: "+err.Error())
		}
		if cancelled {
			log.Info("job cancelled", zap.Int("units_done", i))
			if err := r.store.FinishJob(ctx, job.ID, model.JobStatusCancelled, "cancelled by user"); err != nil {
				return model.JobStatusCancelled, err
			}
			return model.JobStatusCancelled, nil
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Warn("job time budget exhausted", zap.Int("units_done", i))
			if err := r.store.FinishJob(ctx, job.ID, model.JobStatusPartial, "time budget exhausted"); err != nil {
				return model.JobStatusPartial, err
			}
			return model.JobStatusPartial, nil
		}

		if r.cfg.CreditLimit > 0 && creditsUsed >= r.cfg.CreditLimit {
			log.Warn("job credit limit exhausted", zap.Int("credits_used", creditsUsed))
			return r.fail(ctx, job.ID, "credit limit exhausted")
		}

		consumed, err := r.processUnit(ctx, job, company, log)
		if err != nil {
			return r.fail(ctx, job.ID, err.Error())
		}
		if consumed {
			creditsUsed++
		}

		if i < len(job.Input.Companies)-1 {
			if err := gov.Wait(ctx); err != nil {
				return job.Status, err
			}
		}
	}

	log.Info("job completed")
	if err := r.store.FinishJob(ctx, job.ID, model.JobStatusCompleted, ""); err != nil {
		return model.JobStatusCompleted, err
	}
	return model.JobStatusCompleted, nil
}

// processUnit enriches one company and records the outcome. The returned
// bool reports whether the unit consumed a credit; a unit recorded by an
// earlier attempt of this job does not. The error is reserved for
// store-level problems that are fatal to the run.
func (r *JobRunner) processUnit(ctx context.Context, job *model.Job, company string, log *zap.Logger) (bool, error) {
	hint := job.Input.Websites[company]

	profile, outcome, enrichErr := r.enricher.Enrich(ctx, company, hint)

	result := &model.EnrichmentResult{
		JobID:        job.ID,
		OrgID:        job.OrgID,
		InputName:    company,
		InputWebsite: hint,
		Status:       model.ResultStatusCompleted,
	}
	if outcome != nil {
		result.ModelUsed = outcome.ModelUsed
		result.TokensUsed = int(outcome.TokensUsed)
		result.ToolCalls = outcome.ToolCalls
		result.ProcessingMS = int(outcome.ProcessingMS)
	}

	unitFailed := false
	if enrichErr != nil {
		if errors.Is(enrichErr, context.Canceled) || errors.Is(enrichErr, context.DeadlineExceeded) {
			return false, enrichErr
		}
		// Parse failures and exhausted provider retries are per-unit
		// outcomes; the failed unit is recorded and the run continues.
		unitFailed = true
		result.Status = model.ResultStatusFailed
		result.ErrorMessage = enrichErr.Error()
		log.Warn("unit failed", zap.String("company", company), zap.Error(enrichErr))
	} else {
		result.Profile = profile
	}

	if err := r.store.RecordResult(ctx, result); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Already recorded by an earlier attempt of this job; the
			// counters were bumped then, so skip without re-incrementing.
			log.Info("unit already recorded, skipping", zap.String("company", company))
			return false, nil
		}
		return false, err
	}

	if err := r.store.IncrementJobProgress(ctx, job.ID, unitFailed); err != nil {
		return false, err
	}

	usage := &model.UsageLog{
		OrgID:           job.OrgID,
		JobID:           job.ID,
		Action:          "enrichment",
		CreditsConsumed: 1,
		TokensUsed:      result.TokensUsed,
		ModelUsed:       result.ModelUsed,
		Extra: map[string]any{
			"company":       company,
			"status":        string(result.Status),
			"tool_calls":    result.ToolCalls,
			"processing_ms": result.ProcessingMS,
		},
	}
	if err := r.store.InsertUsageLog(ctx, usage); err != nil {
		return false, err
	}

	return true, nil
}

func (r *JobRunner) fail(ctx context.Context, jobID, msg string) (model.JobStatus, error) {
	if err := r.store.FinishJob(ctx, jobID, model.JobStatusFailed, msg); err != nil {
		zap.L().Error("failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
	return model.JobStatusFailed, errors.New(msg)
}
