package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/agentiq/crm-engine/internal/model"
)

const jobColumns = `id, org_id, name, status, input, total_items, completed_items, failed_items, credits_used, cancel_requested, error_message, created_at, started_at, updated_at, completed_at`

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var name, errMsg *string
	var inputJSON []byte

	err := row.Scan(&j.ID, &j.OrgID, &name, &j.Status, &inputJSON,
		&j.TotalItems, &j.CompletedItems, &j.FailedItems, &j.CreditsUsed,
		&j.CancelRequested, &errMsg, &j.CreatedAt, &j.StartedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}

	if name != nil {
		j.Name = *name
	}
	if errMsg != nil {
		j.ErrorMessage = *errMsg
	}
	if err := json.Unmarshal(inputJSON, &j.Input); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job input")
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, orgID, name string, input model.JobInput) (*model.Job, error) {
	if len(input.Companies) == 0 {
		return nil, eris.New("postgres: job needs at least one company")
	}

	id := uuid.New().String()
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal job input")
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, org_id, name, status, input, total_items)
		 VALUES ($1, $2, NULLIF($3, ''), 'queued', $4, $5)
		 RETURNING `+jobColumns,
		id, orgID, name, inputJSON, len(input.Companies),
	)

	job, err := scanJob(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return job, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE true`
	args := []any{}

	if filter.OrgID != "" {
		args = append(args, filter.OrgID)
		query += fmt.Sprintf(` AND org_id = $%d`, len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) ClaimQueuedJob(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE jobs SET status = 'running', started_at = now(), updated_at = now()
		 WHERE id = (
		   SELECT id FROM jobs WHERE status = 'queued'
		   ORDER BY created_at LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: claim queued job")
	}
	return job, nil
}

func (s *PostgresStore) StartJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'running', started_at = now(), updated_at = now()
		 WHERE id = $1 AND status = 'queued'`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not claimable (missing or not queued): %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RequestCancel(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET cancel_requested = true, updated_at = now()
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: request cancel %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not cancellable (missing or already terminal): %s", jobID)
	}
	return nil
}

func (s *PostgresStore) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	var cancel bool
	err := s.pool.QueryRow(ctx,
		`SELECT cancel_requested FROM jobs WHERE id = $1`, jobID,
	).Scan(&cancel)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: get cancel flag %s", jobID)
	}
	return cancel, nil
}

func (s *PostgresStore) IncrementJobProgress(ctx context.Context, jobID string, failed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET completed_items = completed_items + 1,
		   failed_items = failed_items + CASE WHEN $2 THEN 1 ELSE 0 END,
		   credits_used = credits_used + 1,
		   updated_at = now()
		 WHERE id = $1`,
		jobID, failed,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: finish job with non-terminal status %s", status)
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error_message = NULLIF($3, ''),
		   completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('queued', 'running')`,
		jobID, string(status), errMsg,
	)
	return eris.Wrapf(err, "postgres: finish job %s", jobID)
}

func (s *PostgresStore) RecordResult(ctx context.Context, result *model.EnrichmentResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}

	var profileJSON []byte
	if result.Profile != nil {
		var err error
		profileJSON, err = json.Marshal(result.Profile)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal profile")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_results
		   (id, job_id, org_id, input_name, input_website, profile, status, error_message, model_used, tokens_used, tool_calls, processing_ms, enriched_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12, now())`,
		result.ID, result.JobID, result.OrgID, result.InputName, result.InputWebsite,
		profileJSON, string(result.Status), result.ErrorMessage, result.ModelUsed,
		result.TokensUsed, result.ToolCalls, result.ProcessingMS,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return eris.Wrapf(err, "postgres: record result for %s", result.InputName)
	}
	return nil
}

func (s *PostgresStore) ListResults(ctx context.Context, jobID string) ([]model.EnrichmentResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, org_id, input_name, input_website, profile, status, error_message, model_used, tokens_used, tool_calls, processing_ms, enriched_at
		 FROM enrichment_results WHERE job_id = $1 ORDER BY enriched_at`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var results []model.EnrichmentResult
	for rows.Next() {
		var r model.EnrichmentResult
		var jobIDNull, website, errMsg, modelUsed *string
		var profileJSON []byte

		if err := rows.Scan(&r.ID, &jobIDNull, &r.OrgID, &r.InputName, &website,
			&profileJSON, &r.Status, &errMsg, &modelUsed,
			&r.TokensUsed, &r.ToolCalls, &r.ProcessingMS, &r.EnrichedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		if jobIDNull != nil {
			r.JobID = *jobIDNull
		}
		if website != nil {
			r.InputWebsite = *website
		}
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		if modelUsed != nil {
			r.ModelUsed = *modelUsed
		}
		if len(profileJSON) > 0 {
			r.Profile = &model.CompanyProfile{}
			if err := json.Unmarshal(profileJSON, r.Profile); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal profile")
			}
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

func (s *PostgresStore) InsertUsageLog(ctx context.Context, log *model.UsageLog) error {
	var extraJSON []byte
	if log.Extra != nil {
		var err error
		extraJSON, err = json.Marshal(log.Extra)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal usage extra")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_logs (org_id, job_id, action, credits_consumed, tokens_used, model_used, extra)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, NULLIF($6, ''), $7)`,
		log.OrgID, log.JobID, log.Action, log.CreditsConsumed, log.TokensUsed, log.ModelUsed, extraJSON,
	)
	return eris.Wrap(err, "postgres: insert usage log")
}
