package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/agentiq/crm-engine/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot-loop store operations.
var preparedStatements = map[string]string{
	"increment_job_progress": `UPDATE jobs SET completed_items = completed_items + 1, failed_items = failed_items + CASE WHEN $2 THEN 1 ELSE 0 END, credits_used = credits_used + 1, updated_at = now() WHERE id = $1`,
	"is_cancel_requested":    `SELECT cancel_requested FROM jobs WHERE id = $1`,
	"next_pending_lead":      `SELECT id, campaign_id, lead_id, position, status, sent_at, error_message, created_at FROM campaign_leads WHERE campaign_id = $1 AND status = 'pending' ORDER BY position, id LIMIT 1`,
	"mark_lead_sent":         `UPDATE campaign_leads SET status = 'sent', sent_at = now() WHERE id = $1 AND status = 'pending'`,
	"mark_lead_contacted":    `UPDATE leads SET status = 'contacted', last_contacted_at = now() WHERE id = $1 AND status = 'new'`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk lead import).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id           TEXT NOT NULL,
	name             TEXT,
	status           TEXT NOT NULL DEFAULT 'queued',
	input            JSONB NOT NULL,
	total_items      INTEGER NOT NULL,
	completed_items  INTEGER NOT NULL DEFAULT 0,
	failed_items     INTEGER NOT NULL DEFAULT 0,
	credits_used     INTEGER NOT NULL DEFAULT 0,
	cancel_requested BOOLEAN NOT NULL DEFAULT false,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at       TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_org ON jobs(org_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_stale ON jobs(status, updated_at);

CREATE TABLE IF NOT EXISTS enrichment_results (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id        TEXT REFERENCES jobs(id),
	org_id        TEXT NOT NULL,
	input_name    TEXT NOT NULL,
	input_website TEXT,
	profile       JSONB,
	status        TEXT NOT NULL,
	error_message TEXT,
	model_used    TEXT,
	tokens_used   INTEGER NOT NULL DEFAULT 0,
	tool_calls    INTEGER NOT NULL DEFAULT 0,
	processing_ms INTEGER NOT NULL DEFAULT 0,
	enriched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_results_job_company UNIQUE (job_id, input_name)
);

CREATE INDEX IF NOT EXISTS idx_results_job ON enrichment_results(job_id);
CREATE INDEX IF NOT EXISTS idx_results_org ON enrichment_results(org_id, enriched_at DESC);

CREATE TABLE IF NOT EXISTS usage_logs (
	id               BIGSERIAL PRIMARY KEY,
	org_id           TEXT NOT NULL,
	job_id           TEXT,
	action           TEXT NOT NULL,
	credits_consumed INTEGER NOT NULL DEFAULT 0,
	tokens_used      INTEGER NOT NULL DEFAULT 0,
	model_used       TEXT,
	extra            JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_usage_org ON usage_logs(org_id, created_at DESC);

CREATE TABLE IF NOT EXISTS leads (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id            TEXT NOT NULL,
	company_name      TEXT NOT NULL,
	contact_name      TEXT,
	email             TEXT,
	website           TEXT,
	industry          TEXT,
	headquarters      TEXT,
	status            TEXT NOT NULL DEFAULT 'new',
	last_contacted_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_org_status ON leads(org_id, status);

CREATE TABLE IF NOT EXISTS campaigns (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id        TEXT NOT NULL,
	name          TEXT NOT NULL,
	subject       TEXT NOT NULL,
	body_template TEXT NOT NULL,
	from_name     TEXT,
	reply_to      TEXT,
	status        TEXT NOT NULL DEFAULT 'draft',
	send_rate     INTEGER NOT NULL DEFAULT 10,
	total_leads   INTEGER NOT NULL DEFAULT 0,
	sent_count    INTEGER NOT NULL DEFAULT 0,
	failed_count  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns(status, updated_at);

CREATE TABLE IF NOT EXISTS campaign_leads (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	campaign_id   TEXT NOT NULL REFERENCES campaigns(id),
	lead_id       TEXT NOT NULL REFERENCES leads(id),
	position      INTEGER NOT NULL DEFAULT 0,
	status        TEXT NOT NULL DEFAULT 'pending',
	sent_at       TIMESTAMPTZ,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_campaign_lead UNIQUE (campaign_id, lead_id)
);

CREATE INDEX IF NOT EXISTS idx_campaign_leads_pending ON campaign_leads(campaign_id, status, position);

CREATE TABLE IF NOT EXISTS email_logs (
	id           BIGSERIAL PRIMARY KEY,
	org_id       TEXT NOT NULL,
	campaign_id  TEXT,
	lead_id      TEXT,
	to_email     TEXT NOT NULL,
	from_email   TEXT NOT NULL,
	subject      TEXT NOT NULL,
	status       TEXT NOT NULL,
	message_id   TEXT,
	error_detail TEXT,
	sent_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_email_logs_campaign ON email_logs(campaign_id);

CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	org_id     TEXT NOT NULL,
	lead_id    TEXT NOT NULL REFERENCES leads(id),
	channel    TEXT NOT NULL DEFAULT 'email',
	direction  TEXT NOT NULL DEFAULT 'outbound',
	subject    TEXT,
	body       TEXT NOT NULL,
	message_id TEXT,
	sent_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversations_lead ON conversations(lead_id, sent_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SweepStaleJobs force-transitions jobs stuck in queued/running whose
// heartbeat is older than the threshold. Jobs with saved progress become
// partial; the rest become failed. Staleness is judged by updated_at
// only, so an actively-updating run is never touched.
func (s *PostgresStore) SweepStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	secs := olderThan.Seconds()

	failedTag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'failed', error_message = 'run abandoned: no progress for too long, recovered by sweeper',
		     completed_at = now(), updated_at = now()
		 WHERE status IN ('queued', 'running')
		   AND updated_at < now() - make_interval(secs => $1)
		   AND completed_items = 0`,
		secs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep stale jobs to failed")
	}

	partialTag, err := s.pool.Exec(ctx,
		`UPDATE jobs
		 SET status = 'partial', error_message = 'run abandoned mid-flight, recovered by sweeper',
		     completed_at = now(), updated_at = now()
		 WHERE status IN ('queued', 'running')
		   AND updated_at < now() - make_interval(secs => $1)
		   AND completed_items > 0`,
		secs,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep stale jobs to partial")
	}

	return int(failedTag.RowsAffected() + partialTag.RowsAffected()), nil
}

// SweepStaleCampaigns force-fails running campaigns whose heartbeat is
// older than the threshold. Pending rows survive, so a swept campaign
// can be inspected and its remainder re-attached to a new campaign.
func (s *PostgresStore) SweepStaleCampaigns(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns
		 SET status = 'failed', error_message = 'run abandoned: no progress for too long, recovered by sweeper',
		     completed_at = now(), updated_at = now()
		 WHERE status = 'running'
		   AND updated_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: sweep stale campaigns")
	}
	return int(tag.RowsAffected()), nil
}

// GetQueueDepth returns per-status counts of jobs and campaigns.
func (s *PostgresStore) GetQueueDepth(ctx context.Context) (*QueueDepth, error) {
	depth := &QueueDepth{
		JobsByStatus:      map[string]int{},
		CampaignsByStatus: map[string]int{},
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: job queue depth")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job queue depth")
		}
		depth.JobsByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: job queue depth iterate")
	}

	rows, err = s.pool.Query(ctx, `SELECT status, COUNT(*) FROM campaigns GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: campaign queue depth")
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan campaign queue depth")
		}
		depth.CampaignsByStatus[status] = count
	}
	return depth, eris.Wrap(rows.Err(), "postgres: campaign queue depth iterate")
}
