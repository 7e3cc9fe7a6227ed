// Package store is the authoritative persistence layer. Runners hold no
// state of their own: every counter update is a single atomic statement,
// every terminal transition is status-guarded, and uniqueness constraints
// are the idempotency authority for processed units.
package store

import (
	"context"
	"time"

	"github.com/agentiq/crm-engine/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	OrgID  string          `json:"org_id,omitempty"`
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing leads.
type LeadFilter struct {
	OrgID  string           `json:"org_id,omitempty"`
	Status model.LeadStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// QueueDepth summarizes outstanding work for the health endpoint.
type QueueDepth struct {
	JobsByStatus      map[string]int `json:"jobs_by_status"`
	CampaignsByStatus map[string]int `json:"campaigns_by_status"`
}

// Store defines the persistence interface for the execution engine.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, orgID, name string, input model.JobInput) (*model.Job, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)
	// ClaimQueuedJob flips the oldest queued job to running and returns
	// it, or nil when the queue is empty. The status flip is the
	// ownership claim.
	ClaimQueuedJob(ctx context.Context) (*model.Job, error)
	// StartJob claims one specific queued job.
	StartJob(ctx context.Context, jobID string) error
	RequestCancel(ctx context.Context, jobID string) error
	IsCancelRequested(ctx context.Context, jobID string) (bool, error)
	// IncrementJobProgress atomically bumps completed_items (and
	// failed_items when failed), charges one credit, and touches
	// updated_at as the run's heartbeat.
	IncrementJobProgress(ctx context.Context, jobID string, failed bool) error
	// FinishJob applies a terminal status. Guarded so a job already
	// terminal is left untouched; finishing twice is a no-op.
	FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error

	// Enrichment results
	// RecordResult inserts one processed unit. A duplicate
	// (job, input name) returns ErrDuplicate — the caller skips the
	// unit without re-incrementing.
	RecordResult(ctx context.Context, result *model.EnrichmentResult) error
	ListResults(ctx context.Context, jobID string) ([]model.EnrichmentResult, error)
	InsertUsageLog(ctx context.Context, log *model.UsageLog) error

	// Campaigns
	CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error)
	// AddCampaignLeads attaches leads as pending rows, skipping pairs
	// already attached, and returns how many were added.
	AddCampaignLeads(ctx context.Context, campaignID string, leadIDs []string) (int, error)
	StartCampaign(ctx context.Context, campaignID string) error
	PauseCampaign(ctx context.Context, campaignID string) error
	FinishCampaign(ctx context.Context, campaignID string, status model.CampaignStatus, errMsg string) error
	// ClaimRunningCampaign picks up a running campaign whose heartbeat
	// is older than lease, so exactly one worker drives it at a time.
	ClaimRunningCampaign(ctx context.Context, lease time.Duration) (*model.Campaign, error)
	NextPendingLead(ctx context.Context, campaignID string) (*model.CampaignLead, error)
	CountPendingLeads(ctx context.Context, campaignID string) (int, error)
	MarkCampaignLeadSent(ctx context.Context, campaignLeadID string) error
	MarkCampaignLeadFailed(ctx context.Context, campaignLeadID, errMsg string) error
	IncrementCampaignProgress(ctx context.Context, campaignID string, failed bool) error

	// Leads
	CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, leadID string) (*model.Lead, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error)
	ImportLeads(ctx context.Context, leads []model.Lead) (int64, error)
	// MarkLeadContacted applies the one-way new → contacted transition;
	// leads already past new are never regressed.
	MarkLeadContacted(ctx context.Context, leadID string) error

	// Audit
	InsertEmailLog(ctx context.Context, log *model.EmailLog) error
	InsertConversation(ctx context.Context, conv *model.Conversation) error

	// Recovery
	SweepStaleJobs(ctx context.Context, olderThan time.Duration) (int, error)
	SweepStaleCampaigns(ctx context.Context, olderThan time.Duration) (int, error)
	GetQueueDepth(ctx context.Context) (*QueueDepth, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
