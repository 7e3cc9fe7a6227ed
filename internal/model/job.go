package model

import "time"

// JobStatus represents the current state of an enrichment job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPartial   JobStatus = "partial"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is an end state that no runner
// may transition out of.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusPartial, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobInput holds the submitted company list plus optional website hints
// keyed by company name. Stored as JSONB on the job row.
type JobInput struct {
	Companies []string          `json:"companies"`
	Websites  map[string]string `json:"websites,omitempty"`
}

// Job is a batch enrichment job. The store is authoritative for every
// field here; runners hold no job state of their own.
type Job struct {
	ID              string    `json:"id"`
	OrgID           string    `json:"org_id"`
	Name            string    `json:"name,omitempty"`
	Status          JobStatus `json:"status"`
	Input           JobInput  `json:"input"`
	TotalItems      int       `json:"total_items"`
	CompletedItems  int       `json:"completed_items"`
	FailedItems     int       `json:"failed_items"`
	CreditsUsed     int       `json:"credits_used"`
	CancelRequested bool      `json:"cancel_requested"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ProgressPct returns completion as a percentage of total items.
func (j *Job) ProgressPct() float64 {
	if j.TotalItems <= 0 {
		return 0
	}
	return float64(j.CompletedItems) / float64(j.TotalItems) * 100
}

// ResultStatus is the per-item outcome recorded on an enrichment result.
type ResultStatus string

const (
	ResultStatusCompleted ResultStatus = "completed"
	ResultStatusFailed    ResultStatus = "failed"
)

// CompanyProfile is the structured record the agent synthesizes for one
// company. Unknown fields stay empty rather than being fabricated.
type CompanyProfile struct {
	Name            string   `json:"name"`
	Website         string   `json:"website,omitempty"`
	LinkedInURL     string   `json:"linkedin_url,omitempty"`
	FoundedYear     int      `json:"founded_year,omitempty"`
	Headquarters    string   `json:"headquarters,omitempty"`
	EmployeeCount   string   `json:"employee_count,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	CompanyType     string   `json:"company_type,omitempty"`
	Description     string   `json:"description,omitempty"`
	KeyProducts     []string `json:"key_products,omitempty"`
	TargetCustomers string   `json:"target_customers,omitempty"`
	TechStack       []string `json:"tech_stack,omitempty"`
	RecentNews      string   `json:"recent_news,omitempty"`
	FundingInfo     string   `json:"funding_info,omitempty"`
	KeyContacts     []string `json:"key_contacts,omitempty"`
	RevenueEstimate string   `json:"annual_revenue_estimate,omitempty"`
	GrowthSignals   []string `json:"growth_signals,omitempty"`
	RiskFactors     []string `json:"risk_factors,omitempty"`
	ConfidenceScore int      `json:"confidence_score,omitempty"`
	Notes           string   `json:"enrichment_notes,omitempty"`
}

// EnrichmentResult is one processed unit of a job: the agent's profile
// for a single company, or the failure that stands in for it. Unique per
// (job, input name) — a resumed job can never record the same company twice.
type EnrichmentResult struct {
	ID           string          `json:"id"`
	JobID        string          `json:"job_id,omitempty"` // empty for single enrichments outside a job
	OrgID        string          `json:"org_id"`
	InputName    string          `json:"input_name"`
	InputWebsite string          `json:"input_website,omitempty"`
	Profile      *CompanyProfile `json:"profile,omitempty"`
	Status       ResultStatus    `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ModelUsed    string          `json:"model_used,omitempty"`
	TokensUsed   int             `json:"tokens_used"`
	ToolCalls    int             `json:"tool_calls"`
	ProcessingMS int             `json:"processing_ms"`
	EnrichedAt   time.Time       `json:"enriched_at"`
}

// UsageLog is an append-only accounting row written alongside each
// processed enrichment unit.
type UsageLog struct {
	ID              int64          `json:"id"`
	OrgID           string         `json:"org_id"`
	JobID           string         `json:"job_id,omitempty"`
	Action          string         `json:"action"`
	CreditsConsumed int            `json:"credits_consumed"`
	TokensUsed      int            `json:"tokens_used"`
	ModelUsed       string         `json:"model_used,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
