package model

import "time"

// CampaignStatus represents the current state of an email campaign.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusFailed    CampaignStatus = "failed"
)

// Terminal reports whether the campaign can no longer be resumed.
func (s CampaignStatus) Terminal() bool {
	return s == CampaignStatusCompleted || s == CampaignStatusFailed
}

// Campaign is an outbound email campaign over a set of leads. Subject and
// body are templates rendered per recipient ({{first_name}}, {{company}}, ...).
type Campaign struct {
	ID           string         `json:"id"`
	OrgID        string         `json:"org_id"`
	Name         string         `json:"name"`
	Subject      string         `json:"subject"`
	BodyTemplate string         `json:"body_template"`
	FromName     string         `json:"from_name,omitempty"`
	ReplyTo      string         `json:"reply_to,omitempty"`
	Status       CampaignStatus `json:"status"`
	SendRate     int            `json:"send_rate"` // messages per minute
	TotalLeads   int            `json:"total_leads"`
	SentCount    int            `json:"sent_count"`
	FailedCount  int            `json:"failed_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// ProgressPct returns sends attempted as a percentage of total leads.
func (c *Campaign) ProgressPct() float64 {
	if c.TotalLeads <= 0 {
		return 0
	}
	return float64(c.SentCount+c.FailedCount) / float64(c.TotalLeads) * 100
}

// SendStatus is the per-recipient state on a campaign lead row.
type SendStatus string

const (
	SendStatusPending SendStatus = "pending"
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
)

// CampaignLead joins a campaign to a lead and is the unit of work the
// campaign runner iterates. Rows still pending are exactly the work a
// restarted run picks up. Position fixes the send order as the order
// the leads were attached. Unique per (campaign, lead).
type CampaignLead struct {
	ID           string     `json:"id"`
	CampaignID   string     `json:"campaign_id"`
	LeadID       string     `json:"lead_id"`
	Position     int        `json:"position"`
	Status       SendStatus `json:"status"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// LeadStatus is the pipeline stage of a lead: new → contacted → replied →
// converted, or dead. A campaign send only ever moves new → contacted.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusDead      LeadStatus = "dead"
)

// Lead is a CRM pipeline entity. The campaign runner reads it for
// template variables and writes only the one-way contacted transition.
type Lead struct {
	ID              string     `json:"id"`
	OrgID           string     `json:"org_id"`
	CompanyName     string     `json:"company_name"`
	ContactName     string     `json:"contact_name,omitempty"`
	Email           string     `json:"email,omitempty"`
	Website         string     `json:"website,omitempty"`
	Industry        string     `json:"industry,omitempty"`
	Headquarters    string     `json:"headquarters,omitempty"`
	Status          LeadStatus `json:"status"`
	LastContactedAt *time.Time `json:"last_contacted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// EmailLog is the append-only audit row for every send attempt,
// successful or not.
type EmailLog struct {
	ID          int64     `json:"id"`
	OrgID       string    `json:"org_id"`
	CampaignID  string    `json:"campaign_id,omitempty"`
	LeadID      string    `json:"lead_id,omitempty"`
	ToEmail     string    `json:"to_email"`
	FromEmail   string    `json:"from_email"`
	Subject     string    `json:"subject"`
	Status      string    `json:"status"` // sent | failed
	MessageID   string    `json:"message_id,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// Conversation records one outbound touchpoint with a lead, written for
// each successful campaign send.
type Conversation struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	LeadID    string    `json:"lead_id"`
	Channel   string    `json:"channel"`   // email
	Direction string    `json:"direction"` // outbound
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	MessageID string    `json:"message_id,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
