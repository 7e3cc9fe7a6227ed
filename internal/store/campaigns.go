package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/agentiq/crm-engine/internal/db"
	"github.com/agentiq/crm-engine/internal/model"
)

const campaignColumns = `id, org_id, name, subject, body_template, from_name, reply_to, status, send_rate, total_leads, sent_count, failed_count, error_message, created_at, started_at, updated_at, completed_at`

func scanCampaign(row pgx.Row) (*model.Campaign, error) {
	var c model.Campaign
	var fromName, replyTo, errMsg *string

	err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Subject, &c.BodyTemplate,
		&fromName, &replyTo, &c.Status, &c.SendRate, &c.TotalLeads,
		&c.SentCount, &c.FailedCount, &errMsg,
		&c.CreatedAt, &c.StartedAt, &c.UpdatedAt, &c.CompletedAt)
	if err != nil {
		return nil, err
	}

	if fromName != nil {
		c.FromName = *fromName
	}
	if replyTo != nil {
		c.ReplyTo = *replyTo
	}
	if errMsg != nil {
		c.ErrorMessage = *errMsg
	}
	return &c, nil
}

func (s *PostgresStore) CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	if c.Subject == "" || c.BodyTemplate == "" {
		return nil, eris.New("postgres: campaign needs subject and body template")
	}

	id := uuid.New().String()
	sendRate := c.SendRate
	if sendRate <= 0 {
		sendRate = 10
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO campaigns (id, org_id, name, subject, body_template, from_name, reply_to, status, send_rate)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), 'draft', $8)
		 RETURNING `+campaignColumns,
		id, c.OrgID, c.Name, c.Subject, c.BodyTemplate, c.FromName, c.ReplyTo, sendRate,
	)

	created, err := scanCampaign(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert campaign")
	}
	return created, nil
}

func (s *PostgresStore) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, campaignID)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get campaign %s", campaignID)
	}
	return c, nil
}

func (s *PostgresStore) AddCampaignLeads(ctx context.Context, campaignID string, leadIDs []string) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	// Positions continue from the campaign's current high-water mark, so
	// a later batch sends after an earlier one and submitted order is the
	// send order within each batch.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO campaign_leads (id, campaign_id, lead_id, position, status)
		 SELECT gen_random_uuid()::text, $1, l.lead_id,
		        COALESCE((SELECT MAX(position) FROM campaign_leads WHERE campaign_id = $1), 0) + l.ord,
		        'pending'
		 FROM unnest($2::text[]) WITH ORDINALITY AS l(lead_id, ord)
		 ON CONFLICT (campaign_id, lead_id) DO NOTHING`,
		campaignID, leadIDs,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: add campaign leads %s", campaignID)
	}

	added := int(tag.RowsAffected())
	if added > 0 {
		_, err = s.pool.Exec(ctx,
			`UPDATE campaigns SET total_leads = total_leads + $2, updated_at = now() WHERE id = $1`,
			campaignID, added,
		)
		if err != nil {
			return added, eris.Wrapf(err, "postgres: bump campaign total %s", campaignID)
		}
	}
	return added, nil
}

// StartCampaign moves a campaign to running. A draft needs at least one
// pending recipient before it can launch; resuming from paused is never
// gated, since a paused campaign may legitimately have drained its list.
func (s *PostgresStore) StartCampaign(ctx context.Context, campaignID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = 'running', started_at = COALESCE(started_at, now()), updated_at = now()
		 WHERE id = $1
		   AND (status = 'paused'
		        OR (status = 'draft' AND EXISTS (
		              SELECT 1 FROM campaign_leads WHERE campaign_id = $1 AND status = 'pending')))`,
		campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start campaign %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not startable (missing, no pending leads, or wrong status): %s", campaignID)
	}
	return nil
}

func (s *PostgresStore) PauseCampaign(ctx context.Context, campaignID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = 'paused', updated_at = now()
		 WHERE id = $1 AND status = 'running'`,
		campaignID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: pause campaign %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not pausable (missing or not running): %s", campaignID)
	}
	return nil
}

func (s *PostgresStore) FinishCampaign(ctx context.Context, campaignID string, status model.CampaignStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("postgres: finish campaign with non-terminal status %s", status)
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET status = $2, error_message = NULLIF($3, ''),
		   completed_at = now(), updated_at = now()
		 WHERE id = $1 AND status IN ('running', 'paused')`,
		campaignID, string(status), errMsg,
	)
	return eris.Wrapf(err, "postgres: finish campaign %s", campaignID)
}

func (s *PostgresStore) ClaimRunningCampaign(ctx context.Context, lease time.Duration) (*model.Campaign, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE campaigns SET updated_at = now()
		 WHERE id = (
		   SELECT id FROM campaigns
		   WHERE status = 'running' AND updated_at < now() - make_interval(secs => $1)
		   ORDER BY created_at LIMIT 1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+campaignColumns,
		lease.Seconds(),
	)

	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: claim running campaign")
	}
	return c, nil
}

const campaignLeadColumns = `id, campaign_id, lead_id, position, status, sent_at, error_message, created_at`

func scanCampaignLead(row pgx.Row) (*model.CampaignLead, error) {
	var cl model.CampaignLead
	var errMsg *string

	err := row.Scan(&cl.ID, &cl.CampaignID, &cl.LeadID, &cl.Position, &cl.Status, &cl.SentAt, &errMsg, &cl.CreatedAt)
	if err != nil {
		return nil, err
	}
	if errMsg != nil {
		cl.ErrorMessage = *errMsg
	}
	return &cl, nil
}

// NextPendingLead returns the lowest-position pending row for the
// campaign, or nil when none remain. Position is assigned at attach
// time, so submitted order is the send order.
func (s *PostgresStore) NextPendingLead(ctx context.Context, campaignID string) (*model.CampaignLead, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+campaignLeadColumns+` FROM campaign_leads
		 WHERE campaign_id = $1 AND status = 'pending'
		 ORDER BY position, id LIMIT 1`,
		campaignID,
	)

	cl, err := scanCampaignLead(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: next pending lead %s", campaignID)
	}
	return cl, nil
}

func (s *PostgresStore) CountPendingLeads(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM campaign_leads WHERE campaign_id = $1 AND status = 'pending'`,
		campaignID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count pending leads %s", campaignID)
}

func (s *PostgresStore) MarkCampaignLeadSent(ctx context.Context, campaignLeadID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_leads SET status = 'sent', sent_at = now()
		 WHERE id = $1 AND status = 'pending'`,
		campaignLeadID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead sent %s", campaignLeadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign lead not pending: %s", campaignLeadID)
	}
	return nil
}

func (s *PostgresStore) MarkCampaignLeadFailed(ctx context.Context, campaignLeadID, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaign_leads SET status = 'failed', error_message = $2
		 WHERE id = $1 AND status = 'pending'`,
		campaignLeadID, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark lead failed %s", campaignLeadID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign lead not pending: %s", campaignLeadID)
	}
	return nil
}

func (s *PostgresStore) IncrementCampaignProgress(ctx context.Context, campaignID string, failed bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE campaigns SET
		   sent_count = sent_count + CASE WHEN $2 THEN 0 ELSE 1 END,
		   failed_count = failed_count + CASE WHEN $2 THEN 1 ELSE 0 END,
		   updated_at = now()
		 WHERE id = $1`,
		campaignID, failed,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment campaign progress %s", campaignID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("campaign not found: %s", campaignID)
	}
	return nil
}

const leadColumns = `id, org_id, company_name, contact_name, email, website, industry, headquarters, status, last_contacted_at, created_at`

func scanLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var contact, email, website, industry, hq *string

	err := row.Scan(&l.ID, &l.OrgID, &l.CompanyName, &contact, &email,
		&website, &industry, &hq, &l.Status, &l.LastContactedAt, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	if contact != nil {
		l.ContactName = *contact
	}
	if email != nil {
		l.Email = *email
	}
	if website != nil {
		l.Website = *website
	}
	if industry != nil {
		l.Industry = *industry
	}
	if hq != nil {
		l.Headquarters = *hq
	}
	return &l, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	id := uuid.New().String()

	row := s.pool.QueryRow(ctx,
		`INSERT INTO leads (id, org_id, company_name, contact_name, email, website, industry, headquarters, status)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), 'new')
		 RETURNING `+leadColumns,
		id, lead.OrgID, lead.CompanyName, lead.ContactName, lead.Email,
		lead.Website, lead.Industry, lead.Headquarters,
	)

	created, err := scanLead(row)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert lead")
	}
	return created, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID)
	l, err := scanLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", leadID)
	}
	return l, nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE true`
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

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

// ImportLeads bulk-loads leads via the COPY protocol.
func (s *PostgresStore) ImportLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	rows := make([][]any, len(leads))
	for i, l := range leads {
		id := l.ID
		if id == "" {
			id = uuid.New().String()
		}
		rows[i] = []any{
			id, l.OrgID, l.CompanyName,
			nullable(l.ContactName), nullable(l.Email), nullable(l.Website),
			nullable(l.Industry), nullable(l.Headquarters), string(model.LeadStatusNew),
		}
	}

	return db.CopyRows(ctx, s.pool, "leads",
		[]string{"id", "org_id", "company_name", "contact_name", "email", "website", "industry", "headquarters", "status"},
		rows,
	)
}

func (s *PostgresStore) MarkLeadContacted(ctx context.Context, leadID string) error {
	// No rows affected means the lead already advanced past new; that is
	// the expected outcome for repeat contacts, not an error.
	_, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = 'contacted', last_contacted_at = now()
		 WHERE id = $1 AND status = 'new'`,
		leadID,
	)
	return eris.Wrapf(err, "postgres: mark lead contacted %s", leadID)
}

func (s *PostgresStore) InsertEmailLog(ctx context.Context, log *model.EmailLog) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO email_logs (org_id, campaign_id, lead_id, to_email, from_email, subject, status, message_id, error_detail)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''))`,
		log.OrgID, log.CampaignID, log.LeadID, log.ToEmail, log.FromEmail,
		log.Subject, log.Status, log.MessageID, log.ErrorDetail,
	)
	return eris.Wrap(err, "postgres: insert email log")
}

func (s *PostgresStore) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	id := conv.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, org_id, lead_id, channel, direction, subject, body, message_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''))`,
		id, conv.OrgID, conv.LeadID, conv.Channel, conv.Direction,
		conv.Subject, conv.Body, conv.MessageID,
	)
	return eris.Wrap(err, "postgres: insert conversation")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
