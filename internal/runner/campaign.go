package runner

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/agentiq/crm-engine/internal/governor"
	"github.com/agentiq/crm-engine/internal/mailer"
	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/resilience"
	"github.com/agentiq/crm-engine/internal/store"
)

// CampaignRunner drains a running campaign's pending leads, one send per
// governor tick. Transport health is watched by a circuit breaker: a
// refused recipient is a per-unit failure, but a dead SMTP server must
// not burn through the recipient list.
type CampaignRunner struct {
	store     store.Store
	mailer    mailer.Mailer
	fromEmail string
	breaker   *resilience.CircuitBreaker
}

// NewCampaignRunner creates a campaign runner. fromEmail is recorded on
// every email log row.
func NewCampaignRunner(st store.Store, m mailer.Mailer, fromEmail string) *CampaignRunner {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		ShouldTrip: func(err error) bool {
			var te *mailer.TransportError
			return errors.As(err, &te)
		},
		OnStateChange: func(from, to resilience.CircuitState) {
			zap.L().Warn("mail transport circuit state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return &CampaignRunner{store: st, mailer: m, fromEmail: fromEmail, breaker: breaker}
}

// Run drives one running campaign until its pending rows are drained, it
// is paused, or the transport gives out. Pause and completion are read
// back from the store at every unit boundary, so a pause issued from the
// API takes effect within one send. Returns the campaign's status as of
// when the runner stopped.
func (r *CampaignRunner) Run(ctx context.Context, campaignID string) (model.CampaignStatus, error) {
	c, err := r.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	if c.Status != model.CampaignStatusRunning {
		zap.L().Info("campaign not running, nothing to do",
			zap.String("campaign_id", campaignID),
			zap.String("status", string(c.Status)),
		)
		return c.Status, nil
	}

	gov, err := governor.New(float64(c.SendRate))
	if err != nil {
		return c.Status, err
	}

	log := zap.L().With(zap.String("campaign_id", c.ID), zap.String("org_id", c.OrgID))
	log.Info("campaign run started",
		zap.Int("total_leads", c.TotalLeads),
		zap.Int("already_sent", c.SentCount),
	)

	for {
		if err := ctx.Err(); err != nil {
			// Shutdown mid-run: rows stay pending, the heartbeat goes
			// stale, and another worker reclaims the campaign.
			return model.CampaignStatusRunning, err
		}

		c, err = r.store.GetCampaign(ctx, campaignID)
		if err != nil {
			return model.CampaignStatusRunning, err
		}
		if c.Status == model.CampaignStatusPaused {
			log.Info("campaign paused, stopping run")
			return model.CampaignStatusPaused, nil
		}
		if c.Status.Terminal() {
			return c.Status, nil
		}

		cl, err := r.store.NextPendingLead(ctx, campaignID)
		if err != nil {
			return model.CampaignStatusRunning, err
		}
		if cl == nil {
			log.Info("campaign completed",
				zap.Int("sent", c.SentCount),
				zap.Int("failed", c.FailedCount),
			)
			if err := r.store.FinishCampaign(ctx, campaignID, model.CampaignStatusCompleted, ""); err != nil {
				return model.CampaignStatusCompleted, err
			}
			return model.CampaignStatusCompleted, nil
		}

		if err := r.sendUnit(ctx, c, cl, log); err != nil {
			switch {
			case errors.Is(err, resilience.ErrCircuitOpen):
				// The lead row is untouched and stays pending. The
				// breaker saw a full streak of transport failures: with
				// no successful send yet the transport never worked, so
				// fail the campaign. After at least one success, back
				// off and leave the rest for a reclaim.
				if c.SentCount == 0 {
					log.Error("mail transport unreachable before any send", zap.Error(err))
					if ferr := r.store.FinishCampaign(ctx, campaignID, model.CampaignStatusFailed, "mail transport unreachable: "+err.Error()); ferr != nil {
						return model.CampaignStatusFailed, ferr
					}
					return model.CampaignStatusFailed, nil
				}
				log.Warn("mail transport circuit open, suspending run",
					zap.Int("sent", c.SentCount),
				)
				return model.CampaignStatusRunning, nil
			case isTransport(err):
				// Transport hiccup, circuit still closed: the row stays
				// pending and the same lead is retried after the tick.
				// A blip on the very first send recovers here too; only
				// the breaker decides the transport is dead.
			default:
				return model.CampaignStatusRunning, err
			}
		}

		if err := gov.Wait(ctx); err != nil {
			return model.CampaignStatusRunning, err
		}
	}
}

// sendUnit renders and delivers one campaign lead. Per-recipient
// failures are recorded here and return nil; transport-level errors
// leave the row pending and are returned for the caller to judge.
func (r *CampaignRunner) sendUnit(ctx context.Context, c *model.Campaign, cl *model.CampaignLead, log *zap.Logger) error {
	lead, err := r.store.GetLead(ctx, cl.LeadID)
	if err != nil {
		return err
	}

	if lead.Email == "" {
		log.Warn("lead has no email, skipping", zap.String("lead_id", lead.ID))
		if err := r.store.MarkCampaignLeadFailed(ctx, cl.ID, "lead has no email address"); err != nil {
			return err
		}
		if err := r.store.IncrementCampaignProgress(ctx, c.ID, true); err != nil {
			return err
		}
		// Audited like any other failed attempt, just with no address.
		if err := r.store.InsertEmailLog(ctx, &model.EmailLog{
			OrgID:       c.OrgID,
			CampaignID:  c.ID,
			LeadID:      lead.ID,
			FromEmail:   r.fromEmail,
			Subject:     mailer.Render(c.Subject, mailer.LeadVariables(lead)),
			Status:      "failed",
			ErrorDetail: "lead has no email address",
		}); err != nil {
			return err
		}
		return nil
	}

	vars := mailer.LeadVariables(lead)
	subject := mailer.Render(c.Subject, vars)
	body := mailer.Render(c.BodyTemplate, vars)

	msg := mailer.Message{
		To:       lead.Email,
		Subject:  subject,
		BodyHTML: body,
		FromName: c.FromName,
		ReplyTo:  c.ReplyTo,
	}

	var receipt *mailer.Receipt
	sendErr := r.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		receipt, err = r.mailer.Send(ctx, msg)
		return err
	})

	if sendErr != nil {
		if errors.Is(sendErr, resilience.ErrCircuitOpen) || isTransport(sendErr) {
			return sendErr
		}
		// Recipient-level failure: record it and move on.
		log.Warn("send failed",
			zap.String("lead_id", lead.ID),
			zap.String("to", lead.Email),
			zap.Error(sendErr),
		)
		if err := r.store.MarkCampaignLeadFailed(ctx, cl.ID, sendErr.Error()); err != nil {
			return err
		}
		if err := r.store.IncrementCampaignProgress(ctx, c.ID, true); err != nil {
			return err
		}
		if err := r.store.InsertEmailLog(ctx, &model.EmailLog{
			OrgID:       c.OrgID,
			CampaignID:  c.ID,
			LeadID:      lead.ID,
			ToEmail:     lead.Email,
			FromEmail:   r.fromEmail,
			Subject:     subject,
			Status:      "failed",
			ErrorDetail: sendErr.Error(),
		}); err != nil {
			return err
		}
		return nil
	}

	if err := r.store.MarkCampaignLeadSent(ctx, cl.ID); err != nil {
		return err
	}
	if err := r.store.IncrementCampaignProgress(ctx, c.ID, false); err != nil {
		return err
	}
	if err := r.store.MarkLeadContacted(ctx, lead.ID); err != nil {
		return err
	}
	if err := r.store.InsertEmailLog(ctx, &model.EmailLog{
		OrgID:      c.OrgID,
		CampaignID: c.ID,
		LeadID:     lead.ID,
		ToEmail:    lead.Email,
		FromEmail:  r.fromEmail,
		Subject:    subject,
		Status:     "sent",
		MessageID:  receipt.MessageID,
	}); err != nil {
		return err
	}
	if err := r.store.InsertConversation(ctx, &model.Conversation{
		OrgID:     c.OrgID,
		LeadID:    lead.ID,
		Channel:   "email",
		Direction: "outbound",
		Subject:   subject,
		Body:      body,
		MessageID: receipt.MessageID,
	}); err != nil {
		return err
	}

	log.Info("sent",
		zap.String("lead_id", lead.ID),
		zap.String("to", lead.Email),
		zap.String("message_id", receipt.MessageID),
	)
	return nil
}

func isTransport(err error) bool {
	var te *mailer.TransportError
	return errors.As(err, &te)
}

// Breaker exposes the transport breaker for health reporting.
func (r *CampaignRunner) Breaker() *resilience.CircuitBreaker {
	return r.breaker
}
