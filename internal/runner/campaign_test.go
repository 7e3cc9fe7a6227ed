package runner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentiq/crm-engine/internal/model"
)

// fastRate keeps governor waits around a millisecond in tests.
const fastRate = 60000

func seedCampaign(st *memStore, leads int) *model.Campaign {
	c := &model.Campaign{
		ID:           "camp-1",
		OrgID:        "org-1",
		Name:         "launch",
		Subject:      "Hi {{first_name}} at {{company}}",
		BodyTemplate: "<p>Hello {{first_name}}, we love {{company}}.</p>",
		Status:       model.CampaignStatusRunning,
		SendRate:     fastRate,
	}
	st.addCampaign(c)
	names := []string{"jane doe", "bob smith", "carol jones", "dan brown", "eve white"}
	emails := []string{"jane@acme.com", "bob@globex.com", "carol@initech.com", "dan@umbrella.com", "eve@stark.com"}
	companies := []string{"Acme", "Globex", "Initech", "Umbrella", "Stark"}
	for i := 0; i < leads; i++ {
		id := emails[i][:3]
		st.addLead(&model.Lead{
			ID:          "lead-" + id,
			OrgID:       "org-1",
			CompanyName: companies[i],
			ContactName: names[i],
			Email:       emails[i],
		})
		st.attachLead(c.ID, "lead-"+id)
	}
	return c
}

func TestCampaignRunCompletesWithOneRefusedRecipient(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 3)
	m := &fakeMailer{refuse: map[string]bool{"bob@globex.com": true}}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, status)

	c, err := st.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, c.Status)
	assert.Equal(t, 2, c.SentCount)
	assert.Equal(t, 1, c.FailedCount)

	// Every attempt is audited, success or not.
	require.Len(t, st.emailLogs, 3)
	sent, failed := 0, 0
	for _, l := range st.emailLogs {
		assert.Equal(t, "hello@agentiq.app", l.FromEmail)
		switch l.Status {
		case "sent":
			sent++
			assert.NotEmpty(t, l.MessageID)
		case "failed":
			failed++
			assert.Contains(t, l.ErrorDetail, "recipient refused")
		}
	}
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)

	// Conversations only for delivered mail; leads one-way to contacted.
	assert.Len(t, st.conversations, 2)
	jane, _ := st.GetLead(context.Background(), "lead-jan")
	bob, _ := st.GetLead(context.Background(), "lead-bob")
	assert.Equal(t, model.LeadStatusContacted, jane.Status)
	assert.Equal(t, model.LeadStatusNew, bob.Status)
}

func TestCampaignRunRendersTemplates(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 1)
	m := &fakeMailer{}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	_, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)

	require.Len(t, m.sent, 1)
	assert.Equal(t, "Hi Jane at Acme", m.sent[0].Subject)
	assert.Contains(t, m.sent[0].BodyHTML, "Hello Jane, we love Acme.")
}

func TestCampaignRunPauseTakesEffectAtUnitBoundary(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 3)
	m := &fakeMailer{
		afterSend: func(calls int) {
			if calls == 1 {
				require.NoError(t, st.PauseCampaign(context.Background(), "camp-1"))
			}
		},
	}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPaused, status)

	pending, err := st.CountPendingLeads(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	// Resume drains the remainder without re-sending the first lead.
	require.NoError(t, st.StartCampaign(context.Background(), "camp-1"))
	status, err = r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, status)
	assert.Len(t, m.sent, 3)
}

func TestCampaignRunDeadTransportFailsBeforeAnySend(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 3)
	m := &fakeMailer{transportDown: true}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusFailed, status)

	c, err := st.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Contains(t, c.ErrorMessage, "mail transport unreachable")

	// The recipient list was not consumed.
	pending, err := st.CountPendingLeads(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, pending)
}

func TestCampaignRunTransportBlipOnFirstSendRecovers(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 2)
	// The very first attempt hits a transport error, then the server is
	// back. The lead stays pending and the retry drains the campaign.
	m := &fakeMailer{downOn: map[int]bool{1: true}}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, status)

	c, err := st.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, c.SentCount)
	assert.Equal(t, 0, c.FailedCount)
	assert.Len(t, m.sent, 2)
	assert.Equal(t, "jane@acme.com", m.sent[0].To)
}

func TestCampaignRunTransportDropMidRunSuspends(t *testing.T) {
	st := newMemStore()
	seedCampaign(st, 3)
	m := &fakeMailer{downAfter: 1}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusRunning, status)

	c, err := st.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusRunning, c.Status)
	assert.Equal(t, 1, c.SentCount)
	assert.Equal(t, 0, c.FailedCount)

	// Transport failures never consume recipients.
	pending, err := st.CountPendingLeads(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestCampaignRunLeadWithoutEmailIsUnitFailure(t *testing.T) {
	st := newMemStore()
	c := &model.Campaign{
		ID:           "camp-1",
		OrgID:        "org-1",
		Name:         "launch",
		Subject:      "Hi",
		BodyTemplate: "<p>Hi</p>",
		Status:       model.CampaignStatusRunning,
		SendRate:     fastRate,
	}
	st.addCampaign(c)
	st.addLead(&model.Lead{ID: "lead-1", OrgID: "org-1", CompanyName: "Acme"})
	st.attachLead("camp-1", "lead-1")

	r := NewCampaignRunner(st, &fakeMailer{}, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, status)

	got, err := st.GetCampaign(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.SentCount)
	assert.Equal(t, 1, got.FailedCount)

	// Audited even without an address.
	require.Len(t, st.emailLogs, 1)
	assert.Equal(t, "failed", st.emailLogs[0].Status)
	assert.Empty(t, st.emailLogs[0].ToEmail)
	assert.Equal(t, "lead-1", st.emailLogs[0].LeadID)
	assert.Contains(t, st.emailLogs[0].ErrorDetail, "no email address")
}

func TestCampaignRunNotRunningIsNoop(t *testing.T) {
	st := newMemStore()
	st.addCampaign(&model.Campaign{
		ID:           "camp-1",
		OrgID:        "org-1",
		Subject:      "Hi",
		BodyTemplate: "b",
		Status:       model.CampaignStatusDraft,
		SendRate:     fastRate,
	})
	m := &fakeMailer{}

	r := NewCampaignRunner(st, m, "hello@agentiq.app")
	status, err := r.Run(context.Background(), "camp-1")
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusDraft, status)
	assert.Zero(t, m.calls)
}

func TestSweepTouchesJobsAndCampaigns(t *testing.T) {
	st := newMemStore()
	st.sweepJobsReturn = 2
	st.sweepCampaignsReturn = 1

	s := NewSweeper(st, 2*time.Hour)
	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, st.sweepJobsCalls)
	assert.Equal(t, 1, st.sweepCampaignsCalls)
}

func TestSweeperClampsTinyStaleness(t *testing.T) {
	s := NewSweeper(newMemStore(), time.Second)
	assert.Equal(t, 2*time.Hour, s.staleness)
}
