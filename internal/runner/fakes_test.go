package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/agentiq/crm-engine/internal/agent"
	"github.com/agentiq/crm-engine/internal/mailer"
	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

// memStore is an in-memory store.Store for exercising runner state
// machines without a database. It mirrors the real store's guards:
// status-guarded transitions, duplicate detection, one-way lead moves.
type memStore struct {
	mu            sync.Mutex
	jobs          map[string]*model.Job
	results       []*model.EnrichmentResult
	usage         []*model.UsageLog
	campaigns     map[string]*model.Campaign
	campaignLeads []*model.CampaignLead
	leads         map[string]*model.Lead
	emailLogs     []*model.EmailLog
	conversations []*model.Conversation

	sweepJobsReturn      int
	sweepCampaignsReturn int
	sweepJobsCalls       int
	sweepCampaignsCalls  int
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      map[string]*model.Job{},
		campaigns: map[string]*model.Campaign{},
		leads:     map[string]*model.Lead{},
	}
}

func (m *memStore) addJob(job *model.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.TotalItems = len(job.Input.Companies)
	if job.Status == "" {
		job.Status = model.JobStatusRunning
	}
	m.jobs[job.ID] = job
}

func (m *memStore) addCampaign(c *model.Campaign) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaigns[c.ID] = c
}

func (m *memStore) addLead(lead *model.Lead) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lead.Status == "" {
		lead.Status = model.LeadStatusNew
	}
	m.leads[lead.ID] = lead
}

func (m *memStore) attachLead(campaignID, leadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.campaignLeads = append(m.campaignLeads, &model.CampaignLead{
		ID:         fmt.Sprintf("cl-%d", len(m.campaignLeads)+1),
		CampaignID: campaignID,
		LeadID:     leadID,
		Position:   len(m.campaignLeads) + 1,
		Status:     model.SendStatusPending,
		CreatedAt:  time.Now(),
	})
	m.campaigns[campaignID].TotalLeads++
}

func (m *memStore) CreateJob(ctx context.Context, orgID, name string, input model.JobInput) (*model.Job, error) {
	return nil, eris.New("memStore: not implemented")
}

func (m *memStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, eris.Errorf("memStore: job %s not found", jobID)
	}
	cp := *job
	return &cp, nil
}

func (m *memStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.Job, error) {
	return nil, eris.New("memStore: not implemented")
}

func (m *memStore) ClaimQueuedJob(ctx context.Context) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.Status == model.JobStatusQueued {
			job.Status = model.JobStatusRunning
			cp := *job
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) StartJob(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok || job.Status != model.JobStatusQueued {
		return eris.Errorf("memStore: job %s not claimable", jobID)
	}
	job.Status = model.JobStatusRunning
	return nil
}

func (m *memStore) RequestCancel(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[jobID].CancelRequested = true
	return nil
}

func (m *memStore) IsCancelRequested(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return false, eris.Errorf("memStore: job %s not found", jobID)
	}
	return job.CancelRequested, nil
}

func (m *memStore) IncrementJobProgress(ctx context.Context, jobID string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	job.CompletedItems++
	if failed {
		job.FailedItems++
	}
	job.CreditsUsed++
	job.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	if !status.Terminal() {
		return eris.Errorf("memStore: %s is not terminal", status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job := m.jobs[jobID]
	if job.Status.Terminal() {
		return nil
	}
	job.Status = status
	job.ErrorMessage = errMsg
	return nil
}

func (m *memStore) RecordResult(ctx context.Context, result *model.EnrichmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.JobID != "" && r.JobID == result.JobID && r.InputName == result.InputName {
			return store.ErrDuplicate
		}
	}
	cp := *result
	m.results = append(m.results, &cp)
	return nil
}

func (m *memStore) ListResults(ctx context.Context, jobID string) ([]model.EnrichmentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EnrichmentResult
	for _, r := range m.results {
		if r.JobID == jobID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) InsertUsageLog(ctx context.Context, log *model.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.usage = append(m.usage, &cp)
	return nil
}

func (m *memStore) CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	return nil, eris.New("memStore: not implemented")
}

func (m *memStore) GetCampaign(ctx context.Context, campaignID string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, eris.Errorf("memStore: campaign %s not found", campaignID)
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) AddCampaignLeads(ctx context.Context, campaignID string, leadIDs []string) (int, error) {
	return 0, eris.New("memStore: not implemented")
}

func (m *memStore) StartCampaign(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	if c.Status != model.CampaignStatusDraft && c.Status != model.CampaignStatusPaused {
		return eris.Errorf("memStore: campaign %s not startable", campaignID)
	}
	if c.Status == model.CampaignStatusDraft {
		hasPending := false
		for _, cl := range m.campaignLeads {
			if cl.CampaignID == campaignID && cl.Status == model.SendStatusPending {
				hasPending = true
				break
			}
		}
		if !hasPending {
			return eris.Errorf("memStore: campaign %s has no pending leads", campaignID)
		}
	}
	c.Status = model.CampaignStatusRunning
	return nil
}

func (m *memStore) PauseCampaign(ctx context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	if c.Status != model.CampaignStatusRunning {
		return eris.Errorf("memStore: campaign %s not pausable", campaignID)
	}
	c.Status = model.CampaignStatusPaused
	return nil
}

func (m *memStore) FinishCampaign(ctx context.Context, campaignID string, status model.CampaignStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	if c.Status.Terminal() {
		return nil
	}
	c.Status = status
	c.ErrorMessage = errMsg
	return nil
}

func (m *memStore) ClaimRunningCampaign(ctx context.Context, lease time.Duration) (*model.Campaign, error) {
	return nil, nil
}

func (m *memStore) NextPendingLead(ctx context.Context, campaignID string) (*model.CampaignLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next *model.CampaignLead
	for _, cl := range m.campaignLeads {
		if cl.CampaignID == campaignID && cl.Status == model.SendStatusPending {
			if next == nil || cl.Position < next.Position {
				next = cl
			}
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (m *memStore) CountPendingLeads(ctx context.Context, campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, cl := range m.campaignLeads {
		if cl.CampaignID == campaignID && cl.Status == model.SendStatusPending {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MarkCampaignLeadSent(ctx context.Context, campaignLeadID string) error {
	return m.markCampaignLead(campaignLeadID, model.SendStatusSent, "")
}

func (m *memStore) MarkCampaignLeadFailed(ctx context.Context, campaignLeadID, errMsg string) error {
	return m.markCampaignLead(campaignLeadID, model.SendStatusFailed, errMsg)
}

func (m *memStore) markCampaignLead(id string, status model.SendStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cl := range m.campaignLeads {
		if cl.ID == id {
			if cl.Status != model.SendStatusPending {
				return eris.Errorf("memStore: campaign lead %s not pending", id)
			}
			cl.Status = status
			cl.ErrorMessage = errMsg
			now := time.Now()
			cl.SentAt = &now
			return nil
		}
	}
	return eris.Errorf("memStore: campaign lead %s not found", id)
}

func (m *memStore) IncrementCampaignProgress(ctx context.Context, campaignID string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	if failed {
		c.FailedCount++
	} else {
		c.SentCount++
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) CreateLead(ctx context.Context, lead *model.Lead) (*model.Lead, error) {
	return nil, eris.New("memStore: not implemented")
}

func (m *memStore) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return nil, eris.Errorf("memStore: lead %s not found", leadID)
	}
	cp := *lead
	return &cp, nil
}

func (m *memStore) ListLeads(ctx context.Context, filter store.LeadFilter) ([]model.Lead, error) {
	return nil, eris.New("memStore: not implemented")
}

func (m *memStore) ImportLeads(ctx context.Context, leads []model.Lead) (int64, error) {
	return 0, eris.New("memStore: not implemented")
}

func (m *memStore) MarkLeadContacted(ctx context.Context, leadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[leadID]
	if !ok {
		return eris.Errorf("memStore: lead %s not found", leadID)
	}
	if lead.Status == model.LeadStatusNew {
		lead.Status = model.LeadStatusContacted
		now := time.Now()
		lead.LastContactedAt = &now
	}
	return nil
}

func (m *memStore) InsertEmailLog(ctx context.Context, log *model.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *log
	m.emailLogs = append(m.emailLogs, &cp)
	return nil
}

func (m *memStore) InsertConversation(ctx context.Context, conv *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *conv
	m.conversations = append(m.conversations, &cp)
	return nil
}

func (m *memStore) SweepStaleJobs(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepJobsCalls++
	return m.sweepJobsReturn, nil
}

func (m *memStore) SweepStaleCampaigns(ctx context.Context, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCampaignsCalls++
	return m.sweepCampaignsReturn, nil
}

func (m *memStore) GetQueueDepth(ctx context.Context) (*store.QueueDepth, error) {
	return &store.QueueDepth{JobsByStatus: map[string]int{}, CampaignsByStatus: map[string]int{}}, nil
}

func (m *memStore) Ping(ctx context.Context) error    { return nil }
func (m *memStore) Migrate(ctx context.Context) error { return nil }
func (m *memStore) Close() error                      { return nil }

var _ store.Store = (*memStore)(nil)

// fakeEnricher returns canned profiles, failing for named companies.
// afterUnit runs after each call, for flipping cancel flags mid-run.
type fakeEnricher struct {
	failFor   map[string]error
	afterUnit func(calls int)
	mu        sync.Mutex
	calls     []string
}

func (f *fakeEnricher) Enrich(ctx context.Context, companyName, websiteHint string) (*model.CompanyProfile, *agent.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, companyName)
	n := len(f.calls)
	f.mu.Unlock()

	if f.afterUnit != nil {
		defer f.afterUnit(n)
	}

	outcome := &agent.Outcome{
		ModelUsed:  "test-model",
		TokensUsed: 100,
		ToolCalls:  2,
	}
	if err, ok := f.failFor[companyName]; ok {
		return nil, outcome, err
	}
	return &model.CompanyProfile{Name: companyName, Website: websiteHint}, outcome, nil
}

// fakeMailer refuses named recipients and can simulate a dead or flaky
// transport.
type fakeMailer struct {
	refuse        map[string]bool
	transportDown bool
	downAfter     int          // transport dies after this many successful calls; 0 disables
	downOn        map[int]bool // transport errors on exactly these call numbers
	afterSend     func(calls int)
	mu            sync.Mutex
	calls         int
	sent          []mailer.Message
}

func (f *fakeMailer) Send(ctx context.Context, msg mailer.Message) (*mailer.Receipt, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	down := f.transportDown || (f.downAfter > 0 && n > f.downAfter) || f.downOn[n]
	refused := f.refuse[msg.To]
	if !down && !refused {
		f.sent = append(f.sent, msg)
	}
	f.mu.Unlock()

	if f.afterSend != nil {
		defer f.afterSend(n)
	}

	if down {
		return nil, &mailer.TransportError{Op: "dial", Err: eris.New("connection refused")}
	}
	if refused {
		return nil, eris.Errorf("mailer: recipient refused %s", msg.To)
	}
	return &mailer.Receipt{MessageID: fmt.Sprintf("<msg-%d@test>", n)}, nil
}
