package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

type createCampaignRequest struct {
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	BodyTemplate string `json:"body_template"`
	FromName     string `json:"from_name"`
	ReplyTo      string `json:"reply_to"`
	SendRate     int    `json:"send_rate"`
}

type campaignResponse struct {
	model.Campaign
	ProgressPct  float64 `json:"progress_pct"`
	PendingLeads int     `json:"pending_leads"`
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		respondError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if req.Subject == "" || req.BodyTemplate == "" {
		respondError(w, http.StatusBadRequest, "subject and body_template are required")
		return
	}

	campaign, err := s.store.CreateCampaign(r.Context(), &model.Campaign{
		OrgID:        req.OrgID,
		Name:         req.Name,
		Subject:      req.Subject,
		BodyTemplate: req.BodyTemplate,
		FromName:     req.FromName,
		ReplyTo:      req.ReplyTo,
		SendRate:     req.SendRate,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, campaignResponse{Campaign: *campaign})
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	campaign, err := s.store.GetCampaign(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusNotFound, "campaign not found")
		return
	}
	pending, err := s.store.CountPendingLeads(r.Context(), campaignID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, campaignResponse{
		Campaign:     *campaign,
		ProgressPct:  campaign.ProgressPct(),
		PendingLeads: pending,
	})
}

func (s *Server) handleAddCampaignLeads(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LeadIDs []string `json:"lead_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.LeadIDs) == 0 {
		respondError(w, http.StatusBadRequest, "lead_ids must not be empty")
		return
	}

	added, err := s.store.AddCampaignLeads(r.Context(), chi.URLParam(r, "campaignID"), req.LeadIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"added":   added,
		"skipped": len(req.LeadIDs) - added,
	})
}

func (s *Server) handleStartCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if err := s.store.StartCampaign(r.Context(), campaignID); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID,
		"status":      string(model.CampaignStatusRunning),
	})
}

func (s *Server) handlePauseCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignID")
	if err := s.store.PauseCampaign(r.Context(), campaignID); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"campaign_id": campaignID,
		"status":      string(model.CampaignStatusPaused),
	})
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req model.Lead
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" || req.CompanyName == "" {
		respondError(w, http.StatusBadRequest, "org_id and company_name are required")
		return
	}

	lead, err := s.store.CreateLead(r.Context(), &req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, lead)
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := s.store.ListLeads(r.Context(), store.LeadFilter{
		OrgID:  r.URL.Query().Get("org_id"),
		Status: model.LeadStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"leads": leads})
}
