package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/agentiq/crm-engine/internal/export"
	"github.com/agentiq/crm-engine/internal/model"
	"github.com/agentiq/crm-engine/internal/store"
)

type createJobRequest struct {
	OrgID     string            `json:"org_id"`
	Name      string            `json:"name"`
	Companies []string          `json:"companies"`
	Websites  map[string]string `json:"websites"`
}

type jobResponse struct {
	model.Job
	ProgressPct float64 `json:"progress_pct"`
}

func toJobResponse(job *model.Job) jobResponse {
	return jobResponse{Job: *job, ProgressPct: job.ProgressPct()}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		respondError(w, http.StatusBadRequest, "org_id is required")
		return
	}
	if len(req.Companies) == 0 {
		respondError(w, http.StatusBadRequest, "companies must not be empty")
		return
	}

	job, err := s.store.CreateJob(r.Context(), req.OrgID, req.Name, model.JobInput{
		Companies: req.Companies,
		Websites:  req.Websites,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, toJobResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		OrgID:  r.URL.Query().Get("org_id"),
		Status: model.JobStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.store.RequestCancel(r.Context(), jobID); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "cancel_requested",
	})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.store.ListResults(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleExportResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "csv"
	}

	results, err := s.store.ListResults(r.Context(), jobID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.csv"`, jobID))
		if err := export.WriteCSV(w, results); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job-%s.xlsx"`, jobID))
		if err := export.WriteXLSX(w, results); err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
		}
	default:
		respondError(w, http.StatusBadRequest, "format must be csv or xlsx")
	}
}
