package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/ingest"
	"github.com/ubaidzafar05/Rag-github/internal/jobstore"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

func (h *handlers) ingestRequest(w http.ResponseWriter, r *http.Request) (ingest.Request, bool) {
	var req api.IngestRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return ingest.Request{}, false
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "repo_url is required")
		return ingest.Request{}, false
	}
	out := ingest.Request{RepoURL: req.RepoURL, DocsURL: strings.TrimSpace(req.DocsURL)}
	if u := userFrom(r.Context()); u != nil {
		out.UserID = u.ID
	}
	return out, true
}

// handleIngest runs an ingestion inside the request.
func (h *handlers) handleIngest(w http.ResponseWriter, r *http.Request) {
	req, ok := h.ingestRequest(w, r)
	if !ok {
		return
	}
	res, err := h.deps.Pipeline.Run(r.Context(), req, nil)
	if err != nil {
		writeInternal(w, h.logger, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, &api.IngestResult{
		Status:  "success",
		Message: "Repository ingested successfully",
		Size:    res.Size,
	})
}

func (h *handlers) handleIngestAsync(w http.ResponseWriter, r *http.Request) {
	req, ok := h.ingestRequest(w, r)
	if !ok {
		return
	}
	job, err := h.deps.Queue.Submit(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrQueueFull):
			w.Header().Set("Retry-After", "30")
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
		case errors.Is(err, ingest.ErrQueueClosed):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		default:
			writeInternal(w, h.logger, "submit ingest", err)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, &api.IngestStatus{
		JobID:   job.ID,
		Status:  models.JobQueued,
		RepoURL: job.RepoURL,
	})
}

func (h *handlers) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.deps.Jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		writeInternal(w, h.logger, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, &api.IngestStatus{
		JobID:   job.ID,
		Status:  job.Status,
		Message: job.StatusMessage(),
		RepoURL: job.RepoURL,
	})
}
