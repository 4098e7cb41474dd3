package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/db"
	"github.com/ubaidzafar05/Rag-github/internal/editor"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// target resolves the ingestion an apply request works on. A blank
// repoURL selects the user's most recent ingestion.
func (h *handlers) target(ctx context.Context, w http.ResponseWriter, repoURL string) (*models.RepoIngestion, bool) {
	var (
		ing *models.RepoIngestion
		err error
	)
	if repoURL = strings.TrimSpace(repoURL); repoURL != "" {
		ing, err = h.deps.Store.IngestionByRepo(ctx, repoURL)
	} else {
		ing, err = h.deps.Store.LatestIngestion(ctx, userFrom(ctx).ID)
	}
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusBadRequest, "bad_request", "No ingested repository found")
			return nil, false
		}
		writeInternal(w, h.logger, "lookup ingestion", err)
		return nil, false
	}
	if ing.LocalPath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "Repository has no local path")
		return nil, false
	}
	return ing, true
}

func toValidation(results []editor.Result) []api.ValidationResult {
	out := make([]api.ValidationResult, 0, len(results))
	for _, r := range results {
		out = append(out, api.ValidationResult{
			Command:    r.Command,
			ReturnCode: r.ReturnCode,
			Stdout:     r.Stdout,
			Stderr:     r.Stderr,
		})
	}
	return out
}

func pathError(w http.ResponseWriter, logger *slog.Logger, err error) {
	if errors.Is(err, editor.ErrPathEscape) {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	logger.Error("apply", "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (h *handlers) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req api.ApplyRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "file_path is required")
		return
	}
	ing, ok := h.target(ctx, w, req.RepoURL)
	if !ok {
		return
	}
	if _, err := editor.SafeJoin(ing.LocalPath, req.FilePath); err != nil {
		pathError(w, h.logger, err)
		return
	}

	if len(req.ValidationCommands) > 0 {
		results := h.deps.Validator.Validate(ctx, ing.LocalPath, req.ValidationCommands)
		if editor.Failed(results) {
			writeJSON(w, http.StatusBadRequest, &api.ErrorResponse{
				Error:   "validation_failed",
				Message: "Validation failed",
				Results: toValidation(results),
			})
			return
		}
	}

	if err := editor.Apply(ing.LocalPath, req.FilePath, req.Content); err != nil {
		pathError(w, h.logger, err)
		return
	}
	if err := h.deps.Retriever.Drop(ctx, ing); err != nil {
		h.logger.Warn("failed to drop retrieval index", "repo_url", ing.RepoURL, "error", err)
	}

	h.logger.Info("applied fix", "repo_url", ing.RepoURL, "path", req.FilePath)
	writeJSON(w, http.StatusOK, &api.ApplyResponse{
		Status:  "success",
		Message: "Applied fix to " + req.FilePath,
	})
}

func (h *handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req api.ApplyPreviewRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ing, ok := h.target(r.Context(), w, req.RepoURL)
	if !ok {
		return
	}
	diff, err := editor.Diff(ing.LocalPath, req.FilePath, req.Content)
	if err != nil {
		pathError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, &api.ApplyResponse{Status: "success", Diff: diff})
}

// handleValidate reports failures through return codes; the status stays success.
func (h *handlers) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req api.ApplyValidateRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ing, ok := h.target(r.Context(), w, req.RepoURL)
	if !ok {
		return
	}
	results := h.deps.Validator.Validate(r.Context(), ing.LocalPath, req.Commands)
	writeJSON(w, http.StatusOK, &api.ApplyResponse{Status: "success", Results: toValidation(results)})
}

func (h *handlers) handleReview(w http.ResponseWriter, r *http.Request) {
	var req api.ApplyReviewRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	ing, ok := h.target(r.Context(), w, req.RepoURL)
	if !ok {
		return
	}
	diff, err := editor.Diff(ing.LocalPath, req.FilePath, req.Content)
	if err != nil {
		pathError(w, h.logger, err)
		return
	}
	resp := &api.ApplyResponse{Status: "success", Diff: diff, Results: []api.ValidationResult{}}
	if len(req.ValidationCommands) > 0 {
		resp.Results = toValidation(h.deps.Validator.Validate(r.Context(), ing.LocalPath, req.ValidationCommands))
	}
	writeJSON(w, http.StatusOK, resp)
}
