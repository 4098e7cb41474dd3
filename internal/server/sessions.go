package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/db"
)

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid session id")
		return 0, false
	}
	return id, true
}

func (h *handlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.RepoURL = strings.TrimSpace(req.RepoURL)
	if req.RepoURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "repo_url is required")
		return
	}
	s, err := h.deps.Store.CreateSession(r.Context(), userFrom(r.Context()).ID, req.RepoURL, strings.TrimSpace(req.Name))
	if err != nil {
		writeInternal(w, h.logger, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *handlers) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.ListSessions(r.Context(), userFrom(r.Context()).ID)
	if err != nil {
		writeInternal(w, h.logger, "list sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *handlers) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.deps.Store.GetSession(r.Context(), userFrom(r.Context()).ID, id)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.deps.Store.DeleteSession(r.Context(), userFrom(r.Context()).ID, id); err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &api.StatusResponse{Status: "success", Message: "Session deleted"})
}

func (h *handlers) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := h.deps.Store.GetSession(ctx, userFrom(ctx).ID, id); err != nil {
		h.sessionError(w, err)
		return
	}
	msgs, err := h.deps.Store.Messages(ctx, id)
	if err != nil {
		writeInternal(w, h.logger, "list messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// sessionError hides other users' sessions behind the same 404 as missing ones.
func (h *handlers) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "session not found")
		return
	}
	writeInternal(w, h.logger, "session", err)
}
