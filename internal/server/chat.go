package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
	"github.com/ubaidzafar05/Rag-github/internal/db"
	"github.com/ubaidzafar05/Rag-github/internal/graph"
	"github.com/ubaidzafar05/Rag-github/internal/llm"
	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// NoIngestionReply answers chats about repositories that were never ingested.
const NoIngestionReply = "Please ingest a repository first."

func (h *handlers) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ChatRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}

	var session *models.Session
	repoURL := strings.TrimSpace(req.RepoURL)
	history := req.History

	if raw := r.URL.Query().Get("session_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid session_id")
			return
		}
		user := userFrom(ctx)
		if user == nil {
			writeError(w, http.StatusUnauthorized, "auth_failed", "not authenticated")
			return
		}
		session, err = h.deps.Store.GetSession(ctx, user.ID, id)
		if err != nil {
			h.sessionError(w, err)
			return
		}
		repoURL = session.RepoURL
		history, err = h.deps.Store.Messages(ctx, session.ID)
		if err != nil {
			writeInternal(w, h.logger, "load history", err)
			return
		}
	}

	var sessionID int64
	if session != nil {
		sessionID = session.ID
	}

	ing, err := h.deps.Store.IngestionByRepo(ctx, repoURL)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			writeInternal(w, h.logger, "lookup ingestion", err)
			return
		}
		writeJSON(w, http.StatusOK, &api.ChatResponse{
			Response:  NoIngestionReply,
			SessionID: sessionID,
			Citations: []models.Citation{},
		})
		return
	}

	if h.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, "llm_unavailable", "no language model is configured")
		return
	}

	chunks, err := h.deps.Retriever.Search(ctx, ing, req.Message, h.cfg.TopK)
	if err != nil {
		// Retrieval is best effort; the packed repository still grounds the answer.
		h.logger.Warn("retrieval failed", "repo_url", ing.RepoURL, "error", err)
		chunks = nil
	}

	var packed string
	if len(chunks) == 0 && ing.ContentHash != "" {
		data, err := blobstore.GetBytes(ctx, h.deps.Blobs, ing.ContentHash)
		if err != nil {
			h.logger.Warn("packed content unavailable", "hash", ing.ContentHash, "error", err)
		}
		packed = string(data)
	}
	contextText, citations := llm.BuildContext(chunks, packed, h.cfg.MaxContextTokens)
	if citations == nil {
		citations = []models.Citation{}
	}

	reply, err := h.deps.LLM.Run(ctx, llm.Request{
		Message: req.Message,
		History: history,
		Context: contextText,
	})
	if err != nil {
		writeInternal(w, h.logger, "chat", err)
		return
	}

	if session != nil {
		for _, m := range []models.Message{
			{Role: models.RoleUser, Content: req.Message},
			{Role: models.RoleModel, Content: reply.Content},
		} {
			if err := h.deps.Store.AddMessage(ctx, session.ID, m); err != nil {
				writeInternal(w, h.logger, "save message", err)
				return
			}
		}
	}

	writeJSON(w, http.StatusOK, &api.ChatResponse{
		Response:  reply.Content,
		SessionID: sessionID,
		Citations: citations,
	})
}

func (h *handlers) handleGraph(w http.ResponseWriter, r *http.Request) {
	repoURL := strings.TrimSpace(r.URL.Query().Get("repo_url"))
	if repoURL == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "repo_url is required")
		return
	}
	ing, err := h.deps.Store.IngestionByRepo(r.Context(), repoURL)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "repository not ingested")
			return
		}
		writeInternal(w, h.logger, "lookup ingestion", err)
		return
	}
	if ing.LocalPath == "" {
		writeError(w, http.StatusNotFound, "not_found", "repository has no local clone")
		return
	}
	g, err := graph.Build(ing.LocalPath)
	if err != nil {
		writeInternal(w, h.logger, "build graph", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
