package server

import (
	"errors"
	"net/http"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/db"
)

func (h *handlers) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     api.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

// handleLogin exchanges an admin-issued token for a session cookie.
func (h *handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := readJSON(r, h.cfg.MaxRequestBody, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "token is required")
		return
	}

	user, err := h.deps.Store.UserByTokenHash(r.Context(), HashToken(req.Token))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "auth_failed", "invalid token")
			return
		}
		writeInternal(w, h.logger, "login", err)
		return
	}

	http.SetCookie(w, h.sessionCookie(req.Token, int(h.cfg.CookieTTL.Seconds())))
	h.logger.Info("user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (h *handlers) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, h.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, &api.StatusResponse{Status: "success", Message: "logged out"})
}

func (h *handlers) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFrom(r.Context()))
}
