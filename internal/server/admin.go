package server

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/db"
)

// TokenPrefix marks user tokens issued by the admin API.
const TokenPrefix = "rc_"

// GenerateToken returns a new random user token.
func GenerateToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(b), nil
}

func makeAdminCreateUserHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.AdminUserCreateRequest
		if err := readJSON(r, 1<<20, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if req.Email == "" || !strings.Contains(req.Email, "@") {
			writeError(w, http.StatusBadRequest, "bad_request", "a valid email is required")
			return
		}

		token, err := GenerateToken()
		if err != nil {
			writeInternal(w, logger, "create user", err)
			return
		}
		user, err := store.CreateUser(r.Context(), req.Email, strings.TrimSpace(req.Name), HashToken(token))
		if err != nil {
			if errors.Is(err, db.ErrDuplicateEmail) {
				writeError(w, http.StatusConflict, "conflict", "a user with this email already exists")
				return
			}
			writeInternal(w, logger, "create user", err)
			return
		}

		logger.Info("user created", "user_id", user.ID, "email", user.Email)
		writeJSON(w, http.StatusCreated, &api.AdminUserCreateResponse{User: *user, Token: token})
	}
}

func makeAdminListUsersHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsers(r.Context())
		if err != nil {
			writeInternal(w, logger, "list users", err)
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func makeAdminDeleteUserHandler(store Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid user id")
			return
		}
		if err := store.DeleteUser(r.Context(), id); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "user not found")
				return
			}
			writeInternal(w, logger, "delete user", err)
			return
		}
		logger.Info("user deleted", "user_id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

func makeAdminGCHandler(janitor *Janitor, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if janitor == nil {
			writeError(w, http.StatusServiceUnavailable, "unavailable", "maintenance is not configured")
			return
		}
		result, err := janitor.Run(r.Context())
		if err != nil {
			writeInternal(w, logger, "gc", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
