// Package server implements the ragchat HTTP API: login, ingestion, chat
// sessions, grounded chat, the knowledge graph and applying file changes.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/api"
	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
	"github.com/ubaidzafar05/Rag-github/internal/editor"
	"github.com/ubaidzafar05/Rag-github/internal/ingest"
	"github.com/ubaidzafar05/Rag-github/internal/llm"
	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/retrieval"
)

// Store is the relational persistence the handlers need.
type Store interface {
	Ping() error

	CreateUser(ctx context.Context, email, name, tokenHash string) (*models.User, error)
	UserByTokenHash(ctx context.Context, hash string) (*models.User, error)
	TouchUser(ctx context.Context, id int64) error
	ListUsers(ctx context.Context) ([]*models.User, error)
	DeleteUser(ctx context.Context, id int64) error

	CreateSession(ctx context.Context, userID int64, repoURL, name string) (*models.Session, error)
	GetSession(ctx context.Context, userID, id int64) (*models.Session, error)
	ListSessions(ctx context.Context, userID int64) ([]*models.Session, error)
	DeleteSession(ctx context.Context, userID, id int64) error
	AddMessage(ctx context.Context, sessionID int64, msg models.Message) error
	Messages(ctx context.Context, sessionID int64) ([]models.Message, error)

	IngestionByRepo(ctx context.Context, repoURL string) (*models.RepoIngestion, error)
	LatestIngestion(ctx context.Context, userID int64) (*models.RepoIngestion, error)
	ContentHashes(ctx context.Context) (map[string]bool, error)
}

// JobReader looks up ingest jobs.
type JobReader interface {
	GetJob(ctx context.Context, id string) (*models.IngestJob, error)
}

// Submitter queues asynchronous ingestions.
type Submitter interface {
	Submit(ctx context.Context, req ingest.Request) (*models.IngestJob, error)
}

// Retriever searches and invalidates per-ingestion chunk indexes.
type Retriever interface {
	Search(ctx context.Context, ing *models.RepoIngestion, query string, k int) ([]retrieval.Chunk, error)
	Drop(ctx context.Context, ing *models.RepoIngestion) error
}

// Answerer produces a chat answer.
type Answerer interface {
	Run(ctx context.Context, req llm.Request) (*llm.Reply, error)
}

// Validator runs validation commands in a repository.
type Validator interface {
	Validate(ctx context.Context, root string, commands []string) []editor.Result
}

// Deps are the collaborators behind the handlers. LLM may be nil, in which
// case chat answers 503.
type Deps struct {
	Store     Store
	Jobs      JobReader
	Blobs     blobstore.Store
	Pipeline  ingest.Runner
	Queue     Submitter
	Retriever Retriever
	LLM       Answerer
	Validator Validator
	Janitor   *Janitor
}

// Config holds configurable limits for the server.
type Config struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int   // per-user rate limit
	AdminToken        string
	// SecureCookie marks the session cookie Secure; set it behind TLS.
	SecureCookie bool
	CookieTTL    time.Duration
	// MaxContextTokens bounds the packed fallback context.
	MaxContextTokens int
	TopK             int
}

// DefaultConfig returns reasonable defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestBody:    8 * 1024 * 1024,
		RequestsPerMinute: 120,
		CookieTTL:         7 * 24 * time.Hour,
		MaxContextTokens:  24000,
		TopK:              6,
	}
}

type handlers struct {
	deps   *Deps
	cfg    *Config
	logger *slog.Logger
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(deps *Deps, cfg *Config, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{deps: deps, cfg: cfg, logger: logger}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	required := authMiddleware(deps.Store, true, logger)
	optional := authMiddleware(deps.Store, false, logger)

	// Execution order: auth -> rl -> handler
	withAuth := func(fn http.HandlerFunc) http.Handler {
		return applyMiddleware(fn, required, rl.middleware)
	}
	withOptionalAuth := func(fn http.HandlerFunc) http.Handler {
		return applyMiddleware(fn, optional, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoints (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready: database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Login
	mux.Handle("POST /login", rl.middleware(http.HandlerFunc(h.handleLogin)))
	mux.HandleFunc("POST /logout", h.handleLogout)
	mux.Handle("GET /user/me", withAuth(h.handleMe))

	// Ingestion
	mux.Handle("POST /ingest", withOptionalAuth(h.handleIngest))
	mux.Handle("POST /ingest/async", withOptionalAuth(h.handleIngestAsync))
	mux.HandleFunc("GET /ingest/status/{id}", h.handleIngestStatus)

	// Sessions
	mux.Handle("POST /sessions", withAuth(h.handleCreateSession))
	mux.Handle("GET /sessions", withAuth(h.handleListSessions))
	mux.Handle("GET /sessions/{id}", withAuth(h.handleGetSession))
	mux.Handle("DELETE /sessions/{id}", withAuth(h.handleDeleteSession))
	mux.Handle("GET /sessions/{id}/messages", withAuth(h.handleSessionMessages))

	// Chat and graph
	mux.Handle("POST /chat", withOptionalAuth(h.handleChat))
	mux.Handle("GET /graph", withOptionalAuth(h.handleGraph))

	// Apply
	mux.Handle("POST /apply", withAuth(h.handleApply))
	mux.Handle("POST /apply/preview", withAuth(h.handlePreview))
	mux.Handle("POST /apply/validate", withAuth(h.handleValidate))
	mux.Handle("POST /apply/review", withAuth(h.handleReview))

	// Admin endpoints
	if cfg.AdminToken != "" {
		adminMux := http.NewServeMux()
		adminMux.HandleFunc("POST /admin/users", makeAdminCreateUserHandler(deps.Store, logger))
		adminMux.HandleFunc("GET /admin/users", makeAdminListUsersHandler(deps.Store, logger))
		adminMux.HandleFunc("DELETE /admin/users/{id}", makeAdminDeleteUserHandler(deps.Store, logger))
		adminMux.HandleFunc("POST /admin/gc", makeAdminGCHandler(deps.Janitor, logger))
		mux.Handle("/admin/", adminAuth(cfg.AdminToken, adminMux))
	}

	// Apply global middleware
	handler := applyMiddleware(mux,
		requestIDMiddleware,
		loggingMiddleware(logger),
		recoveryMiddleware(logger),
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware wraps h so the first middleware in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Admin Auth ---

func adminAuth(adminToken string, next http.Handler) http.Handler {
	expected := "Bearer " + adminToken
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if subtle.ConstantTimeCompare([]byte(auth), []byte(expected)) != 1 {
			writeError(w, http.StatusUnauthorized, "auth_failed", "invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &api.ErrorResponse{Error: code, Message: message})
}

func writeInternal(w http.ResponseWriter, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
