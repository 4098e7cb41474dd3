// Package app assembles the ragchat server from its configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
	"github.com/ubaidzafar05/Rag-github/internal/config"
	"github.com/ubaidzafar05/Rag-github/internal/db"
	"github.com/ubaidzafar05/Rag-github/internal/editor"
	"github.com/ubaidzafar05/Rag-github/internal/ingest"
	"github.com/ubaidzafar05/Rag-github/internal/jobstore"
	"github.com/ubaidzafar05/Rag-github/internal/llm"
	"github.com/ubaidzafar05/Rag-github/internal/retrieval"
	"github.com/ubaidzafar05/Rag-github/internal/server"
	"github.com/ubaidzafar05/Rag-github/internal/weaviate"
)

// Server owns every long-lived resource behind the HTTP API.
type Server struct {
	cfg    *config.ServerConfig
	logger *slog.Logger

	DB       *db.DB
	Jobs     *jobstore.BboltStore
	Blobs    *blobstore.FSStore
	Queue    *ingest.Queue
	Janitor  *server.Janitor
	webhooks *server.WebhookNotifier

	handler http.Handler
	cleanup func()
}

// Open creates the data directories and opens every store. Nothing listens
// until Serve is called.
func Open(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.DataDir, reposDir(cfg)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	s := &Server{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	var err error
	if s.DB, err = db.Open(filepath.Join(cfg.DataDir, "ragchat.db")); err != nil {
		return nil, err
	}
	if s.Jobs, err = jobstore.Open(filepath.Join(cfg.DataDir, "jobs.db")); err != nil {
		return nil, err
	}
	if s.Blobs, err = blobstore.NewFSStore(filepath.Join(cfg.DataDir, "blobs")); err != nil {
		return nil, err
	}

	retriever, err := s.openRetrieval(ctx)
	if err != nil {
		return nil, err
	}

	pipeline := ingest.NewPipeline(ingest.Config{
		ReposDir:      reposDir(cfg),
		MaxFileBytes:  cfg.Retrieval.MaxFileBytes,
		MaxIndexFiles: cfg.MaxIndexFiles,
		CloneTimeout:  cfg.CloneTimeout.Duration,
	}, ingest.GitCloner{}, ingest.NewHTTPDocsFetcher(30*time.Second), s.Blobs, s.DB, retriever, logger)

	var notifier ingest.Notifier
	if s.webhooks = server.NewWebhookNotifier(&server.WebhookConfig{URLs: cfg.WebhookURLs}, logger); s.webhooks != nil {
		notifier = s.webhooks
		logger.Info("webhooks configured", "count", len(cfg.WebhookURLs))
	}
	s.Queue = ingest.NewQueue(pipeline, s.Jobs, notifier, cfg.IngestWorkers, cfg.IngestQueue, logger)

	s.Janitor = server.NewJanitor(s.DB, s.Blobs, s.Jobs, cfg.JobRetention.Duration, logger).
		WithClones(s.DB, reposDir(cfg), server.DefaultCloneGrace)

	deps := &server.Deps{
		Store:     s.DB,
		Jobs:      s.Jobs,
		Blobs:     s.Blobs,
		Pipeline:  pipeline,
		Queue:     s.Queue,
		Retriever: retriever,
		Validator: editor.NewValidator(cfg.Validation.Allowed, cfg.Validation.Timeout.Duration),
		Janitor:   s.Janitor,
	}
	wf, err := openWorkflow(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if wf != nil {
		deps.LLM = wf
	}

	scfg := server.DefaultConfig()
	scfg.AdminToken = cfg.AdminToken
	scfg.SecureCookie = cfg.SecureCookie
	scfg.RequestsPerMinute = cfg.RequestsPerMinute
	scfg.MaxContextTokens = cfg.MaxContextTokens
	scfg.TopK = cfg.Retrieval.TopK
	s.handler, s.cleanup = server.Handler(deps, scfg, logger)

	ok = true
	return s, nil
}

func reposDir(cfg *config.ServerConfig) string {
	return filepath.Join(cfg.DataDir, "repos")
}

// openRetrieval picks the embedder and vector store named in the config.
func (s *Server) openRetrieval(ctx context.Context) (*retrieval.Service, error) {
	cfg := s.cfg

	var embedder retrieval.Embedder
	switch cfg.Embeddings.Provider {
	case "ollama":
		e, err := retrieval.NewOllamaEmbedder(cfg.Embeddings.OllamaURL, cfg.Embeddings.Model, &http.Client{Timeout: 2 * time.Minute})
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		embedder = retrieval.NewHashEmbedder()
	}

	var store retrieval.VectorStore
	switch cfg.VectorStore.Provider {
	case "weaviate":
		client, err := weaviate.NewClient(cfg.VectorStore.WeaviateURL)
		if err != nil {
			return nil, err
		}
		if err := client.Ping(ctx); err != nil {
			return nil, err
		}
		if err := client.CheckCompatible(ctx); err != nil {
			return nil, err
		}
		store = weaviate.NewChunkStore(client)
	default:
		store = retrieval.NewLocalStore(s.Jobs, func(err error) bool {
			return errors.Is(err, jobstore.ErrNotFound)
		})
	}

	s.logger.Info("retrieval configured",
		"embedder", embedder.Name(),
		"vector_store", cfg.VectorStore.Provider,
	)
	return retrieval.NewService(retrieval.Config{
		TopK:         cfg.Retrieval.TopK,
		ChunkLines:   cfg.Retrieval.ChunkLines,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		MaxFileBytes: cfg.Retrieval.MaxFileBytes,
	}, embedder, store, s.logger), nil
}

// openWorkflow returns nil without an API key; chat then answers 503.
func openWorkflow(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) (*llm.Workflow, error) {
	m, err := llm.NewOpenAIModel(ctx, llm.ModelConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout.Duration,
	})
	if errors.Is(err, llm.ErrNotConfigured) {
		logger.Warn("no LLM API key configured; chat is disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("llm configured", "base_url", cfg.LLM.BaseURL, "model", cfg.LLM.Model)
	return llm.NewWorkflow(m, logger), nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return context.Background() },
	}

	s.Janitor.Start(ctx, s.cfg.GCInterval.Duration)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting ragchat-server", "listen", s.cfg.Listen, "data_dir", s.cfg.DataDir)
		var err error
		if s.cfg.TLSCert != "" {
			err = srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	return nil
}

// Close releases every resource. It is safe on a partially opened Server.
func (s *Server) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
	if s.Queue != nil {
		s.Queue.Close()
	}
	s.webhooks.Wait()
	if s.Jobs != nil {
		if err := s.Jobs.Close(); err != nil {
			s.logger.Error("close job store", "error", err)
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			s.logger.Error("close database", "error", err)
		}
	}
	s.logger.Info("server stopped")
}
