// Package ingest clones, packs and indexes repositories.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ubaidzafar05/Rag-github/internal/blobstore"
	"github.com/ubaidzafar05/Rag-github/internal/models"
	"github.com/ubaidzafar05/Rag-github/internal/tokens"
)

// Progress step names reported while a pipeline runs.
const (
	StepCloning  = "Cloning repository"
	StepPacking  = "Packing repository"
	StepCrawling = "Crawling documentation"
	StepIndexing = "Indexing repository"
	StepRetrieve = "Building retrieval index"
)

// Request is one ingestion.
type Request struct {
	RepoURL string
	DocsURL string
	UserID  int64
}

// Result summarizes a finished ingestion.
type Result struct {
	Ingestion *models.RepoIngestion
	// Size is the length of the packed content in bytes.
	Size   int
	Files  int
	Chunks int
}

// IngestionStore persists ingestion records.
type IngestionStore interface {
	UpsertIngestion(ctx context.Context, ing *models.RepoIngestion) (*models.RepoIngestion, error)
}

// Indexer builds the retrieval index for a fresh ingestion.
type Indexer interface {
	Build(ctx context.Context, ing *models.RepoIngestion) (int, error)
}

// Config bounds the pipeline.
type Config struct {
	// ReposDir receives one directory per clone.
	ReposDir      string
	MaxFileBytes  int64
	MaxIndexFiles int
	CloneTimeout  time.Duration
}

// Pipeline runs ingestions end to end.
type Pipeline struct {
	cfg        Config
	cloner     Cloner
	docs       DocsFetcher
	blobs      blobstore.Store
	ingestions IngestionStore
	indexer    Indexer
	logger     *slog.Logger
}

// NewPipeline wires a pipeline. indexer may be nil to skip retrieval indexing.
func NewPipeline(cfg Config, cloner Cloner, docs DocsFetcher, blobs blobstore.Store, ingestions IngestionStore, indexer Indexer, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIndexFiles == 0 {
		cfg.MaxIndexFiles = 500
	}
	if cfg.CloneTimeout == 0 {
		cfg.CloneTimeout = 2 * time.Minute
	}
	return &Pipeline{
		cfg:        cfg,
		cloner:     cloner,
		docs:       docs,
		blobs:      blobs,
		ingestions: ingestions,
		indexer:    indexer,
		logger:     logger,
	}
}

// Run executes every step, reporting each through progress.
func (p *Pipeline) Run(ctx context.Context, req Request, progress func(step string)) (*Result, error) {
	if req.RepoURL == "" {
		return nil, errors.New("repo_url is required")
	}
	if progress == nil {
		progress = func(string) {}
	}
	log := p.logger.With("repo_url", req.RepoURL)

	progress(StepCloning)
	if err := os.MkdirAll(p.cfg.ReposDir, 0o755); err != nil {
		return nil, fmt.Errorf("create repos dir: %w", err)
	}
	dest, err := cloneDir(p.cfg.ReposDir, req.RepoURL)
	if err != nil {
		return nil, err
	}
	saved := false
	defer func() {
		if !saved {
			if err := os.RemoveAll(dest); err != nil {
				log.Warn("remove abandoned clone", "path", dest, "error", err)
			}
		}
	}()

	cloneCtx, cancel := context.WithTimeout(ctx, p.cfg.CloneTimeout)
	err = p.cloner.Clone(cloneCtx, req.RepoURL, dest)
	cancel()
	if err != nil {
		return nil, err
	}
	log.Debug("cloned", "step", StepCloning, "path", dest)

	progress(StepPacking)
	packed, files, err := Pack(dest, p.cfg.MaxFileBytes)
	if err != nil {
		return nil, err
	}

	if req.DocsURL != "" && p.docs != nil {
		progress(StepCrawling)
		text, err := p.docs.Fetch(ctx, req.DocsURL)
		if err != nil {
			log.Warn("docs crawl failed", "step", StepCrawling, "error", err)
			text = "Error crawling docs: " + err.Error()
		}
		packed += fmt.Sprintf("\n\n--- DOCUMENTATION (%s) ---\n%s", req.DocsURL, text)
	}

	progress(StepIndexing)
	index, err := BuildIndex(dest, p.cfg.MaxIndexFiles)
	if err != nil {
		return nil, err
	}

	hash, err := blobstore.PutBytes(ctx, p.blobs, []byte(packed))
	if err != nil {
		return nil, fmt.Errorf("store packed content: %w", err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	ing, err := p.ingestions.UpsertIngestion(ctx, &models.RepoIngestion{
		RepoURL:     req.RepoURL,
		UserID:      req.UserID,
		RepoIndex:   index,
		ContentHash: hash,
		LocalPath:   abs,
		TokenCount:  tokens.Count(packed),
	})
	if err != nil {
		return nil, fmt.Errorf("save ingestion: %w", err)
	}
	saved = true

	res := &Result{Ingestion: ing, Size: len(packed), Files: files}
	if p.indexer != nil {
		progress(StepRetrieve)
		n, err := p.indexer.Build(ctx, ing)
		if err != nil {
			return nil, fmt.Errorf("build retrieval index: %w", err)
		}
		res.Chunks = n
	}

	log.Info("ingestion complete", "files", files, "size", res.Size, "tokens", ing.TokenCount, "chunks", res.Chunks)
	return res, nil
}
