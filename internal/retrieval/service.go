package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ubaidzafar05/Rag-github/internal/models"
)

// Config tunes chunking and search.
type Config struct {
	TopK         int
	ChunkLines   int
	ChunkOverlap int
	MaxFileBytes int64
	// EmbedBatch is how many chunks go into one Embed call.
	EmbedBatch int
	// EmbedWorkers bounds concurrent Embed calls.
	EmbedWorkers int
}

// DefaultConfig returns the standard retrieval settings.
func DefaultConfig() Config {
	return Config{
		TopK:         6,
		ChunkLines:   200,
		ChunkOverlap: 40,
		MaxFileBytes: 200_000,
		EmbedBatch:   64,
		EmbedWorkers: 4,
	}
}

// Service builds and searches per-ingestion chunk indexes.
type Service struct {
	cfg      Config
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

// NewService creates a Service. Zero config fields take their defaults,
// except ChunkOverlap: zero means no overlap and only a negative value
// takes the default.
func NewService(cfg Config, embedder Embedder, store VectorStore, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.ChunkLines <= 0 {
		cfg.ChunkLines = def.ChunkLines
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = def.ChunkOverlap
	}
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = def.MaxFileBytes
	}
	if cfg.EmbedBatch <= 0 {
		cfg.EmbedBatch = def.EmbedBatch
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = def.EmbedWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cfg: cfg, embedder: embedder, store: store, logger: logger}
}

// CacheKey identifies the index for ing under the service's settings.
func (s *Service) CacheKey(ing *models.RepoIngestion) string {
	raw := fmt.Sprintf("%s:%s:%s:%d:%d", ing.LocalPath, ing.RepoURL, s.embedder.Name(), s.cfg.ChunkLines, s.cfg.ChunkOverlap)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Build chunks and embeds the clone behind ing and stores the index,
// replacing any previous one. It returns the number of chunks stored.
func (s *Service) Build(ctx context.Context, ing *models.RepoIngestion) (int, error) {
	if ing.LocalPath == "" {
		return 0, errors.New("build index: ingestion has no local path")
	}
	chunks, err := BuildChunks(ing.LocalPath, s.cfg.ChunkLines, s.cfg.ChunkOverlap, s.cfg.MaxFileBytes)
	if err != nil {
		return 0, err
	}
	vectors, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return 0, err
	}
	key := s.CacheKey(ing)
	if err := s.store.Replace(ctx, key, chunks, vectors); err != nil {
		return 0, fmt.Errorf("store index: %w", err)
	}
	s.logger.Info("retrieval index built", "repo", ing.RepoURL, "chunks", len(chunks), "embedder", s.embedder.Name())
	return len(chunks), nil
}

func (s *Service) embedChunks(ctx context.Context, chunks []Chunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedWorkers)
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatch {
		end := min(start+s.cfg.EmbedBatch, len(chunks))
		g.Go(func() error {
			texts := make([]string, end-start)
			for i := range texts {
				texts[i] = chunks[start+i].Path + "\n" + chunks[start+i].Text
			}
			vecs, err := s.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(texts) {
				return fmt.Errorf("embed: got %d vectors for %d chunks", len(vecs), len(texts))
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	return vectors, nil
}

// Search returns the k chunks of ing most similar to query. A missing index
// is built first. k <= 0 uses the configured TopK.
func (s *Service) Search(ctx context.Context, ing *models.RepoIngestion, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = s.cfg.TopK
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	key := s.CacheKey(ing)
	scored, err := s.store.Search(ctx, key, vecs[0], k)
	if errors.Is(err, ErrIndexNotFound) {
		if _, err := s.Build(ctx, ing); err != nil {
			return nil, err
		}
		scored, err = s.store.Search(ctx, key, vecs[0], k)
	}
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	out := make([]Chunk, len(scored))
	for i, sc := range scored {
		out[i] = sc.Chunk
	}
	return out, nil
}

// Drop deletes the index for ing.
func (s *Service) Drop(ctx context.Context, ing *models.RepoIngestion) error {
	return s.store.Delete(ctx, s.CacheKey(ing))
}
