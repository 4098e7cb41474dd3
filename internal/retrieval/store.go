package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrIndexNotFound is returned when no index exists for a key.
var ErrIndexNotFound = errors.New("retrieval index not found")

// Scored is a chunk with its similarity to a query.
type Scored struct {
	Chunk
	Score float32
}

// VectorStore holds embedded chunks grouped by index key.
type VectorStore interface {
	// Replace discards any chunks stored under key and stores these.
	Replace(ctx context.Context, key string, chunks []Chunk, vectors [][]float32) error
	// Search returns up to k chunks under key, best first. It returns
	// ErrIndexNotFound if nothing was ever stored under key.
	Search(ctx context.Context, key string, query []float32, k int) ([]Scored, error)
	Delete(ctx context.Context, key string) error
}

// Cache is a byte-oriented key/value store for serialized indexes.
type Cache interface {
	PutIndex(ctx context.Context, key string, data []byte) error
	GetIndex(ctx context.Context, key string) ([]byte, error)
	DeleteIndex(ctx context.Context, key string) error
}

// LocalStore serializes each index into a Cache and searches it with exact
// cosine similarity.
type LocalStore struct {
	cache Cache
	// notFound reports whether an error from cache means a missing key.
	notFound func(error) bool
}

// NewLocalStore creates a store backed by cache. isNotFound classifies the
// cache's miss error.
func NewLocalStore(cache Cache, isNotFound func(error) bool) *LocalStore {
	return &LocalStore{cache: cache, notFound: isNotFound}
}

type storedIndex struct {
	Chunks  []Chunk     `json:"chunks"`
	Vectors [][]float32 `json:"vectors"`
}

// Replace implements VectorStore.
func (s *LocalStore) Replace(ctx context.Context, key string, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("replace index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	data, err := json.Marshal(storedIndex{Chunks: chunks, Vectors: vectors})
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	return s.cache.PutIndex(ctx, key, data)
}

// Search implements VectorStore.
func (s *LocalStore) Search(ctx context.Context, key string, query []float32, k int) ([]Scored, error) {
	data, err := s.cache.GetIndex(ctx, key)
	if err != nil {
		if s.notFound != nil && s.notFound(err) {
			return nil, ErrIndexNotFound
		}
		return nil, fmt.Errorf("load index: %w", err)
	}
	var idx storedIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("unmarshal index: %w", err)
	}
	return TopK(idx.Chunks, idx.Vectors, query, k), nil
}

// Delete implements VectorStore.
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	return s.cache.DeleteIndex(ctx, key)
}

// Cosine returns the cosine similarity of a and b, or 0 if either is zero.
func Cosine(a, b []float32) float32 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// TopK ranks chunks by cosine similarity to query. Ties keep input order.
func TopK(chunks []Chunk, vectors [][]float32, query []float32, k int) []Scored {
	scored := make([]Scored, len(chunks))
	for i, c := range chunks {
		scored[i] = Scored{Chunk: c, Score: Cosine(vectors[i], query)}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
