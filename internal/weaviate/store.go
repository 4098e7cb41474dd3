package weaviate

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ubaidzafar05/Rag-github/internal/retrieval"
)

// ChunkStore is a retrieval.VectorStore backed by Weaviate.
type ChunkStore struct {
	client ClientInterface

	classMu      sync.Mutex
	classCreated bool
}

// NewChunkStore creates a store over client.
func NewChunkStore(client ClientInterface) *ChunkStore {
	return &ChunkStore{client: client}
}

var _ retrieval.VectorStore = (*ChunkStore)(nil)

// ensureClass creates the class once. A failed attempt is retried by the
// next caller.
func (s *ChunkStore) ensureClass(ctx context.Context) error {
	s.classMu.Lock()
	defer s.classMu.Unlock()
	if s.classCreated {
		return nil
	}
	if err := s.client.EnsureClass(ctx); err != nil {
		return err
	}
	s.classCreated = true
	return nil
}

// objectID derives a stable object ID so re-inserting a chunk replaces it.
func objectID(key string, c retrieval.Chunk) string {
	name := fmt.Sprintf("%s:%s:%d-%d", key, c.Path, c.StartLine, c.EndLine)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// Replace implements retrieval.VectorStore.
func (s *ChunkStore) Replace(ctx context.Context, key string, chunks []retrieval.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("replace index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if err := s.ensureClass(ctx); err != nil {
		return err
	}
	if _, err := s.client.DeleteByRepoKey(ctx, key); err != nil {
		return err
	}

	objs := make([]*ChunkObject, len(chunks))
	for i, c := range chunks {
		objs[i] = &ChunkObject{
			ID:        objectID(key, c),
			RepoKey:   key,
			Path:      c.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Text:      c.Text,
			Vector:    vectors[i],
		}
	}
	return s.client.BatchInsert(ctx, objs)
}

// Search implements retrieval.VectorStore. Score is 1 minus the distance.
func (s *ChunkStore) Search(ctx context.Context, key string, query []float32, k int) ([]retrieval.Scored, error) {
	n, err := s.client.CountByRepoKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, retrieval.ErrIndexNotFound
	}

	hits, err := s.client.NearVector(ctx, key, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]retrieval.Scored, len(hits))
	for i, h := range hits {
		out[i] = retrieval.Scored{
			Chunk: retrieval.Chunk{Path: h.Path, StartLine: h.StartLine, EndLine: h.EndLine, Text: h.Text},
			Score: 1 - h.Distance,
		}
	}
	return out, nil
}

// Delete implements retrieval.VectorStore.
func (s *ChunkStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteByRepoKey(ctx, key)
	return err
}
