package weaviate

import (
	"context"
)

// ChunkObject is one embedded code chunk as stored in Weaviate.
type ChunkObject struct {
	ID        string
	RepoKey   string
	Path      string
	StartLine int
	EndLine   int
	Text      string
	Vector    []float32
}

// ChunkHit is a ChunkObject returned by a similarity query.
type ChunkHit struct {
	ChunkObject
	// Distance is the cosine distance reported by Weaviate, 0 for identical.
	Distance float32
}

// ClientInterface defines the Weaviate operations the chunk store needs.
// This interface enables mocking for testing the store.
type ClientInterface interface {
	// Schema operations
	EnsureClass(ctx context.Context) error

	// Object operations
	BatchInsert(ctx context.Context, objs []*ChunkObject) error
	DeleteByRepoKey(ctx context.Context, repoKey string) (int, error)

	// Query operations
	NearVector(ctx context.Context, repoKey string, vector []float32, limit int) ([]*ChunkHit, error)
	CountByRepoKey(ctx context.Context, repoKey string) (int, error)
}

// Verify that *Client implements ClientInterface at compile time
var _ ClientInterface = (*Client)(nil)
