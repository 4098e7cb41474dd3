package weaviate

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MockClient is an in-memory implementation of ClientInterface for testing.
type MockClient struct {
	mu sync.Mutex
	// Objects stores chunks by ID
	Objects map[string]*ChunkObject
	// ClassCreated records whether EnsureClass ran
	ClassCreated bool
	// EnsureCalls counts EnsureClass calls
	EnsureCalls int
	// Err can be set to make methods return an error
	Err error
	// Inserts counts BatchInsert calls
	Inserts int
}

// NewMockClient creates a new MockClient for testing.
func NewMockClient() *MockClient {
	return &MockClient{Objects: make(map[string]*ChunkObject)}
}

// EnsureClass marks the class as created.
func (m *MockClient) EnsureClass(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnsureCalls++
	if m.Err != nil {
		return m.Err
	}
	m.ClassCreated = true
	return nil
}

// BatchInsert stores copies of objs, replacing any with the same ID.
func (m *MockClient) BatchInsert(ctx context.Context, objs []*ChunkObject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Inserts++
	for _, o := range objs {
		cp := *o
		m.Objects[o.ID] = &cp
	}
	return nil
}

// DeleteByRepoKey removes every object under repoKey.
func (m *MockClient) DeleteByRepoKey(ctx context.Context, repoKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for id, o := range m.Objects {
		if o.RepoKey == repoKey {
			delete(m.Objects, id)
			n++
		}
	}
	return n, nil
}

// NearVector ranks objects under repoKey by cosine distance.
func (m *MockClient) NearVector(ctx context.Context, repoKey string, vector []float32, limit int) ([]*ChunkHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var hits []*ChunkHit
	for _, o := range m.Objects {
		if o.RepoKey != repoKey {
			continue
		}
		hits = append(hits, &ChunkHit{ChunkObject: *o, Distance: cosineDistance(o.Vector, vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CountByRepoKey counts objects under repoKey.
func (m *MockClient) CountByRepoKey(ctx context.Context, repoKey string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	n := 0
	for _, o := range m.Objects {
		if o.RepoKey == repoKey {
			n++
		}
	}
	return n, nil
}

func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// Verify that *MockClient implements ClientInterface at compile time
var _ ClientInterface = (*MockClient)(nil)
