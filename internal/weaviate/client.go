// Package weaviate stores retrieval chunks in a Weaviate instance.
// Vectors are computed by the caller; the class uses no vectorizer.
package weaviate

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	weaviatemodels "github.com/weaviate/weaviate/entities/models"
)

// ClassName is the Weaviate class holding chunks of every repository.
const ClassName = "RepoChunk"

// ServerVersion holds parsed Weaviate version info
type ServerVersion struct {
	Version string // e.g., "1.25.0"
	Major   int
	Minor   int
	Patch   int
}

var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)`)

// parseVersion parses a version string like "1.25.0" into ServerVersion
func parseVersion(version string) (*ServerVersion, error) {
	m := versionRe.FindStringSubmatch(version)
	if len(m) < 4 {
		return nil, fmt.Errorf("invalid version format: %s", version)
	}
	major, _ := strconv.Atoi(m[1])
	minor, _ := strconv.Atoi(m[2])
	patch, _ := strconv.Atoi(m[3])
	return &ServerVersion{Version: version, Major: major, Minor: minor, Patch: patch}, nil
}

func (v *ServerVersion) atLeast(major, minor int) bool {
	return v.Major > major || (v.Major == major && v.Minor >= minor)
}

// SupportsFeature checks if the server supports a specific feature
func (v *ServerVersion) SupportsFeature(feature string) bool {
	switch feature {
	case "batch_delete":
		return v.atLeast(1, 13)
	case "text_filter":
		return v.atLeast(1, 19)
	default:
		return true
	}
}

// Client wraps the Weaviate client with chunk-specific operations.
type Client struct {
	client    *weaviate.Client
	url       string
	batchSize int
}

// NewClient creates a client for a Weaviate server at url. A missing scheme
// means http.
func NewClient(url string) (*Client, error) {
	cfg := weaviate.Config{Host: url, Scheme: "http"}
	switch {
	case strings.HasPrefix(url, "http://"):
		cfg.Host = strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		cfg.Host = strings.TrimPrefix(url, "https://")
		cfg.Scheme = "https"
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Weaviate client: %w", err)
	}
	return &Client{client: client, url: url, batchSize: 100}, nil
}

// Ping checks if Weaviate is reachable
func (c *Client) Ping(ctx context.Context) error {
	live, err := c.client.Misc().LiveChecker().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to Weaviate at %s: %w", c.url, err)
	}
	if !live {
		return errors.New("weaviate is not live")
	}
	return nil
}

// GetServerVersion fetches and parses the Weaviate server version
func (c *Client) GetServerVersion(ctx context.Context) (*ServerVersion, error) {
	meta, err := c.client.Misc().MetaGetter().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get server metadata: %w", err)
	}
	return parseVersion(meta.Version)
}

// CheckCompatible fails if the server lacks a feature the chunk store uses.
func (c *Client) CheckCompatible(ctx context.Context) error {
	v, err := c.GetServerVersion(ctx)
	if err != nil {
		return err
	}
	for _, f := range []string{"batch_delete", "text_filter"} {
		if !v.SupportsFeature(f) {
			return fmt.Errorf("weaviate %s does not support %s", v.Version, f)
		}
	}
	return nil
}

// EnsureClass creates the chunk class unless it already exists.
func (c *Client) EnsureClass(ctx context.Context) error {
	exists, err := c.client.Schema().ClassExistenceChecker().WithClassName(ClassName).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to check class %s: %w", ClassName, err)
	}
	if exists {
		return nil
	}

	filterable := true
	class := &weaviatemodels.Class{
		Class:       ClassName,
		Description: "Line-window chunks of ingested repositories",
		Vectorizer:  "none",
		Properties: []*weaviatemodels.Property{
			{Name: "repoKey", DataType: []string{"text"}, Tokenization: "field", IndexFilterable: &filterable},
			{Name: "path", DataType: []string{"text"}, Tokenization: "field"},
			{Name: "startLine", DataType: []string{"int"}},
			{Name: "endLine", DataType: []string{"int"}},
			{Name: "text", DataType: []string{"text"}},
		},
	}
	if err := c.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("failed to create class %s: %w", ClassName, err)
	}
	return nil
}

// BatchInsert writes objs in batches. Objects with an existing ID are replaced.
func (c *Client) BatchInsert(ctx context.Context, objs []*ChunkObject) error {
	for start := 0; start < len(objs); start += c.batchSize {
		end := min(start+c.batchSize, len(objs))
		batch := make([]*weaviatemodels.Object, 0, end-start)
		for _, o := range objs[start:end] {
			batch = append(batch, &weaviatemodels.Object{
				Class:  ClassName,
				ID:     strfmt.UUID(o.ID),
				Vector: o.Vector,
				Properties: map[string]interface{}{
					"repoKey":   o.RepoKey,
					"path":      o.Path,
					"startLine": o.StartLine,
					"endLine":   o.EndLine,
					"text":      o.Text,
				},
			})
		}

		resp, err := c.client.Batch().ObjectsBatcher().WithObjects(batch...).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert object %s: %s", r.ID, r.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func repoKeyFilter(repoKey string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"repoKey"}).
		WithOperator(filters.Equal).
		WithValueText(repoKey)
}

// DeleteByRepoKey removes every chunk stored under repoKey and returns how
// many were deleted.
func (c *Client) DeleteByRepoKey(ctx context.Context, repoKey string) (int, error) {
	resp, err := c.client.Batch().ObjectsBatchDeleter().
		WithClassName(ClassName).
		WithWhere(repoKeyFilter(repoKey)).
		WithOutput("minimal").
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	if resp == nil || resp.Results == nil {
		return 0, nil
	}
	return int(resp.Results.Successful), nil
}

// NearVector returns up to limit chunks under repoKey closest to vector.
func (c *Client) NearVector(ctx context.Context, repoKey string, vector []float32, limit int) ([]*ChunkHit, error) {
	fields := []graphql.Field{
		{Name: "repoKey"},
		{Name: "path"},
		{Name: "startLine"},
		{Name: "endLine"},
		{Name: "text"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}
	nearVector := c.client.GraphQL().NearVectorArgBuilder().WithVector(vector)

	result, err := c.client.GraphQL().Get().
		WithClassName(ClassName).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithWhere(repoKeyFilter(repoKey)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("failed to query chunks: %s", result.Errors[0].Message)
	}

	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, errors.New("unexpected get response format")
	}
	rows, _ := get[ClassName].([]interface{})
	return parseHits(rows), nil
}

// parseHits converts GraphQL rows into hits, skipping malformed rows.
func parseHits(rows []interface{}) []*ChunkHit {
	hits := make([]*ChunkHit, 0, len(rows))
	for _, row := range rows {
		m, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		h := &ChunkHit{ChunkObject: ChunkObject{
			RepoKey:   stringField(m, "repoKey"),
			Path:      stringField(m, "path"),
			StartLine: intField(m, "startLine"),
			EndLine:   intField(m, "endLine"),
			Text:      stringField(m, "text"),
		}}
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			h.ID = stringField(add, "id")
			if d, ok := add["distance"].(float64); ok {
				h.Distance = float32(d)
			}
		}
		hits = append(hits, h)
	}
	return hits
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField reads a JSON number, which decodes as float64.
func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// CountByRepoKey returns the number of chunks stored under repoKey.
func (c *Client) CountByRepoKey(ctx context.Context, repoKey string) (int, error) {
	metaField := graphql.Field{
		Name:   "meta",
		Fields: []graphql.Field{{Name: "count"}},
	}

	result, err := c.client.GraphQL().Aggregate().
		WithClassName(ClassName).
		WithWhere(repoKeyFilter(repoKey)).
		WithFields(metaField).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	if len(result.Errors) > 0 {
		// A missing class means nothing was ever stored.
		if strings.Contains(result.Errors[0].Message, ClassName) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count chunks: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, errors.New("unexpected aggregate response format")
	}
	classData, ok := data[ClassName].([]interface{})
	if !ok || len(classData) == 0 {
		return 0, nil
	}
	first, ok := classData[0].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	meta, ok := first["meta"].(map[string]interface{})
	if !ok {
		return 0, nil
	}
	return intField(meta, "count"), nil
}
