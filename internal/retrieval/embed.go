package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"net/http"
	"net/url"
	"strings"
	"unicode"

	"github.com/ollama/ollama/api"
)

// Embedder turns texts into vectors. Name identifies the model in cache keys.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HashEmbedder is a deterministic bag-of-words embedder using feature
// hashing. It needs no model server.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder returns a 256-dimension embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{Dim: 256}
}

// Name implements Embedder.
func (e *HashEmbedder) Name() string {
	return fmt.Sprintf("hash-%d", e.Dim)
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&(1<<31) != 0 {
			sign = -1
		}
		vec[int(sum%uint32(e.Dim))] += sign
	}
	normalize(vec)
	return vec
}

// tokenize lowercases and splits on anything that is not a letter or digit,
// then splits snake_case and camelCase identifiers into their words too.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	var out []string
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
		parts := splitIdentifier(f)
		if len(parts) > 1 {
			out = append(out, parts...)
		}
	}
	return out
}

func splitIdentifier(s string) []string {
	var parts []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			parts = append(parts, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range s {
		switch {
		case r == '_':
			flush()
		case unicode.IsUpper(r) && i > 0:
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return parts
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

// OllamaEmbedder calls an Ollama server's embed endpoint.
type OllamaEmbedder struct {
	client    *api.Client
	model     string
	batchSize int
}

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "nomic-embed-text"

// NewOllamaEmbedder creates an embedder for the server at baseURL.
func NewOllamaEmbedder(baseURL, model string, httpClient *http.Client) (*OllamaEmbedder, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaEmbedder{client: api.NewClient(u, httpClient), model: model, batchSize: 32}, nil
}

// Name implements Embedder.
func (e *OllamaEmbedder) Name() string {
	return "ollama-" + e.model
}

// Embed implements Embedder, sending texts in batches.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: texts[start:end]})
		if err != nil {
			return nil, fmt.Errorf("ollama embed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, v := range resp.Embeddings {
			normalize(v)
			out = append(out, v)
		}
	}
	return out, nil
}
