// Package config loads ragchat server and client configuration.
//
// Server settings come from built-in defaults, an optional TOML file, a
// .env file and RAGCHAT_* environment variables, in increasing order of
// precedence. Command-line flags are applied last by the caller. The client
// keeps a small TOML file under the user's config directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration written as "90s" or "10m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LLMConfig selects the chat model.
type LLMConfig struct {
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Temperature float32  `toml:"temperature"`
	Timeout     Duration `toml:"timeout"`
}

// EmbeddingsConfig selects the embedder used for retrieval.
type EmbeddingsConfig struct {
	Provider  string `toml:"provider"` // hash or ollama
	OllamaURL string `toml:"ollama_url"`
	Model     string `toml:"model"`
}

// VectorStoreConfig selects where chunk vectors live.
type VectorStoreConfig struct {
	Provider    string `toml:"provider"` // local or weaviate
	WeaviateURL string `toml:"weaviate_url"`
}

// RetrievalConfig bounds chunking and search.
type RetrievalConfig struct {
	TopK         int   `toml:"top_k"`
	ChunkLines   int   `toml:"chunk_lines"`
	ChunkOverlap int   `toml:"chunk_overlap"`
	MaxFileBytes int64 `toml:"max_file_bytes"`
}

// ValidationConfig controls the commands /apply may run.
type ValidationConfig struct {
	Allowed []string `toml:"allowed"`
	Timeout Duration `toml:"timeout"`
}

// ServerConfig is the complete server configuration.
type ServerConfig struct {
	Listen       string   `toml:"listen"`
	DataDir      string   `toml:"data_dir"`
	AdminToken   string   `toml:"admin_token"`
	LogLevel     string   `toml:"log_level"`
	LogFormat    string   `toml:"log_format"`
	TLSCert      string   `toml:"tls_cert"`
	TLSKey       string   `toml:"tls_key"`
	SecureCookie bool     `toml:"secure_cookie"`
	WebhookURLs  []string `toml:"webhook_urls"`

	RequestsPerMinute int      `toml:"requests_per_minute"`
	IngestWorkers     int      `toml:"ingest_workers"`
	IngestQueue       int      `toml:"ingest_queue"`
	CloneTimeout      Duration `toml:"clone_timeout"`
	MaxIndexFiles     int      `toml:"max_index_files"`
	MaxContextTokens  int      `toml:"max_context_tokens"`
	JobRetention      Duration `toml:"job_retention"`
	GCInterval        Duration `toml:"gc_interval"`

	LLM         LLMConfig         `toml:"llm"`
	Embeddings  EmbeddingsConfig  `toml:"embeddings"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Validation  ValidationConfig  `toml:"validation"`
}

// DefaultServer returns the built-in server defaults.
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		Listen:            "0.0.0.0:8000",
		DataDir:           "/var/lib/ragchat",
		LogLevel:          "info",
		LogFormat:         "json",
		RequestsPerMinute: 120,
		IngestWorkers:     2,
		IngestQueue:       32,
		CloneTimeout:      Duration{5 * time.Minute},
		MaxIndexFiles:     500,
		MaxContextTokens:  24000,
		JobRetention:      Duration{7 * 24 * time.Hour},
		GCInterval:        Duration{6 * time.Hour},
		LLM: LLMConfig{
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.2,
			Timeout:     Duration{2 * time.Minute},
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "hash",
			OllamaURL: "http://localhost:11434",
			Model:     "nomic-embed-text",
		},
		VectorStore: VectorStoreConfig{
			Provider:    "local",
			WeaviateURL: "http://localhost:8080",
		},
		Retrieval: RetrievalConfig{
			TopK:         6,
			ChunkLines:   200,
			ChunkOverlap: 40,
			MaxFileBytes: 200000,
		},
		Validation: ValidationConfig{
			Timeout: Duration{2 * time.Minute},
		},
	}
}

// LoadServer builds a ServerConfig from defaults, the TOML file at path
// (optional, empty to skip), envFile and the process environment. A missing
// envFile is ignored; a missing config file named explicitly is an error.
func LoadServer(path, envFile string) (*ServerConfig, error) {
	cfg := DefaultServer()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables read through getenv.
func (c *ServerConfig) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("RAGCHAT_LISTEN", &c.Listen)
	str("RAGCHAT_DATA_DIR", &c.DataDir)
	str("RAGCHAT_ADMIN_TOKEN", &c.AdminToken)
	str("RAGCHAT_LOG_LEVEL", &c.LogLevel)
	str("RAGCHAT_LOG_FORMAT", &c.LogFormat)
	str("RAGCHAT_TLS_CERT", &c.TLSCert)
	str("RAGCHAT_TLS_KEY", &c.TLSKey)
	str("GROQ_API_KEY", &c.LLM.APIKey)
	str("RAGCHAT_LLM_API_KEY", &c.LLM.APIKey)
	str("RAGCHAT_LLM_BASE_URL", &c.LLM.BaseURL)
	str("RAGCHAT_LLM_MODEL", &c.LLM.Model)
	str("RAGCHAT_EMBEDDINGS_PROVIDER", &c.Embeddings.Provider)
	str("RAGCHAT_OLLAMA_URL", &c.Embeddings.OllamaURL)
	str("RAGCHAT_EMBEDDINGS_MODEL", &c.Embeddings.Model)
	str("RAGCHAT_VECTOR_STORE", &c.VectorStore.Provider)
	str("RAGCHAT_WEAVIATE_URL", &c.VectorStore.WeaviateURL)

	if v := getenv("RAGCHAT_WEBHOOK_URLS"); v != "" {
		c.WebhookURLs = SplitList(v)
	}
	if v := getenv("RAGCHAT_SECURE_COOKIE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RAGCHAT_SECURE_COOKIE: %w", err)
		}
		c.SecureCookie = b
	}
	if v := getenv("RAGCHAT_INGEST_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RAGCHAT_INGEST_WORKERS: %w", err)
		}
		c.IngestWorkers = n
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *ServerConfig) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address is required")
	case c.DataDir == "":
		return errors.New("data_dir is required")
	case (c.TLSCert == "") != (c.TLSKey == ""):
		return errors.New("tls_cert and tls_key must be set together")
	}
	switch c.Embeddings.Provider {
	case "hash", "ollama":
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	switch c.VectorStore.Provider {
	case "local", "weaviate":
	default:
		return fmt.Errorf("unknown vector store %q", c.VectorStore.Provider)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkLines {
		return errors.New("chunk_overlap must be smaller than chunk_lines")
	}
	return nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
