package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ubaidzafar05/Rag-github/internal/api"
)

// ClientConfig is the CLI's persisted configuration.
type ClientConfig struct {
	BaseURL       string   `toml:"base_url"`
	Token         string   `toml:"token,omitempty"`
	Credentials   string   `toml:"credentials"`
	PollInterval  Duration `toml:"poll_interval"`
	PollTimeout   Duration `toml:"poll_timeout"`
	DiagramEngine string   `toml:"diagram_engine"`
	MmdcPath      string   `toml:"mmdc_path,omitempty"`
	DiagramDir    string   `toml:"diagram_dir,omitempty"`

	path string
}

// DefaultClient returns the client defaults.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		BaseURL:       "http://localhost:8000",
		Credentials:   string(api.CredentialsCookie),
		PollInterval:  Duration{1500 * time.Millisecond},
		PollTimeout:   Duration{10 * time.Minute},
		DiagramEngine: "lint",
	}
}

// ClientPath returns the config file location. RAGCHAT_CONFIG wins over
// $XDG_CONFIG_HOME/ragchat/config.toml.
func ClientPath() (string, error) {
	if p := os.Getenv("RAGCHAT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "ragchat", "config.toml"), nil
}

// LoadClient reads the client config at path. A missing file yields defaults.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()
	cfg.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config back to where it was loaded from. The file holds a
// token, so it is private to the user.
func (c *ClientConfig) Save() error {
	if c.path == "" {
		return errors.New("config has no path")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(c.path, data, 0o600)
}

// Path returns the file the config was loaded from.
func (c *ClientConfig) Path() string {
	return c.path
}

// API returns the explicit client configuration for api.NewHTTPClient.
func (c *ClientConfig) API() api.ClientConfig {
	return api.ClientConfig{
		BaseURL:     c.BaseURL,
		Token:       c.Token,
		Credentials: api.CredentialsMode(c.Credentials),
	}
}

// Poll returns the ingestion polling budget.
func (c *ClientConfig) Poll() *api.PollConfig {
	p := api.DefaultPollConfig()
	if c.PollInterval.Duration > 0 {
		p.Interval = c.PollInterval.Duration
	}
	if c.PollTimeout.Duration > 0 {
		p.MaxDuration = c.PollTimeout.Duration
		p.MaxAttempts = int(c.PollTimeout.Duration/p.Interval) + 1
	}
	p.MaxTransientErrors = 3
	return p
}
