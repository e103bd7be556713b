// Package config loads and validates the kag-server configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Engine   EngineConfig   `yaml:"engine"`
	Cache    CacheConfig    `yaml:"cache"`
	Sessions SessionsConfig `yaml:"sessions"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Address string `yaml:"address"`
}

// EngineConfig configures the inference engine connection.
type EngineConfig struct {
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig configures the context cache.
type CacheConfig struct {
	// TokenBudget is the maximum number of tokens primed into one context.
	TokenBudget int `yaml:"token_budget"`

	// BuildTimeout bounds a single context build from the caller's view.
	BuildTimeout time.Duration `yaml:"build_timeout"`
}

// SessionsConfig configures session lifecycle.
type SessionsConfig struct {
	// Timeout is the idle duration after which a session is evicted.
	Timeout time.Duration `yaml:"timeout"`

	// SweepInterval is how often the sweeper scans for idle sessions.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// IngestConfig configures document splitting.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// DatabaseConfig configures the document database connection.
// An empty DSN selects the in-memory document store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	// JWTSecret is the HMAC key for bearer token verification.
	JWTSecret string `yaml:"jwt_secret"`

	// APIKeys lists accepted API keys as bcrypt hashes keyed by name.
	APIKeys []APIKeyDef `yaml:"api_keys"`

	// AllowAnonymous permits unauthenticated requests under the
	// "anonymous" user ID.
	AllowAnonymous bool `yaml:"allow_anonymous"`
}

// APIKeyDef defines an accepted API key.
type APIKeyDef struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"` // bcrypt hash of the key value
}

// Load loads configuration from a YAML file.
// The path is expected to come from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	ApplyDefaults(&cfg)

	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// ApplyDefaults fills in default values for unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "kag-server"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":11434"
	}
	if cfg.Engine.BaseURL == "" {
		cfg.Engine.BaseURL = "http://localhost:8000"
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = 120 * time.Second
	}
	if cfg.Cache.TokenBudget == 0 {
		cfg.Cache.TokenBudget = 8192
	}
	if cfg.Cache.BuildTimeout == 0 {
		cfg.Cache.BuildTimeout = 2 * time.Minute
	}
	if cfg.Sessions.Timeout == 0 {
		cfg.Sessions.Timeout = 24 * time.Hour
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = time.Hour
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 512
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = 128
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, "ingest.chunk_overlap must be smaller than ingest.chunk_size")
	}
	if c.Cache.TokenBudget < 0 {
		errs = append(errs, "cache.token_budget must not be negative")
	}
	if !c.Auth.AllowAnonymous && c.Auth.JWTSecret == "" && len(c.Auth.APIKeys) == 0 {
		errs = append(errs, "auth requires a jwt_secret or api_keys unless allow_anonymous is set")
	}
	for _, k := range c.Auth.APIKeys {
		if k.Name == "" || k.Hash == "" {
			errs = append(errs, "auth.api_keys entries require name and hash")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
