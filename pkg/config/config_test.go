package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTempConfig(t, `
auth:
  allow_anonymous: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "kag-server", cfg.Server.Name)
	assert.Equal(t, ":11434", cfg.Server.Address)
	assert.Equal(t, 8192, cfg.Cache.TokenBudget)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.Timeout)
	assert.Equal(t, time.Hour, cfg.Sessions.SweepInterval)
	assert.Equal(t, 512, cfg.Ingest.ChunkSize)
	assert.Equal(t, 128, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestLoad_Values(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9090"
engine:
  base_url: "http://vllm:8000"
  model: "qwq-32b"
cache:
  token_budget: 4096
  build_timeout: 30s
sessions:
  timeout: 1h
  sweep_interval: 5m
auth:
  allow_anonymous: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "http://vllm:8000", cfg.Engine.BaseURL)
	assert.Equal(t, "qwq-32b", cfg.Engine.Model)
	assert.Equal(t, 4096, cfg.Cache.TokenBudget)
	assert.Equal(t, 30*time.Second, cfg.Cache.BuildTimeout)
	assert.Equal(t, time.Hour, cfg.Sessions.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Sessions.SweepInterval)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("KAG_TEST_DSN", "postgres://kag:secret@db/kag")

	path := writeTempConfig(t, `
database:
  dsn: "${KAG_TEST_DSN}"
auth:
  allow_anonymous: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://kag:secret@db/kag", cfg.Database.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [not: a: mapping")

	_, err := Load(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestValidate_OverlapTooLarge(t *testing.T) {
	cfg := Default()
	cfg.Auth.AllowAnonymous = true
	cfg.Ingest.ChunkSize = 100
	cfg.Ingest.ChunkOverlap = 100

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestValidate_AuthRequired(t *testing.T) {
	cfg := Default()

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "allow_anonymous")
}

func TestValidate_APIKeyEntries(t *testing.T) {
	cfg := Default()
	cfg.Auth.APIKeys = []APIKeyDef{{Name: "ci"}}

	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api_keys")
}

func TestValidate_OK(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "test-secret"

	assert.NoError(t, cfg.Validate())
}
