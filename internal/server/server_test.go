package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagsys/kag-server/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.AllowAnonymous = true
	return cfg
}

func TestNew_DefaultsToMemoryStore(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	assert.NotNil(t, s.Handler())
	assert.Nil(t, s.db)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_RejectsMissingAuth(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.AllowAnonymous = false

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestHandler_Liveness(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_AuthChainFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "secret"
	cfg.Auth.AllowAnonymous = false

	s, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_AnonymousAccess(t *testing.T) {
	s, err := New(testConfig())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Sessions.SweepInterval = time.Hour

	s, err := New(cfg)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after context cancellation")
	}
	assert.Equal(t, "draining", s.checker.State())
}
