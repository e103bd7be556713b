// Package server assembles kag-server from its components and runs the
// HTTP service. Every component is constructed exactly once here and
// injected into its consumers.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/kagsys/kag-server/pkg/api"
	"github.com/kagsys/kag-server/pkg/auth"
	"github.com/kagsys/kag-server/pkg/config"
	"github.com/kagsys/kag-server/pkg/database/migrate"
	"github.com/kagsys/kag-server/pkg/document"
	docpostgres "github.com/kagsys/kag-server/pkg/document/postgres"
	"github.com/kagsys/kag-server/pkg/engine"
	"github.com/kagsys/kag-server/pkg/engine/vllm"
	"github.com/kagsys/kag-server/pkg/health"
	"github.com/kagsys/kag-server/pkg/kvcache"
	"github.com/kagsys/kag-server/pkg/session"
)

// Version is set at build time.
var Version = "dev"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

// Server is the assembled kag-server.
type Server struct {
	cfg *config.Config

	registry *session.Registry
	cache    *kvcache.Cache
	store    document.Store
	sweeper  *session.Sweeper
	checker  *health.Checker

	db         *sql.DB
	httpServer *http.Server
}

// New builds a server from configuration. The engine client, document
// store, session registry, context cache, and sweeper are each created
// once and shared.
func New(cfg *config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		registry: session.NewRegistry(),
		checker:  health.NewChecker(),
	}

	if err := s.initStore(); err != nil {
		return nil, err
	}

	client := vllm.New(vllm.Config{
		BaseURL: cfg.Engine.BaseURL,
		Model:   cfg.Engine.Model,
		Timeout: cfg.Engine.Timeout,
	})
	s.checker.AddProbe("engine", func(ctx context.Context) error {
		if !client.Healthy(ctx) {
			return fmt.Errorf("engine unreachable at %s", cfg.Engine.BaseURL)
		}
		return nil
	})

	s.assemble(client, client)
	return s, nil
}

// initStore selects the document store: PostgreSQL when a DSN is
// configured, in-memory otherwise. Migrations run before first use.
func (s *Server) initStore() error {
	if s.cfg.Database.DSN == "" {
		slog.Info("server: using in-memory document store")
		s.store = document.NewMemoryStore()
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(s.cfg.Database.MaxOpenConns)

	if err := migrate.Run(db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrating database: %w", err)
	}

	s.db = db
	s.store = docpostgres.New(db)
	slog.Info("server: using postgres document store")
	return nil
}

// assemble wires the remaining components around the chosen engine and
// store.
func (s *Server) assemble(builder engine.Builder, generator engine.Generator) {
	s.cache = kvcache.New(s.store, builder, s.registry, kvcache.Config{
		TokenBudget:  s.cfg.Cache.TokenBudget,
		BuildTimeout: s.cfg.Cache.BuildTimeout,
	})
	s.sweeper = session.NewSweeper(s.registry, s.cache, s.cfg.Sessions.Timeout)

	ingestor := document.NewIngestor(s.store,
		document.NewSplitter(s.cfg.Ingest.ChunkSize, s.cfg.Ingest.ChunkOverlap))

	handler := api.NewHandler(
		s.registry, s.cache, generator, ingestor, s.store, s.checker,
		s.cfg.Engine.Model, auth.Middleware(s.authenticator()))

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// authenticator builds the auth chain from configuration.
func (s *Server) authenticator() auth.Authenticator {
	var chain []auth.Authenticator
	if s.cfg.Auth.JWTSecret != "" {
		chain = append(chain, auth.NewJWTAuthenticator(s.cfg.Auth.JWTSecret))
	}
	if len(s.cfg.Auth.APIKeys) > 0 {
		keys := make([]auth.APIKey, 0, len(s.cfg.Auth.APIKeys))
		for _, k := range s.cfg.Auth.APIKeys {
			keys = append(keys, auth.APIKey{Name: k.Name, Hash: k.Hash})
		}
		chain = append(chain, auth.NewAPIKeyAuthenticator(keys))
	}
	return auth.NewChainedAuthenticator(s.cfg.Auth.AllowAnonymous, chain...)
}

// Handler exposes the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve starts the sweeper and the HTTP server, and blocks until ctx is
// canceled or the server fails. Shutdown is graceful: readiness flips to
// draining, then in-flight requests get shutdownTimeout to finish.
func (s *Server) Serve(ctx context.Context) error {
	s.sweeper.Start(s.cfg.Sessions.SweepInterval)
	s.checker.SetReady()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "address", s.cfg.Server.Address, "version", Version)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.checker.SetDraining()
	slog.Info("server: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// Close releases all resources. Safe to call after a failed Serve.
func (s *Server) Close() error {
	var errs []error

	if s.sweeper != nil {
		errs = append(errs, s.sweeper.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}

	return errors.Join(errs...)
}
