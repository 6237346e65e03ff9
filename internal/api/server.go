// Package api exposes the admin HTTP interface: document upload and
// deletion, dictionary management, templates, stats, and debug search.
// Every /api route requires the bearer token; /health does not.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/kb"
	"github.com/jhh003/limbusguide/internal/retriever"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against slow-header clients.
	ReadHeaderTimeout = 10 * time.Second

	ReadTimeout  = 30 * time.Second
	WriteTimeout = 60 * time.Second
	IdleTimeout  = 120 * time.Second

	// maxUploadBytes bounds document upload request bodies.
	maxUploadBytes = 8 << 20
)

// Server is the admin HTTP server.
type Server struct {
	mux       *http.ServeMux
	kb        *kb.Manager
	retriever *retriever.Retriever
	cfg       config.Server
	token     string
	limiter   *rateLimiter
	logger    *slog.Logger
}

// NewServer builds the server with all routes registered. When cfg.Token
// is empty a random token is generated; read it back with Token.
func NewServer(manager *kb.Manager, r *retriever.Retriever, cfg config.Server, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	token := cfg.Token
	if token == "" {
		generated, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate admin token: %w", err)
		}
		token = generated
		logger.Info("generated admin API token", "token", token)
	}

	s := &Server{
		mux:       http.NewServeMux(),
		kb:        manager,
		retriever: r,
		cfg:       cfg,
		token:     token,
		limiter:   newRateLimiter(cfg.RateLimit, cfg.Burst),
		logger:    logger,
	}
	s.registerRoutes()
	return s, nil
}

// Token returns the bearer token in use.
func (s *Server) Token() string {
	return s.token
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/search", s.handleSearch)
	api.HandleFunc("GET /api/documents", s.handleListDocuments)
	api.HandleFunc("POST /api/documents", s.handleUploadDocument)
	api.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	api.HandleFunc("DELETE /api/scopes/{scope}", s.handleClearScope)
	api.HandleFunc("GET /api/chunks", s.handleListChunks)
	api.HandleFunc("GET /api/stats", s.handleStats)
	api.HandleFunc("GET /api/aliases", s.handleListAliases)
	api.HandleFunc("POST /api/aliases", s.handleSetAlias)
	api.HandleFunc("DELETE /api/aliases/{alias}", s.handleDeleteAlias)
	api.HandleFunc("GET /api/status-mappings", s.handleListStatusMappings)
	api.HandleFunc("POST /api/status-mappings", s.handleSetStatusMapping)
	api.HandleFunc("DELETE /api/status-mappings/{term}/{subcategory}", s.handleDeleteStatusMapping)
	api.HandleFunc("GET /api/templates", s.handleListTemplates)
	api.HandleFunc("GET /api/templates/{name}", s.handleGetTemplate)
	api.HandleFunc("PUT /api/templates/{name}", s.handleSaveTemplate)
	api.HandleFunc("DELETE /api/templates/{name}", s.handleDeleteTemplate)

	s.mux.Handle("/api/", s.authMiddleware(api))
}

// Handler returns the full handler with middleware applied.
// Order: recovery, logging, rate limit, routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		s.recoveryMiddleware,
		s.loggingMiddleware,
		s.rateLimitMiddleware,
	)
}

// Run starts the server and blocks until ctx is canceled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin HTTP server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down admin HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
