// Package server provides the read-only HTTP lookup API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/cubist/internal/lookup"
	"github.com/roach88/cubist/internal/metrics"
	"github.com/roach88/cubist/internal/store"
)

// Config holds server configuration options.
type Config struct {
	// Lookup answers queries; its catalog validates them.
	Lookup *lookup.Service

	// Store lists artifact keys.
	Store store.Store

	// Registry is served on /metrics. Defaults to metrics.NewRegistry().
	Registry *prometheus.Registry

	Logger *slog.Logger

	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP lookup server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	router     *gin.Engine
	httpServer *http.Server
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = metrics.NewRegistry()
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	router := gin.New()
	router.Use(Recovery(logger))
	router.Use(Logger(logger))

	s := &Server{
		cfg:    cfg,
		logger: logger.With("component", "server"),
		router: router,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.ReadTimeout * 4,
	}
	return s
}

func (s *Server) registerRoutes() {
	h := &handlers{lookup: s.cfg.Lookup, store: s.cfg.Store}

	s.router.GET("/healthz", h.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{})))

	v1 := s.router.Group("/v1")
	{
		v1.GET("/lookup", h.lookupRows)
		v1.GET("/artifacts", h.listArtifacts)
		v1.GET("/artifacts/:key", h.getArtifact)
	}
}

// Router returns the gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", l.Addr().String())
		if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
