// Package server exposes sentence-level extraction over HTTP with gin.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/go-kgextract/pkg/config"
	"github.com/soundprediction/go-kgextract/pkg/server/handlers"
)

// Dependencies are the handlers' collaborators.
type Dependencies struct {
	Extract  *handlers.ExtractHandler
	Features *handlers.FeaturesHandler
	Checks   []handlers.Check
	Logger   *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg    config.ServerConfig
	deps   Dependencies
	router *gin.Engine
	server *http.Server
	logger *slog.Logger
}

// New creates a server; call Setup before Start.
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, deps: deps, router: gin.New(), logger: logger}
}

// Setup registers middleware and routes.
func (s *Server) Setup() {
	s.router.Use(gin.Recovery(), s.requestLogger())

	health := handlers.NewHealthHandler(s.deps.Checks...)
	s.router.GET("/health", health.HealthCheck)
	s.router.GET("/ready", health.ReadinessCheck)

	v1 := s.router.Group("/v1")
	if s.deps.Extract != nil {
		v1.POST("/extract", s.deps.Extract.Extract)
	}
	if s.deps.Features != nil {
		v1.POST("/features", s.deps.Features.Features)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
