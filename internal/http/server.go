// Package http exposes the nomee API over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stephdmurray-sys/nomee-sub001/internal/auth"
	"github.com/stephdmurray-sys/nomee-sub001/internal/blob"
	"github.com/stephdmurray-sys/nomee-sub001/internal/contribution"
	"github.com/stephdmurray-sys/nomee-sub001/internal/imports"
	"github.com/stephdmurray-sys/nomee-sub001/internal/logging"
	"github.com/stephdmurray-sys/nomee-sub001/internal/moderation"
	"github.com/stephdmurray-sys/nomee-sub001/internal/signals"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services the server routes to.
type Deps struct {
	Contributions contribution.Service
	Imports       imports.Service
	Signals       *signals.Service
	Moderation    *moderation.Service
	Blobs         blob.Store
	Verifier      auth.Verifier

	// Health is pinged by GET /health. Optional.
	Health Pinger
}

// Config holds HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	MaxUploadBytes    int64
	ConfirmSuccessURL string
	ConfirmErrorURL   string
}

// Server provides HTTP endpoints for nomee.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  *Config
	metrics *HTTPMetrics
	now     func() time.Time
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Contributions == nil || deps.Imports == nil || deps.Signals == nil || deps.Moderation == nil {
		return nil, errors.New("contribution, import, signal and moderation services are required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if deps.Verifier == nil {
		deps.Verifier = auth.HeaderVerifier{}
	}
	if cfg == nil {
		cfg = &Config{
			Host:           "localhost",
			Port:           8080,
			MaxUploadBytes: 10 << 20,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		metrics: NewHTTPMetrics(logger),
		now:     time.Now,
	}
	e.HTTPErrorHandler = s.httpErrorHandler

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.metrics.MetricsMiddleware())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes+(1<<20), 10)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))))
			err := next(c)
			duration := time.Since(start)

			// auth.Middleware may have replaced the request, so read the
			// context after next returns to pick up owner.id.
			fields := append(logging.ContextFields(c.Request().Context()),
				zap.String("method", req.Method),
				zap.String("uri", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)
			logger.Info("http request", fields...)

			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/contributions", s.handleCreateContribution)
	v1.POST("/contributions/identity", s.handleAttachIdentity)
	v1.GET("/contributions/confirm", s.handleConfirm)
	v1.POST("/reports", s.handleReport)
	v1.POST("/uploads/voice", s.handleVoiceUpload)
	v1.GET("/profiles/:id/signals", s.handleSignals)

	me := v1.Group("/me", auth.Middleware(s.deps.Verifier))
	me.GET("/contributions", s.handleListContributions)
	me.PATCH("/contributions/:id/featured", s.handleSetFeatured)
	me.DELETE("/contributions/:id", s.handleDeleteContribution)

	me.POST("/imports/upload", s.handleImportUpload)
	me.POST("/imports", s.handleCreateImport)
	me.GET("/imports", s.handleListImports)
	me.POST("/imports/:id/process", s.handleProcessImport)
	me.POST("/imports/:id/approve", s.handleApproveImport)
	me.PATCH("/imports/:id/visibility", s.handleImportVisibility)
	me.DELETE("/imports/:id", s.handleDeleteImport)
	me.GET("/limits", s.handleLimits)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(c echo.Context) error {
	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
