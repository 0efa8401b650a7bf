// Package http provides the HTTP API for opsagentd.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/services"
)

// Server provides HTTP endpoints for opsagentd.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	logger   *logging.Logger
	config   *Config
	metrics  *HTTPMetrics
	registry *prometheus.Registry
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string
}

// Option configures a Server.
type Option func(*Server)

// WithMeterProvider records request metrics on mp instead of the global
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Server) { s.metrics = newHTTPMetrics(mp, s.logger) }
}

// NewServer creates a new HTTP server.
func NewServer(reg services.Registry, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if reg == nil || reg.Router() == nil || reg.Sessions() == nil {
		return nil, errors.New("services registry with router and sessions is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		services: reg,
		logger:   logger.Named("http"),
		config:   cfg,
	}
	s.metrics = NewHTTPMetrics(s.logger)
	for _, opt := range opts {
		opt(s)
	}
	s.registry = s.newPrometheusRegistry()

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(s.metrics.MetricsMiddleware())

	s.registerRoutes()

	return s, nil
}

// requestLogger puts the request ID on the request context and logs each
// request once it completes.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		rid := c.Response().Header().Get(echo.HeaderXRequestID)
		ctx := logging.WithRequestID(req.Context(), rid)
		c.SetRequest(req.WithContext(ctx))

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}

// newPrometheusRegistry exposes process and Go runtime collectors plus the
// live session count.
func (s *Server) newPrometheusRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	store := s.services.Sessions()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "opsagent",
			Name:      "sessions_active",
			Help:      "Number of live sessions.",
		}, func() float64 { return float64(store.Len()) }),
	)
	return reg
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/plan", s.handlePlan)
	v1.POST("/sessions", s.handleCreateSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/process", s.handleProcess)
	v1.DELETE("/sessions/:id/context", s.handleClearContext)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler { return s.echo }

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
