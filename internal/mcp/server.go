package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsagent/internal/logging"
	"github.com/fyrsmithlabs/opsagent/internal/services"
	"github.com/fyrsmithlabs/opsagent/internal/session"
)

// Server serves the opsagent tools over MCP.
type Server struct {
	mcp      *mcp.Server
	services services.Registry
	session  *session.Session
	metrics  *Metrics
	logger   *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "opsagent")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging. MCP owns stdout, so it must not
	// write there.
	Logger *logging.Logger

	// MeterProvider receives tool metrics (default: the global provider).
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "opsagent",
		Version: "dev",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates the server and the session its tools share.
func NewServer(ctx context.Context, cfg *Config, reg services.Registry) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}
	if reg == nil || reg.Router() == nil || reg.Sessions() == nil {
		return nil, errors.New("services registry with router and sessions is required")
	}

	sess, err := reg.Sessions().Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	logger := cfg.Logger.Named("mcp")
	metrics := NewMetrics(logger)
	if cfg.MeterProvider != nil {
		metrics = newMetrics(cfg.MeterProvider, logger)
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		services: reg,
		session:  sess,
		metrics:  metrics,
		logger:   logger,
	}
	s.registerTools()
	return s, nil
}

// SessionID returns the ID of the session the tools share.
func (s *Server) SessionID() string { return s.session.ID }

// Run serves on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport", zap.String("session_id", s.session.ID))
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one client on transport.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}

// Close ends the shared session.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info(ctx, "closing MCP server", zap.String("session_id", s.session.ID))
	err := s.services.Sessions().Delete(ctx, s.session.ID)
	if errors.Is(err, session.ErrNotFound) {
		return nil
	}
	return err
}
