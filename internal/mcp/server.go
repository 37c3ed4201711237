// Package mcp exposes the project workflow and lesson engine as MCP tools
// over the stdio transport, calling the internal packages directly.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/playbookd/internal/lessons"
	"github.com/fyrsmithlabs/playbookd/internal/metalearn"
	"github.com/fyrsmithlabs/playbookd/internal/retrieval"
	"github.com/fyrsmithlabs/playbookd/internal/session"
)

// Server wires the internal services to the MCP tool surface.
type Server struct {
	mcp         *mcp.Server
	machine     *session.Machine
	repo        lessons.Repository
	votes       *lessons.VoteManager
	engine      *retrieval.Engine
	recommender *metalearn.Recommender
	metrics     *Metrics
	logger      *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "playbookd").
	Name string

	// Version is the server version (default: "1.0.0").
	Version string

	// Logger for structured logging.
	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "playbookd",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates the MCP server with the given services.
func NewServer(
	cfg *Config,
	machine *session.Machine,
	repo lessons.Repository,
	votes *lessons.VoteManager,
	engine *retrieval.Engine,
	recommender *metalearn.Recommender,
) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if machine == nil {
		return nil, fmt.Errorf("session machine is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("lesson repository is required")
	}
	if votes == nil {
		return nil, fmt.Errorf("vote manager is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("retrieval engine is required")
	}
	if recommender == nil {
		return nil, fmt.Errorf("recommender is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:         mcpServer,
		machine:     machine,
		repo:        repo,
		votes:       votes,
		engine:      engine,
		recommender: recommender,
		metrics:     NewMetrics(cfg.Logger),
		logger:      cfg.Logger,
	}

	s.registerProjectTools()
	s.registerLessonTools()

	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Close drains in-flight background work.
func (s *Server) Close() error {
	s.logger.Info("closing MCP server")
	s.machine.Close()
	return nil
}
