// Package mcp provides an MCP (Model Context Protocol) server that lets
// agents run simulations and sweeps and read stored results.
package mcp

import (
	"context"
	"fmt"
	"log/slog"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/opynions/internal/config"
	"github.com/nvandessel/opynions/internal/logging"
	"github.com/nvandessel/opynions/internal/ratelimit"
	"github.com/nvandessel/opynions/internal/simulation"
	"github.com/nvandessel/opynions/internal/store"
)

// Server wraps the MCP SDK server and provides opynions tools.
type Server struct {
	server       *sdk.Server
	store        store.ResultStore
	engine       *simulation.Engine
	settings     *config.OpynionsConfig
	root         string
	logger       *slog.Logger
	events       *logging.EventLogger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "opynions")
	Version string // Server version
	Root    string // Project root directory

	// Settings supplies tool defaults. Nil loads config for Root.
	Settings *config.OpynionsConfig

	// Store overrides the SQLite store at <Root>/.opynions/opynions.db.
	Store store.ResultStore

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger
}

// NewServer creates a new MCP server with opynions tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	resultStore := cfg.Store
	if resultStore == nil {
		path := settings.Storage.Path
		if path == "" {
			path = store.DatabasePath(cfg.Root)
		}
		s, err := store.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		resultStore = s
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        resultStore,
		engine:       simulation.NewEngine(),
		settings:     settings,
		root:         cfg.Root,
		logger:       logger,
		events:       logging.NewEventLogger(store.LocalPath(cfg.Root), settings.Logging.Level),
		auditLogger:  NewAuditLogger(cfg.Root),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport and closes the server
// when it returns. It blocks until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "root", s.root)
	err := s.server.Run(ctx, &sdk.StdioTransport{})
	s.Close()
	return err
}

// Close releases the store and log files.
func (s *Server) Close() error {
	s.events.Close()
	s.auditLogger.Close()
	return s.store.Close()
}
