// Package server provides the MCP server over an annotation workspace.
package server

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/osmtally/pkg/tools"
	"github.com/NERVsystems/osmtally/pkg/tools/prompts"
	"github.com/NERVsystems/osmtally/pkg/version"
	"github.com/NERVsystems/osmtally/pkg/workspace"
)

// ServerName is the name of the MCP server
const ServerName = "osmtally"

// Server encapsulates the MCP server with the tally tools.
type Server struct {
	srv *server.MCPServer
}

// NewServer creates a new MCP server with all tools and prompts registered.
func NewServer(ws *workspace.Workspace, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")
	logger.Info("initializing MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := server.NewMCPServer(
		ServerName,
		version.BuildVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	tools.NewRegistry(ws, logger).RegisterTools(srv)
	prompts.RegisterTallyPrompts(srv)

	return &Server{srv: srv}
}

// MCPServer exposes the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.srv
}

// Run starts the MCP server using stdin/stdout for communication.
func (s *Server) Run() error {
	return server.ServeStdio(s.srv)
}
