package mcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/schemadoc/schemadoc-engine/pkg/middleware"
)

// Server wraps the mcp-go MCPServer and exposes it over streamable HTTP.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates a new MCP server instance.
// Panics inside tool handlers are recovered and reported as tool errors.
func NewServer(name, version string, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
}

// MCP returns the underlying MCPServer for tool registration.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// Handler returns a stateless streamable HTTP handler with JSON-RPC logging.
// The HTTP mux owns routing, so no endpoint path is configured here.
func (s *Server) Handler() http.Handler {
	streamable := server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
	return middleware.MCPRequestLogger(s.logger)(streamable)
}

// RegisterRoutes mounts the MCP endpoint at path.
func (s *Server) RegisterRoutes(mux *http.ServeMux, path string) {
	mux.Handle(path, s.Handler())
	s.logger.Info("MCP endpoint registered", zap.String("path", path))
}
