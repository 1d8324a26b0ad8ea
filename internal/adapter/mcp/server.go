package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// NewServer creates an MCPServer exposing the question-answering tools.
func NewServer(version string, deps Deps, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(false),
		server.WithHooks(toolCallHooks(logger)),
	)

	RegisterTools(s, deps)

	return s
}
