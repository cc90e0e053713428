package mcptools

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/server"
)

// NewServer registers every fan tool on a new MCP server.
func NewServer(op Operator, events EventSource, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"bmcfanctl",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	statusTool := NewStatusTool(op)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	manualTool := NewManualTool(op)
	s.AddTool(manualTool.Definition(), manualTool.Handle)

	autoTool := NewAutoTool(op)
	s.AddTool(autoTool.Definition(), autoTool.Handle)

	eventsTool := NewEventsTool(events)
	s.AddTool(eventsTool.Definition(), eventsTool.Handle)

	return s
}

// Serve speaks MCP over in/out until ctx is done or in is closed.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
