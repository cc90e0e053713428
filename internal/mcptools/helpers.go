// Package mcptools exposes the operator interface as MCP tools, so a chat
// client can query status and change the fan policy.
package mcptools

import (
	"context"

	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/operator"
	"github.com/mark3labs/mcp-go/mcp"
)

// Operator is the daemon API the tools call into.
type Operator interface {
	Status(ctx context.Context) operator.Status
	SetManualPolicy(ctx context.Context, requester string, percent int) error
	SetAutoPolicy(ctx context.Context, requester string) error
}

type EventSource interface {
	Recent(n int) []*notify.Event
}

// intArg extracts an integer argument, JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string) (int, bool) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// errorResult turns a coded error into a tool error the caller can read.
func errorResult(err error) *mcp.CallToolResult {
	if code := errors.CodeOf(err); code != "" {
		return mcp.NewToolResultError(errors.GetErrorMessage(code))
	}
	return mcp.NewToolResultError(err.Error())
}
