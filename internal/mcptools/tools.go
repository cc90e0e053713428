package mcptools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const defaultEventLimit = 20

// StatusTool handles fan_status.
type StatusTool struct {
	op Operator
}

func NewStatusTool(op Operator) *StatusTool {
	return &StatusTool{op: op}
}

func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("fan_status",
		mcp.WithDescription("Show the persistent fan policy, controller readiness and whether the policy is applied."),
	)
}

func (t *StatusTool) Handle(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(t.op.Status(ctx).String()), nil
}

// ManualTool handles fan_manual.
type ManualTool struct {
	op Operator
}

func NewManualTool(op Operator) *ManualTool {
	return &ManualTool{op: op}
}

func (t *ManualTool) Definition() mcp.Tool {
	return mcp.NewTool("fan_manual",
		mcp.WithDescription("Set a persistent fixed fan speed. The setting survives controller and daemon restarts."),
		mcp.WithNumber("percent",
			mcp.Required(),
			mcp.Description("Fan speed in percent, 0 to 100"),
		),
		mcp.WithString("requester",
			mcp.Description("Identity of the operator making the change"),
		),
	)
}

func (t *ManualTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	percent, ok := intArg(req, "percent")
	if !ok {
		return mcp.NewToolResultError("percent is required"), nil
	}

	if err := t.op.SetManualPolicy(ctx, req.GetString("requester", ""), percent); err != nil {
		return errorResult(err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Manual policy set: %d%% (persistent)", percent)), nil
}

// AutoTool handles fan_auto.
type AutoTool struct {
	op Operator
}

func NewAutoTool(op Operator) *AutoTool {
	return &AutoTool{op: op}
}

func (t *AutoTool) Definition() mcp.Tool {
	return mcp.NewTool("fan_auto",
		mcp.WithDescription("Hand fan control back to the controller's automatic mode, persistently."),
		mcp.WithString("requester",
			mcp.Description("Identity of the operator making the change"),
		),
	)
}

func (t *AutoTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := t.op.SetAutoPolicy(ctx, req.GetString("requester", "")); err != nil {
		return errorResult(err), nil
	}

	return mcp.NewToolResultText("Auto fan policy enabled"), nil
}

// EventsTool handles fan_events.
type EventsTool struct {
	events EventSource
}

func NewEventsTool(events EventSource) *EventsTool {
	return &EventsTool{events: events}
}

func (t *EventsTool) Definition() mcp.Tool {
	return mcp.NewTool("fan_events",
		mcp.WithDescription("List recent notifications: fan speed changes, readiness changes and policy changes."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of events to return (default 20)"),
		),
	)
}

func (t *EventsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit, ok := intArg(req, "limit")
	if !ok || limit <= 0 {
		limit = defaultEventLimit
	}

	events := t.events.Recent(limit)
	if len(events) == 0 {
		return mcp.NewToolResultText("No events"), nil
	}

	var sb strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&sb, "%s [%s] %s\n", ev.Timestamp.Format(time.RFC3339), ev.Kind, ev)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
