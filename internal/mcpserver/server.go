// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the reconciliation tooling for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Planner previews a reconciliation pass without applying it.
type Planner interface {
	PreviewPlan(ctx context.Context) (any, error)
	ReviewRanking(ctx context.Context) (any, error)
	RunHistory(limit int) (any, error)
	RunOperations(runID int64) (any, error)
}

// Server wraps the MCP server with reconciliation tools.
type Server struct {
	mcp     *server.MCPServer
	planner Planner
}

// New creates a new MCP server with all tools registered.
func New(planner Planner) *Server {
	s := &Server{planner: planner}

	s.mcp = server.NewMCPServer(
		"Workboard",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("preview_plan",
		mcp.WithDescription("Compute the board operations a reconciliation pass would apply, "+
			"without applying anything. Returns the plan with skipped items and warnings."),
	), s.previewPlan)

	s.mcp.AddTool(mcp.NewTool("review_ranking",
		mcp.WithDescription("Return the current review queue in priority order: "+
			"latency, unresolved blockers, oldest discussion thread, then numeric id."),
	), s.reviewRanking)

	s.mcp.AddTool(mcp.NewTool("run_history",
		mcp.WithDescription("List recent reconciliation runs with their operation counts."),
		mcp.WithString("limit", mcp.Description("Maximum number of runs to return (default 20)")),
	), s.runHistory)

	s.mcp.AddTool(mcp.NewTool("run_operations",
		mcp.WithDescription("List the board operations of one recorded run, in plan order."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run id from run_history")),
	), s.runOperations)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func toolJSON(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) previewPlan(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	plan, err := s.planner.PreviewPlan(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(plan)
}

func (s *Server) reviewRanking(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ranking, err := s.planner.ReviewRanking(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(ranking)
}

func (s *Server) runHistory(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := 20
	if raw, err := req.RequireString("limit"); err == nil {
		if n, convErr := strconv.Atoi(raw); convErr == nil && n > 0 {
			limit = n
		}
	}
	runs, err := s.planner.RunHistory(limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(runs)
}

func (s *Server) runOperations(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid run id %q", raw)), nil
	}
	ops, err := s.planner.RunOperations(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toolJSON(ops)
}
