package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/peoplehub/ecsync/pkg/client"
)

const serverVersion = "1.0.0"

const conceptsPrompt = `You are interacting with ecsync, a service that creates employee records
in an HR tenant in dependency order.

Concepts:
- Record: One employee row with a userid and up to three dependency fields
  (manager, matrix_manager, hr), each naming another userid.
- Batch: A group of records safe to create concurrently. Batches execute in
  order; a record's dependencies always land in an earlier batch.
- Cycle batch: The final batch holding records whose references formed a
  cycle. The conflicting fields are cleared before creation and must be
  restored by a later data pass.
- Missing dependency: A reference that matches neither the new roster nor
  the existing tenant. Reported, never fatal.
- Run: One execution of the pipeline, with per-record outcomes.

Use 'preview_order' to inspect the plan for a roster before anyone applies
it. Use 'get_run_summary' to explain what happened in a recorded run.
`

// Server adapts ecsync-d to the Model Context Protocol: run history and
// diagnostics as resources, order previews as tools, everything backed by
// the daemon's HTTP API.
type Server struct {
	srv *server.MCPServer
	api *client.Client
}

// NewServer registers every resource, tool, and prompt against the daemon
// at apiURL. Nothing is dialed until a handler runs.
func NewServer(apiURL string) *Server {
	s := &Server{
		srv: server.NewMCPServer("ecsync", serverVersion,
			server.WithResourceCapabilities(false, false),
			server.WithToolCapabilities(false),
		),
		api: client.NewClient(apiURL),
	}
	s.register()
	return s
}

// Serve speaks MCP over stdio until the peer hangs up.
func (s *Server) Serve() error {
	return server.ServeStdio(s.srv)
}

func (s *Server) register() {
	s.srv.AddResource(mcp.NewResource(
		"ecsync://runs",
		"Sync Run History",
		mcp.WithResourceDescription("Recent employee creation runs with status, batch counts, and errors"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadRuns)

	s.srv.AddResource(mcp.NewResource(
		"ecsync://summary",
		"Latest Run Summary",
		mcp.WithResourceDescription("Dependency diagnostics of the most recent run: cycles, missing references, counts"),
		mcp.WithMIMEType("application/json"),
	), s.handleReadSummary)

	s.srv.AddTool(mcp.NewTool(
		"preview_order",
		mcp.WithDescription("Compute the creation order for a personnel roster without creating anything. Returns batches, cycle diagnostics, and missing dependencies."),
		mcp.WithString("source", mcp.Required(), mcp.Description(`JSON array of personnel records, e.g. [{"userid":"alice","manager":"bob"}]`)),
		mcp.WithString("existing", mcp.Description("JSON array of userids already present in the target tenant")),
	), s.handlePreviewOrder)

	s.srv.AddTool(mcp.NewTool(
		"get_run_summary",
		mcp.WithDescription("Fetch the dependency summary of a finished run."),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("The run identifier (e.g. 'run_1712345678')")),
	), s.handleGetRunSummary)

	s.srv.AddPrompt(mcp.NewPrompt(
		"ecsync-aware",
		mcp.WithPromptDescription("Provides context about ecsync concepts (rosters, dependency fields, creation batches)"),
	), s.handleGetPrompt)
}

func (s *Server) handleReadRuns(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.api.ListRuns(ctx, 50)
	if err != nil {
		return nil, fmt.Errorf("fetch runs: %w", err)
	}
	return textResource(request.Params.URI, runs)
}

func (s *Server) handleReadSummary(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	runs, err := s.api.ListRuns(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch runs: %w", err)
	}
	if len(runs) == 0 {
		return nil, errors.New("no runs recorded yet")
	}

	summary, err := s.api.GetSummary(ctx, runs[0].RunID)
	if err != nil {
		return nil, fmt.Errorf("fetch summary for %s: %w", runs[0].RunID, err)
	}
	return textResource(request.Params.URI, summary)
}

func (s *Server) handlePreviewOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceJSON := mcp.ParseString(request, "source", "")
	existingJSON := mcp.ParseString(request, "existing", "")

	var source []client.Record
	if err := json.Unmarshal([]byte(sourceJSON), &source); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid source JSON: %v", err)), nil
	}

	var existing []string
	if existingJSON != "" {
		if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid existing JSON: %v", err)), nil
		}
	}

	preview, err := s.api.Preview(ctx, client.PreviewRequest{
		Source:    source,
		TargetIDs: existing,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("daemon error: %v", err)), nil
	}

	text, err := jsonBlock(preview)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode preview: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleGetRunSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := mcp.ParseString(request, "run_id", "")
	if runID == "" {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	summary, err := s.api.GetSummary(ctx, runID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("daemon error: %v", err)), nil
	}

	text, err := jsonBlock(summary)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode summary: %v", err)), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleGetPrompt(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	if request.Params.Name != "ecsync-aware" {
		return nil, fmt.Errorf("unknown prompt %q", request.Params.Name)
	}

	return mcp.NewGetPromptResult(
		"ecsync-aware",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(conceptsPrompt)),
		},
	), nil
}

// textResource renders v as a single indented-JSON resource body.
func textResource(uri string, v any) ([]mcp.ResourceContents, error) {
	text, err := jsonBlock(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}

func jsonBlock(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
