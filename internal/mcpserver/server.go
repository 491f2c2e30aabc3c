// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Verba tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/verba/internal/apperr"
	"github.com/starford/verba/internal/checklist"
	"github.com/starford/verba/internal/highlight"
	"github.com/starford/verba/internal/models"
	"github.com/starford/verba/internal/storage"
	"github.com/starford/verba/internal/store"
	"github.com/starford/verba/internal/xref"
)

const workflowURI = "verba://checklist-workflow"

// DocumentSync re-examines one document after it was written.
type DocumentSync interface {
	Apply(ctx context.Context, path string) error
}

// Deps are the engine parts the MCP tools use.
type Deps struct {
	Highlights   *highlight.Service
	Checklist    *checklist.Service
	Catalog      store.Catalog
	Documents    storage.Provider
	DocumentSync DocumentSync
}

// Server wraps the MCP server with Verba tools.
type Server struct {
	mcp *server.MCPServer
	Deps
}

// New creates a new MCP server with all Verba tools registered.
func New(d Deps) *Server {
	s := &Server{Deps: d}

	s.mcp = server.NewMCPServer(
		"Verba",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the source documents known to Verba."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("list_entries",
		mcp.WithDescription("List the ledger entries of a process with their checks."),
		mcp.WithString("process_id", mcp.Required(), mcp.Description("Process id")),
	), s.listEntries)

	s.mcp.AddTool(mcp.NewTool("checklist_stats",
		mcp.WithDescription("Checklist progress of a process: totals per state and percent approved."),
		mcp.WithString("process_id", mcp.Required(), mcp.Description("Process id")),
	), s.checklistStats)

	s.mcp.AddTool(mcp.NewTool("advance_entry",
		mcp.WithDescription("Move a ledger entry one approval state forward (pending → prepared → approved). "+
			"Read the workflow first via get_checklist_workflow or the "+workflowURI+" resource."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
	), s.advanceEntry)

	s.mcp.AddTool(mcp.NewTool("regress_entry",
		mcp.WithDescription("Move a ledger entry one approval state back (approved → prepared → pending)."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
	), s.regressEntry)

	s.mcp.AddTool(mcp.NewTool("set_entry_check",
		mcp.WithDescription("Write the preparer or reviewer check of a ledger entry directly."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
		mcp.WithString("role", mcp.Required(), mcp.Enum("preparer", "reviewer"), mcp.Description("Which check")),
		mcp.WithBoolean("value", mcp.Required(), mcp.Description("New value of the check")),
	), s.setEntryCheck)

	s.mcp.AddTool(mcp.NewTool("resolve_entry_highlights",
		mcp.WithDescription("Resolve the highlights a ledger entry cites. Removed highlights are listed as stale."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
	), s.resolveEntryHighlights)

	s.mcp.AddTool(mcp.NewTool("resolve_linked_decision",
		mcp.WithDescription("Find the decision referenced by a ledger entry's linked decision reference."),
		mcp.WithString("entry_id", mcp.Required(), mcp.Description("Entry id")),
	), s.resolveLinkedDecision)

	s.mcp.AddTool(mcp.NewTool("search_annotations",
		mcp.WithDescription("Full-text search through annotation content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchAnnotations)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Download a PDF from an http(s) URL or a base64 data URI into the documents directory. "+
			"Replacing an existing document clears its highlights."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/pdf;base64,... URI")),
		mcp.WithString("path", mcp.Description("Target path relative to the documents directory (defaults to the URL file name)")),
		mcp.WithBoolean("replace", mcp.Description("Overwrite an existing document")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("get_checklist_workflow",
		mcp.WithDescription("Returns the checklist approval workflow. "+
			"Call this before moving entries to understand the allowed transitions."),
	), s.getChecklistWorkflow)

	// Resource: checklist workflow.
	s.mcp.AddResource(
		mcp.NewResource(workflowURI, "Checklist Workflow",
			mcp.WithResourceDescription("Approval states of ledger entries and the tools that move them."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkflowResource,
	)

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

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

// entry returns the in-memory entry id, loading its process when needed.
func (s *Server) entry(ctx context.Context, id string) (models.LedgerEntry, error) {
	if e, ok := s.Checklist.Entry(id); ok {
		return e, nil
	}
	stored, err := s.Catalog.GetEntry(ctx, id)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if err := s.Checklist.Load(ctx, stored.ProcessID); err != nil {
		return models.LedgerEntry{}, err
	}
	if e, ok := s.Checklist.Entry(id); ok {
		return e, nil
	}
	return stored, nil
}

func (s *Server) ensureLoaded(ctx context.Context, pid string) error {
	if s.Checklist.Loaded(pid) {
		return nil
	}
	return s.Checklist.Load(ctx, pid)
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listDocuments(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.Catalog.ListDocuments(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents"), nil
	}
	paths := make([]string, 0, len(docs))
	for _, d := range docs {
		paths = append(paths, d.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) listEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("process_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ensureLoaded(ctx, pid); err != nil {
		return toolError(err), nil
	}
	type row struct {
		models.LedgerEntry
		State checklist.State `json:"state"`
	}
	entries := s.Checklist.Entries(pid)
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, row{LedgerEntry: e, State: checklist.StateOf(e)})
	}
	return jsonResult(rows), nil
}

func (s *Server) checklistStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("process_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ensureLoaded(ctx, pid); err != nil {
		return toolError(err), nil
	}
	st := s.Checklist.Stats(pid)
	return jsonResult(map[string]any{
		"stats":  st,
		"status": checklist.RollupStatus(st),
	}), nil
}

type transitionFunc func(ctx context.Context, id string) (models.LedgerEntry, error)

func (s *Server) transition(ctx context.Context, id string, fn transitionFunc) *mcp.CallToolResult {
	if _, err := s.entry(ctx, id); err != nil {
		return toolError(err)
	}
	e, err := fn(ctx, id)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(map[string]any{
		"entry": e,
		"state": checklist.StateOf(e),
	})
}

func (s *Server) advanceEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.transition(ctx, id, s.Checklist.Advance), nil
}

func (s *Server) regressEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.transition(ctx, id, s.Checklist.Regress), nil
}

func (s *Server) setEntryCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	roleName, err := req.RequireString("role")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := req.RequireBool("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	role := models.CheckRole(roleName)
	return s.transition(ctx, id, func(ctx context.Context, id string) (models.LedgerEntry, error) {
		return s.Checklist.SetCheck(ctx, id, role, value)
	}), nil
}

func (s *Server) resolveEntryHighlights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.entry(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	reg := s.Highlights.Registry()
	stale := xref.StaleEntryHighlightIDs(e, reg)
	if stale == nil {
		stale = []string{}
	}
	return jsonResult(map[string]any{
		"entry_id":   e.ID,
		"highlights": xref.ResolveEntryHighlights(e, reg),
		"stale":      stale,
	}), nil
}

func (s *Server) resolveLinkedDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("entry_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.entry(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	decisions, err := s.Catalog.ListDecisions(ctx, e.ProcessID)
	if err != nil {
		return toolError(err), nil
	}
	d, ok := xref.ResolveLinkedDecision(e, decisions)
	if !ok {
		return mcp.NewToolResultText(fmt.Sprintf("no decision matches %q", e.LinkedDecisionRef)), nil
	}
	return jsonResult(d), nil
}

func (s *Server) searchAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	results, err := s.Catalog.SearchAnnotations(ctx, query, limit)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getChecklistWorkflow(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChecklistWorkflow), nil
}

func (s *Server) readWorkflowResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workflowURI,
			MIMEType: "text/markdown",
			Text:     ChecklistWorkflow,
		},
	}, nil
}
