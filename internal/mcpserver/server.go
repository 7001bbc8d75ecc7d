// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes contact sync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/contactservice"
)

const contractURI = "cardsync://contact-note-format"

// Server wraps the MCP server with cardsync tools.
type Server struct {
	mcp *server.MCPServer
	svc *contactservice.Service
}

// New creates a new MCP server with all cardsync tools registered.
func New(svc *contactservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"cardsync",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("sync_contacts",
		mcp.WithDescription("Run one iCloud contact sync pass into the vault and return its report. "+
			"Fails immediately if a pass is already running."),
	), s.syncContacts)

	s.mcp.AddTool(mcp.NewTool("sync_status",
		mcp.WithDescription("Report whether a sync pass is running and summarize the last pass."),
	), s.syncStatus)

	s.mcp.AddTool(mcp.NewTool("list_contacts",
		mcp.WithDescription("List synced contacts with the note path each was last written to."),
		mcp.WithNumber("limit", mcp.Description("Page size (default 50)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listContacts)

	s.mcp.AddTool(mcp.NewTool("list_contact_notes",
		mcp.WithDescription("List every note file currently in the people folder, synced or not."),
	), s.listContactNotes)

	s.mcp.AddTool(mcp.NewTool("read_contact",
		mcp.WithDescription("Read the note of a synced contact by its uid (the SyncID header field)."),
		mcp.WithString("uid", mcp.Required(), mcp.Description("Contact uid")),
	), s.readContact)

	s.mcp.AddTool(mcp.NewTool("get_contact_note_contract",
		mcp.WithDescription("Returns the contact note format: which header fields sync owns "+
			"and which parts of a note are safe to edit."),
	), s.getContract)

	// Resource: contact note format contract.
	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Contact Note Format",
			mcp.WithResourceDescription("Format of the Markdown notes written by contact sync."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) syncContacts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.svc.Sync(ctx)
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			return mcp.NewToolResultError("a sync pass is already running"), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	summary := *report
	summary.Outcomes = nil
	return jsonResult(summary)
}

func (s *Server) syncStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st)
}

func (s *Server) listContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 50)
	offset := req.GetInt("offset", 0)
	entries, total, err := s.svc.ListContacts(ctx, limit, offset)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"contacts": entries, "total": total})
}

func (s *Server) listContactNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.ListNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no contact notes found"), nil
	}
	paths := make([]string, 0, len(notes))
	for _, n := range notes {
		paths = append(paths, n.Path)
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uid, err := req.RequireString("uid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetContact(ctx, uid)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("contact not found: " + uid), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	if detail.Stale {
		return mcp.NewToolResultError("note for " + uid + " moved or deleted since the last sync; run sync_contacts"), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) getContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ContactNoteContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     ContactNoteContract,
		},
	}, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
