// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes litlink tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/litlink/internal/apperr"
	"github.com/starford/litlink/internal/noteservice"
	"github.com/starford/litlink/internal/notetemplate"
)

const referenceURI = "litlink://template-reference"

// Server wraps the MCP server with litlink tools.
type Server struct {
	mcp   *server.MCPServer
	notes *noteservice.Service
	tpl   *notetemplate.Engine
}

// New creates a new MCP server with all litlink tools registered.
func New(notes *noteservice.Service, tpl *notetemplate.Engine, version string) *Server {
	s := &Server{notes: notes, tpl: tpl}

	s.mcp = server.NewMCPServer(
		"litlink",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_literature_note",
		mcp.WithDescription("Create the literature note of a Zotero item in the vault. "+
			"Fails when a note linked to the same item already exists at the target path."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Zotero item key (e.g. ABCD1234)")),
		mcp.WithNumber("group", mcp.Description("Group library id; omit for the personal library")),
		mcp.WithBoolean("annotations", mcp.Description("Include PDF annotations (default true)")),
	), s.createLiteratureNote)

	s.mcp.AddTool(mcp.NewTool("render_citation",
		mcp.WithDescription("Render the Markdown citation of a Zotero item."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Zotero item key")),
		mcp.WithNumber("group", mcp.Description("Group library id; omit for the personal library")),
		mcp.WithBoolean("alt", mcp.Description("Use the alternative citation template")),
	), s.renderCitation)

	s.mcp.AddTool(mcp.NewTool("find_literature_notes",
		mcp.WithDescription("List vault notes linked to a Zotero item."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Zotero item key")),
		mcp.WithNumber("group", mcp.Description("Group library id; omit for the personal library")),
	), s.findLiteratureNotes)

	s.mcp.AddTool(mcp.NewTool("get_template",
		mcp.WithDescription("Return the source of one note template, or every template "+
			"and the front-matter mapping when kind is omitted. See "+referenceURI+" for the syntax."),
		mcp.WithString("kind", mcp.Description("filename, content, annotation, annots, mdCite or altMdCite")),
	), s.getTemplate)

	s.mcp.AddResource(
		mcp.NewResource(referenceURI, "Template Reference",
			mcp.WithResourceDescription("Syntax and helpers of litlink note templates."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTemplateReference,
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

// groupArg returns the optional group argument.
func groupArg(req mcp.CallToolRequest) *int {
	if _, ok := req.GetArguments()["group"]; !ok {
		return nil
	}
	g := req.GetInt("group", 0)
	return &g
}

func toolError(err error) *mcp.CallToolResult {
	var exists *noteservice.NoteExistsError
	switch {
	case errors.As(err, &exists):
		return mcp.NewToolResultError(exists.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("item not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) createLiteratureNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.notes.CreateFromLibrary(ctx, key, groupArg(req), req.GetBool("annotations", true))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(note), nil
}

func (s *Server) renderCitation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cite, err := s.notes.Citation(ctx, key, groupArg(req), req.GetBool("alt", false))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(cite), nil
}

func (s *Server) findLiteratureNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.notes.LinkedNotes(ctx, key, groupArg(req))
	if err != nil {
		return toolError(err), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no linked notes found"), nil
	}
	return jsonResult(paths), nil
}

func (s *Server) getTemplate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("kind", "")
	if name == "" {
		return jsonResult(s.tpl.ToJSON()), nil
	}
	kind, err := notetemplate.ParseKind(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.tpl.TemplateField(kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(src), nil
}

func (s *Server) readTemplateReference(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      referenceURI,
			MIMEType: "text/markdown",
			Text:     TemplateReference,
		},
	}, nil
}
