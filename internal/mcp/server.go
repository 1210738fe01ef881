package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/bam-curate/internal/pipeline"
	"github.com/mfenderov/bam-curate/pkg/models"
)

// EntryFormatter converts a single entry into its Markdown block.
type EntryFormatter interface {
	FormatEntry(ctx context.Context, entry models.Entry) (pipeline.EntryResult, error)
}

// DocumentStore looks up curated documents by ID. A nil document means
// not found.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server exposes the conversion pipeline and indexed documents as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	formatter EntryFormatter
	store     DocumentStore // nil disables get_document
}

// conversionResult is the JSON payload of convert_html.
type conversionResult struct {
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
	Kept     int    `json:"kept_lines"`
	Dropped  int    `json:"dropped_lines"`
}

// NewServer creates a new MCP server. store may be nil when no index is
// configured.
func NewServer(config Config, formatter EntryFormatter, store DocumentStore) (*Server, error) {
	if formatter == nil {
		return nil, fmt.Errorf("formatter is required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		formatter: formatter,
		store:     store,
	}

	// Register convert_html tool
	convertTool := mcp.NewTool("convert_html",
		mcp.WithDescription("Convert an HTML page into clean Markdown with semantically redundant lines removed."),
		mcp.WithString("html",
			mcp.Required(),
			mcp.Description("Raw HTML (or Markdown) of the page"),
		),
		mcp.WithString("title",
			mcp.Description("Page title; defaults to the document's <title>"),
		),
		mcp.WithString("url",
			mcp.Description("Source URL, rendered as a Read More link"),
		),
	)
	mcpServer.AddTool(convertTool, s.convertHandler)

	if store != nil {
		// Register get_document tool
		getDocTool := mcp.NewTool("get_document",
			mcp.WithDescription("Get a curated documentation page by ID"),
			mcp.WithString("id",
				mcp.Required(),
				mcp.Description("Document ID to retrieve"),
			),
		)
		mcpServer.AddTool(getDocTool, s.getDocumentHandler)
	}

	return s, nil
}

// convertHandler handles the convert_html tool call.
func (s *Server) convertHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	html, err := req.RequireString("html")
	if err != nil {
		return mcp.NewToolResultError("html parameter is required"), nil
	}

	entry := models.Entry{
		Title: req.GetString("title", ""),
		URL:   req.GetString("url", ""),
		HTML:  html,
	}

	res, err := s.formatter.FormatEntry(ctx, entry)
	if err != nil {
		slog.Warn("convert_html failed", "title", entry.Title, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("conversion failed: %v", err)), nil
	}

	result, err := json.Marshal(conversionResult{
		Title:    res.Title,
		Markdown: res.Text,
		Kept:     res.Kept,
		Dropped:  res.Dropped,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// getDocumentHandler handles the get_document tool call.
func (s *Server) getDocumentHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get document failed: %v", err)), nil
	}

	if doc == nil {
		return mcp.NewToolResultError(fmt.Sprintf("document not found: %s", id)), nil
	}

	result, err := json.Marshal(doc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal document: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
