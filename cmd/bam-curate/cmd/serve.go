package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mfenderov/bam-curate/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP (Model Context Protocol) server on stdio.

Tools:
  convert_html  Convert one HTML page into deduplicated Markdown
  get_document  Fetch a converted entry by ID (requires elasticsearch.enabled)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg := GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}

	var store mcp.DocumentStore
	if cfg.Elasticsearch.Enabled {
		esClient, err := newESClient(ctx, cfg.Elasticsearch)
		if err != nil {
			return err
		}
		store = esClient
	}

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, p, store)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	slog.Debug("MCP server starting", "name", cfg.MCP.Name, "index", cfg.Elasticsearch.Enabled)
	return server.ServeStdio()
}
