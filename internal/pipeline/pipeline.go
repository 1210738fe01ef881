package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfenderov/bam-curate/internal/events"
	"github.com/mfenderov/bam-curate/internal/formatter"
	"github.com/mfenderov/bam-curate/internal/markdown"
	"github.com/mfenderov/bam-curate/internal/metrics"
	"github.com/mfenderov/bam-curate/pkg/models"
)

// Curator removes boilerplate from raw HTML. On failure it returns the
// original input along with the error.
type Curator interface {
	Curate(html string) (string, error)
}

// Flattener converts curated HTML into Markdown lines.
type Flattener interface {
	Flatten(html string) (string, error)
	ExtractTitle(html string) string
}

// Embedder returns one normalized vector per line.
type Embedder interface {
	Embed(ctx context.Context, lines []string) ([][]float32, error)
}

// LineFilter decides, from the line embeddings in document order, which
// lines are kept.
type LineFilter interface {
	Keep(embs [][]float32) ([]bool, error)
}

// Stages are the per-entry processing steps. All of them are shared by the
// workers and must be safe for concurrent use.
type Stages struct {
	Curator   Curator
	Flattener Flattener
	Embedder  Embedder
	Filter    LineFilter
}

// Config holds pipeline configuration.
type Config struct {
	ChunkSize int // Entries per chunk
	Workers   int // Chunks processed concurrently
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithMetrics records entry, line and chunk metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithProgress registers a callback invoked by workers after each chunk.
// It may be called concurrently.
func WithProgress(fn func(events.ChunkCompleteEvent)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// Pipeline orchestrates curation, flattening, embedding and filtering of a
// dataset of entries.
type Pipeline struct {
	config   Config
	stages   Stages
	metrics  *metrics.Metrics // nil disables metrics
	progress func(events.ChunkCompleteEvent)
}

// New creates a new Pipeline with the given configuration.
func New(config Config, stages Stages, opts ...Option) (*Pipeline, error) {
	if config.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", config.Workers)
	}
	if stages.Curator == nil || stages.Flattener == nil || stages.Embedder == nil || stages.Filter == nil {
		return nil, fmt.Errorf("all pipeline stages are required")
	}

	p := &Pipeline{config: config, stages: stages}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// EntryResult is the outcome of processing one entry.
type EntryResult struct {
	Index    int    // Position in the dataset
	Title    string // Resolved title
	URL      string
	Body     string // Deduplicated Markdown body
	Text     string // Formatted section; empty when Err is set
	Markdown bool   // Input was already Markdown
	Kept     int    // Lines kept by the filter
	Dropped  int    // Lines dropped by the filter
	Err      error
}

// FormatEntry runs one entry through every stage and returns its formatted
// section.
func (p *Pipeline) FormatEntry(ctx context.Context, entry models.Entry) (EntryResult, error) {
	res := EntryResult{URL: entry.URL}

	var flat string
	if markdown.IsMarkdownEntry(entry.URL, entry.HTML) {
		res.Markdown = true
		res.Title = entryTitle(entry.Title, extractMarkdownTitle(entry.HTML))
		flat = strings.TrimSpace(entry.HTML)
	} else {
		res.Title = entryTitle(entry.Title, p.stages.Flattener.ExtractTitle(entry.HTML))

		curated, err := p.stages.Curator.Curate(entry.HTML)
		if err != nil {
			slog.Warn("curation failed, using raw html", "title", res.Title, "error", err)
			p.metrics.ObserveCurationFailure()
			curated = entry.HTML
		}

		flat, err = p.stages.Flattener.Flatten(curated)
		if err != nil {
			return res, fmt.Errorf("failed to flatten html: %w", err)
		}
	}

	lines := markdown.SplitLines(flat)
	if len(lines) > 0 {
		embs, err := p.stages.Embedder.Embed(ctx, markdown.Texts(lines))
		if err != nil {
			return res, fmt.Errorf("failed to embed lines: %w", err)
		}
		if len(embs) != len(lines) {
			return res, fmt.Errorf("failed to embed lines: got %d embeddings for %d lines", len(embs), len(lines))
		}

		keep, err := p.stages.Filter.Keep(embs)
		if err != nil {
			return res, fmt.Errorf("failed to filter lines: %w", err)
		}

		kept := markdown.Select(lines, keep)
		res.Kept = len(kept)
		res.Dropped = len(lines) - len(kept)
		res.Body = markdown.JoinLines(kept)
	}
	res.Text = formatter.Format(res.Title, entry.URL, res.Body)

	slog.Debug("formatted entry", "title", res.Title, "lines", len(lines), "dropped", res.Dropped, "markdown", res.Markdown)
	return res, nil
}

// entryTitle picks the entry's own title, then the document title, then
// the default.
func entryTitle(title, documentTitle string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	if documentTitle != "" {
		return documentTitle
	}
	return models.DefaultTitle
}

// extractMarkdownTitle extracts the first H1 heading from markdown content.
func extractMarkdownTitle(content string) string {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}
