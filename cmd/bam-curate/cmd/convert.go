package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mfenderov/bam-curate/internal/config"
	"github.com/mfenderov/bam-curate/internal/curator"
	"github.com/mfenderov/bam-curate/internal/dataset"
	"github.com/mfenderov/bam-curate/internal/dedup"
	"github.com/mfenderov/bam-curate/internal/elasticsearch"
	"github.com/mfenderov/bam-curate/internal/embeddings"
	"github.com/mfenderov/bam-curate/internal/events"
	"github.com/mfenderov/bam-curate/internal/metrics"
	"github.com/mfenderov/bam-curate/internal/pipeline"
	"github.com/mfenderov/bam-curate/internal/processor"
	"github.com/mfenderov/bam-curate/internal/storage"
	"github.com/mfenderov/bam-curate/pkg/models"
)

var (
	convertInput     string
	convertPrefix    string
	convertOutput    string
	convertUpload    bool
	convertIndex     bool
	convertWorkers   int
	convertChunkSize int
	convertThreshold float64
	convertNoLinks   bool
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert HTML datasets into deduplicated Markdown",
	Long: `Convert every entry of one or more JSON datasets ([{title,url,html}])
into Markdown and write the entries, in input order, to one artifact.

A line is dropped when it is too similar to the line before it. The default
"hash" embedding backend runs offline and measures word overlap, not meaning:
paraphrases that share few words are kept. Set embeddings.backend to "remote"
(BAMCURATE_EMBEDDINGS_BACKEND=remote) with a llama.cpp or DMR endpoint to
compare lines with a sentence-embedding model.

Examples:
  # Convert local datasets matched by a glob
  bam-curate convert --input 'data/**/*.json' --output docs.md

  # Convert a crawl stored in S3 and upload the result
  bam-curate convert --prefix datasets/go.dev/2024-12-04T17-30-00-abc123 --upload

  # Also index each converted entry in Elasticsearch
  bam-curate convert --input 'output-*.json' --index`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "glob of local dataset files (supports **)")
	convertCmd.Flags().StringVar(&convertPrefix, "prefix", "", "S3 prefix to read datasets from instead of local files")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "Markdown output path")
	convertCmd.Flags().BoolVar(&convertUpload, "upload", false, "upload the artifact and run metadata to S3")
	convertCmd.Flags().BoolVar(&convertIndex, "index", false, "index converted entries in Elasticsearch")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "w", 0, "chunks processed concurrently")
	convertCmd.Flags().IntVar(&convertChunkSize, "chunk-size", 0, "entries per chunk")
	convertCmd.Flags().Float64Var(&convertThreshold, "threshold", 0, "similarity at or above which a line is dropped")
	convertCmd.Flags().BoolVar(&convertNoLinks, "no-links", false, "render link text only")
}

// applyConvertFlags overrides the loaded configuration with explicitly set flags.
func applyConvertFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("input") {
		cfg.Input.Pattern = convertInput
	}
	if flags.Changed("prefix") {
		cfg.Input.S3Prefix = convertPrefix
	}
	if flags.Changed("output") {
		cfg.Output.Path = convertOutput
	}
	if flags.Changed("upload") {
		cfg.Output.Upload = convertUpload
	}
	if flags.Changed("index") {
		cfg.Elasticsearch.Enabled = convertIndex
	}
	if flags.Changed("workers") {
		cfg.Pipeline.Workers = convertWorkers
	}
	if flags.Changed("chunk-size") {
		cfg.Pipeline.ChunkSize = convertChunkSize
	}
	if flags.Changed("threshold") {
		cfg.Pipeline.SimilarityThreshold = convertThreshold
	}
	if flags.Changed("no-links") {
		cfg.Converter.ConvertLinks = !convertNoLinks
	}
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	applyConvertFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	start := time.Now()
	runID := uuid.NewString()[:8]
	slog.Debug("convert command starting", "run_id", runID, "workers", cfg.Pipeline.Workers, "chunk_size", cfg.Pipeline.ChunkSize)

	var storageClient *storage.Client
	if cfg.Input.S3Prefix != "" || cfg.Output.Upload {
		var err error
		storageClient, err = newStorageClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
	}

	var esClient *elasticsearch.Client
	if cfg.Elasticsearch.Enabled {
		var err error
		esClient, err = newESClient(ctx, cfg.Elasticsearch)
		if err != nil {
			return err
		}
	}

	entries, source, err := loadEntries(ctx, cfg.Input, storageClient)
	if err != nil {
		return err
	}

	m := metrics.New()
	bar := progressBar(len(entries), "Converting")

	p, err := newPipeline(ctx, cfg,
		pipeline.WithMetrics(m),
		pipeline.WithProgress(func(ev events.ChunkCompleteEvent) {
			bar.Add(ev.Entries)
		}),
	)
	if err != nil {
		return err
	}

	results, err := p.Run(ctx, entries)
	if err != nil {
		return err
	}
	bar.Finish()

	written, err := writeOutput(cfg.Output, results)
	if err != nil {
		return err
	}

	summary := events.RunCompleteEvent{
		RunID:    runID,
		Entries:  len(entries),
		Chunks:   len(results),
		Failed:   pipeline.Failed(results),
		Bytes:    written,
		Duration: time.Since(start),
	}

	if cfg.Output.Upload {
		prefix, err := uploadRun(ctx, storageClient, source, summary, results)
		if err != nil {
			return err
		}
		color.Green("✓ Uploaded to s3://%s/%s\n", storageClient.Bucket(), prefix)
	}

	if esClient != nil {
		docs := pipeline.Documents(runID, time.Now(), entries, results)
		indexed, errs := esClient.IndexDocuments(ctx, docs)
		if len(errs) > 0 {
			color.Yellow("! %d of %d documents failed to index\n", len(docs)-indexed, len(docs))
		} else {
			color.Green("✓ Indexed %d documents in %s\n", indexed, cfg.Elasticsearch.Index)
		}
	}

	if cfg.Metrics.TextfilePath != "" {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			slog.Warn("failed to write metrics", "path", cfg.Metrics.TextfilePath, "error", err)
		}
	}

	printSummary(summary, cfg.Output.Path)
	return nil
}

// loadEntries reads the dataset from S3 when a prefix is configured and
// from local files otherwise. It returns the entries and a description of
// where they came from.
func loadEntries(ctx context.Context, in config.Input, storageClient *storage.Client) ([]models.Entry, string, error) {
	if in.S3Prefix != "" {
		entries, err := storageClient.LoadDatasets(ctx, in.S3Prefix)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load datasets: %w", err)
		}
		return entries, "s3://" + storageClient.Bucket() + "/" + in.S3Prefix, nil
	}

	entries, err := dataset.Load(in.Pattern)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load datasets: %w", err)
	}
	return entries, in.Pattern, nil
}

// newPipeline wires the curator, flattener, embedding engine and filter
// described by cfg.
func newPipeline(ctx context.Context, cfg config.Config, opts ...pipeline.Option) (*pipeline.Pipeline, error) {
	engine, err := newEmbeddingEngine(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}

	cur, err := curator.New(cfg.Converter.StripTags)
	if err != nil {
		return nil, fmt.Errorf("failed to create curator: %w", err)
	}

	p, err := pipeline.New(
		pipeline.Config{
			ChunkSize: cfg.Pipeline.ChunkSize,
			Workers:   cfg.Pipeline.Workers,
		},
		pipeline.Stages{
			Curator: cur,
			Flattener: processor.New(processor.Config{
				StripTags:    cfg.Converter.StripTags,
				ConvertLinks: cfg.Converter.ConvertLinks,
			}),
			Embedder: engine,
			Filter:   dedup.New(cfg.Pipeline.SimilarityThreshold),
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, nil
}

// newEmbeddingEngine builds the sentence embedding engine for the configured
// backend. Remote backends are probed so an unreachable server fails the run
// before any entry is processed.
func newEmbeddingEngine(ctx context.Context, ec config.Embeddings) (*embeddings.Engine, error) {
	var model embeddings.TokenModel

	switch ec.Backend {
	case config.BackendRemote:
		client, err := embeddings.New(embeddings.Config{
			SocketPath:        ec.SocketPath,
			BaseURL:           ec.BaseURL,
			Model:             ec.Model,
			Dimension:         ec.Dimension,
			MaxTokens:         ec.MaxTokens,
			RequestsPerSecond: ec.RequestsPerSecond,
			Timeout:           ec.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings client: %w", err)
		}
		if err := client.Probe(ctx); err != nil {
			return nil, err
		}
		slog.Info("remote embeddings enabled", "model", ec.Model, "dimension", client.Dimension())
		model = client
	default:
		hm, err := embeddings.NewHashModel(ec.Dimension, ec.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create hash model: %w", err)
		}
		model = hm
	}

	engine, err := embeddings.NewEngine(model, ec.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding engine: %w", err)
	}
	return engine, nil
}

func newStorageClient(ctx context.Context, sc config.Storage) (*storage.Client, error) {
	client, err := storage.New(storage.Config{
		Endpoint:        sc.Endpoint,
		Bucket:          sc.Bucket,
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
		UseSSL:          sc.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket: %w", err)
	}
	return client, nil
}

func newESClient(ctx context.Context, ec config.Elasticsearch) (*elasticsearch.Client, error) {
	client, err := elasticsearch.New(elasticsearch.Config{
		Addresses: ec.Addresses,
		Index:     ec.Index,
		Username:  ec.Username,
		Password:  ec.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}
	if !client.Ping(ctx) {
		return nil, fmt.Errorf("elasticsearch unavailable at %v", ec.Addresses)
	}
	if err := client.CreateIndex(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// writeOutput streams the chunk texts to the output file in chunk order.
func writeOutput(out config.Output, results []pipeline.ChunkResult) (int, error) {
	w, err := dataset.Create(out.Path, pipeline.Separator, out.FlushBytes)
	if err != nil {
		return 0, err
	}
	for _, r := range results {
		if err := w.WriteChunk(r.Text); err != nil {
			w.Close()
			return 0, err
		}
	}
	if err := w.Close(); err != nil {
		return 0, fmt.Errorf("failed to close output: %w", err)
	}
	return w.Bytes(), nil
}

func uploadRun(ctx context.Context, storageClient *storage.Client, source string, summary events.RunCompleteEvent, results []pipeline.ChunkResult) (string, error) {
	now := time.Now()
	prefix := storage.RunPrefix(summary.RunID, now)

	if err := storageClient.PutOutput(ctx, prefix, pipeline.Join(results)); err != nil {
		return "", err
	}
	err := storageClient.PutMetadata(ctx, prefix, storage.RunMetadata{
		RunID:     summary.RunID,
		Source:    source,
		Timestamp: now.UTC().Format(time.RFC3339),
		Entries:   summary.Entries,
		Chunks:    summary.Chunks,
		Failed:    summary.Failed,
	})
	if err != nil {
		return "", err
	}
	return prefix, nil
}

func progressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("entries"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printSummary(s events.RunCompleteEvent, path string) {
	fmt.Println()
	color.Green("✓ Converted %d entries in %d chunks (%v)\n", s.Entries, s.Chunks, s.Duration.Round(time.Millisecond))
	if s.Failed > 0 {
		color.Yellow("! %d entries produced no output\n", s.Failed)
	}
	fmt.Printf("  Output: %s (%d bytes)\n", path, s.Bytes)
	fmt.Printf("  Run ID: %s\n", s.RunID)
}
