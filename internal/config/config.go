package config

import (
	"errors"
	"fmt"
	"time"
)

// Embedding backends. BackendHash runs offline and scores word overlap, not
// meaning: paraphrases with few shared words are never treated as repeats.
// BackendRemote calls a sentence-embedding model.
const (
	BackendHash   = "hash"
	BackendRemote = "remote"
)

// Config holds all application configuration.
type Config struct {
	Pipeline      Pipeline      `mapstructure:"pipeline"`
	Converter     Converter     `mapstructure:"converter"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	Input         Input         `mapstructure:"input"`
	Output        Output        `mapstructure:"output"`
	Storage       Storage       `mapstructure:"storage"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Metrics       Metrics       `mapstructure:"metrics"`
	Crawler       Crawler       `mapstructure:"crawler"`
	MCP           MCP           `mapstructure:"mcp"`
}

// Pipeline holds chunking, concurrency and filtering settings.
type Pipeline struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	Workers             int     `mapstructure:"workers"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// Converter holds HTML curation and flattening settings.
type Converter struct {
	StripTags    []string `mapstructure:"strip_tags"`
	ConvertLinks bool     `mapstructure:"convert_links"`
}

// Embeddings holds sentence embedding configuration.
type Embeddings struct {
	Backend           string        `mapstructure:"backend"` // "hash" or "remote"
	SocketPath        string        `mapstructure:"socket_path"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	BatchSize         int           `mapstructure:"batch_size"`
	Dimension         int           `mapstructure:"dimension"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// Input selects the dataset files.
type Input struct {
	Pattern  string `mapstructure:"pattern"`   // Local glob, e.g. "data/**/*.json"
	S3Prefix string `mapstructure:"s3_prefix"` // Read datasets from S3 instead
}

// Output controls where the converted Markdown goes.
type Output struct {
	Path       string `mapstructure:"path"`
	FlushBytes int    `mapstructure:"flush_bytes"`
	Upload     bool   `mapstructure:"upload"` // Also upload to S3
}

// Storage holds S3/MinIO storage configuration.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Metrics holds run metrics export configuration.
type Metrics struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Crawler holds web crawling configuration.
type Crawler struct {
	Delay            time.Duration `mapstructure:"delay"`
	MaxDepth         int           `mapstructure:"max_depth"`
	MaxPages         int           `mapstructure:"max_pages"`
	FollowLinks      bool          `mapstructure:"follow_links"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	TryMarkdownFirst bool          `mapstructure:"try_markdown_first"`
	Match            []string      `mapstructure:"match"`
	Exclude          []string      `mapstructure:"exclude"`
	Selector         string        `mapstructure:"selector"`
	Readability      bool          `mapstructure:"readability"`
	Cookies          []Cookie      `mapstructure:"cookies"`
}

// Cookie is sent with every crawl request.
type Cookie struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Pipeline: Pipeline{
			ChunkSize:           512,
			Workers:             10,
			SimilarityThreshold: 0.86899,
		},
		Converter: Converter{
			StripTags:    []string{"script", "style", "meta"},
			ConvertLinks: true,
		},
		Embeddings: Embeddings{
			Backend:   BackendHash, // Word overlap only; "remote" compares meaning
			Model:     "ai/all-minilm",
			BatchSize: 32,
			MaxTokens: 512,
			Timeout:   60 * time.Second,
		},
		Input: Input{
			Pattern: "*.json",
		},
		Output: Output{
			Path:       "output.md",
			FlushBytes: 1024,
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "bam-curate",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		Elasticsearch: Elasticsearch{
			Enabled:   false,
			Addresses: []string{"http://localhost:9200"},
			Index:     "bam-curate-docs",
		},
		Crawler: Crawler{
			Delay:            1 * time.Second,
			MaxDepth:         3,
			MaxPages:         50,
			FollowLinks:      true,
			Timeout:          30 * time.Second,
			UserAgent:        "bam-curate/1.0",
			TryMarkdownFirst: false,
		},
		MCP: MCP{
			Name:    "bam-curate",
			Version: "1.0.0",
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Pipeline.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk_size must be positive, got %d", c.Pipeline.ChunkSize))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers))
	}
	if t := c.Pipeline.SimilarityThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("pipeline.similarity_threshold must be in (0, 1], got %v", t))
	}
	if c.Embeddings.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize))
	}

	switch c.Embeddings.Backend {
	case BackendHash:
	case BackendRemote:
		if c.Embeddings.SocketPath == "" && c.Embeddings.BaseURL == "" {
			errs = append(errs, errors.New("embeddings.socket_path or embeddings.base_url is required for the remote backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("embeddings.backend must be %q or %q, got %q", BackendHash, BackendRemote, c.Embeddings.Backend))
	}

	if c.Elasticsearch.Enabled && c.Elasticsearch.Index == "" {
		errs = append(errs, errors.New("elasticsearch.index is required when elasticsearch is enabled"))
	}

	return errors.Join(errs...)
}
