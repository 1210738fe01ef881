package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mfenderov/bam-curate/internal/dataset"
	"github.com/mfenderov/bam-curate/pkg/models"
)

const (
	metadataFile = "metadata.json"
	outputFile   = "output.md"
	datasetFile  = "dataset.json"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "bam-curate"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for dataset and run artifacts.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// RunPrefix returns the prefix holding a conversion run's artifacts,
// e.g. "runs/2024-12-04-<run id>".
func RunPrefix(runID string, at time.Time) string {
	return path.Join("runs", at.UTC().Format("2006-01-02")+"-"+runID)
}

// DatasetPrefix returns the prefix for a crawl of sourceURL,
// e.g. "datasets/go.dev/2024-12-04T17-30-00-<id>".
func DatasetPrefix(sourceURL, id string, at time.Time) string {
	host := "unknown"
	if u, err := url.Parse(sourceURL); err == nil && u.Host != "" {
		host = u.Host
	}
	return path.Join("datasets", host, at.UTC().Format("2006-01-02T15-04-05")+"-"+id)
}

// RunMetadata holds information about a conversion run.
type RunMetadata struct {
	RunID     string `json:"run_id"`
	Source    string `json:"source"` // Input pattern or S3 prefix
	Timestamp string `json:"timestamp"`
	Entries   int    `json:"entries"`
	Chunks    int    `json:"chunks"`
	Failed    int    `json:"failed"`
}

// PutOutput writes the run's Markdown artifact.
func (c *Client) PutOutput(ctx context.Context, prefix, content string) error {
	objectName := path.Join(prefix, outputFile)
	reader := strings.NewReader(content)

	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, reader, int64(len(content)), minio.PutObjectOptions{
		ContentType: "text/markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to put output: %w", err)
	}
	return nil
}

// PutMetadata writes the run metadata JSON to S3.
func (c *Client) PutMetadata(ctx context.Context, prefix string, meta RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := c.putJSON(ctx, path.Join(prefix, metadataFile), data); err != nil {
		return fmt.Errorf("failed to put metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the run metadata from S3.
func (c *Client) GetMetadata(ctx context.Context, prefix string) (*RunMetadata, error) {
	data, err := c.get(ctx, path.Join(prefix, metadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &meta, nil
}

// PutDataset writes entries as a JSON dataset under prefix and returns the
// object key.
func (c *Client) PutDataset(ctx context.Context, prefix string, entries []models.Entry) (string, error) {
	var buf bytes.Buffer
	if err := dataset.Encode(&buf, entries); err != nil {
		return "", err
	}

	key := path.Join(prefix, datasetFile)
	if err := c.putJSON(ctx, key, buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to put dataset: %w", err)
	}
	return key, nil
}

// ListDatasetFiles returns the keys of all JSON datasets under a prefix,
// skipping run metadata.
func (c *Client) ListDatasetFiles(ctx context.Context, prefix string) ([]string, error) {
	listPrefix := strings.TrimSuffix(prefix, "/") + "/"
	var keys []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		if strings.HasSuffix(object.Key, ".json") && path.Base(object.Key) != metadataFile {
			keys = append(keys, object.Key)
		}
	}

	return keys, nil
}

// GetDataset reads and decodes the dataset stored at key.
func (c *Client) GetDataset(ctx context.Context, key string) ([]models.Entry, error) {
	data, err := c.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}

	entries, err := dataset.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return entries, nil
}

// LoadDatasets reads every dataset under prefix, in key order.
func (c *Client) LoadDatasets(ctx context.Context, prefix string) ([]models.Entry, error) {
	keys, err := c.ListDatasetFiles(ctx, prefix)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no datasets under s3://%s/%s", c.bucket, prefix)
	}

	var entries []models.Entry
	for _, key := range keys {
		fileEntries, err := c.GetDataset(ctx, key)
		if err != nil {
			return nil, err
		}
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

func (c *Client) putJSON(ctx context.Context, objectName string, data []byte) error {
	_, err := c.minioClient.PutObject(ctx, c.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

func (c *Client) get(ctx context.Context, objectName string) ([]byte, error) {
	object, err := c.minioClient.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer object.Close()

	return io.ReadAll(object)
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
