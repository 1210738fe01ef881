package events

import "time"

// CrawlCompleteEvent is sent when the crawler finishes writing a dataset.
type CrawlCompleteEvent struct {
	Bucket    string    // S3 bucket name, empty for local-only crawls
	Key       string    // S3 object key or local path of the dataset
	SourceURL string    // Start URL of the crawl
	PageCount int       // Number of entries written
	Timestamp time.Time // When the crawl completed
}

// ChunkCompleteEvent is sent by a worker when it finishes one chunk.
type ChunkCompleteEvent struct {
	Index    int           // Chunk position in the dataset
	Entries  int           // Entries in the chunk
	Failed   int           // Entries that degraded to empty output
	Duration time.Duration // Time spent on the chunk
	Err      error         // Non-nil when the chunk itself failed
}

// RunCompleteEvent summarizes a finished conversion run.
type RunCompleteEvent struct {
	RunID    string
	Entries  int
	Chunks   int
	Failed   int
	Bytes    int
	Duration time.Duration
}
