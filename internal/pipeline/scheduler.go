package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/bam-curate/internal/events"
	"github.com/mfenderov/bam-curate/internal/metrics"
	"github.com/mfenderov/bam-curate/pkg/models"
)

// Separator joins formatted entries within a chunk and chunks within a run.
const Separator = "\n\n"

// EntryError records an entry that could not be formatted.
type EntryError struct {
	Index int
	Title string
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("entry %d (%s): %v", e.Index, e.Title, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// ChunkResult is the output of one chunk.
type ChunkResult struct {
	Index    int
	Text     string
	Entries  []EntryResult
	Failed   int
	Duration time.Duration
	Err      error // set when the chunk panicked; Text is then empty
}

// ChunkDataset splits entries into contiguous chunks of at most size
// entries. Only the last chunk may be shorter.
func ChunkDataset(entries []models.Entry, size int) [][]models.Entry {
	if size <= 0 || len(entries) == 0 {
		return nil
	}

	chunks := make([][]models.Entry, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		chunks = append(chunks, entries[start:end])
	}
	return chunks
}

// Run processes all entries and returns one result per chunk, indexed by
// chunk position regardless of completion order. A cancelled context fails
// the run and no results are returned.
func (p *Pipeline) Run(ctx context.Context, entries []models.Entry) ([]ChunkResult, error) {
	chunks := ChunkDataset(entries, p.config.ChunkSize)
	results := make([]ChunkResult, len(chunks))

	slog.Info("starting run", "entries", len(entries), "chunks", len(chunks), "workers", p.config.Workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	offset := 0
	for i, chunk := range chunks {
		base := offset
		offset += len(chunk)

		g.Go(func() error {
			res, err := p.runChunk(gctx, i, base, chunk)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run aborted: %w", err)
	}
	return results, nil
}

// runChunk formats the entries of one chunk sequentially. Entry failures
// degrade to empty text; a panic degrades the whole chunk. Only context
// errors are returned.
func (p *Pipeline) runChunk(ctx context.Context, index, base int, chunk []models.Entry) (res ChunkResult, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("chunk panicked", "chunk", index, "panic", r)
			res = ChunkResult{Index: index, Failed: len(chunk), Err: fmt.Errorf("chunk %d panicked: %v", index, r)}
			err = nil
		}
		if err != nil {
			return
		}
		res.Duration = time.Since(start)
		p.metrics.ObserveChunk(res.Duration)
		if p.progress != nil {
			p.progress(events.ChunkCompleteEvent{
				Index:    index,
				Entries:  len(chunk),
				Failed:   res.Failed,
				Duration: res.Duration,
				Err:      res.Err,
			})
		}
	}()

	res = ChunkResult{Index: index, Entries: make([]EntryResult, 0, len(chunk))}
	texts := make([]string, 0, len(chunk))

	for j, entry := range chunk {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		er, ferr := p.FormatEntry(ctx, entry)
		er.Index = base + j

		switch {
		case ferr != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case ferr != nil:
			er.Err = &EntryError{Index: er.Index, Title: er.Title, Err: ferr}
			er.Text = ""
			er.Body = ""
			res.Failed++
			slog.Warn("entry failed", "index", er.Index, "title", er.Title, "error", ferr)
			p.metrics.ObserveEntry(metrics.StatusFailed)
		case er.Markdown:
			p.metrics.ObserveEntry(metrics.StatusMarkdown)
			p.metrics.ObserveLines(er.Kept, er.Dropped)
		default:
			p.metrics.ObserveEntry(metrics.StatusOK)
			p.metrics.ObserveLines(er.Kept, er.Dropped)
		}

		res.Entries = append(res.Entries, er)
		texts = append(texts, er.Text)
	}

	res.Text = strings.Join(texts, Separator)
	slog.Debug("chunk complete", "chunk", index, "entries", len(chunk), "failed", res.Failed)
	return res, nil
}

// Join concatenates chunk texts in chunk order.
func Join(results []ChunkResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return strings.Join(texts, Separator)
}
