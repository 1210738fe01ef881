package pipeline

import (
	"time"

	"github.com/mfenderov/bam-curate/pkg/models"
)

// Documents converts successful entry results into indexable documents.
// Failed entries and entries of degraded chunks are skipped.
func Documents(runID string, processedAt time.Time, entries []models.Entry, results []ChunkResult) []models.Document {
	var docs []models.Document
	for _, chunk := range results {
		if chunk.Err != nil {
			continue
		}
		for _, er := range chunk.Entries {
			if er.Err != nil || er.Index >= len(entries) {
				continue
			}
			docs = append(docs, models.Document{
				ID:          models.EntryDocumentID(entries[er.Index], er.Index),
				URL:         er.URL,
				Title:       er.Title,
				Content:     er.Body,
				Chunk:       chunk.Index,
				RunID:       runID,
				ProcessedAt: processedAt,
			})
		}
	}
	return docs
}

// Failed counts the entries that produced no output, including every entry
// of a degraded chunk.
func Failed(results []ChunkResult) int {
	n := 0
	for _, r := range results {
		n += r.Failed
	}
	return n
}
