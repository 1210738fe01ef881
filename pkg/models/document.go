package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTitle is used for entries that carry no title of their own.
const DefaultTitle = "Untitled"

// Entry is one raw page of a dataset: a title, its source URL and the HTML body.
type Entry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	HTML  string `json:"html"`
}

// UnmarshalJSON accepts "content" as an alias of "html", which is what
// crawler exports commonly use for the page body.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		HTML    string `json:"html"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Title = raw.Title
	e.URL = raw.URL
	e.HTML = raw.HTML
	if e.HTML == "" {
		e.HTML = raw.Content
	}
	return nil
}

// Document is the indexed form of one processed entry.
type Document struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"` // Deduplicated Markdown body
	Chunk       int       `json:"chunk"`
	RunID       string    `json:"run_id"`
	ProcessedAt time.Time `json:"processed_at"`
}

// GenerateDocumentID creates a deterministic ID from URL.
// The ID is a SHA-256 hash (first 16 chars) of the URL.
func GenerateDocumentID(url string) string {
	hash := sha256.Sum256([]byte(url))
	return hex.EncodeToString(hash[:])[:16]
}

// EntryDocumentID returns the document ID for an entry at a dataset position.
// Entries without a URL are keyed by title and position instead.
func EntryDocumentID(e Entry, position int) string {
	if e.URL != "" {
		return GenerateDocumentID(e.URL)
	}
	return GenerateDocumentID(fmt.Sprintf("%s#%d", e.Title, position))
}
