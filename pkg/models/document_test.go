package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Entry
	}{
		{
			name: "html field",
			data: `{"title":"Intro","url":"https://example.com","html":"<p>hi</p>"}`,
			want: Entry{Title: "Intro", URL: "https://example.com", HTML: "<p>hi</p>"},
		},
		{
			name: "content alias",
			data: `{"title":"Intro","url":"https://example.com","content":"<p>hi</p>"}`,
			want: Entry{Title: "Intro", URL: "https://example.com", HTML: "<p>hi</p>"},
		},
		{
			name: "html wins over content",
			data: `{"html":"<p>a</p>","content":"<p>b</p>"}`,
			want: Entry{HTML: "<p>a</p>"},
		},
		{
			name: "missing fields",
			data: `{}`,
			want: Entry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Entry
			if err := json.Unmarshal([]byte(tt.data), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEntry_MarshalUsesHTMLField(t *testing.T) {
	data, err := json.Marshal(Entry{Title: "T", URL: "u", HTML: "<p>x</p>"})
	if err != nil {
		t.Fatalf("failed to marshal Entry: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal to map: %v", err)
	}
	for _, field := range []string{"title", "url", "html"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("JSON should contain field %q", field)
		}
	}
}

func TestDocument_JSONFieldNames(t *testing.T) {
	doc := Document{
		ID:          "abc",
		URL:         "https://example.com",
		Title:       "Test",
		Content:     "content",
		Chunk:       2,
		RunID:       "run-1",
		ProcessedAt: time.Date(2025, 12, 4, 10, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal to map: %v", err)
	}

	expectedFields := []string{"id", "url", "title", "content", "chunk", "run_id", "processed_at"}
	for _, field := range expectedFields {
		if _, ok := raw[field]; !ok {
			t.Errorf("JSON should contain field %q", field)
		}
	}
}

func TestGenerateDocumentID(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"simple URL", "https://example.com/docs"},
		{"URL with path", "https://example.com/docs/intro/getting-started"},
		{"URL with query", "https://example.com/docs?page=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := GenerateDocumentID(tt.url)

			if id == "" {
				t.Error("ID should not be empty")
			}

			id2 := GenerateDocumentID(tt.url)
			if id != id2 {
				t.Errorf("ID should be deterministic: got %q and %q", id, id2)
			}

			if len(id) != 16 {
				t.Errorf("ID length should be 16, got %d", len(id))
			}
		})
	}
}

func TestEntryDocumentID(t *testing.T) {
	withURL := Entry{Title: "A", URL: "https://example.com/a"}
	if got := EntryDocumentID(withURL, 3); got != GenerateDocumentID(withURL.URL) {
		t.Errorf("EntryDocumentID() = %q, want URL hash", got)
	}

	noURL := Entry{Title: "A"}
	if EntryDocumentID(noURL, 1) == EntryDocumentID(noURL, 2) {
		t.Error("entries without URL at different positions should get different IDs")
	}
}
