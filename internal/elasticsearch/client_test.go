package elasticsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mfenderov/bam-curate/pkg/models"
)

func skipIfNoES(t *testing.T) {
	if os.Getenv("SKIP_ES_TESTS") == "1" {
		t.Skip("Skipping ES tests (SKIP_ES_TESTS=1)")
	}

	// Try to connect to ES
	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "test-skip-check",
	})
	if err != nil {
		t.Skipf("Skipping ES tests: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !client.Ping(ctx) {
		t.Skip("Skipping ES tests: Elasticsearch not available")
	}
}

// fakeES records indexed documents and answers like a minimal cluster.
type fakeES struct {
	mu      sync.Mutex
	docs    map[string]models.Document
	created bool
	failIDs map[string]bool
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodHead && len(parts) == 1:
		if !f.created {
			w.WriteHeader(http.StatusNotFound)
		}
	case r.Method == http.MethodPut && len(parts) == 1:
		f.created = true
		w.Write([]byte(`{"acknowledged":true}`))
	case len(parts) == 3 && parts[1] == "_doc" && (r.Method == http.MethodPut || r.Method == http.MethodPost):
		if f.failIDs[parts[2]] {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
			return
		}
		var doc models.Document
		json.NewDecoder(r.Body).Decode(&doc)
		f.docs[parts[2]] = doc
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"result":"created"}`))
	case len(parts) == 2 && parts[1] == "_refresh":
		w.Write([]byte(`{"_shards":{"total":1,"successful":1,"failed":0}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{}`))
	}
}

func newFakeClient(t *testing.T, fake *fakeES) *Client {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := New(Config{Addresses: []string{server.URL}, Index: "curated"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func TestNew_RequiresIndex(t *testing.T) {
	if _, err := New(Config{Addresses: []string{"http://localhost:9200"}}); err == nil {
		t.Error("New() should require an index")
	}
}

func TestClient_CreateIndex_Fake(t *testing.T) {
	fake := &fakeES{docs: map[string]models.Document{}}
	client := newFakeClient(t, fake)

	if err := client.CreateIndex(t.Context()); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if !fake.created {
		t.Error("CreateIndex() should create a missing index")
	}
	if err := client.CreateIndex(t.Context()); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}
}

func TestClient_IndexDocuments_Fake(t *testing.T) {
	fake := &fakeES{
		docs:    map[string]models.Document{},
		failIDs: map[string]bool{"bad": true},
	}
	client := newFakeClient(t, fake)

	docs := []models.Document{
		{ID: "a1", URL: "https://example.com/a", Title: "A", Content: "Body A", RunID: "run-1"},
		{ID: "bad", URL: "https://example.com/bad", Title: "Bad"},
		{ID: "b2", URL: "https://example.com/b", Title: "B", Content: "Body B", Chunk: 1, RunID: "run-1"},
	}

	indexed, errs := client.IndexDocuments(t.Context(), docs)
	if indexed != 2 {
		t.Errorf("IndexDocuments() indexed %d, want 2", indexed)
	}
	if len(errs) != 1 {
		t.Errorf("IndexDocuments() errors = %v, want one", errs)
	}
	if got := fake.docs["b2"]; got.Chunk != 1 || got.RunID != "run-1" || got.Content != "Body B" {
		t.Errorf("stored document = %+v", got)
	}
}

func TestClient_Connect(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "bam-curate-test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if !client.Ping(ctx) {
		t.Error("Ping() should return true for running ES")
	}
}

func TestClient_CreateIndex(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "bam-curate-test-create",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	// Delete index if exists (cleanup from previous test)
	client.DeleteIndex(ctx)

	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	// Creating again should not error (idempotent)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() second call error = %v", err)
	}

	client.DeleteIndex(ctx)
}

func TestClient_IndexAndGet(t *testing.T) {
	skipIfNoES(t)

	client, err := New(Config{
		Addresses: []string{"http://localhost:9200"},
		Index:     "bam-curate-test-get",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()

	client.DeleteIndex(ctx)
	if err := client.CreateIndex(ctx); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	doc := models.Document{
		ID:          models.GenerateDocumentID("https://example.com/test"),
		URL:         "https://example.com/test",
		Title:       "Test Page",
		Content:     "Test content for get operation.",
		Chunk:       3,
		RunID:       "run-test",
		ProcessedAt: time.Date(2024, 12, 4, 17, 30, 0, 0, time.UTC),
	}

	indexed, errs := client.IndexDocuments(ctx, []models.Document{doc})
	if indexed != 1 || len(errs) != 0 {
		t.Fatalf("IndexDocuments() = %d, %v", indexed, errs)
	}

	result, err := client.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if result == nil {
		t.Fatal("GetDocument() returned nil")
	}
	if result.Content != doc.Content || result.Chunk != doc.Chunk || result.RunID != doc.RunID {
		t.Errorf("GetDocument() = %+v, want %+v", result, doc)
	}

	missing, err := client.GetDocument(ctx, "does-not-exist")
	if err != nil || missing != nil {
		t.Errorf("GetDocument(missing) = %v, %v; want nil, nil", missing, err)
	}

	client.DeleteIndex(ctx)
}
