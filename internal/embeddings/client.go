package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// dmrEmbeddingURL is llama.cpp's native endpoint behind Docker Model Runner.
	dmrEmbeddingURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/embedding"
	// llamaEmbeddingPath is the same endpoint on a standalone llama.cpp server.
	llamaEmbeddingPath = "/embedding"
)

// MaxInputChars limits each line sent to the server to stay within the
// model's context window.
const MaxInputChars = 20000

// Config holds remote token model configuration.
type Config struct {
	SocketPath        string        // Unix socket path for Docker Model Runner
	BaseURL           string        // llama.cpp server URL, used when SocketPath is empty
	Model             string        // Model name (e.g., "ai/all-minilm")
	Dimension         int           // Token vector size; 0 uses Dimensions(Model)
	MaxTokens         int           // Tokens kept per line; 0 uses DefaultMaxTokens
	RequestsPerSecond float64       // 0 disables rate limiting
	Timeout           time.Duration // Per-request timeout; 0 means none
}

// Client is a TokenModel backed by a llama.cpp server started with
// pooling disabled, which returns one vector per token.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	dim        int
	maxTokens  int
	limiter    *rate.Limiter
}

// New creates a new remote token model client.
func New(config Config) (*Client, error) {
	if config.SocketPath == "" && config.BaseURL == "" {
		return nil, fmt.Errorf("socket path or base URL is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Dimension < 0 || config.MaxTokens < 0 || config.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("dimension, max tokens and request rate must not be negative")
	}

	dim := config.Dimension
	if dim == 0 {
		dim = Dimensions(config.Model)
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	httpClient := &http.Client{Timeout: config.Timeout}
	endpoint := strings.TrimRight(config.BaseURL, "/") + llamaEmbeddingPath

	if config.SocketPath != "" {
		socketPath := config.SocketPath
		httpClient.Transport = &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		}
		endpoint = dmrEmbeddingURL
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: httpClient,
		endpoint:   endpoint,
		model:      config.Model,
		dim:        dim,
		maxTokens:  maxTokens,
		limiter:    limiter,
	}, nil
}

// Dimension returns the token vector size.
func (c *Client) Dimension() int {
	return c.dim
}

type embeddingRequest struct {
	Model   string   `json:"model"`
	Content []string `json:"content"`
}

// embeddingResult is one entry of the /embedding response. With pooling
// disabled the embedding holds one vector per token.
type embeddingResult struct {
	Index     int         `json:"index"`
	Embedding [][]float32 `json:"embedding"`
}

// EncodeTokens implements TokenModel. Blank lines are not sent and come
// back as empty sequences.
func (c *Client) EncodeTokens(ctx context.Context, texts []string) (*TokenBatch, error) {
	seqs := make([][][]float32, len(texts))

	var content []string
	var positions []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		if len(text) > MaxInputChars {
			text = strings.ToValidUTF8(text[:MaxInputChars], "")
		}
		content = append(content, text)
		positions = append(positions, i)
	}

	if len(content) > 0 {
		results, err := c.request(ctx, content)
		if err != nil {
			return nil, err
		}
		for k, res := range results {
			tokens := res.Embedding
			if len(tokens) > c.maxTokens {
				tokens = tokens[:c.maxTokens]
			}
			for t, vec := range tokens {
				if len(vec) != c.dim {
					return nil, fmt.Errorf("%w: token %d of line %d has dimension %d, want %d",
						ErrShape, t, positions[k], len(vec), c.dim)
				}
			}
			seqs[positions[k]] = tokens
		}
	}

	return padBatch(seqs, c.dim), nil
}

// Probe sends a single line through the model to confirm the server is up
// and returns vectors of the configured dimension.
func (c *Client) Probe(ctx context.Context) error {
	batch, err := c.EncodeTokens(ctx, []string{"probe"})
	if err != nil {
		return fmt.Errorf("embedding backend unavailable: %w", err)
	}
	if len(batch.Mask) != 1 || len(batch.Mask[0]) == 0 {
		return fmt.Errorf("embedding backend returned no tokens")
	}
	return nil
}

func (c *Client) request(ctx context.Context, content []string) ([]embeddingResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	slog.Debug("requesting token embeddings", "texts", len(content), "endpoint", c.endpoint)

	body, err := json.Marshal(embeddingRequest{Model: c.model, Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var results []embeddingResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(results) != len(content) {
		return nil, fmt.Errorf("%w: sent %d texts, got %d embeddings", ErrShape, len(content), len(results))
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })
	for i, res := range results {
		if res.Index != i {
			return nil, fmt.Errorf("%w: unexpected result index %d", ErrShape, res.Index)
		}
	}

	return results, nil
}

// Dimensions returns the token vector size for common models.
func Dimensions(model string) int {
	switch model {
	case "ai/all-minilm", "sentence-transformers/all-MiniLM-L6-v2":
		return 384
	case "ai/mxbai-embed-large", "ai/snowflake-arctic-embed":
		return 1024
	case "ai/embeddinggemma", "ai/nomic-embed-text-v1.5":
		return 768
	default:
		return 384
	}
}
