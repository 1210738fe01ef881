// Package embeddings turns lines of text into unit-length sentence vectors
// by mean pooling the token vectors of a TokenModel.
package embeddings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
)

// DefaultBatchSize is the number of lines sent to the model at once.
const DefaultBatchSize = 32

const (
	maskEpsilon   = 1e-9
	normEpsilon   = 1e-12
	cosineEpsilon = 1e-8
)

// ErrShape is returned when a model's output does not line up with its input.
var ErrShape = errors.New("token output shape mismatch")

// TokenBatch is the token-level output of a model for one batch of texts,
// padded to the longest sequence in the batch.
type TokenBatch struct {
	Vectors [][][]float32 // [text][token][dimension]
	Mask    [][]int       // [text][token]; 1 marks a real token, 0 padding
}

// TokenModel produces per-token vectors for a batch of texts.
type TokenModel interface {
	EncodeTokens(ctx context.Context, texts []string) (*TokenBatch, error)
	Dimension() int
}

// Engine computes normalized sentence embeddings. It keeps no state besides
// the model handle, so it can be shared whenever the model is reentrant.
type Engine struct {
	model     TokenModel
	batchSize int
}

// NewEngine creates an engine around a loaded model.
func NewEngine(model TokenModel, batchSize int) (*Engine, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Engine{model: model, batchSize: batchSize}, nil
}

// Dimension returns the size of the vectors produced by Embed.
func (e *Engine) Dimension() int {
	return e.model.Dimension()
}

// Embed returns one unit vector per line, in input order. Lines are sent to
// the model in consecutive batches; a line's vector does not depend on the
// batch it lands in.
func (e *Engine) Embed(ctx context.Context, lines []string) ([][]float32, error) {
	dim := e.model.Dimension()
	out := make([][]float32, 0, len(lines))

	for start := 0; start < len(lines); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+e.batchSize, len(lines))
		batch := lines[start:end]

		tokens, err := e.model.EncodeTokens(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch at line %d: %w", start, err)
		}
		if len(tokens.Vectors) != len(batch) || len(tokens.Mask) != len(batch) {
			return nil, fmt.Errorf("%w: %d texts, %d vectors, %d masks",
				ErrShape, len(batch), len(tokens.Vectors), len(tokens.Mask))
		}

		for i := range batch {
			pooled, err := MeanPool(tokens.Vectors[i], tokens.Mask[i], dim)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", start+i, err)
			}
			out = append(out, Normalize(pooled))
		}
	}

	slog.Debug("embedded lines", "lines", len(lines), "batch_size", e.batchSize)
	return out, nil
}

// MeanPool averages the token vectors whose mask is 1. The divisor is
// floored at a small epsilon so an all-padding sequence yields a zero vector.
func MeanPool(tokens [][]float32, mask []int, dim int) ([]float32, error) {
	if len(tokens) != len(mask) {
		return nil, fmt.Errorf("%w: %d tokens, %d mask entries", ErrShape, len(tokens), len(mask))
	}

	sum := make([]float64, dim)
	count := 0.0
	for t, vec := range tokens {
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: token %d has dimension %d, want %d", ErrShape, t, len(vec), dim)
		}
		if mask[t] == 0 {
			continue
		}
		w := float64(mask[t])
		for d, v := range vec {
			sum[d] += float64(v) * w
		}
		count += w
	}

	divisor := math.Max(count, maskEpsilon)
	pooled := make([]float32, dim)
	for d := range sum {
		pooled[d] = float32(sum[d] / divisor)
	}
	return pooled, nil
}

// Normalize returns v scaled to unit L2 length. Zero vectors stay zero.
func Normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	norm := math.Max(math.Sqrt(sq), normEpsilon)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b. Vectors of different
// length have similarity 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	return dot / math.Max(math.Sqrt(na)*math.Sqrt(nb), cosineEpsilon)
}

// padBatch lays variable-length token sequences out as a padded TokenBatch.
func padBatch(seqs [][][]float32, dim int) *TokenBatch {
	longest := 0
	for _, s := range seqs {
		longest = max(longest, len(s))
	}

	batch := &TokenBatch{
		Vectors: make([][][]float32, len(seqs)),
		Mask:    make([][]int, len(seqs)),
	}
	for i, s := range seqs {
		vecs := make([][]float32, longest)
		mask := make([]int, longest)
		for t := range longest {
			if t < len(s) {
				vecs[t] = s[t]
				mask[t] = 1
			} else {
				vecs[t] = make([]float32, dim)
			}
		}
		batch.Vectors[i] = vecs
		batch.Mask[i] = mask
	}
	return batch
}
