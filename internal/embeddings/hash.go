package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	// DefaultHashDimension matches the small sentence-transformer models.
	DefaultHashDimension = 384
	// DefaultMaxTokens is the sequence length limit applied to each line.
	DefaultMaxTokens = 512
)

// HashModel is an offline TokenModel. Each lowercase word token maps to a
// fixed pseudo-random vector seeded by its hash, so lines that share their
// words score high and unrelated lines score near zero.
type HashModel struct {
	dim       int
	maxTokens int
}

// NewHashModel creates a hash model. Zero values select the defaults.
func NewHashModel(dim, maxTokens int) (*HashModel, error) {
	if dim == 0 {
		dim = DefaultHashDimension
	}
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}
	if dim < 0 || maxTokens < 0 {
		return nil, fmt.Errorf("invalid hash model size: dimension %d, max tokens %d", dim, maxTokens)
	}
	return &HashModel{dim: dim, maxTokens: maxTokens}, nil
}

// Dimension returns the token vector size.
func (m *HashModel) Dimension() int {
	return m.dim
}

// Tokenize splits text into lowercase letter and digit runs, truncated to
// the model's sequence limit.
func (m *HashModel) Tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) > m.maxTokens {
		tokens = tokens[:m.maxTokens]
	}
	return tokens
}

// EncodeTokens implements TokenModel.
func (m *HashModel) EncodeTokens(ctx context.Context, texts []string) (*TokenBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seqs := make([][][]float32, len(texts))
	for i, text := range texts {
		tokens := m.Tokenize(text)
		vecs := make([][]float32, len(tokens))
		for t, tok := range tokens {
			vecs[t] = m.tokenVector(tok)
		}
		seqs[i] = vecs
	}
	return padBatch(seqs, m.dim), nil
}

func (m *HashModel) tokenVector(token string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(token))
	state := h.Sum64()

	vec := make([]float32, m.dim)
	for d := range vec {
		state = splitmix64(state)
		u := float64(state>>11) / (1 << 53)
		vec[d] = float32(2*u - 1)
	}
	return vec
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
