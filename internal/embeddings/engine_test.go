package embeddings

import (
	"context"
	"errors"
	"math"
	"testing"
)

func assertUnit(t *testing.T, v []float32) {
	t.Helper()
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sq)-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(sq))
	}
}

func newHashEngine(t *testing.T, batchSize int) *Engine {
	t.Helper()
	model, err := NewHashModel(64, 0)
	if err != nil {
		t.Fatalf("NewHashModel() error = %v", err)
	}
	engine, err := NewEngine(model, batchSize)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return engine
}

func TestNewEngine_Validation(t *testing.T) {
	model, _ := NewHashModel(0, 0)

	if _, err := NewEngine(nil, 8); err == nil {
		t.Error("NewEngine() should reject a nil model")
	}
	if _, err := NewEngine(model, 0); err == nil {
		t.Error("NewEngine() should reject a zero batch size")
	}
}

func TestMeanPool(t *testing.T) {
	tests := []struct {
		name   string
		tokens [][]float32
		mask   []int
		want   []float32
	}{
		{
			name:   "all tokens",
			tokens: [][]float32{{1, 2}, {3, 4}},
			mask:   []int{1, 1},
			want:   []float32{2, 3},
		},
		{
			name:   "padding ignored",
			tokens: [][]float32{{1, 2}, {100, 100}},
			mask:   []int{1, 0},
			want:   []float32{1, 2},
		},
		{
			name:   "all padding",
			tokens: [][]float32{{5, 5}},
			mask:   []int{0},
			want:   []float32{0, 0},
		},
		{
			name:   "empty sequence",
			tokens: nil,
			mask:   nil,
			want:   []float32{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MeanPool(tt.tokens, tt.mask, 2)
			if err != nil {
				t.Fatalf("MeanPool() error = %v", err)
			}
			for i := range tt.want {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Errorf("MeanPool() = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestMeanPool_ShapeErrors(t *testing.T) {
	if _, err := MeanPool([][]float32{{1, 2}}, []int{1, 1}, 2); !errors.Is(err, ErrShape) {
		t.Errorf("mask length mismatch: error = %v, want ErrShape", err)
	}
	if _, err := MeanPool([][]float32{{1, 2, 3}}, []int{1}, 2); !errors.Is(err, ErrShape) {
		t.Errorf("dimension mismatch: error = %v, want ErrShape", err)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float32{3, 4})
	if math.Abs(float64(got[0])-0.6) > 1e-6 || math.Abs(float64(got[1])-0.8) > 1e-6 {
		t.Errorf("Normalize() = %v, want [0.6 0.8]", got)
	}

	zero := Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 {
			t.Errorf("Normalize(zero) = %v, want zero vector", zero)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"scaled", []float32{2, 0}, []float32{5, 0}, 1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngine_Embed_UnitVectors(t *testing.T) {
	engine := newHashEngine(t, 4)
	lines := []string{"Installing the package", "Run the tests", "Configure logging output"}

	vecs, err := engine.Embed(context.Background(), lines)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != len(lines) {
		t.Fatalf("Embed() returned %d vectors, want %d", len(vecs), len(lines))
	}
	for _, v := range vecs {
		if len(v) != 64 {
			t.Errorf("vector dimension = %d, want 64", len(v))
		}
		assertUnit(t, v)
	}
}

func TestEngine_Embed_BatchingInvariant(t *testing.T) {
	lines := []string{
		"alpha beta", "gamma", "a much longer line with many different words in it",
		"", "delta epsilon zeta", "beta", "Alpha, BETA!",
	}

	var results [][][]float32
	for _, size := range []int{1, 2, 3, 32} {
		vecs, err := newHashEngine(t, size).Embed(context.Background(), lines)
		if err != nil {
			t.Fatalf("Embed(batch=%d) error = %v", size, err)
		}
		results = append(results, vecs)
	}

	for r := 1; r < len(results); r++ {
		for i := range lines {
			for d := range results[0][i] {
				if math.Abs(float64(results[r][i][d]-results[0][i][d])) > 1e-5 {
					t.Fatalf("line %d differs between batch sizes at dim %d", i, d)
				}
			}
		}
	}
}

func TestEngine_Embed_IdenticalLines(t *testing.T) {
	engine := newHashEngine(t, 8)

	vecs, err := engine.Embed(context.Background(), []string{"Same words here", "same words, here."})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if sim := Cosine(vecs[0], vecs[1]); math.Abs(sim-1) > 1e-5 {
		t.Errorf("Cosine() of identical token sequences = %v, want 1", sim)
	}
}

func TestEngine_Embed_BlankLineIsZero(t *testing.T) {
	engine := newHashEngine(t, 8)

	vecs, err := engine.Embed(context.Background(), []string{"text", ""})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	for _, x := range vecs[1] {
		if x != 0 {
			t.Fatalf("blank line vector = %v, want zero", vecs[1])
		}
	}
	if sim := Cosine(vecs[0], vecs[1]); sim != 0 {
		t.Errorf("Cosine() with blank line = %v, want 0", sim)
	}
}

func TestEngine_Embed_Cancelled(t *testing.T) {
	engine := newHashEngine(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Embed(ctx, []string{"a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Embed() error = %v, want context.Canceled", err)
	}
}

type shortModel struct{ HashModel }

func (m *shortModel) EncodeTokens(ctx context.Context, texts []string) (*TokenBatch, error) {
	return &TokenBatch{}, nil
}

func TestEngine_Embed_ShapeMismatch(t *testing.T) {
	engine, err := NewEngine(&shortModel{HashModel{dim: 4, maxTokens: 8}}, 4)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}

	if _, err := engine.Embed(context.Background(), []string{"a"}); !errors.Is(err, ErrShape) {
		t.Errorf("Embed() error = %v, want ErrShape", err)
	}
}

func TestEngine_Embed_Empty(t *testing.T) {
	vecs, err := newHashEngine(t, 4).Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vecs) != 0 {
		t.Errorf("Embed(nil) returned %d vectors", len(vecs))
	}
}
