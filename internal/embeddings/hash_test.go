package embeddings

import (
	"context"
	"reflect"
	"testing"
)

func TestNewHashModel_Defaults(t *testing.T) {
	m, err := NewHashModel(0, 0)
	if err != nil {
		t.Fatalf("NewHashModel() error = %v", err)
	}
	if m.Dimension() != DefaultHashDimension {
		t.Errorf("Dimension() = %d, want %d", m.Dimension(), DefaultHashDimension)
	}

	if _, err := NewHashModel(-1, 0); err == nil {
		t.Error("NewHashModel() should reject a negative dimension")
	}
}

func TestHashModel_Tokenize(t *testing.T) {
	m, _ := NewHashModel(8, 3)

	tests := []struct {
		text string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"# Title 2", []string{"title", "2"}},
		{"one two three four", []string{"one", "two", "three"}},
		{"   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := m.Tokenize(tt.text)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestHashModel_EncodeTokens_Padding(t *testing.T) {
	m, _ := NewHashModel(4, 0)

	batch, err := m.EncodeTokens(context.Background(), []string{"one two three", "one"})
	if err != nil {
		t.Fatalf("EncodeTokens() error = %v", err)
	}

	wantMask := [][]int{{1, 1, 1}, {1, 0, 0}}
	if !reflect.DeepEqual(batch.Mask, wantMask) {
		t.Errorf("Mask = %v, want %v", batch.Mask, wantMask)
	}
	if !reflect.DeepEqual(batch.Vectors[0][0], batch.Vectors[1][0]) {
		t.Error("the same token should map to the same vector")
	}
	if reflect.DeepEqual(batch.Vectors[0][0], batch.Vectors[0][1]) {
		t.Error("different tokens should map to different vectors")
	}
	for _, x := range batch.Vectors[0][0] {
		if x < -1 || x > 1 {
			t.Errorf("token component %v out of [-1, 1]", x)
		}
	}
}
