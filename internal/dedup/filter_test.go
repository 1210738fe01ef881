package dedup

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

// unitAt returns a 2-d unit vector whose cosine with (1, 0) is sim.
func unitAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func TestNew_DefaultThreshold(t *testing.T) {
	if got := New(0).Threshold; got != DefaultThreshold {
		t.Errorf("New(0).Threshold = %v, want %v", got, DefaultThreshold)
	}
	if got := New(0.5).Threshold; got != 0.5 {
		t.Errorf("New(0.5).Threshold = %v, want 0.5", got)
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name        string
		lines       []string
		embs        [][]float32
		want        []string
		wantDropped int
	}{
		{
			name:  "single line kept",
			lines: []string{"only"},
			embs:  [][]float32{{1, 0}},
			want:  []string{"only"},
		},
		{
			name:        "adjacent near duplicate dropped",
			lines:       []string{"Installing the package", "Install the package"},
			embs:        [][]float32{{1, 0}, unitAt(0.95)},
			want:        []string{"Installing the package"},
			wantDropped: 1,
		},
		{
			name:  "dissimilar lines kept",
			lines: []string{"a", "b", "c"},
			embs:  [][]float32{{1, 0}, {0, 1}, {1, 0}},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "just below threshold kept",
			lines: []string{"a", "b"},
			embs:  [][]float32{{1, 0}, unitAt(0.86)},
			want:  []string{"a", "b"},
		},
		{
			name:        "identical run keeps only the first",
			lines:       []string{"x", "x", "x"},
			embs:        [][]float32{{1, 0}, {1, 0}, {1, 0}},
			want:        []string{"x"},
			wantDropped: 2,
		},
		{
			name:  "non-adjacent repeat kept",
			lines: []string{"x", "y", "x"},
			embs:  [][]float32{{1, 0}, {0, 1}, {1, 0}},
			want:  []string{"x", "y", "x"},
		},
	}

	f := New(DefaultThreshold)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dropped, err := f.Apply(tt.lines, tt.embs)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
			if dropped != tt.wantDropped {
				t.Errorf("Apply() dropped = %d, want %d", dropped, tt.wantDropped)
			}
		})
	}
}

func TestApply_ComparesOriginalPredecessor(t *testing.T) {
	// b is close to a and dropped; c is far from a but close to b, so it is
	// also dropped because it is compared with b, not with the last kept line.
	a := []float32{1, 0}
	b := unitAt(0.9)
	c := []float32{float32(math.Cos(2 * math.Acos(0.9))), float32(math.Sin(2 * math.Acos(0.9)))}

	got, dropped, err := New(0.86899).Apply([]string{"a", "b", "c"}, [][]float32{a, b, c})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"a"}) || dropped != 2 {
		t.Errorf("Apply() = %q (dropped %d), want [a] (dropped 2)", got, dropped)
	}
}

func TestKeep(t *testing.T) {
	f := New(DefaultThreshold)

	keep, err := f.Keep([][]float32{{1, 0}, {1, 0}, {0, 1}, {1, 0}, unitAt(0.95)})
	if err != nil {
		t.Fatalf("Keep() error = %v", err)
	}
	want := []bool{true, false, true, true, false}
	if !reflect.DeepEqual(keep, want) {
		t.Errorf("Keep() = %v, want %v", keep, want)
	}

	if _, err := f.Keep(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Keep(empty) error = %v, want ErrEmpty", err)
	}
}

func TestApply_Preconditions(t *testing.T) {
	f := New(DefaultThreshold)

	if _, _, err := f.Apply(nil, nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("Apply(empty) error = %v, want ErrEmpty", err)
	}
	if _, _, err := f.Apply([]string{"a", "b"}, [][]float32{{1}}); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Apply(mismatch) error = %v, want ErrLengthMismatch", err)
	}
}
