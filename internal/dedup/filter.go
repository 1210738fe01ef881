// Package dedup drops lines that repeat what the previous line said.
package dedup

import (
	"errors"
	"fmt"

	"github.com/mfenderov/bam-curate/internal/embeddings"
)

// DefaultThreshold is the cosine similarity at or above which a line is
// considered redundant.
const DefaultThreshold = 0.86899

var (
	// ErrEmpty is returned when there are no lines to filter.
	ErrEmpty = errors.New("no lines to filter")
	// ErrLengthMismatch is returned when lines and embeddings differ in count.
	ErrLengthMismatch = errors.New("lines and embeddings differ in length")
)

// Filter compares each line with the line immediately before it in the
// original sequence.
type Filter struct {
	Threshold float64
}

// New creates a filter with the given threshold. Zero selects DefaultThreshold.
func New(threshold float64) *Filter {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Filter{Threshold: threshold}
}

// Keep reports for each line whether it survives. The first line is always
// kept; line i is kept when its similarity to line i-1 is below the
// threshold, whether or not line i-1 was itself kept.
func (f *Filter) Keep(embs [][]float32) ([]bool, error) {
	if len(embs) == 0 {
		return nil, ErrEmpty
	}

	keep := make([]bool, len(embs))
	keep[0] = true
	for i := 1; i < len(embs); i++ {
		keep[i] = embeddings.Cosine(embs[i], embs[i-1]) < f.Threshold
	}
	return keep, nil
}

// Apply returns the kept lines in their original order and the number of
// dropped lines.
func (f *Filter) Apply(lines []string, embs [][]float32) ([]string, int, error) {
	if len(lines) == 0 {
		return nil, 0, ErrEmpty
	}
	if len(lines) != len(embs) {
		return nil, 0, fmt.Errorf("%w: %d lines, %d embeddings", ErrLengthMismatch, len(lines), len(embs))
	}

	keep, err := f.Keep(embs)
	if err != nil {
		return nil, 0, err
	}

	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if keep[i] {
			kept = append(kept, line)
		}
	}

	return kept, len(lines) - len(kept), nil
}
