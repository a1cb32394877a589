// Package profile turns a raw sequence into its fixed-length feature vector: a
// canonical k-mer composition followed by a k-mer multiplicity histogram.
//
// The histogram is a coverage proxy. Raw long reads have no alignment-based depth, so
// the multiplicity spectrum of the sequence's own k-mers stands in for it; it reflects
// repetitiveness and composition skew, not physical sequencing depth.
package profile

import (
	"fmt"

	"github.com/pkg/errors"

	"lrbinner/internal/kmer"
)

// Params fixes the vector schema for one run.
type Params struct {
	K        int `json:"k"`
	BinSize  int `json:"bin_size"`
	BinCount int `json:"bin_count"`
}

// Validate rejects schemas the profiler does not support.
func (p Params) Validate() error {
	switch p.K {
	case 3, 4, 5:
	default:
		return errors.Errorf("k-mer size must be 3, 4 or 5 (got %d)", p.K)
	}
	if p.BinSize < 1 {
		return errors.Errorf("coverage bin size must be >= 1 (got %d)", p.BinSize)
	}
	if p.BinCount < 1 {
		return errors.Errorf("coverage bin count must be >= 1 (got %d)", p.BinCount)
	}
	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("k=%d bin-size=%d bin-count=%d", p.K, p.BinSize, p.BinCount)
}

// Vector is the profile of one sequence. Composition and Coverage share Values.
type Vector struct {
	Values  []float64
	Windows int // k-mer windows counted
}

// Profiler computes Vectors for a fixed Params. It holds no mutable state and is safe
// for concurrent use.
type Profiler struct {
	params Params
	index  *kmer.Index
}

// New returns a Profiler for p.
func New(p Params) (*Profiler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	x, err := kmer.NewIndex(p.K)
	if err != nil {
		return nil, err
	}
	return &Profiler{params: p, index: x}, nil
}

// Params returns the profiler's schema.
func (pr *Profiler) Params() Params { return pr.params }

// CompositionDim is the length of the composition sub-vector.
func (pr *Profiler) CompositionDim() int { return pr.index.Size() }

// Dim is the full vector length.
func (pr *Profiler) Dim() int { return pr.index.Size() + pr.params.BinCount }

// Profile computes the vector of seq. Sequences with no valid window (shorter than k,
// or only ambiguous symbols) yield an all-zero vector with Windows == 0.
func (pr *Profiler) Profile(seq []byte) Vector {
	compDim := pr.index.Size()
	v := Vector{Values: make([]float64, pr.Dim())}
	if len(seq) < pr.params.K {
		return v
	}

	counts := make([]int, compDim)
	windows := make([]int32, 0, len(seq))
	v.Windows = pr.index.Scan(seq, func(c int) {
		counts[c]++
		windows = append(windows, int32(c))
	})
	if v.Windows == 0 {
		return v
	}

	total := float64(v.Windows)
	for i, c := range counts {
		v.Values[i] = float64(c) / total
	}

	cov := v.Values[compDim:]
	last := pr.params.BinCount - 1
	for _, c := range windows {
		b := counts[c] / pr.params.BinSize
		if b > last {
			b = last
		}
		cov[b]++
	}
	return v
}

// composition returns the composition part of a full vector.
func (pr *Profiler) composition(v []float64) []float64 { return v[:pr.index.Size()] }

// coverage returns the coverage part of a full vector.
func (pr *Profiler) coverage(v []float64) []float64 { return v[pr.index.Size():] }
