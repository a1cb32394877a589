package pipeline

import "lrbinner/internal/profile"

// Vectorizer is the minimal capability the pipeline needs from a profiler.
type Vectorizer interface {
	Profile(seq []byte) profile.Vector
}

// Sink receives profiles in input order.
type Sink interface {
	Put(id string, vec []float64) error
}

var (
	_ Vectorizer = (*profile.Profiler)(nil)
)
