// Package cluster groups latent embeddings into bins by iterative seed growth.
//
// Local density is estimated from the distance r_k to each point's k-th nearest
// neighbour. Seeds are taken in order of decreasing density; a candidate grows
// breadth first from its seed by absorbing unassigned points within
// RadiusScale·r_k of any expanding member, and a member keeps expanding only while
// its own r_k stays within r_k(seed)/DensityCutoff. Candidates that reach
// MinBinSize become bins; smaller ones release their members, which can still be
// absorbed by a later candidate but never seed one.
package cluster

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config calibrates the search.
type Config struct {
	Iterations    int     // seed-growth rounds; 0 runs until no eligible seed remains
	MinBinSize    int     // smallest finalized bin
	Neighbors     int     // k of the density estimate; 0 chooses from MinBinSize
	RadiusScale   float64 // absorption radius as a multiple of r_k
	DensityCutoff float64 // in (0, 1]; growth stops where density falls below this share of the seed's
}

// DefaultConfig returns the calibration used when flags are left alone.
func DefaultConfig() Config {
	return Config{
		Iterations:    1000,
		MinBinSize:    10000,
		RadiusScale:   1.5,
		DensityCutoff: 0.25,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.Iterations < 0:
		return errors.Errorf("bin iterations must be >= 0 (got %d)", c.Iterations)
	case c.MinBinSize < 1:
		return errors.Errorf("minimum bin size must be >= 1 (got %d)", c.MinBinSize)
	case c.Neighbors < 0:
		return errors.Errorf("cluster neighbours must be >= 0 (got %d)", c.Neighbors)
	case !(c.RadiusScale > 0):
		return errors.Errorf("cluster radius must be > 0 (got %g)", c.RadiusScale)
	case !(c.DensityCutoff > 0 && c.DensityCutoff <= 1):
		return errors.Errorf("cluster density cutoff must be in (0, 1] (got %g)", c.DensityCutoff)
	}
	return nil
}

// neighbors resolves the density k for n points.
func (c Config) neighbors(n int) int {
	k := c.Neighbors
	if k == 0 {
		k = min(max(c.MinBinSize/2, 3), 30)
	}
	return max(min(k, n-1), 1)
}

// Bin is a finalized cluster.
type Bin struct {
	ID       int       `json:"id"`
	Members  []int     `json:"members"` // row indices, ascending
	Centroid []float64 `json:"centroid"`
	Density  float64   `json:"density"` // 1/r_k of the seed
	Seed     int       `json:"seed"`
}

// Result is the outcome of a search. Every input row appears in exactly one bin or
// in Unassigned.
type Result struct {
	Bins       []Bin `json:"bins"`
	Unassigned []int `json:"unassigned"` // ascending
	Rounds     int   `json:"rounds"`
}

// Assigned returns the number of rows placed in a bin.
func (r Result) Assigned() int {
	n := 0
	for _, b := range r.Bins {
		n += len(b.Members)
	}
	return n
}

// Labels returns the bin id of every row, -1 for unassigned rows.
func (r Result) Labels(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = -1
	}
	for _, b := range r.Bins {
		for _, m := range b.Members {
			out[m] = b.ID
		}
	}
	return out
}

// rows returns the row views of m.
func rows(m *mat.Dense) [][]float64 {
	n, _ := m.Dims()
	out := make([][]float64, n)
	for i := range out {
		out[i] = m.RawRowView(i)
	}
	return out
}

// Search clusters the rows of emb. It is sequential and deterministic for a given
// embedding and configuration, and a round never depends on the iteration budget,
// so a larger budget assigns a superset of the rows a smaller one does.
func Search(emb *mat.Dense, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	n, _ := emb.Dims()
	if n == 0 {
		return Result{}, nil
	}
	pts := rows(emb)
	rk := make([]float64, n)
	var idx *index
	if n > 1 {
		idx = newIndex(pts)
		k := cfg.neighbors(n)
		for i := range rk {
			nb := idx.nearest(i, k)
			rk[i] = math.Sqrt(nb[len(nb)-1].dist)
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rk[order[a]] < rk[order[b]] })

	var (
		res      Result
		assigned = make([]bool, n)
		noSeed   = make([]bool, n)
		inCand   = make([]bool, n)
	)
	for _, s := range order {
		if cfg.Iterations > 0 && res.Rounds >= cfg.Iterations {
			break
		}
		if assigned[s] || noSeed[s] {
			continue
		}
		res.Rounds++

		members := grow(idx, s, rk, cfg, assigned, inCand)
		for _, m := range members {
			inCand[m] = false
		}
		if len(members) < cfg.MinBinSize {
			for _, m := range members {
				noSeed[m] = true
			}
			continue
		}
		for _, m := range members {
			assigned[m] = true
		}
		sort.Ints(members)
		res.Bins = append(res.Bins, Bin{
			ID:       len(res.Bins),
			Members:  members,
			Centroid: centroid(pts, members),
			Density:  density(rk[s]),
			Seed:     s,
		})
	}
	for i, a := range assigned {
		if !a {
			res.Unassigned = append(res.Unassigned, i)
		}
	}
	return res, nil
}

// grow builds the candidate seeded at s. inCand marks the members on return.
func grow(idx *index, s int, rk []float64, cfg Config, assigned, inCand []bool) []int {
	members := []int{s}
	inCand[s] = true
	if idx == nil {
		return members
	}
	limit := rk[s] / cfg.DensityCutoff
	for q := 0; q < len(members); q++ {
		p := members[q]
		if rk[p] > limit {
			continue
		}
		r := cfg.RadiusScale * rk[p]
		for _, nb := range idx.within(p, r*r) {
			if assigned[nb.idx] || inCand[nb.idx] {
				continue
			}
			inCand[nb.idx] = true
			members = append(members, nb.idx)
		}
	}
	return members
}

// density is 1/r. Coincident points report the largest finite value.
func density(r float64) float64 {
	if r == 0 {
		return math.MaxFloat64
	}
	return 1 / r
}

func centroid(pts [][]float64, members []int) []float64 {
	if len(members) == 0 {
		return nil
	}
	c := make([]float64, len(pts[members[0]]))
	for _, m := range members {
		floats.Add(c, pts[m])
	}
	floats.Scale(1/float64(len(members)), c)
	return c
}
