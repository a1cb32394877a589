package refine

import (
	"math"
	"sort"

	"lrbinner/internal/cluster"
)

// Refiner inspects a finished search and asks for bins to be split. ids[i] names
// embedding row i.
type Refiner interface {
	Refine(res cluster.Result, ids []string) []cluster.RepartitionRequest
}

// MarkerRefiner estimates the number of genomes in a bin from single-copy marker
// genes: a marker seen c times across the bin's members suggests c genomes. The
// estimate is the rounded median count over the markers seen at least once.
type MarkerRefiner struct {
	Markers Markers
	// MinMarkers is the number of distinct markers a bin needs before an estimate
	// is trusted.
	MinMarkers int
}

var _ Refiner = MarkerRefiner{}

// Estimate returns the genome count suggested by members, or 0 when too few
// distinct markers were found.
func (r MarkerRefiner) Estimate(members []int, ids []string) int {
	counts := map[string]int{}
	for _, m := range members {
		for _, g := range r.Markers[ids[m]] {
			counts[g]++
		}
	}
	if len(counts) == 0 || len(counts) < r.MinMarkers {
		return 0
	}
	c := make([]float64, 0, len(counts))
	for _, n := range counts {
		c = append(c, float64(n))
	}
	sort.Float64s(c)
	var med float64
	if h := len(c) / 2; len(c)%2 == 1 {
		med = c[h]
	} else {
		med = (c[h-1] + c[h]) / 2
	}
	return int(math.Round(med))
}

// Refine requests a split for every bin whose estimate exceeds one.
func (r MarkerRefiner) Refine(res cluster.Result, ids []string) []cluster.RepartitionRequest {
	var reqs []cluster.RepartitionRequest
	for _, b := range res.Bins {
		if k := r.Estimate(b.Members, ids); k > 1 {
			reqs = append(reqs, cluster.RepartitionRequest{Bin: b.ID, Parts: k})
		}
	}
	return reqs
}
