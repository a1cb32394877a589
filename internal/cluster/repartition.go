package cluster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// RepartitionRequest asks for bin Bin to be split into Parts groups. Requests come
// from a refinement collaborator; the search does not judge them.
type RepartitionRequest struct {
	Bin   int
	Parts int
}

const maxLloydRounds = 100

// Repartition splits the requested bins of res with k-means over their members.
// Parts smaller than minBinSize are folded into the nearest surviving part; a
// request that leaves fewer than two surviving parts keeps the bin whole. Bins are
// renumbered in order, split parts taking the place of their parent. The second
// result counts the bins actually split.
func Repartition(emb *mat.Dense, res Result, reqs []RepartitionRequest, minBinSize int) (Result, int) {
	parts := make(map[int]int, len(reqs))
	for _, r := range reqs {
		if r.Bin >= 0 && r.Bin < len(res.Bins) && r.Parts > 1 {
			parts[r.Bin] = r.Parts
		}
	}
	if len(parts) == 0 {
		return res, 0
	}

	pts := rows(emb)
	out := Result{Unassigned: res.Unassigned, Rounds: res.Rounds}
	split := 0
	for _, b := range res.Bins {
		groups := [][]int{b.Members}
		if k, ok := parts[b.ID]; ok {
			if g := splitMembers(pts, b.Members, k, minBinSize); len(g) > 1 {
				groups = g
				split++
			}
		}
		for _, g := range groups {
			nb := b
			nb.ID = len(out.Bins)
			nb.Members = g
			if len(groups) > 1 {
				nb.Centroid = centroid(pts, g)
			}
			out.Bins = append(out.Bins, nb)
		}
	}
	return out, split
}

// splitMembers runs k-means with farthest-first initialization and returns the
// surviving groups, each sorted ascending, ordered by smallest member.
func splitMembers(pts [][]float64, members []int, k, minBinSize int) [][]int {
	if len(members) < 2*minBinSize || k < 2 {
		return nil
	}
	k = min(k, len(members))
	centers := farthestFirst(pts, members, k)
	label := make([]int, len(members))
	for round := 0; round < maxLloydRounds; round++ {
		changed := round == 0
		for i, m := range members {
			if c := nearestCenter(pts[m], centers); c != label[i] {
				label[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = means(pts, members, label, centers)
	}

	// Fold parts below the floor into the nearest surviving center.
	size := make([]int, len(centers))
	for _, l := range label {
		size[l]++
	}
	var keep [][]float64
	remap := make([]int, len(centers))
	for c := range centers {
		remap[c] = -1
		if size[c] >= minBinSize {
			remap[c] = len(keep)
			keep = append(keep, centers[c])
		}
	}
	if len(keep) < 2 {
		return nil
	}
	groups := make([][]int, len(keep))
	for i, m := range members {
		g := remap[label[i]]
		if g < 0 {
			g = nearestCenter(pts[m], keep)
		}
		groups[g] = append(groups[g], m)
	}
	for _, g := range groups {
		sort.Ints(g)
	}
	sort.Slice(groups, func(a, b int) bool { return groups[a][0] < groups[b][0] })
	return groups
}

func farthestFirst(pts [][]float64, members []int, k int) [][]float64 {
	c := centroid(pts, members)
	first := members[0]
	best := -1.0
	for _, m := range members {
		if d := floats.Distance(pts[m], c, 2); d > best {
			best, first = d, m
		}
	}
	centers := [][]float64{append([]float64(nil), pts[first]...)}
	dist := make([]float64, len(members))
	for i, m := range members {
		dist[i] = floats.Distance(pts[m], centers[0], 2)
	}
	for len(centers) < k {
		far := floats.MaxIdx(dist)
		if dist[far] == 0 {
			break
		}
		centers = append(centers, append([]float64(nil), pts[members[far]]...))
		for i, m := range members {
			dist[i] = math.Min(dist[i], floats.Distance(pts[m], centers[len(centers)-1], 2))
		}
	}
	return centers
}

// nearestCenter breaks ties toward the lower center index.
func nearestCenter(p []float64, centers [][]float64) int {
	best, bestD := 0, math.Inf(1)
	for c, v := range centers {
		if d := floats.Distance(p, v, 2); d < bestD {
			best, bestD = c, d
		}
	}
	return best
}

func means(pts [][]float64, members []int, label []int, old [][]float64) [][]float64 {
	out := make([][]float64, len(old))
	count := make([]int, len(old))
	for c := range out {
		out[c] = make([]float64, len(old[c]))
	}
	for i, m := range members {
		floats.Add(out[label[i]], pts[m])
		count[label[i]]++
	}
	for c := range out {
		if count[c] == 0 {
			copy(out[c], old[c])
			continue
		}
		floats.Scale(1/float64(count[c]), out[c])
	}
	return out
}
