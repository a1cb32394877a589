package cluster

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/suite"
	"gonum.org/v1/gonum/mat"
)

type SearchSuite struct {
	suite.Suite
	blobs *mat.Dense // two well separated blobs, even rows in the first
	noise *mat.Dense // uniform cloud
}

func TestSearchSuite(t *testing.T) {
	suite.Run(t, new(SearchSuite))
}

func (s *SearchSuite) SetupSuite() {
	rng := rand.New(rand.NewPCG(11, 12))
	s.blobs = mat.NewDense(100, 3, nil)
	for i := 0; i < 100; i++ {
		off := 0.0
		if i%2 == 1 {
			off = 10
		}
		for j := 0; j < 3; j++ {
			s.blobs.Set(i, j, off+0.1*rng.NormFloat64())
		}
	}
	s.noise = mat.NewDense(300, 2, nil)
	for i := 0; i < 300; i++ {
		s.noise.Set(i, 0, rng.Float64())
		s.noise.Set(i, 1, rng.Float64())
	}
}

func (s *SearchSuite) config(minSize, iterations int) Config {
	cfg := DefaultConfig()
	cfg.MinBinSize = minSize
	cfg.Iterations = iterations
	return cfg
}

// requirePartition checks that every row is in exactly one bin or unassigned.
func (s *SearchSuite) requirePartition(res Result, n int) {
	seen := make([]int, n)
	for i, b := range res.Bins {
		s.Equal(i, b.ID)
		for _, m := range b.Members {
			seen[m]++
		}
	}
	for _, u := range res.Unassigned {
		seen[u]++
	}
	for i, c := range seen {
		s.Equal(1, c, "row %d", i)
	}
}

func (s *SearchSuite) TestTwoBlobs() {
	res, err := Search(s.blobs, s.config(20, 0))
	s.Require().NoError(err)
	s.requirePartition(res, 100)
	s.Require().Len(res.Bins, 2)
	for _, b := range res.Bins {
		parity := b.Members[0] % 2
		for _, m := range b.Members {
			s.Equal(parity, m%2, "bin %d mixes blobs", b.ID)
		}
		s.Len(b.Centroid, 3)
	}
	s.GreaterOrEqual(res.Assigned(), 95)

	labels := res.Labels(100)
	s.Equal(res.Bins[0].ID, labels[res.Bins[0].Members[0]])
	for _, u := range res.Unassigned {
		s.Equal(-1, labels[u])
	}
}

func (s *SearchSuite) TestNoBinBelowMinimum() {
	for _, minSize := range []int{1, 5, 17, 40, 301} {
		res, err := Search(s.noise, s.config(minSize, 0))
		s.Require().NoError(err)
		s.requirePartition(res, 300)
		for _, b := range res.Bins {
			s.GreaterOrEqual(len(b.Members), minSize)
		}
	}
}

func (s *SearchSuite) TestExhaustiveNeverAssignsFewer() {
	full, err := Search(s.noise, s.config(12, 0))
	s.Require().NoError(err)
	for budget := 1; budget <= full.Rounds; budget++ {
		part, err := Search(s.noise, s.config(12, budget))
		s.Require().NoError(err)
		s.LessOrEqual(part.Assigned(), full.Assigned(), "budget %d", budget)
		s.LessOrEqual(part.Rounds, budget)
		// Budgeted runs are a prefix of the exhaustive one.
		if len(part.Bins) > 0 {
			s.Equal(full.Bins[:len(part.Bins)], part.Bins)
		}
	}
}

func (s *SearchSuite) TestTiesPreferLowestIndex() {
	// Two identical 3x3 integer grids far apart: every density ties across grids.
	grid := mat.NewDense(18, 2, nil)
	for i := 0; i < 9; i++ {
		grid.Set(i, 0, float64(i/3))
		grid.Set(i, 1, float64(i%3))
		grid.Set(9+i, 0, float64(i/3)+1000)
		grid.Set(9+i, 1, float64(i%3))
	}
	res, err := Search(grid, s.config(5, 0))
	s.Require().NoError(err)
	s.Require().Len(res.Bins, 2)
	s.Equal(1, res.Bins[0].Seed)
	s.Equal(10, res.Bins[1].Seed)
	s.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8}, res.Bins[0].Members)
	s.Empty(res.Unassigned)

	again, err := Search(grid, s.config(5, 0))
	s.Require().NoError(err)
	s.Equal(res, again)
}

func (s *SearchSuite) TestDegenerateInputs() {
	res, err := Search(mat.NewDense(1, 2, []float64{3, 4}), s.config(1, 0))
	s.Require().NoError(err)
	s.Require().Len(res.Bins, 1)
	s.Equal([]int{0}, res.Bins[0].Members)

	res, err = Search(mat.NewDense(4, 2, []float64{0, 0, 0, 1, 1, 0, 1, 1}), s.config(2, 0))
	s.Require().NoError(err)
	s.Require().Len(res.Bins, 1)
	s.Len(res.Bins[0].Members, 4)

	res, err = Search(s.blobs, s.config(1000, 0))
	s.Require().NoError(err)
	s.Empty(res.Bins)
	s.Len(res.Unassigned, 100)
}

func (s *SearchSuite) TestValidate() {
	bad := []Config{
		{MinBinSize: 0, RadiusScale: 1, DensityCutoff: 0.5},
		{MinBinSize: 1, RadiusScale: 0, DensityCutoff: 0.5},
		{MinBinSize: 1, RadiusScale: 1, DensityCutoff: 0},
		{MinBinSize: 1, RadiusScale: 1, DensityCutoff: 1.5},
		{MinBinSize: 1, RadiusScale: 1, DensityCutoff: 0.5, Iterations: -1},
		{MinBinSize: 1, RadiusScale: 1, DensityCutoff: 0.5, Neighbors: -2},
	}
	for _, c := range bad {
		_, err := Search(s.blobs, c)
		s.Error(err, "%+v", c)
	}
}

func (s *SearchSuite) TestNeighborsAuto() {
	s.Equal(3, Config{MinBinSize: 2}.neighbors(100))
	s.Equal(10, Config{MinBinSize: 20}.neighbors(100))
	s.Equal(30, Config{MinBinSize: 10000}.neighbors(100))
	s.Equal(4, Config{MinBinSize: 10000}.neighbors(5))
	s.Equal(7, Config{Neighbors: 7}.neighbors(100))
}

func (s *SearchSuite) TestRepartition() {
	// One bin holding both blobs, then split on request.
	res := Result{Bins: []Bin{{ID: 0, Members: make([]int, 100), Seed: 0}}}
	for i := range res.Bins[0].Members {
		res.Bins[0].Members[i] = i
	}
	out, split := Repartition(s.blobs, res, []RepartitionRequest{{Bin: 0, Parts: 2}}, 20)
	s.Equal(1, split)
	s.requirePartition(out, 100)
	s.Require().Len(out.Bins, 2)
	s.Equal(0, out.Bins[0].Members[0])
	for _, b := range out.Bins {
		s.Len(b.Members, 50)
		for _, m := range b.Members {
			s.Equal(b.Members[0]%2, m%2)
		}
	}

	// Parts below the floor keep the bin whole.
	same, split := Repartition(s.blobs, res, []RepartitionRequest{{Bin: 0, Parts: 2}}, 60)
	s.Zero(split)
	s.Equal(res, same)

	// Out of range and single-part requests are ignored.
	same, split = Repartition(s.blobs, res, []RepartitionRequest{{Bin: 3, Parts: 2}, {Bin: 0, Parts: 1}}, 1)
	s.Zero(split)
	s.Equal(res, same)
}
