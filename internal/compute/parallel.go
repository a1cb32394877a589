package compute

import (
	"gonum.org/v1/gonum/mat"
	"golang.org/x/sync/errgroup"
)

// minShardRows keeps shards large enough to be worth a goroutine.
const minShardRows = 32

type parallel struct {
	threads int
}

func newParallel(threads int) *parallel {
	return &parallel{threads: threads}
}

func (p *parallel) Name() string { return Accelerated }

// Mul shards the rows of a across goroutines. Each shard writes a disjoint row
// range of the output, so the result is identical to a single Dense.Mul.
func (p *parallel) Mul(a, b mat.Matrix) *mat.Dense {
	r, _ := a.Dims()
	_, c := b.Dims()
	out := mat.NewDense(r, c, nil)
	shards := p.threads
	if m := r / minShardRows; m < shards {
		shards = m
	}
	if shards < 2 {
		out.Mul(a, b)
		return out
	}

	ad := mat.DenseCopyOf(a)
	_, ac := ad.Dims()
	step := (r + shards - 1) / shards
	var g errgroup.Group
	for lo := 0; lo < r; lo += step {
		hi := min(lo+step, r)
		g.Go(func() error {
			dst := out.Slice(lo, hi, 0, c).(*mat.Dense)
			dst.Mul(ad.Slice(lo, hi, 0, ac), b)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
