package encoder

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2/ktesting"

	"lrbinner/internal/compute"
)

// twoGroups returns n rows of d columns: the first compDim columns look like
// frequencies, the rest like histogram counts, with a group-dependent shift.
func twoGroups(n, d, compDim int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 1))
	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		shift := 0.0
		if i%2 == 1 {
			shift = 1
		}
		row := x.RawRowView(i)
		for j := 0; j < compDim; j++ {
			row[j] = 0.1 + 0.05*shift*float64(j%3) + 0.01*rng.Float64()
		}
		for j := compDim; j < d; j++ {
			row[j] = math.Floor(10*rng.Float64()) + 20*shift*float64(j%2)
		}
	}
	return x
}

func testConfig(epochs int) Config {
	cfg := DefaultConfig()
	cfg.Hidden = []int{16, 8}
	cfg.LatentDim = 3
	cfg.Epochs = epochs
	cfg.BatchSize = 16
	cfg.Seed = 42
	cfg.CompositionDim = 6
	return cfg
}

func defaultBackend(t *testing.T) compute.Backend {
	t.Helper()
	return must.M1(compute.New(compute.Default, 1))
}

func TestParseHidden(t *testing.T) {
	h, err := ParseHidden("128,128")
	require.NoError(t, err)
	assert.Equal(t, []int{128, 128}, h)

	h, err = ParseHidden(" 64 , 32,16")
	require.NoError(t, err)
	assert.Equal(t, []int{64, 32, 16}, h)
	assert.Equal(t, "64,32,16", FormatHidden(h))

	for _, bad := range []string{"", "128,", "a,b", "0", "-4,8"} {
		_, err := ParseHidden(bad)
		assert.Error(t, err, "%q", bad)
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, testConfig(1).Validate())
	cfg := testConfig(1)
	cfg.LatentDim = 0
	assert.Error(t, cfg.Validate())
	cfg = testConfig(0)
	assert.Error(t, cfg.Validate())
	cfg = testConfig(1)
	cfg.Hidden = nil
	assert.Error(t, cfg.Validate())
}

func TestScaler(t *testing.T) {
	x := mat.NewDense(3, 4, []float64{
		0.5, 0.5, 1, 3,
		0.2, 0.8, 2, 2,
		0.9, 0.1, 0, 0,
	})
	s := FitScaler(x, 2)
	y := s.Transform(x)

	// Third row has no coverage; its fractions stay zero before scaling.
	n, d := y.Dims()
	require.Equal(t, 3, n)
	require.Equal(t, 4, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, y)
		var sum float64
		for _, v := range col {
			sum += v
		}
		assert.InDelta(t, 0, sum, 1e-12, "column %d mean", j)
	}

	constant := mat.NewDense(2, 2, []float64{1, 5, 1, 5})
	s = FitScaler(constant, 2)
	assert.Equal(t, []float64{1, 1}, s.Std)
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	be := defaultBackend(t)
	rng := rand.New(rand.NewPCG(3, 4))
	x := mat.NewDense(5, 4, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 4; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	hidden := []int{6, 5}
	layers := buildLayers(rng, 4, hidden, 2)
	net := viewNetwork(layers, len(hidden))
	const beta = 0.7

	lossAt := func() float64 {
		return net.forward(be, rand.New(rand.NewPCG(9, 9)), x, beta).loss
	}
	g := newGrads(layers)
	net.backward(be, net.forward(be, rand.New(rand.NewPCG(9, 9)), x, beta), beta, g)

	const h = 1e-6
	for li := range layers {
		params := [][]float64{layers[li].W, layers[li].B}
		analytic := [][]float64{g.w[li], g.b[li]}
		for pi, p := range params {
			for _, j := range []int{0, len(p) / 2, len(p) - 1} {
				orig := p[j]
				p[j] = orig + h
				up := lossAt()
				p[j] = orig - h
				down := lossAt()
				p[j] = orig
				numeric := (up - down) / (2 * h)
				tol := 1e-5 * math.Max(1, math.Abs(numeric))
				assert.InDelta(t, numeric, analytic[pi][j], tol, "layer %d param %d[%d]", li, pi, j)
			}
		}
	}
}

func TestTrainDeterministicAndLearns(t *testing.T) {
	log := ktesting.NewLogger(t, ktesting.NewConfig())
	be := defaultBackend(t)
	x := twoGroups(64, 10, 6, 1)

	first, err := Train(context.Background(), log, be, x, testConfig(1))
	require.NoError(t, err)
	a, err := Train(context.Background(), log, be, x, testConfig(150))
	require.NoError(t, err)
	b, err := Train(context.Background(), log, be, x, testConfig(150))
	require.NoError(t, err)

	assert.Equal(t, a.Layers, b.Layers)
	assert.Equal(t, a.Meta.FinalLoss, b.Meta.FinalLoss)
	assert.Less(t, a.Meta.FinalLoss, first.Meta.FinalLoss)
	assert.Equal(t, 150, a.Meta.Epochs)
	assert.Equal(t, compute.Default, a.Meta.Backend)
}

func TestEncodeDeterministic(t *testing.T) {
	be := defaultBackend(t)
	x := twoGroups(40, 10, 6, 2)
	snap, err := Train(context.Background(), ktesting.NewLogger(t, ktesting.NewConfig()), be, x, testConfig(5))
	require.NoError(t, err)

	e1, err := Encode(be, snap, x)
	require.NoError(t, err)
	e2, err := Encode(be, snap, x)
	require.NoError(t, err)
	assert.True(t, mat.Equal(e1, e2))
	n, d := e1.Dims()
	assert.Equal(t, 40, n)
	assert.Equal(t, 3, d)

	_, err = Encode(be, snap, mat.NewDense(2, 7, nil))
	assert.ErrorIs(t, err, ErrArchMismatch)
}

func TestSnapshotRoundTrip(t *testing.T) {
	be := defaultBackend(t)
	x := twoGroups(32, 10, 6, 3)
	snap, err := Train(context.Background(), ktesting.NewLogger(t, ktesting.NewConfig()), be, x, testConfig(3))
	require.NoError(t, err)

	dir := t.TempDir()
	assert.False(t, Exists(dir))
	require.NoError(t, snap.Save(dir))
	assert.True(t, Exists(dir))

	loaded, err := LoadSnapshot(dir)
	require.NoError(t, err)
	assert.Equal(t, snap.Meta, loaded.Meta)

	want := must.M1(Encode(be, snap, x))
	got := must.M1(Encode(be, loaded, x))
	assert.True(t, mat.Equal(want, got))
}

func TestReusable(t *testing.T) {
	s := &Snapshot{Meta: Meta{InputDim: 64, Hidden: []int{128, 128}, LatentDim: 8, Epochs: 100}}
	assert.NoError(t, s.Reusable(64, []int{128, 128}, 8, 100))
	assert.NoError(t, s.Reusable(64, []int{128, 128}, 8, 50))
	assert.ErrorIs(t, s.Reusable(64, []int{128, 128}, 8, 101), ErrUndertrained)
	assert.ErrorIs(t, s.Reusable(65, []int{128, 128}, 8, 10), ErrArchMismatch)
	assert.ErrorIs(t, s.Reusable(64, []int{128}, 8, 10), ErrArchMismatch)
	assert.ErrorIs(t, s.Reusable(64, []int{128, 128}, 4, 10), ErrArchMismatch)
}

func TestTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Train(ctx, ktesting.NewLogger(t, ktesting.NewConfig()), defaultBackend(t), twoGroups(8, 10, 6, 4), testConfig(2))
	assert.ErrorIs(t, err, context.Canceled)
}
