package encoder

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"lrbinner/internal/compute"
)

const (
	leakSlope = 0.01
	// logvar is clamped before exponentiation; gradients do not flow past the clamp.
	logVarClamp = 20.0
)

// Layer is one fully connected layer. W is stored row-major as In×Out.
type Layer struct {
	In, Out int
	W, B    []float64
}

func newLayer(rng *rand.Rand, in, out int) Layer {
	l := Layer{In: in, Out: out, W: make([]float64, in*out), B: make([]float64, out)}
	limit := math.Sqrt(6 / float64(in+out))
	for i := range l.W {
		l.W[i] = (2*rng.Float64() - 1) * limit
	}
	return l
}

func (l *Layer) weights() *mat.Dense { return mat.NewDense(l.In, l.Out, l.W) }

// affine computes x·W + b.
func (l *Layer) affine(be compute.Backend, x mat.Matrix) *mat.Dense {
	y := be.Mul(x, l.weights())
	n, _ := y.Dims()
	for i := 0; i < n; i++ {
		floats.Add(y.RawRowView(i), l.B)
	}
	return y
}

// network views a flat layer list as encoder, heads and decoder.
//
//	[enc_0 .. enc_h-1, mu, logvar, dec_0 .. dec_h-1, out]
type network struct {
	enc    []*Layer
	mu, lv *Layer
	dec    []*Layer
	out    *Layer
}

func buildLayers(rng *rand.Rand, inputDim int, hidden []int, latent int) []Layer {
	shapes := buildShapes(inputDim, hidden, latent)
	layers := make([]Layer, len(shapes))
	for i, sh := range shapes {
		layers[i] = newLayer(rng, sh[0], sh[1])
	}
	return layers
}

func viewNetwork(layers []Layer, depth int) network {
	var n network
	for i := 0; i < depth; i++ {
		n.enc = append(n.enc, &layers[i])
	}
	n.mu, n.lv = &layers[depth], &layers[depth+1]
	for i := depth + 2; i < 2*depth+2; i++ {
		n.dec = append(n.dec, &layers[i])
	}
	n.out = &layers[2*depth+2]
	return n
}

func leaky(pre *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		if v < 0 {
			return leakSlope * v
		}
		return v
	}, pre)
	return &out
}

// leakyGrad scales d in place by the derivative of the activation at pre.
func leakyGrad(d, pre *mat.Dense) {
	n, _ := d.Dims()
	for i := 0; i < n; i++ {
		dr, pr := d.RawRowView(i), pre.RawRowView(i)
		for j, v := range pr {
			if v < 0 {
				dr[j] *= leakSlope
			}
		}
	}
}

// encode runs the encoder trunk and both heads. ins and pres receive the input and
// pre-activation of every trunk layer when non-nil.
func (n network) encode(be compute.Backend, x *mat.Dense, ins, pres *[]*mat.Dense) (h, mu, lv *mat.Dense) {
	h = x
	for _, l := range n.enc {
		pre := l.affine(be, h)
		if ins != nil {
			*ins = append(*ins, h)
			*pres = append(*pres, pre)
		}
		h = leaky(pre)
	}
	return h, n.mu.affine(be, h), n.lv.affine(be, h)
}

// pass holds the activations of one training step.
type pass struct {
	x               *mat.Dense
	encIn, encPre   []*mat.Dense
	h, mu, lv       *mat.Dense
	std, eps        *mat.Dense
	clamped         []bool
	decIn, decPre   []*mat.Dense
	g, out          *mat.Dense
	recon, kl, loss float64
}

func (n network) forward(be compute.Backend, rng *rand.Rand, x *mat.Dense, klWeight float64) *pass {
	p := &pass{x: x}
	p.h, p.mu, p.lv = n.encode(be, x, &p.encIn, &p.encPre)

	rows, latent := p.mu.Dims()
	p.std = mat.NewDense(rows, latent, nil)
	p.eps = mat.NewDense(rows, latent, nil)
	p.clamped = make([]bool, rows*latent)
	z := mat.NewDense(rows, latent, nil)
	var kl float64
	for i := 0; i < rows; i++ {
		mu, lv := p.mu.RawRowView(i), p.lv.RawRowView(i)
		sd, ep, zr := p.std.RawRowView(i), p.eps.RawRowView(i), z.RawRowView(i)
		for j := range mu {
			v := lv[j]
			if v > logVarClamp || v < -logVarClamp {
				p.clamped[i*latent+j] = true
				v = math.Max(-logVarClamp, math.Min(logVarClamp, v))
			}
			sd[j] = math.Exp(0.5 * v)
			ep[j] = rng.NormFloat64()
			zr[j] = mu[j] + ep[j]*sd[j]
			kl += -0.5 * (1 + v - mu[j]*mu[j] - sd[j]*sd[j])
		}
	}

	g := mat.Matrix(z)
	for _, l := range n.dec {
		pre := l.affine(be, g)
		p.decIn = append(p.decIn, asDense(g))
		p.decPre = append(p.decPre, pre)
		g = leaky(pre)
	}
	p.g = asDense(g)
	p.out = n.out.affine(be, p.g)

	var diff mat.Dense
	diff.Sub(p.out, x)
	raw := diff.RawMatrix().Data
	fn := float64(rows)
	p.recon = floats.Dot(raw, raw) / fn
	p.kl = kl / fn
	p.loss = p.recon + klWeight*p.kl
	return p
}

func asDense(m mat.Matrix) *mat.Dense {
	if d, ok := m.(*mat.Dense); ok {
		return d
	}
	return mat.DenseCopyOf(m)
}

// grads mirrors the flat layer list.
type grads struct {
	w, b [][]float64
}

func newGrads(layers []Layer) grads {
	g := grads{w: make([][]float64, len(layers)), b: make([][]float64, len(layers))}
	for i := range layers {
		g.w[i] = make([]float64, len(layers[i].W))
		g.b[i] = make([]float64, len(layers[i].B))
	}
	return g
}

// backwardAffine stores dW and db for layer idx and returns the gradient w.r.t. x.
func backwardAffine(be compute.Backend, l *Layer, x, dy *mat.Dense, g grads, idx int) *mat.Dense {
	dw := be.Mul(x.T(), dy)
	copy(g.w[idx], dw.RawMatrix().Data)
	db := g.b[idx]
	for i := range db {
		db[i] = 0
	}
	n, _ := dy.Dims()
	for i := 0; i < n; i++ {
		floats.Add(db, dy.RawRowView(i))
	}
	return be.Mul(dy, l.weights().T())
}

// backward fills g with the loss gradient of pass p.
func (n network) backward(be compute.Backend, p *pass, klWeight float64, g grads) {
	rows, _ := p.x.Dims()
	fn := float64(rows)
	depth := len(n.enc)
	outIdx := 2*depth + 2

	var dOut mat.Dense
	dOut.Sub(p.out, p.x)
	dOut.Scale(2/fn, &dOut)

	dg := backwardAffine(be, n.out, p.g, &dOut, g, outIdx)
	for k := len(n.dec) - 1; k >= 0; k-- {
		leakyGrad(dg, p.decPre[k])
		dg = backwardAffine(be, n.dec[k], p.decIn[k], dg, g, depth+2+k)
	}

	// dg is now the gradient w.r.t. z.
	_, latent := p.mu.Dims()
	dmu := mat.NewDense(rows, latent, nil)
	dlv := mat.NewDense(rows, latent, nil)
	for i := 0; i < rows; i++ {
		dz, mu := dg.RawRowView(i), p.mu.RawRowView(i)
		sd, ep := p.std.RawRowView(i), p.eps.RawRowView(i)
		dm, dl := dmu.RawRowView(i), dlv.RawRowView(i)
		for j := range dz {
			dm[j] = dz[j] + klWeight*mu[j]/fn
			if p.clamped[i*latent+j] {
				continue
			}
			dl[j] = dz[j]*ep[j]*0.5*sd[j] + klWeight*0.5*(sd[j]*sd[j]-1)/fn
		}
	}

	dh := backwardAffine(be, n.mu, p.h, dmu, g, depth)
	dh.Add(dh, backwardAffine(be, n.lv, p.h, dlv, g, depth+1))
	for k := depth - 1; k >= 0; k-- {
		leakyGrad(dh, p.encPre[k])
		dh = backwardAffine(be, n.enc[k], p.encIn[k], dh, g, k)
	}
}
