package encoder

import "math"

type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	mw, vw, mb, vb        [][]float64
}

func newAdam(lr float64, layers []Layer) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, l := range layers {
		a.mw = append(a.mw, make([]float64, len(l.W)))
		a.vw = append(a.vw, make([]float64, len(l.W)))
		a.mb = append(a.mb, make([]float64, len(l.B)))
		a.vb = append(a.vb, make([]float64, len(l.B)))
	}
	return a
}

// step applies one bias-corrected update to every layer.
func (a *adam) step(layers []Layer, g grads) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	for i := range layers {
		a.update(layers[i].W, g.w[i], a.mw[i], a.vw[i], c1, c2)
		a.update(layers[i].B, g.b[i], a.mb[i], a.vb[i], c1, c2)
	}
}

func (a *adam) update(p, g, m, v []float64, c1, c2 float64) {
	for j, gj := range g {
		m[j] = a.beta1*m[j] + (1-a.beta1)*gj
		v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
		p[j] -= a.lr * (m[j] / c1) / (math.Sqrt(v[j]/c2) + a.eps)
	}
}
