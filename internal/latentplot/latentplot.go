// Package latentplot draws the first two latent dimensions coloured by bin.
package latentplot

import (
	"image/color"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"lrbinner/internal/assign"
)

var unbinnedColor = color.Gray{Y: 170}

// Save writes a scatter plot of emb (first two columns) to path. labels[i] is the
// bin of row i, -1 for unbinned. The format follows the file extension.
func Save(path string, emb *mat.Dense, labels []int) error {
	n, d := emb.Dims()
	if n != len(labels) {
		return errors.Errorf("%d embeddings but %d labels", n, len(labels))
	}
	if d < 2 {
		return errors.Errorf("need at least two latent dimensions to plot (have %d)", d)
	}

	groups := map[int]plotter.XYs{}
	for i, l := range labels {
		groups[l] = append(groups[l], plotter.XY{X: emb.At(i, 0), Y: emb.At(i, 1)})
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	p := plot.New()
	p.Title.Text = "Latent space"
	p.X.Label.Text = "z1"
	p.Y.Label.Text = "z2"
	p.Legend.Top = true
	for _, k := range keys {
		s, err := plotter.NewScatter(groups[k])
		if err != nil {
			return errors.Wrap(err, "scatter")
		}
		s.GlyphStyle.Radius = vg.Points(1.5)
		if k < 0 {
			s.GlyphStyle.Color = unbinnedColor
		} else {
			s.GlyphStyle.Color = plotutil.Color(k)
		}
		p.Add(s)
		p.Legend.Add(assign.Label(k), s)
	}
	return errors.Wrapf(p.Save(6*vg.Inch, 6*vg.Inch, path), "save plot %q", path)
}
