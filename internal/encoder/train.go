// Package encoder trains a variational autoencoder over profile vectors and maps
// profiles to latent embeddings with the trained model.
package encoder

import (
	"context"
	"io"
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"lrbinner/internal/compute"
)

// ErrDiverged is returned when the training loss stops being finite.
var ErrDiverged = errors.New("training diverged")

// Train fits a model to the rows of data and returns its snapshot.
func Train(ctx context.Context, log klog.Logger, be compute.Backend, data *mat.Dense, cfg Config) (*Snapshot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n, d := data.Dims()
	if n == 0 {
		return nil, errors.New("no profiles to train on")
	}
	if cfg.CompositionDim > d {
		return nil, errors.Errorf("composition dimension %d exceeds input dimension %d", cfg.CompositionDim, d)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	scaler := FitScaler(data, cfg.CompositionDim)
	x := scaler.Transform(data)

	layers := buildLayers(rng, d, cfg.Hidden, cfg.LatentDim)
	net := viewNetwork(layers, len(cfg.Hidden))
	g := newGrads(layers)
	opt := newAdam(cfg.LearningRate, layers)

	bs := min(cfg.BatchSize, n)
	batch := mat.NewDense(bs, d, nil)
	bar := newEpochBar(cfg.Progress, cfg.Epochs)
	log.Info("training latent encoder", "backend", be.Name(), "sequences", n, "input", d,
		"hidden", FormatHidden(cfg.Hidden), "latent", cfg.LatentDim, "epochs", cfg.Epochs, "batch", bs)

	var epochLoss float64
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		perm := rng.Perm(n)
		var sum, recon, kl float64
		for lo := 0; lo < n; lo += bs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			hi := min(lo+bs, n)
			xb := batch.Slice(0, hi-lo, 0, d).(*mat.Dense)
			for i, r := range perm[lo:hi] {
				copy(xb.RawRowView(i), x.RawRowView(r))
			}
			p := net.forward(be, rng, xb, cfg.KLWeight)
			if math.IsNaN(p.loss) || math.IsInf(p.loss, 0) {
				return nil, errors.Wrapf(ErrDiverged, "epoch %d: loss %v", epoch, p.loss)
			}
			w := float64(hi - lo)
			sum += p.loss * w
			recon += p.recon * w
			kl += p.kl * w
			net.backward(be, p, cfg.KLWeight, g)
			opt.step(layers, g)
		}
		epochLoss = sum / float64(n)
		log.V(1).Info("epoch", "epoch", epoch, "loss", epochLoss, "recon", recon/float64(n), "kl", kl/float64(n))
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	log.Info("training finished", "loss", epochLoss)

	return &Snapshot{
		Meta: Meta{
			InputDim:       d,
			CompositionDim: cfg.CompositionDim,
			Hidden:         append([]int(nil), cfg.Hidden...),
			LatentDim:      cfg.LatentDim,
			Epochs:         cfg.Epochs,
			KLWeight:       cfg.KLWeight,
			Seed:           cfg.Seed,
			Backend:        be.Name(),
			FinalLoss:      epochLoss,
		},
		Scaler: scaler,
		Layers: layers,
	}, nil
}

// Encode maps the rows of data to latent means. Sampling is bypassed, so repeated
// calls with the same snapshot return identical embeddings.
func Encode(be compute.Backend, s *Snapshot, data *mat.Dense) (*mat.Dense, error) {
	_, d := data.Dims()
	if d != s.Meta.InputDim {
		return nil, errors.Wrapf(ErrArchMismatch, "profiles have dimension %d, model expects %d", d, s.Meta.InputDim)
	}
	net := viewNetwork(s.Layers, len(s.Meta.Hidden))
	_, mu, _ := net.encode(be, s.Scaler.Transform(data), nil, nil)
	return mu, nil
}

func newEpochBar(w io.Writer, epochs int) *progressbar.ProgressBar {
	if w == nil {
		return nil
	}
	return progressbar.NewOptions(epochs,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("training"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
	)
}
