package encoder

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"

	"lrbinner/internal/jsonutil"
)

const (
	fileMeta    = "meta.json"
	fileWeights = "weights.gob"
)

var (
	// ErrArchMismatch means a snapshot does not fit the requested architecture or data.
	ErrArchMismatch = errors.New("model architecture mismatch")
	// ErrUndertrained means a snapshot was trained for fewer epochs than requested.
	ErrUndertrained = errors.New("model trained for fewer epochs than requested")
)

// Meta describes a trained model.
type Meta struct {
	InputDim       int     `json:"input_dim"`
	CompositionDim int     `json:"composition_dim"`
	Hidden         []int   `json:"hidden"`
	LatentDim      int     `json:"latent_dim"`
	Epochs         int     `json:"epochs"`
	KLWeight       float64 `json:"kl_weight"`
	Seed           uint64  `json:"seed"`
	Backend        string  `json:"backend"`
	FinalLoss      float64 `json:"final_loss"`
}

// Snapshot is a trained model: its description, input scaler and parameters.
type Snapshot struct {
	Meta   Meta
	Scaler Scaler
	Layers []Layer
}

type weightsFile struct {
	Scaler Scaler
	Layers []Layer
}

// Reusable returns nil when the snapshot can stand in for a training run with the
// given shape; otherwise the error says why retraining is needed.
func (s *Snapshot) Reusable(inputDim int, hidden []int, latentDim, epochs int) error {
	switch {
	case s.Meta.InputDim != inputDim:
		return errors.Wrapf(ErrArchMismatch, "input dimension %d, requested %d", s.Meta.InputDim, inputDim)
	case !slices.Equal(s.Meta.Hidden, hidden):
		return errors.Wrapf(ErrArchMismatch, "hidden layers %s, requested %s", FormatHidden(s.Meta.Hidden), FormatHidden(hidden))
	case s.Meta.LatentDim != latentDim:
		return errors.Wrapf(ErrArchMismatch, "latent dimension %d, requested %d", s.Meta.LatentDim, latentDim)
	case epochs > s.Meta.Epochs:
		return errors.Wrapf(ErrUndertrained, "trained %d epochs, requested %d", s.Meta.Epochs, epochs)
	}
	return nil
}

// Save writes the snapshot to dir. Weights are committed before the metadata, so a
// readable meta.json always refers to complete weights.
func (s *Snapshot) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create model directory %q", dir)
	}
	err := jsonutil.WriteAtomic(filepath.Join(dir, fileWeights), func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(weightsFile{Scaler: s.Scaler, Layers: s.Layers})
	})
	if err != nil {
		return errors.Wrap(err, "write model weights")
	}
	return errors.Wrap(jsonutil.WriteFile(filepath.Join(dir, fileMeta), s.Meta), "write model meta")
}

// Exists reports whether dir holds a saved snapshot.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, fileMeta))
	return err == nil
}

// LoadSnapshot reads a snapshot written by Save.
func LoadSnapshot(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, fileMeta))
	if err != nil {
		return nil, errors.Wrap(err, "read model meta")
	}
	s := &Snapshot{}
	if err := json.Unmarshal(data, &s.Meta); err != nil {
		return nil, errors.Wrap(err, "decode model meta")
	}
	f, err := os.Open(filepath.Join(dir, fileWeights))
	if err != nil {
		return nil, errors.Wrap(err, "open model weights")
	}
	defer f.Close()
	var wf weightsFile
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&wf); err != nil {
		return nil, errors.Wrap(err, "decode model weights")
	}
	s.Scaler, s.Layers = wf.Scaler, wf.Layers
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// check verifies that the layers match the metadata.
func (s *Snapshot) check() error {
	h := len(s.Meta.Hidden)
	if len(s.Layers) != 2*h+3 {
		return errors.Wrapf(ErrArchMismatch, "snapshot has %d layers, metadata implies %d", len(s.Layers), 2*h+3)
	}
	want := buildShapes(s.Meta.InputDim, s.Meta.Hidden, s.Meta.LatentDim)
	for i, l := range s.Layers {
		if l.In != want[i][0] || l.Out != want[i][1] || len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return errors.Wrapf(ErrArchMismatch, "layer %d is %dx%d, expected %dx%d", i, l.In, l.Out, want[i][0], want[i][1])
		}
	}
	if len(s.Scaler.Mean) != s.Meta.InputDim || len(s.Scaler.Std) != s.Meta.InputDim {
		return errors.Wrapf(ErrArchMismatch, "scaler has %d columns, expected %d", len(s.Scaler.Mean), s.Meta.InputDim)
	}
	return nil
}

func buildShapes(inputDim int, hidden []int, latent int) [][2]int {
	var out [][2]int
	prev := inputDim
	for _, h := range hidden {
		out = append(out, [2]int{prev, h})
		prev = h
	}
	out = append(out, [2]int{prev, latent}, [2]int{prev, latent})
	prev = latent
	for i := len(hidden) - 1; i >= 0; i-- {
		out = append(out, [2]int{prev, hidden[i]})
		prev = hidden[i]
	}
	return append(out, [2]int{prev, inputDim})
}
