package encoder

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config controls one training run.
type Config struct {
	Hidden       []int   // hidden layer sizes, encoder order; the decoder mirrors them
	LatentDim    int     // embedding length
	Epochs       int     // full passes over the training set
	BatchSize    int     // mini-batch rows
	LearningRate float64 // Adam step size
	KLWeight     float64 // weight of the KL term in the loss
	Seed         uint64  // seeds initialization, shuffling and sampling noise

	// CompositionDim is the number of leading input columns holding composition
	// frequencies; the remaining columns are coverage histogram counts.
	CompositionDim int

	Progress io.Writer // epoch bar destination; nil disables it
}

// DefaultConfig returns the training defaults.
func DefaultConfig() Config {
	return Config{
		Hidden:       []int{128, 128},
		LatentDim:    8,
		Epochs:       200,
		BatchSize:    256,
		LearningRate: 1e-3,
		KLWeight:     1.0,
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if len(c.Hidden) == 0 {
		return errors.New("at least one hidden layer is required")
	}
	for _, h := range c.Hidden {
		if h < 1 {
			return errors.Errorf("hidden layer size must be >= 1 (got %d)", h)
		}
	}
	switch {
	case c.LatentDim < 1:
		return errors.Errorf("latent dimension must be >= 1 (got %d)", c.LatentDim)
	case c.Epochs < 1:
		return errors.Errorf("epochs must be >= 1 (got %d)", c.Epochs)
	case c.BatchSize < 1:
		return errors.Errorf("batch size must be >= 1 (got %d)", c.BatchSize)
	case c.LearningRate <= 0:
		return errors.Errorf("learning rate must be > 0 (got %g)", c.LearningRate)
	case c.KLWeight < 0:
		return errors.Errorf("KL weight must be >= 0 (got %g)", c.KLWeight)
	case c.CompositionDim < 0:
		return errors.Errorf("composition dimension must be >= 0 (got %d)", c.CompositionDim)
	}
	return nil
}

// ParseHidden parses a comma-separated list of layer sizes such as "128,128".
func ParseHidden(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Errorf("invalid hidden layer size %q in %q", p, s)
		}
		if n < 1 {
			return nil, errors.Errorf("hidden layer size must be >= 1 (got %d in %q)", n, s)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatHidden is the inverse of ParseHidden.
func FormatHidden(h []int) string {
	parts := make([]string, len(h))
	for i, n := range h {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
