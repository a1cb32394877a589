package encoder

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Scaler maps raw profile vectors to network inputs. Coverage counts are first
// turned into per-row fractions so sequence length does not dominate, then every
// column is standardized with the statistics of the training set.
type Scaler struct {
	CompositionDim int
	Mean, Std      []float64
}

// FitScaler computes the column statistics of data.
func FitScaler(data *mat.Dense, compDim int) Scaler {
	x := normalizeCoverage(data, compDim)
	n, d := x.Dims()
	s := Scaler{CompositionDim: compDim, Mean: make([]float64, d), Std: make([]float64, d)}
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		m, sd := stat.MeanStdDev(col, nil)
		if n < 2 || math.IsNaN(sd) || sd < 1e-12 {
			sd = 1
		}
		if math.IsNaN(m) {
			m = 0
		}
		s.Mean[j], s.Std[j] = m, sd
	}
	return s
}

// Transform returns the scaled copy of data.
func (s Scaler) Transform(data *mat.Dense) *mat.Dense {
	x := normalizeCoverage(data, s.CompositionDim)
	n, _ := x.Dims()
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		floats.Sub(row, s.Mean)
		floats.Div(row, s.Std)
	}
	return x
}

func normalizeCoverage(data *mat.Dense, compDim int) *mat.Dense {
	x := mat.DenseCopyOf(data)
	n, d := x.Dims()
	if compDim >= d {
		return x
	}
	for i := 0; i < n; i++ {
		cov := x.RawRowView(i)[compDim:]
		if sum := floats.Sum(cov); sum > 0 {
			floats.Scale(1/sum, cov)
		}
	}
	return x
}
