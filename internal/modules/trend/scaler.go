package trend

import (
	"math"
)

// MinMaxScaler rescales each column independently to [0,1] using the
// min and max observed at fit time. A fitted scaler is reused as is for
// every later transform; refitting on prediction input is a bug.
type MinMaxScaler struct {
	Min   []float64
	Range []float64
}

// FitMinMaxScaler fits one min/range pair per column, ignoring missing
// values. Constant or empty columns get a range of 1.
func FitMinMaxScaler(rows [][]float64, width int) *MinMaxScaler {
	s := &MinMaxScaler{
		Min:   make([]float64, width),
		Range: make([]float64, width),
	}

	for j := 0; j < width; j++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range rows {
			v := row[j]
			if math.IsNaN(v) {
				continue
			}
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		if math.IsInf(lo, 1) {
			lo, hi = 0, 1
		}
		s.Min[j] = lo
		s.Range[j] = hi - lo
		if s.Range[j] == 0 {
			s.Range[j] = 1
		}
	}
	return s
}

// Width returns the number of fitted columns.
func (s *MinMaxScaler) Width() int {
	return len(s.Min)
}

// Transform scales a single row. Missing values stay missing.
func (s *MinMaxScaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Min[j]) / s.Range[j]
	}
	return out
}

// InverseTransform maps a scaled row back to original units.
func (s *MinMaxScaler) InverseTransform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Range[j] + s.Min[j]
	}
	return out
}

// TransformRows scales every row.
func (s *MinMaxScaler) TransformRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.Transform(row)
	}
	return out
}
