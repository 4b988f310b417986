package trend

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinMaxScaler_RoundTrip(t *testing.T) {
	rows := [][]float64{
		{0.02, -0.01, 5},
		{-0.03, 0.04, 5},
		{0.01, 0.00, 5},
	}
	s := FitMinMaxScaler(rows, 3)

	for _, row := range rows {
		scaled := s.Transform(row)
		for _, v := range scaled {
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 1.0)
		}
		back := s.InverseTransform(scaled)
		for j := range row {
			assert.InDelta(t, row[j], back[j], 1e-12)
		}
	}
}

func TestMinMaxScaler_ColumnsIndependent(t *testing.T) {
	s := FitMinMaxScaler([][]float64{{0, 100}, {10, 200}}, 2)

	assert.Equal(t, []float64{0.5, 0.5}, s.Transform([]float64{5, 150}))
	assert.Equal(t, []float64{0, 100}, s.Min)
	assert.Equal(t, []float64{10, 100}, s.Range)
}

func TestMinMaxScaler_IgnoresMissingAndConstantColumns(t *testing.T) {
	nan := math.NaN()
	s := FitMinMaxScaler([][]float64{{nan, 3}, {1, 3}, {3, 3}}, 2)

	assert.Equal(t, 1.0, s.Min[0])
	assert.Equal(t, 2.0, s.Range[0])
	// constant column maps to 0 and back without dividing by zero
	assert.Equal(t, 1.0, s.Range[1])
	assert.Equal(t, 0.0, s.Transform([]float64{1, 3})[1])

	scaled := s.Transform([]float64{nan, 3})
	assert.True(t, math.IsNaN(scaled[0]))
}
