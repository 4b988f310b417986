// Package formulas holds the statistics shared by the trend and
// optimization modules.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualisation convention used throughout.
const TradingDaysPerYear = 252

// LogReturn returns ln(curr / prev), or NaN when either price is
// missing or non-positive.
func LogReturn(prev, curr float64) float64 {
	if math.IsNaN(prev) || math.IsNaN(curr) || prev <= 0 || curr <= 0 {
		return math.NaN()
	}
	return math.Log(curr / prev)
}

// ColumnMeans returns the mean of every column of an observations matrix
// (rows are observations).
func ColumnMeans(x mat.Matrix) []float64 {
	r, c := x.Dims()
	means := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		means[j] = stat.Mean(col, nil)
	}
	return means
}

// SampleCovariance returns the unbiased (n-1) covariance matrix of an
// observations matrix.
func SampleCovariance(x mat.Matrix) *mat.SymDense {
	_, c := x.Dims()
	cov := mat.NewSymDense(c, nil)
	stat.CovarianceMatrix(cov, x, nil)
	return cov
}
