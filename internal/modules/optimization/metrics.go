// Package optimization computes portfolio metrics from a historical
// log-return sample and searches the weight simplex for the maximum
// Sharpe and minimum volatility portfolios.
package optimization

import (
	"fmt"
	"math"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// Metrics are annualized figures for one weight vector. SharpeRatio is
// NaN when AnnualVolatility is zero.
type Metrics struct {
	AnnualReturn     float64
	AnnualVolatility float64
	SharpeRatio      float64
}

// Degenerate reports whether the Sharpe ratio is undefined.
func (m Metrics) Degenerate() bool {
	return math.IsNaN(m.SharpeRatio)
}

// ReturnSample holds the annualized mean vector and covariance matrix of
// a T x N log-return sample.
type ReturnSample struct {
	mu    []float64
	sigma *mat.SymDense
}

// NewReturnSample annualizes a sample of daily log returns (rows are
// observations, columns are assets). At least two rows are required and
// no value may be missing.
func NewReturnSample(returns mat.Matrix) (*ReturnSample, error) {
	if returns == nil {
		return nil, fmt.Errorf("return sample: %w", domain.ErrNoMarketData)
	}
	r, c := returns.Dims()
	if r < 2 || c == 0 {
		return nil, fmt.Errorf("return sample needs at least 2 observations, got %d: %w", r, domain.ErrInsufficientHistory)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := returns.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("return sample has a missing value at row %d column %d", i, j)
			}
		}
	}

	mu := formulas.ColumnMeans(returns)
	for j := range mu {
		mu[j] *= formulas.TradingDaysPerYear
	}
	sigma := formulas.SampleCovariance(returns)
	sigma.ScaleSym(formulas.TradingDaysPerYear, sigma)

	return &ReturnSample{mu: mu, sigma: sigma}, nil
}

// Assets returns the number of assets in the sample.
func (s *ReturnSample) Assets() int {
	return len(s.mu)
}

// Metrics returns the annualized return, volatility and Sharpe ratio of
// the weight vector.
func (s *ReturnSample) Metrics(weights []float64) Metrics {
	ret := s.portfolioReturn(weights)
	vol := math.Sqrt(math.Max(s.portfolioVariance(weights), 0))

	sharpe := math.NaN()
	if vol > 0 {
		sharpe = ret / vol
	}
	return Metrics{
		AnnualReturn:     ret,
		AnnualVolatility: vol,
		SharpeRatio:      sharpe,
	}
}

func (s *ReturnSample) portfolioReturn(w []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(s.mu), s.mu), mat.NewVecDense(len(w), w))
}

func (s *ReturnSample) portfolioVariance(w []float64) float64 {
	wv := mat.NewVecDense(len(w), w)
	return mat.Inner(wv, s.sigma, wv)
}

// sigmaTimes returns Σw.
func (s *ReturnSample) sigmaTimes(w []float64) []float64 {
	out := make([]float64, len(w))
	mat.NewVecDense(len(out), out).MulVec(s.sigma, mat.NewVecDense(len(w), w))
	return out
}
