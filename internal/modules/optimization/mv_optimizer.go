package optimization

import (
	"fmt"
	"math"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

const (
	penaltyWeight = 1000.0
	minVolatility = 1e-10
)

// Objective selects what the optimizer searches for.
type Objective string

const (
	MaxSharpe     Objective = "max_sharpe"
	MinVolatility Objective = "min_volatility"
)

// Result is one optimized weight vector and its metrics.
type Result struct {
	Objective Objective
	Weights   []float64
	Metrics   Metrics
	Status    string
}

// Report carries both objectives for the same sample.
type Report struct {
	MaxSharpe     *Result
	MinVolatility *Result
}

// MVOptimizer searches the long-only simplex (each weight in [0,1],
// weights summing to 1) starting from equal weights.
type MVOptimizer struct {
	log zerolog.Logger
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(log zerolog.Logger) *MVOptimizer {
	return &MVOptimizer{
		log: log.With().Str("component", "mv_optimizer").Logger(),
	}
}

// Optimize runs both objectives. Any failure to converge is returned
// wrapped in domain.ErrOptimizationNonConvergence.
func (mvo *MVOptimizer) Optimize(sample *ReturnSample) (*Report, error) {
	sharpe, err := mvo.Solve(sample, MaxSharpe)
	if err != nil {
		return nil, err
	}
	minVol, err := mvo.Solve(sample, MinVolatility)
	if err != nil {
		return nil, err
	}
	return &Report{MaxSharpe: sharpe, MinVolatility: minVol}, nil
}

// Solve optimizes a single objective.
func (mvo *MVOptimizer) Solve(sample *ReturnSample, objective Objective) (*Result, error) {
	n := sample.Assets()
	if n == 0 {
		return nil, fmt.Errorf("no assets provided")
	}

	initial := equalWeights(n)
	if n == 1 {
		// The simplex has a single point.
		return mvo.result(sample, objective, initial, "single_asset"), nil
	}

	var problem optimize.Problem
	switch objective {
	case MaxSharpe:
		problem = maxSharpeProblem(sample)
	case MinVolatility:
		problem = minVolatilityProblem(sample)
	default:
		return nil, fmt.Errorf("unknown objective: %s", objective)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		mvo.log.Debug().
			Err(err).
			Str("objective", string(objective)).
			Msg("BFGS did not converge, retrying with Nelder-Mead")
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", objective, err, domain.ErrOptimizationNonConvergence)
		}
	}
	if !converged(result.Status) {
		return nil, fmt.Errorf("%s: status=%v: %w", objective, result.Status, domain.ErrOptimizationNonConvergence)
	}

	weights := normalize(projectToBounds(result.X))

	// A local search must not end up worse than where it started.
	candidate := sample.Metrics(weights)
	baseline := sample.Metrics(initial)
	if worseThan(objective, candidate, baseline) {
		mvo.log.Debug().
			Str("objective", string(objective)).
			Msg("Optimized weights regress equal weighting, keeping equal weights")
		weights = initial
	}

	return mvo.result(sample, objective, weights, result.Status.String()), nil
}

func (mvo *MVOptimizer) result(sample *ReturnSample, objective Objective, weights []float64, status string) *Result {
	metrics := sample.Metrics(weights)
	if metrics.Degenerate() {
		mvo.log.Warn().
			Err(domain.ErrDegenerateVolatility).
			Str("objective", string(objective)).
			Msg("Zero portfolio volatility, Sharpe ratio undefined")
	}
	return &Result{
		Objective: objective,
		Weights:   weights,
		Metrics:   metrics,
		Status:    status,
	}
}

// maxSharpeProblem minimizes -(μ'w)/sqrt(w'Σw) with a quadratic penalty
// on the budget constraint.
func maxSharpeProblem(sample *ReturnSample) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			w := projectToBounds(x)
			ret := sample.portfolioReturn(w)
			vol := volatility(sample, w)
			return -ret/vol + budgetPenalty(w)
		},
		Grad: func(grad, x []float64) {
			w := projectToBounds(x)
			ret := sample.portfolioReturn(w)
			variance := sample.portfolioVariance(w)
			vol := volatility(sample, w)
			sw := sample.sigmaTimes(w)

			for i := range grad {
				grad[i] = -sample.mu[i] / vol
				if variance > minVolatility*minVolatility {
					grad[i] += ret * sw[i] / (vol * vol * vol)
				}
			}
			addBudgetPenaltyGradient(grad, w)
		},
	}
}

// minVolatilityProblem minimizes sqrt(w'Σw) with the same budget penalty.
func minVolatilityProblem(sample *ReturnSample) optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			w := projectToBounds(x)
			return volatility(sample, w) + budgetPenalty(w)
		},
		Grad: func(grad, x []float64) {
			w := projectToBounds(x)
			variance := sample.portfolioVariance(w)
			vol := volatility(sample, w)
			sw := sample.sigmaTimes(w)

			for i := range grad {
				grad[i] = 0
				if variance > minVolatility*minVolatility {
					grad[i] = sw[i] / vol
				}
			}
			addBudgetPenaltyGradient(grad, w)
		},
	}
}

func volatility(sample *ReturnSample, w []float64) float64 {
	return math.Max(math.Sqrt(math.Max(sample.portfolioVariance(w), 0)), minVolatility)
}

func budgetPenalty(w []float64) float64 {
	d := floats.Sum(w) - 1.0
	return penaltyWeight * d * d
}

func addBudgetPenaltyGradient(grad, w []float64) {
	d := floats.Sum(w) - 1.0
	for i := range grad {
		grad[i] += 2 * penaltyWeight * d
	}
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.MethodConverge:
		return true
	}
	return false
}

func worseThan(objective Objective, candidate, baseline Metrics) bool {
	switch objective {
	case MaxSharpe:
		if candidate.Degenerate() || baseline.Degenerate() {
			return false
		}
		return candidate.SharpeRatio < baseline.SharpeRatio
	case MinVolatility:
		return candidate.AnnualVolatility > baseline.AnnualVolatility
	}
	return false
}

func projectToBounds(x []float64) []float64 {
	proj := make([]float64, len(x))
	for i, v := range x {
		proj[i] = math.Max(0.0, math.Min(1.0, v))
	}
	return proj
}

// normalize rescales w to sum to 1, falling back to equal weights when
// nothing is left after projection.
func normalize(w []float64) []float64 {
	sum := floats.Sum(w)
	if sum <= 0 || math.IsNaN(sum) {
		return equalWeights(len(w))
	}
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v / sum
	}
	return out
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}
