// Package advisor runs the request-scoped pipelines: market data to
// trend forecast, and market data to optimized weights. Every call
// fetches, trains and optimizes from scratch.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/cryptosage/backend/internal/utils"
	"github.com/cryptosage/backend/pkg/formulas"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the lookback windows and defaults of the advisor.
type Config struct {
	TrendLookbackDays int
	PriceLookbackDays int
	TopMoversLimit    int
	TopMoversDays     int
	DefaultPortfolio  []domain.Symbol
	DefaultQuantity   float64
}

// PortfolioOptimizer computes max-Sharpe and min-volatility allocations
// for a return sample.
type PortfolioOptimizer interface {
	Optimize(sample *optimization.ReturnSample) (*optimization.Report, error)
}

// Service orchestrates data retrieval, forecasting and optimization.
type Service struct {
	market    domain.MarketDataSource
	ranker    domain.CoinRanker
	builder   *series.Builder
	trainer   *trend.Trainer
	optimizer PortfolioOptimizer
	cfg       Config
	log       zerolog.Logger
}

// NewService creates a new advisor service. ranker may be nil, in which
// case top movers are not reported.
func NewService(
	market domain.MarketDataSource,
	ranker domain.CoinRanker,
	builder *series.Builder,
	trainer *trend.Trainer,
	optimizer PortfolioOptimizer,
	cfg Config,
	log zerolog.Logger,
) *Service {
	if cfg.TrendLookbackDays <= 0 {
		cfg.TrendLookbackDays = 90
	}
	if cfg.PriceLookbackDays <= 0 {
		cfg.PriceLookbackDays = 30
	}
	if cfg.TopMoversDays <= 1 {
		cfg.TopMoversDays = 7
	}
	if cfg.DefaultQuantity <= 0 {
		cfg.DefaultQuantity = 10
	}
	return &Service{
		market:    market,
		ranker:    ranker,
		builder:   builder,
		trainer:   trainer,
		optimizer: optimizer,
		cfg:       cfg,
		log:       log.With().Str("service", "advisor").Logger(),
	}
}

// DefaultHoldings is the portfolio used for users without a stored one.
func (s *Service) DefaultHoldings() domain.Holdings {
	return domain.UniformHoldings(s.cfg.DefaultPortfolio, s.cfg.DefaultQuantity)
}

// Mover is one of the top coins by market cap with its recent change.
type Mover struct {
	Symbol        domain.Symbol `json:"symbol"`
	FullName      string        `json:"full_name"`
	MarketCap     float64       `json:"market_cap"`
	LastClose     float64       `json:"last_close"`
	DayChangePct  *float64      `json:"day_change_pct"`
	WeekChangePct *float64      `json:"week_change_pct"`
}

// Recommendation is the result of a trend prediction run.
type Recommendation struct {
	RunID      string
	Holdings   domain.Holdings
	Forecast   *trend.Forecast
	Insights   []string
	TrendTable *series.Table
	TopMovers  []Mover
}

// Recommend forecasts next-day returns for the holdings and picks the
// asset with the highest prediction. Assets that fail to fetch are left
// out of both the forecast and the pick.
func (s *Service) Recommend(ctx context.Context, holdings domain.Holdings) (*Recommendation, error) {
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	log.Info().Strs("symbols", holdings.Symbols()).Msg("Starting trend prediction")

	bars := s.fetchBars(ctx, log, holdings.Symbols(), s.cfg.TrendLookbackDays)

	table, err := s.builder.BuildReturnTable(holdings.Symbols(), bars)
	if err != nil {
		return nil, err
	}
	if trimmed := table.TrimLeadingGaps(); trimmed.Len() > 0 {
		table = trimmed
	}

	timer := utils.NewTimer("train", log)
	fitted, err := s.trainer.Fit(ctx, table)
	timer.Stop()
	if err != nil {
		return nil, err
	}

	forecast, err := trend.Predict(fitted, table)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("best", forecast.Best).
		Bool("reliable", forecast.Reliable).
		Int("rows", table.Len()).
		Msg("Trend prediction complete")

	return &Recommendation{
		RunID:      runID,
		Holdings:   holdings,
		Forecast:   forecast,
		Insights:   trend.Insights(forecast),
		TrendTable: table,
		TopMovers:  s.TopMovers(ctx),
	}, nil
}

// TopMovers returns the top coins by market cap with their latest daily
// and weekly change. Failures are logged and never fatal.
func (s *Service) TopMovers(ctx context.Context) []Mover {
	if s.ranker == nil || s.cfg.TopMoversLimit <= 0 {
		return nil
	}

	coins, err := s.ranker.GetTopCoins(ctx, s.cfg.TopMoversLimit)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to fetch top coins")
		return nil
	}

	movers := make([]Mover, 0, len(coins))
	for _, coin := range coins {
		bars, err := s.market.GetDailyBars(ctx, coin.Symbol, s.cfg.TopMoversDays)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", coin.Symbol).Msg("Failed to fetch mover history")
			continue
		}

		var closes []float64
		for _, b := range bars {
			if b.HasValues() && b.Close > 0 {
				closes = append(closes, b.Close)
			}
		}
		if len(closes) == 0 {
			continue
		}

		movers = append(movers, Mover{
			Symbol:        coin.Symbol,
			FullName:      coin.FullName,
			MarketCap:     coin.MarketCap,
			LastClose:     closes[len(closes)-1],
			DayChangePct:  formulas.RateOfChange(closes, 1),
			WeekChangePct: formulas.RateOfChange(closes, len(closes)-1),
		})
	}
	return movers
}

// Allocation is a weight vector over the report's symbols.
type Allocation struct {
	Weights []float64
	Metrics optimization.Metrics
}

// OptimizationReport is the result of an optimization run. When
// Optimized is false both allocations carry the raw holdings weights.
type OptimizationReport struct {
	RunID         string
	Symbols       []domain.Symbol
	Holdings      domain.Holdings
	MaxSharpe     Allocation
	MinVolatility Allocation
	Optimized     bool
	Reason        string
}

// Optimize computes max-Sharpe and min-volatility weights from daily log
// returns of the holdings. Numerical failures degrade to the raw
// weights; only missing market data is an error.
func (s *Service) Optimize(ctx context.Context, holdings domain.Holdings) (*OptimizationReport, error) {
	runID := uuid.New().String()
	log := s.log.With().Str("run_id", runID).Logger()

	log.Info().Strs("symbols", holdings.Symbols()).Msg("Starting portfolio optimization")

	bars := s.fetchBars(ctx, log, holdings.Symbols(), s.cfg.PriceLookbackDays)

	closes, err := s.builder.BuildCloseTable(holdings.Symbols(), bars)
	if err != nil {
		return nil, err
	}
	closes = closes.TrimLeadingGaps()

	report := &OptimizationReport{
		RunID:    runID,
		Symbols:  closes.Symbols,
		Holdings: holdings,
	}

	returns := closes.LogReturns()
	var sample *optimization.ReturnSample
	if returns.Len() < 2 {
		err = fmt.Errorf("%d log-return rows: %w", returns.Len(), domain.ErrInsufficientHistory)
	} else {
		sample, err = optimization.NewReturnSample(returns.Matrix())
	}
	if err != nil {
		log.Warn().Err(err).Int("rows", returns.Len()).Msg("Cannot build return sample, reporting raw weights")
		s.degrade(report, closes, nil, err)
		return report, nil
	}

	timer := utils.NewTimer("optimize", log)
	result, err := s.optimizer.Optimize(sample)
	timer.Stop()
	if err != nil {
		if !errors.Is(err, domain.ErrOptimizationNonConvergence) {
			return nil, fmt.Errorf("optimize portfolio: %w", err)
		}
		log.Warn().Err(err).Msg("Optimization failed, reporting raw weights")
		s.degrade(report, closes, sample, err)
		return report, nil
	}

	report.Optimized = true
	report.MaxSharpe = Allocation{Weights: result.MaxSharpe.Weights, Metrics: result.MaxSharpe.Metrics}
	report.MinVolatility = Allocation{Weights: result.MinVolatility.Weights, Metrics: result.MinVolatility.Metrics}

	log.Info().
		Floats64("max_sharpe_weights", report.MaxSharpe.Weights).
		Floats64("min_vol_weights", report.MinVolatility.Weights).
		Msg("Portfolio optimization complete")

	return report, nil
}

// degrade fills both allocations with the value weights of the raw
// holdings (quantity x last close, normalized).
func (s *Service) degrade(report *OptimizationReport, closes *series.Table, sample *optimization.ReturnSample, cause error) {
	weights := RawWeights(report.Holdings, closes)

	metrics := optimization.Metrics{
		AnnualReturn:     math.NaN(),
		AnnualVolatility: math.NaN(),
		SharpeRatio:      math.NaN(),
	}
	if sample != nil && len(weights) == sample.Assets() {
		metrics = sample.Metrics(weights)
	}

	report.Optimized = false
	report.Reason = cause.Error()
	report.MaxSharpe = Allocation{Weights: weights, Metrics: metrics}
	report.MinVolatility = Allocation{Weights: weights, Metrics: metrics}
}

// RawWeights returns each column's share of the holdings' market value
// at the last close. Columns without a usable close get zero weight;
// when no value is known at all the weights are equal.
func RawWeights(holdings domain.Holdings, closes *series.Table) []float64 {
	n := closes.Width()
	if n == 0 {
		return nil
	}
	last := closes.LastRow()

	weights := make([]float64, n)
	var total float64
	for j, symbol := range closes.Symbols {
		qty, ok := holdings.Quantity(symbol)
		if !ok || last == nil || math.IsNaN(last[j]) {
			continue
		}
		weights[j] = qty * last[j]
		total += weights[j]
	}

	if total <= 0 {
		for j := range weights {
			weights[j] = 1.0 / float64(n)
		}
		return weights
	}
	for j := range weights {
		weights[j] /= total
	}
	return weights
}

// fetchBars pulls bars one asset at a time. Failed assets are logged and
// left out; the series builder decides whether enough remains.
func (s *Service) fetchBars(ctx context.Context, log zerolog.Logger, symbols []domain.Symbol, days int) map[domain.Symbol][]domain.Bar {
	timer := utils.NewTimer("fetch", log)
	defer timer.Stop()

	bars := make(map[domain.Symbol][]domain.Bar, len(symbols))
	for _, symbol := range symbols {
		b, err := s.market.GetDailyBars(ctx, symbol, days)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to fetch bars, skipping asset")
			continue
		}
		bars[symbol] = b
	}
	return bars
}
