package advisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarket struct {
	bars map[domain.Symbol][]domain.Bar
}

func (f *fakeMarket) GetDailyBars(_ context.Context, symbol domain.Symbol, days int) ([]domain.Bar, error) {
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, domain.ErrNoData
	}
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	return bars, nil
}

type fakeRanker struct {
	coins []domain.Coin
	err   error
}

func (f *fakeRanker) GetTopCoins(_ context.Context, limit int) ([]domain.Coin, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.coins) > limit {
		return f.coins[:limit], nil
	}
	return f.coins, nil
}

// genBars chains bars so each open is the previous close and each bar's
// return is drawn from [lo, hi).
func genBars(rng *rand.Rand, days int, price, lo, hi float64) []domain.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, days)
	for i := range bars {
		r := lo + (hi-lo)*rng.Float64()
		bars[i] = domain.Bar{Time: start.AddDate(0, 0, i), Open: price, Close: price * (1 + r)}
		price = bars[i].Close
	}
	return bars
}

type fakeOptimizer struct {
	err error
}

func (f *fakeOptimizer) Optimize(*optimization.ReturnSample) (*optimization.Report, error) {
	return nil, f.err
}

func newTestService(market domain.MarketDataSource, ranker domain.CoinRanker) *Service {
	return newTestServiceWithOptimizer(market, ranker, optimization.NewMVOptimizer(zerolog.Nop()))
}

func newTestServiceWithOptimizer(market domain.MarketDataSource, ranker domain.CoinRanker, optimizer PortfolioOptimizer) *Service {
	log := zerolog.Nop()
	trainer := trend.NewTrainer(trend.TrainerConfig{
		SequenceLength: 5,
		Epochs:         20,
		BatchSize:      8,
		HiddenUnits:    8,
		Dropout:        0.2,
		LearningRate:   0.01,
		Seed:           1,
	}, log)
	return NewService(
		market,
		ranker,
		series.NewBuilder(log),
		trainer,
		optimizer,
		Config{
			TrendLookbackDays: 40,
			PriceLookbackDays: 30,
			TopMoversLimit:    2,
			DefaultPortfolio:  []domain.Symbol{"BTC", "ETH", "LTC", "XRP", "ADA"},
		},
		log,
	)
}

func TestRecommend_PicksUptrendAsset(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{
		"BTC": genBars(rng, 40, 40000, 0.02, 0.03),
		"ETH": genBars(rng, 40, 2500, -0.03, -0.02),
	}}
	ranker := &fakeRanker{coins: []domain.Coin{{Symbol: "BTC", FullName: "Bitcoin"}, {Symbol: "SOL", FullName: "Solana"}}}
	svc := newTestService(market, ranker)

	holdings := domain.Holdings{{Symbol: "BTC", Quantity: 10}, {Symbol: "DOGE", Quantity: 5}, {Symbol: "ETH", Quantity: 10}}
	rec, err := svc.Recommend(context.Background(), holdings)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.RunID)
	assert.Equal(t, []domain.Symbol{"BTC", "ETH"}, rec.Forecast.Symbols)
	require.Len(t, rec.Forecast.Predicted, 2)
	assert.Equal(t, "BTC", rec.Forecast.Best)
	assert.True(t, rec.Forecast.Reliable)
	assert.Len(t, rec.Insights, 2)
	assert.Equal(t, 40, rec.TrendTable.Len())

	// SOL has no history in the fake market and is omitted
	require.Len(t, rec.TopMovers, 1)
	mover := rec.TopMovers[0]
	assert.Equal(t, "BTC", mover.Symbol)
	require.NotNil(t, mover.DayChangePct)
	require.NotNil(t, mover.WeekChangePct)
	assert.Greater(t, *mover.DayChangePct, 2.0)
	assert.Greater(t, *mover.WeekChangePct, *mover.DayChangePct)
}

func TestRecommend_NoMarketData(t *testing.T) {
	svc := newTestService(&fakeMarket{}, nil)

	_, err := svc.Recommend(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestRecommend_InsufficientHistoryDegrades(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{
		"BTC": genBars(rng, 4, 40000, 0.01, 0.02),
		"ETH": genBars(rng, 4, 2500, -0.02, -0.01),
	}}
	ranker := &fakeRanker{err: errors.New("rate limited")}
	svc := newTestService(market, ranker)

	rec, err := svc.Recommend(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 10}, {Symbol: "ETH", Quantity: 10}})
	require.NoError(t, err)

	assert.False(t, rec.Forecast.Reliable)
	assert.Len(t, rec.Forecast.Predicted, 2)
	assert.Empty(t, rec.TopMovers)
}

func TestOptimize(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{
		"BTC": genBars(rng, 30, 40000, -0.03, 0.04),
		"ETH": genBars(rng, 30, 2500, -0.05, 0.05),
		"XRP": genBars(rng, 30, 0.5, -0.04, 0.03),
	}}
	svc := newTestService(market, nil)

	holdings := domain.Holdings{{Symbol: "BTC", Quantity: 1}, {Symbol: "ETH", Quantity: 10}, {Symbol: "XRP", Quantity: 1000}}
	report, err := svc.Optimize(context.Background(), holdings)
	require.NoError(t, err)

	assert.True(t, report.Optimized)
	assert.Equal(t, []domain.Symbol{"BTC", "ETH", "XRP"}, report.Symbols)
	for _, alloc := range []Allocation{report.MaxSharpe, report.MinVolatility} {
		require.Len(t, alloc.Weights, 3)
		sum := 0.0
		for _, w := range alloc.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			assert.LessOrEqual(t, w, 1.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
		assert.GreaterOrEqual(t, alloc.Metrics.AnnualVolatility, 0.0)
	}
}

func TestOptimize_SingleAsset(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{"BTC": genBars(rng, 30, 40000, -0.02, 0.03)}}
	svc := newTestService(market, nil)

	report, err := svc.Optimize(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 10}})
	require.NoError(t, err)

	assert.True(t, report.Optimized)
	assert.Equal(t, []float64{1.0}, report.MaxSharpe.Weights)
	assert.Equal(t, []float64{1.0}, report.MinVolatility.Weights)
}

func TestOptimize_ShortHistoryReportsRawWeights(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{
		"BTC": {{Time: start, Open: 100, Close: 100}, {Time: start.AddDate(0, 0, 1), Open: 100, Close: 300}},
		"ETH": {{Time: start, Open: 10, Close: 10}, {Time: start.AddDate(0, 0, 1), Open: 10, Close: 10}},
	}}
	svc := newTestService(market, nil)

	report, err := svc.Optimize(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 1}, {Symbol: "ETH", Quantity: 10}})
	require.NoError(t, err)

	assert.False(t, report.Optimized)
	assert.NotEmpty(t, report.Reason)
	// 1 x 300 vs 10 x 10
	assert.InDeltaSlice(t, []float64{0.75, 0.25}, report.MaxSharpe.Weights, 1e-12)
	assert.Equal(t, report.MaxSharpe.Weights, report.MinVolatility.Weights)
	assert.True(t, math.IsNaN(report.MaxSharpe.Metrics.SharpeRatio))
}

func TestOptimize_NonConvergenceReportsRawWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	btc := genBars(rng, 30, 40000, -0.03, 0.04)
	eth := genBars(rng, 30, 2500, -0.05, 0.05)
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{"BTC": btc, "ETH": eth}}
	optimizer := &fakeOptimizer{err: fmt.Errorf("max_sharpe: %w", domain.ErrOptimizationNonConvergence)}
	svc := newTestServiceWithOptimizer(market, nil, optimizer)

	holdings := domain.Holdings{{Symbol: "BTC", Quantity: 2}, {Symbol: "ETH", Quantity: 10}}
	report, err := svc.Optimize(context.Background(), holdings)
	require.NoError(t, err)

	assert.False(t, report.Optimized)
	assert.Contains(t, report.Reason, domain.ErrOptimizationNonConvergence.Error())
	assert.Equal(t, []domain.Symbol{"BTC", "ETH"}, report.Symbols)

	btcValue := 2 * btc[len(btc)-1].Close
	ethValue := 10 * eth[len(eth)-1].Close
	want := []float64{btcValue / (btcValue + ethValue), ethValue / (btcValue + ethValue)}
	assert.InDeltaSlice(t, want, report.MaxSharpe.Weights, 1e-9)
	assert.Equal(t, report.MaxSharpe, report.MinVolatility)

	m := report.MaxSharpe.Metrics
	assert.False(t, m.Degenerate())
	assert.False(t, math.IsNaN(m.AnnualReturn))
	assert.Greater(t, m.AnnualVolatility, 0.0)
	assert.InDelta(t, m.AnnualReturn/m.AnnualVolatility, m.SharpeRatio, 1e-9)
}

func TestOptimize_OptimizerFailurePropagates(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	market := &fakeMarket{bars: map[domain.Symbol][]domain.Bar{
		"BTC": genBars(rng, 30, 40000, -0.03, 0.04),
		"ETH": genBars(rng, 30, 2500, -0.05, 0.05),
	}}
	svc := newTestServiceWithOptimizer(market, nil, &fakeOptimizer{err: errors.New("covariance not positive definite")})

	report, err := svc.Optimize(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 1}, {Symbol: "ETH", Quantity: 1}})
	require.Error(t, err)
	assert.Nil(t, report)
	assert.NotErrorIs(t, err, domain.ErrOptimizationNonConvergence)
	assert.Contains(t, err.Error(), "covariance not positive definite")
}

func TestOptimize_NoMarketData(t *testing.T) {
	svc := newTestService(&fakeMarket{}, nil)

	_, err := svc.Optimize(context.Background(), domain.Holdings{{Symbol: "BTC", Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestRawWeights(t *testing.T) {
	closes := &series.Table{
		Symbols: []domain.Symbol{"BTC", "ETH"},
		Rows:    [][]float64{{1, 1}, {200, math.NaN()}},
	}

	assert.Equal(t, []float64{1, 0}, RawWeights(domain.Holdings{{Symbol: "BTC", Quantity: 1}, {Symbol: "ETH", Quantity: 5}}, closes))
	assert.Equal(t, []float64{0.5, 0.5}, RawWeights(domain.Holdings{{Symbol: "XRP", Quantity: 1}}, closes))
}

func TestDefaultHoldings(t *testing.T) {
	svc := newTestService(&fakeMarket{}, nil)

	h := svc.DefaultHoldings()
	assert.Equal(t, []domain.Symbol{"BTC", "ETH", "LTC", "XRP", "ADA"}, h.Symbols())
	qty, ok := h.Quantity("LTC")
	assert.True(t, ok)
	assert.Equal(t, 10.0, qty)
}
