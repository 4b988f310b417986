package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/advisor"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/cryptosage/backend/internal/modules/trend"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvisor struct {
	gotHoldings domain.Holdings
	err         error
}

func (f *fakeAdvisor) DefaultHoldings() domain.Holdings {
	return domain.UniformHoldings([]domain.Symbol{"BTC", "ETH"}, 10)
}

func (f *fakeAdvisor) Recommend(_ context.Context, holdings domain.Holdings) (*advisor.Recommendation, error) {
	f.gotHoldings = holdings
	if f.err != nil {
		return nil, f.err
	}
	table := &series.Table{
		Dates:   []time.Time{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		Symbols: holdings.Symbols(),
		Rows:    [][]float64{make([]float64, len(holdings))},
	}
	predicted := make([]float64, len(holdings))
	predicted[0] = 0.01
	forecast := &trend.Forecast{
		Symbols:   holdings.Symbols(),
		Predicted: predicted,
		Current:   make([]float64, len(holdings)),
		Best:      holdings[0].Symbol,
		Reliable:  true,
	}
	return &advisor.Recommendation{
		RunID:      "run-1",
		Holdings:   holdings,
		Forecast:   forecast,
		Insights:   trend.Insights(forecast),
		TrendTable: table,
	}, nil
}

func (f *fakeAdvisor) Optimize(_ context.Context, holdings domain.Holdings) (*advisor.OptimizationReport, error) {
	f.gotHoldings = holdings
	if f.err != nil {
		return nil, f.err
	}
	return &advisor.OptimizationReport{
		RunID:    "run-2",
		Symbols:  holdings.Symbols(),
		Holdings: holdings,
		MaxSharpe: advisor.Allocation{
			Weights: []float64{0.7, 0.3},
			Metrics: optimization.Metrics{AnnualReturn: 0.5, AnnualVolatility: 0.4, SharpeRatio: 1.25},
		},
		MinVolatility: advisor.Allocation{
			Weights: []float64{0.2, 0.8},
			Metrics: optimization.Metrics{AnnualReturn: 0.1, AnnualVolatility: 0, SharpeRatio: math.NaN()},
		},
		Optimized: true,
	}, nil
}

type fakeStore struct {
	holdings map[string]domain.Holdings
}

func (s *fakeStore) GetHoldings(_ context.Context, email string) (domain.Holdings, error) {
	if !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	h, ok := s.holdings[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return h, nil
}

func setup(adv Advisor) *chi.Mux {
	store := &fakeStore{holdings: map[string]domain.Holdings{
		"alice@example.com": {{Symbol: "xxbt", Quantity: 2}, {Symbol: "SOL", Quantity: 3}},
	}}
	router := chi.NewRouter()
	NewHandler(adv, store, map[string]string{"XXBT": "BTC"}, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func post(router http.Handler, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
	return rec
}

func TestHandlePredict_StoredPortfolio(t *testing.T) {
	adv := &fakeAdvisor{}
	rec := post(setup(adv), "/portfolio/", `{"email":"alice@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, domain.Holdings{{Symbol: "BTC", Quantity: 2}, {Symbol: "SOL", Quantity: 3}}, adv.gotHoldings)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Prediction for stored portfolio", resp.Message)
	assert.Equal(t, "BTC", resp.BestCoin)
	assert.Equal(t, []string{"BTC", "SOL"}, resp.Symbols)
	assert.True(t, resp.Reliable)
	require.Len(t, resp.TrendTable, 1)
	assert.Equal(t, "2024-03-01", resp.TrendTable[0].Date)
	assert.Len(t, resp.AIInsights, 2)
	assert.NotNil(t, resp.TopMovers)
}

func TestHandlePredict_DefaultPortfolio(t *testing.T) {
	adv := &fakeAdvisor{}
	rec := post(setup(adv), "/portfolio/", `{"email":"new@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PredictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "No portfolio found for user, using default portfolio", resp.Message)
	assert.Equal(t, []string{"BTC", "ETH"}, adv.gotHoldings.Symbols())
}

func TestHandlePredict_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"bad body", nil, `nope`, http.StatusBadRequest},
		{"bad email", nil, `{"email":"nope"}`, http.StatusBadRequest},
		{"no market data", fmt.Errorf("build: %w", domain.ErrNoMarketData), `{"email":"alice@example.com"}`, http.StatusBadGateway},
		{"gap in window", fmt.Errorf("predict: %w", domain.ErrInsufficientHistory), `{"email":"alice@example.com"}`, http.StatusUnprocessableEntity},
		{"unexpected", fmt.Errorf("boom"), `{"email":"alice@example.com"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(setup(&fakeAdvisor{err: tt.err}), "/portfolio/", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestHandleOptimize(t *testing.T) {
	adv := &fakeAdvisor{}
	rec := post(setup(adv), "/optimize/", `{"portfolio":{"ETH":5,"xxbt":1}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, []domain.Symbol{"ETH", "BTC"}, adv.gotHoldings.Symbols())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["optimized"])
	assert.Equal(t, []interface{}{0.7, 0.3}, resp["sharpe_weights"])
	assert.Equal(t, map[string]interface{}{"return": 0.5, "volatility": 0.4, "sharpe": 1.25}, resp["sharpe_metrics"])

	// undefined Sharpe ratio is null on the wire
	minVol := resp["min_vol_metrics"].(map[string]interface{})
	assert.Contains(t, minVol, "sharpe")
	assert.Nil(t, minVol["sharpe"])
}

func TestHandleOptimize_InvalidHoldings(t *testing.T) {
	router := setup(&fakeAdvisor{})

	for _, body := range []string{
		`{"portfolio":{}}`,
		`{"portfolio":{"BTC":0}}`,
		`{"portfolio":{"BTC":1,"XXBT":2}}`,
		`{"portfolio":["BTC"]}`,
	} {
		rec := post(router, "/optimize/", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}
