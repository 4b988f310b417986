// Package handlers provides HTTP handlers for trend prediction and
// portfolio optimization.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/advisor"
	"github.com/cryptosage/backend/internal/modules/optimization"
	"github.com/cryptosage/backend/internal/utils"
	"github.com/rs/zerolog"
)

// Advisor runs the prediction and optimization pipelines.
type Advisor interface {
	Recommend(ctx context.Context, holdings domain.Holdings) (*advisor.Recommendation, error)
	Optimize(ctx context.Context, holdings domain.Holdings) (*advisor.OptimizationReport, error)
	DefaultHoldings() domain.Holdings
}

// Handler handles advisor HTTP requests
type Handler struct {
	advisor Advisor
	store   domain.PortfolioStore
	aliases map[string]string
	log     zerolog.Logger
}

// NewHandler creates a new advisor handler
func NewHandler(advisor Advisor, store domain.PortfolioStore, aliases map[string]string, log zerolog.Logger) *Handler {
	return &Handler{
		advisor: advisor,
		store:   store,
		aliases: aliases,
		log:     log.With().Str("handler", "advisor").Logger(),
	}
}

type predictRequest struct {
	Email string `json:"email"`
}

// TrendRow is one row of the aligned return table.
type TrendRow struct {
	Date    string     `json:"date"`
	Returns []*float64 `json:"returns"`
}

// PredictResponse is the trend prediction payload.
type PredictResponse struct {
	Message    string          `json:"message"`
	RunID      string          `json:"run_id"`
	Portfolio  domain.Holdings `json:"portfolio"`
	Symbols    []string        `json:"symbols"`
	Predicted  []*float64      `json:"predicted"`
	Current    []*float64      `json:"current"`
	BestCoin   string          `json:"best_coin"`
	AIInsights []string        `json:"ai_insights"`
	Reliable   bool            `json:"reliable"`
	TrendTable []TrendRow      `json:"trend_table"`
	TopMovers  []advisor.Mover `json:"top_movers"`
}

// HandlePredict forecasts next-day returns for the user's stored
// portfolio, or for the default portfolio when none is stored.
func (h *Handler) HandlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	message := "Prediction for stored portfolio"
	holdings, err := h.store.GetHoldings(r.Context(), req.Email)
	switch {
	case errors.Is(err, domain.ErrUserNotFound), err == nil && len(holdings) == 0:
		holdings = h.advisor.DefaultHoldings()
		message = "No portfolio found for user, using default portfolio"
	case errors.Is(err, domain.ErrInvalidEmail):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.log.Error().Err(err).Msg("Failed to load portfolio")
		h.writeError(w, r, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	holdings = holdings.Normalize(h.aliases)
	if err := holdings.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.advisor.Recommend(r.Context(), holdings)
	if err != nil {
		h.writeAdvisorError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, NewPredictResponse(message, holdings, rec))
}

// NewPredictResponse shapes a recommendation for the wire. Undefined
// values become null.
func NewPredictResponse(message string, holdings domain.Holdings, rec *advisor.Recommendation) PredictResponse {
	resp := PredictResponse{
		Message:    message,
		RunID:      rec.RunID,
		Portfolio:  holdings,
		Symbols:    rec.Forecast.Symbols,
		Predicted:  finiteSlice(rec.Forecast.Predicted),
		Current:    finiteSlice(rec.Forecast.Current),
		BestCoin:   rec.Forecast.Best,
		AIInsights: rec.Insights,
		Reliable:   rec.Forecast.Reliable,
		TrendTable: make([]TrendRow, 0, rec.TrendTable.Len()),
		TopMovers:  rec.TopMovers,
	}
	for i, row := range rec.TrendTable.Rows {
		resp.TrendTable = append(resp.TrendTable, TrendRow{
			Date:    rec.TrendTable.Dates[i].Format(time.DateOnly),
			Returns: finiteSlice(row),
		})
	}
	if resp.TopMovers == nil {
		resp.TopMovers = []advisor.Mover{}
	}

	return resp
}

type optimizeRequest struct {
	Portfolio domain.Holdings `json:"portfolio"`
}

// MetricsResponse carries annualized metrics; null marks an undefined value.
type MetricsResponse struct {
	Return     *float64 `json:"return"`
	Volatility *float64 `json:"volatility"`
	Sharpe     *float64 `json:"sharpe"`
}

// OptimizeResponse is the optimization payload.
type OptimizeResponse struct {
	RunID         string          `json:"run_id"`
	Portfolio     domain.Holdings `json:"portfolio"`
	Symbols       []string        `json:"symbols"`
	Optimized     bool            `json:"optimized"`
	Reason        string          `json:"reason,omitempty"`
	SharpeWeights []float64       `json:"sharpe_weights"`
	SharpeMetrics MetricsResponse `json:"sharpe_metrics"`
	MinVolWeights []float64       `json:"min_vol_weights"`
	MinVolMetrics MetricsResponse `json:"min_vol_metrics"`
}

// HandleOptimize computes max-Sharpe and min-volatility weights for the
// submitted holdings.
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	holdings := req.Portfolio.Normalize(h.aliases)
	if err := holdings.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.advisor.Optimize(r.Context(), holdings)
	if err != nil {
		h.writeAdvisorError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, NewOptimizeResponse(holdings, report))
}

// NewOptimizeResponse shapes an optimization report for the wire.
func NewOptimizeResponse(holdings domain.Holdings, report *advisor.OptimizationReport) OptimizeResponse {
	return OptimizeResponse{
		RunID:         report.RunID,
		Portfolio:     holdings,
		Symbols:       report.Symbols,
		Optimized:     report.Optimized,
		Reason:        report.Reason,
		SharpeWeights: report.MaxSharpe.Weights,
		SharpeMetrics: metricsResponse(report.MaxSharpe.Metrics),
		MinVolWeights: report.MinVolatility.Weights,
		MinVolMetrics: metricsResponse(report.MinVolatility.Metrics),
	}
}

func metricsResponse(m optimization.Metrics) MetricsResponse {
	return MetricsResponse{
		Return:     utils.Finite(m.AnnualReturn),
		Volatility: utils.Finite(m.AnnualVolatility),
		Sharpe:     utils.Finite(m.SharpeRatio),
	}
}

func finiteSlice(values []float64) []*float64 {
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = utils.Finite(v)
	}
	return out
}

func (h *Handler) writeAdvisorError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNoMarketData):
		h.log.Warn().Err(err).Msg("No market data for request")
		h.writeError(w, r, http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrInvalidHoldings):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientHistory):
		h.log.Warn().Err(err).Msg("Market data too sparse for request")
		h.writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Advisor request failed")
		h.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.writeJSON(w, r, status, map[string]string{"error": message})
}
