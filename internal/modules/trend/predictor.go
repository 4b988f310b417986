package trend

import (
	"fmt"
	"math"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/series"
)

// Forecast is a one-step-ahead prediction for every table column.
type Forecast struct {
	Symbols   []domain.Symbol
	Predicted []float64
	Current   []float64
	Best      domain.Symbol
	// Reliable is false when the forecast came from a placeholder model.
	Reliable bool
}

// Predict feeds the last W rows of the table, scaled with the fitted
// scaler, to the model and maps the output back to return units. A gap
// in those rows is an error; gaps are never filled in.
func Predict(fitted *FittedModel, table *series.Table) (*Forecast, error) {
	if fitted == nil || table == nil || table.Len() == 0 {
		return nil, fmt.Errorf("predict trend: %w", domain.ErrNoMarketData)
	}
	if fitted.Scaler.Width() != table.Width() || fitted.Model.Width() != table.Width() {
		return nil, fmt.Errorf("predict trend: model width %d does not match table width %d",
			fitted.Model.Width(), table.Width())
	}

	tail := table.Tail(fitted.SequenceLength)
	if anyNaN(tail) {
		return nil, fmt.Errorf("predict trend: input window has missing values: %w", domain.ErrInsufficientHistory)
	}
	window := fitted.Scaler.TransformRows(tail)

	predicted := fitted.Scaler.InverseTransform(fitted.Model.Predict(window))
	best, _ := BestInvestment(table.Symbols, predicted)

	return &Forecast{
		Symbols:   table.Symbols,
		Predicted: predicted,
		Current:   table.LastRow(),
		Best:      best,
		Reliable:  !fitted.Placeholder,
	}, nil
}

// BestInvestment returns the symbol with the highest predicted return
// and its index. Ties go to the earliest column; NaN never wins.
// Returns ("", -1) when nothing is comparable.
func BestInvestment(symbols []domain.Symbol, predicted []float64) (domain.Symbol, int) {
	best := -1
	for j, v := range predicted {
		if j >= len(symbols) || math.IsNaN(v) {
			continue
		}
		if best < 0 || v > predicted[best] {
			best = j
		}
	}
	if best < 0 {
		return "", -1
	}
	return symbols[best], best
}

// Insights renders one BUY or HOLD/SELL line per asset, comparing the
// predicted return with the latest observed one.
func Insights(f *Forecast) []string {
	lines := make([]string, 0, len(f.Symbols))
	for j, symbol := range f.Symbols {
		predicted, current := f.Predicted[j], f.Current[j]
		if predicted > current {
			lines = append(lines, fmt.Sprintf("📈 %s: BUY (Predicted return: %.4f, Current return: %.4f)", symbol, predicted, current))
		} else {
			lines = append(lines, fmt.Sprintf("🚫 %s: HOLD/SELL (Predicted return: %.4f, Current return: %.4f)", symbol, predicted, current))
		}
	}
	return lines
}
