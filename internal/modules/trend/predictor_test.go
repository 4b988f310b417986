package trend

import (
	"math"
	"testing"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBestInvestment(t *testing.T) {
	symbols := []domain.Symbol{"BTC", "ETH", "XRP"}

	tests := []struct {
		name      string
		predicted []float64
		want      domain.Symbol
		wantIdx   int
	}{
		{"max wins", []float64{0.01, 0.03, 0.02}, "ETH", 1},
		{"tie goes to first column", []float64{0.02, 0.02, 0.01}, "BTC", 0},
		{"negative values", []float64{-0.05, -0.01, -0.02}, "ETH", 1},
		{"nan skipped", []float64{math.NaN(), -0.2, -0.3}, "ETH", 1},
		{"all nan", []float64{math.NaN(), math.NaN(), math.NaN()}, "", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, idx := BestInvestment(symbols, tt.predicted)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantIdx, idx)
		})
	}
}

func TestInsights(t *testing.T) {
	lines := Insights(&Forecast{
		Symbols:   []domain.Symbol{"BTC", "ETH"},
		Predicted: []float64{0.0123, -0.01},
		Current:   []float64{0.01, 0.02},
	})

	assert.Equal(t, []string{
		"📈 BTC: BUY (Predicted return: 0.0123, Current return: 0.0100)",
		"🚫 ETH: HOLD/SELL (Predicted return: -0.0100, Current return: 0.0200)",
	}, lines)
}
