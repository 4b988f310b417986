package formulas

import (
	"github.com/markcheno/go-talib"
)

// RateOfChange returns the latest period rate of change in percent,
// ((close / close[n-period]) - 1) * 100, or nil with insufficient data.
func RateOfChange(closes []float64, period int) *float64 {
	if period < 1 || len(closes) < period+1 {
		return nil
	}

	roc := talib.Roc(closes, period)
	if len(roc) == 0 {
		return nil
	}
	last := roc[len(roc)-1]
	if isNaN(last) {
		return nil
	}
	return &last
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
