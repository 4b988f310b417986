// Package domain provides core domain models and types.
package domain

import (
	"math"
	"time"
)

// Symbol identifies an asset (e.g. "BTC"). Symbols are upper-case and
// unique within a portfolio.
type Symbol = string

// Bar is one daily price bar for one asset.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	Close float64   `json:"close"`
}

// HasValues reports whether the bar carries real prices. Placeholder
// bars produced by a failed fetch keep the schema but hold NaN.
func (b Bar) HasValues() bool {
	return !math.IsNaN(b.Open) && !math.IsNaN(b.Close)
}

// DailyReturn returns (close - open) / open, or NaN when undefined.
func (b Bar) DailyReturn() float64 {
	if !b.HasValues() || b.Open == 0 {
		return math.NaN()
	}
	return (b.Close - b.Open) / b.Open
}

// Coin describes a coin ranked by market capitalisation.
type Coin struct {
	Symbol    Symbol  `json:"symbol"`
	FullName  string  `json:"full_name"`
	MarketCap float64 `json:"market_cap"`
}
