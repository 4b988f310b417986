package series

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/rs/zerolog"
)

// Builder merges per-asset bars into aligned tables.
type Builder struct {
	log zerolog.Logger
}

// NewBuilder creates a new series builder.
func NewBuilder(log zerolog.Logger) *Builder {
	return &Builder{
		log: log.With().Str("component", "series_builder").Logger(),
	}
}

// BuildReturnTable computes the daily return (close-open)/open per bar,
// merges the assets on the union of bar timestamps and forward-fills
// gaps. Columns follow symbols order; assets without any usable bar are
// left out. Returns domain.ErrNoMarketData when no asset has data.
func (b *Builder) BuildReturnTable(symbols []domain.Symbol, bars map[domain.Symbol][]domain.Bar) (*Table, error) {
	return b.build(symbols, bars, domain.Bar.DailyReturn)
}

// BuildCloseTable is BuildReturnTable over close prices. Non-positive
// closes count as missing.
func (b *Builder) BuildCloseTable(symbols []domain.Symbol, bars map[domain.Symbol][]domain.Bar) (*Table, error) {
	return b.build(symbols, bars, func(bar domain.Bar) float64 {
		if !bar.HasValues() || bar.Close <= 0 {
			return math.NaN()
		}
		return bar.Close
	})
}

func (b *Builder) build(
	symbols []domain.Symbol,
	bars map[domain.Symbol][]domain.Bar,
	value func(domain.Bar) float64,
) (*Table, error) {
	// symbol -> unix time -> value
	valuesBySymbol := make(map[domain.Symbol]map[int64]float64)
	timeSet := make(map[int64]time.Time)
	var kept []domain.Symbol

	for _, symbol := range symbols {
		values := make(map[int64]float64)
		for _, bar := range bars[symbol] {
			v := value(bar)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			key := bar.Time.Unix()
			values[key] = v
			timeSet[key] = bar.Time.UTC()
		}
		if len(values) == 0 {
			b.log.Warn().Str("symbol", symbol).Msg("No usable bars, dropping asset from table")
			continue
		}
		valuesBySymbol[symbol] = values
		kept = append(kept, symbol)
	}

	if len(kept) == 0 {
		b.log.Error().Int("requested", len(symbols)).Msg("No market data retrieved for any asset")
		return nil, fmt.Errorf("%w: none of %d assets produced a series", domain.ErrNoMarketData, len(symbols))
	}

	keys := make([]int64, 0, len(timeSet))
	for k := range timeSet {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	table := &Table{
		Dates:   make([]time.Time, len(keys)),
		Symbols: kept,
		Rows:    make([][]float64, len(keys)),
	}
	for i, k := range keys {
		table.Dates[i] = timeSet[k]
		row := make([]float64, len(kept))
		for j, symbol := range kept {
			if v, ok := valuesBySymbol[symbol][k]; ok {
				row[j] = v
			} else {
				row[j] = math.NaN()
			}
		}
		table.Rows[i] = row
	}

	filled := forwardFill(table)
	if filled > 0 {
		b.log.Debug().Int("filled_values", filled).Msg("Forward-filled missing values")
	}

	b.log.Debug().
		Int("rows", table.Len()).
		Int("assets", table.Width()).
		Msg("Built aligned table")

	return table, nil
}

// forwardFill replaces a missing value with the most recent prior value
// in the same column. Leading gaps stay missing. Returns the number of
// values filled.
func forwardFill(t *Table) int {
	filled := 0
	for j := range t.Symbols {
		lastValid := math.NaN()
		for i := range t.Rows {
			if math.IsNaN(t.Rows[i][j]) {
				if !math.IsNaN(lastValid) {
					t.Rows[i][j] = lastValid
					filled++
				}
			} else {
				lastValid = t.Rows[i][j]
			}
		}
	}
	return filled
}
