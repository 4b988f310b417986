package series

import (
	"math"
	"testing"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func bar(n int, open, close float64) domain.Bar {
	return domain.Bar{Time: day(n), Open: open, Close: close}
}

func TestBuildReturnTable_DailyReturns(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	table, err := b.BuildReturnTable([]domain.Symbol{"BTC"}, map[domain.Symbol][]domain.Bar{
		"BTC": {bar(0, 100, 110), bar(1, 110, 99)},
	})
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	assert.Equal(t, []domain.Symbol{"BTC"}, table.Symbols)
	assert.InDelta(t, 0.1, table.Rows[0][0], 1e-12)
	assert.InDelta(t, -0.1, table.Rows[1][0], 1e-12)
}

func TestBuildReturnTable_ForwardFillsDisjointGaps(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	// BTC misses day 2, ETH misses days 0 and 3
	table, err := b.BuildReturnTable([]domain.Symbol{"BTC", "ETH"}, map[domain.Symbol][]domain.Bar{
		"BTC": {bar(0, 100, 101), bar(1, 100, 102), bar(3, 100, 104)},
		"ETH": {bar(1, 10, 9), bar(2, 10, 8)},
	})
	require.NoError(t, err)

	require.Equal(t, 4, table.Len())
	for i := 1; i < len(table.Dates); i++ {
		assert.True(t, table.Dates[i].After(table.Dates[i-1]))
	}

	// Leading gap stays missing
	assert.True(t, math.IsNaN(table.Rows[0][1]))
	assert.Equal(t, 1, table.FirstCompleteRow())

	// BTC day 2 carries day 1, ETH day 3 carries day 2
	assert.InDelta(t, 0.02, table.Rows[2][0], 1e-12)
	assert.InDelta(t, -0.2, table.Rows[3][1], 1e-12)

	trimmed := table.TrimLeadingGaps()
	assert.Equal(t, 3, trimmed.Len())
	assert.False(t, trimmed.HasGaps())
}

func TestBuildReturnTable_PlaceholderSeriesIsSkipped(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	table, err := b.BuildReturnTable([]domain.Symbol{"BTC", "DOGE", "ETH"}, map[domain.Symbol][]domain.Bar{
		"BTC":  {bar(0, 100, 101)},
		"DOGE": {{Time: day(0), Open: math.NaN(), Close: math.NaN()}},
		"ETH":  {bar(0, 10, 11)},
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.Symbol{"BTC", "ETH"}, table.Symbols)
}

func TestBuildReturnTable_NoMarketData(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	_, err := b.BuildReturnTable([]domain.Symbol{"BTC", "ETH"}, map[domain.Symbol][]domain.Bar{
		"BTC": nil,
		"ETH": {{Time: day(0), Open: math.NaN(), Close: math.NaN()}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoMarketData)
}

func TestBuildCloseTable_LogReturns(t *testing.T) {
	b := NewBuilder(zerolog.Nop())

	table, err := b.BuildCloseTable([]domain.Symbol{"BTC", "ETH"}, map[domain.Symbol][]domain.Bar{
		"BTC": {bar(0, 1, 100), bar(1, 1, 110), bar(2, 1, 121)},
		"ETH": {bar(0, 1, 50), bar(1, 1, 50), bar(2, 1, 25)},
	})
	require.NoError(t, err)

	returns := table.LogReturns()
	require.Equal(t, 2, returns.Len())
	assert.Equal(t, day(1), returns.Dates[0])
	assert.InDelta(t, math.Log(1.1), returns.Rows[0][0], 1e-12)
	assert.InDelta(t, math.Log(1.1), returns.Rows[1][0], 1e-12)
	assert.InDelta(t, 0.0, returns.Rows[0][1], 1e-12)
	assert.InDelta(t, math.Log(0.5), returns.Rows[1][1], 1e-12)

	m := returns.Matrix()
	r, c := m.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
}

func TestTable_TailAndLastRow(t *testing.T) {
	table := &Table{
		Dates:   []time.Time{day(0), day(1), day(2)},
		Symbols: []domain.Symbol{"BTC"},
		Rows:    [][]float64{{1}, {2}, {3}},
	}

	assert.Equal(t, [][]float64{{2}, {3}}, table.Tail(2))
	assert.Len(t, table.Tail(10), 3)
	assert.Equal(t, []float64{3}, table.LastRow())

	empty := &Table{}
	assert.Nil(t, empty.LastRow())
	assert.Nil(t, empty.Matrix())
}
