// Package series aligns per-asset price bars into a single time-indexed
// table of returns or closes.
package series

import (
	"math"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/pkg/formulas"
	"gonum.org/v1/gonum/mat"
)

// Table is an aligned, time-indexed table with one column per asset.
// Rows[i][j] is the value of Symbols[j] at Dates[i]; NaN marks a
// missing value. Dates are strictly increasing.
type Table struct {
	Dates   []time.Time
	Symbols []domain.Symbol
	Rows    [][]float64
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Width returns the number of asset columns.
func (t *Table) Width() int {
	return len(t.Symbols)
}

// LastRow returns a copy of the most recent row, or nil for an empty table.
func (t *Table) LastRow() []float64 {
	if len(t.Rows) == 0 {
		return nil
	}
	return append([]float64(nil), t.Rows[len(t.Rows)-1]...)
}

// Tail returns the last n rows (all rows when the table is shorter).
func (t *Table) Tail(n int) [][]float64 {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[len(t.Rows)-n:]
}

// FirstCompleteRow returns the index of the first row without missing
// values, or -1 when every row has a gap.
func (t *Table) FirstCompleteRow() int {
	for i, row := range t.Rows {
		complete := true
		for _, v := range row {
			if math.IsNaN(v) {
				complete = false
				break
			}
		}
		if complete {
			return i
		}
	}
	return -1
}

// HasGaps reports whether any value is missing.
func (t *Table) HasGaps() bool {
	for _, row := range t.Rows {
		for _, v := range row {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// TrimLeadingGaps drops the rows before the first jointly observed
// timestamp. After forward fill that leaves a table without gaps.
func (t *Table) TrimLeadingGaps() *Table {
	start := t.FirstCompleteRow()
	if start < 0 {
		return &Table{Symbols: t.Symbols}
	}
	return &Table{
		Dates:   t.Dates[start:],
		Symbols: t.Symbols,
		Rows:    t.Rows[start:],
	}
}

// LogReturns treats the table as prices and returns ln(p_t / p_{t-1})
// for every consecutive pair of rows. The first row is dropped.
func (t *Table) LogReturns() *Table {
	out := &Table{Symbols: t.Symbols}
	for i := 1; i < len(t.Rows); i++ {
		row := make([]float64, len(t.Symbols))
		for j := range row {
			row[j] = formulas.LogReturn(t.Rows[i-1][j], t.Rows[i][j])
		}
		out.Dates = append(out.Dates, t.Dates[i])
		out.Rows = append(out.Rows, row)
	}
	return out
}

// Matrix returns the rows as a gonum matrix (rows are observations).
func (t *Table) Matrix() *mat.Dense {
	if len(t.Rows) == 0 || len(t.Symbols) == 0 {
		return nil
	}
	m := mat.NewDense(len(t.Rows), len(t.Symbols), nil)
	for i, row := range t.Rows {
		m.SetRow(i, row)
	}
	return m
}
