package calculator

import (
	"fmt"
	"math"

	"TickerLens/internal/model"
)

// ColumnStats computes the card figures for one column. The delta and moving
// averages use the full series; range and volume use the bars inside zoom.
func ColumnStats(col model.Column, zoom *model.Zoom) (model.ColumnStats, error) {
	st := model.ColumnStats{Symbol: col.Symbol}
	n := len(col.Series)
	if n == 0 {
		return st, fmt.Errorf("%s: %w", col.Symbol, errNoBars)
	}
	st.Last = col.Series[n-1].Close
	st.Previous = st.Last
	if n > 1 {
		st.Previous = col.Series[n-2].Close
	}
	if st.Previous != 0 {
		st.Delta = st.Last/st.Previous - 1
	}
	st.MA50 = CalculateMA50(col.Series)[n-1]
	st.MA200 = CalculateMA200(col.Series)[n-1]

	visible := col.Series
	if zoom != nil {
		visible = col.Series.Between(zoom.From, zoom.To)
	}
	st.Bars = len(visible)
	if len(visible) == 0 {
		return st, nil
	}
	st.High, st.Low, _ = CalculateRange(visible)
	st.Position, _ = CalculatePosition(st.Last, st.High, st.Low)
	st.Volume, _ = CalculateVolume(visible)
	return st, nil
}

// ViewStats computes ColumnStats for every column of v in column order.
// Empty columns are skipped.
func ViewStats(v model.ViewState) []model.ColumnStats {
	out := make([]model.ColumnStats, 0, len(v.Columns))
	for _, c := range v.Columns {
		st, err := ColumnStats(c, v.Zoom)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// GridLayout returns the rows and columns of a card grid for n cards: four
// columns below 16 cards, otherwise a roughly square grid.
func GridLayout(n int) (rows, cols int) {
	if n <= 0 {
		return 0, 0
	}
	cols = 4
	if n >= 16 {
		cols = int(math.Sqrt(float64(n)))
	}
	rows = (n + cols - 1) / cols
	return rows, cols
}
