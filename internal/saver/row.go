package saver

import (
	"time"

	"TickerLens/internal/calculator"
	"TickerLens/internal/model"
)

// Row is one bar of one instrument in long format.
type Row struct {
	Symbol string  `json:"symbol" parquet:"symbol"`
	Date   string  `json:"date" parquet:"date"`
	Open   float64 `json:"open" parquet:"open"`
	High   float64 `json:"high" parquet:"high"`
	Low    float64 `json:"low" parquet:"low"`
	Close  float64 `json:"close" parquet:"close"`
	Volume float64 `json:"volume" parquet:"volume"`
	MA50   float64 `json:"ma50" parquet:"ma50"`
	MA200  float64 `json:"ma200" parquet:"ma200"`
}

// Rows flattens the visible part of every column, in column order. Moving
// averages are computed over the full series before the zoom is applied.
func Rows(v model.ViewState) []Row {
	var rows []Row
	for _, c := range v.Columns {
		ma50 := calculator.CalculateMA50(c.Series)
		ma200 := calculator.CalculateMA200(c.Series)
		for i, b := range c.Series {
			if v.Zoom != nil && !inZoom(b.Time, v.Zoom) {
				continue
			}
			rows = append(rows, Row{
				Symbol: c.Symbol,
				Date:   b.Time.Format(time.DateOnly),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
				Volume: b.Volume,
				MA50:   ma50[i],
				MA200:  ma200[i],
			})
		}
	}
	return rows
}

func inZoom(t time.Time, z *model.Zoom) bool {
	if !z.From.IsZero() && t.Before(z.From) {
		return false
	}
	if !z.To.IsZero() && t.After(z.To) {
		return false
	}
	return true
}
