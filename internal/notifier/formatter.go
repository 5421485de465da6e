package notifier

import (
	"fmt"
	"strings"
	"time"

	"TickerLens/internal/calculator"
	"TickerLens/internal/model"
	"TickerLens/internal/recorder"
)

// FormatView renders the view header and one card line per column.
func FormatView(v model.ViewState) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("📊 TickerLens | %s → %s · %s (v%d)\n",
		v.Window.Start, v.Window.End, v.Window.Interval.Label(), v.Version))
	if v.Zoom != nil {
		b.WriteString(fmt.Sprintf("🔍 Zoom: %s → %s\n", zoomBound(v.Zoom.From), zoomBound(v.Zoom.To)))
	}
	if len(v.Columns) == 0 {
		b.WriteString("\n(no instruments displayed)\n")
		return b.String()
	}
	b.WriteString("\n")
	for _, st := range calculator.ViewStats(v) {
		b.WriteString(FormatCard(st))
		b.WriteString("\n")
	}
	rows, cols := calculator.GridLayout(len(v.Columns))
	b.WriteString(fmt.Sprintf("\n%d instruments (%d×%d grid)\n", len(v.Columns), rows, cols))
	return b.String()
}

// FormatCard renders one column's card on a single line.
func FormatCard(st model.ColumnStats) string {
	return fmt.Sprintf("%-8s %12s  %s  hi %s lo %s  MA50 %s MA200 %s  vol %s",
		st.Symbol,
		calculator.FormatMoney(st.Last),
		calculator.FormatDelta(st.Delta),
		calculator.FormatMoney(st.High),
		calculator.FormatMoney(st.Low),
		calculator.FormatMoney(st.MA50),
		calculator.FormatMoney(st.MA200),
		calculator.FormatCompact(st.Volume.Mean),
	)
}

// FormatHistory renders recent fetch batches, newest first.
func FormatHistory(events []recorder.FetchEvent) string {
	if len(events) == 0 {
		return "No fetches recorded."
	}
	var b strings.Builder
	b.WriteString("🗂 Recent fetches\n\n")
	for _, e := range events {
		mark := "✅"
		if e.Status != "success" {
			mark = "❌"
		}
		if e.Stale {
			mark = "⏭"
		}
		b.WriteString(fmt.Sprintf("%s #%d %s %s [%s] %s\n",
			mark, e.BatchID, e.At.Format("2006-01-02 15:04"), e.Window, strings.Join(e.Symbols, ","),
			e.Duration.Round(time.Millisecond)))
		if e.Error != "" {
			b.WriteString("   " + e.Error + "\n")
		}
	}
	return b.String()
}

func zoomBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}
