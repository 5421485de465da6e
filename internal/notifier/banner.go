package notifier

import (
	"fmt"
	"strings"

	"TickerLens/internal/executor"
	"TickerLens/internal/model"
	"TickerLens/internal/reconcile"
)

// Level is the severity of a banner.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Banner is a short user-facing status message.
type Banner struct {
	Level Level
	Text  string
}

func (b Banner) String() string { return fmt.Sprintf("[%s] %s", b.Level, b.Text) }

// FetchStartedBanner announces a dispatched batch.
func FetchStartedBanner(b executor.Batch) Banner {
	return Banner{Level: LevelInfo, Text: "Fetching data for " + strings.Join(b.Symbols, ", ")}
}

// ViewChangeBanners describes the change from prev to next: removed
// columns, added columns, or a reload after a range or interval change.
func ViewChangeBanners(prev, next model.ViewState) []Banner {
	var out []Banner
	var removed, added []string
	for _, c := range prev.Columns {
		if !next.Has(c.Symbol) && prev.Window == next.Window {
			removed = append(removed, c.Symbol)
		}
	}
	for _, c := range next.Columns {
		if !prev.Has(c.Symbol) || prev.Window != next.Window {
			added = append(added, c.Symbol)
		}
	}
	if len(removed) > 0 {
		out = append(out, Banner{Level: LevelSuccess, Text: hasBeen(removed, "removed")})
	}
	if len(added) == 0 {
		return out
	}
	if prev.Window != next.Window || len(prev.Columns) == 0 {
		out = append(out, Banner{Level: LevelSuccess, Text: "Historical data has been updated"})
	} else {
		out = append(out, Banner{Level: LevelSuccess, Text: hasBeen(added, "added")})
	}
	return out
}

// OutcomeBanner returns the banner for a finished batch, if any. Successful
// merges are announced by the view change instead.
func OutcomeBanner(o reconcile.FetchOutcome) (Banner, bool) {
	if o.Stale {
		return Banner{}, false
	}
	switch o.Status {
	case reconcile.StatusNoData:
		return Banner{Level: LevelError, Text: noDataText(o)}, true
	case reconcile.StatusFailure, reconcile.StatusPartial:
		return Banner{
			Level: LevelError,
			Text:  "Failed to update historical data for " + strings.Join(o.FailedSymbols(), ", "),
		}, true
	}
	return Banner{}, false
}

func noDataText(o reconcile.FetchOutcome) string {
	syms := o.FailedSymbols()
	if len(syms) == 0 {
		syms = o.Symbols
	}
	return fmt.Sprintf("No data found for %s from %s to %s", strings.Join(syms, ", "), o.Window.Start, o.Window.End)
}

func hasBeen(symbols []string, verb string) string {
	if len(symbols) == 1 {
		return symbols[0] + " has been " + verb
	}
	return strings.Join(symbols, ", ") + " have been " + verb
}
