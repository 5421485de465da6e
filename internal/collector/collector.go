package collector

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"TickerLens/internal/logging"
	"TickerLens/internal/model"
)

// Variant returns the separator-substituted form of symbol ("BRK.B" ->
// "BRK-B") that some sources expect.
func Variant(symbol string) string {
	return strings.ReplaceAll(symbol, ".", "-")
}

// Collector retrieves one instrument's series and classifies failures. It
// hides symbol normalization from callers: results are always reported under
// the canonical symbol.
type Collector struct {
	Fetcher Fetcher
	log     zerolog.Logger

	// resolved remembers canonical symbols the source only knows by variant.
	resolved sync.Map // string -> string
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, log zerolog.Logger) *Collector {
	return &Collector{
		Fetcher: fetcher,
		log:     logging.Component(log, "collector").With().Str("source", fetcher.Name()).Logger(),
	}
}

// Retrieve fetches symbol's bars for w. Errors are *RetrievalError or
// *EmptyResultError.
func (c *Collector) Retrieve(ctx context.Context, symbol string, w model.Window) (model.Series, error) {
	upstream := symbol
	if v, ok := c.resolved.Load(symbol); ok {
		upstream = v.(string)
	}

	bars, err := c.Fetcher.FetchBars(ctx, upstream, w.Start, w.End, w.Interval)
	if errors.Is(err, ErrUnknownSymbol) && upstream == symbol {
		if variant := Variant(symbol); variant != symbol {
			rerr := &ResolutionError{Symbol: symbol, Variant: variant, Err: err}
			c.log.Debug().Err(rerr).Str("symbol", symbol).Msg("canonical symbol rejected, trying variant")
			bars, err = c.Fetcher.FetchBars(ctx, variant, w.Start, w.End, w.Interval)
			if err == nil {
				c.resolved.Store(symbol, variant)
			}
		}
	}
	if err != nil {
		return nil, &RetrievalError{Symbol: symbol, Err: err}
	}
	if len(bars) == 0 {
		return nil, &EmptyResultError{Symbol: symbol, Start: w.Start, End: w.End}
	}
	return bars, nil
}
