package collector

import (
	"context"

	"TickerLens/internal/model"
)

// Fetcher defines the interface for fetching historical bars from an
// upstream data source. End is exclusive, matching the upstream APIs.
//
//go:generate mockgen -package=collector -destination=mock_fetcher_test.go -source=fetcher.go Fetcher
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, start, end model.Date, interval model.Interval) (model.Series, error)
	Name() string
}
