package collector

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"TickerLens/internal/model"
)

// SyntheticFetcher returns deterministic generated bars for development and
// demos. Like Yahoo it rejects symbols containing '.', so normalization is
// exercised offline.
type SyntheticFetcher struct {
	// BasePrice overrides the per-symbol starting price when non-zero.
	BasePrice float64
	// Empty lists symbols that resolve but have no rows.
	Empty map[string]bool
}

func (m *SyntheticFetcher) Name() string { return "synthetic" }

func (m *SyntheticFetcher) FetchBars(ctx context.Context, symbol string, start, end model.Date, interval model.Interval) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(symbol, ".") || symbol == "" {
		return nil, ErrUnknownSymbol
	}
	if m.Empty[symbol] {
		return model.Series{}, nil
	}
	base := m.BasePrice
	if base == 0 {
		base = seedPrice(symbol)
	}
	return generateBars(symbol, base, start.Time(), end.Time(), interval), nil
}

func seedPrice(symbol string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(symbol))
	return 20 + float64(h.Sum32()%480)
}

// generateBars walks [from, to) in interval steps, skipping weekends for the
// daily interval.
func generateBars(symbol string, basePrice float64, from, to time.Time, interval model.Interval) model.Series {
	var bars model.Series
	phase := float64(len(symbol))
	i := 0
	for t := from; t.Before(to); t = step(t, interval) {
		if interval == model.Daily && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
			continue
		}
		p := basePrice * (1 + 0.1*math.Sin(float64(i)/20+phase) + float64(i)*0.0005)
		bars = append(bars, model.OHLCV{
			Time:   t,
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000 + float64(i%7)*25000,
		})
		i++
	}
	return bars
}

func step(t time.Time, interval model.Interval) time.Time {
	switch interval {
	case model.FiveDay:
		return t.AddDate(0, 0, 5)
	case model.Weekly:
		return t.AddDate(0, 0, 7)
	case model.Monthly:
		return t.AddDate(0, 1, 0)
	case model.Quarterly:
		return t.AddDate(0, 3, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}
