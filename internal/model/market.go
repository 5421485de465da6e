package model

import (
	"fmt"
	"slices"
	"time"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Series is a price history ordered by time. A Series handed out by the cache
// is shared and must not be modified.
type Series []OHLCV

// Closes extracts the close column.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, b := range s {
		closes[i] = b.Close
	}
	return closes
}

// Between returns the bars whose time falls in [from, to]. A zero bound is
// open. The result shares the backing array of s.
func (s Series) Between(from, to time.Time) Series {
	lo := 0
	if !from.IsZero() {
		lo, _ = slices.BinarySearchFunc(s, from, func(b OHLCV, t time.Time) int {
			return b.Time.Compare(t)
		})
	}
	hi := len(s)
	if !to.IsZero() {
		hi, _ = slices.BinarySearchFunc(s, to, func(b OHLCV, t time.Time) int {
			if b.Time.After(t) {
				return 1
			}
			return -1
		})
	}
	if lo >= hi {
		return Series{}
	}
	return s[lo:hi]
}

// Last returns the most recent bar.
func (s Series) Last() (OHLCV, bool) {
	if len(s) == 0 {
		return OHLCV{}, false
	}
	return s[len(s)-1], true
}

// Window is the shared (range, interval) part of a request.
type Window struct {
	Start    Date
	End      Date
	Interval Interval
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s@%s", w.Start, w.End, w.Interval)
}

// Validate checks the interval and that Start is not after End.
func (w Window) Validate() error {
	if !w.Interval.Valid() {
		return fmt.Errorf("invalid interval %q", w.Interval)
	}
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window %s: start and end are required", w)
	}
	if w.Start.After(w.End) {
		return fmt.Errorf("window %s: start is after end", w)
	}
	return nil
}

// Key identifies one cached series. Equality is exact on every field.
type Key struct {
	Symbol   string
	Start    Date
	End      Date
	Interval Interval
}

// KeyFor builds the cache key of symbol under w.
func KeyFor(symbol string, w Window) Key {
	return Key{Symbol: symbol, Start: w.Start, End: w.End, Interval: w.Interval}
}

func (k Key) Window() Window {
	return Window{Start: k.Start, End: k.End, Interval: k.Interval}
}

func (k Key) String() string {
	return k.Symbol + "|" + k.Window().String()
}
