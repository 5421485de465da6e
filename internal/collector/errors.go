package collector

import (
	"errors"
	"fmt"

	"TickerLens/internal/model"
)

// ErrUnknownSymbol is returned by fetchers when the data source rejects the
// identifier itself (as opposed to a transport or rate-limit failure).
var ErrUnknownSymbol = errors.New("unknown symbol")

// ResolutionError reports that the canonical symbol was rejected by the
// source. Collector recovers from it by trying the variant; it never leaves
// Retrieve.
type ResolutionError struct {
	Symbol  string
	Variant string
	Err     error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s (variant %s): %v", e.Symbol, e.Variant, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// RetrievalError is a failed upstream call for one instrument.
type RetrievalError struct {
	Symbol string
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s: %v", e.Symbol, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// EmptyResultError reports a successful call that returned no rows for the
// requested range, e.g. an instrument delisted before the range start.
type EmptyResultError struct {
	Symbol string
	Start  model.Date
	End    model.Date
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("no data found for %s from %s to %s", e.Symbol, e.Start, e.End)
}

// IsEmptyResult reports whether err carries an EmptyResultError.
func IsEmptyResult(err error) bool {
	var e *EmptyResultError
	return errors.As(err, &e)
}
