package reconcile

import (
	"time"

	"TickerLens/internal/executor"
	"TickerLens/internal/model"
)

// Status classifies a finished batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
	StatusNoData  Status = "no_data"
)

// FetchOutcome is reported once per finished batch.
type FetchOutcome struct {
	BatchID uint64
	Status  Status
	Window  model.Window
	// Symbols is everything the batch fetched; Added is what was merged
	// into the view.
	Symbols  []string
	Added    []string
	Failed   []executor.Failure
	Err      error
	Duration time.Duration
	// Stale is set when the batch no longer matches the desired state and
	// nothing of it was merged.
	Stale bool
}

// FailedSymbols lists the failed symbols in batch order.
func (o FetchOutcome) FailedSymbols() []string {
	out := make([]string, len(o.Failed))
	for i, f := range o.Failed {
		out[i] = f.Symbol
	}
	return out
}

// Notifier receives view and fetch updates. Calls are made from the
// controller goroutine, one at a time; implementations must not call back
// into the controller synchronously.
type Notifier interface {
	OnViewStateChanged(v model.ViewState)
	OnFetchOutcome(o FetchOutcome)
}

// FetchStartNotifier is optionally implemented by a Notifier that wants to
// know when a batch is dispatched.
type FetchStartNotifier interface {
	OnFetchStarted(b executor.Batch)
}

type nopNotifier struct{}

func (nopNotifier) OnViewStateChanged(model.ViewState) {}
func (nopNotifier) OnFetchOutcome(FetchOutcome)        {}
