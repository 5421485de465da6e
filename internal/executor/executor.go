// Package executor retrieves the cache misses of a request concurrently and
// reports one result per batch.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"TickerLens/internal/logging"
	"TickerLens/internal/metrics"
	"TickerLens/internal/model"
)

// DefaultWorkers bounds concurrent retrievals when Options.Workers is unset.
const DefaultWorkers = 8

// Policy decides what a batch delivers when some instruments fail.
type Policy string

const (
	// AllOrNothing fails the whole batch on any single failure; nothing is
	// cached and no series are returned.
	AllOrNothing Policy = "all_or_nothing"
	// Partial caches and returns the successes and lists the failures.
	Partial Policy = "partial"
)

// ParsePolicy maps a config value to a Policy. Empty means AllOrNothing.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(AllOrNothing):
		return AllOrNothing, nil
	case string(Partial):
		return Partial, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q (use: all_or_nothing, partial)", s)
	}
}

// Retriever fetches one instrument's series.
type Retriever interface {
	Retrieve(ctx context.Context, symbol string, w model.Window) (model.Series, error)
}

// Writer is the write side of the cache.
type Writer interface {
	Put(k model.Key, series model.Series)
}

// Batch is one concurrent fetch covering several instruments for one window.
type Batch struct {
	ID      uint64
	Symbols []string
	Window  model.Window
}

// Keys returns the cache key of every symbol, in order.
func (b Batch) Keys() []model.Key {
	keys := make([]model.Key, len(b.Symbols))
	for i, s := range b.Symbols {
		keys[i] = model.KeyFor(s, b.Window)
	}
	return keys
}

// Failure is one instrument's retrieval error.
type Failure struct {
	Symbol string
	Err    error
}

// Result is the outcome of a batch. Columns are in request order.
type Result struct {
	Batch    Batch
	Columns  []model.Column
	Failed   []Failure
	Err      error
	Duration time.Duration
}

// OK reports whether every instrument succeeded.
func (r Result) OK() bool { return r.Err == nil }

// FailedSymbols lists the symbols that failed, in request order.
func (r Result) FailedSymbols() []string {
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Symbol
	}
	return out
}

type Options struct {
	Workers int
	Policy  Policy
	Metrics *metrics.Metrics
}

// Executor runs batches in the background. Retrievals of the same key that
// overlap in time, even from different batches, share one upstream call.
type Executor struct {
	retriever Retriever
	store     Writer
	workers   int
	policy    Policy
	metrics   *metrics.Metrics
	log       zerolog.Logger

	flight singleflight.Group
	wg     sync.WaitGroup
}

func New(r Retriever, store Writer, opts Options, log zerolog.Logger) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Policy == "" {
		opts.Policy = AllOrNothing
	}
	return &Executor{
		retriever: r,
		store:     store,
		workers:   opts.Workers,
		policy:    opts.Policy,
		metrics:   opts.Metrics,
		log:       logging.Component(log, "executor"),
	}
}

func (e *Executor) Policy() Policy { return e.policy }

// Dispatch starts b in the background and returns immediately. done is
// called exactly once, from the background goroutine, after every successful
// series has been written to the cache.
func (e *Executor) Dispatch(ctx context.Context, b Batch, done func(Result)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		res := e.Run(ctx, b)
		if done != nil {
			done(res)
		}
	}()
}

// Wait blocks until every dispatched batch has finished.
func (e *Executor) Wait() { e.wg.Wait() }

// Run executes b and blocks until all of its retrievals are done.
func (e *Executor) Run(ctx context.Context, b Batch) Result {
	started := time.Now()
	res := Result{Batch: b}
	if len(b.Symbols) == 0 {
		return res
	}

	type outcome struct {
		series model.Series
		err    error
	}
	outcomes := make([]outcome, len(b.Symbols))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, sym := range b.Symbols {
		g.Go(func() error {
			s, err := e.retrieve(ctx, sym, b.Window)
			outcomes[i] = outcome{series: s, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for i, sym := range b.Symbols {
		if err := outcomes[i].err; err != nil {
			res.Failed = append(res.Failed, Failure{Symbol: sym, Err: err})
			errs = append(errs, err)
		}
	}
	res.Err = errors.Join(errs...)

	if res.Err == nil || e.policy == Partial {
		for i, sym := range b.Symbols {
			o := outcomes[i]
			if o.err != nil {
				continue
			}
			e.store.Put(model.KeyFor(sym, b.Window), o.series)
			res.Columns = append(res.Columns, model.Column{Symbol: sym, Series: o.series})
		}
	}
	res.Duration = time.Since(started)

	label := "success"
	switch {
	case len(res.Failed) == 0:
	case len(res.Columns) > 0:
		label = "partial"
	default:
		label = "failure"
	}
	e.metrics.Batch(label)

	ev := e.log.Info()
	if res.Err != nil {
		ev = e.log.Warn().Err(res.Err).Strs("failed", res.FailedSymbols())
	}
	ev.Uint64("batch", b.ID).
		Strs("symbols", b.Symbols).
		Str("window", b.Window.String()).
		Str("outcome", label).
		Dur("took", res.Duration).
		Msg("batch done")
	return res
}

func (e *Executor) retrieve(ctx context.Context, symbol string, w model.Window) (model.Series, error) {
	k := model.KeyFor(symbol, w)
	t0 := time.Now()
	v, err, shared := e.flight.Do(k.String(), func() (any, error) {
		s, err := e.retriever.Retrieve(ctx, symbol, w)
		return s, err
	})
	e.metrics.Retrieval(err == nil, time.Since(t0).Seconds())
	if shared {
		e.log.Debug().Str("key", k.String()).Msg("retrieval shared with overlapping batch")
	}
	if err != nil {
		return nil, err
	}
	return v.(model.Series), nil
}
