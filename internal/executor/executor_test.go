package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"TickerLens/internal/cache"
	"TickerLens/internal/collector"
	"TickerLens/internal/model"
)

var window = model.Window{
	Start:    model.MustDate("2021-01-01"),
	End:      model.MustDate("2021-03-01"),
	Interval: model.Daily,
}

// fakeRetriever returns one bar per symbol. Symbols in fail error out; a
// symbol with a gate blocks until the gate is closed.
type fakeRetriever struct {
	mu       sync.Mutex
	fail     map[string]error
	gates    map[string]chan struct{}
	calls    map[string]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFake() *fakeRetriever {
	return &fakeRetriever{
		fail:  map[string]error{},
		gates: map[string]chan struct{}{},
		calls: map[string]int{},
	}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, symbol string, w model.Window) (model.Series, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[symbol]++
	gate := f.gates[symbol]
	err := f.fail[symbol]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, &collector.RetrievalError{Symbol: symbol, Err: err}
	}
	return model.Series{{Time: w.Start.Time(), Close: float64(len(symbol))}}, nil
}

func (f *fakeRetriever) callsFor(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func newExecutor(t *testing.T, r Retriever, policy Policy, workers int) (*Executor, *cache.Store) {
	t.Helper()
	store, err := cache.New(0, nil)
	require.NoError(t, err)
	return New(r, store, Options{Workers: workers, Policy: policy}, zerolog.Nop()), store
}

func TestRun_AllSucceedCachesInRequestOrder(t *testing.T) {
	f := newFake()
	e, store := newExecutor(t, f, AllOrNothing, 4)

	res := e.Run(context.Background(), Batch{ID: 1, Symbols: []string{"NVDA", "GOOG", "META"}, Window: window})

	require.True(t, res.OK())
	require.Empty(t, res.Failed)
	require.Len(t, res.Columns, 3)
	require.Equal(t, "NVDA", res.Columns[0].Symbol)
	require.Equal(t, "GOOG", res.Columns[1].Symbol)
	require.Equal(t, "META", res.Columns[2].Symbol)
	for _, k := range res.Batch.Keys() {
		require.True(t, store.Contains(k), "%s must be cached", k)
	}
}

func TestRun_AllOrNothingWritesNothingOnFailure(t *testing.T) {
	f := newFake()
	f.fail["META"] = errors.New("upstream 500")
	e, store := newExecutor(t, f, AllOrNothing, 4)

	res := e.Run(context.Background(), Batch{ID: 2, Symbols: []string{"NVDA", "META"}, Window: window})

	require.False(t, res.OK())
	require.Empty(t, res.Columns)
	require.Equal(t, []string{"META"}, res.FailedSymbols())
	require.ErrorContains(t, res.Err, "META")
	require.Equal(t, 0, store.Len())
}

func TestRun_PartialKeepsSuccesses(t *testing.T) {
	f := newFake()
	f.fail["META"] = errors.New("upstream 500")
	e, store := newExecutor(t, f, Partial, 4)

	res := e.Run(context.Background(), Batch{ID: 3, Symbols: []string{"NVDA", "META", "AAPL"}, Window: window})

	require.False(t, res.OK())
	require.Equal(t, []string{"META"}, res.FailedSymbols())
	require.Len(t, res.Columns, 2)
	require.Equal(t, "NVDA", res.Columns[0].Symbol)
	require.Equal(t, "AAPL", res.Columns[1].Symbol)
	require.True(t, store.Contains(model.KeyFor("NVDA", window)))
	require.False(t, store.Contains(model.KeyFor("META", window)))
}

func TestRun_EmptyBatch(t *testing.T) {
	e, _ := newExecutor(t, newFake(), AllOrNothing, 1)
	res := e.Run(context.Background(), Batch{ID: 4, Window: window})
	require.True(t, res.OK())
	require.Empty(t, res.Columns)
}

func TestRun_RespectsWorkerLimit(t *testing.T) {
	f := newFake()
	symbols := []string{"A", "B", "C", "D", "E", "F"}
	for _, s := range symbols {
		f.gates[s] = make(chan struct{})
	}
	e, _ := newExecutor(t, f, AllOrNothing, 2)

	done := make(chan Result, 1)
	e.Dispatch(context.Background(), Batch{ID: 5, Symbols: symbols, Window: window}, func(r Result) { done <- r })

	for _, s := range symbols {
		close(f.gates[s])
		time.Sleep(5 * time.Millisecond)
	}
	res := <-done
	require.True(t, res.OK())
	require.LessOrEqual(t, f.maxSeen.Load(), int32(2))
}

func TestDispatch_ReturnsBeforeRetrievalCompletes(t *testing.T) {
	f := newFake()
	f.gates["TSLA"] = make(chan struct{})
	e, store := newExecutor(t, f, AllOrNothing, 2)

	done := make(chan Result, 1)
	var cachedFirst atomic.Bool
	e.Dispatch(context.Background(), Batch{ID: 6, Symbols: []string{"TSLA"}, Window: window}, func(r Result) {
		cachedFirst.Store(store.Contains(model.KeyFor("TSLA", window)))
		done <- r
	})

	select {
	case <-done:
		t.Fatal("completion reported before the retrieval was released")
	case <-time.After(20 * time.Millisecond):
	}
	close(f.gates["TSLA"])
	e.Wait()
	require.True(t, (<-done).OK())
	require.True(t, cachedFirst.Load(), "cache must be written before completion is reported")
}

func TestDispatch_OverlappingBatchesShareRetrieval(t *testing.T) {
	f := newFake()
	f.gates["AAPL"] = make(chan struct{})
	e, _ := newExecutor(t, f, AllOrNothing, 4)

	var got sync.WaitGroup
	got.Add(2)
	b := Batch{Symbols: []string{"AAPL"}, Window: window}
	b.ID = 7
	e.Dispatch(context.Background(), b, func(Result) { got.Done() })
	require.Eventually(t, func() bool { return f.callsFor("AAPL") == 1 }, time.Second, time.Millisecond)
	b.ID = 8
	e.Dispatch(context.Background(), b, func(Result) { got.Done() })
	time.Sleep(10 * time.Millisecond)

	close(f.gates["AAPL"])
	got.Wait()
	require.Equal(t, 1, f.callsFor("AAPL"))
}

func TestDispatch_CancelledContextFailsBatch(t *testing.T) {
	f := newFake()
	f.gates["GOOG"] = make(chan struct{})
	e, store := newExecutor(t, f, AllOrNothing, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	e.Dispatch(ctx, Batch{ID: 9, Symbols: []string{"GOOG"}, Window: window}, func(r Result) { done <- r })
	cancel()

	res := <-done
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, 0, store.Len())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, AllOrNothing, p)

	p, err = ParsePolicy(" Partial ")
	require.NoError(t, err)
	require.Equal(t, Partial, p)

	_, err = ParsePolicy("best_effort")
	require.Error(t, err)
}
