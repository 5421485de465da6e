package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"TickerLens/internal/cache"
	"TickerLens/internal/collector"
	"TickerLens/internal/executor"
	"TickerLens/internal/model"
)

var (
	jan1  = model.MustDate("2020-01-01")
	jun1  = model.MustDate("2020-06-01")
	jun2  = model.MustDate("2020-06-02")
	daily = model.Window{Start: jan1, End: jun1, Interval: model.Daily}
)

type upstream struct {
	mu    sync.Mutex
	calls map[model.Key]int
	fail  map[string]error
	empty map[string]bool
	gates map[string]chan struct{}
}

func newUpstream() *upstream {
	return &upstream{
		calls: map[model.Key]int{},
		fail:  map[string]error{},
		empty: map[string]bool{},
		gates: map[string]chan struct{}{},
	}
}

func (u *upstream) Retrieve(ctx context.Context, symbol string, w model.Window) (model.Series, error) {
	u.mu.Lock()
	u.calls[model.KeyFor(symbol, w)]++
	gate, err, empty := u.gates[symbol], u.fail[symbol], u.empty[symbol]
	u.mu.Unlock()
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
	if empty {
		return nil, &collector.EmptyResultError{Symbol: symbol, Start: w.Start, End: w.End}
	}
	return model.Series{{Time: w.Start.Time(), Close: 100}, {Time: w.End.Time(), Close: 110}}, nil
}

func (u *upstream) gate(symbol string) chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	g := make(chan struct{})
	u.gates[symbol] = g
	return g
}

func (u *upstream) callCount(symbol string, w model.Window) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls[model.KeyFor(symbol, w)]
}

func (u *upstream) totalCalls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	n := 0
	for _, c := range u.calls {
		n += c
	}
	return n
}

type recorder struct {
	mu       sync.Mutex
	views    []model.ViewState
	started  []executor.Batch
	outcomes chan FetchOutcome
}

func newRecorder() *recorder { return &recorder{outcomes: make(chan FetchOutcome, 16)} }

func (r *recorder) OnViewStateChanged(v model.ViewState) {
	r.mu.Lock()
	r.views = append(r.views, v)
	r.mu.Unlock()
}

func (r *recorder) OnFetchOutcome(o FetchOutcome) { r.outcomes <- o }

func (r *recorder) OnFetchStarted(b executor.Batch) {
	r.mu.Lock()
	r.started = append(r.started, b)
	r.mu.Unlock()
}

func (r *recorder) viewCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recorder) next(t *testing.T) FetchOutcome {
	t.Helper()
	select {
	case o := <-r.outcomes:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("no fetch outcome")
		return FetchOutcome{}
	}
}

type harness struct {
	ctl   *Controller
	store *cache.Store
	up    *upstream
	rec   *recorder
	exec  *executor.Executor
}

func newHarness(t *testing.T, policy executor.Policy) *harness {
	t.Helper()
	store, err := cache.New(0, nil)
	require.NoError(t, err)
	up := newUpstream()
	ex := executor.New(up, store, executor.Options{Workers: 4, Policy: policy}, zerolog.Nop())
	rec := newRecorder()
	ctl := New(store, ex, rec, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- ctl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
		ex.Wait()
	})
	return &harness{ctl: ctl, store: store, up: up, rec: rec, exec: ex}
}

func (h *harness) submit(t *testing.T, w model.Window, symbols ...string) model.ViewState {
	t.Helper()
	v, err := h.ctl.Submit(context.Background(), model.DesiredState{Symbols: symbols, Window: w})
	require.NoError(t, err)
	return v
}

func TestScenario_FirstLoadFetchesAndCaches(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	gate := h.up.gate("AAPL")

	v := h.submit(t, daily, "AAPL")
	require.Empty(t, v.Columns)
	require.Equal(t, FetchPending, h.ctl.Phase())
	close(gate)

	o := h.rec.next(t)
	require.Equal(t, StatusSuccess, o.Status)
	require.Equal(t, []string{"AAPL"}, o.Added)
	require.False(t, o.Stale)

	require.Equal(t, []string{"AAPL"}, h.ctl.View().Symbols())
	require.Equal(t, Idle, h.ctl.Phase())
	require.Equal(t, 1, h.store.Len())
	require.True(t, h.store.Contains(model.KeyFor("AAPL", daily)))
}

func TestScenario_GrowingTheSetReusesCache(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)

	v := h.submit(t, daily, "AAPL", "MSFT")
	require.Equal(t, []string{"AAPL"}, v.Symbols(), "hit is assembled synchronously")

	o := h.rec.next(t)
	require.Equal(t, []string{"MSFT"}, o.Symbols)
	require.Equal(t, []string{"AAPL", "MSFT"}, h.ctl.View().Symbols())
	require.Equal(t, 1, h.up.callCount("AAPL", daily))
	require.Equal(t, 1, h.up.callCount("MSFT", daily))
}

func TestScenario_RemovalIsSynchronousAndKeepsCache(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL", "MSFT")
	h.rec.next(t)
	calls := h.up.totalCalls()

	v := h.submit(t, daily, "AAPL")
	require.Equal(t, []string{"AAPL"}, v.Symbols())
	require.Equal(t, Idle, h.ctl.Phase())
	require.Equal(t, calls, h.up.totalCalls(), "removal must not fetch")
	require.True(t, h.store.Contains(model.KeyFor("MSFT", daily)))

	// Re-adding is served from the cache.
	v = h.submit(t, daily, "AAPL", "MSFT")
	require.Equal(t, []string{"AAPL", "MSFT"}, v.Symbols())
	require.Equal(t, calls, h.up.totalCalls())
}

func TestScenario_RangeChangeRefetchesUnderNewKey(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)

	later := daily
	later.End = jun2
	v := h.submit(t, later, "AAPL")
	require.Empty(t, v.Columns)
	require.Equal(t, later, v.Window)

	o := h.rec.next(t)
	require.Equal(t, StatusSuccess, o.Status)
	require.Equal(t, later, o.Window)
	require.Equal(t, 1, h.up.callCount("AAPL", later))
	require.Equal(t, 2, h.store.Len())
	require.True(t, h.store.Contains(model.KeyFor("AAPL", daily)))

	// Switching back is a pure cache hit.
	v = h.submit(t, daily, "AAPL")
	require.Equal(t, []string{"AAPL"}, v.Symbols())
	require.Equal(t, 1, h.up.callCount("AAPL", daily))
}

func TestIntervalChangeReschedulesWholeSet(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL", "MSFT")
	h.rec.next(t)

	weekly := daily
	weekly.Interval = model.Weekly
	h.submit(t, weekly, "AAPL", "MSFT")
	o := h.rec.next(t)
	require.Equal(t, []string{"AAPL", "MSFT"}, o.Symbols)
	require.Equal(t, []string{"AAPL", "MSFT"}, h.ctl.View().Symbols())
	require.Equal(t, weekly, h.ctl.View().Window)
}

func TestBatchAtomicity(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.up.fail["B"] = errors.New("rate limited")

	h.submit(t, daily, "A", "B")
	o := h.rec.next(t)
	require.Equal(t, StatusFailure, o.Status)
	require.Equal(t, []string{"B"}, o.FailedSymbols())
	require.Empty(t, o.Added)

	require.Empty(t, h.ctl.View().Columns)
	require.False(t, h.store.Contains(model.KeyFor("A", daily)))
	require.False(t, h.store.Contains(model.KeyFor("B", daily)))
}

func TestFailureLeavesExistingColumns(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "A")
	h.rec.next(t)

	h.up.fail["B"] = errors.New("boom")
	h.submit(t, daily, "A", "B")
	o := h.rec.next(t)
	require.Equal(t, StatusFailure, o.Status)
	require.Equal(t, []string{"A"}, h.ctl.View().Symbols())
}

func TestResubmitRetriesFailedSymbols(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.up.fail["B"] = errors.New("boom")
	h.submit(t, daily, "B")
	h.rec.next(t)

	h.up.mu.Lock()
	delete(h.up.fail, "B")
	h.up.mu.Unlock()

	h.submit(t, daily, "B")
	o := h.rec.next(t)
	require.Equal(t, StatusSuccess, o.Status)
	require.Equal(t, []string{"B"}, h.ctl.View().Symbols())
	require.Equal(t, 2, h.up.callCount("B", daily))
}

func TestEmptyResultReportsNoData(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.up.empty["DEAD"] = true

	h.submit(t, daily, "DEAD")
	o := h.rec.next(t)
	require.Equal(t, StatusNoData, o.Status)
	var empty *collector.EmptyResultError
	require.ErrorAs(t, o.Err, &empty)
	require.Equal(t, "DEAD", empty.Symbol)
}

func TestPartialPolicyAppliesSuccesses(t *testing.T) {
	h := newHarness(t, executor.Partial)
	h.up.fail["B"] = errors.New("boom")

	h.submit(t, daily, "A", "B", "C")
	o := h.rec.next(t)
	require.Equal(t, StatusPartial, o.Status)
	require.Equal(t, []string{"A", "C"}, o.Added)
	require.Equal(t, []string{"B"}, o.FailedSymbols())
	require.Equal(t, []string{"A", "C"}, h.ctl.View().Symbols())
	require.True(t, h.store.Contains(model.KeyFor("A", daily)))
	require.False(t, h.store.Contains(model.KeyFor("B", daily)))
}

func TestStaleCompletionIsDiscarded(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	gate := h.up.gate("AAPL")

	h.submit(t, daily, "AAPL")
	later := daily
	later.End = jun2
	h.submit(t, later, "MSFT")
	fresh := h.rec.next(t)
	require.Equal(t, []string{"MSFT"}, fresh.Symbols)

	close(gate)
	stale := h.rec.next(t)
	require.True(t, stale.Stale)
	require.Empty(t, stale.Added)
	require.Equal(t, []string{"MSFT"}, h.ctl.View().Symbols())
	// The data is still valid for its own key.
	require.True(t, h.store.Contains(model.KeyFor("AAPL", daily)))
}

func TestRemovedWhilePendingIsNotMerged(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	gate := h.up.gate("TSLA")

	h.submit(t, daily, "TSLA")
	h.submit(t, daily, "NVDA")
	require.Equal(t, []string{"NVDA"}, h.rec.next(t).Symbols)

	close(gate)
	o := h.rec.next(t)
	require.True(t, o.Stale)
	require.Equal(t, []string{"NVDA"}, h.ctl.View().Symbols())
}

func TestPendingKeyIsNotDispatchedTwice(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	gate := h.up.gate("GOOG")

	h.submit(t, daily, "GOOG")
	h.submit(t, daily, "GOOG", "META")
	require.Equal(t, []string{"META"}, h.rec.next(t).Symbols)
	require.Equal(t, FetchPending, h.ctl.Phase())
	require.Equal(t, 1, h.ctl.PendingBatches())

	close(gate)
	o := h.rec.next(t)
	require.Equal(t, []string{"GOOG"}, o.Added)
	require.Equal(t, []string{"GOOG", "META"}, h.ctl.View().Symbols(), "columns follow desired order")
	require.Equal(t, 1, h.up.callCount("GOOG", daily))
	require.Equal(t, Idle, h.ctl.Phase())
}

func TestNoOpSubmitPublishesNothing(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)
	before := h.rec.viewCount()
	version := h.ctl.View().Version

	v := h.submit(t, daily, "aapl ")
	require.Equal(t, version, v.Version)
	require.Equal(t, before, h.rec.viewCount())
}

func TestEmptyDesiredSetDispatchesNothing(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	v := h.submit(t, daily)
	require.Empty(t, v.Columns)
	require.Equal(t, Idle, h.ctl.Phase())
	require.Zero(t, h.up.totalCalls())
}

func TestZoomDoesNotFetch(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)
	calls := h.up.totalCalls()

	from := jan1.AddDays(10).Time()
	v, err := h.ctl.SetZoom(context.Background(), from, time.Time{})
	require.NoError(t, err)
	require.NotNil(t, v.Zoom)
	require.Len(t, v.Visible("AAPL"), 1)
	require.Equal(t, calls, h.up.totalCalls())

	v, err = h.ctl.ClearZoom(context.Background())
	require.NoError(t, err)
	require.Nil(t, v.Zoom)
	require.Len(t, v.Visible("AAPL"), 2)

	_, err = h.ctl.SetZoom(context.Background(), jun1.Time(), jan1.Time())
	require.Error(t, err)
}

func TestSubmitRejectsInvalidWindow(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	_, err := h.ctl.Submit(context.Background(), model.DesiredState{
		Symbols: []string{"AAPL"},
		Window:  model.Window{Start: jun1, End: jan1, Interval: model.Daily},
	})
	require.Error(t, err)
	_, ok := h.ctl.Desired()
	require.False(t, ok)
}

func TestModifyNeedsDesiredState(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	_, err := h.ctl.Modify(context.Background(), func(d *model.DesiredState) error {
		t.Error("edit must not run before the first submit")
		return nil
	})
	require.ErrorIs(t, err, ErrNoDesired)
}

func TestModifyEditErrorKeepsDesiredState(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)

	boom := errors.New("boom")
	_, err := h.ctl.Modify(context.Background(), func(d *model.DesiredState) error {
		d.Symbols = append(d.Symbols, "MSFT")
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = h.ctl.Modify(context.Background(), func(d *model.DesiredState) error {
		d.Start, d.End = d.End, d.Start
		return nil
	})
	require.ErrorContains(t, err, "invalid desired state")

	d, ok := h.ctl.Desired()
	require.True(t, ok)
	require.Equal(t, []string{"AAPL"}, d.Symbols)
	require.Equal(t, daily, d.Window)
}

func TestConcurrentModifyKeepsEveryEdit(t *testing.T) {
	h := newHarness(t, executor.AllOrNothing)
	h.submit(t, daily, "AAPL")
	h.rec.next(t)

	symbols := []string{"MSFT", "NVDA", "TSLA", "META", "GOOG", "AMZN"}
	var wg sync.WaitGroup
	for _, sym := range symbols {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ctl.Modify(context.Background(), func(d *model.DesiredState) error {
				d.Symbols = append(d.Symbols, sym)
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	d, ok := h.ctl.Desired()
	require.True(t, ok)
	require.ElementsMatch(t, append([]string{"AAPL"}, symbols...), d.Symbols)
}

func TestSubmitAfterStop(t *testing.T) {
	store, err := cache.New(0, nil)
	require.NoError(t, err)
	ctl := New(store, executor.New(newUpstream(), store, executor.Options{}, zerolog.Nop()), nil, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, ctl.Run(ctx), context.Canceled)

	_, err = ctl.Submit(context.Background(), model.DesiredState{Symbols: []string{"A"}, Window: daily})
	require.ErrorIs(t, err, ErrStopped)
	require.ErrorIs(t, ctl.Run(context.Background()), ErrAlreadyRunning)
}
