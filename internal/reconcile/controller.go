// Package reconcile turns successive desired states into view states,
// serving what it can from the cache and fetching the rest in the background.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"TickerLens/internal/collector"
	"TickerLens/internal/executor"
	"TickerLens/internal/logging"
	"TickerLens/internal/metrics"
	"TickerLens/internal/model"
	"TickerLens/internal/planner"
)

var (
	ErrStopped        = errors.New("reconcile: controller stopped")
	ErrAlreadyRunning = errors.New("reconcile: controller already running")
	ErrNoDesired      = errors.New("reconcile: no desired state submitted yet")
)

// Phase is the controller's fetch state.
type Phase int32

const (
	Idle Phase = iota
	FetchPending
)

func (p Phase) String() string {
	if p == FetchPending {
		return "fetch_pending"
	}
	return "idle"
}

// Cache is the part of the cache the controller reads.
type Cache interface {
	planner.Lookup
	Get(k model.Key) (model.Series, bool)
}

// Dispatcher starts a batch without blocking; done is called once when the
// batch is finished.
type Dispatcher interface {
	Dispatch(ctx context.Context, b executor.Batch, done func(executor.Result))
}

type event any

type submitEvent struct {
	desired model.DesiredState
	reply   chan model.ViewState
}

type modifyEvent struct {
	edit  func(*model.DesiredState) error
	reply chan modifyReply
}

type modifyReply struct {
	view model.ViewState
	err  error
}

type zoomEvent struct {
	zoom  *model.Zoom
	reply chan model.ViewState
}

type completionEvent struct {
	res executor.Result
}

// Controller owns the desired state, the view state and the set of pending
// fetches. Every mutation happens on the goroutine running Run.
type Controller struct {
	cache   Cache
	exec    Dispatcher
	notify  Notifier
	metrics *metrics.Metrics
	log     zerolog.Logger

	events  chan event
	done    chan struct{}
	running atomic.Bool

	view     atomic.Pointer[model.ViewState]
	desiredP atomic.Pointer[model.DesiredState]
	inFlight atomic.Int32

	// Owned by the Run goroutine.
	ctx     context.Context
	desired model.DesiredState
	loaded  bool
	cur     model.ViewState
	pending map[model.Key]uint64
	batches map[uint64]executor.Batch
	batchID uint64
}

// New creates a controller. notify and m may be nil.
func New(c Cache, d Dispatcher, notify Notifier, log zerolog.Logger, m *metrics.Metrics) *Controller {
	if notify == nil {
		notify = nopNotifier{}
	}
	ctl := &Controller{
		cache:   c,
		exec:    d,
		notify:  notify,
		metrics: m,
		log:     logging.Component(log, "reconcile"),
		events:  make(chan event),
		done:    make(chan struct{}),
		pending: make(map[model.Key]uint64),
		batches: make(map[uint64]executor.Batch),
	}
	ctl.view.Store(&model.ViewState{})
	return ctl
}

// Run processes events until ctx is cancelled. Batches are dispatched with
// ctx, so cancelling it also aborts their retrievals.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(c.done)
	c.ctx = ctx
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) handle(ev event) {
	switch e := ev.(type) {
	case submitEvent:
		e.reply <- c.reconcile(e.desired)
	case modifyEvent:
		e.reply <- c.modify(e.edit)
	case zoomEvent:
		e.reply <- c.setZoom(e.zoom)
	case completionEvent:
		c.complete(e.res)
	}
}

// Submit makes d the desired state. It returns once the synchronous part of
// the step is done: removals applied and cache hits assembled. Misses are
// fetched in the background and merged later.
func (c *Controller) Submit(ctx context.Context, d model.DesiredState) (model.ViewState, error) {
	d, err := d.Normalize()
	if err != nil {
		return c.View(), fmt.Errorf("invalid desired state: %w", err)
	}
	reply := make(chan model.ViewState, 1)
	if err := c.send(ctx, submitEvent{desired: d, reply: reply}); err != nil {
		return c.View(), err
	}
	return c.await(ctx, reply)
}

// Modify applies edit to a copy of the current desired state and submits the
// result, with no other submission in between. edit runs on the controller
// goroutine and must not call back into the controller. An error from edit
// is returned as is and leaves the desired state untouched.
func (c *Controller) Modify(ctx context.Context, edit func(*model.DesiredState) error) (model.ViewState, error) {
	reply := make(chan modifyReply, 1)
	if err := c.send(ctx, modifyEvent{edit: edit, reply: reply}); err != nil {
		return c.View(), err
	}
	select {
	case r := <-reply:
		return r.view, r.err
	case <-ctx.Done():
		return c.View(), ctx.Err()
	case <-c.done:
		return c.View(), ErrStopped
	}
}

// SetZoom restricts the visible range. It never triggers a fetch.
func (c *Controller) SetZoom(ctx context.Context, from, to time.Time) (model.ViewState, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return c.View(), fmt.Errorf("zoom end %s before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return c.zoom(ctx, &model.Zoom{From: from, To: to})
}

func (c *Controller) ClearZoom(ctx context.Context) (model.ViewState, error) {
	return c.zoom(ctx, nil)
}

func (c *Controller) zoom(ctx context.Context, z *model.Zoom) (model.ViewState, error) {
	reply := make(chan model.ViewState, 1)
	if err := c.send(ctx, zoomEvent{zoom: z, reply: reply}); err != nil {
		return c.View(), err
	}
	return c.await(ctx, reply)
}

// View returns the latest published view state.
func (c *Controller) View() model.ViewState { return *c.view.Load() }

// Desired returns the last accepted desired state.
func (c *Controller) Desired() (model.DesiredState, bool) {
	d := c.desiredP.Load()
	if d == nil {
		return model.DesiredState{}, false
	}
	return *d, true
}

func (c *Controller) Phase() Phase {
	if c.inFlight.Load() > 0 {
		return FetchPending
	}
	return Idle
}

// PendingBatches returns the number of dispatched batches not yet resolved.
func (c *Controller) PendingBatches() int { return int(c.inFlight.Load()) }

func (c *Controller) send(ctx context.Context, ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) await(ctx context.Context, reply <-chan model.ViewState) (model.ViewState, error) {
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return c.View(), ctx.Err()
	case <-c.done:
		return c.View(), ErrStopped
	}
}

// onDone is handed to the dispatcher; it runs on the batch goroutine.
func (c *Controller) onDone(res executor.Result) {
	select {
	case c.events <- completionEvent{res: res}:
	case <-c.done:
	}
}

func (c *Controller) reconcile(d model.DesiredState) model.ViewState {
	// Re-submitting the current state still retries symbols that are neither
	// displayed nor pending; it publishes nothing when the view is unchanged.
	c.metrics.Reconciled()

	first := !c.loaded
	windowChanged := c.loaded && c.desired.Window != d.Window
	c.desired = d
	c.loaded = true
	dc := d
	c.desiredP.Store(&dc)

	next := c.cur
	next.Window = d.Window
	var removed, schedule []string
	if first || windowChanged {
		// Columns of another window are not part of this view.
		for _, col := range c.cur.Columns {
			if !d.Has(col.Symbol) {
				removed = append(removed, col.Symbol)
			}
		}
		next.Columns = nil
		next.Zoom = nil
		schedule = d.Symbols
	} else {
		next.Columns = make([]model.Column, 0, len(c.cur.Columns))
		for _, col := range c.cur.Columns {
			if d.Has(col.Symbol) {
				next.Columns = append(next.Columns, col)
			} else {
				removed = append(removed, col.Symbol)
			}
		}
		for _, sym := range d.Symbols {
			if !c.cur.Has(sym) {
				schedule = append(schedule, sym)
			}
		}
	}

	plan := planner.Partition(c.cache, schedule, d.Window, c.metrics)
	miss := plan.Miss
	for _, sym := range plan.Hit {
		s, ok := c.cache.Get(model.KeyFor(sym, d.Window))
		if !ok {
			// Evicted between the partition and the read.
			miss = append(miss, sym)
			continue
		}
		next.Columns = append(next.Columns, model.Column{Symbol: sym, Series: s})
	}
	next.Columns = orderColumns(next.Columns, d.Symbols)

	var dispatch []string
	for _, sym := range miss {
		if _, ok := c.pending[model.KeyFor(sym, d.Window)]; ok {
			continue
		}
		dispatch = append(dispatch, sym)
	}

	c.log.Debug().
		Strs("desired", d.Symbols).
		Str("window", d.Window.String()).
		Strs("removed", removed).
		Strs("hits", plan.Hit).
		Strs("misses", miss).
		Strs("dispatch", dispatch).
		Msg("reconcile")

	if windowChanged || first || !slices.Equal(next.Symbols(), c.cur.Symbols()) {
		c.publish(next)
	}
	if len(dispatch) > 0 {
		c.dispatch(executor.Batch{Symbols: dispatch, Window: d.Window})
	}
	return c.cur
}

func (c *Controller) dispatch(b executor.Batch) {
	c.batchID++
	b.ID = c.batchID
	for _, k := range b.Keys() {
		c.pending[k] = b.ID
	}
	c.batches[b.ID] = b
	c.inFlight.Store(int32(len(c.batches)))
	if n, ok := c.notify.(FetchStartNotifier); ok {
		n.OnFetchStarted(b)
	}
	c.log.Info().Uint64("batch", b.ID).Strs("symbols", b.Symbols).Str("window", b.Window.String()).Msg("fetch dispatched")
	c.exec.Dispatch(c.ctx, b, c.onDone)
}

func (c *Controller) complete(res executor.Result) {
	b := res.Batch
	delete(c.batches, b.ID)
	for _, k := range b.Keys() {
		if c.pending[k] == b.ID {
			delete(c.pending, k)
		}
	}
	c.inFlight.Store(int32(len(c.batches)))

	out := FetchOutcome{
		BatchID:  b.ID,
		Status:   classify(res),
		Window:   b.Window,
		Symbols:  b.Symbols,
		Failed:   res.Failed,
		Err:      res.Err,
		Duration: res.Duration,
	}

	current := b.Window == c.desired.Window
	if current {
		next := c.cur
		next.Columns = slices.Clone(c.cur.Columns)
		for _, col := range res.Columns {
			if !c.desired.Has(col.Symbol) || c.cur.Has(col.Symbol) {
				continue
			}
			next.Columns = append(next.Columns, col)
			out.Added = append(out.Added, col.Symbol)
		}
		if len(out.Added) > 0 {
			next.Columns = orderColumns(next.Columns, c.desired.Symbols)
			c.publish(next)
		}
	}
	out.Stale = len(out.Added) == 0 && (!current || !anyDesired(c.desired, b.Symbols))
	if out.Stale {
		c.log.Debug().Uint64("batch", b.ID).Str("window", b.Window.String()).Msg("stale batch discarded")
	}
	c.notify.OnFetchOutcome(out)
}

func (c *Controller) modify(edit func(*model.DesiredState) error) modifyReply {
	if !c.loaded {
		return modifyReply{view: c.cur, err: ErrNoDesired}
	}
	d := c.desired
	d.Symbols = slices.Clone(c.desired.Symbols)
	if err := edit(&d); err != nil {
		return modifyReply{view: c.cur, err: err}
	}
	d, err := d.Normalize()
	if err != nil {
		return modifyReply{view: c.cur, err: fmt.Errorf("invalid desired state: %w", err)}
	}
	return modifyReply{view: c.reconcile(d)}
}

func (c *Controller) setZoom(z *model.Zoom) model.ViewState {
	if z == nil && c.cur.Zoom == nil {
		return c.cur
	}
	next := c.cur
	next.Zoom = z
	c.publish(next)
	return c.cur
}

func (c *Controller) publish(v model.ViewState) {
	v.Version = c.cur.Version + 1
	c.cur = v
	vc := v
	c.view.Store(&vc)
	c.notify.OnViewStateChanged(v)
}

func classify(res executor.Result) Status {
	switch {
	case res.Err == nil:
		return StatusSuccess
	case len(res.Columns) > 0:
		return StatusPartial
	}
	for _, f := range res.Failed {
		if !collector.IsEmptyResult(f.Err) {
			return StatusFailure
		}
	}
	return StatusNoData
}

func anyDesired(d model.DesiredState, symbols []string) bool {
	for _, s := range symbols {
		if d.Has(s) {
			return true
		}
	}
	return false
}

// orderColumns returns cols sorted by their position in order. Symbols not in
// order are dropped.
func orderColumns(cols []model.Column, order []string) []model.Column {
	by := make(map[string]model.Column, len(cols))
	for _, c := range cols {
		by[c.Symbol] = c
	}
	out := make([]model.Column, 0, len(cols))
	for _, s := range order {
		if c, ok := by[s]; ok {
			out = append(out, c)
		}
	}
	return out
}
