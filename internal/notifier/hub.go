package notifier

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"TickerLens/internal/executor"
	"TickerLens/internal/logging"
	"TickerLens/internal/model"
	"TickerLens/internal/reconcile"
	"TickerLens/internal/recorder"
)

// Sink receives banners. Deliver is called from the controller goroutine and
// must not block for long.
type Sink interface {
	Deliver(b Banner)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Banner)

func (f SinkFunc) Deliver(b Banner) { f(b) }

// WriterSink prints banners as lines to w.
func WriterSink(w io.Writer) Sink {
	var mu sync.Mutex
	return SinkFunc(func(b Banner) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, b.String())
	})
}

// LogSink writes banners as log events; errors are logged at warn level.
func LogSink(log zerolog.Logger) Sink {
	return SinkFunc(func(b Banner) {
		ev := log.Info()
		if b.Level == LevelError {
			ev = log.Warn()
		}
		ev.Str("kind", string(b.Level)).Msg(b.Text)
	})
}

// Hub turns controller notifications into banners for its sinks and records
// every finished batch. It implements reconcile.Notifier and
// reconcile.FetchStartNotifier.
//
// Fetch events are written to the recorder from a background goroutine, so
// the controller never waits on the database. Close drains the queue.
type Hub struct {
	mu     sync.Mutex
	sinks  []Sink
	views  []func(model.ViewState)
	rec    recorder.Recorder
	prev   model.ViewState
	audit  chan *recorder.FetchEvent
	closed bool
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewHub creates a hub and starts its audit writer. rec may be nil.
func NewHub(log zerolog.Logger, rec recorder.Recorder, sinks ...Sink) *Hub {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	h := &Hub{
		sinks: sinks,
		rec:   rec,
		audit: make(chan *recorder.FetchEvent, 64),
		log:   logging.Component(log, "notifier"),
	}
	h.wg.Add(1)
	go h.writeAudit()
	return h
}

// Close stops accepting fetch events and waits until the queued ones are
// recorded.
func (h *Hub) Close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.audit)
	}
	h.mu.Unlock()
	h.wg.Wait()
}

func (h *Hub) writeAudit() {
	defer h.wg.Done()
	for evt := range h.audit {
		if err := h.rec.RecordFetch(evt); err != nil {
			h.log.Warn().Err(err).Uint64("batch", evt.BatchID).Msg("record fetch failed")
		}
	}
}

func (h *Hub) enqueueAudit(evt *recorder.FetchEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.audit <- evt:
	default:
		h.log.Warn().Uint64("batch", evt.BatchID).Msg("audit queue full, dropping fetch event")
	}
}

// AddSink registers another banner sink.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// OnView registers fn to receive every published view.
func (h *Hub) OnView(fn func(model.ViewState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = append(h.views, fn)
}

func (h *Hub) OnFetchStarted(b executor.Batch) {
	h.deliver(FetchStartedBanner(b))
}

func (h *Hub) OnViewStateChanged(v model.ViewState) {
	h.mu.Lock()
	prev := h.prev
	h.prev = v
	views := append([]func(model.ViewState){}, h.views...)
	h.mu.Unlock()

	for _, b := range ViewChangeBanners(prev, v) {
		h.deliver(b)
	}
	for _, fn := range views {
		fn(v)
	}
}

func (h *Hub) OnFetchOutcome(o reconcile.FetchOutcome) {
	evt := &recorder.FetchEvent{
		BatchID:  o.BatchID,
		Window:   o.Window,
		Symbols:  o.Symbols,
		Added:    o.Added,
		Failed:   o.FailedSymbols(),
		Status:   string(o.Status),
		Stale:    o.Stale,
		Duration: o.Duration,
	}
	if o.Err != nil {
		evt.Error = o.Err.Error()
	}
	h.enqueueAudit(evt)
	if b, ok := OutcomeBanner(o); ok {
		h.deliver(b)
	}
}

func (h *Hub) deliver(b Banner) {
	h.mu.Lock()
	sinks := append([]Sink{}, h.sinks...)
	h.mu.Unlock()
	for _, s := range sinks {
		s.Deliver(b)
	}
}
