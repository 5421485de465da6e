package recorder

import (
	"time"

	"TickerLens/internal/model"
)

// FetchEvent is the audit record of one finished fetch batch.
type FetchEvent struct {
	At       time.Time
	BatchID  uint64
	Window   model.Window
	Symbols  []string
	Added    []string
	Failed   []string
	Status   string // "success", "partial", "failure", "no_data"
	Stale    bool
	Error    string
	Duration time.Duration
}

// Snapshot is the card figures of a view at one point in time.
type Snapshot struct {
	At      time.Time
	Version uint64
	Window  model.Window
	Stats   []model.ColumnStats
}

//go:generate mockgen -package=notifier -destination=../notifier/mock_recorder_test.go -source=recorder.go Recorder

// Recorder keeps an audit trail of fetches and view snapshots for later
// analysis. It is never read back into the cache.
type Recorder interface {
	RecordFetch(evt *FetchEvent) error
	RecordSnapshot(snap *Snapshot) error
	RecentFetches(limit int) ([]FetchEvent, error)
	Close() error
}
