package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"TickerLens/internal/cache"
	"TickerLens/internal/calculator"
	"TickerLens/internal/logging"
	"TickerLens/internal/model"
	"TickerLens/internal/reconcile"
	"TickerLens/internal/recorder"
)

// Controller is the part of the reconciliation controller the jobs drive.
type Controller interface {
	Modify(ctx context.Context, edit func(*model.DesiredState) error) (model.ViewState, error)
	View() model.ViewState
}

var (
	errUserEnd  = errors.New("window end set by user")
	errUpToDate = errors.New("window end is current")
)

// StatsSource reports cache occupancy.
type StatsSource interface {
	Stats() cache.Stats
}

// Scheduler runs the periodic jobs: the end-of-day rollover of a window that
// follows today, and the hourly cache and view snapshot.
type Scheduler struct {
	Cron     *cron.Cron
	Ctl      Controller
	Cache    StatsSource
	Recorder recorder.Recorder
	Ctx      context.Context

	// Today is the clock used by the rollover job.
	Today func() model.Date

	log zerolog.Logger

	mu sync.Mutex
	// tracked is the end date the rollover last set. A desired window whose
	// end moved away from it was chosen by the user and is left alone.
	tracked model.Date
	follow  bool
}

// NewScheduler creates a new Scheduler. With followToday set the desired
// window end is moved forward to the current day by the rollover job.
func NewScheduler(ctx context.Context, ctl Controller, store StatsSource, rec recorder.Recorder, followToday bool, log zerolog.Logger) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	s := &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Ctl:      ctl,
		Cache:    store,
		Recorder: rec,
		Ctx:      ctx,
		Today:    model.Today,
		log:      logging.Component(log, "scheduler"),
		follow:   followToday,
	}
	s.tracked = s.Today()
	return s
}

// RegisterAll registers the rollover and snapshot jobs.
func (s *Scheduler) RegisterAll(rolloverCron, statsCron string) error {
	if _, err := s.Cron.AddFunc(rolloverCron, func() { s.RunRolloverNow() }); err != nil {
		return fmt.Errorf("register rollover task: %w", err)
	}
	if _, err := s.Cron.AddFunc(statsCron, func() { s.RunSnapshotNow() }); err != nil {
		return fmt.Errorf("register stats task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunRolloverNow moves the desired window end to today when the window
// follows the current day. It reports whether a new desired state was
// submitted.
func (s *Scheduler) RunRolloverNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.follow {
		return false
	}
	today, tracked := s.Today(), s.tracked
	var from model.Date
	_, err := s.Ctl.Modify(s.Ctx, func(d *model.DesiredState) error {
		if d.End != tracked {
			from = d.End
			return errUserEnd
		}
		if !today.After(d.End) {
			return errUpToDate
		}
		from, d.End = d.End, today
		return nil
	})
	switch {
	case errors.Is(err, errUserEnd):
		s.log.Debug().Str("end", from.String()).Msg("window end set by user, rollover skipped")
		return false
	case errors.Is(err, errUpToDate), errors.Is(err, reconcile.ErrNoDesired):
		return false
	case err != nil:
		s.log.Error().Err(err).Str("end", today.String()).Msg("rollover submit")
		return false
	}
	s.tracked = today
	s.log.Info().Str("from", from.String()).Str("to", today.String()).Msg("window rolled over")
	return true
}

// Track tells the rollover job that the user pointed the window end at the
// current day end, so it is followed from now on.
func (s *Scheduler) Track(end model.Date) {
	s.mu.Lock()
	s.tracked = end
	s.follow = true
	s.mu.Unlock()
}

// RunSnapshotNow logs cache occupancy and records the card figures of the
// current view.
func (s *Scheduler) RunSnapshotNow() {
	st := s.Cache.Stats()
	s.log.Info().
		Int("entries", st.Entries).
		Uint64("writes", st.Writes).
		Uint64("evictions", st.Evictions).
		Bool("bounded", st.Bounded).
		Msg("cache stats")

	v := s.Ctl.View()
	if len(v.Columns) == 0 {
		return
	}
	if err := s.Recorder.RecordSnapshot(&recorder.Snapshot{
		At:      time.Now(),
		Version: v.Version,
		Window:  v.Window,
		Stats:   calculator.ViewStats(v),
	}); err != nil {
		s.log.Error().Err(err).Msg("record snapshot")
	}
}
