// Package session remembers the last desired state across restarts.
package session

import (
	"slices"
	"sync"

	"TickerLens/internal/model"
)

// Manager loads and saves the desired state with concurrency safety.
type Manager struct {
	mu       sync.Mutex
	state    *State
	filePath string

	// Today is the clock used to decide whether a window follows today.
	Today func() model.Date
}

// NewManager creates a Manager, loading any saved state from disk.
func NewManager(filePath string) (*Manager, error) {
	state, err := LoadState(filePath)
	if err != nil {
		return nil, err
	}
	return &Manager{state: state, filePath: filePath, Today: model.Today}, nil
}

// Restore returns the saved desired state. A saved window that followed
// today ends on the current day.
func (m *Manager) Restore() (model.DesiredState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return model.DesiredState{}, false
	}
	end := m.state.End
	if m.state.FollowToday {
		end = m.Today()
	}
	d, err := model.DesiredState{
		Symbols: slices.Clone(m.state.Symbols),
		Window:  model.Window{Start: m.state.Start, End: end, Interval: m.state.Interval},
	}.Normalize()
	if err != nil {
		return model.DesiredState{}, false
	}
	return d, true
}

// Record saves d when it differs from the saved state.
func (m *Manager) Record(d model.DesiredState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := &State{
		Symbols:     slices.Clone(d.Symbols),
		Start:       d.Start,
		End:         d.End,
		Interval:    d.Interval,
		FollowToday: d.End == m.Today(),
	}
	if m.state != nil && sameState(m.state, next) {
		return nil
	}
	if err := SaveState(m.filePath, next); err != nil {
		return err
	}
	m.state = next
	return nil
}

func sameState(a, b *State) bool {
	if a.FollowToday != b.FollowToday || a.Start != b.Start || a.Interval != b.Interval {
		return false
	}
	if !a.FollowToday && a.End != b.End {
		return false
	}
	return slices.Equal(a.Symbols, b.Symbols)
}
