package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"TickerLens/internal/model"
)

// State is the persisted desired state.
type State struct {
	Symbols  []string       `json:"symbols"`
	Start    model.Date     `json:"start"`
	End      model.Date     `json:"end"`
	Interval model.Interval `json:"interval"`
	// FollowToday means End is resolved to the current day on restore.
	FollowToday bool      `json:"follow_today"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LoadState reads the state from a JSON file. Returns nil if the file doesn't exist.
func LoadState(filePath string) (*State, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &state, nil
}

// SaveState writes the state to a JSON file, replacing it atomically.
func SaveState(filePath string, state *State) error {
	state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filePath)
}
