package calculator

import (
	"fmt"
	"strings"
	"time"

	"TickerLens/internal/model"
)

// Preset is a named visible range relative to the last bar.
type Preset string

const (
	OneMonth  Preset = "1 month"
	SixMonths Preset = "6 months"
	YTD       Preset = "YTD"
	OneYear   Preset = "1 year"
	All       Preset = "all"
)

// Presets lists the presets in display order.
func Presets() []Preset { return []Preset{OneMonth, SixMonths, YTD, OneYear, All} }

// ParsePreset accepts a preset name, case-insensitively. "1m", "6m" and "1y"
// are accepted as short forms.
func ParsePreset(s string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1 month", "1m":
		return OneMonth, nil
	case "6 months", "6m":
		return SixMonths, nil
	case "ytd":
		return YTD, nil
	case "1 year", "1y":
		return OneYear, nil
	case "all":
		return All, nil
	}
	return "", fmt.Errorf("unknown preset %q", s)
}

// PresetZoom returns the zoom for p over s. All returns an open zoom.
func PresetZoom(s model.Series, p Preset) (model.Zoom, error) {
	last, ok := s.Last()
	if !ok {
		return model.Zoom{}, errNoBars
	}
	end := last.Time
	switch p {
	case OneMonth:
		return model.Zoom{From: monthsBefore(end, 1), To: end}, nil
	case SixMonths:
		return model.Zoom{From: monthsBefore(end, 6), To: end}, nil
	case OneYear:
		return model.Zoom{From: monthsBefore(end, 12), To: end}, nil
	case YTD:
		for _, b := range s {
			if b.Time.Year() == end.Year() {
				return model.Zoom{From: b.Time, To: end}, nil
			}
		}
		return model.Zoom{From: end, To: end}, nil
	case All:
		return model.Zoom{}, nil
	}
	return model.Zoom{}, fmt.Errorf("unknown preset %q", p)
}

// monthsBefore steps back n calendar months, clamping the day to the length
// of the target month (Mar 31 -> Feb 28/29).
func monthsBefore(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, t.Location()).AddDate(0, -n, 0)
	days := first.AddDate(0, 1, -1).Day()
	if d > days {
		d = days
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
