package model

import (
	"fmt"
	"strings"
)

// Interval is the sampling granularity of a series. Values are the upstream
// wire codes.
type Interval string

const (
	Daily     Interval = "1d"
	FiveDay   Interval = "5d"
	Weekly    Interval = "1wk"
	Monthly   Interval = "1mo"
	Quarterly Interval = "3mo"
)

var intervalLabels = map[Interval]string{
	Daily:     "Daily",
	FiveDay:   "5-Day",
	Weekly:    "Weekly",
	Monthly:   "Monthly",
	Quarterly: "Quarterly",
}

// Intervals lists the supported intervals, finest first.
func Intervals() []Interval {
	return []Interval{Daily, FiveDay, Weekly, Monthly, Quarterly}
}

// ParseInterval accepts a wire code ("1wk") or a label ("weekly").
func ParseInterval(s string) (Interval, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, iv := range Intervals() {
		if v == string(iv) || v == strings.ToLower(intervalLabels[iv]) {
			return iv, nil
		}
	}
	return "", fmt.Errorf("unknown interval %q", s)
}

func (i Interval) Valid() bool {
	_, ok := intervalLabels[i]
	return ok
}

// Label is the human readable name ("Weekly").
func (i Interval) Label() string {
	if l, ok := intervalLabels[i]; ok {
		return l
	}
	return string(i)
}
