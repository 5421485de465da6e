package model

import (
	"errors"
	"strings"
	"time"
)

// NormalizeSymbol upper-cases and trims a user supplied symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// DesiredState is the authoritative statement of what the user wants
// displayed. It is supplied anew on every interaction.
type DesiredState struct {
	Symbols []string
	Window
}

// Normalize returns a copy with normalized symbols and duplicates removed,
// keeping the first occurrence, and validates the window.
func (d DesiredState) Normalize() (DesiredState, error) {
	if err := d.Window.Validate(); err != nil {
		return DesiredState{}, err
	}
	seen := make(map[string]struct{}, len(d.Symbols))
	out := make([]string, 0, len(d.Symbols))
	for _, s := range d.Symbols {
		s = NormalizeSymbol(s)
		if s == "" {
			return DesiredState{}, errors.New("empty symbol in desired state")
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	d.Symbols = out
	return d, nil
}

// Has reports whether symbol is desired.
func (d DesiredState) Has(symbol string) bool {
	for _, s := range d.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// Column is one instrument's series in a view.
type Column struct {
	Symbol string
	Series Series
}

// Zoom is a visible sub-range used only for rendering. Zero bounds are open.
type Zoom struct {
	From time.Time
	To   time.Time
}

// ViewState is the currently displayed multi-instrument series. Values are
// replaced, never modified in place.
type ViewState struct {
	Version uint64
	Window  Window
	Columns []Column
	Zoom    *Zoom
}

// Symbols returns the displayed symbols in column order.
func (v ViewState) Symbols() []string {
	out := make([]string, len(v.Columns))
	for i, c := range v.Columns {
		out[i] = c.Symbol
	}
	return out
}

// Column returns the full series of symbol.
func (v ViewState) Column(symbol string) (Series, bool) {
	for _, c := range v.Columns {
		if c.Symbol == symbol {
			return c.Series, true
		}
	}
	return nil, false
}

func (v ViewState) Has(symbol string) bool {
	_, ok := v.Column(symbol)
	return ok
}

// Visible returns the zoomed part of symbol's series.
func (v ViewState) Visible(symbol string) Series {
	s, ok := v.Column(symbol)
	if !ok {
		return nil
	}
	if v.Zoom == nil {
		return s
	}
	return s.Between(v.Zoom.From, v.Zoom.To)
}
