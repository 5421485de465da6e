// Package planner decides which instruments of a request can be served from
// the cache and which must be fetched.
package planner

import (
	"TickerLens/internal/metrics"
	"TickerLens/internal/model"
)

// Lookup is the read side of the cache the planner needs.
type Lookup interface {
	Contains(k model.Key) bool
}

// Plan is a disjoint split of the requested symbols. Both slices keep the
// request order.
type Plan struct {
	Window model.Window
	Hit    []string
	Miss   []string
}

// Empty reports whether nothing was requested.
func (p Plan) Empty() bool { return len(p.Hit) == 0 && len(p.Miss) == 0 }

// Partition splits symbols by whether their exact key under w is cached. It
// performs no I/O; duplicates are planned once. m may be nil.
func Partition(store Lookup, symbols []string, w model.Window, m *metrics.Metrics) Plan {
	p := Plan{Window: w}
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		if store.Contains(model.KeyFor(sym, w)) {
			p.Hit = append(p.Hit, sym)
			m.Hit()
			continue
		}
		p.Miss = append(p.Miss, sym)
		m.Miss()
	}
	return p
}
