// Package console parses user commands into desired states and renders the
// replies. The same handler serves the terminal and Telegram.
package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"TickerLens/internal/cache"
	"TickerLens/internal/calculator"
	"TickerLens/internal/executor"
	"TickerLens/internal/logging"
	"TickerLens/internal/model"
	"TickerLens/internal/notifier"
	"TickerLens/internal/reconcile"
	"TickerLens/internal/recorder"
	"TickerLens/internal/saver"
)

// Controller is the reconciliation controller as seen by the console.
type Controller interface {
	Modify(ctx context.Context, edit func(*model.DesiredState) error) (model.ViewState, error)
	SetZoom(ctx context.Context, from, to time.Time) (model.ViewState, error)
	ClearZoom(ctx context.Context) (model.ViewState, error)
	View() model.ViewState
	Desired() (model.DesiredState, bool)
	Phase() reconcile.Phase
	PendingBatches() int
}

// StatsSource reports cache occupancy.
type StatsSource interface {
	Stats() cache.Stats
	Keys() []model.Key
}

// Tracker is told when the user points the window end at today, so the
// rollover job keeps following it.
type Tracker interface {
	Track(end model.Date)
}

// Session persists accepted desired states.
type Session interface {
	Record(d model.DesiredState) error
}

var errNoState = errors.New("nothing loaded yet")

const helpText = `Commands:
  show                        current view
  add SYM...                  add instruments
  remove SYM...               remove instruments
  set SYM...                  replace the instrument list
  range START [END|today]     change the date range (YYYY-MM-DD)
  interval 1d|5d|1wk|1mo|3mo  change the interval
  zoom 1m|6m|ytd|1y|all       zoom to a preset
  zoom FROM TO                zoom to dates ("-" leaves a bound open)
  zoom off                    clear the zoom
  export [csv|json|parquet] [PATH]
  stats                       cache and fetch status
  history [N]                 recent fetch batches
  help`

// Handler executes console commands.
type Handler struct {
	Ctl       Controller
	Cache     StatsSource
	Recorder  recorder.Recorder
	Tracker   Tracker
	Session   Session
	Policy    executor.Policy
	ExportDir string
	Timeout   time.Duration
	Today     func() model.Date

	ctx context.Context
	log zerolog.Logger
}

// NewHandler creates a new Handler. Commands run under ctx.
func NewHandler(ctx context.Context, ctl Controller, store StatsSource, rec recorder.Recorder, log zerolog.Logger) *Handler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Handler{
		Ctl:       ctl,
		Cache:     store,
		Recorder:  rec,
		ExportDir: "exports",
		Timeout:   10 * time.Second,
		Today:     model.Today,
		ctx:       ctx,
		log:       logging.Component(log, "console"),
	}
}

// Handle processes a user command and returns a reply. A leading slash is
// ignored so Telegram bot commands work unchanged.
func (h *Handler) Handle(command string) string {
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(command), "/"))
	if len(fields) == 0 {
		return ""
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	ctx, cancel := context.WithTimeout(h.ctx, h.Timeout)
	defer cancel()

	reply, err := h.dispatch(ctx, name, args)
	if err != nil {
		h.log.Warn().Err(err).Str("command", name).Msg("command failed")
		return "❌ " + err.Error()
	}
	return reply
}

func (h *Handler) dispatch(ctx context.Context, name string, args []string) (string, error) {
	switch name {
	case "show", "view":
		return h.render(h.Ctl.View()), nil
	case "add":
		return h.change(ctx, func(d *model.DesiredState) error { return addSymbols(d, args) })
	case "remove", "rm":
		return h.change(ctx, func(d *model.DesiredState) error { return removeSymbols(d, args) })
	case "set":
		return h.change(ctx, func(d *model.DesiredState) error {
			if len(args) == 0 {
				return errors.New("usage: set SYM...")
			}
			d.Symbols = slices.Clone(args)
			return nil
		})
	case "range":
		var follow bool
		reply, err := h.change(ctx, func(d *model.DesiredState) (err error) {
			follow, err = h.setRange(d, args)
			return err
		})
		if err == nil && follow && h.Tracker != nil {
			h.Tracker.Track(h.Today())
		}
		return reply, err
	case "interval":
		return h.change(ctx, func(d *model.DesiredState) error {
			if len(args) != 1 {
				return errors.New("usage: interval 1d|5d|1wk|1mo|3mo")
			}
			iv, err := model.ParseInterval(args[0])
			if err != nil {
				return err
			}
			d.Interval = iv
			return nil
		})
	case "zoom":
		return h.zoom(ctx, args)
	case "export":
		return h.export(args)
	case "stats":
		return h.stats(), nil
	case "history":
		return h.history(args)
	default:
		return helpText, nil
	}
}

// change applies edit to the desired state on the controller and submits it.
func (h *Handler) change(ctx context.Context, edit func(*model.DesiredState) error) (string, error) {
	v, err := h.Ctl.Modify(ctx, edit)
	if errors.Is(err, reconcile.ErrNoDesired) {
		return "", errNoState
	}
	if err != nil {
		return "", err
	}
	if h.Session != nil {
		if d, ok := h.Ctl.Desired(); ok {
			if err := h.Session.Record(d); err != nil {
				h.log.Warn().Err(err).Msg("save session")
			}
		}
	}
	return h.render(v), nil
}

func (h *Handler) render(v model.ViewState) string {
	out := notifier.FormatView(v)
	if n := h.Ctl.PendingBatches(); n > 0 {
		out += fmt.Sprintf("⏳ %d fetch batch(es) pending\n", n)
	}
	return out
}

func addSymbols(d *model.DesiredState, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: add SYM...")
	}
	d.Symbols = append(d.Symbols, args...)
	return nil
}

func removeSymbols(d *model.DesiredState, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: remove SYM...")
	}
	drop := make(map[string]bool, len(args))
	for _, a := range args {
		drop[model.NormalizeSymbol(a)] = true
	}
	var unknown []string
	for sym := range drop {
		if !d.Has(sym) {
			unknown = append(unknown, sym)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("not displayed: %s", strings.Join(unknown, ", "))
	}
	d.Symbols = slices.DeleteFunc(d.Symbols, func(s string) bool { return drop[s] })
	return nil
}

// setRange reports whether the new end is today.
func (h *Handler) setRange(d *model.DesiredState, args []string) (bool, error) {
	if len(args) < 1 || len(args) > 2 {
		return false, errors.New("usage: range START [END|today]")
	}
	start, err := model.ParseDate(args[0])
	if err != nil {
		return false, err
	}
	today := h.Today()
	end := today
	if len(args) == 2 && !strings.EqualFold(args[1], "today") {
		if end, err = model.ParseDate(args[1]); err != nil {
			return false, err
		}
	}
	d.Start, d.End = start, end
	return end == today, nil
}

func (h *Handler) zoom(ctx context.Context, args []string) (string, error) {
	switch {
	case len(args) == 1 && strings.EqualFold(args[0], "off"):
		v, err := h.Ctl.ClearZoom(ctx)
		if err != nil {
			return "", err
		}
		return h.render(v), nil
	case len(args) == 1:
		p, err := calculator.ParsePreset(args[0])
		if err != nil {
			return "", err
		}
		if p == calculator.All {
			v, err := h.Ctl.ClearZoom(ctx)
			if err != nil {
				return "", err
			}
			return h.render(v), nil
		}
		z, err := calculator.PresetZoom(latestSeries(h.Ctl.View()), p)
		if err != nil {
			return "", fmt.Errorf("zoom %s: %w", p, err)
		}
		v, err := h.Ctl.SetZoom(ctx, z.From, z.To)
		if err != nil {
			return "", err
		}
		return h.render(v), nil
	case len(args) == 2:
		from, err := zoomBound(args[0], false)
		if err != nil {
			return "", err
		}
		to, err := zoomBound(args[1], true)
		if err != nil {
			return "", err
		}
		v, err := h.Ctl.SetZoom(ctx, from, to)
		if err != nil {
			return "", err
		}
		return h.render(v), nil
	}
	return "", errors.New("usage: zoom PRESET | zoom FROM TO | zoom off")
}

// zoomBound parses one side of "zoom FROM TO". An upper bound covers the
// whole day, since intraday-stamped bars (Yahoo stamps the session open)
// would otherwise fall past midnight of TO.
func zoomBound(s string, upper bool) (time.Time, error) {
	if s == "-" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		return d.AddDays(1).Time().Add(-time.Nanosecond), nil
	}
	return d.Time(), nil
}

// latestSeries returns the column whose last bar is the most recent, so
// presets are relative to the newest data on screen.
func latestSeries(v model.ViewState) model.Series {
	var best model.Series
	var bestAt time.Time
	for _, c := range v.Columns {
		if last, ok := c.Series.Last(); ok && last.Time.After(bestAt) {
			best, bestAt = c.Series, last.Time
		}
	}
	return best
}

func (h *Handler) export(args []string) (string, error) {
	v := h.Ctl.View()
	if len(v.Columns) == 0 {
		return "", errors.New("nothing to export")
	}
	format, path := "csv", ""
	switch len(args) {
	case 0:
	case 1:
		if saver.NewViewSaver(args[0]) != nil {
			format = args[0]
		} else {
			format, path = "", args[0]
		}
	case 2:
		format, path = args[0], args[1]
	default:
		return "", errors.New("usage: export [csv|json|parquet] [PATH]")
	}
	if path == "" {
		path = filepath.Join(h.ExportDir, fmt.Sprintf("tickerlens-%s-%s", v.Window.End, v.Window.Interval))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create export dir: %w", err)
		}
	}
	written, n, err := saver.Export(v, format, path)
	if err != nil {
		return "", err
	}
	h.log.Info().Str("path", written).Int("rows", n).Msg("view exported")
	return fmt.Sprintf("💾 %d rows written to %s", n, written), nil
}

func (h *Handler) stats() string {
	var b strings.Builder
	st := h.Cache.Stats()
	bound := "unbounded"
	if st.Bounded {
		bound = "bounded"
	}
	b.WriteString(fmt.Sprintf("Cache: %d entries (%s), %d writes, %d evictions\n", st.Entries, bound, st.Writes, st.Evictions))
	if keys := h.Cache.Keys(); len(keys) > 0 {
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		slices.Sort(names)
		b.WriteString("Cached: " + strings.Join(names, ", ") + "\n")
	}
	b.WriteString(fmt.Sprintf("Fetch: %s, %d batch(es) pending", h.Ctl.Phase(), h.Ctl.PendingBatches()))
	if h.Policy != "" {
		b.WriteString(", policy " + string(h.Policy))
	}
	b.WriteString("\n")
	if d, ok := h.Ctl.Desired(); ok {
		b.WriteString(fmt.Sprintf("Desired: %s %s\n", strings.Join(d.Symbols, ","), d.Window))
	}
	v := h.Ctl.View()
	b.WriteString(fmt.Sprintf("View: v%d, %d column(s)\n", v.Version, len(v.Columns)))
	return b.String()
}

func (h *Handler) history(args []string) (string, error) {
	limit := 10
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return "", fmt.Errorf("history: invalid count %q", args[0])
		}
		limit = n
	}
	events, err := h.Recorder.RecentFetches(limit)
	if err != nil {
		return "", fmt.Errorf("history: %w", err)
	}
	return notifier.FormatHistory(events), nil
}
