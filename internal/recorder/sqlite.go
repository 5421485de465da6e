package recorder

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"TickerLens/internal/logging"
	"TickerLens/internal/model"
)

// SQLiteRecorder persists the audit trail to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets external readers query while batches are being recorded.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logging.Component(log, "recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_batches (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			batch_id    INTEGER NOT NULL,
			range_start TEXT NOT NULL,
			range_end   TEXT NOT NULL,
			interval    TEXT NOT NULL,
			symbols     TEXT,
			added       TEXT,
			failed      TEXT,
			status      TEXT,
			stale       INTEGER,
			error       TEXT,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_ts ON fetch_batches(timestamp)`,

		`CREATE TABLE IF NOT EXISTS column_snapshots (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			view_version INTEGER NOT NULL,
			range_start  TEXT NOT NULL,
			range_end    TEXT NOT NULL,
			interval     TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			last_close   REAL,
			delta        REAL,
			high         REAL,
			low          REAL,
			position     REAL,
			ma50         REAL,
			ma200        REAL,
			volume_mean  REAL,
			bars         INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_ts ON column_snapshots(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordFetch(evt *FetchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.Exec(`INSERT INTO fetch_batches
		(timestamp, batch_id, range_start, range_end, interval,
		 symbols, added, failed, status, stale, error, duration_ms)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		at.Unix(), int64(evt.BatchID),
		evt.Window.Start.String(), evt.Window.End.String(), string(evt.Window.Interval),
		joinSymbols(evt.Symbols), joinSymbols(evt.Added), joinSymbols(evt.Failed),
		evt.Status, evt.Stale, evt.Error, evt.Duration.Milliseconds(),
	)
	return err
}

func (r *SQLiteRecorder) RecordSnapshot(snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	at := snap.At
	if at.IsZero() {
		at = time.Now()
	}
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	w := snap.Window
	for _, st := range snap.Stats {
		if _, err := tx.Exec(`INSERT INTO column_snapshots
			(timestamp, view_version, range_start, range_end, interval, symbol,
			 last_close, delta, high, low, position, ma50, ma200, volume_mean, bars)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			at.Unix(), int64(snap.Version), w.Start.String(), w.End.String(), string(w.Interval), st.Symbol,
			st.Last, st.Delta, st.High, st.Low, st.Position, st.MA50, st.MA200, st.Volume.Mean, st.Bars,
		); err != nil {
			return fmt.Errorf("insert %s: %w", st.Symbol, err)
		}
	}
	return tx.Commit()
}

// RecentFetches returns up to limit fetch events, newest first.
func (r *SQLiteRecorder) RecentFetches(limit int) ([]FetchEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT timestamp, batch_id, range_start, range_end, interval,
		symbols, added, failed, status, stale, error, duration_ms
		FROM fetch_batches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch_batches: %w", err)
	}
	defer rows.Close()

	var out []FetchEvent
	for rows.Next() {
		var (
			ts, batchID, durMS             int64
			start, end, interval           string
			symbols, added, failed, status string
			errText                        string
			stale                          bool
		)
		if err := rows.Scan(&ts, &batchID, &start, &end, &interval,
			&symbols, &added, &failed, &status, &stale, &errText, &durMS); err != nil {
			return nil, fmt.Errorf("scan fetch_batches: %w", err)
		}
		w := model.Window{Interval: model.Interval(interval)}
		if w.Start, err = model.ParseDate(start); err != nil {
			return nil, err
		}
		if w.End, err = model.ParseDate(end); err != nil {
			return nil, err
		}
		out = append(out, FetchEvent{
			At:       time.Unix(ts, 0),
			BatchID:  uint64(batchID),
			Window:   w,
			Symbols:  splitSymbols(symbols),
			Added:    splitSymbols(added),
			Failed:   splitSymbols(failed),
			Status:   status,
			Stale:    stale,
			Error:    errText,
			Duration: time.Duration(durMS) * time.Millisecond,
		})
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func joinSymbols(s []string) string { return strings.Join(s, ",") }

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
