package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"barcache/internal/model"
)

// SQLiteJournal persists fetch events to a SQLite database.
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens (or creates) the database and runs migrations.
func NewSQLite(dbPath string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers (ad-hoc queries, dashboards) don't block writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	j := &SQLiteJournal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("fetch journal opened", "path", dbPath)
	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fetch_log (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			request_id TEXT,
			ticker     TEXT NOT NULL,
			source     TEXT NOT NULL,
			from_date  TEXT NOT NULL,
			to_date    TEXT NOT NULL,
			bars       INTEGER,
			outcome    TEXT NOT NULL,
			detail     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_ts ON fetch_log(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_key ON fetch_log(source, ticker)`,
	}
	for _, s := range stmts {
		if _, err := j.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (j *SQLiteJournal) RecordFetch(evt *FetchEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	at := evt.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.Exec(`INSERT INTO fetch_log
		(timestamp, request_id, ticker, source, from_date, to_date, bars, outcome, detail)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		at.Unix(), evt.RequestID, evt.Ticker, evt.Source,
		model.FormatDate(evt.Range.From), model.FormatDate(evt.Range.To),
		evt.Bars, evt.Outcome, evt.Detail,
	)
	return err
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
