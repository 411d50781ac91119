// Package persistence stores the run: binary checkpoints, per-day frame
// files, and a SQLite history of daily statistics.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/epiworld/internal/engine"
)

// Meta keys.
const (
	MetaRunID     = "run_id"
	MetaSeed      = "seed"
	MetaLastDay   = "last_day"
	MetaStartedAt = "started_at"
)

// ErrNoMeta is returned by GetMeta for an absent key.
var ErrNoMeta = errors.New("meta key not found")

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// NewFromConn wraps an existing connection without migrating it.
func NewFromConn(conn *sql.DB, driver string) *DB {
	return &DB{conn: sqlx.NewDb(conn, driver)}
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_stats (
		day INTEGER PRIMARY KEY,
		population INTEGER NOT NULL,
		infected INTEGER NOT NULL,
		recovered INTEGER NOT NULL,
		susceptible INTEGER NOT NULL,
		new_infections INTEGER NOT NULL,
		recoveries INTEGER NOT NULL,
		immunity_lost INTEGER NOT NULL,
		deaths INTEGER NOT NULL,
		moves INTEGER NOT NULL,
		homecomings INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		day INTEGER NOT NULL,
		path TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_day ON snapshots(day);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveDayStats stores one day's statistics, replacing any earlier row for
// the same day (a resumed run re-simulates days past its checkpoint).
func (db *DB) SaveDayStats(st engine.DayStats) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO daily_stats
		(day, population, infected, recovered, susceptible, new_infections,
		 recoveries, immunity_lost, deaths, moves, homecomings)
		VALUES (:day, :population, :infected, :recovered, :susceptible, :new_infections,
		 :recoveries, :immunity_lost, :deaths, :moves, :homecomings)`, st)
	if err != nil {
		return fmt.Errorf("insert day %d: %w", st.Day, err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		MetaLastDay, strconv.FormatUint(uint64(st.Day), 10)); err != nil {
		return fmt.Errorf("update last day: %w", err)
	}
	return tx.Commit()
}

// StatsHistory returns daily statistics in day order. limit <= 0 returns
// every day; otherwise the most recent limit days.
func (db *DB) StatsHistory(limit int) ([]engine.DayStats, error) {
	var rows []engine.DayStats
	var err error
	if limit <= 0 {
		err = db.conn.Select(&rows, "SELECT * FROM daily_stats ORDER BY day")
	} else {
		err = db.conn.Select(&rows,
			"SELECT * FROM (SELECT * FROM daily_stats ORDER BY day DESC LIMIT ?) ORDER BY day", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("select stats: %w", err)
	}
	return rows, nil
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNoMeta, key)
	}
	return value, err
}

// SnapshotRecord is one written checkpoint or frame file.
type SnapshotRecord struct {
	ID        string `db:"id" json:"id"`
	Kind      string `db:"kind" json:"kind"`
	Day       uint32 `db:"day" json:"day"`
	Path      string `db:"path" json:"path"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// RecordSnapshot logs a written file and returns its id.
func (db *DB) RecordSnapshot(kind string, day uint32, path string) (string, error) {
	id := newID()
	_, err := db.conn.Exec(
		"INSERT INTO snapshots (id, kind, day, path, created_at) VALUES (?, ?, ?, ?, ?)",
		id, kind, day, path, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("record %s: %w", kind, err)
	}
	return id, nil
}

// Snapshots returns the most recent snapshot records, newest first. ULIDs
// sort by creation time.
func (db *DB) Snapshots(kind string, limit int) ([]SnapshotRecord, error) {
	var out []SnapshotRecord
	err := db.conn.Select(&out,
		"SELECT id, kind, day, path, created_at FROM snapshots WHERE kind = ? ORDER BY id DESC LIMIT ?",
		kind, limit)
	return out, err
}
