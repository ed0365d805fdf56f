package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	sqliteSchemaSQL = `CREATE TABLE IF NOT EXISTS flea_multipliers (
        kind  TEXT NOT NULL,
        id    TEXT NOT NULL,
        value REAL NOT NULL,
        PRIMARY KEY (kind, id)
    );
    CREATE TABLE IF NOT EXISTS flea_state (
        singleton     INTEGER PRIMARY KEY CHECK (singleton = 1),
        last_decay_at TEXT NOT NULL
    );`

	sqliteSelectMultipliersSQL = `SELECT kind, id, value FROM flea_multipliers;`
	sqliteSelectStateSQL       = `SELECT last_decay_at FROM flea_state WHERE singleton = 1;`
	sqliteDeleteMultipliersSQL = `DELETE FROM flea_multipliers;`
	sqliteInsertMultiplierSQL  = `INSERT INTO flea_multipliers (kind, id, value) VALUES (:kind, :id, :value);`
	sqliteUpsertStateSQL       = `INSERT INTO flea_state (singleton, last_decay_at) VALUES (1, ?)
    ON CONFLICT (singleton) DO UPDATE SET last_decay_at = excluded.last_decay_at;`
)

// SQLiteStore keeps the state in a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Pass ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// LoadState reads every multiplier row. An untouched database yields ErrStateNotFound.
func (s *SQLiteStore) LoadState(ctx context.Context) (MultiplierState, error) {
	var stamp string
	if err := s.db.GetContext(ctx, &stamp, sqliteSelectStateSQL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return MultiplierState{}, ErrStateNotFound
		}
		return MultiplierState{}, fmt.Errorf("select flea state: %w", err)
	}

	lastDecay, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return MultiplierState{}, fmt.Errorf("parse last decay: %w", err)
	}

	var rows []multiplierRow
	if err := s.db.SelectContext(ctx, &rows, sqliteSelectMultipliersSQL); err != nil {
		return MultiplierState{}, fmt.Errorf("select multipliers: %w", err)
	}

	state := NewMultiplierState(lastDecay)
	for _, row := range rows {
		switch row.Kind {
		case kindItem:
			state.ItemMultiplier[row.ID] = row.Value
		case kindCategory:
			state.CategoryMultiplier[row.ID] = row.Value
		}
	}
	return state, nil
}

// SaveState replaces the stored rows in a single transaction.
func (s *SQLiteStore) SaveState(ctx context.Context, state MultiplierState) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sqlite tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqliteDeleteMultipliersSQL); err != nil {
		return fmt.Errorf("clear multipliers: %w", err)
	}
	for _, row := range stateRows(state) {
		if _, err := tx.NamedExecContext(ctx, sqliteInsertMultiplierSQL, row); err != nil {
			return fmt.Errorf("insert multiplier %s/%s: %w", row.Kind, row.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, sqliteUpsertStateSQL, state.LastDecayAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert flea state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sqlite tx: %w", err)
	}
	return nil
}

func stateRows(state MultiplierState) []multiplierRow {
	rows := make([]multiplierRow, 0, len(state.ItemMultiplier)+len(state.CategoryMultiplier))
	for id, v := range state.ItemMultiplier {
		rows = append(rows, multiplierRow{Kind: kindItem, ID: id, Value: v})
	}
	for id, v := range state.CategoryMultiplier {
		rows = append(rows, multiplierRow{Kind: kindCategory, ID: id, Value: v})
	}
	return rows
}

var (
	_ StateStore = (*SQLiteStore)(nil)
	_ Closer     = (*SQLiteStore)(nil)
)
