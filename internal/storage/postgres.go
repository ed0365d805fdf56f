package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS flea_multipliers (
        kind  TEXT NOT NULL,
        id    TEXT NOT NULL,
        value DOUBLE PRECISION NOT NULL,
        PRIMARY KEY (kind, id)
    );
    CREATE TABLE IF NOT EXISTS flea_state (
        singleton     SMALLINT PRIMARY KEY CHECK (singleton = 1),
        last_decay_at TIMESTAMPTZ NOT NULL
    );`

	pgSelectStateSQL       = `SELECT last_decay_at FROM flea_state WHERE singleton = 1;`
	pgSelectMultipliersSQL = `SELECT kind, id, value FROM flea_multipliers;`
	pgDeleteMultipliersSQL = `DELETE FROM flea_multipliers;`
	pgInsertMultiplierSQL  = `INSERT INTO flea_multipliers (kind, id, value) VALUES ($1, $2, $3);`
	pgUpsertStateSQL       = `INSERT INTO flea_state (singleton, last_decay_at) VALUES (1, $1)
    ON CONFLICT (singleton) DO UPDATE SET last_decay_at = EXCLUDED.last_decay_at;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PostgresStore shares the state between several service instances.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the state tables when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// the session lock dies with the connection if this fails
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// LoadState reads every multiplier row. An empty database yields ErrStateNotFound.
func (s *PostgresStore) LoadState(ctx context.Context) (MultiplierState, error) {
	pool, err := s.getPool()
	if err != nil {
		return MultiplierState{}, err
	}

	var lastDecay time.Time
	if err := pool.QueryRow(ctx, pgSelectStateSQL).Scan(&lastDecay); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MultiplierState{}, ErrStateNotFound
		}
		return MultiplierState{}, fmt.Errorf("select flea state: %w", err)
	}

	rows, err := pool.Query(ctx, pgSelectMultipliersSQL)
	if err != nil {
		return MultiplierState{}, fmt.Errorf("select multipliers: %w", err)
	}
	defer rows.Close()

	state := NewMultiplierState(lastDecay)
	for rows.Next() {
		var row multiplierRow
		if err := rows.Scan(&row.Kind, &row.ID, &row.Value); err != nil {
			return MultiplierState{}, fmt.Errorf("scan multiplier: %w", err)
		}
		switch row.Kind {
		case kindItem:
			state.ItemMultiplier[row.ID] = row.Value
		case kindCategory:
			state.CategoryMultiplier[row.ID] = row.Value
		}
	}
	if rows.Err() != nil {
		return MultiplierState{}, rows.Err()
	}
	return state, nil
}

// SaveState replaces the stored rows in a single transaction.
func (s *PostgresStore) SaveState(ctx context.Context, state MultiplierState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	batch.Queue(pgDeleteMultipliersSQL)
	for _, row := range stateRows(state) {
		batch.Queue(pgInsertMultiplierSQL, row.Kind, row.ID, row.Value)
	}
	batch.Queue(pgUpsertStateSQL, state.LastDecayAt.UTC())

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("write multipliers: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var (
	_ StateStore     = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
	_ Closer         = (*PostgresStore)(nil)
)
