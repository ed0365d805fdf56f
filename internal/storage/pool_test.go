package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"dynamic-flea-price/internal/config"
)

func newTestPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	return NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2})
}
