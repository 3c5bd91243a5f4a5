package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
)

// PostgresStore holds cache entries and the asset snapshot history.
// Tables are created by the goose migrations (see RunMigrations).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a pooled connection and registers the
// shopspring decimal codec for NUMERIC columns.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM cache_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query %s: %w", key, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Remove(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM cache_entries WHERE left(key, length($1)) = $1 ORDER BY key`, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect keys: %w", err)
	}
	return keys, nil
}

// InsertSnapshots appends one history row per asset using pgx.Batch.
func (s *PostgresStore) InsertSnapshots(ctx context.Context, snapshots []AssetSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO asset_snapshots
			(captured_at, wallet, symbol, contract_address, network, balance, price, value)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			snap.CapturedAt,
			snap.Wallet,
			snap.Symbol,
			snap.ContractAddress,
			snap.Network,
			snap.Balance,
			snap.Price,
			snap.Value,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range snapshots {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch insert failed: %w", err)
		}
	}
	return nil
}

// LatestSnapshots returns the most recent rows for a wallet, newest first.
func (s *PostgresStore) LatestSnapshots(ctx context.Context, wallet string, limit int) ([]AssetSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, captured_at, wallet, symbol, contract_address, network, balance, price, value
		FROM asset_snapshots
		WHERE wallet = $1
		ORDER BY captured_at DESC
		LIMIT $2`, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	snaps, err := pgx.CollectRows(rows, pgx.RowToStructByPos[AssetSnapshot])
	if err != nil {
		return nil, fmt.Errorf("collect snapshots: %w", err)
	}
	return snaps, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
