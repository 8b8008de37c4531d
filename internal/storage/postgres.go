package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiftgrid/realtime/internal/config"
	"github.com/shiftgrid/realtime/internal/model"
)

// PGStore persists queues in Postgres, one jsonb row per identity key.
// Useful when the agent host has a local database and file storage is not
// durable enough (e.g. ephemeral containers with an external DB).
type PGStore struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool and verifies it.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// NewPGStore creates a store over an existing pool and ensures its table.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	const ddl = `
		CREATE TABLE IF NOT EXISTS offline_actions (
			identity   text PRIMARY KEY,
			actions    jsonb NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure offline_actions table: %w", err)
	}

	return &PGStore{pool: pool}, nil
}

// Load reads the persisted queue for a key. A missing row means empty queue.
func (s *PGStore) Load(ctx context.Context, key string) ([]model.QueuedAction, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT actions FROM offline_actions WHERE identity = $1`, key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select queue row: %w", err)
	}

	var actions []model.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("decode queue row: %w", err)
	}

	return actions, nil
}

// Save rewrites the persisted queue for a key.
func (s *PGStore) Save(ctx context.Context, key string, actions []model.QueuedAction) error {
	if actions == nil {
		actions = []model.QueuedAction{}
	}

	data, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO offline_actions (identity, actions, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (identity) DO UPDATE
		 SET actions = EXCLUDED.actions, updated_at = now()`,
		key, data,
	)
	if err != nil {
		return fmt.Errorf("upsert queue row: %w", err)
	}

	return nil
}
