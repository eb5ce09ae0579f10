package recordstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps each collection document in a JSONB row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saba_collections (
			kind TEXT PRIMARY KEY,
			doc JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, kind Kind) ([]byte, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc::text FROM saba_collections WHERE kind = $1`, string(kind)).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, kind Kind, doc []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO saba_collections (kind, doc, updated_at)
		 VALUES ($1, $2::jsonb, now())
		 ON CONFLICT (kind) DO UPDATE SET doc = EXCLUDED.doc, updated_at = EXCLUDED.updated_at`,
		string(kind), string(doc),
	)
	if err != nil {
		return fmt.Errorf("save collection: %w", err)
	}
	return nil
}

func (s *PostgresStore) Wipe(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM saba_collections`); err != nil {
		return fmt.Errorf("wipe collections: %w", err)
	}
	return nil
}

func (s *PostgresStore) Backend() string { return BackendPostgres }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
