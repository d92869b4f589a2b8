// Package store persists the two ledgers of the settlement pipeline: the
// idempotency ledger of webhook receipts and the transaction ledger of
// settlement attempts. All mutation of durable state goes through this
// package; the orchestrator never touches rows directly.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrReceiptNotFound     = errors.New("receipt not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrDuplicateSettlement means a second settlement row was attempted
	// for a reference. The orchestrator gates on the idempotency ledger,
	// so seeing this indicates a broken invariant, not a client error.
	ErrDuplicateSettlement = errors.New("duplicate settlement for reference")
)

// Store is the postgres-backed implementation of both ledgers.
type Store struct {
	db *pgxpool.Pool
}

func New(connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{db: pool}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// EnsureSchema creates the two ledger tables if absent. There is no
// migration versioning beyond this; retention is an operational concern.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS kotani_webhooks (
			reference      TEXT PRIMARY KEY,
			student_wallet TEXT NOT NULL,
			amount         BIGINT NOT NULL,
			status         TEXT NOT NULL,
			error          TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			processed_at   TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id               BIGSERIAL PRIMARY KEY,
			reference        TEXT NOT NULL UNIQUE,
			direction        TEXT NOT NULL,
			student_wallet   TEXT NOT NULL,
			amount           BIGINT NOT NULL,
			solana_signature TEXT,
			kotani_ok        BOOLEAN NOT NULL,
			fraud_score      INT,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		return fmt.Errorf("schema bootstrap failed: %w", err)
	}
	return nil
}
