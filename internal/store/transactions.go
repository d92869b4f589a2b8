package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/francopay/settleops/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// RecordSettlement inserts exactly one transaction row per reference. A
// second insert for the same reference violates the unique constraint and
// surfaces as ErrDuplicateSettlement.
func (s *Store) RecordSettlement(ctx context.Context, tx domain.Transaction) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (reference, direction, student_wallet, amount, solana_signature, kotani_ok)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tx.Reference, tx.Direction, tx.StudentWallet, tx.Amount, tx.SolanaSignature, tx.KotaniOK,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSettlement
		}
		return fmt.Errorf("settlement insert failed: %w", err)
	}
	return nil
}

// AttachFraudScore sets the row's fraud score. The orchestrator calls this
// at most once per reference per pipeline run.
func (s *Store) AttachFraudScore(ctx context.Context, reference string, score int) error {
	_, err := s.db.Exec(ctx,
		`UPDATE transactions SET fraud_score = $2 WHERE reference = $1`,
		reference, score,
	)
	if err != nil {
		return fmt.Errorf("fraud score update failed: %w", err)
	}
	return nil
}

// GetTransaction returns the settlement record for a reference.
func (s *Store) GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	var sig *string
	err := s.db.QueryRow(ctx, `
		SELECT id, reference, direction, student_wallet, amount, solana_signature, kotani_ok, fraud_score, created_at
		FROM transactions WHERE reference = $1`,
		reference,
	).Scan(&t.ID, &t.Reference, &t.Direction, &t.StudentWallet, &t.Amount, &sig, &t.KotaniOK, &t.FraudScore, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("transaction lookup failed: %w", err)
	}
	if sig != nil {
		t.SolanaSignature = *sig
	}
	return &t, nil
}
