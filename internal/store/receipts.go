package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/francopay/settleops/internal/domain"
	"github.com/jackc/pgx/v5"
)

// RecordReceipt is the sole admission point of the pipeline. It inserts a
// fresh receipt in status "received", or for an existing reference reports
// the prior status without touching terminal state. Admission semantics:
//
//   - fresh insert: admitted;
//   - existing "processed": never admitted (terminal rows are immutable);
//   - existing "failed": one caller wins a conditional reset back to
//     "received" and is admitted, so re-delivery retries settlement;
//   - existing "received": another caller is mid-pipeline, not admitted.
//
// Concurrent duplicate deliveries of one reference are resolved by the
// primary-key constraint plus the conditional update; losers re-check and
// observe the winner's row instead of failing hard.
func (s *Store) RecordReceipt(ctx context.Context, reference, studentWallet string, amount int64) (domain.ReceiptState, error) {
	var status domain.ReceiptStatus
	var inserted bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO kotani_webhooks (reference, student_wallet, amount, status)
		VALUES ($1, $2, $3, 'received')
		ON CONFLICT (reference) DO UPDATE
			SET student_wallet = EXCLUDED.student_wallet, amount = EXCLUDED.amount
			WHERE kotani_webhooks.status = 'received'
		RETURNING status, (xmax = 0) AS inserted`,
		reference, studentWallet, amount,
	).Scan(&status, &inserted)

	if err == nil {
		if inserted {
			return domain.ReceiptState{Status: domain.ReceiptReceived, Admitted: true}, nil
		}
		// Conflict with an in-flight row: details refreshed, not admitted.
		return domain.ReceiptState{Status: status, Admitted: false}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.ReceiptState{}, fmt.Errorf("receipt upsert failed: %w", err)
	}

	// The row is terminal. Only a "failed" row may be re-admitted, and only
	// by exactly one caller (first-write-wins on the conditional update).
	tag, err := s.db.Exec(ctx, `
		UPDATE kotani_webhooks
		SET status = 'received', error = NULL, processed_at = NULL,
		    student_wallet = $2, amount = $3
		WHERE reference = $1 AND status = 'failed'`,
		reference, studentWallet, amount,
	)
	if err != nil {
		return domain.ReceiptState{}, fmt.Errorf("receipt re-admission failed: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return domain.ReceiptState{Status: domain.ReceiptFailed, Admitted: true}, nil
	}

	// Lost the re-admission race, or the row is processed: report as-is.
	err = s.db.QueryRow(ctx,
		`SELECT status FROM kotani_webhooks WHERE reference = $1`, reference,
	).Scan(&status)
	if err != nil {
		return domain.ReceiptState{}, fmt.Errorf("receipt re-check failed: %w", err)
	}
	return domain.ReceiptState{Status: status, Admitted: false}, nil
}

// MarkProcessed transitions a received row to its terminal success state
// and stamps processed_at. Calling it on an already-terminal row is a
// no-op: a late failure can never clobber a prior success, and vice versa.
func (s *Store) MarkProcessed(ctx context.Context, reference string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE kotani_webhooks
		SET status = 'processed', processed_at = now()
		WHERE reference = $1 AND status = 'received'`,
		reference,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// MarkFailed transitions a received row to its terminal failure state,
// recording the diagnostic text. First-write-wins like MarkProcessed.
func (s *Store) MarkFailed(ctx context.Context, reference, cause string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE kotani_webhooks
		SET status = 'failed', error = $2, processed_at = now()
		WHERE reference = $1 AND status = 'received'`,
		reference, cause,
	)
	if err != nil {
		return fmt.Errorf("mark failed failed: %w", err)
	}
	return nil
}

// IsAlreadyProcessed is the read-only idempotency check.
func (s *Store) IsAlreadyProcessed(ctx context.Context, reference string) (bool, error) {
	var processed bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM kotani_webhooks WHERE reference = $1 AND status = 'processed')`,
		reference,
	).Scan(&processed)
	if err != nil {
		return false, fmt.Errorf("idempotency check failed: %w", err)
	}
	return processed, nil
}

// GetReceipt returns the receipt row for a reference.
func (s *Store) GetReceipt(ctx context.Context, reference string) (*domain.Receipt, error) {
	var r domain.Receipt
	var errText *string
	err := s.db.QueryRow(ctx, `
		SELECT reference, student_wallet, amount, status, error, created_at, processed_at
		FROM kotani_webhooks WHERE reference = $1`,
		reference,
	).Scan(&r.Reference, &r.StudentWallet, &r.Amount, &r.Status, &errText, &r.CreatedAt, &r.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("receipt lookup failed: %w", err)
	}
	if errText != nil {
		r.Error = *errText
	}
	return &r, nil
}
