// Package service runs the settlement orchestration pipeline: webhook
// receipt admission, the external settlement call, fraud scoring, the
// conditional risk report, and receipt finalization.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/francopay/settleops/internal/domain"
	"github.com/francopay/settleops/internal/fraud"
	"github.com/francopay/settleops/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInFlight means a concurrent delivery of the same reference held
	// the pipeline past the wait budget without reaching a terminal state.
	ErrInFlight = errors.New("reference is still being processed")
	// ErrReplayOfFailure is returned to a loser whose winning concurrent
	// attempt ended in failure; the caller sees the winner's outcome.
	ErrReplayOfFailure = errors.New("concurrent attempt failed")
)

// ReceiptLedger is the durable idempotency record of webhook deliveries.
type ReceiptLedger interface {
	RecordReceipt(ctx context.Context, reference, studentWallet string, amount int64) (domain.ReceiptState, error)
	MarkProcessed(ctx context.Context, reference string) error
	MarkFailed(ctx context.Context, reference, cause string) error
	IsAlreadyProcessed(ctx context.Context, reference string) (bool, error)
	GetReceipt(ctx context.Context, reference string) (*domain.Receipt, error)
}

// TransactionLedger is the durable record of settlement attempts.
type TransactionLedger interface {
	RecordSettlement(ctx context.Context, tx domain.Transaction) error
	AttachFraudScore(ctx context.Context, reference string, score int) error
	GetTransaction(ctx context.Context, reference string) (*domain.Transaction, error)
}

// Orchestrator drives one webhook delivery through the settlement state
// machine. All collaborators are injected; there is no ambient state.
type Orchestrator struct {
	receipts     ReceiptLedger
	transactions TransactionLedger
	ledger       SettlementClient
	ack          AckClient
	logger       *zap.Logger

	waitPoll time.Duration
	waitMax  time.Duration
}

func NewOrchestrator(receipts ReceiptLedger, transactions TransactionLedger, ledger SettlementClient, ack AckClient, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		receipts:     receipts,
		transactions: transactions,
		ledger:       ledger,
		ack:          ack,
		logger:       logger,
		waitPoll:     25 * time.Millisecond,
		waitMax:      10 * time.Second,
	}
}

// ProcessWebhook handles one validated delivery. Idempotent replays of a
// processed reference return Idempotent=true without re-invoking any
// side-effecting collaborator; a failed reference is re-attempted in full.
// Any pipeline error is recorded on the receipt before it propagates.
func (o *Orchestrator) ProcessWebhook(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookResult, error) {
	// 1. Idempotency barrier. A processed reference is acknowledged before
	// any work with side effects; RecordReceipt is then the sole admission
	// point, letting exactly one caller per reference proceed at a time.
	processed, err := o.receipts.IsAlreadyProcessed(ctx, req.Reference)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if processed {
		return &domain.WebhookResult{Idempotent: true}, nil
	}

	state, err := o.receipts.RecordReceipt(ctx, req.Reference, req.StudentWallet, req.Amount)
	if err != nil {
		return nil, fmt.Errorf("receipt admission failed: %w", err)
	}
	if state.Status == domain.ReceiptProcessed {
		return &domain.WebhookResult{Idempotent: true}, nil
	}
	if !state.Admitted {
		return o.awaitOutcome(ctx, req.Reference)
	}

	result, err := o.run(ctx, req)
	if err != nil {
		o.logger.Error("webhook processing failed",
			zap.String("reference", req.Reference),
			zap.Error(err))
		if markErr := o.receipts.MarkFailed(ctx, req.Reference, err.Error()); markErr != nil {
			o.logger.Error("recording failure state failed",
				zap.String("reference", req.Reference),
				zap.Error(markErr))
		}
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req domain.WebhookRequest) (*domain.WebhookResult, error) {
	// 2. Best-effort provider acknowledgment; an outage degrades the
	// receipt to unacknowledged instead of aborting settlement.
	kotaniOK := o.ack.Acknowledge(ctx, req.Reference)

	// 3. Settlement. A replay of a failed receipt may already carry a
	// recorded settlement (e.g. the risk report failed last time); reuse
	// it rather than moving value twice for the same reference.
	existing, err := o.transactions.GetTransaction(ctx, req.Reference)
	if err != nil && !errors.Is(err, store.ErrTransactionNotFound) {
		return nil, fmt.Errorf("settlement lookup failed: %w", err)
	}

	var sig string
	if existing != nil {
		sig = existing.SolanaSignature
		kotaniOK = existing.KotaniOK
	} else {
		sig, err = o.ledger.Settle(ctx, req.Amount, req.Reference, req.StudentWallet)
		if err != nil {
			return nil, fmt.Errorf("settlement failed: %w", err)
		}
		err = o.transactions.RecordSettlement(ctx, domain.Transaction{
			Reference:       req.Reference,
			Direction:       domain.DirectionOnramp,
			StudentWallet:   req.StudentWallet,
			Amount:          req.Amount,
			SolanaSignature: sig,
			KotaniOK:        kotaniOK,
		})
		if err != nil {
			return nil, fmt.Errorf("settlement record failed: %w", err)
		}
	}

	// 4. Fraud scoring. Pure and infallible; retries of an already-scored
	// record keep the original score.
	var score int
	if existing != nil && existing.FraudScore != nil {
		score = *existing.FraudScore
	} else {
		score = fraud.Score(req.Amount, req.Reference, req.StudentWallet, domain.DirectionOnramp)
		if err := o.transactions.AttachFraudScore(ctx, req.Reference, score); err != nil {
			return nil, fmt.Errorf("fraud score record failed: %w", err)
		}
	}

	// 5. Risk report above the freeze threshold. A failure here propagates
	// even though settlement already succeeded; re-delivery resumes from
	// the recorded settlement instead of settling again.
	if score > fraud.Threshold {
		if _, err := o.ledger.ReportRisk(ctx, req.Reference, score, req.StudentWallet); err != nil {
			return nil, fmt.Errorf("risk report failed: %w", err)
		}
		o.logger.Warn("fraud score reported to ledger",
			zap.String("reference", req.Reference),
			zap.Int("score", score))
	}

	// 6. Finalize.
	if err := o.receipts.MarkProcessed(ctx, req.Reference); err != nil {
		return nil, fmt.Errorf("receipt finalization failed: %w", err)
	}

	return &domain.WebhookResult{
		KotaniOK:        kotaniOK,
		SolanaSignature: sig,
		FraudScore:      score,
	}, nil
}

// awaitOutcome parks a losing concurrent delivery until the winner for the
// same reference reaches a terminal status, then reports that outcome.
func (o *Orchestrator) awaitOutcome(ctx context.Context, reference string) (*domain.WebhookResult, error) {
	deadline := time.Now().Add(o.waitMax)
	ticker := time.NewTicker(o.waitPoll)
	defer ticker.Stop()

	for {
		receipt, err := o.receipts.GetReceipt(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("receipt wait failed: %w", err)
		}
		switch receipt.Status {
		case domain.ReceiptProcessed:
			return &domain.WebhookResult{Idempotent: true}, nil
		case domain.ReceiptFailed:
			return nil, fmt.Errorf("%w: %s", ErrReplayOfFailure, receipt.Error)
		}

		if time.Now().After(deadline) {
			return nil, ErrInFlight
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
