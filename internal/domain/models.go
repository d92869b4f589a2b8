package domain

import "time"

// ReceiptStatus is the lifecycle state of a webhook receipt.
type ReceiptStatus string

const (
	ReceiptReceived  ReceiptStatus = "received"
	ReceiptProcessed ReceiptStatus = "processed"
	ReceiptFailed    ReceiptStatus = "failed"
)

// Terminal reports whether no further automatic transition is possible.
func (s ReceiptStatus) Terminal() bool {
	return s == ReceiptProcessed || s == ReceiptFailed
}

// Direction classifies a settlement relative to the treasury.
type Direction string

const (
	DirectionOnramp   Direction = "onramp"
	DirectionOfframp  Direction = "offramp"
	DirectionTransfer Direction = "transfer"
)

// Receipt is one row of the idempotency ledger, keyed by the
// caller-supplied reference. A row in status "processed" is never
// re-executed; a row in status "failed" may be re-admitted on replay.
type Receipt struct {
	Reference     string        `json:"reference"`
	StudentWallet string        `json:"student_wallet"`
	Amount        int64         `json:"amount"`
	Status        ReceiptStatus `json:"status"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	ProcessedAt   *time.Time    `json:"processed_at,omitempty"`
}

// ReceiptState is what RecordReceipt reports back to the orchestrator.
// Admitted means this caller won the right to run the pipeline for the
// reference; at most one concurrent caller per reference is admitted.
type ReceiptState struct {
	Status   ReceiptStatus
	Admitted bool
}

// Transaction is one row of the transaction ledger: a settlement attempt
// recorded against the external ledger, one row per reference.
type Transaction struct {
	ID              int64     `json:"id"`
	Reference       string    `json:"reference"`
	Direction       Direction `json:"direction"`
	StudentWallet   string    `json:"student_wallet"`
	Amount          int64     `json:"amount"`
	SolanaSignature string    `json:"solana_signature,omitempty"`
	KotaniOK        bool      `json:"kotani_ok"`
	FraudScore      *int      `json:"fraud_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// WebhookRequest is the payload delivered by the payment provider.
// Amount is in base units of the settled asset (integer, no fractions).
type WebhookRequest struct {
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Reference     string `json:"reference" validate:"required,min=1,max=64"`
	StudentWallet string `json:"student_wallet" validate:"required,min=32"`
}

// WebhookResult is the orchestrator's answer for a freshly processed
// delivery. Idempotent replays short-circuit before one is produced.
type WebhookResult struct {
	Idempotent      bool
	KotaniOK        bool
	SolanaSignature string
	FraudScore      int
}
