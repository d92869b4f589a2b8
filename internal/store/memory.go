package store

import (
	"context"
	"sync"
	"time"

	"github.com/francopay/settleops/internal/domain"
)

// Memory keeps both ledgers in process memory with the same admission and
// first-write-wins semantics as the postgres store. It backs tests and
// STORE_BACKEND=memory demo runs; it is not for production use.
type Memory struct {
	mu           sync.Mutex
	receipts     map[string]*domain.Receipt
	transactions map[string]*domain.Transaction
	nextID       int64
}

func NewMemory() *Memory {
	return &Memory{
		receipts:     make(map[string]*domain.Receipt),
		transactions: make(map[string]*domain.Transaction),
		nextID:       1,
	}
}

func (m *Memory) RecordReceipt(_ context.Context, reference, studentWallet string, amount int64) (domain.ReceiptState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.receipts[reference]
	if !ok {
		m.receipts[reference] = &domain.Receipt{
			Reference:     reference,
			StudentWallet: studentWallet,
			Amount:        amount,
			Status:        domain.ReceiptReceived,
			CreatedAt:     time.Now(),
		}
		return domain.ReceiptState{Status: domain.ReceiptReceived, Admitted: true}, nil
	}

	switch r.Status {
	case domain.ReceiptProcessed:
		return domain.ReceiptState{Status: domain.ReceiptProcessed, Admitted: false}, nil
	case domain.ReceiptFailed:
		r.Status = domain.ReceiptReceived
		r.Error = ""
		r.ProcessedAt = nil
		r.StudentWallet = studentWallet
		r.Amount = amount
		return domain.ReceiptState{Status: domain.ReceiptFailed, Admitted: true}, nil
	default:
		r.StudentWallet = studentWallet
		r.Amount = amount
		return domain.ReceiptState{Status: domain.ReceiptReceived, Admitted: false}, nil
	}
}

func (m *Memory) MarkProcessed(_ context.Context, reference string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.receipts[reference]; ok && r.Status == domain.ReceiptReceived {
		now := time.Now()
		r.Status = domain.ReceiptProcessed
		r.ProcessedAt = &now
	}
	return nil
}

func (m *Memory) MarkFailed(_ context.Context, reference, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.receipts[reference]; ok && r.Status == domain.ReceiptReceived {
		now := time.Now()
		r.Status = domain.ReceiptFailed
		r.Error = cause
		r.ProcessedAt = &now
	}
	return nil
}

func (m *Memory) IsAlreadyProcessed(_ context.Context, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[reference]
	return ok && r.Status == domain.ReceiptProcessed, nil
}

func (m *Memory) GetReceipt(_ context.Context, reference string) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.receipts[reference]
	if !ok {
		return nil, ErrReceiptNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *Memory) RecordSettlement(_ context.Context, tx domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.Reference]; ok {
		return ErrDuplicateSettlement
	}
	tx.ID = m.nextID
	m.nextID++
	tx.CreatedAt = time.Now()
	m.transactions[tx.Reference] = &tx
	return nil
}

func (m *Memory) AttachFraudScore(_ context.Context, reference string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.transactions[reference]; ok {
		t.FraudScore = &score
	}
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, reference string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[reference]
	if !ok {
		return nil, ErrTransactionNotFound
	}
	copied := *t
	return &copied, nil
}

// TransactionCount reports the number of recorded settlements.
func (m *Memory) TransactionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.transactions)
}
