package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/francopay/settleops/internal/domain"
	"github.com/francopay/settleops/internal/service"
	"github.com/francopay/settleops/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const wallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

// fakeLedger counts collaborator invocations and can be told to fail.
type fakeLedger struct {
	mu              sync.Mutex
	settleCalls     int
	riskCalls       int
	failSettleTimes int
	failRisk        bool
	settleDelay     time.Duration
}

func (f *fakeLedger) Settle(context.Context, int64, string, string) (string, error) {
	f.mu.Lock()
	f.settleCalls++
	shouldFail := f.failSettleTimes > 0
	if shouldFail {
		f.failSettleTimes--
	}
	delay := f.settleDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldFail {
		return "", &service.SettlementError{Op: "settle", Message: "treasury unavailable"}
	}
	return "sig-test", nil
}

func (f *fakeLedger) ReportRisk(context.Context, string, int, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riskCalls++
	if f.failRisk {
		return "", &service.SettlementError{Op: "risk-report", Message: "program rejected"}
	}
	return "sig-risk", nil
}

func (f *fakeLedger) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settleCalls, f.riskCalls
}

type fakeAck struct{ ok bool }

func (f *fakeAck) Acknowledge(context.Context, string) bool { return f.ok }

func newOrchestrator(ledger *fakeLedger, ack service.AckClient) (*service.Orchestrator, *store.Memory) {
	mem := store.NewMemory()
	o := service.NewOrchestrator(mem, mem, ledger, ack, zap.NewNop())
	return o, mem
}

func webhook(amount int64, reference string) domain.WebhookRequest {
	return domain.WebhookRequest{Amount: amount, Reference: reference, StudentWallet: wallet}
}

func TestProcessWebhookFreshSuccess(t *testing.T) {
	ledger := &fakeLedger{}
	o, mem := newOrchestrator(ledger, &fakeAck{ok: true})

	result, err := o.ProcessWebhook(context.Background(), webhook(2_500_000, "order-7781"))
	require.NoError(t, err)
	assert.False(t, result.Idempotent)
	assert.True(t, result.KotaniOK)
	assert.Equal(t, "sig-test", result.SolanaSignature)
	assert.Equal(t, 51, result.FraudScore)

	receipt, err := mem.GetReceipt(context.Background(), "order-7781")
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptProcessed, receipt.Status)
	assert.NotNil(t, receipt.ProcessedAt)

	tx, err := mem.GetTransaction(context.Background(), "order-7781")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionOnramp, tx.Direction)
	require.NotNil(t, tx.FraudScore)
	assert.Equal(t, 51, *tx.FraudScore)
}

func TestProcessWebhookIdempotentReplay(t *testing.T) {
	ledger := &fakeLedger{}
	o, mem := newOrchestrator(ledger, &fakeAck{ok: true})

	req := webhook(2_500_000, "order-replay")
	_, err := o.ProcessWebhook(context.Background(), req)
	require.NoError(t, err)

	replay, err := o.ProcessWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, replay.Idempotent)

	settles, _ := ledger.counts()
	assert.Equal(t, 1, settles, "replay must not settle again")
	assert.Equal(t, 1, mem.TransactionCount())
}

func TestProcessWebhookFailureReplay(t *testing.T) {
	ledger := &fakeLedger{failSettleTimes: 1}
	o, mem := newOrchestrator(ledger, &fakeAck{ok: true})

	req := webhook(2_500_000, "order-flaky")
	_, err := o.ProcessWebhook(context.Background(), req)
	require.Error(t, err)

	receipt, err := mem.GetReceipt(context.Background(), "order-flaky")
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptFailed, receipt.Status)
	assert.Contains(t, receipt.Error, "treasury unavailable")

	_, err = mem.GetTransaction(context.Background(), "order-flaky")
	assert.ErrorIs(t, err, store.ErrTransactionNotFound)

	// Re-delivery of a failed reference re-attempts settlement in full.
	result, err := o.ProcessWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Idempotent)

	receipt, err = mem.GetReceipt(context.Background(), "order-flaky")
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptProcessed, receipt.Status)
	assert.Equal(t, 1, mem.TransactionCount())

	settles, _ := ledger.counts()
	assert.Equal(t, 2, settles)
}

func TestProcessWebhookConcurrentDuplicate(t *testing.T) {
	ledger := &fakeLedger{settleDelay: 80 * time.Millisecond}
	o, mem := newOrchestrator(ledger, &fakeAck{ok: true})

	req := webhook(2_500_000, "order-race")

	var wg sync.WaitGroup
	results := make([]*domain.WebhookResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.ProcessWebhook(context.Background(), req)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	settles, _ := ledger.counts()
	assert.Equal(t, 1, settles, "exactly one settlement attempt for the reference")
	assert.Equal(t, 1, mem.TransactionCount())

	// One caller settled fresh, the loser observed the winner's outcome.
	fresh, idempotent := 0, 0
	for _, r := range results {
		if r.Idempotent {
			idempotent++
		} else {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, idempotent)
}

func TestProcessWebhookRiskReportThreshold(t *testing.T) {
	ledger := &fakeLedger{}
	o, _ := newOrchestrator(ledger, &fakeAck{ok: true})

	// Round multiple + top spike tier + low-entropy reference clamps the
	// score at 100, well above the freeze threshold.
	result, err := o.ProcessWebhook(context.Background(), webhook(6_000_000_000, "AAAAAAAAAAA"))
	require.NoError(t, err)
	assert.Equal(t, 100, result.FraudScore)

	_, risks := ledger.counts()
	assert.Equal(t, 1, risks)

	// An unremarkable settlement stays below the threshold.
	_, err = o.ProcessWebhook(context.Background(), webhook(2_500_000, "order-7781"))
	require.NoError(t, err)
	_, risks = ledger.counts()
	assert.Equal(t, 1, risks)
}

func TestProcessWebhookRiskReportFailureResumes(t *testing.T) {
	ledger := &fakeLedger{failRisk: true}
	o, mem := newOrchestrator(ledger, &fakeAck{ok: true})

	req := webhook(6_000_000_000, "AAAAAAAAAAA")
	_, err := o.ProcessWebhook(context.Background(), req)
	require.Error(t, err)

	// Settlement was recorded before the report failed.
	receipt, err := mem.GetReceipt(context.Background(), req.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.ReceiptFailed, receipt.Status)
	assert.Equal(t, 1, mem.TransactionCount())

	// Replay resumes from the recorded settlement: no second settle call,
	// the original score is kept, and the report goes through.
	ledger.mu.Lock()
	ledger.failRisk = false
	ledger.mu.Unlock()

	result, err := o.ProcessWebhook(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 100, result.FraudScore)
	assert.Equal(t, 1, mem.TransactionCount())

	settles, risks := ledger.counts()
	assert.Equal(t, 1, settles)
	assert.Equal(t, 2, risks)
}

func TestProcessWebhookAckDegradation(t *testing.T) {
	ledger := &fakeLedger{}
	o, _ := newOrchestrator(ledger, &fakeAck{ok: false})

	result, err := o.ProcessWebhook(context.Background(), webhook(2_500_000, "order-noack"))
	require.NoError(t, err)
	assert.False(t, result.KotaniOK, "provider outage degrades to unacknowledged")
	assert.Equal(t, "sig-test", result.SolanaSignature)
}

func TestProcessWebhookSettlementErrorType(t *testing.T) {
	ledger := &fakeLedger{failSettleTimes: 1}
	o, _ := newOrchestrator(ledger, &fakeAck{ok: true})

	_, err := o.ProcessWebhook(context.Background(), webhook(2_500_000, "order-err"))
	require.Error(t, err)

	var serr *service.SettlementError
	assert.True(t, errors.As(err, &serr))
	assert.Equal(t, "settle", serr.Op)
}
