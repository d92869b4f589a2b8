package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SettlementClient moves value on the external ledger network and reports
// fraud scores back to it. Both calls are side-effecting; failures surface
// as *SettlementError.
type SettlementClient interface {
	Settle(ctx context.Context, amount int64, reference, studentWallet string) (string, error)
	ReportRisk(ctx context.Context, reference string, score int, studentWallet string) (string, error)
}

// SettlementError is any rejection by the ledger gateway: insufficient
// funds, frozen account, duplicate reference at the ledger level, or plain
// unreachability.
type SettlementError struct {
	Op      string
	Status  int
	Message string
}

func (e *SettlementError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("ledger %s rejected (http %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("ledger %s unreachable: %s", e.Op, e.Message)
}

// RPCSettlementClient talks to the ledger gateway over HTTP. Calls are
// bounded by the client timeout on top of the request context.
type RPCSettlementClient struct {
	baseURL string
	client  *http.Client
}

func NewRPCSettlementClient(baseURL string, timeout time.Duration) *RPCSettlementClient {
	return &RPCSettlementClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *RPCSettlementClient) Settle(ctx context.Context, amount int64, reference, studentWallet string) (string, error) {
	return c.post(ctx, "settle", "/settlements", map[string]any{
		"amount":         amount,
		"reference":      reference,
		"student_wallet": studentWallet,
	})
}

func (c *RPCSettlementClient) ReportRisk(ctx context.Context, reference string, score int, studentWallet string) (string, error) {
	return c.post(ctx, "risk-report", "/risk-reports", map[string]any{
		"reference":      reference,
		"score":          score,
		"student_wallet": studentWallet,
	})
}

func (c *RPCSettlementClient) post(ctx context.Context, op, path string, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &SettlementError{Op: op, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", &SettlementError{Op: op, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &SettlementError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SettlementError{Op: op, Status: resp.StatusCode, Message: string(raw)}
	}

	var out struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &SettlementError{Op: op, Status: resp.StatusCode, Message: "malformed gateway response"}
	}
	return out.Signature, nil
}

// SimulatedSettlementClient settles everything locally with synthetic
// signatures. It backs memory-mode demo runs where no ledger gateway is
// reachable; tests use their own fakes.
type SimulatedSettlementClient struct{}

func NewSimulatedSettlementClient() *SimulatedSettlementClient {
	return &SimulatedSettlementClient{}
}

func (c *SimulatedSettlementClient) Settle(context.Context, int64, string, string) (string, error) {
	return "sim-" + uuid.NewString(), nil
}

func (c *SimulatedSettlementClient) ReportRisk(context.Context, string, int, string) (string, error) {
	return "sim-" + uuid.NewString(), nil
}
