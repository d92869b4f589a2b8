package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// AckClient confirms the delivery with the webhook provider's own API.
// The call is strictly best-effort: it never blocks or fails the pipeline,
// a provider outage just degrades the receipt to unacknowledged.
type AckClient interface {
	Acknowledge(ctx context.Context, reference string) bool
}

const (
	AckModeSimulate = "simulate"
	AckModeLive     = "live"
)

// KotaniAckClient acknowledges deliveries against the Kotani API. In
// simulate mode every delivery is acknowledged unconditionally; in live
// mode any transport error, non-2xx status or missing endpoint counts as
// unacknowledged.
type KotaniAckClient struct {
	mode   string
	url    string
	client *http.Client
}

func NewKotaniAckClient(mode, url string, timeout time.Duration) *KotaniAckClient {
	return &KotaniAckClient{
		mode:   mode,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *KotaniAckClient) Acknowledge(ctx context.Context, reference string) bool {
	if c.mode == AckModeSimulate {
		return true
	}
	if c.mode != AckModeLive || c.url == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{"reference": reference})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
