package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Simulator settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	replayRate  float64
	fraudRate   float64
)

// Tallies
var (
	totalRequests uint64
	freshOK       uint64 // fresh settlements
	idempotentOK  uint64 // acknowledged replays
	rejected      uint64 // schema rejections
	failed        uint64 // pipeline failures + transport errors
)

const wallet = "S1mWa11etS1mWa11etS1mWa11etS1mWa11et"

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Run duration")
	flag.Float64Var(&replayRate, "replay", 0.2, "Fraction of deliveries replaying a known reference")
	flag.Float64Var(&fraudRate, "fraud", 0.05, "Fraction of deliveries built to trip the risk threshold")
}

func main() {
	flag.Parse()
	log.Printf("Starting simulator: workers=%d duration=%s replay=%.2f fraud=%.2f",
		concurrency, duration, replayRate, fraudRate)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 15 * time.Second}

	// Each worker keeps a short history of references it has already
	// delivered so replays hit the idempotency path.
	var seen []string

	for time.Since(start) < duration {
		amount, reference := nextDelivery(&seen)

		payload := map[string]any{
			"amount":         amount,
			"reference":      reference,
			"student_wallet": wallet,
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest(http.MethodPost, targetURL+"/kotani/webhook", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failed, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			var out struct {
				Idempotent bool `json:"idempotent"`
			}
			json.NewDecoder(resp.Body).Decode(&out) //nolint:errcheck
			if out.Idempotent {
				atomic.AddUint64(&idempotentOK, 1)
			} else {
				atomic.AddUint64(&freshOK, 1)
			}
		case http.StatusBadRequest:
			atomic.AddUint64(&rejected, 1)
		default:
			atomic.AddUint64(&failed, 1)
		}
		resp.Body.Close()
	}
}

func nextDelivery(seen *[]string) (int64, string) {
	if len(*seen) > 0 && rand.Float64() < replayRate {
		return 2_500_000, (*seen)[rand.Intn(len(*seen))]
	}

	if rand.Float64() < fraudRate {
		// Round multiple, top spike tier, low-entropy reference: pins the
		// score at 100 and forces a risk report.
		return 6_000_000_000, strings.Repeat("A", 11)
	}

	ref := "sim-" + uuid.NewString()
	*seen = append(*seen, ref)
	if len(*seen) > 64 {
		*seen = (*seen)[1:]
	}
	return rand.Int63n(10_000_000) + 1, ref
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)

	results := map[string]any{
		"duration_sec":    d.Seconds(),
		"total_requests":  total,
		"throughput_rps":  float64(total) / d.Seconds(),
		"fresh_settled":   atomic.LoadUint64(&freshOK),
		"idempotent_acks": atomic.LoadUint64(&idempotentOK),
		"schema_rejected": atomic.LoadUint64(&rejected),
		"pipeline_failed": atomic.LoadUint64(&failed),
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results) //nolint:errcheck
}
