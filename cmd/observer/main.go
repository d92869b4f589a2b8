package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"io"
	"net/http"
	"os"

	"github.com/francopay/settleops/internal/observe"
	"go.uber.org/zap"
)

// observer tails the ledger event stream (NDJSON over HTTP, or stdin when
// no URL is given) and emits one normalized record per line for indexing.
func main() {
	var streamURL string
	flag.StringVar(&streamURL, "url", "", "ledger event stream URL (NDJSON); reads stdin when empty")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	var in io.Reader = os.Stdin
	if streamURL != "" {
		resp, err := http.Get(streamURL)
		if err != nil {
			logger.Fatal("unable to open event stream", zap.String("url", streamURL), zap.Error(err))
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			logger.Fatal("event stream rejected", zap.String("url", streamURL), zap.Int("status", resp.StatusCode))
		}
		in = resp.Body
	}

	logger.Info("observer started", zap.String("source", sourceName(streamURL)))

	enc := json.NewEncoder(os.Stdout)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ev observe.RawEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn("skipping malformed event", zap.Error(err))
			continue
		}
		if err := enc.Encode(observe.Normalize(ev)); err != nil {
			logger.Fatal("write failed", zap.Error(err))
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal("event stream read failed", zap.Error(err))
	}
}

func sourceName(url string) string {
	if url == "" {
		return "stdin"
	}
	return url
}
