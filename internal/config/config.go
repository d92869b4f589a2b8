package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource     string
	StoreBackend string // postgres | memory
	Port         string
	Env          string

	KotaniMode   string // simulate | live
	KotaniAckURL string

	LedgerMode   string // simulate | rpc
	LedgerRPCURL string

	CallTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		DBSource:     os.Getenv("DB_SOURCE"),
		StoreBackend: getenv("STORE_BACKEND", "postgres"),
		Port:         getenv("SERVER_PORT", "8080"),
		Env:          getenv("ENVIRONMENT", "development"),
		KotaniMode:   getenv("KOTANI_MODE", "simulate"),
		KotaniAckURL: os.Getenv("KOTANI_ACK_URL"),
		LedgerMode:   getenv("LEDGER_MODE", "simulate"),
		LedgerRPCURL: os.Getenv("LEDGER_RPC_URL"),
	}

	if cfg.StoreBackend != "postgres" && cfg.StoreBackend != "memory" {
		return nil, fmt.Errorf("STORE_BACKEND must be postgres or memory, got %q", cfg.StoreBackend)
	}
	if cfg.StoreBackend == "postgres" && cfg.DBSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}
	if cfg.KotaniMode != "simulate" && cfg.KotaniMode != "live" {
		return nil, fmt.Errorf("KOTANI_MODE must be simulate or live, got %q", cfg.KotaniMode)
	}
	if cfg.LedgerMode != "simulate" && cfg.LedgerMode != "rpc" {
		return nil, fmt.Errorf("LEDGER_MODE must be simulate or rpc, got %q", cfg.LedgerMode)
	}
	if cfg.LedgerMode == "rpc" && cfg.LedgerRPCURL == "" {
		return nil, fmt.Errorf("LEDGER_RPC_URL is required when LEDGER_MODE=rpc")
	}

	timeout := getenv("CALL_TIMEOUT", "10s")
	d, err := time.ParseDuration(timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid CALL_TIMEOUT %q: %w", timeout, err)
	}
	cfg.CallTimeout = d

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
