package main

import (
	"context"
	"net/http"

	"github.com/francopay/settleops/internal/api"
	"github.com/francopay/settleops/internal/config"
	"github.com/francopay/settleops/internal/service"
	"github.com/francopay/settleops/internal/store"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("configuration error", zap.Error(err))
	}

	// Durable stores. The postgres backend bootstraps its own schema;
	// memory mode backs local demo runs without a database.
	var receipts service.ReceiptLedger
	var transactions service.TransactionLedger
	if cfg.StoreBackend == "postgres" {
		pg, err := store.New(cfg.DBSource)
		if err != nil {
			logger.Fatal("unable to connect to database", zap.Error(err))
		}
		defer pg.Close()
		if err := pg.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("schema bootstrap failed", zap.Error(err))
		}
		receipts, transactions = pg, pg
	} else {
		mem := store.NewMemory()
		receipts, transactions = mem, mem
	}

	// External collaborators.
	var ledger service.SettlementClient
	if cfg.LedgerMode == "rpc" {
		ledger = service.NewRPCSettlementClient(cfg.LedgerRPCURL, cfg.CallTimeout)
	} else {
		ledger = service.NewSimulatedSettlementClient()
	}
	ack := service.NewKotaniAckClient(cfg.KotaniMode, cfg.KotaniAckURL, cfg.CallTimeout)

	orchestrator := service.NewOrchestrator(receipts, transactions, ledger, ack, logger)
	handler := api.NewHandler(orchestrator, transactions, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.HandleHealth).Methods("GET")

	kotani := r.PathPrefix("/kotani").Subrouter()
	kotani.HandleFunc("/webhook", handler.HandleWebhook).Methods("POST")
	kotani.HandleFunc("/transactions/{reference}", handler.HandleGetTransaction).Methods("GET")

	logger.Info("server starting",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.StoreBackend),
		zap.String("ledger_mode", cfg.LedgerMode),
		zap.String("kotani_mode", cfg.KotaniMode))
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
