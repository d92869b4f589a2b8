package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/francopay/settleops/internal/domain"
	"github.com/francopay/settleops/internal/service"
	"github.com/francopay/settleops/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Metrics
var (
	webhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleops_webhook_requests_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"outcome"})

	webhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settleops_webhook_duration_seconds",
		Help:    "End-to-end webhook pipeline latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"outcome"})

	fraudScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settleops_fraud_score",
		Help:    "Fraud scores attached to fresh settlements",
		Buckets: []float64{10, 25, 50, 75, 90, 100},
	})
)

type Handler struct {
	orchestrator *service.Orchestrator
	transactions service.TransactionLedger
	validate     *validator.Validate
	logger       *zap.Logger
}

func NewHandler(o *service.Orchestrator, transactions service.TransactionLedger, logger *zap.Logger) *Handler {
	return &Handler{
		orchestrator: o,
		transactions: transactions,
		validate:     validator.New(),
		logger:       logger,
	}
}

// HandleWebhook accepts one settlement notification from the payment
// provider and runs it through the pipeline. The response contract is
// fixed: 200 with idempotent:true on replay, 200 with the settlement
// outcome on fresh success, 400 on schema violations (no side effects),
// 500 with an opaque error on any pipeline failure.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(nil)

	var req domain.WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondInvalid(w, []string{"body: malformed JSON"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondInvalid(w, validationDetails(err))
		return
	}

	result, err := h.orchestrator.ProcessWebhook(r.Context(), req)
	if err != nil {
		// Detail stays in operator logs; the caller gets an opaque signal
		// and is expected to re-deliver with the same reference.
		h.logger.Error("webhook pipeline error",
			zap.String("reference", req.Reference),
			zap.Error(err))
		h.observe(timer, "failed")
		h.respondJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": "processing_failed",
		})
		return
	}

	if result.Idempotent {
		h.observe(timer, "idempotent")
		h.respondJSON(w, http.StatusOK, map[string]any{
			"ok":         true,
			"idempotent": true,
		})
		return
	}

	fraudScores.Observe(float64(result.FraudScore))
	h.observe(timer, "fresh")
	h.respondJSON(w, http.StatusOK, map[string]any{
		"ok":               true,
		"kotani_ok":        result.KotaniOK,
		"solana_signature": result.SolanaSignature,
		"fraud_score":      result.FraudScore,
	})
}

// HandleGetTransaction exposes the recorded settlement for a reference.
func (h *Handler) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	reference := mux.Vars(r)["reference"]

	tx, err := h.transactions.GetTransaction(r.Context(), reference)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			h.respondJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "not_found"})
			return
		}
		h.logger.Error("transaction lookup error", zap.String("reference", reference), zap.Error(err))
		h.respondJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "processing_failed"})
		return
	}
	h.respondJSON(w, http.StatusOK, tx)
}

// HandleHealth is the unconditional liveness probe.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) respondInvalid(w http.ResponseWriter, details []string) {
	webhookRequests.WithLabelValues("invalid").Inc()
	h.respondJSON(w, http.StatusBadRequest, map[string]any{
		"ok":      false,
		"error":   "invalid_payload",
		"details": details,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encoding failed", zap.Error(err))
	}
}

func (h *Handler) observe(timer *prometheus.Timer, outcome string) {
	webhookRequests.WithLabelValues(outcome).Inc()
	webhookDuration.WithLabelValues(outcome).Observe(timer.ObserveDuration().Seconds())
}

func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s: failed %q constraint", fe.Field(), fe.Tag()))
	}
	return details
}
