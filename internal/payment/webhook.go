package payment

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"duangpay/internal/metrics"
)

// maxWebhookBody bounds inbound webhook payloads.
const maxWebhookBody = int64(64 << 10)

// Processor applies a verified payment event to local state.
type Processor interface {
	HandlePaymentEvent(ctx context.Context, event WebhookEvent) error
}

// WebhookHandler verifies provider push notifications and forwards payment
// events to the processor. Providers expect a 2xx even for events we ignore;
// the only rejection is a bad signature.
type WebhookHandler struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	provider  Provider
	processor Processor
}

// NewWebhookHandler creates a webhook handler for the provider.
func NewWebhookHandler(provider Provider, processor Processor, logger *slog.Logger, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		logger:    logger.With("component", "payment_webhook"),
		metrics:   m,
		provider:  provider,
		processor: processor,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.Errors.WithLabelValues("payment_webhook").Inc()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !h.provider.VerifyWebhookSignature(body, r.Header) {
		h.logger.Warn("webhook signature verification failed", "provider", h.provider.Name())
		h.metrics.WebhookEvents.WithLabelValues(h.provider.Name(), "bad_signature").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := h.provider.ParseWebhookEvent(body)
	if err != nil {
		h.logger.Warn("unparseable webhook payload", "provider", h.provider.Name(), "error", err)
		h.metrics.WebhookEvents.WithLabelValues(h.provider.Name(), "unparseable").Inc()
		writeOK(w, "ignored")
		return
	}

	if event.ProviderRef == "" {
		h.metrics.WebhookEvents.WithLabelValues(h.provider.Name(), "ignored").Inc()
		writeOK(w, "ignored")
		return
	}

	if err := h.processor.HandlePaymentEvent(r.Context(), *event); err != nil {
		h.logger.Error("failed processing webhook", "provider", h.provider.Name(), "event", event.Kind, "error", err)
		h.metrics.WebhookEvents.WithLabelValues(h.provider.Name(), "error").Inc()
		http.Error(w, "failed to process", http.StatusInternalServerError)
		return
	}

	h.metrics.WebhookEvents.WithLabelValues(h.provider.Name(), "processed").Inc()
	writeOK(w, "ok")
}

func writeOK(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
}
