package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"duangpay/internal/metrics"
	"duangpay/internal/payment"
	"duangpay/internal/repo"
)

// Reconciler applies a provider-confirmed payment state to the local order
// and user rows. It is the single mutation path shared by the webhook
// receiver and the status-poll handler: the store's compare-and-swap on
// status='pending' means concurrent invocations for the same reference are
// safe, with exactly one winner.
type Reconciler struct {
	repo    repo.Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReconciler creates a reconciler over the given store.
func NewReconciler(repository repo.Repository, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		repo:    repository,
		metrics: m,
		logger:  logger.With("component", "reconciler"),
	}
}

// Apply reconciles one provider reference. Unknown references and already
// terminal orders are no-ops; the paid transition grants the order's credits
// exactly once.
func (r *Reconciler) Apply(ctx context.Context, providerRef string, paid, failed bool) error {
	switch {
	case paid:
		order, won, err := r.repo.MarkOrderPaid(ctx, providerRef)
		if err != nil {
			r.metrics.Errors.WithLabelValues("reconciler").Inc()
			return fmt.Errorf("mark order paid: %w", err)
		}
		if won {
			r.metrics.Reconciliations.WithLabelValues("paid").Inc()
			r.logger.Info("order paid, credits granted",
				"order_id", order.OrderID, "user_id", order.UserID, "credits", order.CreditsOwed)
			return nil
		}
		r.countMiss(ctx, providerRef)
		return nil

	case failed:
		won, err := r.repo.MarkOrderFailed(ctx, providerRef)
		if err != nil {
			r.metrics.Errors.WithLabelValues("reconciler").Inc()
			return fmt.Errorf("mark order failed: %w", err)
		}
		if won {
			r.metrics.Reconciliations.WithLabelValues("failed").Inc()
			r.logger.Info("order marked failed", "provider_ref", providerRef)
			return nil
		}
		r.countMiss(ctx, providerRef)
		return nil

	default:
		// Still pending at the provider.
		r.metrics.Reconciliations.WithLabelValues("pending").Inc()
		return nil
	}
}

// HandlePaymentEvent satisfies payment.Processor, wiring webhook events into
// the same transition used by status polling.
func (r *Reconciler) HandlePaymentEvent(ctx context.Context, event payment.WebhookEvent) error {
	return r.Apply(ctx, event.ProviderRef, event.Paid, event.Failed)
}

// countMiss distinguishes a replayed event for a terminal order from an
// event that matches no order at all. Both are no-ops.
func (r *Reconciler) countMiss(ctx context.Context, providerRef string) {
	if _, err := r.repo.GetOrderByProviderRef(ctx, providerRef); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			r.metrics.Reconciliations.WithLabelValues("unknown_ref").Inc()
			r.logger.Debug("event for unknown provider ref", "provider_ref", providerRef)
			return
		}
		r.logger.Warn("lookup after losing reconciliation race", "provider_ref", providerRef, "error", err)
		return
	}
	r.metrics.Reconciliations.WithLabelValues("replay").Inc()
}

var _ payment.Processor = (*Reconciler)(nil)
