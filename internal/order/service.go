package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"duangpay/internal/cache"
	"duangpay/internal/catalog"
	"duangpay/internal/metrics"
	"duangpay/internal/payment"
	"duangpay/internal/repo"
)

// ErrPaymentSetup indicates the provider create call failed; no order row
// was persisted.
var ErrPaymentSetup = errors.New("payment setup failed")

// pollThrottleTTL bounds how often aggressive client polling may hit the
// provider's status API for one order.
const pollThrottleTTL = 3 * time.Second

// Service orchestrates order creation and on-demand reconciliation.
type Service struct {
	repo       repo.Repository
	provider   payment.Provider
	catalog    *catalog.Catalog
	reconciler *Reconciler
	cache      *cache.Redis
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an order service. cache may be nil; poll throttling is then
// disabled.
func New(repository repo.Repository, provider payment.Provider, cat *catalog.Catalog, reconciler *Reconciler, redis *cache.Redis, m *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		repo:       repository,
		provider:   provider,
		catalog:    cat,
		reconciler: reconciler,
		cache:      redis,
		metrics:    m,
		logger:     logger.With("component", "orders"),
	}
}

// CreateOrderResult is returned to the purchasing client.
type CreateOrderResult struct {
	OrderID      string         `json:"orderId"`
	Status       string         `json:"status"`
	AmountSatang int64          `json:"amountSatang"`
	Credits      int64          `json:"credits"`
	Artifact     map[string]any `json:"paymentArtifact"`
}

// CreateOrder resolves the package, registers a payment attempt with the
// provider, and persists the pending order. A provider failure aborts before
// any row is written, so no partial state survives.
func (s *Service) CreateOrder(ctx context.Context, userID, packageID string) (*CreateOrderResult, error) {
	pkg, err := s.catalog.Resolve(packageID)
	if err != nil {
		return nil, err
	}

	orderID := newOrderID()
	pay, err := s.provider.CreatePayment(ctx, payment.CreatePaymentRequest{
		AmountSatang: pkg.PriceSatang(),
		Currency:     "thb",
		Description:  fmt.Sprintf("%s credits %s", pkg.Title, orderID),
		Reference:    orderID,
		Metadata: map[string]string{
			"order_id":   orderID,
			"package_id": pkg.ID,
		},
	})
	if err != nil {
		s.metrics.Errors.WithLabelValues("order_create").Inc()
		s.logger.Error("provider payment create failed", "package", pkg.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentSetup, err)
	}

	inserted, err := s.repo.InsertOrder(ctx, repo.Order{
		OrderID:     orderID,
		UserID:      userID,
		PackageID:   pkg.ID,
		CreditsOwed: pkg.Credits,
		AmountDue:   pkg.PriceSatang(),
		Status:      repo.OrderStatusPending,
		Provider:    s.provider.Name(),
		ProviderRef: pay.ProviderRef,
		Metadata:    map[string]any{"artifact": pay.Artifact},
	})
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	s.metrics.OrdersCreated.WithLabelValues(pkg.ID).Inc()
	s.logger.Info("order created",
		"order_id", inserted.OrderID, "package", pkg.ID, "provider_ref", pay.ProviderRef)

	return &CreateOrderResult{
		OrderID:      inserted.OrderID,
		Status:       inserted.Status,
		AmountSatang: inserted.AmountDue,
		Credits:      inserted.CreditsOwed,
		Artifact:     pay.Artifact,
	}, nil
}

// GetOrderStatus returns the order's current status for its owner. Pending
// orders are reconciled against the provider first; transient provider
// errors are swallowed and the order reported as still pending.
func (s *Service) GetOrderStatus(ctx context.Context, userID, orderID string) (*repo.Order, error) {
	ord, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if ord.UserID != userID {
		return nil, repo.ErrNotFound
	}

	if ord.Terminal() {
		return ord, nil
	}

	if s.pollThrottled(ctx, ord.OrderID) {
		return ord, nil
	}

	status, err := s.provider.FetchStatus(ctx, ord.ProviderRef)
	if err != nil {
		// Unknown, not failed: the client's contract is "check again later".
		s.logger.Warn("provider status poll failed", "order_id", ord.OrderID, "error", err)
		return ord, nil
	}

	if err := s.reconciler.Apply(ctx, ord.ProviderRef, status.Paid, status.Failed); err != nil {
		return nil, err
	}

	return s.repo.GetOrder(ctx, orderID)
}

// pollThrottled reports whether this order was polled within the throttle
// window. Redis being down never blocks the poll.
func (s *Service) pollThrottled(ctx context.Context, orderID string) bool {
	if s.cache == nil {
		return false
	}
	fresh, err := s.cache.SetNX(ctx, "orders:poll:"+orderID, "1", pollThrottleTTL)
	if err != nil {
		return false
	}
	return !fresh
}

func newOrderID() string {
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
