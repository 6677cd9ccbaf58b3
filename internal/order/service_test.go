package order

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"duangpay/internal/catalog"
	"duangpay/internal/metrics"
	"duangpay/internal/payment"
	"duangpay/internal/repo"
)

type fakeProvider struct {
	createErr error
	status    payment.PaymentStatus
	statusErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) CreatePayment(ctx context.Context, req payment.CreatePaymentRequest) (*payment.Payment, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	return &payment.Payment{
		ProviderRef: req.Reference,
		Artifact:    map[string]any{"qr_image": "https://example.com/qr.png"},
	}, nil
}

func (p *fakeProvider) FetchStatus(ctx context.Context, providerRef string) (*payment.PaymentStatus, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	status := p.status
	return &status, nil
}

func (p *fakeProvider) VerifyWebhookSignature(body []byte, header http.Header) bool { return true }

func (p *fakeProvider) ParseWebhookEvent(body []byte) (*payment.WebhookEvent, error) {
	return &payment.WebhookEvent{}, nil
}

func newTestService(t *testing.T, provider payment.Provider) (*Service, *repo.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Registry("test")
	store := repo.NewMemory()
	reconciler := NewReconciler(store, m, logger)
	svc := New(store, provider, catalog.Default(), reconciler, nil, m, logger)
	return svc, store
}

func createUser(t *testing.T, store *repo.MemoryRepository, phone string) *repo.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), repo.NewUser{Phone: phone, Name: "t", PasswordHash: "h"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCreateOrderPersistsPending(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, store := newTestService(t, provider)
	user := createUser(t, store, "0811111111")

	result, err := svc.CreateOrder(ctx, user.ID, "P10")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if result.Status != repo.OrderStatusPending {
		t.Fatalf("status = %s, want pending", result.Status)
	}
	if result.AmountSatang != 3900 || result.Credits != 10 {
		t.Fatalf("result = %+v", result)
	}
	if result.Artifact["qr_image"] == "" {
		t.Fatal("missing payment artifact")
	}

	stored, err := store.GetOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if stored.ProviderRef != result.OrderID {
		t.Fatalf("provider ref = %s, want %s", stored.ProviderRef, result.OrderID)
	}
}

func TestCreateOrderUnknownPackage(t *testing.T) {
	svc, store := newTestService(t, &fakeProvider{})
	user := createUser(t, store, "0811111112")

	_, err := svc.CreateOrder(context.Background(), user.ID, "P999")
	if !errors.Is(err, catalog.ErrUnknownPackage) {
		t.Fatalf("expected ErrUnknownPackage, got %v", err)
	}
}

func TestCreateOrderProviderFailureLeavesNoOrder(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{createErr: errors.New("gateway timeout")}
	svc, store := newTestService(t, provider)
	user := createUser(t, store, "0811111113")

	_, err := svc.CreateOrder(ctx, user.ID, "P10")
	if !errors.Is(err, ErrPaymentSetup) {
		t.Fatalf("expected ErrPaymentSetup, got %v", err)
	}

	got, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Credits != 0 {
		t.Fatalf("credits = %d, want 0", got.Credits)
	}
}

func TestGetOrderStatusReconcilesPaid(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, store := newTestService(t, provider)
	user := createUser(t, store, "0811111114")

	result, err := svc.CreateOrder(ctx, user.ID, "P30")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	provider.status = payment.PaymentStatus{Paid: true}
	ord, err := svc.GetOrderStatus(ctx, user.ID, result.OrderID)
	if err != nil {
		t.Fatalf("get order status: %v", err)
	}
	if ord.Status != repo.OrderStatusPaid {
		t.Fatalf("status = %s, want paid", ord.Status)
	}

	got, err := store.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.Credits != 30 {
		t.Fatalf("credits = %d, want 30", got.Credits)
	}

	// Poll again after the terminal state: no extra grant.
	ord, err = svc.GetOrderStatus(ctx, user.ID, result.OrderID)
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if ord.Status != repo.OrderStatusPaid {
		t.Fatalf("status = %s", ord.Status)
	}
	got, _ = store.GetUserByID(ctx, user.ID)
	if got.Credits != 30 {
		t.Fatalf("credits after replay = %d, want 30", got.Credits)
	}
}

func TestGetOrderStatusSwallowsTransientProviderErrors(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, store := newTestService(t, provider)
	user := createUser(t, store, "0811111115")

	result, err := svc.CreateOrder(ctx, user.ID, "P10")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	provider.statusErr = errors.New("502 bad gateway")
	ord, err := svc.GetOrderStatus(ctx, user.ID, result.OrderID)
	if err != nil {
		t.Fatalf("poll during outage: %v", err)
	}
	if ord.Status != repo.OrderStatusPending {
		t.Fatalf("status = %s, want pending", ord.Status)
	}
}

func TestGetOrderStatusReconcilesFailed(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	svc, store := newTestService(t, provider)
	user := createUser(t, store, "0811111116")

	result, err := svc.CreateOrder(ctx, user.ID, "P10")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	provider.status = payment.PaymentStatus{Failed: true}
	ord, err := svc.GetOrderStatus(ctx, user.ID, result.OrderID)
	if err != nil {
		t.Fatalf("get order status: %v", err)
	}
	if ord.Status != repo.OrderStatusFailed {
		t.Fatalf("status = %s, want failed", ord.Status)
	}

	got, _ := store.GetUserByID(ctx, user.ID)
	if got.Credits != 0 {
		t.Fatalf("credits = %d, want 0", got.Credits)
	}
}

func TestGetOrderStatusHidesOtherUsersOrders(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &fakeProvider{})
	owner := createUser(t, store, "0811111117")
	other := createUser(t, store, "0811111118")

	result, err := svc.CreateOrder(ctx, owner.ID, "P10")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err = svc.GetOrderStatus(ctx, other.ID, result.OrderID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign order, got %v", err)
	}
}

func TestReconcilerWebhookEvent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, &fakeProvider{})
	user := createUser(t, store, "0811111119")

	result, err := svc.CreateOrder(ctx, user.ID, "P50")
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	err = svc.reconciler.HandlePaymentEvent(ctx, payment.WebhookEvent{
		Kind:        "charge.complete",
		ProviderRef: result.OrderID,
		Paid:        true,
	})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}

	got, _ := store.GetUserByID(ctx, user.ID)
	if got.Credits != 50 {
		t.Fatalf("credits = %d, want 50", got.Credits)
	}

	// Unknown reference is a no-op, not an error.
	err = svc.reconciler.HandlePaymentEvent(ctx, payment.WebhookEvent{
		Kind:        "charge.complete",
		ProviderRef: "chrg_unknown",
		Paid:        true,
	})
	if err != nil {
		t.Fatalf("unknown ref event: %v", err)
	}
}
