package payment

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrProviderUnavailable indicates the provider credentials are unset or
	// misconfigured; no request was attempted.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrProviderRequest indicates a transient provider failure (network
	// error, timeout, non-2xx response). Callers must treat a payment's
	// state as unknown and retry later, never as failed.
	ErrProviderRequest = errors.New("payment provider request failed")
)

// CreatePaymentRequest carries the parameters for a new payment attempt.
type CreatePaymentRequest struct {
	AmountSatang int64
	Currency     string
	Description  string
	// Reference is a caller-supplied token tied to the order. Providers
	// that echo merchant references in confirmations (SCB ref1) use it as
	// the provider reference; others carry it in metadata.
	Reference string
	Metadata  map[string]string
}

// Payment is the result of a successful create call. Artifact holds the
// displayable provider-specific payment instructions (QR image URI, QR
// payload, expiry) for the client to render.
type Payment struct {
	ProviderRef string
	Artifact    map[string]any
	Raw         map[string]any
}

// PaymentStatus is an idempotent read of a payment attempt's state. Neither
// flag set means the payment is still genuinely pending at the provider.
type PaymentStatus struct {
	Paid   bool
	Failed bool
	Raw    map[string]any
}

// WebhookEvent is the provider-agnostic form of a push notification. A
// non-payment event parses to Kind with an empty ProviderRef.
type WebhookEvent struct {
	Kind        string
	ProviderRef string
	Paid        bool
	Failed      bool
}

// Provider abstracts one external payment provider. Different providers
// expose different confirmation mechanics (webhook push, poll, or both);
// this contract keeps the order service and webhook receiver
// provider-agnostic.
type Provider interface {
	Name() string

	// CreatePayment registers a payment attempt with the provider and
	// returns its reference plus a displayable artifact.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error)

	// FetchStatus reads the live state of a payment attempt.
	FetchStatus(ctx context.Context, providerRef string) (*PaymentStatus, error)

	// VerifyWebhookSignature reports whether the raw body matches the
	// provider's signature headers. Constant-time comparison; false on any
	// malformed input.
	VerifyWebhookSignature(body []byte, header http.Header) bool

	// ParseWebhookEvent extracts the provider reference and derived
	// paid/failed flags from a verified webhook body.
	ParseWebhookEvent(body []byte) (*WebhookEvent, error)
}
