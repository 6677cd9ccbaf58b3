package payment

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"duangpay/internal/metrics"
)

const defaultOmiseBaseURL = "https://api.omise.co"

// OmiseConfig holds Omise client configuration.
type OmiseConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Omise creates PromptPay charges via the Omise charges API. Confirmation
// arrives as a charge.complete webhook and is also pollable via GET /charges.
type Omise struct {
	cfg    OmiseConfig
	base   string
	client *httpClient
	logger *slog.Logger
}

// NewOmise creates an Omise provider.
func NewOmise(cfg OmiseConfig, logger *slog.Logger, m *metrics.Metrics) *Omise {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOmiseBaseURL
	}
	return &Omise{
		cfg:    cfg,
		base:   base,
		client: newHTTPClient("omise", cfg.Timeout, logger, m),
		logger: logger.With("component", "omise"),
	}
}

func (o *Omise) Name() string { return "omise" }

// CreatePayment creates a charge with a PromptPay source. The scannable QR
// code comes back inside the charge's source.
func (o *Omise) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if o.cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: omise secret key unset", ErrProviderUnavailable)
	}

	currency := req.Currency
	if currency == "" {
		currency = "thb"
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountSatang, 10))
	form.Set("currency", currency)
	form.Set("source[type]", "promptpay")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.Reference != "" {
		form.Set("metadata[reference]", req.Reference)
	}
	for key, val := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), val)
	}

	httpReq, err := http.NewRequest(http.MethodPost, o.base+"/charges", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(o.cfg.SecretKey, "")

	body, err := o.client.do(ctx, httpReq, "/charges")
	if err != nil {
		return nil, err
	}

	charge, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode charge: %v", ErrProviderRequest, err)
	}
	chargeID := firstString(charge, "id")
	if chargeID == "" {
		return nil, fmt.Errorf("%w: charge response missing id", ErrProviderRequest)
	}

	artifact := map[string]any{}
	if qr := omiseQRImage(charge); qr != "" {
		artifact["qr_image"] = qr
	}
	if exp := firstString(charge, "expires_at"); exp != "" {
		artifact["expires_at"] = exp
	}

	return &Payment{ProviderRef: chargeID, Artifact: artifact, Raw: charge}, nil
}

// FetchStatus reads the charge. Omise reports paid=true with
// status=successful once the PromptPay transfer clears.
func (o *Omise) FetchStatus(ctx context.Context, providerRef string) (*PaymentStatus, error) {
	httpReq, err := http.NewRequest(http.MethodGet, o.base+"/charges/"+url.PathEscape(providerRef), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.SetBasicAuth(o.cfg.SecretKey, "")

	body, err := o.client.do(ctx, httpReq, "/charges/{id}")
	if err != nil {
		return nil, err
	}

	charge, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode charge: %v", ErrProviderRequest, err)
	}
	return omiseChargeStatus(charge), nil
}

// VerifyWebhookSignature checks the Omise-Signature header, an HMAC-SHA256
// hex digest of the raw body under the shared webhook secret.
func (o *Omise) VerifyWebhookSignature(body []byte, header http.Header) bool {
	if o.cfg.WebhookSecret == "" {
		return false
	}
	signature := header.Get("Omise-Signature")
	if signature == "" {
		return false
	}
	return equalSignature(signature, hmacSHA256Hex(o.cfg.WebhookSecret, body))
}

// ParseWebhookEvent understands charge.complete events; anything else is a
// non-payment event with an empty provider reference.
func (o *Omise) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	event, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	kind := firstString(event, "key", "type")
	if kind != "charge.complete" {
		return &WebhookEvent{Kind: kind}, nil
	}

	charge := nestedMap(event, "data")
	if charge == nil {
		charge = nestedMap(event, "data", "object")
	}
	if charge == nil {
		return &WebhookEvent{Kind: kind}, nil
	}

	status := omiseChargeStatus(charge)
	return &WebhookEvent{
		Kind:        kind,
		ProviderRef: firstString(charge, "id"),
		Paid:        status.Paid,
		Failed:      status.Failed,
	}, nil
}

func omiseChargeStatus(charge map[string]any) *PaymentStatus {
	status := strings.ToLower(firstString(charge, "status"))
	paid := firstBool(charge, "paid") && status == "successful"
	failed := status == "failed" || firstString(charge, "failure_code") != ""
	return &PaymentStatus{Paid: paid, Failed: failed, Raw: charge}
}

func omiseQRImage(charge map[string]any) string {
	code := nestedMap(charge, "source", "scannable_code")
	if code == nil {
		return ""
	}
	if img := nestedMap(code, "image"); img != nil {
		return firstString(img, "download_uri", "uri")
	}
	return firstString(code, "image")
}
