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

const defaultStripeBaseURL = "https://api.stripe.com"

// stripeSignatureTolerance bounds how old a webhook timestamp may be before
// it is rejected as a replay.
const stripeSignatureTolerance = 5 * time.Minute

// StripeConfig holds Stripe client configuration.
type StripeConfig struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

// Stripe creates PromptPay payment intents. Confirmation arrives as
// payment_intent.* webhooks and is also pollable via GET /v1/payment_intents.
type Stripe struct {
	cfg    StripeConfig
	base   string
	client *httpClient
	logger *slog.Logger
	now    func() time.Time
}

// NewStripe creates a Stripe provider.
func NewStripe(cfg StripeConfig, logger *slog.Logger, m *metrics.Metrics) *Stripe {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultStripeBaseURL
	}
	return &Stripe{
		cfg:    cfg,
		base:   base,
		client: newHTTPClient("stripe", cfg.Timeout, logger, m),
		logger: logger.With("component", "stripe"),
		now:    time.Now,
	}
}

func (s *Stripe) Name() string { return "stripe" }

// CreatePayment creates and confirms a PromptPay payment intent; the
// confirmed intent's next_action carries the displayable QR code.
func (s *Stripe) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if s.cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: stripe secret key unset", ErrProviderUnavailable)
	}

	currency := req.Currency
	if currency == "" {
		currency = "thb"
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.AmountSatang, 10))
	form.Set("currency", currency)
	form.Set("payment_method_types[]", "promptpay")
	form.Set("payment_method_data[type]", "promptpay")
	form.Set("confirm", "true")
	if req.Description != "" {
		form.Set("description", req.Description)
	}
	if req.Reference != "" {
		form.Set("metadata[reference]", req.Reference)
	}
	for key, val := range req.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", key), val)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.base+"/v1/payment_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	body, err := s.client.do(ctx, httpReq, "/v1/payment_intents")
	if err != nil {
		return nil, err
	}

	intent, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", ErrProviderRequest, err)
	}
	intentID := firstString(intent, "id")
	if intentID == "" {
		return nil, fmt.Errorf("%w: payment intent response missing id", ErrProviderRequest)
	}

	artifact := map[string]any{}
	if qr := nestedMap(intent, "next_action", "promptpay_display_qr_code"); qr != nil {
		if img := firstString(qr, "image_url_png"); img != "" {
			artifact["qr_image"] = img
		}
		if data := firstString(qr, "data"); data != "" {
			artifact["qr_payload"] = data
		}
		if page := firstString(qr, "hosted_instructions_url"); page != "" {
			artifact["instructions_url"] = page
		}
	}

	return &Payment{ProviderRef: intentID, Artifact: artifact, Raw: intent}, nil
}

// FetchStatus reads the payment intent. succeeded is paid; canceled is the
// only terminal failure Stripe reports for PromptPay intents.
func (s *Stripe) FetchStatus(ctx context.Context, providerRef string) (*PaymentStatus, error) {
	httpReq, err := http.NewRequest(http.MethodGet, s.base+"/v1/payment_intents/"+url.PathEscape(providerRef), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)

	body, err := s.client.do(ctx, httpReq, "/v1/payment_intents/{id}")
	if err != nil {
		return nil, err
	}

	intent, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode payment intent: %v", ErrProviderRequest, err)
	}
	return stripeIntentStatus(intent), nil
}

// VerifyWebhookSignature checks the Stripe-Signature header: a timestamp and
// one or more v1 HMAC-SHA256 digests of "<timestamp>.<body>".
func (s *Stripe) VerifyWebhookSignature(body []byte, header http.Header) bool {
	if s.cfg.WebhookSecret == "" {
		return false
	}
	signature := header.Get("Stripe-Signature")
	if signature == "" {
		return false
	}

	var timestamp string
	var candidates []string
	for _, part := range strings.Split(signature, ",") {
		key, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = val
		case "v1":
			candidates = append(candidates, val)
		}
	}
	if timestamp == "" || len(candidates) == 0 {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if age := s.now().Sub(time.Unix(ts, 0)); age > stripeSignatureTolerance || age < -stripeSignatureTolerance {
		return false
	}

	payload := make([]byte, 0, len(timestamp)+1+len(body))
	payload = append(payload, timestamp...)
	payload = append(payload, '.')
	payload = append(payload, body...)
	expected := hmacSHA256Hex(s.cfg.WebhookSecret, payload)

	for _, candidate := range candidates {
		if equalSignature(candidate, expected) {
			return true
		}
	}
	return false
}

// ParseWebhookEvent understands payment_intent.succeeded and
// payment_intent.payment_failed; other event types are non-payment events.
func (s *Stripe) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	event, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	kind := firstString(event, "type")

	switch kind {
	case "payment_intent.succeeded", "payment_intent.payment_failed", "payment_intent.canceled":
	default:
		return &WebhookEvent{Kind: kind}, nil
	}

	intent := nestedMap(event, "data", "object")
	if intent == nil {
		return &WebhookEvent{Kind: kind}, nil
	}

	return &WebhookEvent{
		Kind:        kind,
		ProviderRef: firstString(intent, "id"),
		Paid:        kind == "payment_intent.succeeded",
		Failed:      kind == "payment_intent.payment_failed" || kind == "payment_intent.canceled",
	}, nil
}

func stripeIntentStatus(intent map[string]any) *PaymentStatus {
	status := strings.ToLower(firstString(intent, "status"))
	return &PaymentStatus{
		Paid:   status == "succeeded",
		Failed: status == "canceled",
		Raw:    intent,
	}
}
