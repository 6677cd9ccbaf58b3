package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"duangpay/internal/metrics"
)

// SCBConfig holds SCB Easy API client configuration.
type SCBConfig struct {
	BaseURL       string
	APIKey        string
	APISecret     string
	BillerID      string
	WebhookSecret string
	Timeout       time.Duration
}

// SCB generates Thai QR (PromptPay biller) codes through the SCB Easy
// partner API. SCB is poll-first: status comes from the bill payment
// transaction inquiry, with an optional payment confirmation push.
type SCB struct {
	cfg    SCBConfig
	base   string
	client *httpClient
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewSCB creates an SCB provider.
func NewSCB(cfg SCBConfig, logger *slog.Logger, m *metrics.Metrics) *SCB {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &SCB{
		cfg:    cfg,
		base:   base,
		client: newHTTPClient("scb", cfg.Timeout, logger, m),
		logger: logger.With("component", "scb"),
		now:    time.Now,
	}
}

func (s *SCB) Name() string { return "scb" }

// CreatePayment creates a biller QR for the amount. The caller-supplied
// reference becomes ref1, which SCB echoes back in inquiries and
// confirmations, so it doubles as the provider reference.
func (s *SCB) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" || s.cfg.BillerID == "" {
		return nil, fmt.Errorf("%w: scb credentials unset", ErrProviderUnavailable)
	}
	ref1 := scbReference(req.Reference)
	if ref1 == "" {
		return nil, fmt.Errorf("%w: scb requires a merchant reference", ErrProviderRequest)
	}

	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	amount := decimal.NewFromInt(req.AmountSatang).Div(decimal.NewFromInt(100))
	payload := map[string]any{
		"qrType": "PP",
		"ppType": "BILLERID",
		"ppId":   s.cfg.BillerID,
		"amount": amount.StringFixed(2),
		"ref1":   ref1,
		"ref3":   "DNG",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal qrcode request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.base+"/v1/payment/qrcode/create", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	s.setHeaders(httpReq, token)

	resBody, err := s.client.do(ctx, httpReq, "/v1/payment/qrcode/create")
	if err != nil {
		return nil, err
	}

	res, err := decodeMap(resBody)
	if err != nil {
		return nil, fmt.Errorf("%w: decode qrcode response: %v", ErrProviderRequest, err)
	}
	data := nestedMap(res, "data")
	if data == nil {
		return nil, fmt.Errorf("%w: qrcode response missing data", ErrProviderRequest)
	}

	artifact := map[string]any{}
	if raw := firstString(data, "qrRawData"); raw != "" {
		artifact["qr_payload"] = raw
	}
	if img := firstString(data, "qrImage"); img != "" {
		artifact["qr_image"] = "data:image/png;base64," + img
	}

	return &Payment{ProviderRef: ref1, Artifact: artifact, Raw: res}, nil
}

// FetchStatus queries the bill payment transaction for today by ref1. A
// missing transaction means the slip has not been paid yet, not a failure.
func (s *SCB) FetchStatus(ctx context.Context, providerRef string) (*PaymentStatus, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("reference1", providerRef)
	query.Set("transactionDate", s.now().Format("2006-01-02"))
	endpoint := "/v1/payment/billpayment/transactions"

	httpReq, err := http.NewRequest(http.MethodGet, s.base+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	s.setHeaders(httpReq, token)

	body, err := s.client.do(ctx, httpReq, endpoint)
	if err != nil {
		return nil, err
	}

	res, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode inquiry response: %v", ErrProviderRequest, err)
	}

	status := &PaymentStatus{Raw: res}
	records, _ := res["data"].([]any)
	for _, record := range records {
		tx, ok := record.(map[string]any)
		if !ok {
			continue
		}
		if scbPaid(tx) {
			status.Paid = true
			break
		}
	}
	return status, nil
}

// VerifyWebhookSignature checks the X-Signature header, an HMAC-SHA256 hex
// digest of the raw body under the shared webhook secret.
func (s *SCB) VerifyWebhookSignature(body []byte, header http.Header) bool {
	if s.cfg.WebhookSecret == "" {
		return false
	}
	signature := header.Get("X-Signature")
	if signature == "" {
		return false
	}
	return equalSignature(signature, hmacSHA256Hex(s.cfg.WebhookSecret, body))
}

// ParseWebhookEvent understands SCB payment confirmations, which carry the
// merchant reference as billPaymentRef1.
func (s *SCB) ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	event, err := decodeMap(body)
	if err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}
	ref := firstString(event, "billPaymentRef1", "ref1", "reference1")
	if ref == "" {
		return &WebhookEvent{Kind: "unknown"}, nil
	}
	return &WebhookEvent{
		Kind:        "payment.confirmation",
		ProviderRef: ref,
		Paid:        scbPaid(event),
	}, nil
}

// token returns a cached OAuth access token, refreshing when expired.
func (s *SCB) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken != "" && s.now().Before(s.tokenExpiry) {
		return s.accessToken, nil
	}

	payload, err := json.Marshal(map[string]string{
		"applicationKey":    s.cfg.APIKey,
		"applicationSecret": s.cfg.APISecret,
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, s.base+"/v1/oauth/token", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("resourceOwnerId", s.cfg.APIKey)
	httpReq.Header.Set("requestUId", uuid.NewString())

	body, err := s.client.do(ctx, httpReq, "/v1/oauth/token")
	if err != nil {
		return "", err
	}

	res, err := decodeMap(body)
	if err != nil {
		return "", fmt.Errorf("%w: decode token response: %v", ErrProviderRequest, err)
	}
	data := nestedMap(res, "data")
	if data == nil {
		return "", fmt.Errorf("%w: token response missing data", ErrProviderRequest)
	}
	token := firstString(data, "accessToken")
	if token == "" {
		return "", fmt.Errorf("%w: token response missing accessToken", ErrProviderRequest)
	}

	// expiresIn is seconds; renew a minute early.
	ttl := 25 * time.Minute
	if expires := firstString(data, "expiresIn"); expires != "" {
		if parsed, err := time.ParseDuration(expires + "s"); err == nil && parsed > time.Minute {
			ttl = parsed - time.Minute
		}
	}

	s.accessToken = token
	s.tokenExpiry = s.now().Add(ttl)
	return token, nil
}

func (s *SCB) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("resourceOwnerId", s.cfg.APIKey)
	req.Header.Set("requestUId", uuid.NewString())
}

func scbPaid(tx map[string]any) bool {
	status := strings.ToUpper(firstString(tx, "statusCode", "paymentStatus", "status"))
	switch status {
	case "00", "PAID", "SUCCESS", "CONFIRMED":
		return true
	}
	return false
}

// scbReference normalises a merchant reference to the uppercase
// alphanumeric form ref1 accepts.
func scbReference(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	const maxLen = 20
	out := b.String()
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}
