package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func stripeHeader(secret string, ts time.Time, body []byte) http.Header {
	stamp := fmt.Sprintf("%d", ts.Unix())
	payload := []byte(stamp + "." + string(body))
	h := http.Header{}
	h.Set("Stripe-Signature", "t="+stamp+",v1="+hmacSHA256Hex(secret, payload))
	return h
}

func TestStripeCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment_intents" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test" {
			t.Errorf("authorization = %s", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.PostForm.Get("confirm"); got != "true" {
			t.Errorf("confirm = %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "pi_test_1",
			"status": "requires_action",
			"next_action": {"promptpay_display_qr_code": {
				"image_url_png": "https://example.com/qr.png",
				"data": "00020101021230",
				"hosted_instructions_url": "https://example.com/pay"
			}}
		}`))
	}))
	defer server.Close()

	s := NewStripe(StripeConfig{BaseURL: server.URL, SecretKey: "sk_test", Timeout: time.Second}, testLogger(), testMetrics())

	pay, err := s.CreatePayment(context.Background(), CreatePaymentRequest{AmountSatang: 9900, Reference: "ORD-2"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if pay.ProviderRef != "pi_test_1" {
		t.Fatalf("provider ref = %s", pay.ProviderRef)
	}
	if pay.Artifact["qr_payload"] != "00020101021230" {
		t.Fatalf("qr payload = %v", pay.Artifact["qr_payload"])
	}
}

func TestStripeFetchStatus(t *testing.T) {
	cases := []struct {
		status string
		paid   bool
		failed bool
	}{
		{"succeeded", true, false},
		{"canceled", false, true},
		{"requires_action", false, false},
	}
	for _, tc := range cases {
		body := fmt.Sprintf(`{"id": "pi_x", "status": %q}`, tc.status)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		}))

		s := NewStripe(StripeConfig{BaseURL: server.URL, SecretKey: "sk_test", Timeout: time.Second}, testLogger(), testMetrics())
		got, err := s.FetchStatus(context.Background(), "pi_x")
		server.Close()
		if err != nil {
			t.Fatalf("%s: fetch status: %v", tc.status, err)
		}
		if got.Paid != tc.paid || got.Failed != tc.failed {
			t.Fatalf("%s: got paid=%v failed=%v", tc.status, got.Paid, got.Failed)
		}
	}
}

func TestStripeVerifyWebhookSignature(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewStripe(StripeConfig{WebhookSecret: "whsec_test"}, testLogger(), testMetrics())
	s.now = func() time.Time { return now }

	body := []byte(`{"type":"payment_intent.succeeded"}`)

	if !s.VerifyWebhookSignature(body, stripeHeader("whsec_test", now, body)) {
		t.Fatal("valid signature rejected")
	}
	if s.VerifyWebhookSignature(body, stripeHeader("whsec_other", now, body)) {
		t.Fatal("wrong-secret signature accepted")
	}
	if s.VerifyWebhookSignature(body, stripeHeader("whsec_test", now.Add(-10*time.Minute), body)) {
		t.Fatal("stale timestamp accepted")
	}
	if s.VerifyWebhookSignature(body, stripeHeader("whsec_test", now.Add(10*time.Minute), body)) {
		t.Fatal("future timestamp accepted")
	}

	h := http.Header{}
	h.Set("Stripe-Signature", "v1=deadbeef")
	if s.VerifyWebhookSignature(body, h) {
		t.Fatal("signature without timestamp accepted")
	}
	if s.VerifyWebhookSignature(body, http.Header{}) {
		t.Fatal("missing header accepted")
	}
}

func TestStripeParseWebhookEvent(t *testing.T) {
	s := NewStripe(StripeConfig{}, testLogger(), testMetrics())

	event, err := s.ParseWebhookEvent([]byte(`{
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_evt_1", "status": "succeeded"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderRef != "pi_evt_1" || !event.Paid || event.Failed {
		t.Fatalf("event = %+v", event)
	}

	event, err = s.ParseWebhookEvent([]byte(`{
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_evt_2", "status": "requires_payment_method"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderRef != "pi_evt_2" || event.Paid || !event.Failed {
		t.Fatalf("event = %+v", event)
	}

	event, err = s.ParseWebhookEvent([]byte(`{"type": "charge.refunded"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderRef != "" {
		t.Fatalf("non-payment event carried ref %s", event.ProviderRef)
	}
}
