package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func scbTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth/token" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": {"accessToken": "tok_1", "expiresIn": 1800}}`))
			return
		}
		handler(w, r)
	}))
}

func newTestSCB(baseURL string) *SCB {
	return NewSCB(SCBConfig{
		BaseURL:       baseURL,
		APIKey:        "key",
		APISecret:     "secret",
		BillerID:      "010555566677788",
		WebhookSecret: "whsec",
		Timeout:       time.Second,
	}, testLogger(), testMetrics())
}

func TestSCBCreatePayment(t *testing.T) {
	server := scbTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payment/qrcode/create" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok_1" {
			t.Errorf("authorization = %s", got)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload["amount"] != "99.00" {
			t.Errorf("amount = %v, want 99.00", payload["amount"])
		}
		if payload["ref1"] != "ORD1700000000001ABCD" {
			t.Errorf("ref1 = %v", payload["ref1"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"qrRawData": "00020101021230", "qrImage": "aGVsbG8="}}`))
	})
	defer server.Close()

	s := newTestSCB(server.URL)
	pay, err := s.CreatePayment(context.Background(), CreatePaymentRequest{
		AmountSatang: 9900,
		Reference:    "ORD-1700000000001-abcd",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if pay.ProviderRef != "ORD1700000000001ABCD" {
		t.Fatalf("provider ref = %s", pay.ProviderRef)
	}
	if pay.Artifact["qr_payload"] != "00020101021230" {
		t.Fatalf("qr payload = %v", pay.Artifact["qr_payload"])
	}
}

func TestSCBCreatePaymentMissingCredentials(t *testing.T) {
	s := NewSCB(SCBConfig{}, testLogger(), testMetrics())
	_, err := s.CreatePayment(context.Background(), CreatePaymentRequest{AmountSatang: 100, Reference: "ORD-1"})
	if err == nil {
		t.Fatal("expected error with unset credentials")
	}
}

func TestSCBFetchStatus(t *testing.T) {
	paidBody := `{"data": [{"statusCode": "00", "amount": "99.00"}]}`
	pendingBody := `{"data": []}`

	for _, tc := range []struct {
		body string
		paid bool
	}{
		{paidBody, true},
		{pendingBody, false},
	} {
		body := tc.body
		server := scbTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("reference1"); got != "ORDX" {
				t.Errorf("reference1 = %s", got)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})

		s := newTestSCB(server.URL)
		status, err := s.FetchStatus(context.Background(), "ORDX")
		server.Close()
		if err != nil {
			t.Fatalf("fetch status: %v", err)
		}
		if status.Paid != tc.paid {
			t.Fatalf("paid = %v, want %v", status.Paid, tc.paid)
		}
		if status.Failed {
			t.Fatal("inquiry must never report failed")
		}
	}
}

func TestSCBTokenCached(t *testing.T) {
	tokenCalls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/oauth/token" {
			tokenCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data": {"accessToken": "tok_cached", "expiresIn": 1800}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	s := newTestSCB(server.URL)
	for i := 0; i < 3; i++ {
		if _, err := s.FetchStatus(context.Background(), "ORDY"); err != nil {
			t.Fatalf("fetch status: %v", err)
		}
	}
	if tokenCalls != 1 {
		t.Fatalf("token calls = %d, want 1", tokenCalls)
	}
}

func TestSCBVerifyWebhookSignature(t *testing.T) {
	s := newTestSCB("")
	body := []byte(`{"billPaymentRef1":"ORDX"}`)

	valid := http.Header{}
	valid.Set("X-Signature", hmacSHA256Hex("whsec", body))
	if !s.VerifyWebhookSignature(body, valid) {
		t.Fatal("valid signature rejected")
	}

	bad := http.Header{}
	bad.Set("X-Signature", hmacSHA256Hex("nope", body))
	if s.VerifyWebhookSignature(body, bad) {
		t.Fatal("wrong-secret signature accepted")
	}
}

func TestSCBParseWebhookEvent(t *testing.T) {
	s := newTestSCB("")

	event, err := s.ParseWebhookEvent([]byte(`{"billPaymentRef1": "ORDX", "statusCode": "00"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderRef != "ORDX" || !event.Paid {
		t.Fatalf("event = %+v", event)
	}

	event, err = s.ParseWebhookEvent([]byte(`{"hello": "world"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if event.ProviderRef != "" {
		t.Fatalf("ref-less event carried ref %s", event.ProviderRef)
	}
}

func TestSCBReference(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ORD-1700000000001-abcd", "ORD1700000000001ABCD"},
		{"ord_1", "ORD1"},
		{"", ""},
		{"0123456789012345678901234", "01234567890123456789"},
	}
	for _, tc := range cases {
		if got := scbReference(tc.in); got != tc.want {
			t.Fatalf("scbReference(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
