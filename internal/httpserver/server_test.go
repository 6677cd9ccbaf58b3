package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNormaliseBasePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"api", "/api"},
		{"/pay/", "/pay"},
		{" /pay ", "/pay"},
	}
	for _, tc := range cases {
		if got := normaliseBasePath(tc.in); got != tc.want {
			t.Fatalf("normaliseBasePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMountWithBasePath(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Seen-Path", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	h := mountWithBasePath("/pay", inner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pay/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Seen-Path"); got != "/healthz" {
		t.Fatalf("inner path = %s, want /healthz", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other/healthz", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 outside base path", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for prefix collision", rec.Code)
	}
}
