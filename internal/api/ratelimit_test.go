package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("burst requests rejected")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second client throttled by the first")
	}
	if got := rl.RetryAfter("10.0.0.1"); got < 1 {
		t.Errorf("RetryAfter = %d, want >= 1", got)
	}
	if rl.Len() != 2 {
		t.Errorf("visitors = %d, want 2", rl.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	get := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", "/api/v1/chart.png", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}

	if rec := get("192.0.2.1:1000", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}
	rec := get("192.0.2.1:2000", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("same host, new port = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("429 without Retry-After")
	}

	// Proxied clients are keyed by the first forwarded address.
	if rec := get("192.0.2.1:3000", "203.0.113.9, 192.0.2.1"); rec.Code != http.StatusOK {
		t.Errorf("forwarded client = %d, want 200", rec.Code)
	}
	if rec := get("192.0.2.7:3000", "203.0.113.9"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("forwarded client again = %d, want 429", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		remote, xff, want string
	}{
		{"192.0.2.1:1234", "", "192.0.2.1"},
		{"[2001:db8::1]:80", "", "2001:db8::1"},
		{"pipe", "", "pipe"},
		{"192.0.2.1:1234", " 198.51.100.4 ,10.0.0.1", "198.51.100.4"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = tc.remote
		if tc.xff != "" {
			req.Header.Set("X-Forwarded-For", tc.xff)
		}
		if got := clientIP(req); got != tc.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tc.remote, tc.xff, got, tc.want)
		}
	}
}
