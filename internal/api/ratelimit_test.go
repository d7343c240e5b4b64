package api

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := newTokenBucket(3, 0)

	for i := range 3 {
		if !tb.allow() {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if tb.allow() {
		t.Error("request allowed after burst exhausted")
	}
	if tb.remaining() != 0 {
		t.Errorf("remaining = %d, want 0", tb.remaining())
	}
}

func TestTokenBucketRefill(t *testing.T) {
	tb := newTokenBucket(2, 10)
	tb.allowN(2)

	// Pretend half a second passed.
	tb.mu.Lock()
	tb.lastRefillTime = tb.lastRefillTime.Add(-500 * time.Millisecond)
	tb.mu.Unlock()

	if got := tb.remaining(); got != 2 {
		t.Errorf("remaining after refill = %d, want 2 (capped)", got)
	}
	if !tb.allowN(2) {
		t.Error("allowN(2) denied after refill")
	}
	if tb.allowN(2) {
		t.Error("allowN(2) allowed with an empty bucket")
	}
}

func TestTokenBucketReset(t *testing.T) {
	tb := newTokenBucket(4, 2)
	now := time.Now()
	if r := tb.reset(); r.Sub(now) > 10*time.Millisecond {
		t.Errorf("full bucket reset = %v from now", r.Sub(now))
	}

	tb.allowN(4)
	wait := time.Until(tb.reset())
	if wait < 1500*time.Millisecond || wait > 2*time.Second {
		t.Errorf("reset in %v, want about 2s", wait)
	}
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(t.Context(), RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2})

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("burst denied")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request allowed")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("second client shares the first client's bucket")
	}
	if rl.Remaining("10.0.0.2") != 1 {
		t.Errorf("remaining = %d, want 1", rl.Remaining("10.0.0.2"))
	}
	if rl.Reset("10.0.0.1").Before(time.Now()) {
		t.Error("reset of an empty bucket is in the past")
	}
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(t.Context(), RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 5})
	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")

	rl.sweep(time.Now())
	if len(rl.buckets) != 2 {
		t.Fatalf("fresh buckets swept: %d left", len(rl.buckets))
	}

	rl.sweep(time.Now().Add(rl.cleanupTTL + time.Second))
	if len(rl.buckets) != 0 {
		t.Errorf("idle buckets kept: %d left", len(rl.buckets))
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(t.Context(), RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 2})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/configs", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		return serve(h, req)
	}

	w := request()
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Limit") != "60" || w.Header().Get("X-RateLimit-Remaining") != "2" {
		t.Errorf("headers = %v", w.Header())
	}
	if _, err := strconv.ParseInt(w.Header().Get("X-RateLimit-Reset"), 10, 64); err != nil {
		t.Errorf("X-RateLimit-Reset: %v", err)
	}

	request()
	w = request()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if code := errorCode(t, w); code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("code = %s", code)
	}
}

func TestRateLimiterDocumentCost(t *testing.T) {
	rl := NewRateLimiter(t.Context(), RateLimiterConfig{RequestsPerMinute: 60, BurstSize: 6, DocumentCost: 5})
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	post := func(path string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.RemoteAddr = "192.0.2.7:1"
		return serve(h, req).Code
	}

	if code := post("/documents"); code != http.StatusOK {
		t.Fatalf("first upload = %d", code)
	}
	if code := post("/jobs"); code != http.StatusTooManyRequests {
		t.Errorf("second upload = %d, want 429", code)
	}
	if code := post("/convert"); code != http.StatusOK {
		t.Errorf("text conversion = %d, want 200", code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		want       string
	}{
		{"remote addr", "192.0.2.1:5000", "", "", "192.0.2.1"},
		{"forwarded first hop", "10.0.0.1:5000", "203.0.113.9, 10.0.0.2", "", "203.0.113.9"},
		{"forwarded garbage", "10.0.0.1:5000", "not-an-ip", "", "10.0.0.1"},
		{"real ip", "10.0.0.1:5000", "", "198.51.100.4", "198.51.100.4"},
		{"real ip garbage", "10.0.0.1:5000", "", "<script>", "10.0.0.1"},
		{"ipv6", "[2001:db8::1]:443", "", "", "2001:db8::1"},
		{"no port", "192.0.2.3", "", "", "192.0.2.3"},
		{"unparseable", "somewhere", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
