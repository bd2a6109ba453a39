package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientRateLimit(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := ClientRateLimit(2, time.Minute, clock)(ok)

	request := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/public/categories", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := request("10.0.0.1:1234"); rr.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, rr.Code)
		}
	}
	limited := request("10.0.0.1:5678")
	if limited.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", limited.Code)
	}
	if limited.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", limited.Header().Get("Retry-After"))
	}
	if code := errorCode(t, limited); code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %s", code)
	}

	if rr := request("10.0.0.2:1234"); rr.Code != http.StatusNoContent {
		t.Fatalf("other clients must not be limited, got %d", rr.Code)
	}

	now = now.Add(time.Minute + time.Second)
	if rr := request("10.0.0.1:1234"); rr.Code != http.StatusNoContent {
		t.Fatalf("expected window reset, got %d", rr.Code)
	}
}

func TestClientRateLimitDisabled(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := ClientRateLimit(0, time.Minute, nil)(ok)

	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected limiter to be disabled, got %d", rr.Code)
		}
	}
}
