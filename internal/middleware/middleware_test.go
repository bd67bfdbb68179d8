package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openfolio/billing/config"
	"github.com/openfolio/billing/internal/ratelimit"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	Security(okHandler()).ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options: got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options: got %q", got)
	}
	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "https://js.stripe.com") {
		t.Errorf("CSP must admit the provider script, got %q", csp)
	}
}

func TestCORS(t *testing.T) {
	mw := CORS(config.CORSConfig{AllowedOrigins: []string{"https://openfolio.ch"}})

	t.Run("allowed origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://openfolio.ch")
		mw(okHandler()).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://openfolio.ch" {
			t.Errorf("expected origin to be reflected, got %q", got)
		}
	})

	t.Run("disallowed origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example")
		mw(okHandler()).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("expected no CORS headers, got %q", got)
		}
	})

	t.Run("preflight", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/create-subscription", nil)
		req.Header.Set("Origin", "https://openfolio.ch")
		mw(okHandler()).ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Errorf("preflight: got status %d", rec.Code)
		}
	})

	t.Run("empty list allows any", func(t *testing.T) {
		anyMW := CORS(config.CORSConfig{})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anywhere.example")
		anyMW(okHandler()).ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("expected wildcard, got %q", got)
		}
	})
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2)
	handler := RateLimit(limiter)(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	if !strings.Contains(rec.Body.String(), "rate_limit_error") {
		t.Errorf("expected error envelope, got %s", rec.Body.String())
	}

	// Different client IP gets its own bucket
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("separate client should be allowed, got %d", rec.Code)
	}
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, int, error) {
	return false, 0, errors.New("redis down")
}
func (failingLimiter) Close() error { return nil }

func TestRateLimitFailsOpen(t *testing.T) {
	handler := RateLimit(failingLimiter{})(okHandler())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("limiter failure must not reject requests, got %d", rec.Code)
	}
}
