package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/openfolio/billing/config"
	"github.com/openfolio/billing/internal/billing"
	apperrors "github.com/openfolio/billing/internal/errors"
)

// mockCheckout implements Checkout with canned results per test
type mockCheckout struct {
	subscription *billing.SubscriptionCheckout
	intent       *billing.IntentCheckout
	verify       *billing.VerifyResult
	cancel       *billing.CancelResult
	list         []billing.SubscriptionSummary
	session      *billing.HostedSession
	err          error

	lastEmail string
}

func (m *mockCheckout) StartSubscription(ctx context.Context, req billing.CheckoutRequest) (*billing.SubscriptionCheckout, error) {
	return m.subscription, m.err
}

func (m *mockCheckout) StartPaymentIntent(ctx context.Context, req billing.CheckoutRequest) (*billing.IntentCheckout, error) {
	return m.intent, m.err
}

func (m *mockCheckout) CompleteSubscription(ctx context.Context, req billing.CompleteRequest) (*billing.SubscriptionCheckout, error) {
	return m.subscription, m.err
}

func (m *mockCheckout) VerifySubscription(ctx context.Context, subscriptionID, paymentIntentID string) (*billing.VerifyResult, error) {
	return m.verify, m.err
}

func (m *mockCheckout) CancelSubscription(ctx context.Context, subscriptionID string) (*billing.CancelResult, error) {
	return m.cancel, m.err
}

func (m *mockCheckout) ListSubscriptions(ctx context.Context, email string) ([]billing.SubscriptionSummary, error) {
	m.lastEmail = email
	return m.list, m.err
}

func (m *mockCheckout) StartHostedCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.HostedSession, error) {
	return m.session, m.err
}

func newTestRouter(t *testing.T, svc Checkout) *chi.Mux {
	t.Helper()
	cfg := &config.Config{
		Stripe: config.StripeConfig{SecretKey: "sk_test_123", PublishableKey: "pk_test_123", ProductName: "openfolio", Currency: "chf"},
		Static: config.StaticConfig{Dir: t.TempDir(), LandingPage: "index.html"},
	}
	h := NewHandler(cfg, svc, "1.0.0", "2026-01-01", "abc123")
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeErrorEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (message, typeTag string) {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env.Error.Message, env.Error.Type
}

func TestCreateSubscription(t *testing.T) {
	svc := &mockCheckout{subscription: &billing.SubscriptionCheckout{
		SubscriptionID: "sub_1",
		ClientSecret:   "secret_1",
		CustomerID:     "cus_1",
		PriceID:        "price_1",
		Status:         "incomplete",
	}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/create-subscription",
		`{"email":"jane@example.com","name":"Jane","portfolioCount":2,"billingPeriod":"annual"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out billing.SubscriptionCheckout
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.ClientSecret != "secret_1" || out.SubscriptionID != "sub_1" {
		t.Errorf("unexpected response: %+v", out)
	}
}

func TestMalformedJSONIsValidationError(t *testing.T) {
	r := newTestRouter(t, &mockCheckout{})

	endpoints := []string{
		"/create-subscription",
		"/create-payment-intent",
		"/complete-subscription",
		"/verify-subscription",
		"/cancel-subscription",
		"/create-checkout-session",
	}
	for _, ep := range endpoints {
		t.Run(ep, func(t *testing.T) {
			rec := doJSON(t, r, http.MethodPost, ep, `{not json`)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if _, typeTag := decodeErrorEnvelope(t, rec); typeTag != "validation_error" {
				t.Errorf("expected validation_error, got %s", typeTag)
			}
		})
	}
}

func TestErrorEnvelopeMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{
			name:       "card declined",
			err:        apperrors.Provider(apperrors.KindCardDeclined, "Your card was declined.", nil),
			wantStatus: http.StatusBadRequest,
			wantType:   "card_error",
			wantMsg:    "Your card was declined.",
		},
		{
			name:       "rate limited",
			err:        apperrors.Provider(apperrors.KindRateLimited, "Too many requests. Please try again later.", nil),
			wantStatus: http.StatusTooManyRequests,
			wantType:   "rate_limit_error",
			wantMsg:    "Too many requests. Please try again later.",
		},
		{
			name:       "network",
			err:        apperrors.Provider(apperrors.KindNetwork, "Network error. Please try again.", nil),
			wantStatus: http.StatusBadGateway,
			wantType:   "api_connection_error",
			wantMsg:    "Network error. Please try again.",
		},
		{
			name:       "not configured",
			err:        apperrors.ErrNotConfigured,
			wantStatus: http.StatusInternalServerError,
			wantType:   "configuration_error",
			wantMsg:    "Server not configured. Set STRIPE_SECRET_KEY environment variable.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, &mockCheckout{err: tt.err})
			rec := doJSON(t, r, http.MethodPost, "/create-subscription",
				`{"email":"jane@example.com","name":"Jane","priceId":"price_1"}`)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
			msg, typeTag := decodeErrorEnvelope(t, rec)
			if typeTag != tt.wantType {
				t.Errorf("type: got %s, want %s", typeTag, tt.wantType)
			}
			if msg != tt.wantMsg {
				t.Errorf("message: got %q, want %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestVerifySubscription(t *testing.T) {
	svc := &mockCheckout{verify: &billing.VerifyResult{SubscriptionID: "sub_1", Status: "active", CustomerID: "cus_1"}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/verify-subscription", `{"subscriptionId":"sub_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out billing.VerifyResult
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Status != "active" {
		t.Errorf("unexpected status: %s", out.Status)
	}
}

func TestCancelSubscription(t *testing.T) {
	svc := &mockCheckout{cancel: &billing.CancelResult{
		SubscriptionID: "sub_1", Status: "active", CancelAtPeriodEnd: true, CurrentPeriodEnd: 1900000000,
	}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/cancel-subscription", `{"subscriptionId":"sub_1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out billing.CancelResult
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.CancelAtPeriodEnd {
		t.Error("expected cancelAtPeriodEnd true")
	}
}

func TestListSubscriptions(t *testing.T) {
	svc := &mockCheckout{list: []billing.SubscriptionSummary{
		{ID: "sub_1", Status: "active", Portfolios: "Global, Swiss", CustomerEmail: "jane@example.com"},
	}}
	r := newTestRouter(t, svc)

	req := httptest.NewRequest(http.MethodGet, "/list-subscriptions?email=jane@example.com", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastEmail != "jane@example.com" {
		t.Errorf("email query param not forwarded, got %q", svc.lastEmail)
	}
	var out struct {
		Subscriptions []billing.SubscriptionSummary `json:"subscriptions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Subscriptions) != 1 || out.Subscriptions[0].ID != "sub_1" {
		t.Errorf("unexpected listing: %+v", out)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	svc := &mockCheckout{session: &billing.HostedSession{SessionID: "cs_1", URL: "https://checkout.stripe.com/pay/tok"}}
	r := newTestRouter(t, svc)

	rec := doJSON(t, r, http.MethodPost, "/create-checkout-session",
		`{"email":"jane@example.com","name":"Jane","portfolioCount":1,"billingPeriod":"biannual"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out billing.HostedSession
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.URL == "" {
		t.Error("expected redirect url")
	}
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, &mockCheckout{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["stripe_configured"] != true {
		t.Errorf("expected stripe_configured true, got %v", out["stripe_configured"])
	}
}

func TestConfigEndpoint(t *testing.T) {
	r := newTestRouter(t, &mockCheckout{})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var out map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["publishableKey"] != "pk_test_123" {
		t.Errorf("unexpected publishable key: %q", out["publishableKey"])
	}
}

func TestStaticPages(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>openfolio</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Stripe: config.StripeConfig{SecretKey: "sk_test_123"},
		Static: config.StaticConfig{Dir: dir, LandingPage: "index.html", PaymentPage: "payment.html"},
	}
	h := NewHandler(cfg, &mockCheckout{}, "1.0.0", "", "")
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	t.Run("existing page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "openfolio") {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("missing page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/payment", nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404 for missing file, got %d", rec.Code)
		}
	})
}
