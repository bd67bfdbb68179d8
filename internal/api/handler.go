package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openfolio/billing/config"
	"github.com/openfolio/billing/internal/billing"
	apperrors "github.com/openfolio/billing/internal/errors"
	"github.com/openfolio/billing/internal/logger"
)

// Checkout is the orchestrator surface the HTTP layer depends on.
type Checkout interface {
	StartSubscription(ctx context.Context, req billing.CheckoutRequest) (*billing.SubscriptionCheckout, error)
	StartPaymentIntent(ctx context.Context, req billing.CheckoutRequest) (*billing.IntentCheckout, error)
	CompleteSubscription(ctx context.Context, req billing.CompleteRequest) (*billing.SubscriptionCheckout, error)
	VerifySubscription(ctx context.Context, subscriptionID, paymentIntentID string) (*billing.VerifyResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*billing.CancelResult, error)
	ListSubscriptions(ctx context.Context, email string) ([]billing.SubscriptionSummary, error)
	StartHostedCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.HostedSession, error)
}

// Handler handles HTTP requests for the checkout API and document routes
type Handler struct {
	cfg       *config.Config
	svc       Checkout
	version   string
	buildTime string
	gitCommit string
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(cfg *config.Config, svc Checkout, version, buildTime, gitCommit string) *Handler {
	return &Handler{
		cfg:       cfg,
		svc:       svc,
		version:   version,
		buildTime: buildTime,
		gitCommit: gitCommit,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	// Checkout endpoints
	r.Post("/create-subscription", h.createSubscription)
	r.Post("/create-payment-intent", h.createPaymentIntent)
	r.Post("/complete-subscription", h.completeSubscription)
	r.Post("/verify-subscription", h.verifySubscription)
	r.Post("/cancel-subscription", h.cancelSubscription)
	r.Get("/list-subscriptions", h.listSubscriptions)
	r.Post("/create-checkout-session", h.createCheckoutSession)

	// Client bootstrap
	r.Get("/config", h.configHandler)

	// Health and system info
	r.Get("/health", h.healthHandler)
	r.Get("/health/live", h.livenessHandler)
	r.Get("/health/ready", h.readinessHandler)
	r.Get("/version", h.versionHandler)

	// Document routes
	r.Get("/", h.servePage(h.cfg.Static.LandingPage))
	r.Get("/payment", h.servePage(h.cfg.Static.PaymentPage))
	r.Get("/privacy", h.servePage(h.cfg.Static.PrivacyPage))
	r.Get("/terms", h.servePage(h.cfg.Static.TermsPage))
	r.Get("/app", h.servePage(h.cfg.Static.AppLinkPage))
}

func (h *Handler) configHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"publishableKey": h.cfg.Stripe.PublishableKey,
	})
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"timestamp":         time.Now().UTC(),
		"version":           h.version,
		"stripe_configured": h.cfg.Stripe.Configured(),
	})
}

func (h *Handler) livenessHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// readinessHandler reports whether payment endpoints can serve. The provider
// itself is not probed; a missing credential is the only local readiness gate.
func (h *Handler) readinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"stripe": "ok",
	}
	statusCode := http.StatusOK
	if !h.cfg.Stripe.Configured() {
		checks["stripe"] = "error: credential not configured"
		statusCode = http.StatusServiceUnavailable
	}

	h.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

func (h *Handler) versionHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{
		"version":    h.version,
		"build_time": h.buildTime,
		"git_commit": h.gitCommit,
	})
}

// decodeJSON decodes a request body into dst. Malformed or absent bodies
// come back as validation errors, never as internal failures.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return apperrors.ValidationError{Message: "request body is required"}
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.ValidationError{Message: "invalid JSON body"}
	}
	return nil
}

func (h *Handler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// errorBody is the single error envelope every failure is encoded into.
type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// writeError maps err onto the HTTP boundary: status code, message, and
// type tag all derive from the error taxonomy.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	h.writeJSONResponse(w, status, errorEnvelope{Error: errorBody{
		Message: apperrors.Message(err),
		Type:    apperrors.TypeTag(err),
	}})
}
