package api

import (
	"net/http"

	"github.com/openfolio/billing/internal/billing"
)

func (h *Handler) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.StartSubscription(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.StartPaymentIntent(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handler) completeSubscription(w http.ResponseWriter, r *http.Request) {
	var req billing.CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.CompleteSubscription(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handler) verifySubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubscriptionID  string `json:"subscriptionId"`
		PaymentIntentID string `json:"paymentIntentId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.VerifySubscription(r.Context(), req.SubscriptionID, req.PaymentIntentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handler) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.CancelSubscription(r.Context(), req.SubscriptionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	subs, err := h.svc.ListSubscriptions(r.Context(), email)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"subscriptions": subs,
	})
}

func (h *Handler) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req billing.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.svc.StartHostedCheckout(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, out)
}
