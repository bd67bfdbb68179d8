package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/openfolio/billing/config"
	apperrors "github.com/openfolio/billing/internal/errors"
	"github.com/openfolio/billing/internal/logger"
	"github.com/openfolio/billing/internal/metrics"
	"github.com/openfolio/billing/internal/pricecache"
	"github.com/openfolio/billing/internal/pricing"
)

// Service orchestrates checkout against the payment provider: it resolves
// the canonical price and customer, then drives whichever flow the caller
// selected. Nothing is persisted locally; all durable state lives with the
// provider, and idempotency rests on price lookup keys and email-based
// customer dedup.
type Service struct {
	cfg    config.StripeConfig
	gw     Gateway
	prices *pricecache.Cache
}

// NewService creates the checkout orchestrator. gw may be nil when the
// provider credential is unset; every operation then fails with the
// configuration error before any network call.
func NewService(cfg config.StripeConfig, gw Gateway, prices *pricecache.Cache) *Service {
	return &Service{cfg: cfg, gw: gw, prices: prices}
}

// CheckoutRequest is the validated inbound request shared by all flows.
// Callers supply either an explicit price reference or a (count, period)
// pair for the pricing engine.
type CheckoutRequest struct {
	Email          string   `json:"email"`
	Name           string   `json:"name"`
	PriceID        string   `json:"priceId,omitempty"`
	PortfolioCount int      `json:"portfolioCount,omitempty"`
	BillingPeriod  string   `json:"billingPeriod,omitempty"`
	Portfolios     []string `json:"portfolios,omitempty"`
}

// Validate checks field presence; range checks on the plan pair are the
// pricing engine's job.
func (r CheckoutRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return apperrors.ValidationError{Field: "email", Message: "is required"}
	}
	if strings.TrimSpace(r.Name) == "" {
		return apperrors.ValidationError{Field: "name", Message: "is required"}
	}
	if r.PriceID == "" && (r.PortfolioCount == 0 || r.BillingPeriod == "") {
		return apperrors.ValidationError{
			Field:   "priceId",
			Message: "either priceId or both portfolioCount and billingPeriod are required",
		}
	}
	return nil
}

func (r CheckoutRequest) portfoliosMeta() string {
	if len(r.Portfolios) == 0 {
		return "N/A"
	}
	return strings.Join(r.Portfolios, ", ")
}

func (r CheckoutRequest) portfolioCountMeta() string {
	if r.PortfolioCount > 0 {
		return strconv.Itoa(r.PortfolioCount)
	}
	return strconv.Itoa(len(r.Portfolios))
}

// SubscriptionCheckout is the handle returned by the subscription flows.
type SubscriptionCheckout struct {
	SubscriptionID  string `json:"subscriptionId"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	ClientSecret    string `json:"clientSecret,omitempty"`
	CustomerID      string `json:"customerId"`
	PriceID         string `json:"priceId"`
	Status          string `json:"status,omitempty"`
}

// IntentCheckout is the handle returned by the direct-intent flow.
type IntentCheckout struct {
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	CustomerID      string `json:"customerId"`
	PriceID         string `json:"priceId"`
}

// VerifyResult reports provider-observed subscription status.
type VerifyResult struct {
	SubscriptionID string `json:"subscriptionId"`
	Status         string `json:"status"`
	CustomerID     string `json:"customerId"`
}

// CancelResult reports the state after scheduling a period-end cancellation.
type CancelResult struct {
	SubscriptionID    string `json:"subscriptionId"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  int64  `json:"currentPeriodEnd"`
}

// SubscriptionSummary is one row of the subscription listing.
type SubscriptionSummary struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Portfolios       string `json:"portfolios"`
	CustomerEmail    string `json:"customer_email"`
}

// HostedSession is the handle returned by the hosted-redirect flow.
type HostedSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func (s *Service) ready() error {
	if !s.cfg.Configured() || s.gw == nil {
		return apperrors.ErrNotConfigured
	}
	return nil
}

// ResolvePrice returns the remote price the request should be billed
// against. An explicit price reference must be active and recurring; a
// (count, period) pair is quoted and resolved find-or-create by lookup key,
// so repeated requests reuse the same remote price.
func (s *Service) ResolvePrice(ctx context.Context, req CheckoutRequest) (*Price, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	if req.PriceID != "" {
		price, err := s.gw.GetPrice(ctx, req.PriceID)
		if err != nil {
			return nil, err
		}
		if !price.Active || !price.Recurring {
			return nil, apperrors.Provider(apperrors.KindInvalidRequest,
				fmt.Sprintf("price %s is not an active recurring price", req.PriceID), nil)
		}
		return price, nil
	}

	period, err := pricing.ParseBillingPeriod(req.BillingPeriod)
	if err != nil {
		return nil, err
	}
	quote, err := pricing.Quote(req.PortfolioCount, period)
	if err != nil {
		return nil, err
	}

	lookupKey := quote.LookupKey(s.cfg.ProductName)
	if id, ok := s.prices.Get(ctx, lookupKey); ok {
		return &Price{
			ID:         id,
			LookupKey:  lookupKey,
			Currency:   s.cfg.Currency,
			UnitAmount: quote.AmountMinorUnits,
			Active:     true,
			Recurring:  true,
		}, nil
	}

	price, err := s.gw.FindPriceByLookupKey(ctx, lookupKey)
	if err != nil {
		return nil, err
	}
	if price == nil {
		price, err = s.createQuotedPrice(ctx, quote, lookupKey)
		if err != nil {
			return nil, err
		}
	}

	s.prices.Set(ctx, lookupKey, price.ID)
	return price, nil
}

// createQuotedPrice creates the remote price for a quote. Two concurrent
// requests may race here; a duplicate create is resolved by refetching the
// price that won, never by failing the request.
func (s *Service) createQuotedPrice(ctx context.Context, quote *pricing.PriceQuote, lookupKey string) (*Price, error) {
	interval, intervalCount := quote.BillingPeriod.Interval()
	price, err := s.gw.CreatePrice(ctx, PriceParams{
		LookupKey:     lookupKey,
		Currency:      s.cfg.Currency,
		UnitAmount:    quote.AmountMinorUnits,
		Interval:      interval,
		IntervalCount: intervalCount,
		ProductName:   fmt.Sprintf("%s (%d portfolios, %s)", s.cfg.ProductName, quote.PortfolioCount, quote.BillingPeriod),
		Metadata: map[string]string{
			"portfolio_count":  strconv.Itoa(quote.PortfolioCount),
			"billing_period":   string(quote.BillingPeriod),
			"amount_excl_tax":  quote.AmountExclTax.StringFixed(2),
			"tax_amount":       quote.TaxAmount.StringFixed(2),
			"amount_incl_tax":  quote.AmountInclTax.StringFixed(2),
			"tax_rate":         quote.TaxRate.String(),
		},
	})
	if err == nil {
		return price, nil
	}

	// The lookup key may have been claimed between our find and create.
	if existing, ferr := s.gw.FindPriceByLookupKey(ctx, lookupKey); ferr == nil && existing != nil {
		logger.WithContext(ctx).Info("price create raced, reusing existing price",
			"lookup_key", lookupKey, "price_id", existing.ID)
		return existing, nil
	}
	return nil, err
}

// ResolveCustomer finds or creates the customer record for an email. At
// most one record exists per email; a changed display name is written back
// to the existing record.
func (s *Service) ResolveCustomer(ctx context.Context, req CheckoutRequest) (*Customer, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	customer, err := s.gw.FindCustomerByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		if customer.Name != req.Name {
			customer, err = s.gw.UpdateCustomerName(ctx, customer.ID, req.Name)
			if err != nil {
				return nil, err
			}
		}
		return customer, nil
	}

	return s.gw.CreateCustomer(ctx, CustomerParams{
		Email: req.Email,
		Name:  req.Name,
		Metadata: map[string]string{
			"selected_portfolios": req.portfoliosMeta(),
		},
	})
}

// StartSubscription runs the default-incomplete flow: the subscription is
// created up front in an incomplete state and the provider-generated
// payment authorization is handed back for client-side confirmation.
func (s *Service) StartSubscription(ctx context.Context, req CheckoutRequest) (out *SubscriptionCheckout, err error) {
	defer func() { metrics.RecordCheckout("subscription", outcome(err)) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price, err := s.ResolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}
	customer, err := s.ResolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	sub, err := s.gw.CreateSubscription(ctx, SubscriptionParams{
		CustomerID:      customer.ID,
		PriceID:         price.ID,
		PaymentBehavior: PaymentBehaviorDefaultIncomplete,
		Metadata: map[string]string{
			"portfolios":      req.portfoliosMeta(),
			"portfolio_count": req.portfolioCountMeta(),
			"price_id":        price.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	return &SubscriptionCheckout{
		SubscriptionID:  sub.ID,
		PaymentIntentID: sub.PaymentIntentID,
		ClientSecret:    sub.ClientSecret,
		CustomerID:      customer.ID,
		PriceID:         price.ID,
		Status:          sub.Status,
	}, nil
}

// StartPaymentIntent runs the direct-intent flow: a stand-alone payment
// authorization for the quoted amount. Subscription creation is deferred
// until the caller reports the authorization succeeded.
func (s *Service) StartPaymentIntent(ctx context.Context, req CheckoutRequest) (out *IntentCheckout, err error) {
	defer func() { metrics.RecordCheckout("payment_intent", outcome(err)) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price, err := s.ResolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}
	customer, err := s.ResolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	intent, err := s.gw.CreatePaymentIntent(ctx, PaymentIntentParams{
		Amount:     price.UnitAmount,
		Currency:   price.Currency,
		CustomerID: customer.ID,
		Metadata: map[string]string{
			"portfolios":      req.portfoliosMeta(),
			"portfolio_count": req.portfolioCountMeta(),
			"price_id":        price.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	return &IntentCheckout{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		CustomerID:      customer.ID,
		PriceID:         price.ID,
	}, nil
}

// CompleteRequest finishes a checkout whose payment authorization already
// succeeded out-of-band.
type CompleteRequest struct {
	CheckoutRequest
	PaymentIntentID string `json:"paymentIntentId"`
}

// CompleteSubscription runs the post-payment attach flow: the succeeded
// authorization's payment method is attached to the customer and set as
// default, the subscription is created allowing incomplete status, and its
// first invoice is paid explicitly. Failures past subscription creation
// are logged, not fatal; the response carries the provider-observed status.
func (s *Service) CompleteSubscription(ctx context.Context, req CompleteRequest) (out *SubscriptionCheckout, err error) {
	defer func() { metrics.RecordCheckout("complete_subscription", outcome(err)) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.PaymentIntentID) == "" {
		return nil, apperrors.ValidationError{Field: "paymentIntentId", Message: "is required"}
	}

	price, err := s.ResolvePrice(ctx, req.CheckoutRequest)
	if err != nil {
		return nil, err
	}
	customer, err := s.ResolveCustomer(ctx, req.CheckoutRequest)
	if err != nil {
		return nil, err
	}

	intent, err := s.gw.GetPaymentIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if intent.PaymentMethodID == "" {
		return nil, apperrors.Provider(apperrors.KindInvalidRequest,
			fmt.Sprintf("payment intent %s has no payment method", req.PaymentIntentID), nil)
	}

	if err := s.gw.AttachPaymentMethod(ctx, intent.PaymentMethodID, customer.ID); err != nil {
		return nil, err
	}
	if err := s.gw.SetDefaultPaymentMethod(ctx, customer.ID, intent.PaymentMethodID); err != nil {
		return nil, err
	}

	sub, err := s.gw.CreateSubscription(ctx, SubscriptionParams{
		CustomerID:           customer.ID,
		PriceID:              price.ID,
		PaymentBehavior:      PaymentBehaviorAllowIncomplete,
		DefaultPaymentMethod: intent.PaymentMethodID,
		Metadata: map[string]string{
			"portfolios":        req.portfoliosMeta(),
			"portfolio_count":   req.portfolioCountMeta(),
			"payment_intent_id": intent.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	// The subscription exists; everything past this point settles
	// asynchronously and must not fail the request.
	if sub.LatestInvoiceID != "" {
		if _, payErr := s.gw.PayInvoice(ctx, sub.LatestInvoiceID, intent.PaymentMethodID); payErr != nil {
			logger.WithContext(ctx).Warn("initial invoice payment failed, relying on async settlement",
				"subscription_id", sub.ID, "invoice_id", sub.LatestInvoiceID, "error", payErr)
		}
	}

	if current, getErr := s.gw.GetSubscription(ctx, sub.ID); getErr == nil {
		sub = current
	} else {
		logger.WithContext(ctx).Warn("subscription refetch failed, reporting creation-time status",
			"subscription_id", sub.ID, "error", getErr)
	}

	if sub.Status != "active" {
		logger.WithContext(ctx).Info("subscription not yet active after completion",
			"subscription_id", sub.ID, "status", sub.Status)
	}

	return &SubscriptionCheckout{
		SubscriptionID:  sub.ID,
		PaymentIntentID: intent.ID,
		CustomerID:      customer.ID,
		PriceID:         price.ID,
		Status:          sub.Status,
	}, nil
}

// VerifySubscription reports the provider's current view of a subscription.
// A non-active status is not an error; settlement may still be in flight.
func (s *Service) VerifySubscription(ctx context.Context, subscriptionID, paymentIntentID string) (*VerifyResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, apperrors.ValidationError{Field: "subscriptionId", Message: "is required"}
	}

	sub, err := s.gw.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	if paymentIntentID != "" {
		if intent, err := s.gw.GetPaymentIntent(ctx, paymentIntentID); err != nil {
			logger.WithContext(ctx).Warn("payment intent lookup failed during verification",
				"payment_intent_id", paymentIntentID, "error", err)
		} else if intent.Status != "succeeded" {
			logger.WithContext(ctx).Info("payment intent not yet succeeded",
				"payment_intent_id", intent.ID, "status", intent.Status)
		}
	}

	if sub.Status != "active" {
		logger.WithContext(ctx).Info("subscription verification observed non-active status",
			"subscription_id", sub.ID, "status", sub.Status)
	}

	return &VerifyResult{
		SubscriptionID: sub.ID,
		Status:         sub.Status,
		CustomerID:     sub.CustomerID,
	}, nil
}

// CancelSubscription schedules cancellation at the end of the current
// billing period. The subscription is never terminated immediately.
func (s *Service) CancelSubscription(ctx context.Context, subscriptionID string) (*CancelResult, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, apperrors.ValidationError{Field: "subscriptionId", Message: "is required"}
	}

	sub, err := s.gw.CancelAtPeriodEnd(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}

	return &CancelResult{
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}, nil
}

// ListSubscriptions lists subscriptions for an email, or the most recent
// ones when no email is given. An unknown email yields an empty list.
func (s *Service) ListSubscriptions(ctx context.Context, email string) ([]SubscriptionSummary, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	customerID := ""
	if email != "" {
		customer, err := s.gw.FindCustomerByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if customer == nil {
			return []SubscriptionSummary{}, nil
		}
		customerID = customer.ID
	}

	subs, err := s.gw.ListSubscriptions(ctx, customerID, 10)
	if err != nil {
		return nil, err
	}

	summaries := make([]SubscriptionSummary, 0, len(subs))
	for _, sub := range subs {
		portfolios := sub.Metadata["portfolios"]
		if portfolios == "" {
			portfolios = "N/A"
		}
		customerEmail := sub.CustomerEmail
		if customerEmail == "" {
			customerEmail = "N/A"
		}
		summaries = append(summaries, SubscriptionSummary{
			ID:               sub.ID,
			Status:           sub.Status,
			CurrentPeriodEnd: sub.CurrentPeriodEnd,
			Portfolios:       portfolios,
			CustomerEmail:    customerEmail,
		})
	}
	return summaries, nil
}

// StartHostedCheckout runs the hosted-redirect flow: the provider drives
// authorization and activation, and the caller is handed a redirect URL.
func (s *Service) StartHostedCheckout(ctx context.Context, req CheckoutRequest) (out *HostedSession, err error) {
	defer func() { metrics.RecordCheckout("checkout_session", outcome(err)) }()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price, err := s.ResolvePrice(ctx, req)
	if err != nil {
		return nil, err
	}
	customer, err := s.ResolveCustomer(ctx, req)
	if err != nil {
		return nil, err
	}

	sess, err := s.gw.CreateCheckoutSession(ctx, CheckoutSessionParams{
		CustomerID: customer.ID,
		PriceID:    price.ID,
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
		Metadata: map[string]string{
			"portfolios":      req.portfoliosMeta(),
			"portfolio_count": req.portfolioCountMeta(),
			"price_id":        price.ID,
		},
	})
	if err != nil {
		return nil, err
	}

	return &HostedSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
