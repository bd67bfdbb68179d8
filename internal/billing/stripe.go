package billing

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/openfolio/billing/config"
	apperrors "github.com/openfolio/billing/internal/errors"
	"github.com/openfolio/billing/internal/metrics"
)

// StripeGateway implements Gateway against the Stripe API. The API key is
// scoped to this instance; nothing is written to the SDK's global state.
type StripeGateway struct {
	api *client.API
	cfg config.StripeConfig
}

// NewStripeGateway constructs a gateway from the provider configuration.
func NewStripeGateway(cfg config.StripeConfig) (*StripeGateway, error) {
	if !cfg.Configured() {
		return nil, apperrors.ErrNotConfigured
	}
	return &StripeGateway{api: client.New(cfg.SecretKey, nil), cfg: cfg}, nil
}

func (g *StripeGateway) observe(op string, start time.Time, err *error) {
	status := "ok"
	if *err != nil {
		status = "error"
	}
	metrics.RecordProviderCall(op, status, time.Since(start))
}

func (g *StripeGateway) FindCustomerByEmail(ctx context.Context, email string) (c *Customer, err error) {
	defer g.observe("customer.list", time.Now(), &err)

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := g.api.Customers.List(params)
	for iter.Next() {
		return customerFromStripe(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return nil, nil
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (c *Customer, err error) {
	defer g.observe("customer.create", time.Now(), &err)

	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
		Name:  stripe.String(p.Name),
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	params.SetIdempotencyKey(uuid.NewString())

	cust, err := g.api.Customers.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return customerFromStripe(cust), nil
}

func (g *StripeGateway) UpdateCustomerName(ctx context.Context, id, name string) (c *Customer, err error) {
	defer g.observe("customer.update", time.Now(), &err)

	params := &stripe.CustomerParams{Name: stripe.String(name)}
	params.Context = ctx

	cust, err := g.api.Customers.Update(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return customerFromStripe(cust), nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (err error) {
	defer g.observe("customer.update", time.Now(), &err)

	params := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	params.Context = ctx

	if _, err := g.api.Customers.Update(customerID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) FindPriceByLookupKey(ctx context.Context, key string) (p *Price, err error) {
	defer g.observe("price.list", time.Now(), &err)

	params := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{key}),
		Active:     stripe.Bool(true),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	iter := g.api.Prices.List(params)
	for iter.Next() {
		return priceFromStripe(iter.Price()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return nil, nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, p PriceParams) (pr *Price, err error) {
	defer g.observe("price.create", time.Now(), &err)

	params := &stripe.PriceParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(p.UnitAmount),
		LookupKey:  stripe.String(p.LookupKey),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(p.Interval),
			IntervalCount: stripe.Int64(p.IntervalCount),
		},
		ProductData: &stripe.PriceProductDataParams{
			Name: stripe.String(p.ProductName),
		},
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	params.SetIdempotencyKey(orUUID(p.IdempotencyKey))

	price, err := g.api.Prices.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return priceFromStripe(price), nil
}

func (g *StripeGateway) GetPrice(ctx context.Context, id string) (p *Price, err error) {
	defer g.observe("price.get", time.Now(), &err)

	params := &stripe.PriceParams{}
	params.Context = ctx

	price, err := g.api.Prices.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return priceFromStripe(price), nil
}

func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (pi *PaymentIntent, err error) {
	defer g.observe("payment_intent.create", time.Now(), &err)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		Customer: stripe.String(p.CustomerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	params.SetIdempotencyKey(orUUID(p.IdempotencyKey))

	intent, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return paymentIntentFromStripe(intent), nil
}

func (g *StripeGateway) GetPaymentIntent(ctx context.Context, id string) (pi *PaymentIntent, err error) {
	defer g.observe("payment_intent.get", time.Now(), &err)

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	intent, err := g.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return paymentIntentFromStripe(intent), nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (s *Subscription, err error) {
	defer g.observe("subscription.create", time.Now(), &err)

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID)},
		},
		PaymentBehavior: stripe.String(p.PaymentBehavior),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	if p.DefaultPaymentMethod != "" {
		params.DefaultPaymentMethod = stripe.String(p.DefaultPaymentMethod)
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	params.SetIdempotencyKey(orUUID(p.IdempotencyKey))
	params.AddExpand("latest_invoice.payment_intent")

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, id string) (s *Subscription, err error) {
	defer g.observe("subscription.get", time.Now(), &err)

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("latest_invoice.payment_intent")
	params.AddExpand("customer")

	sub, err := g.api.Subscriptions.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) CancelAtPeriodEnd(ctx context.Context, id string) (s *Subscription, err error) {
	defer g.observe("subscription.update", time.Now(), &err)

	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Update(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return subscriptionFromStripe(sub), nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID string, limit int) (subs []Subscription, err error) {
	defer g.observe("subscription.list", time.Now(), &err)

	params := &stripe.SubscriptionListParams{}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.AddExpand("data.customer")

	iter := g.api.Subscriptions.List(params)
	for iter.Next() {
		subs = append(subs, *subscriptionFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, mapStripeError(err)
	}
	return subs, nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) (err error) {
	defer g.observe("payment_method.attach", time.Now(), &err)

	params := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	params.Context = ctx

	if _, err := g.api.PaymentMethods.Attach(paymentMethodID, params); err != nil {
		return mapStripeError(err)
	}
	return nil
}

func (g *StripeGateway) GetInvoice(ctx context.Context, id string) (inv *Invoice, err error) {
	defer g.observe("invoice.get", time.Now(), &err)

	params := &stripe.InvoiceParams{}
	params.Context = ctx

	in, err := g.api.Invoices.Get(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(in), nil
}

func (g *StripeGateway) PayInvoice(ctx context.Context, id, paymentMethodID string) (inv *Invoice, err error) {
	defer g.observe("invoice.pay", time.Now(), &err)

	params := &stripe.InvoicePayParams{}
	if paymentMethodID != "" {
		params.PaymentMethod = stripe.String(paymentMethodID)
	}
	params.Context = ctx

	in, err := g.api.Invoices.Pay(id, params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return invoiceFromStripe(in), nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (cs *CheckoutSession, err error) {
	defer g.observe("checkout_session.create", time.Now(), &err)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(1)},
		},
	}
	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if len(p.Metadata) > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: p.Metadata}
	}
	params.Context = ctx
	params.Metadata = p.Metadata
	params.SetIdempotencyKey(orUUID(p.IdempotencyKey))

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, mapStripeError(err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func customerFromStripe(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name}
}

func priceFromStripe(p *stripe.Price) *Price {
	out := &Price{
		ID:         p.ID,
		LookupKey:  p.LookupKey,
		Currency:   string(p.Currency),
		UnitAmount: p.UnitAmount,
		Active:     p.Active,
		Metadata:   p.Metadata,
	}
	if p.Recurring != nil {
		out.Recurring = true
		out.Interval = string(p.Recurring.Interval)
		out.IntervalCount = p.Recurring.IntervalCount
	}
	return out
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
	}
	if pi.PaymentMethod != nil {
		out.PaymentMethodID = pi.PaymentMethod.ID
	}
	return out
}

func subscriptionFromStripe(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CurrentPeriodEnd:  s.CurrentPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
		out.CustomerEmail = s.Customer.Email
	}
	if s.LatestInvoice != nil {
		out.LatestInvoiceID = s.LatestInvoice.ID
		if s.LatestInvoice.PaymentIntent != nil {
			out.PaymentIntentID = s.LatestInvoice.PaymentIntent.ID
			out.ClientSecret = s.LatestInvoice.PaymentIntent.ClientSecret
		}
	}
	return out
}

func invoiceFromStripe(in *stripe.Invoice) *Invoice {
	out := &Invoice{ID: in.ID, Status: string(in.Status)}
	if in.PaymentIntent != nil {
		out.PaymentIntentID = in.PaymentIntent.ID
	}
	return out
}

func orUUID(key string) string {
	if key != "" {
		return key
	}
	return uuid.NewString()
}

// mapStripeError translates SDK failures into the typed taxonomy. Anything
// that is not a *stripe.Error is a transport failure.
func mapStripeError(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return apperrors.Provider(apperrors.KindNetwork, "Network error. Please try again.", err)
	}

	switch {
	case serr.Type == stripe.ErrorTypeCard:
		msg := serr.Msg
		if msg == "" {
			msg = "Your card was declined."
		}
		return apperrors.Provider(apperrors.KindCardDeclined, msg, err)
	case serr.HTTPStatusCode == http.StatusTooManyRequests:
		return apperrors.Provider(apperrors.KindRateLimited, "Too many requests. Please try again later.", err)
	case serr.HTTPStatusCode == http.StatusUnauthorized:
		return apperrors.Provider(apperrors.KindAuthFailed, "Authentication with payment provider failed.", err)
	case serr.Type == stripe.ErrorTypeInvalidRequest:
		return apperrors.Provider(apperrors.KindInvalidRequest, serr.Msg, err)
	default:
		msg := serr.Msg
		if msg == "" {
			msg = "Payment provider error."
		}
		return apperrors.Provider(apperrors.KindOther, msg, err)
	}
}
