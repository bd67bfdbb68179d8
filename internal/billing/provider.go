package billing

import (
	"context"
)

// Customer is a reference to a customer record owned by the payment provider
type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Price is a reference to a recurring price object owned by the provider
type Price struct {
	ID            string            `json:"id"`
	LookupKey     string            `json:"lookup_key"`
	Currency      string            `json:"currency"`
	UnitAmount    int64             `json:"unit_amount"`
	Active        bool              `json:"active"`
	Recurring     bool              `json:"recurring"`
	Interval      string            `json:"interval"`
	IntervalCount int64             `json:"interval_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// PaymentIntent is a payment authorization created by the provider
type PaymentIntent struct {
	ID              string `json:"id"`
	ClientSecret    string `json:"client_secret"`
	Status          string `json:"status"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
}

// Subscription mirrors the provider-side subscription state this service
// reports to callers. All durable status lives with the provider.
type Subscription struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CustomerID        string            `json:"customer_id"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	LatestInvoiceID   string            `json:"latest_invoice_id,omitempty"`
	PaymentIntentID   string            `json:"payment_intent_id,omitempty"`
	ClientSecret      string            `json:"client_secret,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Invoice is a reference to a provider invoice
type Invoice struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	PaymentIntentID string `json:"payment_intent_id,omitempty"`
}

// CheckoutSession is a hosted checkout handle; the provider drives
// authorization and activation entirely off-box.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CustomerParams creates a customer record
type CustomerParams struct {
	Email    string
	Name     string
	Metadata map[string]string
}

// PriceParams creates a recurring price object
type PriceParams struct {
	LookupKey      string
	Currency       string
	UnitAmount     int64
	Interval       string
	IntervalCount  int64
	ProductName    string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntentParams creates a stand-alone payment authorization
type PaymentIntentParams struct {
	Amount         int64
	Currency       string
	CustomerID     string
	Metadata       map[string]string
	IdempotencyKey string
}

// Subscription payment behaviors understood by the gateway
const (
	PaymentBehaviorDefaultIncomplete = "default_incomplete"
	PaymentBehaviorAllowIncomplete   = "allow_incomplete"
)

// SubscriptionParams creates a subscription
type SubscriptionParams struct {
	CustomerID           string
	PriceID              string
	PaymentBehavior      string
	DefaultPaymentMethod string
	Metadata             map[string]string
	IdempotencyKey       string
}

// CheckoutSessionParams creates a hosted checkout session
type CheckoutSessionParams struct {
	CustomerID     string
	PriceID        string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// Gateway is the outbound payment-provider capability consumed by the
// checkout orchestrator. Implementations translate every provider failure
// into a typed error from internal/errors; raw provider errors never cross
// this boundary. Find methods return (nil, nil) when nothing matches.
type Gateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	UpdateCustomerName(ctx context.Context, id, name string) (*Customer, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	FindPriceByLookupKey(ctx context.Context, key string) (*Price, error)
	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	GetPrice(ctx context.Context, id string) (*Price, error)

	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*PaymentIntent, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CancelAtPeriodEnd(ctx context.Context, id string) (*Subscription, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]Subscription, error)

	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	PayInvoice(ctx context.Context, id, paymentMethodID string) (*Invoice, error)

	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
}
