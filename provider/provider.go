// Package provider defines the payment provider API surface Tally consumes.
//
// The processor only ever reads from the provider (resolving subscriptions,
// products and customers referenced by webhook events) and creates checkout
// sessions. Implementations should wrap failures in the tally error
// sentinels so the engine can classify them as retryable or terminal.
package provider

import (
	"context"
	"time"

	"github.com/xraph/tally/types"
)

// Client is the outbound provider API. Stripe ships in provider/stripeapi;
// any implementation satisfying this interface can substitute, including
// fakes in tests.
type Client interface {
	// Subscription fetches a subscription by its provider reference.
	Subscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	// Product fetches a product by its provider reference.
	Product(ctx context.Context, productID string) (*Product, error)
	// Customer fetches a customer. Upstream-deleted customers are returned
	// with Deleted set rather than as an error.
	Customer(ctx context.Context, customerID string) (*Customer, error)
	// CreateCheckoutSession opens a hosted checkout for a purchase or a
	// subscription.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

type Subscription struct {
	ID               string
	Status           string
	ProductID        string
	PriceID          string
	CurrentPeriodEnd time.Time
}

type Product struct {
	ID     string
	Name   string
	Active bool
}

type Customer struct {
	ID      string
	Email   string
	Deleted bool
}

type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// CheckoutParams describes a hosted checkout session. Payment mode uses
// Amount and ProductName for an ad-hoc line item; subscription mode uses
// the preconfigured PriceRef.
type CheckoutParams struct {
	Mode          CheckoutMode
	CustomerEmail string
	PriceRef      string
	Amount        types.Money
	ProductName   string
	Quantity      int64
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID  string
	URL string
}
