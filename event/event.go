// Package event decodes provider webhook payloads into typed events.
//
// An Event is the tagged union the dispatcher routes on. Provider wire
// types map onto the three kinds the ledger reacts to; everything else
// becomes KindUnknown and is acknowledged without effect.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
)

type Kind string

const (
	KindPurchaseCompleted            Kind = "purchase_completed"
	KindSubscriptionPaymentSucceeded Kind = "subscription_payment_succeeded"
	KindSubscriptionCancelled        Kind = "subscription_cancelled"
	KindUnknown                      Kind = "unknown"
)

// kinds maps provider wire types to ledger event kinds.
var kinds = map[string]Kind{
	string(stripe.EventTypeCheckoutSessionCompleted):    KindPurchaseCompleted,
	string(stripe.EventTypeInvoicePaymentSucceeded):     KindSubscriptionPaymentSucceeded,
	string(stripe.EventTypeCustomerSubscriptionDeleted): KindSubscriptionCancelled,
}

// KindOf returns the ledger kind for a provider wire type.
func KindOf(providerType string) Kind {
	if k, ok := kinds[providerType]; ok {
		return k
	}
	return KindUnknown
}

// Event is a decoded provider notification. The kind-specific payload is
// kept raw until one of the typed accessors is called.
type Event struct {
	ID           string
	Kind         Kind
	ProviderType string
	CreatedAt    time.Time

	object json.RawMessage
}

// CheckoutSession is the payload of a completed checkout.
type CheckoutSession struct {
	ID              string `json:"id"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	AmountTotal  int64             `json:"amount_total"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

// Email returns the customer contact for the session. The confirmed
// checkout email wins over the prefill field.
func (s *CheckoutSession) Email() string {
	if s.CustomerDetails.Email != "" {
		return s.CustomerDetails.Email
	}
	return s.CustomerEmail
}

// Invoice is the payload of a successful subscription payment.
type Invoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	CustomerEmail string `json:"customer_email"`
	Subscription  string `json:"subscription"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	PeriodEnd     int64  `json:"period_end"`
}

// Subscription is the payload of a subscription lifecycle event.
type Subscription struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Status   string `json:"status"`
}

type envelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Parse decodes a raw webhook payload into an Event. It fails on
// undecodable JSON or a missing type discriminant; unknown types parse
// fine and carry KindUnknown.
func Parse(payload []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("event: decode payload: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("event: payload has no type")
	}

	e := &Event{
		ID:           env.ID,
		Kind:         KindOf(env.Type),
		ProviderType: env.Type,
		object:       env.Data.Object,
	}
	if env.Created > 0 {
		e.CreatedAt = time.Unix(env.Created, 0).UTC()
	}
	return e, nil
}

// CheckoutSession decodes the event object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSession, error) {
	if e.Kind != KindPurchaseCompleted {
		return nil, fmt.Errorf("event: %s carries no checkout session", e.ProviderType)
	}
	s := new(CheckoutSession)
	if err := e.decodeObject(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Invoice decodes the event object as an invoice.
func (e *Event) Invoice() (*Invoice, error) {
	if e.Kind != KindSubscriptionPaymentSucceeded {
		return nil, fmt.Errorf("event: %s carries no invoice", e.ProviderType)
	}
	inv := new(Invoice)
	if err := e.decodeObject(inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Subscription decodes the event object as a subscription.
func (e *Event) Subscription() (*Subscription, error) {
	if e.Kind != KindSubscriptionCancelled {
		return nil, fmt.Errorf("event: %s carries no subscription", e.ProviderType)
	}
	s := new(Subscription)
	if err := e.decodeObject(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (e *Event) decodeObject(v any) error {
	if len(e.object) == 0 {
		return fmt.Errorf("event: %s has no object payload", e.ProviderType)
	}
	if err := json.Unmarshal(e.object, v); err != nil {
		return fmt.Errorf("event: decode %s object: %w", e.ProviderType, err)
	}
	return nil
}
