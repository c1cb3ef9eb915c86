package event_test

import (
	"testing"

	"github.com/xraph/tally/event"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		providerType string
		want         event.Kind
	}{
		{"checkout.session.completed", event.KindPurchaseCompleted},
		{"invoice.payment_succeeded", event.KindSubscriptionPaymentSucceeded},
		{"customer.subscription.deleted", event.KindSubscriptionCancelled},
		{"invoice.created", event.KindUnknown},
		{"payment_intent.succeeded", event.KindUnknown},
		{"", event.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.providerType, func(t *testing.T) {
			if got := event.KindOf(tt.providerType); got != tt.want {
				t.Errorf("KindOf(%q) = %q, want %q", tt.providerType, got, tt.want)
			}
		})
	}
}

func TestParseCheckoutSession(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1abc",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {
			"id": "cs_test_123",
			"customer_details": {"email": "jamie@example.com"},
			"amount_total": 1000,
			"currency": "usd",
			"metadata": {"credits": "100"}
		}}
	}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if e.ID != "evt_1abc" {
		t.Errorf("ID: got %q", e.ID)
	}
	if e.Kind != event.KindPurchaseCompleted {
		t.Errorf("Kind: got %q", e.Kind)
	}
	if e.CreatedAt.Unix() != 1700000000 {
		t.Errorf("CreatedAt: got %v", e.CreatedAt)
	}

	s, err := e.CheckoutSession()
	if err != nil {
		t.Fatalf("CheckoutSession failed: %v", err)
	}
	if s.ID != "cs_test_123" {
		t.Errorf("session ID: got %q", s.ID)
	}
	if s.Email() != "jamie@example.com" {
		t.Errorf("Email: got %q", s.Email())
	}
	if s.AmountTotal != 1000 {
		t.Errorf("AmountTotal: got %d", s.AmountTotal)
	}
}

func TestCheckoutSessionEmailFallback(t *testing.T) {
	tests := []struct {
		name    string
		session event.CheckoutSession
		want    string
	}{
		{"prefill only", event.CheckoutSession{CustomerEmail: "pre@example.com"}, "pre@example.com"},
		{"confirmed wins", func() event.CheckoutSession {
			s := event.CheckoutSession{CustomerEmail: "pre@example.com"}
			s.CustomerDetails.Email = "confirmed@example.com"
			return s
		}(), "confirmed@example.com"},
		{"neither", event.CheckoutSession{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.Email(); got != tt.want {
				t.Errorf("Email() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInvoice(t *testing.T) {
	payload := []byte(`{
		"id": "evt_2def",
		"type": "invoice.payment_succeeded",
		"created": 1700000100,
		"data": {"object": {
			"id": "in_test_456",
			"customer": "cus_789",
			"customer_email": "sam@example.com",
			"subscription": "sub_abc",
			"amount_paid": 2500,
			"currency": "usd",
			"period_end": 1702592100
		}}
	}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if e.Kind != event.KindSubscriptionPaymentSucceeded {
		t.Fatalf("Kind: got %q", e.Kind)
	}

	inv, err := e.Invoice()
	if err != nil {
		t.Fatalf("Invoice failed: %v", err)
	}
	if inv.Subscription != "sub_abc" {
		t.Errorf("Subscription: got %q", inv.Subscription)
	}
	if inv.AmountPaid != 2500 {
		t.Errorf("AmountPaid: got %d", inv.AmountPaid)
	}
	if inv.PeriodEnd != 1702592100 {
		t.Errorf("PeriodEnd: got %d", inv.PeriodEnd)
	}
}

func TestParseSubscriptionDeleted(t *testing.T) {
	payload := []byte(`{
		"id": "evt_3ghi",
		"type": "customer.subscription.deleted",
		"created": 1700000200,
		"data": {"object": {"id": "sub_abc", "customer": "cus_789", "status": "canceled"}}
	}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	sub, err := e.Subscription()
	if err != nil {
		t.Fatalf("Subscription failed: %v", err)
	}
	if sub.ID != "sub_abc" || sub.Customer != "cus_789" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"no type", `{"id": "evt_1", "data": {"object": {}}}`},
		{"empty", ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := event.Parse([]byte(tt.payload)); err == nil {
				t.Error("expected parse error, got nil")
			}
		})
	}
}

func TestParseUnknownKind(t *testing.T) {
	payload := []byte(`{"id": "evt_4", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if e.Kind != event.KindUnknown {
		t.Errorf("Kind: got %q, want unknown", e.Kind)
	}
	if e.ProviderType != "charge.refunded" {
		t.Errorf("ProviderType: got %q", e.ProviderType)
	}

	// Typed accessors refuse mismatched kinds.
	if _, err := e.CheckoutSession(); err == nil {
		t.Error("CheckoutSession on unknown kind should fail")
	}
	if _, err := e.Invoice(); err == nil {
		t.Error("Invoice on unknown kind should fail")
	}
}

func TestAccessorKindMismatch(t *testing.T) {
	payload := []byte(`{
		"id": "evt_5",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_1"}}
	}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := e.Invoice(); err == nil {
		t.Error("Invoice on purchase event should fail")
	}
	if _, err := e.Subscription(); err == nil {
		t.Error("Subscription on purchase event should fail")
	}
}

func TestMissingObjectPayload(t *testing.T) {
	payload := []byte(`{"id": "evt_6", "type": "checkout.session.completed"}`)

	e, err := event.Parse(payload)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if _, err := e.CheckoutSession(); err == nil {
		t.Error("expected error for missing object payload")
	}
}
