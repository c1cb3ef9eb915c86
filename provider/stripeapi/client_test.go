package stripeapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/provider"
	"github.com/xraph/tally/provider/stripeapi"
	"github.com/xraph/tally/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *stripeapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return stripeapi.New(stripeapi.Config{SecretKey: "sk_test_123", BaseURL: srv.URL})
}

func TestSubscriptionLookup(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Stripe-Version")
		w.Write([]byte(`{
			"id": "sub_123",
			"status": "active",
			"current_period_end": 1702592100,
			"items": {"data": [{"price": {"id": "price_premium", "product": "prod_abc"}}]}
		}`))
	})

	sub, err := c.Subscription(context.Background(), "sub_123")
	if err != nil {
		t.Fatalf("Subscription failed: %v", err)
	}
	if gotPath != "/v1/subscriptions/sub_123" {
		t.Errorf("path: got %q", gotPath)
	}
	if gotAuth != "Bearer sk_test_123" {
		t.Errorf("auth header: got %q", gotAuth)
	}
	if gotVersion == "" {
		t.Error("Stripe-Version header not set")
	}
	if sub.ProductID != "prod_abc" || sub.PriceID != "price_premium" {
		t.Errorf("unexpected subscription: %+v", sub)
	}
	if sub.Status != "active" {
		t.Errorf("status: got %q", sub.Status)
	}
	if sub.CurrentPeriodEnd.Unix() != 1702592100 {
		t.Errorf("period end: got %v", sub.CurrentPeriodEnd)
	}
}

func TestSubscriptionEmptyID(t *testing.T) {
	c := stripeapi.New(stripeapi.Config{SecretKey: "sk_test"})
	if _, err := c.Subscription(context.Background(), ""); !errors.Is(err, tally.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestProductLookup(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/products/prod_abc" {
			t.Errorf("path: got %q", r.URL.Path)
		}
		w.Write([]byte(`{"id": "prod_abc", "name": "Premium Plan", "active": true}`))
	})

	p, err := c.Product(context.Background(), "prod_abc")
	if err != nil {
		t.Fatalf("Product failed: %v", err)
	}
	if p.Name != "Premium Plan" || !p.Active {
		t.Errorf("unexpected product: %+v", p)
	}
}

func TestCustomerDeletedUpstream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "cus_789", "deleted": true}`))
	})

	cust, err := c.Customer(context.Background(), "cus_789")
	if err != nil {
		t.Fatalf("Customer failed: %v", err)
	}
	if !cust.Deleted {
		t.Error("expected Deleted=true")
	}
	if cust.Email != "" {
		t.Errorf("deleted customer should carry no email, got %q", cust.Email)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"error": {"type": "invalid_request_error", "message": "No such customer"}}`, tally.ErrProviderNotFound},
		{"unauthorized", http.StatusUnauthorized, `{"error": {"message": "Invalid API Key"}}`, tally.ErrProviderAuth},
		{"forbidden", http.StatusForbidden, `{"error": {"message": "forbidden"}}`, tally.ErrProviderAuth},
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "Too many requests"}}`, tally.ErrProviderRateLimited},
		{"server error", http.StatusInternalServerError, `{"error": {"message": "oops"}}`, tally.ErrProviderLookup},
		{"bad gateway non-json", http.StatusBadGateway, `<html>bad gateway</html>`, tally.ErrProviderLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			_, err := c.Customer(context.Background(), "cus_1")
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRetryableClassification(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.Subscription(context.Background(), "sub_1")
	if !tally.IsRetryable(err) {
		t.Fatalf("5xx should classify retryable, got %v", err)
	}

	c404 := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err = c404.Subscription(context.Background(), "sub_1")
	if tally.IsRetryable(err) {
		t.Fatalf("404 should not classify retryable, got %v", err)
	}
	if !tally.IsNotFound(err) {
		t.Fatalf("404 should classify not found, got %v", err)
	}
}

func TestCreateCheckoutSessionSubscription(t *testing.T) {
	var form map[string][]string
	var idemKey string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			t.Errorf("content type: got %q", ct)
		}
		idemKey = r.Header.Get("Idempotency-Key")
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"id": "cs_new", "url": "https://checkout.example.com/cs_new"}`))
	})

	sess, err := c.CreateCheckoutSession(context.Background(), provider.CheckoutParams{
		Mode:          provider.ModeSubscription,
		CustomerEmail: "jamie@example.com",
		PriceRef:      "price_premium",
		SuccessURL:    "https://app.example.com/ok",
		CancelURL:     "https://app.example.com/no",
		Metadata:      map[string]string{"plan": "premium"},
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}
	if sess.ID != "cs_new" || sess.URL == "" {
		t.Errorf("unexpected session: %+v", sess)
	}
	if idemKey == "" {
		t.Error("Idempotency-Key header not set")
	}

	wantForm := map[string]string{
		"mode":                    "subscription",
		"customer_email":          "jamie@example.com",
		"line_items[0][price]":    "price_premium",
		"line_items[0][quantity]": "1",
		"success_url":             "https://app.example.com/ok",
		"cancel_url":              "https://app.example.com/no",
		"metadata[plan]":          "premium",
	}
	for k, want := range wantForm {
		if got := firstValue(form, k); got != want {
			t.Errorf("form[%s]: got %q, want %q", k, got, want)
		}
	}
}

func TestCreateCheckoutSessionPayment(t *testing.T) {
	var form map[string][]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Write([]byte(`{"id": "cs_pay", "url": "https://checkout.example.com/cs_pay"}`))
	})

	_, err := c.CreateCheckoutSession(context.Background(), provider.CheckoutParams{
		Mode:        provider.ModePayment,
		Amount:      types.USD(1000),
		ProductName: "100 Credits",
		Quantity:    1,
		SuccessURL:  "https://app.example.com/ok",
		CancelURL:   "https://app.example.com/no",
	})
	if err != nil {
		t.Fatalf("CreateCheckoutSession failed: %v", err)
	}

	wantForm := map[string]string{
		"mode": "payment",
		"line_items[0][price_data][currency]":           "usd",
		"line_items[0][price_data][unit_amount]":        "1000",
		"line_items[0][price_data][product_data][name]": "100 Credits",
		"line_items[0][quantity]":                       "1",
	}
	for k, want := range wantForm {
		if got := firstValue(form, k); got != want {
			t.Errorf("form[%s]: got %q, want %q", k, got, want)
		}
	}
}

func firstValue(form map[string][]string, key string) string {
	if vs := form[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}
