// Package stripeapi implements provider.Client against the Stripe REST API.
//
// Requests go straight to the HTTP API with form-encoded bodies rather than
// through the full SDK client: the processor needs four calls, the thin
// client keeps the dependency surface flat, and httptest servers can stand
// in for Stripe in tests via Config.BaseURL.
package stripeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/provider"
)

// apiBase is the default Stripe API base URL. Overridable in tests via
// Config.BaseURL.
const apiBase = "https://api.stripe.com"

// defaultTimeout bounds every provider call so a stalled upstream surfaces
// as a retryable error instead of hanging the webhook request.
const defaultTimeout = 20 * time.Second

const userAgent = "xraph-tally/1.0"

// compile-time interface check
var _ provider.Client = (*Client)(nil)

// Config holds the configuration for creating a Client.
type Config struct {
	SecretKey  string
	BaseURL    string       // Override for testing; defaults to apiBase
	HTTPClient *http.Client // Defaults to a client with defaultTimeout
	Logger     *slog.Logger
}

// Client talks to the Stripe REST API.
type Client struct {
	secretKey string
	baseURL   string
	httpc     *http.Client
	logger    *slog.Logger
}

// New creates a Stripe API client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = apiBase
	}

	httpc := cfg.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		httpc:     httpc,
		logger:    logger,
	}
}

// Subscription fetches a subscription with its first item's price and
// product references.
func (c *Client) Subscription(ctx context.Context, subscriptionID string) (*provider.Subscription, error) {
	if subscriptionID == "" {
		return nil, fmt.Errorf("%w: empty subscription id", tally.ErrInvalidInput)
	}

	var resp subscriptionResp
	if err := c.get(ctx, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &resp); err != nil {
		return nil, err
	}

	sub := &provider.Subscription{
		ID:     resp.ID,
		Status: resp.Status,
	}
	if resp.CurrentPeriodEnd > 0 {
		sub.CurrentPeriodEnd = time.Unix(resp.CurrentPeriodEnd, 0).UTC()
	}
	if len(resp.Items.Data) > 0 {
		sub.PriceID = resp.Items.Data[0].Price.ID
		sub.ProductID = resp.Items.Data[0].Price.Product
	}
	return sub, nil
}

// Product fetches a product by its provider reference.
func (c *Client) Product(ctx context.Context, productID string) (*provider.Product, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: empty product id", tally.ErrInvalidInput)
	}

	var resp productResp
	if err := c.get(ctx, "/v1/products/"+url.PathEscape(productID), nil, &resp); err != nil {
		return nil, err
	}
	return &provider.Product{ID: resp.ID, Name: resp.Name, Active: resp.Active}, nil
}

// Customer fetches a customer. Stripe answers 200 with a deleted marker for
// customers removed upstream; that maps to Deleted rather than an error.
func (c *Client) Customer(ctx context.Context, customerID string) (*provider.Customer, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: empty customer id", tally.ErrInvalidInput)
	}

	var resp customerResp
	if err := c.get(ctx, "/v1/customers/"+url.PathEscape(customerID), nil, &resp); err != nil {
		return nil, err
	}
	return &provider.Customer{ID: resp.ID, Email: resp.Email, Deleted: resp.Deleted}, nil
}

// CreateCheckoutSession opens a hosted checkout session. Creation calls
// carry an idempotency key so a transport retry cannot open two sessions.
func (c *Client) CreateCheckoutSession(ctx context.Context, params provider.CheckoutParams) (*provider.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", string(params.Mode))
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	if params.CustomerEmail != "" {
		form.Set("customer_email", params.CustomerEmail)
	}

	qty := params.Quantity
	if qty <= 0 {
		qty = 1
	}
	form.Set("line_items[0][quantity]", strconv.FormatInt(qty, 10))

	switch params.Mode {
	case provider.ModeSubscription:
		form.Set("line_items[0][price]", params.PriceRef)
	case provider.ModePayment:
		form.Set("line_items[0][price_data][currency]", params.Amount.Currency)
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(params.Amount.Amount, 10))
		form.Set("line_items[0][price_data][product_data][name]", params.ProductName)
	}

	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var resp checkoutSessionResp
	if err := c.post(ctx, "/v1/checkout/sessions", form, &resp); err != nil {
		return nil, err
	}
	return &provider.CheckoutSession{ID: resp.ID, URL: resp.URL}, nil
}

// ---------------------------------------------------------------------------
// HTTP helpers
// ---------------------------------------------------------------------------

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", tally.ErrProviderLookup, path, err)
	}
	c.setHeaders(req)

	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", tally.ErrProviderLookup, path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	c.setHeaders(req)

	return c.do(req, path, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
	req.Header.Set("User-Agent", userAgent)
}

func (c *Client) do(req *http.Request, path string, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		// Timeouts and transport failures surface as retryable lookup errors.
		return fmt.Errorf("%w: %s: %v", tally.ErrProviderLookup, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.apiError(resp, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", tally.ErrProviderLookup, path, err)
	}
	return nil
}

// apiError reads a Stripe error body and maps the status to a sentinel.
func (c *Client) apiError(resp *http.Response, path string) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var stripeErr struct {
		Error struct {
			Type    string `json:"type"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := ""
	if readErr == nil {
		if jsonErr := json.Unmarshal(body, &stripeErr); jsonErr == nil {
			msg = stripeErr.Error.Message
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	c.logger.Warn("stripe api error",
		"path", path,
		"status", resp.StatusCode,
		"code", stripeErr.Error.Code,
	)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s: %s", tally.ErrProviderNotFound, path, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s: %s", tally.ErrProviderAuth, path, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s: %s", tally.ErrProviderRateLimited, path, msg)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", tally.ErrProviderLookup, path, resp.StatusCode, msg)
	}
}

// ---------------------------------------------------------------------------
// Stripe response types
// ---------------------------------------------------------------------------

type subscriptionResp struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			Price struct {
				ID      string `json:"id"`
				Product string `json:"product"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type productResp struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type customerResp struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Deleted bool   `json:"deleted"`
}

type checkoutSessionResp struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
