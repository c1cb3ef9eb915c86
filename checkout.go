package tally

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xraph/tally/provider"
	"github.com/xraph/tally/types"
)

// CheckoutRequest describes a hosted checkout to open for a customer.
// Payment mode sells a one-time credit pack (Amount, Credits, ProductName);
// subscription mode starts a recurring plan (PriceRef).
type CheckoutRequest struct {
	Email       string
	Mode        provider.CheckoutMode
	Amount      types.Money
	Credits     int64
	ProductName string
	PriceRef    string
	SuccessURL  string
	CancelURL   string
}

// Checkout opens a hosted checkout session with the provider. It never
// touches the ledger: account state moves only when the resulting webhook
// arrives.
func (t *Tally) Checkout(ctx context.Context, req CheckoutRequest) (*provider.CheckoutSession, error) {
	if t.provider == nil {
		return nil, fmt.Errorf("%w: provider client", ErrNotConfigured)
	}
	if req.Email == "" {
		return nil, ValidationError{Field: "email", Message: "required"}
	}

	switch req.Mode {
	case provider.ModePayment:
		if !req.Amount.IsPositive() {
			return nil, ValidationError{Field: "amount", Message: "must be positive"}
		}
	case provider.ModeSubscription:
		if req.PriceRef == "" {
			return nil, ValidationError{Field: "price_ref", Message: "required in subscription mode"}
		}
	default:
		return nil, ValidationError{Field: "mode", Message: fmt.Sprintf("unknown checkout mode %q", req.Mode)}
	}

	params := provider.CheckoutParams{
		Mode:          req.Mode,
		CustomerEmail: req.Email,
		PriceRef:      req.PriceRef,
		Amount:        req.Amount,
		ProductName:   req.ProductName,
		Quantity:      1,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
	}
	if req.Mode == provider.ModePayment {
		if params.ProductName == "" {
			params.ProductName = "Credits"
		}
		if req.Credits > 0 {
			params.Metadata = map[string]string{"credits": strconv.FormatInt(req.Credits, 10)}
		}
	}

	sess, err := t.provider.CreateCheckoutSession(ctx, params)
	if err != nil {
		return nil, err
	}

	t.logger.Info("checkout session created",
		"email", req.Email,
		"mode", string(req.Mode),
		"session_id", sess.ID,
	)
	t.emit(ctx, func(c context.Context) { t.plugins.EmitCheckoutStarted(c, sess) })
	return sess, nil
}
