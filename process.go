package tally

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/event"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/transaction"
	"github.com/xraph/tally/types"
)

// providerName labels webhook hook emissions with the wire dialect the
// event package decodes.
const providerName = "stripe"

// Receipt summarizes the outcome of one processed webhook delivery.
type Receipt struct {
	EventID        string     `json:"event_id"`
	Kind           event.Kind `json:"kind"`
	Handled        bool       `json:"handled"`
	Duplicate      bool       `json:"duplicate"`
	Email          string     `json:"email,omitempty"`
	CreditsGranted int64      `json:"credits_granted,omitempty"`
}

// Process verifies and applies a single webhook delivery. payload must be
// the exact request body bytes; sigHeader the provider signature header.
//
// Recognized event kinds run exactly one ledger handler; unrecognized kinds
// return a Receipt with Handled false and nil error, touching no stored
// state. A replayed delivery returns Duplicate true without mutating.
func (t *Tally) Process(ctx context.Context, payload []byte, sigHeader string) (*Receipt, error) {
	if t.verifier.Secret == "" {
		return nil, fmt.Errorf("%w: webhook signing secret", ErrNotConfigured)
	}

	if err := t.verifier.VerifySignature(payload, sigHeader); err != nil {
		t.logger.Warn("webhook rejected", "error", err)
		t.emit(ctx, func(c context.Context) { t.plugins.EmitWebhookRejected(c, providerName, err) })
		return nil, fmt.Errorf("%w: %w", ErrVerification, err)
	}

	t.emit(ctx, func(c context.Context) { t.plugins.EmitWebhookReceived(c, providerName, payload) })

	evt, err := event.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	rcpt := &Receipt{EventID: evt.ID, Kind: evt.Kind}

	switch evt.Kind {
	case event.KindPurchaseCompleted:
		err = t.handlePurchase(ctx, evt, rcpt)
	case event.KindSubscriptionPaymentSucceeded:
		err = t.handleSubscriptionPayment(ctx, evt, rcpt)
	case event.KindSubscriptionCancelled:
		err = t.handleCancellation(ctx, evt, rcpt)
	default:
		t.logger.Info("skipping unhandled event",
			"event_id", evt.ID,
			"provider_type", evt.ProviderType,
		)
		t.emit(ctx, func(c context.Context) { t.plugins.EmitEventSkipped(c, evt.ID, evt.ProviderType) })
		return rcpt, nil
	}
	if err != nil {
		t.logger.Error("event processing failed",
			"event_id", evt.ID,
			"kind", string(evt.Kind),
			"error", err,
		)
		return nil, err
	}

	rcpt.Handled = true
	t.emit(ctx, func(c context.Context) { t.plugins.EmitEventProcessed(c, rcpt) })
	return rcpt, nil
}

// ──────────────────────────────────────────────────
// Ledger handlers
// ──────────────────────────────────────────────────

// handlePurchase applies a completed one-time checkout: grant credits at
// the configured rate, accumulate spend and record the transaction keyed by
// the session reference.
func (t *Tally) handlePurchase(ctx context.Context, evt *event.Event, rcpt *Receipt) error {
	sess, err := evt.CheckoutSession()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	email := sess.Email()
	if email == "" {
		return fmt.Errorf("%w: checkout session %s has no customer email", ErrMalformedEvent, sess.ID)
	}
	rcpt.Email = email

	dup, err := t.alreadyApplied(ctx, sess.ID)
	if err != nil {
		return err
	}
	if dup {
		rcpt.Duplicate = true
		t.logger.Info("replayed purchase ignored", "event_id", evt.ID, "reference", sess.ID)
		return nil
	}

	credits := sess.AmountTotal / t.creditRate
	spend := types.FromMinor(sess.AmountTotal, sess.Currency)
	purchasedAt := eventTime(evt)

	acct, err := t.store.CreditAccount(ctx, email, account.CreditGrant{
		Credits:     credits,
		Spend:       spend,
		PurchasedAt: purchasedAt,
	})
	if err != nil {
		return fmt.Errorf("%w: credit %s: %w", ErrStore, email, err)
	}
	rcpt.CreditsGranted = credits

	if err := t.appendRecord(ctx, &transaction.Record{
		Entity:       types.NewEntity(),
		ID:           id.NewTransactionID(),
		Email:        email,
		Reference:    sess.ID,
		Amount:       spend,
		CreditsAdded: credits,
		Kind:         transaction.KindCreditPurchase,
		Status:       transaction.StatusCompleted,
		OccurredAt:   purchasedAt,
	}); err != nil {
		return err
	}

	t.logger.Info("credits granted",
		"email", email,
		"credits", credits,
		"balance", acct.Credits,
		"reference", sess.ID,
	)
	t.emit(ctx, func(c context.Context) { t.plugins.EmitCreditsGranted(c, acct, credits) })
	return nil
}

// handleSubscriptionPayment applies a successful subscription invoice:
// classify the tier from the subscribed product and mark the subscription
// active. One application per subscription period.
func (t *Tally) handleSubscriptionPayment(ctx context.Context, evt *event.Event, rcpt *Receipt) error {
	inv, err := evt.Invoice()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if inv.Subscription == "" {
		return fmt.Errorf("%w: invoice %s has no subscription reference", ErrMalformedEvent, inv.ID)
	}

	email := inv.CustomerEmail
	if email == "" {
		email, err = t.lookupCustomerEmail(ctx, inv.Customer)
		if err != nil {
			return err
		}
	}
	rcpt.Email = email

	// One application per subscription period.
	reference := fmt.Sprintf("%s:%d", inv.Subscription, inv.PeriodEnd)
	dup, err := t.alreadyApplied(ctx, reference)
	if err != nil {
		return err
	}
	if dup {
		rcpt.Duplicate = true
		t.logger.Info("replayed subscription payment ignored", "event_id", evt.ID, "reference", reference)
		return nil
	}

	tier, err := t.classifySubscription(ctx, inv.Subscription)
	if err != nil {
		return err
	}

	paidAt := eventTime(evt)
	active := true
	patch := account.Patch{
		Tier:               &tier,
		SubscriptionRef:    &inv.Subscription,
		SubscriptionActive: &active,
		LastPaymentAt:      &paidAt,
	}

	err = t.store.UpdateAccount(ctx, email, patch)
	if errors.Is(err, ErrAccountNotFound) {
		// First event ever seen for this customer; start the account from
		// the subscription rather than from a purchase.
		a := account.New(email)
		patch.Apply(a)
		err = t.store.UpsertAccount(ctx, a)
	}
	if err != nil {
		return fmt.Errorf("%w: activate subscription for %s: %w", ErrStore, email, err)
	}

	if err := t.appendRecord(ctx, &transaction.Record{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Email:      email,
		Reference:  reference,
		Amount:     types.FromMinor(inv.AmountPaid, inv.Currency),
		Kind:       transaction.KindSubscriptionPayment,
		Status:     transaction.StatusCompleted,
		OccurredAt: paidAt,
	}); err != nil {
		return err
	}

	t.logger.Info("subscription payment applied",
		"email", email,
		"tier", string(tier),
		"subscription", inv.Subscription,
	)
	t.emitAccountHook(ctx, email, t.plugins.EmitSubscriptionActivated)
	return nil
}

// handleCancellation deactivates a subscription. The deletion payload
// carries no email, so the customer is resolved through the provider.
func (t *Tally) handleCancellation(ctx context.Context, evt *event.Event, rcpt *Receipt) error {
	sub, err := evt.Subscription()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if sub.Customer == "" {
		return fmt.Errorf("%w: subscription %s has no customer reference", ErrMalformedEvent, sub.ID)
	}

	email, err := t.lookupCustomerEmail(ctx, sub.Customer)
	if err != nil {
		return err
	}
	rcpt.Email = email

	reference := sub.ID + ":cancelled"
	dup, err := t.alreadyApplied(ctx, reference)
	if err != nil {
		return err
	}
	if dup {
		rcpt.Duplicate = true
		t.logger.Info("replayed cancellation ignored", "event_id", evt.ID, "reference", reference)
		return nil
	}

	active := false
	cancelledAt := eventTime(evt)
	err = t.store.UpdateAccount(ctx, email, account.Patch{
		SubscriptionActive: &active,
		CancelledAt:        &cancelledAt,
	})
	if errors.Is(err, ErrAccountNotFound) {
		// Nothing to deactivate; acknowledge so the provider stops
		// redelivering.
		t.logger.Info("cancellation for unknown account", "email", email, "subscription", sub.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: cancel subscription for %s: %w", ErrStore, email, err)
	}

	if err := t.appendRecord(ctx, &transaction.Record{
		Entity:     types.NewEntity(),
		ID:         id.NewTransactionID(),
		Email:      email,
		Reference:  reference,
		Kind:       transaction.KindSubscriptionCancelled,
		Status:     transaction.StatusCompleted,
		OccurredAt: cancelledAt,
	}); err != nil {
		return err
	}

	t.logger.Info("subscription cancelled", "email", email, "subscription", sub.ID)
	t.emitAccountHook(ctx, email, t.plugins.EmitSubscriptionCancelled)
	return nil
}

// ──────────────────────────────────────────────────
// Handler helpers
// ──────────────────────────────────────────────────

// alreadyApplied reports whether a transaction with this reference is
// recorded. Handlers consult it before mutating so replays become no-ops.
func (t *Tally) alreadyApplied(ctx context.Context, reference string) (bool, error) {
	_, err := t.store.TransactionByReference(ctx, reference)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrTransactionNotFound) {
		return false, nil
	}
	return false, fmt.Errorf("%w: lookup reference %s: %w", ErrStore, reference, err)
}

// appendRecord writes the transaction log entry for an applied event. A
// duplicate reference here means a concurrent delivery of the same event
// recorded it first; the application already landed, so it is not a
// failure.
func (t *Tally) appendRecord(ctx context.Context, rec *transaction.Record) error {
	err := t.store.AppendTransaction(ctx, rec)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDuplicateTransaction) {
		t.logger.Warn("transaction reference already recorded",
			"reference", rec.Reference,
			"kind", string(rec.Kind),
		)
		return nil
	}
	return fmt.Errorf("%w: append transaction %s: %w", ErrStore, rec.Reference, err)
}

// lookupCustomerEmail resolves a provider customer reference to an email.
// Unresolvable customers (deleted upstream, or no email on file) are a
// terminal condition for the delivery.
func (t *Tally) lookupCustomerEmail(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("%w: event has no customer reference", ErrMalformedEvent)
	}
	if t.provider == nil {
		return "", fmt.Errorf("%w: provider client", ErrNotConfigured)
	}
	cust, err := t.provider.Customer(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("resolve customer %s: %w", customerID, err)
	}
	if cust.Deleted {
		return "", fmt.Errorf("%w: customer %s deleted upstream", ErrMalformedEvent, customerID)
	}
	if cust.Email == "" {
		return "", fmt.Errorf("%w: customer %s has no email", ErrMalformedEvent, customerID)
	}
	return cust.Email, nil
}

// classifySubscription resolves the subscribed product through the provider
// and classifies it into a tier.
func (t *Tally) classifySubscription(ctx context.Context, subscriptionID string) (account.Tier, error) {
	if t.provider == nil {
		return "", fmt.Errorf("%w: provider client", ErrNotConfigured)
	}
	sub, err := t.provider.Subscription(ctx, subscriptionID)
	if err != nil {
		return "", fmt.Errorf("resolve subscription %s: %w", subscriptionID, err)
	}
	prod, err := t.provider.Product(ctx, sub.ProductID)
	if err != nil {
		return "", fmt.Errorf("resolve product %s: %w", sub.ProductID, err)
	}
	return t.resolveTier(ctx, prod.ID, prod.Name), nil
}

// resolveTier classifies a product into a tier: the explicit mapping wins,
// registered classifier plugins are consulted next, the product-name
// heuristic is the last resort.
func (t *Tally) resolveTier(ctx context.Context, productID, productName string) account.Tier {
	m := t.tiers
	if t.tierLoader != nil {
		m = t.tierLoader.Map()
	}
	if tier, ok := m[productID]; ok {
		return tier
	}
	for _, c := range t.plugins.GetTierClassifiers() {
		if tier, ok := c.ClassifyTier(ctx, productID, productName); ok {
			return account.Tier(tier)
		}
	}
	return m.Resolve(productID, productName)
}

// emitAccountHook loads the account and dispatches an account-carrying
// hook. The load is best-effort; hooks never fail a processed delivery.
func (t *Tally) emitAccountHook(ctx context.Context, email string, emit func(context.Context, interface{})) {
	acct, err := t.store.GetAccount(ctx, email)
	if err != nil {
		t.logger.Debug("account load for hook failed", "email", email, "error", err)
		return
	}
	t.emit(ctx, func(c context.Context) { emit(c, acct) })
}

// eventTime returns the provider's event timestamp, falling back to the
// local clock when the payload carries none.
func eventTime(evt *event.Event) time.Time {
	if !evt.CreatedAt.IsZero() {
		return evt.CreatedAt
	}
	return time.Now().UTC()
}
