// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into webhook and ledger lifecycle events to extend
// functionality.
package plugin

import (
	"context"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, t interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Webhook hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived is called when a webhook passes signature verification.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, provider string, payload []byte) error
}

// OnWebhookRejected is called when a webhook fails verification or decoding.
type OnWebhookRejected interface {
	Plugin
	OnWebhookRejected(ctx context.Context, provider string, err error) error
}

// OnEventProcessed is called after an event has been applied to the ledger.
type OnEventProcessed interface {
	Plugin
	OnEventProcessed(ctx context.Context, receipt interface{}) error
}

// OnEventSkipped is called when an event kind has no handler and is
// acknowledged without side effects.
type OnEventSkipped interface {
	Plugin
	OnEventSkipped(ctx context.Context, eventID, eventType string) error
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called when a purchase adds credits to an account.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, acct interface{}, credits int64) error
}

// OnSubscriptionActivated is called when a subscription payment activates
// or re-affirms an account's subscription.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, acct interface{}) error
}

// OnSubscriptionCancelled is called when a subscription is cancelled.
type OnSubscriptionCancelled interface {
	Plugin
	OnSubscriptionCancelled(ctx context.Context, acct interface{}) error
}

// ──────────────────────────────────────────────────
// Checkout hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted is called when a checkout session is created.
type OnCheckoutStarted interface {
	Plugin
	OnCheckoutStarted(ctx context.Context, session interface{}) error
}

// ──────────────────────────────────────────────────
// Provider plugins
// ──────────────────────────────────────────────────

// ProviderPlugin supplies a payment provider client implementation.
type ProviderPlugin interface {
	Plugin
	Client() interface{} // Returns provider.Client
}

// ──────────────────────────────────────────────────
// Tier classifiers
// ──────────────────────────────────────────────────

// TierClassifier provides custom tier classification for subscription
// products, consulted when the configured tier map has no entry.
type TierClassifier interface {
	Plugin
	ClassifyTier(ctx context.Context, productID, productName string) (tier string, ok bool)
}
