package audithook

// Action constants for audit events.
const (
	// Webhook actions
	ActionWebhookReceived = "webhook.received"
	ActionWebhookRejected = "webhook.rejected"
	ActionEventProcessed  = "event.processed"
	ActionEventSkipped    = "event.skipped"

	// Ledger actions
	ActionCreditsGranted        = "ledger.credits_granted"
	ActionSubscriptionActivated = "subscription.activated"
	ActionSubscriptionCancelled = "subscription.cancelled"

	// Checkout actions
	ActionCheckoutStarted = "checkout.started"
)

// Resource constants for audit events.
const (
	ResourceWebhook      = "webhook"
	ResourceEvent        = "event"
	ResourceAccount      = "account"
	ResourceSubscription = "subscription"
	ResourceCheckout     = "checkout"
)

// Category constants for audit events.
const (
	CategoryPayment      = "payment"
	CategorySubscription = "subscription"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
