// Package audithook bridges Tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnWebhookReceived       = (*Extension)(nil)
	_ plugin.OnWebhookRejected       = (*Extension)(nil)
	_ plugin.OnEventProcessed        = (*Extension)(nil)
	_ plugin.OnEventSkipped          = (*Extension)(nil)
	_ plugin.OnCreditsGranted        = (*Extension)(nil)
	_ plugin.OnSubscriptionActivated = (*Extension)(nil)
	_ plugin.OnSubscriptionCancelled = (*Extension)(nil)
	_ plugin.OnCheckoutStarted       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Webhook hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (e *Extension) OnWebhookReceived(ctx context.Context, provider string, payload []byte) error {
	return e.record(ctx, ActionWebhookReceived, SeverityInfo, OutcomeSuccess,
		ResourceWebhook, provider, CategoryIntegration, nil,
		"provider", provider,
		"payload_bytes", len(payload),
	)
}

// OnWebhookRejected implements plugin.OnWebhookRejected.
func (e *Extension) OnWebhookRejected(ctx context.Context, provider string, cause error) error {
	return e.record(ctx, ActionWebhookRejected, SeverityWarning, OutcomeFailure,
		ResourceWebhook, provider, CategoryIntegration, cause,
		"provider", provider,
	)
}

// OnEventProcessed implements plugin.OnEventProcessed.
func (e *Extension) OnEventProcessed(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionEventProcessed, SeverityInfo, OutcomeSuccess,
		ResourceEvent, "", CategoryIntegration, nil,
		"event", "event_processed",
	)
}

// OnEventSkipped implements plugin.OnEventSkipped.
func (e *Extension) OnEventSkipped(ctx context.Context, eventID, eventType string) error {
	return e.record(ctx, ActionEventSkipped, SeverityInfo, OutcomeSuccess,
		ResourceEvent, eventID, CategoryIntegration, nil,
		"event_id", eventID,
		"event_type", eventType,
	)
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, acct interface{}, credits int64) error {
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceAccount, accountEmail(acct), CategoryPayment, nil,
		"credits", credits,
	)
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (e *Extension) OnSubscriptionActivated(ctx context.Context, acct interface{}) error {
	return e.record(ctx, ActionSubscriptionActivated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, accountEmail(acct), CategorySubscription, nil,
		"event", "subscription_activated",
	)
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (e *Extension) OnSubscriptionCancelled(ctx context.Context, acct interface{}) error {
	return e.record(ctx, ActionSubscriptionCancelled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, accountEmail(acct), CategorySubscription, nil,
		"event", "subscription_cancelled",
	)
}

// ──────────────────────────────────────────────────
// Checkout hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted implements plugin.OnCheckoutStarted.
func (e *Extension) OnCheckoutStarted(ctx context.Context, _ interface{}) error {
	return e.record(ctx, ActionCheckoutStarted, SeverityInfo, OutcomeSuccess,
		ResourceCheckout, "", CategoryPayment, nil,
		"event", "checkout_started",
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// accountEmail pulls the email out of a hook's account payload.
func accountEmail(acct interface{}) string {
	if a, ok := acct.(*account.Account); ok {
		return a.Email
	}
	return ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
