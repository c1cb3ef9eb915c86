// Package observability provides a metrics extension for Tally that records
// lifecycle event counts through a pluggable MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tally/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnInit                  = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived       = (*MetricsExtension)(nil)
	_ plugin.OnWebhookRejected       = (*MetricsExtension)(nil)
	_ plugin.OnEventProcessed        = (*MetricsExtension)(nil)
	_ plugin.OnEventSkipped          = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted        = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCancelled = (*MetricsExtension)(nil)
	_ plugin.OnCheckoutStarted       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Tally plugin to automatically track webhook and ledger
// activity. The promhook package provides a Prometheus-backed MetricFactory.
type MetricsExtension struct {
	factory MetricFactory

	// Webhook metrics
	WebhookReceived Counter
	WebhookRejected Counter
	EventsProcessed Counter
	EventsSkipped   Counter
	WebhookBodySize Histogram

	// Ledger metrics
	CreditGrants      Counter
	CreditsGranted    Counter
	SubscriptionsUp   Counter
	SubscriptionsDown Counter

	// Checkout metrics
	CheckoutsStarted Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Webhook metrics
		WebhookReceived: factory.Counter("tally.webhook.received"),
		WebhookRejected: factory.Counter("tally.webhook.rejected"),
		EventsProcessed: factory.Counter("tally.events.processed"),
		EventsSkipped:   factory.Counter("tally.events.skipped"),
		WebhookBodySize: factory.Histogram("tally.webhook.body_bytes"),

		// Ledger metrics
		CreditGrants:      factory.Counter("tally.credits.grants"),
		CreditsGranted:    factory.Counter("tally.credits.granted"),
		SubscriptionsUp:   factory.Counter("tally.subscriptions.activated"),
		SubscriptionsDown: factory.Counter("tally.subscriptions.cancelled"),

		// Checkout metrics
		CheckoutsStarted: factory.Counter("tally.checkouts.started"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Webhook hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _ string, payload []byte) error {
	m.WebhookReceived.Inc()
	m.WebhookBodySize.Observe(float64(len(payload)))
	return nil
}

// OnWebhookRejected implements plugin.OnWebhookRejected.
func (m *MetricsExtension) OnWebhookRejected(_ context.Context, _ string, _ error) error {
	m.WebhookRejected.Inc()
	return nil
}

// OnEventProcessed implements plugin.OnEventProcessed.
func (m *MetricsExtension) OnEventProcessed(_ context.Context, _ interface{}) error {
	m.EventsProcessed.Inc()
	return nil
}

// OnEventSkipped implements plugin.OnEventSkipped.
func (m *MetricsExtension) OnEventSkipped(_ context.Context, _, _ string) error {
	m.EventsSkipped.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, _ interface{}, credits int64) error {
	m.CreditGrants.Inc()
	m.CreditsGranted.Add(float64(credits))
	return nil
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ interface{}) error {
	m.SubscriptionsUp.Inc()
	return nil
}

// OnSubscriptionCancelled implements plugin.OnSubscriptionCancelled.
func (m *MetricsExtension) OnSubscriptionCancelled(_ context.Context, _ interface{}) error {
	m.SubscriptionsDown.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Checkout hooks
// ──────────────────────────────────────────────────

// OnCheckoutStarted implements plugin.OnCheckoutStarted.
func (m *MetricsExtension) OnCheckoutStarted(_ context.Context, _ interface{}) error {
	m.CheckoutsStarted.Inc()
	return nil
}
