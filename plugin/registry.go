package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onWebhookReceived       []OnWebhookReceived
	onWebhookRejected       []OnWebhookRejected
	onEventProcessed        []OnEventProcessed
	onEventSkipped          []OnEventSkipped
	onCreditsGranted        []OnCreditsGranted
	onSubscriptionActivated []OnSubscriptionActivated
	onSubscriptionCancelled []OnSubscriptionCancelled
	onCheckoutStarted       []OnCheckoutStarted
	providers               []ProviderPlugin
	tierClassifiers         []TierClassifier
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnWebhookReceived); ok {
		r.onWebhookReceived = append(r.onWebhookReceived, v)
	}
	if v, ok := p.(OnWebhookRejected); ok {
		r.onWebhookRejected = append(r.onWebhookRejected, v)
	}
	if v, ok := p.(OnEventProcessed); ok {
		r.onEventProcessed = append(r.onEventProcessed, v)
	}
	if v, ok := p.(OnEventSkipped); ok {
		r.onEventSkipped = append(r.onEventSkipped, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnSubscriptionActivated); ok {
		r.onSubscriptionActivated = append(r.onSubscriptionActivated, v)
	}
	if v, ok := p.(OnSubscriptionCancelled); ok {
		r.onSubscriptionCancelled = append(r.onSubscriptionCancelled, v)
	}
	if v, ok := p.(OnCheckoutStarted); ok {
		r.onCheckoutStarted = append(r.onCheckoutStarted, v)
	}
	if v, ok := p.(ProviderPlugin); ok {
		r.providers = append(r.providers, v)
	}
	if v, ok := p.(TierClassifier); ok {
		r.tierClassifiers = append(r.tierClassifiers, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnWebhookReceived)(nil)).Elem(), "OnWebhookReceived")
	checkInterface(reflect.TypeOf((*OnWebhookRejected)(nil)).Elem(), "OnWebhookRejected")
	checkInterface(reflect.TypeOf((*OnEventProcessed)(nil)).Elem(), "OnEventProcessed")
	checkInterface(reflect.TypeOf((*OnEventSkipped)(nil)).Elem(), "OnEventSkipped")
	checkInterface(reflect.TypeOf((*OnCreditsGranted)(nil)).Elem(), "OnCreditsGranted")
	checkInterface(reflect.TypeOf((*OnSubscriptionActivated)(nil)).Elem(), "OnSubscriptionActivated")
	checkInterface(reflect.TypeOf((*OnSubscriptionCancelled)(nil)).Elem(), "OnSubscriptionCancelled")
	checkInterface(reflect.TypeOf((*OnCheckoutStarted)(nil)).Elem(), "OnCheckoutStarted")
	checkInterface(reflect.TypeOf((*ProviderPlugin)(nil)).Elem(), "ProviderPlugin")
	checkInterface(reflect.TypeOf((*TierClassifier)(nil)).Elem(), "TierClassifier")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, t interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, t)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWebhookReceived emits a webhook received event.
func (r *Registry) EmitWebhookReceived(ctx context.Context, provider string, payload []byte) {
	r.mu.RLock()
	plugins := r.onWebhookReceived
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWebhookReceived(ctx, provider, payload)
		}); err != nil {
			r.logger.Warn("plugin OnWebhookReceived failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWebhookRejected emits a webhook rejected event.
func (r *Registry) EmitWebhookRejected(ctx context.Context, provider string, cause error) {
	r.mu.RLock()
	plugins := r.onWebhookRejected
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWebhookRejected(ctx, provider, cause)
		}); err != nil {
			r.logger.Warn("plugin OnWebhookRejected failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventProcessed emits an event processed event.
func (r *Registry) EmitEventProcessed(ctx context.Context, receipt interface{}) {
	r.mu.RLock()
	plugins := r.onEventProcessed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventProcessed(ctx, receipt)
		}); err != nil {
			r.logger.Warn("plugin OnEventProcessed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitEventSkipped emits an event skipped event.
func (r *Registry) EmitEventSkipped(ctx context.Context, eventID, eventType string) {
	r.mu.RLock()
	plugins := r.onEventSkipped
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnEventSkipped(ctx, eventID, eventType)
		}); err != nil {
			r.logger.Warn("plugin OnEventSkipped failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCreditsGranted emits a credits granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, acct interface{}, credits int64) {
	r.mu.RLock()
	plugins := r.onCreditsGranted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCreditsGranted(ctx, acct, credits)
		}); err != nil {
			r.logger.Warn("plugin OnCreditsGranted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionActivated emits a subscription activated event.
func (r *Registry) EmitSubscriptionActivated(ctx context.Context, acct interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionActivated(ctx, acct)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitSubscriptionCancelled emits a subscription cancelled event.
func (r *Registry) EmitSubscriptionCancelled(ctx context.Context, acct interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCancelled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSubscriptionCancelled(ctx, acct)
		}); err != nil {
			r.logger.Warn("plugin OnSubscriptionCancelled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCheckoutStarted emits a checkout started event.
func (r *Registry) EmitCheckoutStarted(ctx context.Context, session interface{}) {
	r.mu.RLock()
	plugins := r.onCheckoutStarted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCheckoutStarted(ctx, session)
		}); err != nil {
			r.logger.Warn("plugin OnCheckoutStarted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetProviders returns all registered provider plugins.
func (r *Registry) GetProviders() []ProviderPlugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ProviderPlugin, len(r.providers))
	copy(result, r.providers)
	return result
}

// GetTierClassifiers returns all registered tier classifiers.
func (r *Registry) GetTierClassifiers() []TierClassifier {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]TierClassifier, len(r.tierClassifiers))
	copy(result, r.tierClassifiers)
	return result
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the webhook pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
