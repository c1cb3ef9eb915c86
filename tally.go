package tally

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/provider"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/transaction"
	"github.com/xraph/tally/webhook"
)

// DefaultCreditRate is the number of minor currency units that buy one
// credit. At the default, a 10.00 USD purchase (1000 cents) grants 100
// credits.
const DefaultCreditRate = 10

// DefaultSignatureHeader is the request header carrying the webhook
// signature.
const DefaultSignatureHeader = "Stripe-Signature"

// Tally is the webhook ledger engine. It verifies provider deliveries,
// routes them to the ledger handlers and exposes the read API over the
// resulting account state.
type Tally struct {
	store    store.Store
	provider provider.Client
	verifier *webhook.Verifier
	plugins  *plugin.Registry
	logger   *slog.Logger

	// Background workers
	hookQueue chan func(context.Context)
	stopChan  chan struct{}
	wg        sync.WaitGroup

	// Configuration
	tiers       account.TierMap
	tierLoader  *account.TierMapLoader
	creditRate  int64
	sigHeader   string
	skipMigrate bool
}

// New creates a new Tally instance.
func New(s store.Store, opts ...Option) *Tally {
	t := &Tally{
		store:      s,
		verifier:   &webhook.Verifier{},
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
		stopChan:   make(chan struct{}),
		creditRate: DefaultCreditRate,
		sigHeader:  DefaultSignatureHeader,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Option configures a Tally instance.
type Option func(*Tally)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tally) {
		t.logger = logger
		t.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(t *Tally) {
		_ = t.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithProvider sets the payment provider client.
func WithProvider(c provider.Client) Option {
	return func(t *Tally) {
		t.provider = c
	}
}

// WithSecret sets the webhook signing secret.
func WithSecret(secret string) Option {
	return func(t *Tally) {
		t.verifier.Secret = secret
	}
}

// WithTolerance sets the accepted clock skew for webhook signature
// timestamps. Negative disables the check.
func WithTolerance(d time.Duration) Option {
	return func(t *Tally) {
		t.verifier.Tolerance = d
	}
}

// WithSignatureHeader overrides the request header read for the webhook
// signature.
func WithSignatureHeader(name string) Option {
	return func(t *Tally) {
		if name != "" {
			t.sigHeader = name
		}
	}
}

// WithCreditRate sets how many minor currency units buy one credit.
func WithCreditRate(rate int64) Option {
	return func(t *Tally) {
		if rate > 0 {
			t.creditRate = rate
		}
	}
}

// WithTierMap sets the explicit product-to-tier mapping.
func WithTierMap(m account.TierMap) Option {
	return func(t *Tally) {
		t.tiers = m
	}
}

// WithTierMapLoader sources the tier mapping from a hot-reloading loader.
// Takes precedence over WithTierMap.
func WithTierMapLoader(l *account.TierMapLoader) Option {
	return func(t *Tally) {
		t.tierLoader = l
	}
}

// WithAsyncHooks moves plugin hook dispatch onto a background worker with
// the given queue size, so slow plugins never sit on the webhook response
// path. Hooks run inline when the queue is full.
func WithAsyncHooks(queueSize int) Option {
	return func(t *Tally) {
		if queueSize > 0 {
			t.hookQueue = make(chan func(context.Context), queueSize)
		}
	}
}

// WithoutAutoMigrate skips store migration during Start. Use when schema
// management runs out of band.
func WithoutAutoMigrate() Option {
	return func(t *Tally) {
		t.skipMigrate = true
	}
}

// Start migrates the store, initializes plugins and begins background
// workers.
func (t *Tally) Start(ctx context.Context) error {
	// Migrate database
	if !t.skipMigrate {
		if err := t.store.Migrate(ctx); err != nil {
			return err
		}
	}

	// Initialize plugins
	t.plugins.EmitInit(ctx, t)

	// Adopt a provider client from a registered plugin when none was
	// configured directly.
	if t.provider == nil {
		for _, pp := range t.plugins.GetProviders() {
			if c, ok := pp.Client().(provider.Client); ok {
				t.provider = c
				break
			}
		}
	}

	// Start hook dispatch worker
	if t.hookQueue != nil {
		t.wg.Add(1)
		go t.hookWorker()
	}

	t.logger.Info("tally started",
		"credit_rate", t.creditRate,
		"signature_header", t.sigHeader,
		"async_hooks", t.hookQueue != nil,
	)

	return nil
}

// Stop shuts down Tally.
func (t *Tally) Stop() error {
	close(t.stopChan)
	t.wg.Wait()

	ctx := context.Background()
	t.plugins.EmitShutdown(ctx)

	return t.store.Close()
}

// Plugins returns the plugin registry.
func (t *Tally) Plugins() *plugin.Registry { return t.plugins }

// ──────────────────────────────────────────────────
// Read API
// ──────────────────────────────────────────────────

// Account retrieves the ledger account for an email.
func (t *Tally) Account(ctx context.Context, email string) (*account.Account, error) {
	return t.store.GetAccount(ctx, email)
}

// Credits returns the current credit balance for an email. An account that
// has never purchased reads as zero.
func (t *Tally) Credits(ctx context.Context, email string) (int64, error) {
	a, err := t.store.GetAccount(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return a.Credits, nil
}

// SubscriptionStatus is the subscription view of an account.
type SubscriptionStatus struct {
	Active        bool         `json:"active"`
	Tier          account.Tier `json:"tier"`
	Reference     string       `json:"reference,omitempty"`
	LastPaymentAt *time.Time   `json:"last_payment_at,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
}

// SubscriptionStatus reports the subscription state for an email. Unknown
// accounts read as free and inactive rather than as an error.
func (t *Tally) SubscriptionStatus(ctx context.Context, email string) (*SubscriptionStatus, error) {
	a, err := t.store.GetAccount(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return &SubscriptionStatus{Tier: account.TierFree}, nil
		}
		return nil, err
	}
	return &SubscriptionStatus{
		Active:        a.SubscriptionActive,
		Tier:          a.Tier,
		Reference:     a.SubscriptionRef,
		LastPaymentAt: a.LastPaymentAt,
		CancelledAt:   a.CancelledAt,
	}, nil
}

// Transactions lists the transaction history for an email, newest first.
func (t *Tally) Transactions(ctx context.Context, email string, opts transaction.ListOpts) ([]*transaction.Record, error) {
	return t.store.ListTransactions(ctx, email, opts)
}

// TransactionByReference retrieves a single transaction by its provider
// reference.
func (t *Tally) TransactionByReference(ctx context.Context, reference string) (*transaction.Record, error) {
	return t.store.TransactionByReference(ctx, reference)
}

// ──────────────────────────────────────────────────
// Hook dispatch
// ──────────────────────────────────────────────────

// emit runs a hook dispatch now, or hands it to the hook worker when async
// dispatch is enabled.
func (t *Tally) emit(ctx context.Context, fn func(context.Context)) {
	if t.hookQueue == nil {
		fn(ctx)
		return
	}
	select {
	case t.hookQueue <- fn:
	default:
		// Queue full; run inline rather than dropping the hook.
		fn(ctx)
	}
}

// hookWorker drains queued hook dispatches until Stop.
func (t *Tally) hookWorker() {
	defer t.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-t.stopChan:
			// Final drain
			for {
				select {
				case fn := <-t.hookQueue:
					fn(ctx)
				default:
					return
				}
			}

		case fn := <-t.hookQueue:
			fn(ctx)
		}
	}
}
