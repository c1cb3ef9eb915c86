package extension

import (
	"time"

	"github.com/xraph/grove"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/provider"
	"github.com/xraph/tally/store"
)

// Option configures the Tally Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine, bypassing driver resolution.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithDatabase provides a grove database. The store backend is chosen by
// the configured driver (postgres/sqlite/mongo).
func WithDatabase(db *grove.DB) Option {
	return func(e *Extension) {
		e.db = db
	}
}

// WithDriver names the store backend used to wrap a provided database.
func WithDriver(name string) Option {
	return func(e *Extension) {
		e.config.Driver = name
	}
}

// WithTallyOption passes a tally.Option through to the underlying engine.
func WithTallyOption(opt tally.Option) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, opt)
	}
}

// WithPlugin registers a tally plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithPlugin(p))
	}
}

// WithProvider sets the payment provider client, overriding any
// StripeAPIKey config.
func WithProvider(c provider.Client) Option {
	return func(e *Extension) {
		e.tallyOpts = append(e.tallyOpts, tally.WithProvider(c))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithWebhookSecret sets the provider webhook signing secret.
func WithWebhookSecret(secret string) Option {
	return func(e *Extension) { e.config.WebhookSecret = secret }
}

// WithSignatureHeader overrides the request header carrying the webhook
// signature.
func WithSignatureHeader(name string) Option {
	return func(e *Extension) { e.config.SignatureHeader = name }
}

// WithTolerance sets the accepted clock skew for webhook signatures.
func WithTolerance(d time.Duration) Option {
	return func(e *Extension) { e.config.Tolerance = d }
}

// WithCreditRate sets how many minor currency units buy one credit.
func WithCreditRate(rate int64) Option {
	return func(e *Extension) { e.config.CreditRate = rate }
}

// WithTierMapFile sources the tier mapping from a watched YAML file.
func WithTierMapFile(path string) Option {
	return func(e *Extension) { e.config.TierMapFile = path }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
