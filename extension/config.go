package extension

import (
	"time"

	tally "github.com/xraph/tally"
)

// Config holds the Tally extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.tally" or "tally" keys).
type Config struct {
	// WebhookSecret is the provider webhook signing secret. Processing is
	// refused until it is set.
	WebhookSecret string `json:"webhook_secret" mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// SignatureHeader overrides the request header carrying the webhook
	// signature (default: "Stripe-Signature").
	SignatureHeader string `json:"signature_header" mapstructure:"signature_header" yaml:"signature_header"`

	// Tolerance is the accepted clock skew for webhook signature
	// timestamps (default: 5m). Negative disables the check.
	Tolerance time.Duration `json:"tolerance" mapstructure:"tolerance" yaml:"tolerance"`

	// CreditRate is how many minor currency units buy one credit
	// (default: 10).
	CreditRate int64 `json:"credit_rate" mapstructure:"credit_rate" yaml:"credit_rate"`

	// Driver selects the store backend for a database provided via
	// WithDatabase: "postgres", "sqlite" or "mongo". Ignored when a store
	// is injected directly; empty without a database means in-memory.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// StripeAPIKey, when set, constructs the Stripe provider client used
	// for customer and subscription lookups.
	StripeAPIKey string `json:"stripe_api_key" mapstructure:"stripe_api_key" yaml:"stripe_api_key"`

	// Tiers maps provider product IDs to subscription tiers
	// (free/premium/enterprise).
	Tiers map[string]string `json:"tiers" mapstructure:"tiers" yaml:"tiers"`

	// TierMapFile sources the tier mapping from a YAML file that is
	// watched and hot-reloaded. Takes precedence over Tiers.
	TierMapFile string `json:"tier_map_file" mapstructure:"tier_map_file" yaml:"tier_map_file"`

	// AsyncHookQueue moves plugin hook dispatch onto a background worker
	// with this queue size. Zero keeps dispatch synchronous.
	AsyncHookQueue int `json:"async_hook_queue" mapstructure:"async_hook_queue" yaml:"async_hook_queue"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SignatureHeader: tally.DefaultSignatureHeader,
		CreditRate:      tally.DefaultCreditRate,
	}
}
