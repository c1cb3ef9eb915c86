// Package extension provides the Forge extension adapter for Tally.
//
// It implements the forge.Extension interface to integrate Tally
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.tally" or "tally" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	tally "github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/provider/stripeapi"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/store/mongo"
	"github.com/xraph/tally/store/postgres"
	"github.com/xraph/tally/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "tally"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Payment webhook ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Tally as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config    Config
	engine    *tally.Tally
	store     store.Store
	db        *grove.DB
	tallyOpts []tally.Option

	stopTierWatch func()
}

// New creates a new Tally Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Tally instance.
// This is nil until Register is called.
func (e *Extension) Engine() *tally.Tally { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if err := e.buildStore(); err != nil {
		return err
	}

	opts, err := e.buildTallyOpts()
	if err != nil {
		return err
	}

	eng := tally.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*tally.Tally, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("tally: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.stopTierWatch != nil {
		e.stopTierWatch()
		e.stopTierWatch = nil
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("tally: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore resolves the store backend. An injected store wins; a grove
// database is wrapped in the backend named by config; otherwise in-memory.
func (e *Extension) buildStore() error {
	if e.store != nil {
		return nil
	}

	if e.db != nil {
		switch e.config.Driver {
		case "postgres", "pg":
			e.store = postgres.New(e.db)
		case "sqlite":
			e.store = sqlite.New(e.db)
		case "mongo", "mongodb":
			e.store = mongo.New(e.db)
		case "":
			return errors.New("tally: driver must be configured when a database is provided")
		default:
			return fmt.Errorf("tally: unknown store driver %q", e.config.Driver)
		}
		return nil
	}

	e.store = memory.New()
	return nil
}

// buildTallyOpts constructs tally.Option values from the resolved config.
func (e *Extension) buildTallyOpts() ([]tally.Option, error) {
	opts := make([]tally.Option, 0, len(e.tallyOpts)+8)

	if e.config.WebhookSecret != "" {
		opts = append(opts, tally.WithSecret(e.config.WebhookSecret))
	}
	if e.config.SignatureHeader != "" {
		opts = append(opts, tally.WithSignatureHeader(e.config.SignatureHeader))
	}
	if e.config.Tolerance != 0 {
		opts = append(opts, tally.WithTolerance(e.config.Tolerance))
	}
	if e.config.CreditRate > 0 {
		opts = append(opts, tally.WithCreditRate(e.config.CreditRate))
	}
	if e.config.AsyncHookQueue > 0 {
		opts = append(opts, tally.WithAsyncHooks(e.config.AsyncHookQueue))
	}
	if e.config.DisableMigrate {
		opts = append(opts, tally.WithoutAutoMigrate())
	}

	if e.config.StripeAPIKey != "" {
		client := stripeapi.New(stripeapi.Config{SecretKey: e.config.StripeAPIKey})
		opts = append(opts, tally.WithProvider(client))
	}

	tierOpt, err := e.buildTierOpt()
	if err != nil {
		return nil, err
	}
	if tierOpt != nil {
		opts = append(opts, tierOpt)
	}

	// Append any pass-through tally options.
	opts = append(opts, e.tallyOpts...)

	return opts, nil
}

// buildTierOpt wires the tier mapping: a watched file when configured,
// otherwise the inline map.
func (e *Extension) buildTierOpt() (tally.Option, error) {
	if e.config.TierMapFile != "" {
		loader, err := account.NewTierMapLoader(e.config.TierMapFile)
		if err != nil {
			return nil, fmt.Errorf("tally: tier map file: %w", err)
		}
		stop, err := loader.Watch()
		if err != nil {
			return nil, fmt.Errorf("tally: tier map watch: %w", err)
		}
		e.stopTierWatch = stop
		return tally.WithTierMapLoader(loader), nil
	}

	if len(e.config.Tiers) == 0 {
		return nil, nil
	}
	m := make(account.TierMap, len(e.config.Tiers))
	for productID, tier := range e.config.Tiers {
		t := account.Tier(tier)
		if !t.Valid() {
			return nil, fmt.Errorf("tally: unknown tier %q for product %q", tier, productID)
		}
		m[productID] = t
	}
	return tally.WithTierMap(m), nil
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("tally: configuration is required but not found in config files; " +
				"ensure 'extensions.tally' or 'tally' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("tally: configuration loaded",
		forge.F("signature_header", e.config.SignatureHeader),
		forge.F("credit_rate", e.config.CreditRate),
		forge.F("driver", e.config.Driver),
		forge.F("tier_map_file", e.config.TierMapFile),
		forge.F("async_hook_queue", e.config.AsyncHookQueue),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.tally" first (namespaced pattern).
	if cm.IsSet("extensions.tally") {
		if err := cm.Bind("extensions.tally", &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file",
				forge.F("key", "extensions.tally"),
			)
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind extensions.tally config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "tally" key.
	if cm.IsSet("tally") {
		if err := cm.Bind("tally", &cfg); err == nil {
			e.Logger().Debug("tally: loaded config from file",
				forge.F("key", "tally"),
			)
			return cfg, true
		}
		e.Logger().Warn("tally: failed to bind tally config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = defaults.SignatureHeader
	}
	if cfg.CreditRate == 0 {
		cfg.CreditRate = defaults.CreditRate
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.WebhookSecret == "" && programmaticConfig.WebhookSecret != "" {
		yamlConfig.WebhookSecret = programmaticConfig.WebhookSecret
	}
	if yamlConfig.SignatureHeader == "" && programmaticConfig.SignatureHeader != "" {
		yamlConfig.SignatureHeader = programmaticConfig.SignatureHeader
	}
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.StripeAPIKey == "" && programmaticConfig.StripeAPIKey != "" {
		yamlConfig.StripeAPIKey = programmaticConfig.StripeAPIKey
	}
	if yamlConfig.TierMapFile == "" && programmaticConfig.TierMapFile != "" {
		yamlConfig.TierMapFile = programmaticConfig.TierMapFile
	}
	if len(yamlConfig.Tiers) == 0 && len(programmaticConfig.Tiers) != 0 {
		yamlConfig.Tiers = programmaticConfig.Tiers
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.Tolerance == 0 && programmaticConfig.Tolerance != 0 {
		yamlConfig.Tolerance = programmaticConfig.Tolerance
	}
	if yamlConfig.CreditRate == 0 && programmaticConfig.CreditRate != 0 {
		yamlConfig.CreditRate = programmaticConfig.CreditRate
	}
	if yamlConfig.AsyncHookQueue == 0 && programmaticConfig.AsyncHookQueue != 0 {
		yamlConfig.AsyncHookQueue = programmaticConfig.AsyncHookQueue
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
