// Package extension provides the Forge extension adapter for Folio.
//
// It implements the forge.Extension interface to integrate Folio
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.folio" or "folio" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	folio "github.com/xraph/folio"
	"github.com/xraph/folio/store"
	"github.com/xraph/folio/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "folio"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Sales invoice and transaction ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Folio as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config      Config
	engine      *folio.Service
	store       store.Store
	serviceOpts []folio.Option
}

// New creates a new Folio Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Folio service.
// This is nil until Register is called.
func (e *Extension) Engine() *folio.Service { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the invoicing engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	// Build service options from resolved config.
	opts := e.buildServiceOpts()

	eng := folio.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*folio.Service, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("folio: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
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
		return errors.New("folio: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildServiceOpts constructs folio.Option values from the resolved config.
func (e *Extension) buildServiceOpts() []folio.Option {
	opts := make([]folio.Option, 0, len(e.serviceOpts)+1)

	if e.config.PayRetries > 0 {
		opts = append(opts, folio.WithPayRetries(e.config.PayRetries))
	}

	// Append any pass-through service options.
	opts = append(opts, e.serviceOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("folio: configuration is required but not found in config files; " +
				"ensure 'extensions.folio' or 'folio' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("folio: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("pay_retries", e.config.PayRetries),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.folio" first (namespaced pattern).
	if cm.IsSet("extensions.folio") {
		if err := cm.Bind("extensions.folio", &cfg); err == nil {
			e.Logger().Debug("folio: loaded config from file",
				forge.F("key", "extensions.folio"),
			)
			return cfg, true
		}
		e.Logger().Warn("folio: failed to bind extensions.folio config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "folio" key.
	if cm.IsSet("folio") {
		if err := cm.Bind("folio", &cfg); err == nil {
			e.Logger().Debug("folio: loaded config from file",
				forge.F("key", "folio"),
			)
			return cfg, true
		}
		e.Logger().Warn("folio: failed to bind folio config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.PayRetries == 0 {
		cfg.PayRetries = defaults.PayRetries
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.PayRetries == 0 && programmaticConfig.PayRetries != 0 {
		yamlConfig.PayRetries = programmaticConfig.PayRetries
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
