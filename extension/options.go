package extension

import (
	folio "github.com/xraph/folio"
	"github.com/xraph/folio/plugin"
	"github.com/xraph/folio/store"
)

// Option configures the Folio Forge extension.
type Option func(*Extension)

// WithStore sets the store for the invoicing engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithServiceOption passes a folio.Option through to the underlying engine.
func WithServiceOption(opt folio.Option) Option {
	return func(e *Extension) {
		e.serviceOpts = append(e.serviceOpts, opt)
	}
}

// WithPlugin registers a folio plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.serviceOpts = append(e.serviceOpts, folio.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
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

// WithPayRetries sets the retry bound for contended writes.
func WithPayRetries(n int) Option {
	return func(e *Extension) { e.config.PayRetries = n }
}
