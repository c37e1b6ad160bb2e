package extension

// Config holds the Folio extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.folio" or "folio" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// PayRetries bounds how often a write is retried after losing a
	// concurrent-modification race (default: 3).
	PayRetries int `json:"pay_retries" mapstructure:"pay_retries" yaml:"pay_retries"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PayRetries: 3,
	}
}
