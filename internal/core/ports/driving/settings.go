package driving

import "github.com/custodia-labs/pdfqa/internal/core/domain"

// Setting is one configuration key with its effective value.
type Setting struct {
	// Key is the dotted configuration key.
	Key string

	// Value is the effective value rendered as text. Secrets are masked.
	Value string

	// Source is "default", "config" or "env".
	Source string
}

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, applying defaults for
	// unset keys and environment overrides for API keys.
	Get() (*domain.AppSettings, error)

	// Set persists a single setting by its dotted key (e.g. "retrieval.top_k").
	// The value is parsed according to the key's type and the resulting
	// settings must validate. Changes take effect on the next start.
	Set(key, value string) error

	// Values lists every supported key with its effective value.
	Values() ([]Setting, error)

	// Keys returns every supported setting key.
	Keys() []string

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
