package driving

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// SettingsService manages application configuration.
type SettingsService interface {
	// Get returns the effective settings: stored values over defaults,
	// with API keys from the environment taking precedence.
	Get() (*domain.AppSettings, error)

	// Save persists settings.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider configures the embedding provider.
	// An empty model selects the provider default.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetLLMProvider configures the LLM provider.
	// An empty model selects the provider default.
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// Validate checks that the settings can drive ingestion and answers.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig() error

	// ValidateLLMConfig pings the configured LLM provider.
	ValidateLLMConfig() error
}
