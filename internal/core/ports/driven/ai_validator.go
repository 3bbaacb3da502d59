package driven

import "github.com/custodia-labs/sercha-rag/internal/core/domain"

// AIConfigValidator validates AI provider configurations by checking connectivity.
// It lets the settings service confirm a provider before the coordinator
// depends on it for ingestion and answers.
type AIConfigValidator interface {
	// ValidateEmbedding validates an embedding configuration by pinging the provider.
	// Returns nil if configuration is valid or not configured.
	ValidateEmbedding(config *domain.EmbeddingSettings) error

	// ValidateLLM validates an LLM configuration by pinging the provider.
	// Returns nil if configuration is valid or not configured.
	ValidateLLM(config *domain.LLMSettings) error
}
