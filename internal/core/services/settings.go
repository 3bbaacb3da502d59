package services

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	KeyNotificationPath = "ingest.notification_path"
	KeyPollInterval     = "ingest.poll_interval"
	KeyPolicy           = "ingest.policy"
	KeyDownloadDir      = "ingest.download_dir"
	KeyKeepDownloads    = "ingest.keep_downloads"
	KeyChunkSize        = "chunker.size"
	KeyChunkOverlap     = "chunker.overlap"
	KeyChunkMinLength   = "chunker.min_length"
	KeyFetchTimeout     = "fetch.timeout"
	KeyFetchRate        = "fetch.rate"
	KeyFetchBurst       = "fetch.burst"
	KeyFetchMaxBytes    = "fetch.max_bytes"
	KeyFetchSkip        = "fetch.skip_patterns"
	KeyQueryTopK        = "query.top_k"
	KeyQueryTimeout     = "query.timeout"
	KeyQueryRewrite     = "query.rewrite"
	KeyEmbedProvider    = "embedding.provider"
	KeyEmbedModel       = "embedding.model"
	KeyEmbedBaseURL     = "embedding.base_url"
	KeyEmbedAPIKey      = "embedding.api_key"
	KeyEmbedBatchSize   = "embedding.batch_size"
	KeyLLMProvider      = "llm.provider"
	KeyLLMModel         = "llm.model"
	KeyLLMBaseURL       = "llm.base_url"
	KeyLLMAPIKey        = "llm.api_key"
	KeySummaryEnabled   = "summary.enabled"
	KeySummaryPath      = "summary.path"
	KeySummaryMaxLength = "summary.max_length"
	KeyLedger           = "storage.ledger"
)

// Environment variables that override stored API keys, most specific first.
//
//nolint:gosec // G101: These are variable names, not credentials.
var (
	openAIKeyEnv    = []string{"SERCHA_OPENAI_API_KEY", "OPENAI_API_KEY"}
	anthropicKeyEnv = []string{"SERCHA_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"}
)

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	dataDir     string
	getenv      func(string) string
}

// NewSettingsService creates a new settings service. dataDir anchors the
// default paths of the notification file, downloads and summary.
func NewSettingsService(
	configStore driven.ConfigStore, aiValidator driven.AIConfigValidator, dataDir string,
) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		dataDir:     dataDir,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := s.GetDefaults()

	settings := &domain.AppSettings{
		Ingest: domain.IngestSettings{
			NotificationPath: s.getString(KeyNotificationPath, defaults.Ingest.NotificationPath),
			PollInterval:     s.getDuration(KeyPollInterval, defaults.Ingest.PollInterval),
			Policy:           s.getPolicy(defaults.Ingest.Policy),
			DownloadDir:      s.getString(KeyDownloadDir, defaults.Ingest.DownloadDir),
			KeepDownloads:    s.getBool(KeyKeepDownloads, defaults.Ingest.KeepDownloads),
		},
		Chunker: domain.ChunkerSettings{
			Size:      s.getInt(KeyChunkSize, defaults.Chunker.Size),
			Overlap:   s.getInt(KeyChunkOverlap, defaults.Chunker.Overlap),
			MinLength: s.getInt(KeyChunkMinLength, defaults.Chunker.MinLength),
		},
		Fetch: domain.FetchSettings{
			Timeout:           s.getDuration(KeyFetchTimeout, defaults.Fetch.Timeout),
			RequestsPerSecond: s.getFloat(KeyFetchRate, defaults.Fetch.RequestsPerSecond),
			Burst:             s.getInt(KeyFetchBurst, defaults.Fetch.Burst),
			MaxBytes:          int64(s.getInt(KeyFetchMaxBytes, int(defaults.Fetch.MaxBytes))),
			SkipPatterns:      s.configStore.GetStringSlice(KeyFetchSkip),
		},
		Query: domain.QuerySettings{
			TopK:    s.getInt(KeyQueryTopK, defaults.Query.TopK),
			Timeout: s.getDuration(KeyQueryTimeout, defaults.Query.Timeout),
			Rewrite: s.getBool(KeyQueryRewrite, defaults.Query.Rewrite),
		},
		Summary: domain.SummarySettings{
			Enabled:   s.getBool(KeySummaryEnabled, defaults.Summary.Enabled),
			Path:      s.getString(KeySummaryPath, defaults.Summary.Path),
			MaxLength: s.getInt(KeySummaryMaxLength, defaults.Summary.MaxLength),
		},
		Embedding: domain.EmbeddingSettings{
			Provider:  s.getProvider(KeyEmbedProvider, defaults.Embedding.Provider),
			BaseURL:   s.configStore.GetString(KeyEmbedBaseURL), // No default - empty uses the provider default
			APIKey:    s.configStore.GetString(KeyEmbedAPIKey),
			BatchSize: s.getInt(KeyEmbedBatchSize, defaults.Embedding.BatchSize),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(KeyLLMProvider, defaults.LLM.Provider),
			BaseURL:  s.configStore.GetString(KeyLLMBaseURL),
			APIKey:   s.configStore.GetString(KeyLLMAPIKey),
		},
		Ledger: s.getLedger(defaults.Ledger),
	}

	// An unset model means the provider's default.
	settings.Embedding.Model = s.getString(KeyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])
	settings.LLM.Model = s.getString(KeyLLMModel, domain.DefaultLLMModels()[settings.LLM.Provider])

	settings.Embedding.APIKey = s.envAPIKey(settings.Embedding.Provider, settings.Embedding.APIKey)
	settings.LLM.APIKey = s.envAPIKey(settings.LLM.Provider, settings.LLM.APIKey)

	return settings, nil
}

// Save persists application settings. API keys are only written when set,
// so keys supplied through the environment are not copied to disk.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{KeyNotificationPath, settings.Ingest.NotificationPath},
		{KeyPollInterval, settings.Ingest.PollInterval.String()},
		{KeyPolicy, settings.Ingest.Policy.String()},
		{KeyDownloadDir, settings.Ingest.DownloadDir},
		{KeyKeepDownloads, settings.Ingest.KeepDownloads},
		{KeyChunkSize, settings.Chunker.Size},
		{KeyChunkOverlap, settings.Chunker.Overlap},
		{KeyChunkMinLength, settings.Chunker.MinLength},
		{KeyFetchTimeout, settings.Fetch.Timeout.String()},
		{KeyFetchRate, settings.Fetch.RequestsPerSecond},
		{KeyFetchBurst, settings.Fetch.Burst},
		{KeyFetchMaxBytes, settings.Fetch.MaxBytes},
		{KeyQueryTopK, settings.Query.TopK},
		{KeyQueryTimeout, settings.Query.Timeout.String()},
		{KeyQueryRewrite, settings.Query.Rewrite},
		{KeySummaryEnabled, settings.Summary.Enabled},
		{KeySummaryPath, settings.Summary.Path},
		{KeySummaryMaxLength, settings.Summary.MaxLength},
		{KeyEmbedProvider, settings.Embedding.Provider.String()},
		{KeyEmbedModel, settings.Embedding.Model},
		{KeyEmbedBaseURL, settings.Embedding.BaseURL},
		{KeyEmbedBatchSize, settings.Embedding.BatchSize},
		{KeyLLMProvider, settings.LLM.Provider.String()},
		{KeyLLMModel, settings.LLM.Model},
		{KeyLLMBaseURL, settings.LLM.BaseURL},
		{KeyLedger, string(settings.Ledger)},
	}
	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}

	if len(settings.Fetch.SkipPatterns) > 0 {
		if err := s.configStore.Set(KeyFetchSkip, settings.Fetch.SkipPatterns); err != nil {
			return fmt.Errorf("save %s: %w", KeyFetchSkip, err)
		}
	}
	if settings.Embedding.APIKey != "" {
		if err := s.configStore.Set(KeyEmbedAPIKey, settings.Embedding.APIKey); err != nil {
			return fmt.Errorf("save embedding api_key: %w", err)
		}
	}
	if settings.LLM.APIKey != "" {
		if err := s.configStore.Set(KeyLLMAPIKey, settings.LLM.APIKey); err != nil {
			return fmt.Errorf("save llm api_key: %w", err)
		}
	}

	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}

	// Validate provider supports embeddings
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}

	apiKey = s.envAPIKey(provider, apiKey)
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	settings.Embedding.Model = modelOrDefault(model, domain.DefaultEmbeddingModels()[provider])
	settings.Embedding.BaseURL = baseURLFor(provider, settings.Embedding.BaseURL)
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}

	apiKey = s.envAPIKey(provider, apiKey)
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	settings.LLM.Model = modelOrDefault(model, domain.DefaultLLMModels()[provider])
	settings.LLM.BaseURL = baseURLFor(provider, settings.LLM.BaseURL)
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks that the settings can drive ingestion and answers.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	if !settings.Ingest.Policy.IsValid() {
		return fmt.Errorf("invalid ingest policy: %s", settings.Ingest.Policy)
	}
	if settings.Chunker.Size <= 0 || settings.Chunker.Overlap < 0 || settings.Chunker.Overlap >= settings.Chunker.Size {
		return fmt.Errorf("invalid chunker settings: size %d, overlap %d",
			settings.Chunker.Size, settings.Chunker.Overlap)
	}
	if settings.Query.TopK < 0 {
		return fmt.Errorf("invalid query.top_k: %d", settings.Query.TopK)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), settings.Embedding.Provider) {
		return fmt.Errorf("provider %s does not support embeddings", settings.Embedding.Provider)
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured",
			domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}
	if !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: LLM provider %q is not configured",
			domain.ErrLLMUnavailable, settings.LLM.Provider)
	}

	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings(s.dataDir)
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// envAPIKey returns the API key from the environment for provider, or current.
func (s *SettingsService) envAPIKey(provider domain.AIProvider, current string) string {
	var names []string
	switch provider {
	case domain.AIProviderOpenAI:
		names = openAIKeyEnv
	case domain.AIProviderAnthropic:
		names = anthropicKeyEnv
	default:
		return current
	}
	for _, name := range names {
		if v := s.getenv(name); v != "" {
			return v
		}
	}
	return current
}

func modelOrDefault(model, defaultModel string) string {
	if model != "" {
		return model
	}
	return defaultModel
}

func baseURLFor(provider domain.AIProvider, current string) string {
	if provider.IsLocal() {
		// Local providers need a base URL
		if current == "" {
			return "http://localhost:11434"
		}
		return current
	}
	// Cloud providers don't need a custom base URL
	return ""
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val := s.configStore.GetFloat(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		// Bare integers are seconds
		if secs := s.configStore.GetInt(key); secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getPolicy(defaultVal domain.IngestionPolicy) domain.IngestionPolicy {
	policy := domain.IngestionPolicy(s.configStore.GetString(KeyPolicy))
	if !policy.IsValid() {
		return defaultVal
	}
	return policy
}

func (s *SettingsService) getLedger(defaultVal domain.LedgerBackend) domain.LedgerBackend {
	switch backend := domain.LedgerBackend(s.configStore.GetString(KeyLedger)); backend {
	case domain.LedgerSQLite, domain.LedgerMemory:
		return backend
	default:
		return defaultVal
	}
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}
