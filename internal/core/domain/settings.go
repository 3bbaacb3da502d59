package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or any compatible server.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// BatchSize is the number of chunks embedded per request.
	BatchSize int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint. Empty uses the provider default.
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// IngestSettings controls the ingestion coordinator.
type IngestSettings struct {
	// NotificationPath is the file holding the path of the latest delivered document.
	NotificationPath string

	// PollInterval is how often the notification file is read.
	PollInterval time.Duration

	// Policy decides how a notification arriving mid-run is handled.
	Policy IngestionPolicy

	// DownloadDir is where linked resources are saved.
	DownloadDir string

	// KeepDownloads keeps fetched files after the run completes.
	KeepDownloads bool
}

// ChunkerSettings controls how aggregated text is split.
type ChunkerSettings struct {
	Size      int
	Overlap   int
	MinLength int
}

// FetchSettings controls linked-resource downloads.
type FetchSettings struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxBytes          int64

	// SkipPatterns are glob patterns matched against each URL's host and path.
	SkipPatterns []string
}

// QuerySettings controls retrieval and answer generation.
type QuerySettings struct {
	TopK    int
	Timeout time.Duration

	// Rewrite expands the retrieval query through the LLM before embedding it.
	Rewrite bool
}

// SummarySettings controls the optional per-document summary.
type SummarySettings struct {
	Enabled   bool
	Path      string
	MaxLength int
}

// LedgerBackend selects where ingestion runs are recorded.
type LedgerBackend string

// Available ledger backends.
const (
	LedgerSQLite LedgerBackend = "sqlite"
	LedgerMemory LedgerBackend = "memory"
)

// AppSettings holds all application settings.
type AppSettings struct {
	Ingest    IngestSettings
	Chunker   ChunkerSettings
	Fetch     FetchSettings
	Query     QuerySettings
	Summary   SummarySettings
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Ledger    LedgerBackend
}

// DefaultAppSettings returns settings with sensible defaults.
// Paths are relative to dataDir.
func DefaultAppSettings(dataDir string) AppSettings {
	return AppSettings{
		Ingest: IngestSettings{
			NotificationPath: dataDir + "/latest_moved_path.txt",
			PollInterval:     3 * time.Second,
			Policy:           PolicyQueue,
			DownloadDir:      dataDir + "/linked",
		},
		Chunker: ChunkerSettings{
			Size:      1300,
			Overlap:   140,
			MinLength: 50,
		},
		Fetch: FetchSettings{
			Timeout:           15 * time.Second,
			RequestsPerSecond: 4,
			Burst:             4,
			MaxBytes:          50 << 20,
		},
		Query: QuerySettings{
			TopK:    5,
			Timeout: 120 * time.Second,
		},
		Summary: SummarySettings{
			Path:      dataDir + "/summary.txt",
			MaxLength: 800,
		},
		Embedding: EmbeddingSettings{
			Provider:  AIProviderOllama,
			Model:     DefaultEmbeddingModels()[AIProviderOllama],
			BatchSize: 32,
		},
		LLM: LLMSettings{
			Provider: AIProviderOllama,
			Model:    DefaultLLMModels()[AIProviderOllama],
		},
		Ledger: LedgerSQLite,
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		"bge-small-en":      384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
