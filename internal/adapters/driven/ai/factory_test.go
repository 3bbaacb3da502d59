package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// fakeOllama serves /api/tags listing the given models.
func fakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		type model struct {
			Name string `json:"name"`
		}
		resp := struct {
			Models []model `json:"models"`
		}{}
		for _, m := range models {
			resp.Models = append(resp.Models, model{Name: m})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type stubPrompts struct{}

func (stubPrompts) Load(string) (string, error) { return "custom %s", nil }
func (stubPrompts) Reload()                     {}

func TestInitResult_Close_NilServices(t *testing.T) {
	result := &InitResult{}
	assert.NotPanics(t, result.Close)
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.EmbeddingSettings
		wantNil  bool
		wantErr  string
	}{
		{name: "nil settings", settings: nil, wantNil: true},
		{name: "unconfigured", settings: &domain.EmbeddingSettings{}, wantNil: true},
		{name: "openai without key", settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI}, wantNil: true},
		{
			name:     "ollama",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "nomic-embed-text"},
		},
		{
			name:     "openai",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "text-embedding-3-small"},
		},
		{
			name:     "anthropic rejected",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantNil:  true,
			wantErr:  "anthropic does not support embeddings",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.settings.Model, svc.ModelName())
		})
	}
}

func TestCreateEmbeddingService_KnownDimensions(t *testing.T) {
	svc, err := CreateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		Model:    "mxbai-embed-large",
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, svc.Dimensions())
}

func TestCreateLLMService(t *testing.T) {
	tests := []struct {
		name      string
		settings  *domain.LLMSettings
		wantNil   bool
		wantModel string
	}{
		{name: "nil settings", settings: nil, wantNil: true},
		{name: "unconfigured", settings: &domain.LLMSettings{}, wantNil: true},
		{name: "anthropic without key", settings: &domain.LLMSettings{Provider: domain.AIProviderAnthropic}, wantNil: true},
		{name: "ollama default model", settings: &domain.LLMSettings{Provider: domain.AIProviderOllama}, wantModel: "llama3"},
		{
			name:      "openai",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderOpenAI, APIKey: "k", Model: "gpt-4o"},
			wantModel: "gpt-4o",
		},
		{
			name:      "anthropic",
			settings:  &domain.LLMSettings{Provider: domain.AIProviderAnthropic, APIKey: "k"},
			wantModel: "claude-3-5-sonnet-latest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateLLMService(tt.settings, time.Second)
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, svc)
				return
			}
			require.NotNil(t, svc)
			defer svc.Close()
			assert.Equal(t, tt.wantModel, svc.ModelName())
		})
	}
}

func TestCreateAndValidateLLMService_Reachable(t *testing.T) {
	srv := fakeOllama(t, "llama3:latest")

	svc, err := CreateAndValidateLLMService(&domain.LLMSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  srv.URL,
		Model:    "llama3",
	}, time.Second)

	require.NoError(t, err)
	require.NotNil(t, svc)
	svc.Close()
}

func TestCreateAndValidateLLMService_MissingModel(t *testing.T) {
	srv := fakeOllama(t, "mistral:latest")

	svc, err := CreateAndValidateLLMService(&domain.LLMSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  srv.URL,
		Model:    "llama3",
	}, time.Second)

	assert.Nil(t, svc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLLMUnavailable))
	assert.Contains(t, err.Error(), "ollama pull llama3")
	assert.Contains(t, err.Error(), "sercha-rag config set")
}

func TestCreateAndValidateEmbeddingService_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	svc, err := CreateAndValidateEmbeddingService(&domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  srv.URL,
	})

	assert.Nil(t, svc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
}

func TestValidateConfig_Unconfigured(t *testing.T) {
	assert.NoError(t, ValidateEmbeddingConfig(nil))
	assert.NoError(t, ValidateLLMConfig(&domain.LLMSettings{}))
}

func TestInit_WithoutVerify(t *testing.T) {
	settings := domain.DefaultAppSettings(t.TempDir())

	result := Init(&settings, stubPrompts{}, false)
	defer result.Close()

	require.NotNil(t, result.EmbeddingService)
	require.NotNil(t, result.LLMService)
	assert.Empty(t, result.Warnings)
	assert.NotNil(t, result.PromptStore)
}

func TestInit_DegradesOnUnreachableProviders(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	settings := domain.DefaultAppSettings(t.TempDir())
	settings.Embedding.BaseURL = srv.URL
	settings.LLM.BaseURL = srv.URL

	result := Init(&settings, nil, true)
	defer result.Close()

	assert.Nil(t, result.EmbeddingService)
	assert.Nil(t, result.LLMService)
	assert.Len(t, result.Warnings, 2)
}

func TestInit_UnconfiguredLLM(t *testing.T) {
	settings := domain.DefaultAppSettings(t.TempDir())
	settings.LLM = domain.LLMSettings{Provider: domain.AIProviderOpenAI}

	result := Init(&settings, nil, false)
	defer result.Close()

	assert.NotNil(t, result.EmbeddingService)
	assert.Nil(t, result.LLMService)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "not configured")
}

func TestInit_PromptStoreAware(t *testing.T) {
	settings := domain.DefaultAppSettings(t.TempDir())
	result := Init(&settings, stubPrompts{}, false)
	defer result.Close()

	_, ok := result.LLMService.(driven.PromptStoreAware)
	assert.True(t, ok)
}
