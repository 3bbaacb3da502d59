package cli

import (
	"fmt"
	"path/filepath"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/fetch"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/keyword/bleve"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/extractors/html"
	"github.com/custodia-labs/sercha-rag/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-rag/internal/extractors/plaintext"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/postprocessors/chunker"
)

// wireConfig opens the TOML config store and the settings service.
func wireConfig(dir string) error {
	store, err := file.NewConfigStore(dir)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	configStore = store
	settingsService = services.NewSettingsService(store, ai.NewConfigValidator(), resolveDataDir(dir))
	return nil
}

// wireServices builds the ingestion and query graph from the current settings.
// Provider problems are warnings: the commands that need a missing provider
// report it when they run.
func wireServices(dir string) error {
	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	prompts, err := file.NewPromptStore(filepath.Join(dir, "prompts"))
	if err != nil {
		return fmt.Errorf("opening prompts: %w", err)
	}

	aiServices := ai.Init(settings, prompts, false)
	for _, warning := range aiServices.Warnings {
		logger.Warn("%s", warning)
	}
	cleanups = append(cleanups, func() error {
		aiServices.Close()
		return nil
	})

	fetcher, err := fetch.New(fetch.ConfigFromSettings(settings.Fetch))
	if err != nil {
		return fmt.Errorf("configuring fetcher: %w", err)
	}

	if err := pdf.CheckAvailable(); err != nil {
		logger.Warn("%v: PDF documents cannot be extracted\n%s", err, pdf.InstallInstructions())
	}
	ocr := pdf.OCRAvailable()
	if !ocr {
		logger.Debug("tesseract or pdftoppm not found; scanned pages will stay empty")
	}

	extractors := services.NewExtractorRegistry(
		pdf.New(pdf.WithOCR(ocr)),
		html.New(html.DefaultMaxBytes),
		plaintext.New(),
	)
	splitter := chunker.New(
		chunker.WithChunkSize(settings.Chunker.Size),
		chunker.WithOverlap(settings.Chunker.Overlap),
		chunker.WithMinLength(settings.Chunker.MinLength),
	)
	pipeline := services.NewPipeline(
		extractors,
		fetcher,
		splitter,
		aiServices.EmbeddingService,
		flat.NewBuilder(),
		bleve.NewBuilder(""),
		services.PipelineConfig{
			DownloadDir:   settings.Ingest.DownloadDir,
			KeepDownloads: settings.Ingest.KeepDownloads,
			BatchSize:     settings.Embedding.BatchSize,
		},
	)

	ledger := openLedger(settings.Ledger, resolveDataDir(dir))
	cleanups = append(cleanups, ledger.Close)

	source, err := file.NewNotificationFile(settings.Ingest.NotificationPath, true)
	if err != nil {
		return fmt.Errorf("opening notification file: %w", err)
	}
	cleanups = append(cleanups, source.Close)

	cache := services.NewDocumentCache()
	coordinator := services.NewCoordinator(source, pipeline, cache, ledger, services.CoordinatorConfig{
		PollInterval: settings.Ingest.PollInterval,
		Policy:       settings.Ingest.Policy,
	})
	cleanups = append(cleanups, coordinator.Stop)

	query := services.NewQueryService(
		cache,
		services.NewRetriever(cache, aiServices.EmbeddingService),
		aiServices.LLMService,
		services.QueryConfig{
			TopK:    settings.Query.TopK,
			Timeout: settings.Query.Timeout,
			Rewrite: settings.Query.Rewrite,
		},
	)
	query.SetPromptStore(prompts)

	if settings.Summary.Enabled {
		if aiServices.LLMService == nil {
			logger.Warn("summary enabled but no LLM is available; summaries are skipped")
		} else {
			summariser := services.NewSummariser(aiServices.LLMService, services.SummaryConfig{
				Path:      settings.Summary.Path,
				MaxLength: settings.Summary.MaxLength,
				Timeout:   settings.Query.Timeout,
			})
			summariser.SetPromptStore(prompts)
			coordinator.AddPublishHook(summariser.Hook())
		}
	}

	ingestionService = coordinator
	queryService = query
	notificationSource = source
	cleanups = append(cleanups, func() error {
		ingestionService, queryService, notificationSource = nil, nil, nil
		return nil
	})
	return nil
}

// openLedger opens the configured run ledger. A SQLite ledger that cannot
// be opened falls back to memory so ingestion still works.
func openLedger(backend domain.LedgerBackend, dir string) driven.IngestionRunStore {
	if backend == domain.LedgerMemory {
		return memory.NewRunStore()
	}
	store, err := sqlite.NewStore(dir)
	if err != nil {
		logger.Warn("ledger unavailable, keeping history in memory: %v", err)
		return memory.NewRunStore()
	}
	logger.Debug("Ledger at %s", store.Path())
	return store
}
