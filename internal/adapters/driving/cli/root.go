package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// annotationConfigOnly marks commands that need the config store but not
// the ingestion and query services.
const annotationConfigOnly = "sercha-rag/config-only"

// version is set by the linker or SetVersion.
var version = "dev"

// Global flags.
var (
	verbose   bool
	configDir string
	dataDir   string
	logFile   string
)

// Services used by commands. They are built in PersistentPreRunE unless a
// caller injected them with the Set… functions first.
var (
	configStore        driven.ConfigStore
	settingsService    driving.SettingsService
	ingestionService   driving.IngestionService
	queryService       driving.QueryService
	notificationSource driven.NotificationSource
)

// cleanups run after the command in reverse order.
var cleanups []func() error

var rootCmd = &cobra.Command{
	Use:   "sercha-rag",
	Short: "Ask questions about the most recently delivered document",
	Long: `sercha-rag watches for delivered documents, extracts their text together
with the pages they link to, and answers questions using only that content.

Text is taken from the PDF text layer, with OCR for scanned pages, and from
HTML and plain text files. Answers come from a local Ollama model by default.

Examples:
  sercha-rag serve                       # Watch the notification file
  sercha-rag ingest ~/Downloads/a.pdf    # Ingest one document now
  sercha-rag ask --document a.pdf "What is the deadline?"
  sercha-rag chat                        # Interactive terminal UI`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print progress and diagnostic logs")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.sercha-rag)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default <config-dir>/data)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "append logs to this file instead of stderr")
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so long-running commands shut down cleanly.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// SetConfigStore sets the config store used by the config commands.
func SetConfigStore(store driven.ConfigStore) {
	configStore = store
}

// SetSettingsService sets the settings service.
func SetSettingsService(service driving.SettingsService) {
	settingsService = service
}

// SetIngestionService sets the ingestion service.
func SetIngestionService(service driving.IngestionService) {
	ingestionService = service
}

// SetQueryService sets the query service.
func SetQueryService(service driving.QueryService) {
	queryService = service
}

// SetNotificationSource sets the source used to find the latest document.
func SetNotificationSource(source driven.NotificationSource) {
	notificationSource = source
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	if logFile != "" {
		closeLog, err := logger.SetLogFile(logFile)
		if err != nil {
			return err
		}
		cleanups = append(cleanups, closeLog)
	}

	dir, err := resolveConfigDir()
	if err != nil {
		return err
	}
	loadEnv(dir)

	if configStore == nil || settingsService == nil {
		if err := wireConfig(dir); err != nil {
			return err
		}
	}
	if cmd.Annotations[annotationConfigOnly] == "true" || queryService != nil {
		return nil
	}
	return wireServices(dir)
}

func teardown(_ *cobra.Command, _ []string) error {
	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	cleanups = nil
	return errors.Join(errs...)
}

// resolveConfigDir returns --config-dir or ~/.sercha-rag.
func resolveConfigDir() (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, file.DefaultDirName), nil
}

// resolveDataDir returns --data-dir or <config-dir>/data.
func resolveDataDir(dir string) string {
	if dataDir != "" {
		return dataDir
	}
	return filepath.Join(dir, "data")
}

// loadEnv loads .env from the working directory and the config directory.
// Variables already set in the environment win.
func loadEnv(dir string) {
	for _, path := range []string{".env", filepath.Join(dir, ".env")} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logger.Warn("load %s: %v", path, err)
			continue
		}
		logger.Debug("Loaded environment from %s", path)
	}
}
