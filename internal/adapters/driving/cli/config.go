package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

// settingKeys lists every key config get/set accepts.
var settingKeys = []string{
	services.KeyNotificationPath,
	services.KeyPollInterval,
	services.KeyPolicy,
	services.KeyDownloadDir,
	services.KeyKeepDownloads,
	services.KeyChunkSize,
	services.KeyChunkOverlap,
	services.KeyChunkMinLength,
	services.KeyFetchTimeout,
	services.KeyFetchRate,
	services.KeyFetchBurst,
	services.KeyFetchMaxBytes,
	services.KeyFetchSkip,
	services.KeyQueryTopK,
	services.KeyQueryTimeout,
	services.KeyQueryRewrite,
	services.KeyEmbedProvider,
	services.KeyEmbedModel,
	services.KeyEmbedBaseURL,
	services.KeyEmbedAPIKey,
	services.KeyEmbedBatchSize,
	services.KeyLLMProvider,
	services.KeyLLMModel,
	services.KeyLLMBaseURL,
	services.KeyLLMAPIKey,
	services.KeySummaryEnabled,
	services.KeySummaryPath,
	services.KeySummaryMaxLength,
	services.KeyLedger,
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Manage configuration",
	Long:        `View and change settings stored in config.toml.`,
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show effective settings",
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:         "get <key>",
	Short:       "Print a stored setting",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting",
	Long: `Store a setting in config.toml.

Durations take Go syntax (3s, 2m). fetch.skip_patterns takes a
comma-separated list of glob patterns matched against host and path.

Examples:
  sercha-rag config set ingest.policy supersede
  sercha-rag config set llm.model llama3.1
  sercha-rag config set fetch.skip_patterns "**/login/**,ads.example.com/**"`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigSet,
}

var configUnsetCmd = &cobra.Command{
	Use:         "unset <key>",
	Short:       "Remove a stored setting so its default applies",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE:        runConfigUnset,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the config file path",
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if configStore == nil {
			return errors.New("config store not configured")
		}
		cmd.Println(configStore.Path())
		return nil
	},
}

var configEmbeddingCmd = &cobra.Command{
	Use:         "embedding",
	Short:       "Choose the embedding provider interactively",
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsService == nil {
			return errors.New("settings service not configured")
		}
		return configureEmbeddingProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
	},
}

var configLLMCmd = &cobra.Command{
	Use:         "llm",
	Short:       "Choose the LLM provider interactively",
	Annotations: map[string]string{annotationConfigOnly: "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		if settingsService == nil {
			return errors.New("settings service not configured")
		}
		return configureLLMProvider(cmd, bufio.NewReader(cmd.InOrStdin()))
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configEmbeddingCmd)
	configCmd.AddCommand(configLLMCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("[Ingest]")
	cmd.Printf("  Notification file: %s\n", settings.Ingest.NotificationPath)
	cmd.Printf("  Poll interval: %s\n", settings.Ingest.PollInterval)
	cmd.Printf("  Policy: %s\n", settings.Ingest.Policy)
	cmd.Printf("  Download dir: %s (keep: %t)\n", settings.Ingest.DownloadDir, settings.Ingest.KeepDownloads)
	cmd.Printf("  Ledger: %s\n", settings.Ledger)
	cmd.Println()

	cmd.Println("[Chunker]")
	cmd.Printf("  Size: %d  Overlap: %d  Min length: %d\n",
		settings.Chunker.Size, settings.Chunker.Overlap, settings.Chunker.MinLength)
	cmd.Println()

	cmd.Println("[Fetch]")
	cmd.Printf("  Timeout: %s  Rate: %g/s  Burst: %d  Max bytes: %d\n",
		settings.Fetch.Timeout, settings.Fetch.RequestsPerSecond, settings.Fetch.Burst, settings.Fetch.MaxBytes)
	if len(settings.Fetch.SkipPatterns) > 0 {
		cmd.Printf("  Skip: %s\n", strings.Join(settings.Fetch.SkipPatterns, ", "))
	}
	cmd.Println()

	cmd.Println("[Query]")
	cmd.Printf("  Top K: %d  Timeout: %s  Rewrite: %t\n",
		settings.Query.TopK, settings.Query.Timeout, settings.Query.Rewrite)
	if settings.Summary.Enabled {
		cmd.Printf("  Summary: %s (max %d chars)\n", settings.Summary.Path, settings.Summary.MaxLength)
	}
	cmd.Println()

	printProvider(cmd, "[Embedding]", settings.Embedding.Provider, settings.Embedding.Model,
		settings.Embedding.BaseURL, settings.Embedding.APIKey, settings.Embedding.IsConfigured())
	printProvider(cmd, "[LLM]", settings.LLM.Provider, settings.LLM.Model,
		settings.LLM.BaseURL, settings.LLM.APIKey, settings.LLM.IsConfigured())

	printOverrides(cmd)

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'sercha-rag config llm' or 'sercha-rag config embedding' to fix provider issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

// printOverrides lists the keys stored in config.toml. Everything else is
// a default.
func printOverrides(cmd *cobra.Command) {
	if configStore == nil {
		return
	}
	cmd.Println("[Overrides]")
	keys := configStore.Keys()
	if len(keys) == 0 {
		cmd.Println("  (none)")
	}
	for _, key := range keys {
		value, _ := configStore.Get(key)
		shown := formatValue(value)
		if isSecretKey(key) {
			shown = maskAPIKey(fmt.Sprint(value))
		}
		cmd.Printf("  %s = %s\n", key, shown)
	}
	cmd.Println()
}

func printProvider(cmd *cobra.Command, title string, provider domain.AIProvider, model, baseURL, apiKey string, ok bool) {
	cmd.Println(title)
	cmd.Printf("  Provider: %s\n", provider.Description())
	cmd.Printf("  Model: %s\n", model)
	if baseURL != "" {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
	status := "configured"
	if !ok {
		status = "not configured"
	}
	cmd.Printf("  Status: %s\n", status)
	cmd.Println()
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	key := args[0]
	if !slices.Contains(settingKeys, key) {
		return fmt.Errorf("%w: unknown key %q", domain.ErrInvalidInput, key)
	}

	value, ok := configStore.Get(key)
	if !ok {
		cmd.Println("(default)")
		return nil
	}
	if isSecretKey(key) {
		cmd.Println(maskAPIKey(fmt.Sprint(value)))
		return nil
	}
	cmd.Println(formatValue(value))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	key, raw := args[0], args[1]
	if !slices.Contains(settingKeys, key) {
		return fmt.Errorf("%w: unknown key %q", domain.ErrInvalidInput, key)
	}

	if err := configStore.Set(key, parseValue(key, raw)); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	if err := configStore.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	shown := raw
	if isSecretKey(key) {
		shown = maskAPIKey(raw)
	}
	cmd.Printf("%s = %s\n", key, shown)

	if settingsService != nil {
		if err := settingsService.Validate(); err != nil {
			cmd.Printf("Warning: %v\n", err)
		}
	}
	return nil
}

func runConfigUnset(cmd *cobra.Command, args []string) error {
	if configStore == nil {
		return errors.New("config store not configured")
	}
	key := args[0]
	if !slices.Contains(settingKeys, key) {
		return fmt.Errorf("%w: unknown key %q", domain.ErrInvalidInput, key)
	}

	if _, ok := configStore.Get(key); !ok {
		cmd.Printf("%s is not set\n", key)
		return nil
	}
	if err := configStore.Delete(key); err != nil {
		return fmt.Errorf("failed to unset %s: %w", key, err)
	}
	cmd.Printf("%s reset to default\n", key)
	return nil
}

// parseValue converts a command-line value to the type the config store
// holds for key. Durations and names stay strings.
func parseValue(key, raw string) any {
	if key == services.KeyFetchSkip {
		var patterns []string
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		return patterns
	}
	if isSecretKey(key) {
		return raw
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func formatValue(value any) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, len(v))
		for i := range v {
			parts[i] = fmt.Sprint(v[i])
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

func isSecretKey(key string) bool {
	return key == services.KeyEmbedAPIKey || key == services.KeyLLMAPIKey
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	provider, model, apiKey, err := chooseProvider(cmd, reader, "Embedding",
		domain.AllEmbeddingProviders(), domain.DefaultEmbeddingModels())
	if err != nil {
		return err
	}

	if err := settingsService.SetEmbeddingProvider(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateEmbeddingConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("embedding configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("Embedding provider configured: %s (%s)\n", provider.Description(), model)
	return nil
}

func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader) error {
	provider, model, apiKey, err := chooseProvider(cmd, reader, "LLM",
		domain.AllLLMProviders(), domain.DefaultLLMModels())
	if err != nil {
		return err
	}

	if err := settingsService.SetLLMProvider(provider, model, apiKey); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	cmd.Print("Validating configuration... ")
	if err := settingsService.ValidateLLMConfig(); err != nil {
		cmd.Printf("FAILED: %v\n", err)
		return fmt.Errorf("LLM configuration validation failed: %w", err)
	}
	cmd.Println("OK")

	cmd.Printf("LLM provider configured: %s (%s)\n", provider.Description(), model)
	return nil
}

func chooseProvider(
	cmd *cobra.Command,
	reader *bufio.Reader,
	kind string,
	providers []domain.AIProvider,
	defaults map[domain.AIProvider]string,
) (domain.AIProvider, string, string, error) {
	cmd.Printf("Select %s Provider\n", kind)
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	provider := providers[parseChoice(readLine(reader), len(providers), 1)-1]

	defaultModel := defaults[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	model := readLine(reader)
	if model == "" {
		model = defaultModel
	}

	var apiKey string
	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key: ")
		apiKey = readPassword(reader)
		cmd.Println()
		if apiKey == "" {
			return "", "", "", errors.New("API key is required for this provider")
		}
	}
	return provider, model, apiKey, nil
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo on a terminal, else a plain line.
func readPassword(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err == nil {
			return string(password)
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
