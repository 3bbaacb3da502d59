package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// mockQueryService implements driving.QueryService for testing.
type mockQueryService struct {
	answer  *domain.Answer
	askErr  error
	results []domain.KeywordResult

	lastQuestion string
	lastLimit    int
}

func (m *mockQueryService) Ask(_ context.Context, question string) (*domain.Answer, error) {
	m.lastQuestion = question
	if m.askErr != nil {
		return nil, m.askErr
	}
	if m.answer != nil {
		return m.answer, nil
	}
	return &domain.Answer{
		Question:        question,
		Text:            "The deadline is Friday.",
		DocumentID:      "doc-1",
		SnapshotVersion: 1,
		Sources: []domain.RetrievalResult{
			{Chunk: domain.Chunk{Position: 2, Content: "Submissions close on Friday."}, Distance: 0.12},
		},
	}, nil
}

func (m *mockQueryService) Retrieve(_ context.Context, _ string, _ int) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func (m *mockQueryService) Search(_ context.Context, _ string, limit int) ([]domain.KeywordResult, error) {
	m.lastLimit = limit
	return m.results, nil
}

// mockIngestionService implements driving.IngestionService for testing.
type mockIngestionService struct {
	mu        sync.Mutex
	status    domain.IngestionStatus
	runs      []domain.IngestionRun
	ingestErr error
	ingested  []string
	started   int
	stopped   int
}

func (m *mockIngestionService) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started++
	m.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockIngestionService) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped++
	return nil
}

func (m *mockIngestionService) IngestNow(_ context.Context, path string) (*domain.IngestionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ingested = append(m.ingested, path)
	run := &domain.IngestionRun{
		ID:           "run-1",
		DocumentPath: path,
		Outcome:      domain.OutcomePublished,
		Pages:        3,
		Links:        2,
		Fetched:      2,
		Chunks:       12,
	}
	if m.ingestErr != nil {
		run.Outcome = domain.OutcomeFailed
		run.Error = m.ingestErr.Error()
		return run, m.ingestErr
	}
	m.status.SnapshotVersion++
	return run, nil
}

func (m *mockIngestionService) Status() domain.IngestionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *mockIngestionService) History(_ context.Context, limit int) ([]domain.IngestionRun, error) {
	if limit < len(m.runs) {
		return m.runs[:limit], nil
	}
	return m.runs, nil
}

func (m *mockIngestionService) counts() (started, stopped int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started, m.stopped
}

// mockNotificationSource implements driven.NotificationSource for testing.
type mockNotificationSource struct {
	value string
	err   error
}

func (m *mockNotificationSource) Read(_ context.Context) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.value == "" {
		return "", domain.ErrNotFound
	}
	return m.value, nil
}

func (m *mockNotificationSource) Changes() <-chan struct{} { return nil }

func (m *mockNotificationSource) Close() error { return nil }

// testServices holds the mocks injected by setupTestServices.
type testServices struct {
	query        *mockQueryService
	ingestion    *mockIngestionService
	notification *mockNotificationSource
}

// setupTestServices injects mocks and an in-memory config store and resets
// flag variables, restoring everything when the test ends.
func setupTestServices(t *testing.T) *testServices {
	t.Helper()

	ts := &testServices{
		query:        &mockQueryService{},
		ingestion:    &mockIngestionService{status: domain.IngestionStatus{Policy: domain.PolicyQueue}},
		notification: &mockNotificationSource{},
	}

	store := memory.NewConfigStore()
	SetConfigStore(store)
	SetSettingsService(services.NewSettingsService(store, nil, t.TempDir()))
	SetQueryService(ts.query)
	SetIngestionService(ts.ingestion)
	SetNotificationSource(ts.notification)

	resetFlags()
	configDir = t.TempDir()

	t.Cleanup(func() {
		configStore, settingsService = nil, nil
		queryService, ingestionService, notificationSource = nil, nil, nil
		resetFlags()
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		logger.SetTimestamps(false)
		logger.SetOutput(os.Stderr)
	})
	return ts
}

func resetFlags() {
	verbose, configDir, dataDir, logFile = false, "", "", ""
	askDocument, askSources, askJSON = "", false, false
	searchLimit, searchJSON, searchDocument = 10, false, ""
	historyLimit, historyJSON = 10, false
	ingestQuestion, ingestNotify, chatDocument = "", false, ""
	serveMCPAddr = ""
	mcpPort, mcpWatch = 0, true
}

// executeCommand runs the root command with args and returns its combined output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeCommandWithInput(t, "", args...)
}

func executeCommandWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)

	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "sercha-rag", rootCmd.Use)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	tests := []struct {
		name      string
		shorthand string
	}{
		{name: "verbose", shorthand: "v"},
		{name: "config-dir"},
		{name: "data-dir"},
		{name: "log-file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
		})
	}
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"ask", "chat", "config", "history", "ingest", "mcp", "search", "serve", "status", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestSetVersion(t *testing.T) {
	original := version
	defer func() { version = original }()

	SetVersion("")
	assert.Equal(t, original, version)

	SetVersion("1.2.3")
	assert.Equal(t, "1.2.3", version)
}

func TestResolveConfigDir(t *testing.T) {
	defer resetFlags()

	configDir = "/tmp/custom"
	dir, err := resolveConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom", dir)

	home := t.TempDir()
	t.Setenv("HOME", home)
	configDir = ""
	dir, err = resolveConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".sercha-rag"), dir)
}

func TestResolveDataDir(t *testing.T) {
	defer resetFlags()

	assert.Equal(t, filepath.Join("/cfg", "data"), resolveDataDir("/cfg"))

	dataDir = "/var/lib/sercha-rag"
	assert.Equal(t, "/var/lib/sercha-rag", resolveDataDir("/cfg"))
}

func TestLoadEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("SERCHA_RAG_TEST_NEW=from-file\nSERCHA_RAG_TEST_SET=from-file\n"), 0o600))
	t.Setenv("SERCHA_RAG_TEST_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("SERCHA_RAG_TEST_NEW") })

	loadEnv(dir)

	assert.Equal(t, "from-file", os.Getenv("SERCHA_RAG_TEST_NEW"))
	assert.Equal(t, "from-env", os.Getenv("SERCHA_RAG_TEST_SET"))
}

func TestTeardown_RunsCleanupsInReverse(t *testing.T) {
	var order []int
	cleanups = []func() error{
		func() error { order = append(order, 1); return nil },
		func() error { order = append(order, 2); return errors.New("close failed") },
		func() error { order = append(order, 3); return nil },
	}

	err := teardown(nil, nil)

	assert.EqualError(t, err, "close failed")
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Nil(t, cleanups)
}

func TestSetup_ConfigOnlyWiresConfigStore(t *testing.T) {
	setupTestServices(t)
	configStore, settingsService = nil, nil
	queryService = nil

	out, err := executeCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "sercha-rag version")
	require.NotNil(t, configStore)
	assert.Equal(t, filepath.Join(configDir, "config.toml"), configStore.Path())
	assert.Nil(t, queryService)
}

func TestSetup_LogFile(t *testing.T) {
	setupTestServices(t)
	path := filepath.Join(t.TempDir(), "sercha-rag.log")

	_, err := executeCommand(t, "--log-file", path, "version")

	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestVersionCmd(t *testing.T) {
	setupTestServices(t)
	original := version
	version = "test-version-1.0.0"
	defer func() { version = original }()

	out, err := executeCommand(t, "version")

	require.NoError(t, err)
	assert.Contains(t, out, "sercha-rag version test-version-1.0.0")
}

func TestWatchInBackground(t *testing.T) {
	ts := setupTestServices(t)

	stop := watchInBackground(context.Background())
	require.Eventually(t, func() bool {
		started, _ := ts.ingestion.counts()
		return started == 1
	}, time.Second, 10*time.Millisecond)
	stop()

	_, stopped := ts.ingestion.counts()
	assert.Equal(t, 1, stopped)
}

func TestWatchInBackground_NotConfigured(t *testing.T) {
	setupTestServices(t)
	ingestionService = nil

	stop := watchInBackground(context.Background())

	assert.NotPanics(t, stop)
}
