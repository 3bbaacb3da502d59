package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func newTestApp(t *testing.T) (*App, *MockIngestionService) {
	t.Helper()
	ingestion := &MockIngestionService{StatusValue: domain.IngestionStatus{
		State:           domain.IngestionPublished,
		SnapshotVersion: 2,
		DocumentID:      "doc-1",
	}}
	app, err := NewApp(NewPorts(&MockQueryService{}, ingestion))
	require.NoError(t, err)
	return app, ingestion
}

func TestNewApp_Success(t *testing.T) {
	app, _ := newTestApp(t)

	assert.Equal(t, messages.ViewAsk, app.CurrentView())
	assert.False(t, app.Ready())
	assert.Equal(t, status.StateReady, app.AskView().StatusBar().State())
}

func TestNewApp_InvalidPorts(t *testing.T) {
	app, err := NewApp(&Ports{})

	assert.ErrorIs(t, err, ErrMissingQueryService)
	assert.Nil(t, app)
}

func TestNewApp_WithoutIngestion(t *testing.T) {
	app, err := NewApp(NewPorts(&MockQueryService{}, nil))

	require.NoError(t, err)
	assert.Nil(t, app.pollStatus())
	assert.NotNil(t, app.Init())
}

func TestApp_WithContext(t *testing.T) {
	app, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.Equal(t, app, app.WithContext(ctx))
	assert.Equal(t, ctx, app.ctx)
}

func TestApp_View_BeforeReady(t *testing.T) {
	app, _ := newTestApp(t)

	assert.Equal(t, "Initialising...", app.View())
}

func TestApp_Update_WindowSize(t *testing.T) {
	app, _ := newTestApp(t)

	model, cmd := app.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	assert.Nil(t, cmd)
	assert.True(t, model.(*App).Ready())
	assert.Contains(t, app.View(), "sercha-rag")
}

func TestApp_Update_CtrlCQuits(t *testing.T) {
	app, _ := newTestApp(t)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestApp_Update_QuitMessage(t *testing.T) {
	app, _ := newTestApp(t)

	_, cmd := app.Update(messages.Quit{})

	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestApp_HelpToggle(t *testing.T) {
	app, _ := newTestApp(t)
	app.SetDimensions(80, 24)

	app.Update(tea.KeyMsg{Type: tea.KeyF1})
	assert.Equal(t, messages.ViewHelp, app.CurrentView())
	assert.Contains(t, app.View(), "ctrl+s")

	// Typing is ignored while help is open.
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, messages.ViewHelp, app.CurrentView())

	app.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, messages.ViewAsk, app.CurrentView())
}

func TestApp_ViewChanged(t *testing.T) {
	app, _ := newTestApp(t)

	app.Update(messages.ViewChanged{View: messages.ViewHelp})

	assert.Equal(t, messages.ViewHelp, app.CurrentView())
}

func TestApp_StatusRefreshed_Reschedules(t *testing.T) {
	app, _ := newTestApp(t)

	_, cmd := app.Update(messages.StatusRefreshed{Status: domain.IngestionStatus{}})

	assert.NotNil(t, cmd)
	assert.Equal(t, status.StateWaiting, app.AskView().StatusBar().State())
}

func TestApp_AskFlow(t *testing.T) {
	app, _ := newTestApp(t)
	app.SetDimensions(100, 30)

	for _, r := range "what?" {
		app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, app.AskView().Thinking())

	app.Update(messages.AnswerReceived{Question: "what?", Answer: &domain.Answer{Text: "answer"}})

	assert.False(t, app.AskView().Thinking())
	assert.Contains(t, app.View(), "answer")
}
