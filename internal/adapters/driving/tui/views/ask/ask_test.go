package ask

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// mockQueryService implements driving.QueryService for testing.
type mockQueryService struct {
	askFunc  func(ctx context.Context, question string) (*domain.Answer, error)
	lastAsk  string
	askCalls int
}

func (m *mockQueryService) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	m.askCalls++
	m.lastAsk = question
	if m.askFunc != nil {
		return m.askFunc(ctx, question)
	}
	return &domain.Answer{Question: question, Text: "The deadline is Friday."}, nil
}

func (m *mockQueryService) Retrieve(_ context.Context, _ string, _ int) ([]domain.RetrievalResult, error) {
	return nil, nil
}

func (m *mockQueryService) Search(_ context.Context, _ string, _ int) ([]domain.KeywordResult, error) {
	return nil, nil
}

func typeText(v *View, text string) *View {
	for _, r := range text {
		v, _ = v.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return v
}

// runBatch executes every command in cmd and returns the messages that are
// not spinner ticks.
func runBatch(t *testing.T, cmd tea.Cmd) []tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		return []tea.Msg{msg}
	}
	var out []tea.Msg
	for _, c := range batch {
		if c == nil {
			continue
		}
		out = append(out, c())
	}
	return out
}

func findAnswer(msgs []tea.Msg) (messages.AnswerReceived, bool) {
	for _, m := range msgs {
		if a, ok := m.(messages.AnswerReceived); ok {
			return a, true
		}
	}
	return messages.AnswerReceived{}, false
}

func TestNewView(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})

	require.NotNil(t, v)
	assert.NotNil(t, v.styles)
	assert.NotNil(t, v.keymap)
	assert.False(t, v.Thinking())
	assert.Contains(t, v.Transcript(), "Ask a question")
	assert.NotNil(t, v.Init())
}

func TestView_SubmitAndAnswer(t *testing.T) {
	query := &mockQueryService{}
	v := NewView(nil, nil, query)

	v = typeText(v, "when is it due?")
	v, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})

	assert.True(t, v.Thinking())
	assert.Equal(t, status.StateThinking, v.StatusBar().State())
	assert.Equal(t, 1, v.Exchanges())
	assert.Contains(t, v.Transcript(), "> when is it due?")
	assert.Contains(t, v.Transcript(), "thinking")

	answer, ok := findAnswer(runBatch(t, cmd))
	require.True(t, ok)
	assert.Equal(t, "when is it due?", query.lastAsk)

	v, _ = v.Update(answer)

	assert.False(t, v.Thinking())
	assert.Contains(t, v.Transcript(), "The deadline is Friday.")
	assert.NotContains(t, v.Transcript(), "thinking")
}

func TestView_SubmitIgnoresBlankAndInFlight(t *testing.T) {
	query := &mockQueryService{}
	v := NewView(nil, nil, query)

	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	v = typeText(v, "   ")
	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)

	v = typeText(v, "first")
	v, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	v = typeText(v, "second")
	_, cmd = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.Equal(t, 1, v.Exchanges())
}

func TestView_AnswerError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "not ready", err: domain.ErrNotReady, want: "No document has been ingested yet."},
		{name: "timeout", err: context.DeadlineExceeded, want: "took too long"},
		{
			name: "model failure",
			err:  &domain.ModelInvocationError{Model: "llama3", Op: "generate", Err: errors.New("connection refused")},
			want: "The model failed",
		},
		{name: "other", err: errors.New("boom"), want: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewView(nil, nil, &mockQueryService{})
			v = typeText(v, "q")
			v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})

			v, _ = v.Update(messages.AnswerReceived{Question: "q", Err: tt.err})

			assert.Contains(t, v.Transcript(), tt.want)
			assert.Equal(t, status.StateError, v.StatusBar().State())
		})
	}
}

func TestView_ToggleSources(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})
	v.SetDimensions(200, 40)
	v = typeText(v, "q")
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(messages.AnswerReceived{Question: "q", Answer: &domain.Answer{
		Text: "Friday",
		Sources: []domain.RetrievalResult{
			{Chunk: domain.Chunk{Position: 4, Content: "Submissions close\n on Friday."}, Distance: 0.25},
		},
	}})

	assert.NotContains(t, v.Transcript(), "Submissions close")

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyCtrlS})

	assert.True(t, v.ShowSources())
	assert.Contains(t, v.Transcript(), "[1] #4 (0.250) Submissions close on Friday.")
}

func TestView_Clear(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})
	v = typeText(v, "q")
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	v, _ = v.Update(messages.AnswerReceived{Question: "q", Answer: &domain.Answer{Text: "a"}})
	require.Equal(t, 1, v.Exchanges())

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyCtrlL})

	assert.Equal(t, 0, v.Exchanges())
}

func TestView_Clear_KeepsPending(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})
	v = typeText(v, "q")
	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEnter})

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyCtrlL})

	assert.Equal(t, 1, v.Exchanges())
	assert.Equal(t, status.StateThinking, v.StatusBar().State())
}

func TestView_EscClearsInput(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})
	v = typeText(v, "draft")

	v, _ = v.Update(tea.KeyMsg{Type: tea.KeyEsc})

	assert.Empty(t, v.input.Value())
}

func TestView_StatusRefreshed(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})

	v, _ = v.Update(messages.StatusRefreshed{Status: domain.IngestionStatus{SnapshotVersion: 1, DocumentID: "doc"}})

	assert.Equal(t, status.StateReady, v.StatusBar().State())
	assert.Contains(t, v.View(), "doc (v1)")
}

func TestView_ErrorOccurred(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})

	v, _ = v.Update(messages.ErrorOccurred{Err: errors.New("lost connection")})

	assert.Equal(t, status.StateError, v.StatusBar().State())
	assert.Equal(t, "lost connection", v.StatusBar().Message())
}

func TestView_WindowSize(t *testing.T) {
	v := NewView(nil, nil, &mockQueryService{})

	v, _ = v.Update(tea.WindowSizeMsg{Width: 120, Height: 40})

	assert.Equal(t, 120, v.width)
	assert.Equal(t, 40-chromeHeight, v.transcript.Height)
	assert.Equal(t, 120, v.StatusBar().Width())
}

func TestView_UsesContext(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "marker")
	var seen any
	query := &mockQueryService{askFunc: func(ctx context.Context, q string) (*domain.Answer, error) {
		seen = ctx.Value(ctxKey{})
		return &domain.Answer{Text: "ok"}, nil
	}}
	v := NewView(nil, nil, query).WithContext(ctx)

	v = typeText(v, "q")
	_, cmd := v.Update(tea.KeyMsg{Type: tea.KeyEnter})
	runBatch(t, cmd)

	assert.Equal(t, "marker", seen)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b", snippet("a\n  b", 10))
	assert.Equal(t, "abcdefg...", snippet("abcdefghijklmnop", 10))
}
