// Package ask provides the question and answer view for the TUI.
package ask

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/input"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/components/status"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
)

// Rows used by everything except the transcript: header, input box,
// status bar and the blank lines between them.
const chromeHeight = 8

// snippetLength bounds a source passage in the transcript.
const snippetLength = 160

// exchange is one question and its answer.
type exchange struct {
	question string
	answer   *domain.Answer
	err      error
	pending  bool
}

// View is the ask view: a scrolling transcript above a question input.
type View struct {
	styles     *styles.Styles
	keymap     *keymap.KeyMap
	input      *input.QuestionInput
	statusbar  *status.Bar
	transcript viewport.Model
	spinner    spinner.Model

	query driving.QueryService
	ctx   context.Context

	history     []exchange
	showSources bool
	thinking    bool

	width  int
	height int
}

// NewView creates a new ask view.
func NewView(s *styles.Styles, km *keymap.KeyMap, query driving.QueryService) *View {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(s.Spinner),
	)

	v := &View{
		styles:     s,
		keymap:     km,
		input:      input.NewQuestionInput(s),
		statusbar:  status.NewBar(s, km),
		transcript: viewport.New(80, 24-chromeHeight),
		spinner:    sp,
		query:      query,
		ctx:        context.Background(),
		width:      80,
		height:     24,
	}
	v.refresh()
	return v
}

// WithContext sets the context used for questions.
func (v *View) WithContext(ctx context.Context) *View {
	v.ctx = ctx
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return v.input.Init()
}

// Update handles messages for the ask view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetDimensions(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.AnswerReceived:
		v.handleAnswer(msg)
		return v, nil

	case messages.StatusRefreshed:
		v.statusbar.SetIngestion(msg.Status)
		return v, nil

	case messages.ErrorOccurred:
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(msg.Err.Error())
		return v, nil

	case spinner.TickMsg:
		if !v.thinking {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		v.refresh()
		return v, cmd
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	keyStr := msg.String()

	switch {
	case keymap.Matches(keyStr, v.keymap.Ask):
		return v, v.submit()

	case keymap.Matches(keyStr, v.keymap.Sources):
		v.showSources = !v.showSources
		v.refresh()
		return v, nil

	case keymap.Matches(keyStr, v.keymap.ScrollUp):
		v.transcript.HalfViewUp()
		return v, nil

	case keymap.Matches(keyStr, v.keymap.ScrollDown):
		v.transcript.HalfViewDown()
		return v, nil

	case keymap.Matches(keyStr, v.keymap.Clear):
		v.clearHistory()
		return v, nil

	case keymap.Matches(keyStr, v.keymap.Back):
		v.input.Reset()
		return v, nil
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// submit sends the typed question. One question is in flight at a time.
func (v *View) submit() tea.Cmd {
	question := strings.TrimSpace(v.input.Value())
	if question == "" || v.thinking || v.query == nil {
		return nil
	}

	v.input.Reset()
	v.thinking = true
	v.history = append(v.history, exchange{question: question, pending: true})
	v.statusbar.SetState(status.StateThinking)
	v.refresh()
	v.transcript.GotoBottom()

	return tea.Batch(v.ask(question), v.spinner.Tick)
}

// ask runs the question off the update loop.
func (v *View) ask(question string) tea.Cmd {
	ctx := v.ctx
	query := v.query
	return func() tea.Msg {
		answer, err := query.Ask(ctx, question)
		return messages.AnswerReceived{Question: question, Answer: answer, Err: err}
	}
}

func (v *View) handleAnswer(msg messages.AnswerReceived) {
	for i := len(v.history) - 1; i >= 0; i-- {
		e := &v.history[i]
		if e.pending && e.question == msg.Question {
			e.pending = false
			e.answer = msg.Answer
			e.err = msg.Err
			break
		}
	}

	v.thinking = false
	if msg.Err != nil {
		v.statusbar.SetState(status.StateError)
		v.statusbar.SetMessage(errorText(msg.Err))
	} else {
		v.statusbar.Clear()
	}
	v.refresh()
	v.transcript.GotoBottom()
}

// clearHistory drops finished exchanges and keeps one still in flight.
func (v *View) clearHistory() {
	kept := v.history[:0]
	for _, e := range v.history {
		if e.pending {
			kept = append(kept, e)
		}
	}
	v.history = kept
	v.statusbar.Clear()
	if v.thinking {
		v.statusbar.SetState(status.StateThinking)
	}
	v.refresh()
}

// refresh re-renders the transcript into the viewport.
func (v *View) refresh() {
	v.transcript.SetContent(v.renderTranscript())
}

func (v *View) renderTranscript() string {
	if len(v.history) == 0 {
		return v.styles.Muted.Render("Ask a question about the current document.")
	}

	textWidth := max(v.width-6, 20)
	var b strings.Builder
	for i, e := range v.history {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(v.styles.Question.Width(textWidth).Render("> " + e.question))
		b.WriteString("\n")

		switch {
		case e.pending:
			b.WriteString(v.styles.Answer.Render(v.spinner.View() + " thinking"))
		case e.err != nil:
			b.WriteString(v.styles.Error.PaddingLeft(2).Width(textWidth).Render(errorText(e.err)))
		case e.answer != nil:
			b.WriteString(v.styles.Answer.Width(textWidth).Render(e.answer.Text))
			if v.showSources {
				b.WriteString(v.renderSources(e.answer.Sources, textWidth))
			}
		}
	}
	return b.String()
}

func (v *View) renderSources(sources []domain.RetrievalResult, width int) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	for i, src := range sources {
		line := fmt.Sprintf("[%d] #%d (%.3f) %s", i+1, src.Chunk.Position, src.Distance,
			snippet(src.Chunk.Content, snippetLength))
		b.WriteString("\n")
		b.WriteString(v.styles.Source.Width(width).Render(line))
	}
	return b.String()
}

// View renders the ask view.
func (v *View) View() string {
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		v.styles.Title.Render("sercha-rag"),
		v.styles.Muted.Render("  answers from the current document"),
	)

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		"",
		v.transcript.View(),
		"",
		v.input.View(),
		v.statusbar.View(),
	)
}

// SetDimensions sets the view dimensions.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.input.SetWidth(width)
	v.statusbar.SetWidth(width)
	v.transcript.Width = width
	v.transcript.Height = max(height-chromeHeight, 3)
	v.refresh()
}

// SetStatus records the ingestion status shown in the status bar.
func (v *View) SetStatus(s domain.IngestionStatus) {
	v.statusbar.SetIngestion(s)
}

// Thinking reports whether a question is waiting for its answer.
func (v *View) Thinking() bool {
	return v.thinking
}

// ShowSources reports whether source passages are shown.
func (v *View) ShowSources() bool {
	return v.showSources
}

// Exchanges returns the number of questions in the transcript.
func (v *View) Exchanges() int {
	return len(v.history)
}

// Transcript returns the rendered transcript.
func (v *View) Transcript() string {
	return v.renderTranscript()
}

// StatusBar returns the status bar.
func (v *View) StatusBar() *status.Bar {
	return v.statusbar
}

// errorText turns service errors into something to show the user.
func errorText(err error) string {
	var modelErr *domain.ModelInvocationError
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return "No document has been ingested yet."
	case errors.Is(err, context.DeadlineExceeded):
		return "The model took too long to answer."
	case errors.As(err, &modelErr):
		return "The model failed: " + modelErr.Error()
	}
	return err.Error()
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
