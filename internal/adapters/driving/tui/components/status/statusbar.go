// Package status provides status bar components for the TUI.
package status

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/sercha-rag/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// State represents the current application state for display.
type State string

const (
	StateReady    State = "ready"
	StateWaiting  State = "waiting"
	StateThinking State = "thinking"
	StateError    State = "error"
	StateHelp     State = "help"
)

// Bar displays the current document and keybinding hints.
type Bar struct {
	styles  *styles.Styles
	keymap  *keymap.KeyMap
	state   State
	message string
	ingest  domain.IngestionStatus
	width   int
}

// NewBar creates a new status bar component.
func NewBar(s *styles.Styles, km *keymap.KeyMap) *Bar {
	if s == nil {
		s = styles.DefaultStyles()
	}
	if km == nil {
		km = keymap.DefaultKeyMap()
	}

	return &Bar{
		styles: s,
		keymap: km,
		state:  StateWaiting,
		width:  80,
	}
}

// Init initialises the status bar.
func (s *Bar) Init() tea.Cmd {
	return nil
}

// Update handles status bar messages.
func (s *Bar) Update(_ tea.Msg) (*Bar, tea.Cmd) {
	// Bar is passive, updated via Set methods
	return s, nil
}

// View renders the status bar.
func (s *Bar) View() string {
	left := s.renderLeft()
	right := s.renderRight()

	padding := s.width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		padding = 1
	}

	return s.styles.StatusBar.Width(s.width).Render(
		left + strings.Repeat(" ", padding) + right,
	)
}

func (s *Bar) renderLeft() string {
	switch s.state {
	case StateThinking:
		return s.styles.Muted.Render("Thinking...")
	case StateError:
		if s.message != "" {
			return s.styles.Error.Render(fmt.Sprintf("Error: %s", s.message))
		}
		return s.styles.Error.Render("Error")
	case StateHelp:
		return s.styles.Normal.Render("Help")
	case StateWaiting:
		if s.ingest.CurrentPath != "" {
			return s.styles.Muted.Render("Ingesting " + filepath.Base(s.ingest.CurrentPath) + "...")
		}
		return s.styles.Muted.Render("Waiting for a document")
	case StateReady:
	}
	return s.styles.Normal.Render(s.documentLabel())
}

// documentLabel names the published document and its snapshot.
func (s *Bar) documentLabel() string {
	if !s.ingest.Ready() {
		return "Ready"
	}
	name := s.ingest.DocumentID
	if s.ingest.LastRun != nil && s.ingest.LastRun.DocumentPath != "" {
		name = filepath.Base(s.ingest.LastRun.DocumentPath)
	}
	label := fmt.Sprintf("%s (v%d)", name, s.ingest.SnapshotVersion)
	if s.ingest.CurrentPath != "" {
		label += " | updating"
	}
	return label
}

func (s *Bar) renderRight() string {
	bindings := s.keymap.ShortHelp()
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, fmt.Sprintf("%s: %s", h.Key, h.Desc))
	}
	return s.styles.Muted.Render(strings.Join(hints, " | "))
}

// SetState sets the current state.
func (s *Bar) SetState(state State) {
	s.state = state
}

// State returns the current state.
func (s *Bar) State() State {
	return s.state
}

// SetMessage sets a custom message.
func (s *Bar) SetMessage(message string) {
	s.message = message
}

// Message returns the current message.
func (s *Bar) Message() string {
	return s.message
}

// SetIngestion records the latest ingestion status. A bar that is not
// showing an answer in progress or an error follows the snapshot.
func (s *Bar) SetIngestion(status domain.IngestionStatus) {
	s.ingest = status
	if s.state == StateReady || s.state == StateWaiting {
		if status.Ready() {
			s.state = StateReady
		} else {
			s.state = StateWaiting
		}
	}
}

// Ingestion returns the last recorded ingestion status.
func (s *Bar) Ingestion() domain.IngestionStatus {
	return s.ingest
}

// SetWidth sets the status bar width.
func (s *Bar) SetWidth(width int) {
	s.width = width
}

// Width returns the current width.
func (s *Bar) Width() int {
	return s.width
}

// Clear returns the bar to the state implied by the ingestion status.
func (s *Bar) Clear() {
	s.message = ""
	s.state = StateWaiting
	s.SetIngestion(s.ingest)
}
