package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Summariser implements the interface.
var _ driven.PromptStoreAware = (*Summariser)(nil)

// DefaultSummaryGroupSize is the approximate number of characters of
// chunk text summarised per model call.
const DefaultSummaryGroupSize = 3000

// DefaultSummaryCombinePrompt is the fallback prompt when no PromptStore is configured.
const DefaultSummaryCombinePrompt = `Combine the following partial summaries of one document into a single coherent summary.
Keep every distinct fact, remove repetition, and do not add information.

Partial summaries:
%s

Summary:`

// SummaryConfig configures the document summary.
type SummaryConfig struct {
	// Path is where the summary is written.
	Path string

	// MaxLength bounds each partial summary, in characters.
	MaxLength int

	// GroupSize is how many characters of chunk text go into one partial summary.
	GroupSize int

	// Timeout bounds the whole summary.
	Timeout time.Duration
}

// DocumentSummary is the combined summary of a document plus the partial
// summaries it was built from, in document order.
type DocumentSummary struct {
	Final    string
	Sections []string
}

// Format renders the summary file: the final summary, then each section.
func (d *DocumentSummary) Format() string {
	var b strings.Builder
	b.WriteString("FINAL SUMMARY\n\n")
	b.WriteString(d.Final)
	b.WriteString("\n\nDETAILED SECTION SUMMARIES\n")
	for i, section := range d.Sections {
		fmt.Fprintf(&b, "\n--- Section %d ---\n%s\n", i+1, section)
	}
	return b.String()
}

// Summariser writes a summary of each published document to a file.
type Summariser struct {
	llm         driven.LLMService
	promptStore driven.PromptStore
	config      SummaryConfig
}

// NewSummariser creates a summariser.
func NewSummariser(llm driven.LLMService, config SummaryConfig) *Summariser {
	if config.GroupSize <= 0 {
		config.GroupSize = DefaultSummaryGroupSize
	}
	if config.MaxLength <= 0 {
		config.MaxLength = 800
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Minute
	}
	return &Summariser{llm: llm, config: config}
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (s *Summariser) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// Hook returns a PublishHook that summarises each snapshot. Failures are
// logged; the published snapshot is never affected.
func (s *Summariser) Hook() PublishHook {
	return func(ctx context.Context, snap *Snapshot) {
		summary, err := s.Summarise(ctx, snap)
		if err != nil {
			logger.Warn("summarise %s: %v", snap.DocumentID, err)
			return
		}
		if err := s.write(summary.Format()); err != nil {
			logger.Warn("write summary: %v", err)
			return
		}
		logger.Info("Summary written to %s", s.config.Path)
	}
}

// Summarise summarises groups of chunks, then combines the partial
// summaries into one.
func (s *Summariser) Summarise(ctx context.Context, snap *Snapshot) (*DocumentSummary, error) {
	if s.llm == nil {
		return nil, domain.ErrLLMUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	groups := groupChunks(snap.Chunks, s.config.GroupSize)
	partials := make([]string, 0, len(groups))
	for i, group := range groups {
		partial, err := s.llm.Summarise(ctx, group, s.config.MaxLength)
		if err != nil {
			return nil, domain.NewModelInvocationError(ctx, s.llm.ModelName(), "summarise", err)
		}
		logger.Debug("Summarised part %d/%d", i+1, len(groups))
		partials = append(partials, strings.TrimSpace(partial))
	}

	if len(partials) <= 1 {
		return &DocumentSummary{Final: strings.Join(partials, ""), Sections: partials}, nil
	}

	template := DefaultSummaryCombinePrompt
	if s.promptStore != nil {
		if p, err := s.promptStore.Load(driven.PromptSummaryCombine); err == nil && p != "" {
			template = p
		}
	}

	combined, err := s.llm.Generate(ctx, fmt.Sprintf(template, strings.Join(partials, "\n\n")), driven.GenerateOptions{})
	if err != nil {
		return nil, domain.NewModelInvocationError(ctx, s.llm.ModelName(), "generate", err)
	}
	return &DocumentSummary{Final: strings.TrimSpace(combined), Sections: partials}, nil
}

// write replaces the summary file atomically.
func (s *Summariser) write(summary string) error {
	if s.config.Path == "" {
		return fmt.Errorf("%w: no summary path", domain.ErrInvalidInput)
	}
	dir := filepath.Dir(s.config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create summary directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".summary-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.WriteString(summary + "\n"); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), s.config.Path)
}

// groupChunks joins consecutive chunk contents into groups of roughly size
// characters. A chunk larger than size forms its own group.
func groupChunks(chunks []domain.Chunk, size int) []string {
	var groups []string
	var b strings.Builder
	for _, c := range chunks {
		if b.Len() > 0 && b.Len()+len(c.Content) > size {
			groups = append(groups, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(c.Content)
	}
	if b.Len() > 0 {
		groups = append(groups, b.String())
	}
	return groups
}
