package file

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads LLM prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to embedded defaults.
//
// The store uses lazy initialisation - files are only created when first accessed,
// not in the constructor. This makes testing easier and avoids unexpected I/O.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts contains embedded default prompts.
// These are used when user files don't exist and as the initial content for new files.
//
//nolint:lll // Prompt content is intentionally long and should not be wrapped.
var defaultPrompts = map[string]string{
	driven.PromptAnswer: `You answer questions about a single document using only the context below.
If the context does not contain the answer, reply that the document does not contain this information.
Do not use prior knowledge and do not guess.

Context:
%s

Question: %s

Answer:`,

	driven.PromptQueryRewrite: `Rewrite this question as a search query over a single document. Add synonyms and key terms, fix typos.
Return ONLY the rewritten query, nothing else.

Original: %s
Rewritten:`,

	driven.PromptSummarise: `Summarise the following part of a document in %d characters or less.
Keep names, figures, dates and conclusions.

Content:
%s

Summary:`,

	driven.PromptSummaryCombine: `Combine the following partial summaries of one document into a single coherent summary.
Keep every distinct fact, remove repetition, and do not add information.

Partial summaries:
%s

Summary:`,
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.sercha-rag/prompts/.
//
// The constructor does not perform any I/O - directory creation and
// file writes happen lazily on first Load() call.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, DefaultDirName, "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// Load returns the prompt template for the given name.
// On first call, initialises the prompt directory and creates default files.
// Returns cached value if available, otherwise loads from file.
// Falls back to embedded default if file doesn't exist.
func (s *PromptStore) Load(name string) (string, error) {
	// Ensure directory and defaults exist (lazy init)
	s.initOnce.Do(s.initialise)
	if s.initErr != nil {
		// Fall back to embedded defaults if init failed
		if prompt, ok := defaultPrompts[name]; ok {
			return prompt, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	// Check cache first (read lock)
	s.mu.RLock()
	if prompt, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		return prompt, nil
	}
	s.mu.RUnlock()

	// Load from file (no lock held during I/O)
	prompt, err := s.loadFromFile(name)
	if err == nil {
		err = ValidateTemplate(name, prompt)
		if err != nil {
			logger.Warn("%v; using the built-in prompt", err)
		}
	}
	if err != nil {
		// Fall back to embedded default
		if defaultPrompt, ok := defaultPrompts[name]; ok {
			return defaultPrompt, nil
		}
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	}

	// Cache the result (write lock)
	// Use double-check pattern to avoid overwriting concurrent loads
	s.mu.Lock()
	if _, ok := s.cache[name]; !ok {
		s.cache[name] = prompt
	} else {
		// Another goroutine loaded it first, use their value
		prompt = s.cache[name]
	}
	s.mu.Unlock()

	return prompt, nil
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
// Called once via sync.Once on first Load().
func (s *PromptStore) initialise() {
	// Create directory
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	// Create README
	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ValidateTemplate checks that a user prompt uses the same placeholders,
// in the same order, as the built-in prompt of that name. A stray "%" would
// otherwise be sent to the model as formatting noise.
func ValidateTemplate(name, prompt string) error {
	def, ok := defaultPrompts[name]
	if !ok {
		return nil
	}
	want, got := templateVerbs(def), templateVerbs(prompt)
	if slices.Equal(want, got) {
		return nil
	}
	return fmt.Errorf("%w: prompt %s.txt has placeholders %q, want %q (write %%%% for a literal %%)",
		domain.ErrInvalidInput, name, got, want)
}

// templateVerbs returns the fmt verbs in template in order. "%%" is a
// literal percent sign and is skipped.
func templateVerbs(template string) []string {
	var verbs []string
	for i := 0; i < len(template); i++ {
		if template[i] != '%' {
			continue
		}
		if i+1 < len(template) && template[i+1] == '%' {
			i++
			continue
		}
		j := i + 1
		for j < len(template) && strings.IndexByte("+-# 0123456789.*[]", template[j]) >= 0 {
			j++
		}
		if j >= len(template) {
			verbs = append(verbs, template[i:])
			break
		}
		verbs = append(verbs, template[i:j+1])
		i = j
	}
	return verbs
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# sercha-rag Prompts

This directory contains the prompts sercha-rag sends to the language model.

## Files

- ` + "`answer.txt`" + ` - Answers a question from retrieved passages only
- ` + "`query_rewrite.txt`" + ` - Expands a question before retrieval (query.rewrite)
- ` + "`summarise.txt`" + ` - Summarises one part of an ingested document (summary.enabled)
- ` + "`summary_combine.txt`" + ` - Merges partial summaries into one

## Customisation

Edit any file to change the model's behaviour. Changes take effect on the
next command, or after restarting ` + "`sercha-rag serve`" + `.

## Format Placeholders

Prompts use Go fmt placeholders, filled in this order:
- ` + "`answer`" + `: ` + "`%s`" + ` context passages, then ` + "`%s`" + ` question
- ` + "`query_rewrite`" + `: ` + "`%s`" + ` question
- ` + "`summarise`" + `: ` + "`%d`" + ` max length, then ` + "`%s`" + ` content
- ` + "`summary_combine`" + `: ` + "`%s`" + ` partial summaries

Keep the placeholders in the same order when editing, and write ` + "`%%`" + ` for a
literal percent sign. A prompt whose placeholders do not match is ignored
and the built-in prompt is used instead.
`
	return os.WriteFile(path, []byte(content), 0600)
}
