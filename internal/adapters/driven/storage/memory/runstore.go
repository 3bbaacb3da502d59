package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure RunStore implements the interface.
var _ driven.IngestionRunStore = (*RunStore)(nil)

// RunStore is an in-memory implementation of driven.IngestionRunStore.
// History is lost on restart.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]domain.IngestionRun
	seq  map[string]int
	next int
}

// NewRunStore creates a new in-memory run store.
func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]domain.IngestionRun),
		seq:  make(map[string]int),
	}
}

// Save stores or updates a run.
func (s *RunStore) Save(_ context.Context, run *domain.IngestionRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seq[run.ID]; !ok {
		s.seq[run.ID] = s.next
		s.next++
	}
	s.runs[run.ID] = *run
	return nil
}

// Get retrieves a run by ID.
func (s *RunStore) Get(_ context.Context, id string) (*domain.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// List returns up to limit runs, most recent first.
func (s *RunStore) List(_ context.Context, limit int) ([]domain.IngestionRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := s.sorted()
	if limit < 0 {
		limit = 0
	}
	if limit < len(runs) {
		runs = runs[:limit]
	}
	return runs, nil
}

// Prune keeps only the most recent keep runs.
func (s *RunStore) Prune(_ context.Context, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	runs := s.sorted()
	for i := keep; i < len(runs); i++ {
		delete(s.runs, runs[i].ID)
		delete(s.seq, runs[i].ID)
	}
	return nil
}

// Close is a no-op.
func (s *RunStore) Close() error {
	return nil
}

// sorted returns runs by start time descending, newest insert first on ties.
// Callers must hold the lock.
func (s *RunStore) sorted() []domain.IngestionRun {
	runs := make([]domain.IngestionRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return s.seq[runs[i].ID] > s.seq[runs[j].ID]
	})
	return runs
}
