package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Ensure Coordinator implements the interface.
var _ driving.IngestionService = (*Coordinator)(nil)

// DefaultPollInterval is how often the notification is read.
const DefaultPollInterval = 3 * time.Second

// historyKeep is how many runs the ledger retains.
const historyKeep = 100

// PublishHook runs after a snapshot is published, in the background and
// outside the single-run lock. Hooks must not modify the snapshot; their
// failures never affect it.
type PublishHook func(ctx context.Context, snap *Snapshot)

// CoordinatorConfig configures the ingestion coordinator.
type CoordinatorConfig struct {
	PollInterval time.Duration
	Policy       domain.IngestionPolicy
}

// Coordinator watches the notification source and drives one ingestion at
// a time through the pipeline, publishing each result to the cache.
//
// A poll goroutine detects new notifications and never blocks on
// extraction; a single worker goroutine runs the pipeline. A notification
// that arrives mid-run is handled by the configured policy: queue keeps
// only the newest pending path, supersede cancels the in-flight run.
type Coordinator struct {
	source   driven.NotificationSource
	pipeline *Pipeline
	cache    *DocumentCache
	runs     driven.IngestionRunStore
	config   CoordinatorConfig

	hooks    []PublishHook
	progress ProgressFunc

	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	cancel        context.CancelFunc
	wake          chan struct{}
	state         domain.IngestionState
	lastSeen      string
	current       string
	pending       string
	cancelCurrent context.CancelCauseFunc
	lastRun       *domain.IngestionRun

	// runMu ensures only one ingestion is ever extracting.
	runMu   sync.Mutex
	wg      sync.WaitGroup
	hooksWg sync.WaitGroup
}

// NewCoordinator creates a coordinator. source and runs may be nil: without
// a source only IngestNow ingests, and without a store history is not kept.
func NewCoordinator(
	source driven.NotificationSource,
	pipeline *Pipeline,
	cache *DocumentCache,
	runs driven.IngestionRunStore,
	config CoordinatorConfig,
) *Coordinator {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if !config.Policy.IsValid() {
		config.Policy = domain.PolicyQueue
	}
	return &Coordinator{
		source:   source,
		pipeline: pipeline,
		cache:    cache,
		runs:     runs,
		config:   config,
		state:    domain.IngestionIdle,
		wake:     make(chan struct{}, 1),
	}
}

// AddPublishHook registers a hook run after every publish.
func (c *Coordinator) AddPublishHook(hook PublishHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// SetProgress sets the observer for pipeline progress.
func (c *Coordinator) SetProgress(progress ProgressFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.progress = progress
}

// Start begins watching the notification source. This method blocks until
// Stop is called or ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.source == nil {
		return fmt.Errorf("start coordinator: %w: no notification source", domain.ErrInvalidInput)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil // Already running
	}
	ctx, cancel := context.WithCancel(ctx)
	c.running = true
	c.stopCh = make(chan struct{})
	c.cancel = cancel
	stopCh := c.stopCh
	c.mu.Unlock()

	logger.Info("Polling notifications every %s (policy %s)", c.config.PollInterval, c.config.Policy)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.work(ctx, stopCh)
	}()

	return c.run(ctx, stopCh)
}

// Stop cancels any in-flight run and waits for the worker and any
// publish hooks still running to exit.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	if c.running {
		c.running = false
		close(c.stopCh)
		c.cancel()
		c.mu.Unlock()
		c.wg.Wait()
	} else {
		c.mu.Unlock()
	}

	c.hooksWg.Wait()
	return nil
}

// run is the poll loop.
func (c *Coordinator) run(ctx context.Context, stopCh <-chan struct{}) error {
	// Check the notification immediately on startup
	c.poll(ctx)

	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	changes := c.source.Changes()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			c.poll(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			c.poll(ctx)
		}
	}
}

// poll reads the notification and hands a new document to the worker.
func (c *Coordinator) poll(ctx context.Context) {
	value, err := c.source.Read(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("read notification: %v", err)
		}
		return
	}
	if value == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if value == c.lastSeen {
		return
	}
	if c.state == domain.IngestionIdle {
		c.setState(domain.IngestionDetected)
	}

	if _, err := os.Stat(value); err != nil {
		// The mover may not have finished; retry on the next poll.
		logger.Debug("notified document %s not ready: %v", value, err)
		if c.state == domain.IngestionDetected {
			c.setState(domain.IngestionIdle)
		}
		return
	}

	logger.Info("New document: %s", value)
	c.lastSeen = value
	c.pending = value

	if c.current != "" && c.config.Policy == domain.PolicySupersede && c.cancelCurrent != nil {
		logger.Info("Superseding %s", c.current)
		c.cancelCurrent(domain.ErrSuperseded)
	}

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// work is the single worker goroutine.
func (c *Coordinator) work(ctx context.Context, stopCh <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-c.wake:
		}

		for {
			c.mu.Lock()
			path := c.pending
			if path == "" {
				c.mu.Unlock()
				break
			}
			c.pending = ""
			runCtx, cancel := context.WithCancelCause(ctx)
			c.cancelCurrent = cancel
			c.mu.Unlock()

			_, err := c.execute(runCtx, path)
			cancel(nil)
			if err != nil && !errors.Is(err, domain.ErrEmptyContent) && !errors.Is(err, domain.ErrSuperseded) {
				logger.Error("ingest %s: %v", path, err)
			}

			c.mu.Lock()
			c.cancelCurrent = nil
			c.mu.Unlock()

			if ctx.Err() != nil {
				return
			}
		}
	}
}

// IngestNow synchronously ingests path, sharing the single-run lock with
// the background worker. The returned run describes the outcome; err is
// non-nil for every outcome other than published.
func (c *Coordinator) IngestNow(ctx context.Context, path string) (*domain.IngestionRun, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", domain.ErrInvalidInput)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	return c.execute(runCtx, abs)
}

// execute runs one ingestion, then hands a published snapshot to the
// publish hooks without holding up the next run.
func (c *Coordinator) execute(ctx context.Context, path string) (*domain.IngestionRun, error) {
	run, snap, hooks, err := c.ingest(ctx, path)
	if snap == nil || len(hooks) == 0 {
		return run, err
	}

	hookCtx := context.WithoutCancel(ctx)
	c.hooksWg.Add(1)
	go func() {
		defer c.hooksWg.Done()
		for _, hook := range hooks {
			hook(hookCtx, snap)
		}
	}()
	return run, err
}

// ingest runs one ingestion under runMu and records it in the ledger. The
// snapshot is returned only when it was published.
func (c *Coordinator) ingest(
	ctx context.Context, path string,
) (*domain.IngestionRun, *Snapshot, []PublishHook, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	// Superseded while waiting for the previous run.
	if errors.Is(context.Cause(ctx), domain.ErrSuperseded) {
		return nil, nil, nil, domain.ErrSuperseded
	}

	c.mu.Lock()
	c.current = path
	c.setState(domain.IngestionExtracting)
	progress := c.progress
	hooks := append([]PublishHook(nil), c.hooks...)
	c.mu.Unlock()

	run := &domain.IngestionRun{
		ID:           uuid.New().String(),
		DocumentPath: path,
		Outcome:      domain.OutcomeRunning,
		StartedAt:    time.Now(),
	}
	c.saveRun(ctx, run)

	var snap *Snapshot
	var err error
	if _, statErr := os.Stat(path); statErr != nil {
		err = &domain.ExtractionError{Path: path, Err: domain.ErrDocumentMissing}
	} else {
		snap, err = c.pipeline.Run(ctx, path, run, progress)
	}
	run.EndedAt = time.Now()

	switch {
	case err == nil:
		run.SnapshotVersion = c.cache.Publish(snap)
		run.Outcome = domain.OutcomePublished
		logger.Info("Published %s as version %d (%d chunks)", path, run.SnapshotVersion, len(snap.Chunks))
	case errors.Is(err, domain.ErrEmptyContent):
		run.Outcome = domain.OutcomeEmpty
		logger.Warn("%v", err)
	case errors.Is(context.Cause(ctx), domain.ErrSuperseded):
		run.Outcome = domain.OutcomeSuperseded
		err = domain.ErrSuperseded
	default:
		run.Outcome = domain.OutcomeFailed
	}
	if err != nil {
		run.Error = err.Error()
	}

	// Record with a fresh context so cancelled runs are still written.
	recordCtx := context.WithoutCancel(ctx)
	c.saveRun(recordCtx, run)
	c.pruneRuns(recordCtx)

	c.mu.Lock()
	c.current = ""
	c.lastRun = run
	if run.Outcome == domain.OutcomePublished {
		c.setState(domain.IngestionPublished)
	}
	if c.pending == "" || !c.running {
		c.setState(domain.IngestionIdle)
	}
	c.mu.Unlock()

	if run.Outcome != domain.OutcomePublished {
		return run, nil, nil, err
	}
	return run, snap, hooks, err
}

// Status returns a point-in-time view of the coordinator.
func (c *Coordinator) Status() domain.IngestionStatus {
	c.mu.Lock()
	status := domain.IngestionStatus{
		State:       c.state,
		Policy:      c.config.Policy,
		CurrentPath: c.current,
		PendingPath: c.pending,
		LastSeen:    c.lastSeen,
	}
	if c.lastRun != nil {
		last := *c.lastRun
		status.LastRun = &last
	}
	c.mu.Unlock()

	if snap := c.cache.Current(); snap != nil {
		status.SnapshotVersion = snap.Version
		status.DocumentID = snap.DocumentID
	}
	return status
}

// History returns the most recent runs, newest first.
func (c *Coordinator) History(ctx context.Context, limit int) ([]domain.IngestionRun, error) {
	if c.runs == nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.lastRun == nil || limit <= 0 {
			return nil, nil
		}
		return []domain.IngestionRun{*c.lastRun}, nil
	}
	return c.runs.List(ctx, limit)
}

// setState moves to next if the transition is allowed. Must hold mu.
func (c *Coordinator) setState(next domain.IngestionState) {
	if c.state == next {
		return
	}
	if !c.state.CanTransition(next) {
		logger.Debug("ignoring state transition %s -> %s", c.state, next)
		return
	}
	c.state = next
}

func (c *Coordinator) saveRun(ctx context.Context, run *domain.IngestionRun) {
	if c.runs == nil {
		return
	}
	if err := c.runs.Save(ctx, run); err != nil {
		logger.Warn("save run %s: %v", run.ID, err)
	}
}

func (c *Coordinator) pruneRuns(ctx context.Context) {
	if c.runs == nil {
		return
	}
	// Keep last 100 runs
	if err := c.runs.Prune(ctx, historyKeep); err != nil {
		logger.Warn("prune run history: %v", err)
	}
}
