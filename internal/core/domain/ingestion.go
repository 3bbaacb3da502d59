package domain

import "time"

// IngestionState is the coordinator's position in the ingestion cycle.
type IngestionState string

// Ingestion states. The cycle is idle → detected → extracting → published → idle.
const (
	IngestionIdle       IngestionState = "idle"
	IngestionDetected   IngestionState = "detected"
	IngestionExtracting IngestionState = "extracting"
	IngestionPublished  IngestionState = "published"
)

// CanTransition reports whether the coordinator may move from s to next.
func (s IngestionState) CanTransition(next IngestionState) bool {
	switch s {
	case IngestionIdle:
		return next == IngestionDetected || next == IngestionExtracting
	case IngestionDetected:
		return next == IngestionExtracting || next == IngestionIdle
	case IngestionExtracting:
		// A failed or superseded run goes straight back to idle, or on to
		// the next queued document.
		return next == IngestionPublished || next == IngestionIdle || next == IngestionExtracting
	case IngestionPublished:
		return next == IngestionIdle || next == IngestionExtracting
	default:
		return false
	}
}

// String returns the string representation.
func (s IngestionState) String() string {
	return string(s)
}

// IngestionPolicy decides what happens to a notification that arrives
// while another document is being extracted.
type IngestionPolicy string

// Available ingestion policies.
const (
	// PolicyQueue finishes the current run, then processes only the newest pending document.
	PolicyQueue IngestionPolicy = "queue"

	// PolicySupersede cancels the current run and restarts with the newest document.
	PolicySupersede IngestionPolicy = "supersede"
)

// IsValid returns true if the policy is recognised.
func (p IngestionPolicy) IsValid() bool {
	return p == PolicyQueue || p == PolicySupersede
}

// String returns the string representation.
func (p IngestionPolicy) String() string {
	return string(p)
}

// IngestionOutcome is how an ingestion run ended.
type IngestionOutcome string

// Ingestion outcomes.
const (
	OutcomeRunning    IngestionOutcome = "running"
	OutcomePublished  IngestionOutcome = "published"
	OutcomeEmpty      IngestionOutcome = "empty"
	OutcomeFailed     IngestionOutcome = "failed"
	OutcomeSuperseded IngestionOutcome = "superseded"
)

// IngestionRun is the ledger record of one pass over a delivered document.
type IngestionRun struct {
	ID           string
	DocumentPath string
	Outcome      IngestionOutcome
	StartedAt    time.Time
	EndedAt      time.Time

	Pages         int
	PageFailures  int
	Links         int
	Fetched       int
	FetchFailures int
	Chunks        int

	// SnapshotVersion is the cache version published by this run, or zero.
	SnapshotVersion uint64

	// Error is the failure message for failed runs.
	Error string
}

// Duration returns how long the run took, or zero while it is running.
func (r *IngestionRun) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// IngestionStatus is a point-in-time view of the coordinator.
type IngestionStatus struct {
	State       IngestionState
	Policy      IngestionPolicy
	CurrentPath string
	PendingPath string
	LastSeen    string

	// SnapshotVersion and DocumentID describe the published snapshot, if any.
	SnapshotVersion uint64
	DocumentID      string

	LastRun *IngestionRun
}

// Ready reports whether a snapshot has been published.
func (s IngestionStatus) Ready() bool {
	return s.SnapshotVersion > 0
}
