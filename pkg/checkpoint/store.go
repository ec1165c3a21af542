package checkpoint

import (
	"context"
)

// Store defines the interface for checkpoint persistence.
// Implementations must preserve two orders: the order runs were first seen,
// and the append order of checkpoints within each run. Filter and List scan
// in run-insertion order, then per-run append order.
type Store interface {
	// CreateRun registers a run with an empty checkpoint list.
	// Registering an already-known run is a no-op.
	CreateRun(ctx context.Context, runID string) error

	// Append adds a checkpoint to the end of its run's list, creating the
	// run entry if it does not exist yet.
	Append(ctx context.Context, cp Checkpoint) error

	// Run returns the ordered checkpoint list for one run.
	// Returns a NotFoundError if the run is unknown.
	Run(ctx context.Context, runID string) ([]Checkpoint, error)

	// All returns every run's ordered checkpoint list, keyed by run ID.
	// The result is a copy; mutating it does not affect the store.
	All(ctx context.Context) (map[string][]Checkpoint, error)

	// Filter returns the checkpoints matching every supplied predicate, in
	// global order. An empty filter returns everything.
	Filter(ctx context.Context, f Filter) ([]Checkpoint, error)

	// Prune removes a run and its checkpoints. Unknown runs are a no-op.
	// The store never prunes automatically.
	Prune(ctx context.Context, runID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Filter holds optional equality predicates combined with logical AND.
// Empty fields impose no constraint. Event type predicates compare the
// event's type tag only, never its payload; an unknown tag matches nothing.
type Filter struct {
	// LastCompletedStep matches checkpoints by completed step name.
	LastCompletedStep string

	// InputEventType matches checkpoints by their input event's type tag.
	InputEventType string

	// OutputEventType matches checkpoints by their output event's type tag.
	OutputEventType string
}

// Matches reports whether cp satisfies every supplied predicate.
func (f Filter) Matches(cp Checkpoint) bool {
	if f.LastCompletedStep != "" && cp.LastCompletedStep != f.LastCompletedStep {
		return false
	}
	if f.InputEventType != "" && cp.InputEvent.Type != f.InputEventType {
		return false
	}
	if f.OutputEventType != "" && cp.OutputEvent.Type != f.OutputEventType {
		return false
	}
	return true
}
