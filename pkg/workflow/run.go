package workflow

import (
	"context"
	"sync"
	"time"
)

// Run is the handle to an in-flight or completed workflow execution.
// Callers await it with Wait, exactly as they would without checkpointing.
type Run struct {
	id        string
	workflow  string
	startedAt time.Time

	done chan struct{}

	mu     sync.Mutex
	result Event
	err    error
}

func newRun(id, workflow string) *Run {
	return &Run{
		id:        id,
		workflow:  workflow,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// ID returns the run's unique identifier.
func (r *Run) ID() string {
	return r.id
}

// Workflow returns the name of the workflow this run executes.
func (r *Run) Workflow() string {
	return r.workflow
}

// StartedAt returns when the run was started.
func (r *Run) StartedAt() time.Time {
	return r.startedAt
}

// Done returns a channel closed when the run completes or fails.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run resolves or ctx is cancelled, returning the final
// event (the terminal step's output) or the run's failure.
func (r *Run) Wait(ctx context.Context) (Event, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Result returns the final event and error without blocking.
// Only meaningful after Done is closed.
func (r *Run) Result() (Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// finish records the run's outcome and releases waiters. Idempotent.
func (r *Run) finish(result Event, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return
	default:
	}

	r.result = result
	r.err = err
	close(r.done)
}
