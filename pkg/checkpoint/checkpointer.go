package checkpoint

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/savepoint/internal/log"
	"github.com/tombee/savepoint/internal/metrics"
	"github.com/tombee/savepoint/pkg/errors"
	"github.com/tombee/savepoint/pkg/workflow"
)

// Checkpointer wraps a workflow engine so that every enabled step completion
// is captured as a resumable Checkpoint. It owns the checkpoint store and the
// enabled-steps set; construct one per engine and share it by reference.
type Checkpointer struct {
	engine *workflow.Engine
	store  Store
	logger *slog.Logger

	mu      sync.RWMutex
	enabled map[string]struct{}
	lastErr error
}

// Option configures a Checkpointer.
type Option func(*Checkpointer)

// WithStore sets the checkpoint store. Defaults to an in-memory store.
func WithStore(store Store) Option {
	return func(c *Checkpointer) {
		c.store = store
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checkpointer) {
		c.logger = logger
	}
}

// New creates a Checkpointer for the given engine.
// Every workflow step starts enabled; the engine has no separate sink step
// (run completion itself plays that role), so there is nothing to exclude.
func New(engine *workflow.Engine, opts ...Option) *Checkpointer {
	c := &Checkpointer{
		engine:  engine,
		store:   NewMemoryStore(),
		logger:  slog.Default(),
		enabled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.WithComponent(c.logger, "checkpointer")

	for _, step := range engine.Workflow().Steps() {
		c.enabled[step] = struct{}{}
	}
	return c
}

// Run starts a new observed run. Inputs are forwarded verbatim to the engine;
// the returned handle is the engine's, awaited exactly as without
// checkpointing.
func (c *Checkpointer) Run(ctx context.Context, inputs map[string]any) (*workflow.Run, error) {
	runID := uuid.NewString()

	// Register the run up front so an empty checkpoint list is visible even
	// before the first step completes. Failure here is non-fatal: the run
	// proceeds, later appends will retry registration.
	if err := c.store.CreateRun(ctx, runID); err != nil {
		c.recordFailure("store", runID, err)
	}

	return c.engine.Run(ctx, inputs,
		workflow.WithRunID(runID),
		workflow.WithObserver(c.observe),
	)
}

// RunFrom starts a new run that resumes from the given checkpoint: the run
// context is restored from the checkpoint's stored state and the checkpoint's
// output event is fed to the step after LastCompletedStep. The checkpoint is
// never mutated and need not belong to a run the store still knows about.
// Returns a StepMismatchError if the engine's workflow has no such step.
func (c *Checkpointer) RunFrom(ctx context.Context, cp Checkpoint) (*workflow.Run, error) {
	runID := uuid.NewString()

	// Work on a copy so the engine never aliases the caller's checkpoint
	cp = cp.Clone()

	run, err := c.engine.Resume(ctx, cp.LastCompletedStep, cp.OutputEvent, cp.ContextState,
		workflow.WithRunID(runID),
		workflow.WithObserver(c.observe),
	)
	if err != nil {
		return nil, err
	}

	if serr := c.store.CreateRun(ctx, runID); serr != nil {
		c.recordFailure("store", runID, serr)
	}
	return run, nil
}

// observe is the engine observer: it captures a checkpoint for every enabled
// step completion. Failures are reported, never propagated into the run.
func (c *Checkpointer) observe(ctx context.Context, completion workflow.StepCompletion) error {
	c.mu.RLock()
	_, enabled := c.enabled[completion.Step]
	c.mu.RUnlock()
	if !enabled {
		return nil
	}

	state, err := completion.Context.Snapshot()
	if err != nil {
		c.recordFailure("serialize", completion.RunID, err)
		return &errors.StorageError{Op: "serialize", RunID: completion.RunID, Cause: err}
	}

	cp := Checkpoint{
		ID:                uuid.NewString(),
		RunID:             completion.RunID,
		LastCompletedStep: completion.Step,
		InputEvent:        completion.Input.Clone(),
		OutputEvent:       completion.Output.Clone(),
		ContextState:      state,
		CreatedAt:         time.Now(),
	}

	if err := c.store.Append(ctx, cp); err != nil {
		c.recordFailure("store", completion.RunID, err)
		return &errors.StorageError{Op: "append", RunID: completion.RunID, Cause: err}
	}

	metrics.RecordCheckpointStored(completion.Step)
	c.logger.Debug("checkpoint stored",
		slog.String(log.CheckpointIDKey, cp.ID),
		slog.String(log.RunIDKey, cp.RunID),
		slog.String(log.StepKey, cp.LastCompletedStep),
	)
	return nil
}

// Filter returns all stored checkpoints matching every supplied predicate, in
// run-insertion order then per-run append order. An empty filter returns
// every checkpoint ever stored. The result is a fresh copy each call.
func (c *Checkpointer) Filter(ctx context.Context, f Filter) ([]Checkpoint, error) {
	return c.store.Filter(ctx, f)
}

// Checkpoints returns the full store as a mapping from run ID to its ordered
// checkpoint list, by value: mutating the result does not affect the store.
func (c *Checkpointer) Checkpoints(ctx context.Context) (map[string][]Checkpoint, error) {
	return c.store.All(ctx)
}

// EnableStep adds a step to the enabled-steps set. Idempotent; the step name
// is not validated against the workflow, and the change applies immediately,
// including to runs already in flight.
func (c *Checkpointer) EnableStep(step string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled[step] = struct{}{}
}

// DisableStep removes a step from the enabled-steps set. Idempotent.
// Checkpoints already stored for the step are never retracted.
func (c *Checkpointer) DisableStep(step string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.enabled, step)
}

// EnabledSteps returns the enabled-steps set as a sorted slice.
// Mutating the result does not affect the checkpointer.
func (c *Checkpointer) EnabledSteps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	steps := make([]string, 0, len(c.enabled))
	for step := range c.enabled {
		steps = append(steps, step)
	}
	sort.Strings(steps)
	return steps
}

// LastErr returns the most recent non-fatal checkpoint failure, or nil.
// Storage failures never abort a run, but they are not silently swallowed
// either: callers who care can poll here after a run resolves.
func (c *Checkpointer) LastErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// recordFailure logs, counts, and remembers a non-fatal checkpoint failure.
func (c *Checkpointer) recordFailure(reason, runID string, err error) {
	metrics.RecordCheckpointError(reason)
	c.logger.Warn("checkpoint failure",
		slog.String("reason", reason),
		slog.String(log.RunIDKey, runID),
		log.Error(err),
	)
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}
