package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/savepoint/internal/log"
	"github.com/tombee/savepoint/internal/metrics"
	"github.com/tombee/savepoint/pkg/errors"
)

// tracerName is the instrumentation scope for engine spans.
const tracerName = "github.com/tombee/savepoint/pkg/workflow"

// StepCompletion describes one completed step. It is handed to the per-run
// observer synchronously, before the next step starts.
type StepCompletion struct {
	// RunID identifies the run the step belongs to.
	RunID string

	// Workflow is the name of the workflow being executed.
	Workflow string

	// Step is the name of the completed step.
	Step string

	// Input is the event the step consumed.
	Input Event

	// Output is the event the step produced.
	Output Event

	// Context is the run's mutable state as of this completion. Observers
	// that need a durable copy must serialize it (Context.Snapshot) before
	// returning; the engine keeps mutating it afterwards.
	Context *RunContext
}

// Observer is invoked synchronously after each step completes.
// A non-nil return is logged and never fails the step or the run.
type Observer func(ctx context.Context, completion StepCompletion) error

// Engine executes workflow runs.
type Engine struct {
	workflow   *Workflow
	logger     *slog.Logger
	tracer     trace.Tracer
	conditions *conditionEvaluator
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the engine.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine creates an engine for the given workflow.
// The workflow is validated once here; runs assume it is well-formed.
func NewEngine(w *Workflow, opts ...EngineOption) (*Engine, error) {
	if w == nil {
		return nil, &errors.ValidationError{
			Field:   "workflow",
			Message: "workflow cannot be nil",
		}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		workflow:   w,
		logger:     slog.Default(),
		tracer:     otel.Tracer(tracerName),
		conditions: newConditionEvaluator(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.WithComponent(e.logger, "engine")
	return e, nil
}

// Workflow returns the workflow this engine executes.
func (e *Engine) Workflow() *Workflow {
	return e.workflow
}

// runConfig carries per-run options.
type runConfig struct {
	runID    string
	observer Observer
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithRunID sets the run's identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithObserver attaches a step-completion observer to the run.
func WithObserver(observer Observer) RunOption {
	return func(c *runConfig) {
		c.observer = observer
	}
}

// Run starts a new run. The inputs seed the run context and ride the start
// event into the first step. The returned handle resolves when the terminal
// step completes or any step fails.
func (e *Engine) Run(ctx context.Context, inputs map[string]any, opts ...RunOption) (*Run, error) {
	cfg := e.buildConfig(opts)

	rc := NewRunContext()
	for k, v := range inputs {
		rc.Set(k, v)
	}

	run := newRun(cfg.runID, e.workflow.name)
	metrics.RecordRunStarted(e.workflow.name, "run")
	go e.execute(ctx, run, rc, 0, StartEvent(inputs), cfg)
	return run, nil
}

// Resume starts a new run that continues from a previously captured point:
// the context is restored from snapshot and event is fed to the step
// immediately following afterStep. Steps up to and including afterStep are
// bypassed entirely.
func (e *Engine) Resume(ctx context.Context, afterStep string, event Event, snapshot []byte, opts ...RunOption) (*Run, error) {
	idx, ok := e.workflow.StepIndex(afterStep)
	if !ok {
		return nil, &errors.StepMismatchError{
			Step:     afterStep,
			Workflow: e.workflow.name,
		}
	}

	rc, err := RestoreContext(snapshot)
	if err != nil {
		return nil, err
	}

	cfg := e.buildConfig(opts)
	run := newRun(cfg.runID, e.workflow.name)
	metrics.RecordRunStarted(e.workflow.name, "resume")
	go e.execute(ctx, run, rc, idx+1, event, cfg)
	return run, nil
}

func (e *Engine) buildConfig(opts []RunOption) runConfig {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	return cfg
}

// execute drives a run from startIdx to the terminal step.
func (e *Engine) execute(ctx context.Context, run *Run, rc *RunContext, startIdx int, in Event, cfg runConfig) {
	metrics.RunStarted()
	defer metrics.RunFinished()

	logger := log.WithRunContext(e.logger, run.id, e.workflow.name)

	ctx, span := e.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(
			attribute.String("workflow.name", e.workflow.name),
			attribute.String("workflow.run_id", run.id),
		))
	defer span.End()

	logger.Debug("run started", slog.String(log.EventTypeKey, in.Type))

	for i := startIdx; i < len(e.workflow.steps); i++ {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "run cancelled")
			run.finish(Event{}, err)
			return
		}

		step := e.workflow.steps[i]

		if step.Condition != "" {
			shouldRun, err := e.conditions.Evaluate(step.Condition, rc, in)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "condition evaluation failed")
				run.finish(Event{}, fmt.Errorf("evaluate condition for step %s: %w", step.Name, err))
				return
			}
			if !shouldRun {
				// Skipped steps pass the event through and are not
				// observed as completions.
				logger.Debug("step skipped",
					slog.String(log.StepKey, step.Name),
					slog.String("condition", step.Condition),
				)
				continue
			}
		}

		out, err := e.runStep(ctx, run, rc, step, in)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "step failed")
			run.finish(Event{}, fmt.Errorf("step %s: %w", step.Name, err))
			return
		}

		metrics.RecordStepCompleted(e.workflow.name, step.Name)

		if cfg.observer != nil {
			completion := StepCompletion{
				RunID:    run.id,
				Workflow: e.workflow.name,
				Step:     step.Name,
				Input:    in,
				Output:   out,
				Context:  rc,
			}
			// Observer failures are non-fatal: the step result still
			// propagates regardless of what the observer does with it.
			if oerr := cfg.observer(ctx, completion); oerr != nil {
				logger.Warn("step observer failed",
					slog.String(log.StepKey, step.Name),
					log.Error(oerr),
				)
			}
		}

		in = out
	}

	logger.Debug("run completed", slog.String(log.EventTypeKey, in.Type))
	run.finish(in, nil)
}

// runStep executes one step inside its own span.
func (e *Engine) runStep(ctx context.Context, run *Run, rc *RunContext, step Step, in Event) (Event, error) {
	stepCtx, span := e.tracer.Start(ctx, "workflow.step",
		trace.WithAttributes(
			attribute.String("workflow.step", step.Name),
			attribute.String("workflow.run_id", run.id),
		))
	defer span.End()

	out, err := step.Handler(stepCtx, rc, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Event{}, err
	}
	return out, nil
}
