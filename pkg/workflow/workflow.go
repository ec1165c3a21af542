// Package workflow provides a step-based workflow engine for LLM-driven
// automation.
//
// A Workflow is a named, ordered sequence of steps. Each step consumes one
// event and produces one event, mutating a per-run context as it goes. The
// engine executes runs asynchronously and signals each step completion to an
// optional per-run observer, which is how the checkpoint package captures
// resumable snapshots without the engine knowing about checkpoints at all.
package workflow

import (
	"fmt"

	"github.com/tombee/savepoint/pkg/errors"
)

// Workflow is a named, ordered list of steps.
// Build one with New and AddStep, then hand it to NewEngine. Workflows are
// immutable once an engine is constructed from them.
type Workflow struct {
	name  string
	steps []Step
	index map[string]int
}

// New creates an empty workflow with the given name.
func New(name string) *Workflow {
	return &Workflow{
		name:  name,
		index: make(map[string]int),
	}
}

// AddStep appends a step with the given name and handler.
// Returns the workflow for chaining.
func (w *Workflow) AddStep(name string, handler Handler) *Workflow {
	return w.add(Step{Name: name, Handler: handler})
}

// AddConditionalStep appends a step guarded by an expr-lang condition.
// When the condition evaluates to false at run time, the step is skipped and
// its input event passes through to the next step unchanged.
func (w *Workflow) AddConditionalStep(name, condition string, handler Handler) *Workflow {
	return w.add(Step{Name: name, Condition: condition, Handler: handler})
}

func (w *Workflow) add(step Step) *Workflow {
	w.index[step.Name] = len(w.steps)
	w.steps = append(w.steps, step)
	return w
}

// Name returns the workflow's name.
func (w *Workflow) Name() string {
	return w.name
}

// Steps returns the step names in execution order.
func (w *Workflow) Steps() []string {
	names := make([]string, len(w.steps))
	for i, s := range w.steps {
		names[i] = s.Name
	}
	return names
}

// TerminalStep returns the name of the last step, or "" for an empty workflow.
func (w *Workflow) TerminalStep() string {
	if len(w.steps) == 0 {
		return ""
	}
	return w.steps[len(w.steps)-1].Name
}

// StepIndex returns the position of the named step in execution order.
func (w *Workflow) StepIndex(name string) (int, bool) {
	i, ok := w.index[name]
	return i, ok
}

// Validate checks that the workflow is well-formed: non-empty, unique step
// names, and every step has a handler.
func (w *Workflow) Validate() error {
	if w.name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "workflow name cannot be empty",
		}
	}
	if len(w.steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow has no steps",
			Suggestion: "add at least one step with AddStep",
		}
	}

	seen := make(map[string]bool, len(w.steps))
	for _, s := range w.steps {
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return &errors.ValidationError{
				Field:      "steps",
				Message:    fmt.Sprintf("duplicate step name %q", s.Name),
				Suggestion: "step names must be unique within a workflow",
			}
		}
		seen[s.Name] = true
	}
	return nil
}
