package workflow

import (
	"context"

	"github.com/tombee/savepoint/pkg/errors"
)

// Handler is a step's unit of work: it consumes one input event, may mutate
// the run context, and produces one output event. Handlers should honor ctx
// cancellation for long-running work (e.g., language model calls).
type Handler func(ctx context.Context, rc *RunContext, in Event) (Event, error)

// Step is a named unit of work in a workflow.
type Step struct {
	// Name uniquely identifies the step within its workflow.
	Name string

	// Condition is an optional expr-lang expression evaluated before the
	// step runs. When it evaluates to false the step is skipped and the
	// input event passes through unchanged.
	Condition string

	// Handler performs the step's work.
	Handler Handler
}

// validate checks that the step is well-formed.
func (s Step) validate() error {
	if s.Name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "step name cannot be empty",
		}
	}
	if s.Handler == nil {
		return &errors.ValidationError{
			Field:      "handler",
			Message:    "step " + s.Name + " has no handler",
			Suggestion: "register a handler with AddStep or AddConditionalStep",
		}
	}
	return nil
}
