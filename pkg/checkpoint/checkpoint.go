package checkpoint

import (
	"time"

	"github.com/tombee/savepoint/pkg/workflow"
)

// Checkpoint is an immutable snapshot taken after a step completes,
// sufficient to resume execution from that point. Once created it is never
// mutated; stores hand out copies.
type Checkpoint struct {
	// ID uniquely identifies this checkpoint.
	ID string `json:"id"`

	// RunID identifies the run this checkpoint was captured from.
	RunID string `json:"run_id"`

	// LastCompletedStep is the step whose completion produced this checkpoint.
	LastCompletedStep string `json:"last_completed_step"`

	// InputEvent is the event the step consumed, tagged by type for filtering.
	InputEvent workflow.Event `json:"input_event"`

	// OutputEvent is the event the step produced.
	OutputEvent workflow.Event `json:"output_event"`

	// ContextState is the serialized run context at the moment of completion.
	// It is an opaque blob: stored verbatim and handed back verbatim on
	// resume, never interpreted here.
	ContextState []byte `json:"context_state"`

	// CreatedAt is when the checkpoint was captured.
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy: events get their own payload maps and the
// context blob gets its own backing array.
func (c Checkpoint) Clone() Checkpoint {
	clone := c
	clone.InputEvent = c.InputEvent.Clone()
	clone.OutputEvent = c.OutputEvent.Clone()
	if c.ContextState != nil {
		clone.ContextState = make([]byte, len(c.ContextState))
		copy(clone.ContextState, c.ContextState)
	}
	return clone
}
