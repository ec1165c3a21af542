package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sperrors "github.com/tombee/savepoint/pkg/errors"
)

// newGreetingWorkflow builds a two-step workflow used across engine tests:
// prepare consumes the start event and records a greeting in the context,
// deliver reads it back and emits the stop event.
func newGreetingWorkflow() *Workflow {
	return New("greeting").
		AddStep("prepare", func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			topic, _ := in.GetString("topic")
			rc.Set("greeting", "hello "+topic)
			return NewEvent("greeting_ready", map[string]any{"topic": topic}), nil
		}).
		AddStep("deliver", func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			greeting := rc.GetStringOr("greeting", "")
			return StopEvent(map[string]any{"content": greeting + "!"}), nil
		})
}

func TestNewEngineValidatesWorkflow(t *testing.T) {
	if _, err := NewEngine(nil); !sperrors.IsValidation(err) {
		t.Errorf("NewEngine(nil) = %v, want ValidationError", err)
	}
	if _, err := NewEngine(New("empty")); !sperrors.IsValidation(err) {
		t.Errorf("NewEngine(empty workflow) = %v, want ValidationError", err)
	}
}

func TestEngineRun(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	var completions []StepCompletion
	run, err := engine.Run(context.Background(), map[string]any{"topic": "go"},
		WithRunID("run-1"),
		WithObserver(func(ctx context.Context, c StepCompletion) error {
			completions = append(completions, c)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if !result.IsStop() {
		t.Errorf("final event type = %q, want stop", result.Type)
	}
	if content, _ := result.GetString("content"); content != "hello go!" {
		t.Errorf("final content = %q, want %q", content, "hello go!")
	}
	if run.ID() != "run-1" {
		t.Errorf("run ID = %q, want run-1", run.ID())
	}

	if len(completions) != 2 {
		t.Fatalf("observer saw %d completions, want 2", len(completions))
	}

	first := completions[0]
	if first.Step != "prepare" || first.Input.Type != EventTypeStart || first.Output.Type != "greeting_ready" {
		t.Errorf("first completion = step %q, %s -> %s", first.Step, first.Input.Type, first.Output.Type)
	}
	second := completions[1]
	if second.Step != "deliver" || second.Input.Type != "greeting_ready" || !second.Output.IsStop() {
		t.Errorf("second completion = step %q, %s -> %s", second.Step, second.Input.Type, second.Output.Type)
	}
	if first.RunID != "run-1" || first.Workflow != "greeting" {
		t.Errorf("completion identity = run %q, workflow %q", first.RunID, first.Workflow)
	}
}

func TestEngineGeneratesRunID(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	run, err := engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if run.ID() == "" {
		t.Error("run without WithRunID got an empty ID")
	}
	if _, err := run.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestEngineStepFailureFailsRun(t *testing.T) {
	stepErr := errors.New("model unavailable")
	w := New("failing").
		AddStep("a", passThrough).
		AddStep("b", func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			return Event{}, stepErr
		})

	engine, err := NewEngine(w)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	run, err := engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, err = run.Wait(context.Background())
	if !errors.Is(err, stepErr) {
		t.Errorf("Wait error = %v, want wrapped %v", err, stepErr)
	}
}

func TestEngineResume(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Snapshot as if prepare already ran
	rc := NewRunContext()
	rc.Set("greeting", "hello again")
	snapshot, err := rc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	var completions []StepCompletion
	run, err := engine.Resume(context.Background(), "prepare",
		NewEvent("greeting_ready", nil), snapshot,
		WithObserver(func(ctx context.Context, c StepCompletion) error {
			completions = append(completions, c)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}

	if content, _ := result.GetString("content"); content != "hello again!" {
		t.Errorf("resumed content = %q, want restored context applied", content)
	}
	if len(completions) != 1 || completions[0].Step != "deliver" {
		t.Errorf("resumed run observed %d completions (%v), want just deliver", len(completions), completions)
	}
}

func TestEngineResumeUnknownStep(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	_, err = engine.Resume(context.Background(), "ghost", Event{}, nil)
	if !sperrors.IsStepMismatch(err) {
		t.Errorf("Resume(ghost) = %v, want StepMismatchError", err)
	}
}

func TestEngineResumeAfterTerminalStep(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	// Resuming after the last step has nothing left to execute: the run
	// resolves immediately with the supplied event.
	final := StopEvent(map[string]any{"content": "done"})
	run, err := engine.Resume(context.Background(), "deliver", final, nil)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if content, _ := result.GetString("content"); content != "done" {
		t.Errorf("result = %+v, want the supplied event back", result)
	}
}

func TestEngineConditionalSkip(t *testing.T) {
	var ran []string
	record := func(name, outputType string) Handler {
		return func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			ran = append(ran, name)
			return NewEvent(outputType, in.Data), nil
		}
	}

	w := New("guarded").
		AddStep("first", record("first", "first_done")).
		AddConditionalStep("optional", `context.include == true`, record("optional", "optional_done")).
		AddStep("last", record("last", EventTypeStop))

	engine, err := NewEngine(w)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	var observed []string
	run, err := engine.Run(context.Background(), map[string]any{"include": false},
		WithObserver(func(ctx context.Context, c StepCompletion) error {
			observed = append(observed, fmt.Sprintf("%s:%s->%s", c.Step, c.Input.Type, c.Output.Type))
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := run.Wait(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(ran) != 2 || ran[0] != "first" || ran[1] != "last" {
		t.Errorf("executed steps = %v, want [first last]", ran)
	}

	// The skipped step produces no completion and its input passes through
	want := []string{"first:start->first_done", "last:first_done->stop"}
	if len(observed) != len(want) {
		t.Fatalf("observed = %v, want %v", observed, want)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("observed[%d] = %q, want %q", i, observed[i], want[i])
		}
	}
}

func TestEngineConditionFailureFailsRun(t *testing.T) {
	w := New("broken").
		AddConditionalStep("guarded", `1 + `, passThrough)

	engine, err := NewEngine(w)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	run, err := engine.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, err := run.Wait(context.Background()); !sperrors.IsValidation(err) {
		t.Errorf("Wait = %v, want ValidationError from condition", err)
	}
}

func TestEngineObserverErrorIsNonFatal(t *testing.T) {
	engine, err := NewEngine(newGreetingWorkflow())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	run, err := engine.Run(context.Background(), map[string]any{"topic": "go"},
		WithObserver(func(ctx context.Context, c StepCompletion) error {
			return errors.New("observer exploded")
		}),
	)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	result, err := run.Wait(context.Background())
	if err != nil {
		t.Errorf("observer failure leaked into the run: %v", err)
	}
	if !result.IsStop() {
		t.Errorf("final event = %+v, want stop", result)
	}
}

func TestEngineCancellation(t *testing.T) {
	w := New("slow").
		AddStep("block", func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			<-ctx.Done()
			return Event{}, ctx.Err()
		}).
		AddStep("never", passThrough)

	engine, err := NewEngine(w)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	run, err := engine.Run(ctx, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if _, err := run.Wait(waitCtx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestRunWaitHonorsContext(t *testing.T) {
	w := New("stuck").
		AddStep("block", func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
			<-ctx.Done()
			return Event{}, ctx.Err()
		})

	engine, err := NewEngine(w)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	run, err := engine.Run(runCtx, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	if _, err := run.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait on a stuck run = %v, want DeadlineExceeded", err)
	}
}
