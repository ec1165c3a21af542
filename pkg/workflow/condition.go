package workflow

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/savepoint/pkg/errors"
)

// conditionEvaluator evaluates step condition expressions.
// Compiled programs are cached per expression string.
type conditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func newConditionEvaluator() *conditionEvaluator {
	return &conditionEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate runs a condition against the evaluation environment.
// The environment exposes:
//   - context: the run context's current values
//   - event: the pending input event as {type, data}
//
// An empty expression defaults to true.
func (e *conditionEvaluator) Evaluate(expression string, rc *RunContext, in Event) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := e.compile(expression)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Suggestion: "check expression syntax; conditions must return a boolean",
		}
	}

	env := map[string]any{
		"context": rc.Values(),
		"event": map[string]any{
			"type": in.Type,
			"data": in.Data,
		},
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Suggestion: "verify that all referenced variables exist in the run context",
		}
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:   "condition",
			Message: fmt.Sprintf("condition must return boolean, got %T (%v)", result, result),
		}
	}

	return boolResult, nil
}

// compile compiles an expression and caches the result.
func (e *conditionEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}
