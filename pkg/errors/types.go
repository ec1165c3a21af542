// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errors

import (
	"fmt"
)

// ValidationError represents user input validation failures.
// Use this for invalid workflow definitions, malformed inputs, or
// constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NotFoundError represents a resource not found error.
// Use this when a requested resource (workflow, run, checkpoint, step)
// does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "checkpoint", "run")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// StorageError represents checkpoint persistence failures.
// Storage failures are recoverable from the run's point of view: the step
// result still propagates even when its checkpoint could not be written.
type StorageError struct {
	// Op is the storage operation that failed (e.g., "append", "list", "migrate")
	Op string

	// RunID is the run whose checkpoint was being stored, if known
	RunID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.RunID != "" {
		return fmt.Sprintf("checkpoint storage %s failed for run %s: %v", e.Op, e.RunID, e.Cause)
	}
	return fmt.Sprintf("checkpoint storage %s failed: %v", e.Op, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// StepMismatchError represents a configuration mismatch at resume time:
// a checkpoint references a step the current workflow does not define.
type StepMismatchError struct {
	// Step is the step name the checkpoint recorded
	Step string

	// Workflow is the name of the workflow that was asked to resume
	Workflow string
}

// Error implements the error interface.
func (e *StepMismatchError) Error() string {
	return fmt.Sprintf("workflow %q has no step %q: checkpoint does not match this workflow", e.Workflow, e.Step)
}

// ProviderError represents LLM provider failures.
// Use this for errors originating from external language model providers.
type ProviderError struct {
	// Provider is the name of the LLM provider (e.g., "anthropic", "scripted")
	Provider string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", msg, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}
