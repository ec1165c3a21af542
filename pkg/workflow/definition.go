package workflow

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/tombee/savepoint/pkg/errors"
	"github.com/tombee/savepoint/pkg/llm"
)

// Definition is the YAML representation of a workflow.
//
// Example:
//
//	name: tagline
//	steps:
//	  - id: generate
//	    type: llm
//	    prompt: "Write a tagline about {{topic}}"
//	  - id: critique
//	    type: llm
//	    prompt: "Critique this tagline: {{generate}}"
type Definition struct {
	// Name is the workflow name.
	Name string `yaml:"name"`

	// Steps are executed in the order they appear.
	Steps []StepDefinition `yaml:"steps"`
}

// StepDefinition is the YAML representation of one step.
type StepDefinition struct {
	// ID uniquely identifies the step.
	ID string `yaml:"id"`

	// Type selects the step implementation: "llm" or "template".
	Type string `yaml:"type"`

	// Prompt is the prompt sent to the language model (llm steps).
	// Placeholders like {{key}} are replaced with run context values,
	// falling back to the input event's payload.
	Prompt string `yaml:"prompt,omitempty"`

	// Template is the text rendered into the output (template steps).
	// Uses the same placeholder syntax as Prompt.
	Template string `yaml:"template,omitempty"`

	// Output overrides the output event's type tag.
	// Defaults to "<id>_completed", or "stop" for the terminal step.
	Output string `yaml:"output,omitempty"`

	// Condition is an optional expr-lang guard; false skips the step.
	Condition string `yaml:"condition,omitempty"`

	// Model selects the model for llm steps. Empty uses the provider default.
	Model string `yaml:"model,omitempty"`
}

// Step type identifiers.
const (
	StepTypeLLM      = "llm"
	StepTypeTemplate = "template"
)

// LoadDefinition reads and parses a workflow definition from a YAML file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading workflow definition %s", path)
	}
	return ParseDefinition(data)
}

// ParseDefinition parses a workflow definition from YAML bytes.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &errors.ValidationError{
			Field:      "definition",
			Message:    fmt.Sprintf("invalid YAML: %s", err.Error()),
			Suggestion: "check the workflow file for syntax errors",
		}
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition for structural problems.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &errors.ValidationError{
			Field:   "name",
			Message: "workflow name is required",
		}
	}
	if len(d.Steps) == 0 {
		return &errors.ValidationError{
			Field:      "steps",
			Message:    "workflow has no steps",
			Suggestion: "define at least one step",
		}
	}

	seen := make(map[string]bool, len(d.Steps))
	for i, s := range d.Steps {
		field := fmt.Sprintf("steps[%d]", i)
		if s.ID == "" {
			return &errors.ValidationError{
				Field:   field + ".id",
				Message: "step id is required",
			}
		}
		if seen[s.ID] {
			return &errors.ValidationError{
				Field:      field + ".id",
				Message:    fmt.Sprintf("duplicate step id %q", s.ID),
				Suggestion: "step ids must be unique within a workflow",
			}
		}
		seen[s.ID] = true

		switch s.Type {
		case StepTypeLLM:
			if s.Prompt == "" {
				return &errors.ValidationError{
					Field:   field + ".prompt",
					Message: fmt.Sprintf("llm step %q requires a prompt", s.ID),
				}
			}
		case StepTypeTemplate:
			if s.Template == "" {
				return &errors.ValidationError{
					Field:   field + ".template",
					Message: fmt.Sprintf("template step %q requires a template", s.ID),
				}
			}
		default:
			return &errors.ValidationError{
				Field:      field + ".type",
				Message:    fmt.Sprintf("unknown step type %q", s.Type),
				Suggestion: `use "llm" or "template"`,
			}
		}
	}
	return nil
}

// Build constructs a runnable workflow from the definition.
// LLM steps call the given provider; template steps render locally.
func (d *Definition) Build(provider llm.Provider) (*Workflow, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, &errors.ValidationError{
			Field:   "provider",
			Message: "a language model provider is required to build a workflow",
		}
	}

	w := New(d.Name)
	for i, sd := range d.Steps {
		terminal := i == len(d.Steps)-1
		outputType := sd.Output
		if outputType == "" {
			if terminal {
				outputType = EventTypeStop
			} else {
				outputType = sd.ID + "_completed"
			}
		}

		var handler Handler
		switch sd.Type {
		case StepTypeLLM:
			handler = llmHandler(provider, sd, outputType)
		case StepTypeTemplate:
			handler = templateHandler(sd, outputType)
		}

		w.add(Step{Name: sd.ID, Condition: sd.Condition, Handler: handler})
	}
	return w, nil
}

// llmHandler builds a handler that renders the step prompt, calls the
// provider, and records the completion under the step's id in the context.
func llmHandler(provider llm.Provider, sd StepDefinition, outputType string) Handler {
	return func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
		prompt := renderPlaceholders(sd.Prompt, rc, in)

		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			Messages: []llm.Message{
				{Role: llm.MessageRoleUser, Content: prompt},
			},
			Model: sd.Model,
			Metadata: map[string]string{
				"step": sd.ID,
			},
		})
		if err != nil {
			return Event{}, err
		}

		rc.Set(sd.ID, resp.Content)
		return NewEvent(outputType, map[string]any{
			"step":    sd.ID,
			"content": resp.Content,
		}), nil
	}
}

// templateHandler builds a handler that renders a static template against the
// run context and input event.
func templateHandler(sd StepDefinition, outputType string) Handler {
	return func(ctx context.Context, rc *RunContext, in Event) (Event, error) {
		rendered := renderPlaceholders(sd.Template, rc, in)
		rc.Set(sd.ID, rendered)
		return NewEvent(outputType, map[string]any{
			"step":    sd.ID,
			"content": rendered,
		}), nil
	}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// renderPlaceholders substitutes {{key}} with the run context value for key,
// falling back to the input event's payload. Unknown keys render empty.
func renderPlaceholders(text string, rc *RunContext, in Event) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := rc.Get(key); ok {
			return fmt.Sprint(v)
		}
		if v, ok := in.Get(key); ok {
			return fmt.Sprint(v)
		}
		return ""
	})
}
