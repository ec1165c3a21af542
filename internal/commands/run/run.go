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

// Package run implements the "savepoint run" command.
package run

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/savepoint/internal/commands/shared"
	"github.com/tombee/savepoint/pkg/checkpoint"
	"github.com/tombee/savepoint/pkg/workflow"
)

type options struct {
	inputs       []string
	responses    []string
	dbPath       string
	disableSteps []string
	rps          float64
	jsonOutput   bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow with checkpointing",
		Long: `Run a workflow defined in a YAML file. Each enabled step completion is
stored as a checkpoint; pass --db to persist checkpoints across invocations
so runs can be resumed with "savepoint resume".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.inputs, "input", "i", nil, "workflow input as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.responses, "response", nil, "scripted LLM response (repeatable, consumed in order)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "checkpoint database path (empty = in-memory)")
	cmd.Flags().StringArrayVar(&opts.disableSteps, "disable-step", nil, "disable checkpointing for a step (repeatable)")
	cmd.Flags().Float64Var(&opts.rps, "rps", 0, "limit LLM requests per second (0 = unlimited)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the result as JSON")

	return cmd
}

func runWorkflow(cmd *cobra.Command, path string, opts *options) error {
	def, err := workflow.LoadDefinition(path)
	if err != nil {
		return err
	}

	inputs, err := shared.ParseInputs(opts.inputs)
	if err != nil {
		return err
	}

	wf, err := def.Build(shared.NewProvider(opts.responses, opts.rps))
	if err != nil {
		return err
	}

	engine, err := workflow.NewEngine(wf, workflow.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	store, err := shared.OpenStore(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	cp := checkpoint.New(engine, checkpoint.WithStore(store))
	for _, step := range opts.disableSteps {
		cp.DisableStep(step)
	}

	ctx := cmd.Context()
	run, err := cp.Run(ctx, inputs)
	if err != nil {
		return err
	}

	result, err := run.Wait(ctx)
	if err != nil {
		return fmt.Errorf("run %s failed: %w", run.ID(), err)
	}

	stored, err := cp.Checkpoints(ctx)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		out := map[string]any{
			"run_id":      run.ID(),
			"result":      result,
			"checkpoints": stored[run.ID()],
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("run %s completed\n", run.ID())
	if content, ok := result.GetString("content"); ok {
		cmd.Printf("result: %s\n", content)
	}
	cmd.Printf("checkpoints: %d\n", len(stored[run.ID()]))
	for _, c := range stored[run.ID()] {
		cmd.Printf("  %s  step=%s  %s -> %s\n", c.ID, c.LastCompletedStep, c.InputEvent.Type, c.OutputEvent.Type)
	}
	return nil
}
