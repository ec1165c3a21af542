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

// Package resume implements the "savepoint resume" command.
package resume

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tombee/savepoint/internal/commands/shared"
	"github.com/tombee/savepoint/pkg/checkpoint"
	"github.com/tombee/savepoint/pkg/errors"
	"github.com/tombee/savepoint/pkg/workflow"
)

type options struct {
	responses []string
	dbPath    string
	rps       float64
}

// NewResumeCommand creates the resume command.
func NewResumeCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "resume <checkpoint-id> <workflow.yaml>",
		Short: "Resume a workflow from a stored checkpoint",
		Long: `Start a new run that continues from a previously stored checkpoint:
the run context is restored from the checkpoint and execution picks up at
the step after the checkpoint's last completed step. The new run gets its
own run ID and its own checkpoints.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeRun(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().StringArrayVar(&opts.responses, "response", nil, "scripted LLM response (repeatable, consumed in order)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "savepoint.db", "checkpoint database path")
	cmd.Flags().Float64Var(&opts.rps, "rps", 0, "limit LLM requests per second (0 = unlimited)")

	return cmd
}

func resumeRun(cmd *cobra.Command, checkpointID, path string, opts *options) error {
	def, err := workflow.LoadDefinition(path)
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

	ctx := cmd.Context()

	target, err := findCheckpoint(cmd, store, checkpointID)
	if err != nil {
		return err
	}

	cp := checkpoint.New(engine, checkpoint.WithStore(store))
	run, err := cp.RunFrom(ctx, target)
	if err != nil {
		return err
	}

	result, err := run.Wait(ctx)
	if err != nil {
		return fmt.Errorf("resumed run %s failed: %w", run.ID(), err)
	}

	cmd.Printf("resumed from %s as run %s\n", checkpointID, run.ID())
	if content, ok := result.GetString("content"); ok {
		cmd.Printf("result: %s\n", content)
	}
	return nil
}

// findCheckpoint scans the store for a checkpoint by ID.
func findCheckpoint(cmd *cobra.Command, store checkpoint.Store, id string) (checkpoint.Checkpoint, error) {
	all, err := store.Filter(cmd.Context(), checkpoint.Filter{})
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	for _, c := range all {
		if c.ID == id {
			return c, nil
		}
	}
	return checkpoint.Checkpoint{}, &errors.NotFoundError{Resource: "checkpoint", ID: id}
}
