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

// Package checkpoints implements the "savepoint checkpoints" command group.
package checkpoints

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tombee/savepoint/internal/commands/shared"
	"github.com/tombee/savepoint/pkg/checkpoint"
)

type listOptions struct {
	dbPath     string
	step       string
	inputType  string
	outputType string
	jsonOutput bool
}

// NewCheckpointsCommand creates the checkpoints command group.
func NewCheckpointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect stored checkpoints",
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newPruneCommand())

	return cmd
}

func newListCommand() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored checkpoints",
		Long: `List checkpoints across all runs, in run order then completion order.
Filters combine with logical AND; event type filters compare the event's
type tag, not its payload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listCheckpoints(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "savepoint.db", "checkpoint database path")
	cmd.Flags().StringVar(&opts.step, "step", "", "filter by last completed step")
	cmd.Flags().StringVar(&opts.inputType, "input-type", "", "filter by input event type tag")
	cmd.Flags().StringVar(&opts.outputType, "output-type", "", "filter by output event type tag")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print checkpoints as JSON")

	return cmd
}

func listCheckpoints(cmd *cobra.Command, opts *listOptions) error {
	store, err := shared.OpenStore(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Filter(cmd.Context(), checkpoint.Filter{
		LastCompletedStep: opts.step,
		InputEventType:    opts.inputType,
		OutputEventType:   opts.outputType,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	if len(results) == 0 {
		cmd.Println("no checkpoints found")
		return nil
	}
	for _, c := range results {
		cmd.Printf("%s  run=%s  step=%s  %s -> %s  %s\n",
			c.ID, c.RunID, c.LastCompletedStep,
			c.InputEvent.Type, c.OutputEvent.Type,
			c.CreatedAt.Format("2006-01-02T15:04:05"),
		)
	}
	return nil
}

func newPruneCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "prune <run-id>",
		Short: "Delete a run's checkpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := shared.OpenStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Prune(cmd.Context(), args[0]); err != nil {
				return err
			}
			cmd.Printf("pruned run %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "savepoint.db", "checkpoint database path")

	return cmd
}
