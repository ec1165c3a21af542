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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/savepoint/internal/commands/checkpoints"
	"github.com/tombee/savepoint/internal/commands/resume"
	"github.com/tombee/savepoint/internal/commands/run"
	"github.com/tombee/savepoint/internal/commands/version"
	"github.com/tombee/savepoint/internal/log"
)

func main() {
	slog.SetDefault(log.New(log.FromEnv()))

	root := &cobra.Command{
		Use:   "savepoint",
		Short: "Checkpoint and resume step-based LLM workflows",
		Long: `savepoint runs step-based workflows and records a resumable checkpoint
after each enabled step, so interrupted or expensive runs can be continued
from where they left off instead of starting over.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(run.NewRunCommand())
	root.AddCommand(resume.NewResumeCommand())
	root.AddCommand(checkpoints.NewCheckpointsCommand())
	root.AddCommand(version.NewVersionCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
