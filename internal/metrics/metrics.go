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

// Package metrics exposes Prometheus counters for workflow execution and
// checkpoint storage.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsStarted tracks total workflow runs by workflow name and how the
	// run was started (run or resume).
	runsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savepoint_runs_started_total",
			Help: "Total workflow runs started by workflow name and mode",
		},
		[]string{"workflow", "mode"},
	)

	// stepsCompleted tracks completed steps by workflow and step name
	stepsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savepoint_steps_completed_total",
			Help: "Total workflow steps completed by workflow and step name",
		},
		[]string{"workflow", "step"},
	)

	// checkpointsStored tracks checkpoints appended to the store by step name
	checkpointsStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savepoint_checkpoints_stored_total",
			Help: "Total checkpoints stored by step name",
		},
		[]string{"step"},
	)

	// checkpointErrors tracks non-fatal checkpoint failures by reason
	checkpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "savepoint_checkpoint_errors_total",
			Help: "Total non-fatal checkpoint failures by reason",
		},
		[]string{"reason"},
	)

	// activeRuns tracks the number of runs currently executing
	activeRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "savepoint_active_runs",
			Help: "Number of workflow runs currently executing",
		},
	)
)

// RecordRunStarted increments the run counter.
// Mode is "run" for fresh runs and "resume" for runs started from a checkpoint.
func RecordRunStarted(workflow, mode string) {
	runsStarted.WithLabelValues(workflow, mode).Inc()
}

// RecordStepCompleted increments the step completion counter.
func RecordStepCompleted(workflow, step string) {
	stepsCompleted.WithLabelValues(workflow, step).Inc()
}

// RecordCheckpointStored increments the stored checkpoint counter.
func RecordCheckpointStored(step string) {
	checkpointsStored.WithLabelValues(step).Inc()
}

// RecordCheckpointError increments the checkpoint failure counter.
// Reason is "serialize" or "store".
func RecordCheckpointError(reason string) {
	checkpointErrors.WithLabelValues(reason).Inc()
}

// RunStarted increments the active run gauge.
func RunStarted() {
	activeRuns.Inc()
}

// RunFinished decrements the active run gauge.
func RunFinished() {
	activeRuns.Dec()
}
