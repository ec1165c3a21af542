// Package checkpoint captures resumable snapshots of workflow runs.
//
// A Checkpointer wraps a workflow.Engine: every run started through it is
// observed, and each enabled step completion is recorded as an immutable
// Checkpoint (step name, input and output events, and an opaque serialized
// copy of the run context). Stored checkpoints can be filtered by step name
// or event type tag, and any checkpoint can seed a fresh run via RunFrom,
// which skips the steps the checkpoint already represents.
//
// Checkpoint capture is best-effort: a serialization or storage failure is
// logged, counted, and remembered (LastErr), but never fails the run that
// triggered it.
//
// Two stores are provided: MemoryStore for tests and single-process use, and
// SQLiteStore for persistence across restarts.
package checkpoint
