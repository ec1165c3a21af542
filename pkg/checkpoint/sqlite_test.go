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

package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/savepoint/pkg/errors"
)

func newSQLiteStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := NewSQLiteStore(SQLiteConfig{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(SQLiteConfig{})
	assert.True(t, errors.IsValidation(err))
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	original := newTestCheckpoint("cp-1", "run-1", "prepare")
	require.NoError(t, store.Append(ctx, original))

	list, err := store.Run(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	got := list[0]
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, original.RunID, got.RunID)
	assert.Equal(t, original.LastCompletedStep, got.LastCompletedStep)
	assert.Equal(t, original.InputEvent.Type, got.InputEvent.Type)
	assert.Equal(t, original.OutputEvent.Type, got.OutputEvent.Type)
	assert.Equal(t, "prepare", got.InputEvent.Data["step"])
	assert.Equal(t, original.ContextState, got.ContextState)
	assert.Equal(t, original.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestSQLiteStoreReadQueries(t *testing.T) {
	// Run, All, and Filter share one SELECT list; every read path must
	// return an appended checkpoint, not a query error.
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "prepare")))

	byRun, err := store.Run(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, byRun, 1)
	assert.Equal(t, "cp-1", byRun[0].ID)

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all["run-1"], 1)
	assert.Equal(t, "cp-1", all["run-1"][0].ID)

	filtered, err := store.Filter(ctx, Filter{LastCompletedStep: "prepare"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "cp-1", filtered[0].ID)
}

func TestSQLiteStoreRunNotFound(t *testing.T) {
	store, _ := newSQLiteStore(t)
	_, err := store.Run(context.Background(), "ghost")
	assert.True(t, errors.IsNotFound(err))
}

func TestSQLiteStoreValidation(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	assert.True(t, errors.IsValidation(store.CreateRun(ctx, "")))
	assert.True(t, errors.IsValidation(store.Append(ctx, Checkpoint{ID: "cp-1"})))
	assert.True(t, errors.IsValidation(store.Append(ctx, Checkpoint{RunID: "run-1"})))
}

func TestSQLiteStoreOrdering(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	// run-a registered first, then run-b; appends interleave
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-a1", "run-a", "prepare")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-b1", "run-b", "prepare")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-a2", "run-a", "deliver")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-b2", "run-b", "deliver")))

	all, err := store.Filter(ctx, Filter{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, cp := range all {
		ids[i] = cp.ID
	}
	assert.Equal(t, []string{"cp-a1", "cp-a2", "cp-b1", "cp-b2"}, ids,
		"global order is run insertion order, then per-run append order")
}

func TestSQLiteStoreFilter(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "prepare")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-2", "run-1", "deliver")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-3", "run-2", "prepare")))

	t.Run("by step", func(t *testing.T) {
		got, err := store.Filter(ctx, Filter{LastCompletedStep: "prepare"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "cp-1", got[0].ID)
		assert.Equal(t, "cp-3", got[1].ID)
	})

	t.Run("by event type tags", func(t *testing.T) {
		got, err := store.Filter(ctx, Filter{InputEventType: "in_deliver"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "cp-2", got[0].ID)

		got, err = store.Filter(ctx, Filter{OutputEventType: "out_prepare"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("AND semantics", func(t *testing.T) {
		got, err := store.Filter(ctx, Filter{
			LastCompletedStep: "prepare",
			OutputEventType:   "out_deliver",
		})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown tag matches nothing", func(t *testing.T) {
		got, err := store.Filter(ctx, Filter{InputEventType: "no_such_tag"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSQLiteStoreAll(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	require.NoError(t, store.CreateRun(ctx, "run-empty"))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "prepare")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-2", "run-1", "deliver")))

	all, err := store.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Empty(t, all["run-empty"])
	require.Len(t, all["run-1"], 2)
	assert.Equal(t, "cp-1", all["run-1"][0].ID)
	assert.Equal(t, "cp-2", all["run-1"][1].ID)
}

func TestSQLiteStorePrune(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-a", "run-a", "prepare")))
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-b", "run-b", "prepare")))

	require.NoError(t, store.Prune(ctx, "run-a"))

	_, err := store.Run(ctx, "run-a")
	assert.True(t, errors.IsNotFound(err))

	remaining, err := store.Filter(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "cp-b", remaining[0].ID)

	assert.NoError(t, store.Prune(ctx, "ghost"))
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	store, err := NewSQLiteStore(SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "prepare")))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	list, err := reopened.Run(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, "prepare", list[0].LastCompletedStep)
}

func TestSQLiteStoreDuplicateCheckpointID(t *testing.T) {
	ctx := context.Background()
	store, _ := newSQLiteStore(t)

	require.NoError(t, store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "prepare")))
	err := store.Append(ctx, newTestCheckpoint("cp-1", "run-1", "deliver"))
	assert.True(t, errors.IsStorage(err), "duplicate primary key should surface as a StorageError")
}
