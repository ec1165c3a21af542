package checkpoint

import (
	"context"
	"sync"

	"github.com/tombee/savepoint/pkg/errors"
)

// MemoryStore is an in-memory implementation of Store.
// It is thread-safe and suitable for testing or single-process use.
type MemoryStore struct {
	mu    sync.RWMutex
	order []string // run IDs in insertion order
	runs  map[string][]Checkpoint
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string][]Checkpoint),
	}
}

// CreateRun registers a run with an empty checkpoint list.
func (s *MemoryStore) CreateRun(ctx context.Context, runID string) error {
	if runID == "" {
		return &errors.ValidationError{
			Field:   "run_id",
			Message: "run ID cannot be empty",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureRunLocked(runID)
	return nil
}

// Append adds a checkpoint to the end of its run's list.
func (s *MemoryStore) Append(ctx context.Context, cp Checkpoint) error {
	if cp.RunID == "" {
		return &errors.ValidationError{
			Field:   "run_id",
			Message: "checkpoint run ID cannot be empty",
		}
	}
	if cp.ID == "" {
		return &errors.ValidationError{
			Field:   "id",
			Message: "checkpoint ID cannot be empty",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureRunLocked(cp.RunID)
	// Store a copy so later caller mutations cannot reach stored state
	s.runs[cp.RunID] = append(s.runs[cp.RunID], cp.Clone())
	return nil
}

// Run returns the ordered checkpoint list for one run.
func (s *MemoryStore) Run(ctx context.Context, runID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, ok := s.runs[runID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "run", ID: runID}
	}
	return cloneList(list), nil
}

// All returns every run's ordered checkpoint list, keyed by run ID.
func (s *MemoryStore) All(ctx context.Context) (map[string][]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make(map[string][]Checkpoint, len(s.runs))
	for runID, list := range s.runs {
		all[runID] = cloneList(list)
	}
	return all, nil
}

// Filter returns matching checkpoints in run-insertion then append order.
func (s *MemoryStore) Filter(ctx context.Context, f Filter) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []Checkpoint
	for _, runID := range s.order {
		for _, cp := range s.runs[runID] {
			if f.Matches(cp) {
				results = append(results, cp.Clone())
			}
		}
	}
	return results, nil
}

// Prune removes a run and its checkpoints.
func (s *MemoryStore) Prune(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return nil
	}
	delete(s.runs, runID)
	for i, id := range s.order {
		if id == runID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close implements Store. It is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// ensureRunLocked registers the run if unseen. Caller holds the write lock.
func (s *MemoryStore) ensureRunLocked(runID string) {
	if _, ok := s.runs[runID]; !ok {
		s.runs[runID] = []Checkpoint{}
		s.order = append(s.order, runID)
	}
}

func cloneList(list []Checkpoint) []Checkpoint {
	out := make([]Checkpoint, len(list))
	for i, cp := range list {
		out[i] = cp.Clone()
	}
	return out
}
