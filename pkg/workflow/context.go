package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ErrKeyNotFound represents an error when a requested key does not exist in
// the run context.
type ErrKeyNotFound struct {
	Key string
}

// Error implements the error interface.
func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// ErrTypeAssertion represents an error when a value cannot be asserted to the
// expected type.
type ErrTypeAssertion struct {
	Key  string // The key that was accessed
	Got  string // The actual type received (as string representation)
	Want string // The expected type
}

// Error implements the error interface.
func (e ErrTypeAssertion) Error() string {
	return fmt.Sprintf("key %q is %s, not %s", e.Key, e.Got, e.Want)
}

// RunContext is the mutable per-run state shared by a run's steps.
// Steps read and write values as they execute; Snapshot serializes the whole
// state to an opaque blob that RestoreContext round-trips for resumption.
//
// Safe for concurrent use: step execution within a run is sequential, but
// observers and external readers may access the context from other goroutines.
type RunContext struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewRunContext creates an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{values: make(map[string]any)}
}

// Set stores a value under the given key, replacing any previous value.
func (c *RunContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get retrieves a value by key.
func (c *RunContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// GetString retrieves a string value from the context.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (c *RunContext) GetString(key string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.values[key]
	if !ok {
		return "", ErrKeyNotFound{Key: key}
	}
	str, ok := val.(string)
	if !ok {
		return "", ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "string"}
	}
	return str, nil
}

// GetStringOr returns a string value or the default if key is missing or
// wrong type. Never panics.
func (c *RunContext) GetStringOr(key string, defaultVal string) string {
	str, err := c.GetString(key)
	if err != nil {
		return defaultVal
	}
	return str
}

// GetInt64 retrieves an int64 value from the context.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (c *RunContext) GetInt64(key string) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.values[key]
	if !ok {
		return 0, ErrKeyNotFound{Key: key}
	}

	// Handle the integer representations JSON round-tripping produces
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "int64"}
	}
}

// GetBool retrieves a bool value from the context.
// Returns ErrKeyNotFound if key doesn't exist, ErrTypeAssertion if wrong type.
func (c *RunContext) GetBool(key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	val, ok := c.values[key]
	if !ok {
		return false, ErrKeyNotFound{Key: key}
	}
	b, ok := val.(bool)
	if !ok {
		return false, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "bool"}
	}
	return b, nil
}

// Values returns a copy of the context's key/value map.
// Mutating the returned map does not affect the context.
func (c *RunContext) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	values := make(map[string]any, len(c.values))
	for k, v := range c.values {
		values[k] = v
	}
	return values
}

// Snapshot serializes the context to an opaque JSON blob. The blob is
// round-trippable through RestoreContext; consumers store it verbatim and
// never interpret it.
func (c *RunContext) Snapshot() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c.values)
	if err != nil {
		return nil, fmt.Errorf("serializing run context: %w", err)
	}
	return data, nil
}

// RestoreContext rebuilds a run context from a snapshot previously produced
// by Snapshot. A nil or empty snapshot yields an empty context.
func RestoreContext(snapshot []byte) (*RunContext, error) {
	rc := NewRunContext()
	if len(snapshot) == 0 {
		return rc, nil
	}
	if err := json.Unmarshal(snapshot, &rc.values); err != nil {
		return nil, fmt.Errorf("restoring run context: %w", err)
	}
	if rc.values == nil {
		rc.values = make(map[string]any)
	}
	return rc, nil
}
