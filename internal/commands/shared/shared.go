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

// Package shared holds helpers used by multiple CLI commands.
package shared

import (
	"fmt"
	"strings"

	"github.com/tombee/savepoint/pkg/checkpoint"
	"github.com/tombee/savepoint/pkg/errors"
	"github.com/tombee/savepoint/pkg/llm"
)

// Version information (injected via ldflags at build time).
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// GetVersion returns version, commit, and build date.
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// ParseInputs converts repeated key=value flags into a workflow input map.
func ParseInputs(pairs []string) (map[string]any, error) {
	inputs := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, &errors.ValidationError{
				Field:      "input",
				Message:    fmt.Sprintf("invalid input %q", pair),
				Suggestion: "use --input key=value",
			}
		}
		inputs[key] = value
	}
	return inputs, nil
}

// OpenStore opens the checkpoint store for the given database path.
// An empty path yields an in-memory store (checkpoints do not survive the
// process).
func OpenStore(dbPath string) (checkpoint.Store, error) {
	if dbPath == "" {
		return checkpoint.NewMemoryStore(), nil
	}
	return checkpoint.NewSQLiteStore(checkpoint.SQLiteConfig{Path: dbPath})
}

// NewProvider builds the language model provider for CLI runs: a scripted
// provider replaying the given responses, wrapped with default retry
// behavior and, when rps is positive, a client-side rate limit. Until a
// hosted provider is configured this keeps runs deterministic and offline.
func NewProvider(responses []string, rps float64) llm.Provider {
	var provider llm.Provider = llm.NewScriptedProvider(responses...)
	provider = llm.NewRetryableProvider(provider, llm.DefaultRetryConfig())
	if rps > 0 {
		provider = llm.NewRateLimitedProvider(provider, rps, 1)
	}
	return provider
}
