package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ScriptedProvider is a deterministic in-memory provider for tests and demos.
// It replays a fixed list of responses in order; once the script is exhausted
// it echoes the last user message. It makes no network calls.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

// NewScriptedProvider creates a provider that returns the given responses in
// order, one per Complete or Stream call.
func NewScriptedProvider(responses ...string) *ScriptedProvider {
	return &ScriptedProvider{responses: responses}
}

// Name returns the provider identifier.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Capabilities returns the provider's supported features.
func (p *ScriptedProvider) Capabilities() Capabilities {
	return Capabilities{
		Streaming: true,
		Models:    []string{"scripted-1"},
	}
}

// Calls returns the number of completion requests served so far.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Complete returns the next scripted response.
func (p *ScriptedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := p.next(req)

	return &CompletionResponse{
		Content:      content,
		FinishReason: FinishReasonStop,
		Usage: TokenUsage{
			InputTokens:  countTokens(req.Messages),
			OutputTokens: len(strings.Fields(content)),
			TotalTokens:  countTokens(req.Messages) + len(strings.Fields(content)),
		},
		Model:   "scripted-1",
		Created: time.Now(),
	}, nil
}

// Stream returns the next scripted response as word-sized chunks.
func (p *ScriptedProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := p.next(req)
	words := strings.Fields(content)

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		for i, word := range words {
			chunk := StreamChunk{Delta: word}
			if i > 0 {
				chunk.Delta = " " + word
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
		usage := TokenUsage{OutputTokens: len(words), TotalTokens: len(words)}
		select {
		case ch <- StreamChunk{FinishReason: FinishReasonStop, Usage: &usage}:
		case <-ctx.Done():
		}
	}()

	return ch, nil
}

// next consumes the next scripted response, falling back to echoing the last
// user message when the script runs out.
func (p *ScriptedProvider) next(req CompletionRequest) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := p.calls
	p.calls++

	if idx < len(p.responses) {
		return p.responses[idx]
	}

	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == MessageRoleUser {
			return fmt.Sprintf("echo: %s", req.Messages[i].Content)
		}
	}
	return "echo:"
}

// countTokens approximates token usage as word count across all messages.
func countTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(strings.Fields(m.Content))
	}
	return total
}
