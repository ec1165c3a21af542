package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider wraps a provider with a token-bucket rate limiter.
// Requests block until the limiter admits them or the context is cancelled.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
}

// NewRateLimitedProvider wraps a provider with a limit of rps requests per
// second and the given burst size.
func NewRateLimitedProvider(provider Provider, rps float64, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Name returns the wrapped provider's name.
func (r *RateLimitedProvider) Name() string {
	return r.provider.Name()
}

// Capabilities returns the wrapped provider's capabilities.
func (r *RateLimitedProvider) Capabilities() Capabilities {
	return r.provider.Capabilities()
}

// Complete waits for the rate limiter, then delegates to the wrapped provider.
func (r *RateLimitedProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Complete(ctx, req)
}

// Stream waits for the rate limiter, then delegates to the wrapped provider.
func (r *RateLimitedProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.provider.Stream(ctx, req)
}
