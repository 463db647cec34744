// Package backend contains the adapter implementations that translate the
// engine's generate contract to each backend transport: Ollama-style HTTP
// chat, OpenAI-compatible HTTP completion, and the in-process local
// runtime. Adapters return typed errors; in-band error strings never reach
// callers.
package backend

import (
	"context"
	"time"
)

// DefaultRequestTimeout bounds a single generate call when the request
// does not carry its own timeout and the context has no earlier deadline.
const DefaultRequestTimeout = 60 * time.Second

// AvailabilityProbeTimeout bounds the liveness probe for network backends.
const AvailabilityProbeTimeout = 5 * time.Second

// GenerateRequest carries one generation call.
type GenerateRequest struct {
	Prompt      string
	System      string
	Temperature float64
	MaxTokens   int

	// Timeout overrides DefaultRequestTimeout for this call. The
	// context's own deadline still wins when it is earlier.
	Timeout time.Duration
}

// Adapter is the single contract every backend variant implements.
//
// Implementations must be safe for concurrent use: the engine issues
// parallel Generate calls against one adapter during ExecuteParallel.
type Adapter interface {
	// Generate produces a completed response for the request. Failures
	// are returned as *Error with a populated kind.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// IsAvailable probes backend liveness. It must return within
	// AvailabilityProbeTimeout for network backends and never panic.
	IsAvailable(ctx context.Context) bool

	// Initialize prepares the adapter for use. Called once by the pool
	// before the adapter is shared.
	Initialize(ctx context.Context) error

	// Close releases the adapter's transport resources.
	Close() error
}

// callContext applies the request timeout unless the caller's deadline is
// already earlier.
func callContext(ctx context.Context, req GenerateRequest) (context.Context, context.CancelFunc) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
