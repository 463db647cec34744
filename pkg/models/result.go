// Package models provides the shared result types for the Relay router
// and tool-dispatch engine.
package models

import "time"

// ErrorKind categorizes a failure for retry and propagation decisions.
// The engine recovers locally from Backend and Timeout (one fallback
// attempt); every other kind is surfaced to the caller unchanged.
type ErrorKind string

const (
	// KindValidation indicates a parameter schema violation. Never retried.
	KindValidation ErrorKind = "validation"

	// KindNotAuthorized indicates a rate-limit deny, approval deny, or
	// sanitizer block. Never retried.
	KindNotAuthorized ErrorKind = "not_authorized"

	// KindModelUnavailable indicates all routing candidates were filtered
	// out. The caller may widen the strategy.
	KindModelUnavailable ErrorKind = "model_unavailable"

	// KindBackend indicates an adapter-level failure (transport, 5xx,
	// malformed body). Retried at most once via the fallback candidate.
	KindBackend ErrorKind = "backend"

	// KindTimeout indicates a deadline expired. Retried at most once,
	// only if the remaining deadline permits.
	KindTimeout ErrorKind = "timeout"

	// KindToolExecution indicates a tool body returned an unsuccessful
	// envelope. Not retried.
	KindToolExecution ErrorKind = "tool_execution"

	// KindInternal indicates an invariant violation. Logged at error
	// level and surfaced as an opaque failure.
	KindInternal ErrorKind = "internal"
)

// Retryable reports whether the engine may issue a fallback attempt after
// a failure of this kind.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindBackend, KindTimeout:
		return true
	default:
		return false
	}
}

// ExecutionResult is the uniform outcome of an LLM execution.
// ResponseText is non-empty iff Success; ErrorKind and ErrorMessage are
// set iff !Success.
type ExecutionResult struct {
	Success      bool      `json:"success"`
	ResponseText string    `json:"response_text,omitempty"`
	ModelID      string    `json:"model_id"`
	Elapsed      float64   `json:"elapsed_seconds"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	FallbackUsed bool      `json:"fallback_used"`
}

// Failure builds a failed ExecutionResult for a model with the given kind
// and message.
func Failure(modelID string, kind ErrorKind, message string, elapsed time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:      false,
		ModelID:      modelID,
		Elapsed:      elapsed.Seconds(),
		ErrorKind:    kind,
		ErrorMessage: message,
	}
}

// ToolResult is the uniform envelope returned by every tool invocation.
// Value is present iff Success; ErrorMessage and ErrorKind are present iff
// !Success. Diagnostics carries free-form detail and is never authoritative.
type ToolResult struct {
	Success      bool           `json:"success"`
	Value        any            `json:"value,omitempty"`
	ErrorKind    ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Diagnostics  map[string]any `json:"diagnostics,omitempty"`
}

// ToolSuccess builds a successful ToolResult carrying value.
func ToolSuccess(value any) *ToolResult {
	return &ToolResult{Success: true, Value: value}
}

// ToolFailure builds a failed ToolResult with the given kind and message.
func ToolFailure(kind ErrorKind, message string) *ToolResult {
	return &ToolResult{Success: false, ErrorKind: kind, ErrorMessage: message}
}
