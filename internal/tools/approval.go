package tools

import (
	"context"
	"time"
)

// Decision is the outcome of an approval request. Denied and Timeout are
// treated identically by the framework: the tool is not invoked.
type Decision int

const (
	DecisionApproved Decision = iota
	DecisionDenied
	DecisionTimeout
)

// String names the decision for logs.
func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionDenied:
		return "denied"
	default:
		return "timeout"
	}
}

// ApprovalGate asks a human (or policy) to confirm a tool invocation.
// Implemented by the chat front-end; the core only consumes it.
type ApprovalGate interface {
	RequestApproval(ctx context.Context, principal, toolName string, params map[string]any, deadline time.Duration) Decision
}

// AutoApprove approves every request. Used when no front-end gate is
// wired, for tools that never require confirmation anyway.
type AutoApprove struct{}

func (AutoApprove) RequestApproval(ctx context.Context, principal, toolName string, params map[string]any, deadline time.Duration) Decision {
	return DecisionApproved
}

// DenyAll denies every request. The safe default for headless runs where
// nobody can confirm.
type DenyAll struct{}

func (DenyAll) RequestApproval(ctx context.Context, principal, toolName string, params map[string]any, deadline time.Duration) Decision {
	return DecisionDenied
}
