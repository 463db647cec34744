package tools

import (
	"context"

	"github.com/haasonsaas/relay/pkg/models"
)

// Tool is the single contract every tool implements. Execute receives
// parameters already validated and defaulted against the manifest, and
// must return through the ToolResult envelope rather than panicking.
//
// Tool bodies own no framework state; execution counters are maintained
// by the framework around the call.
type Tool interface {
	Manifest() Manifest
	Execute(ctx context.Context, params map[string]any) *models.ToolResult
}

// Factory builds a fresh tool instance. Discovery maps unit files onto
// factories by name.
type Factory func() (Tool, error)

type principalKey struct{}

// WithPrincipal stores the calling principal on the context. The
// framework does this before running a tool body.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

// PrincipalFrom returns the calling principal, or "" when absent.
func PrincipalFrom(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}
