package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/relay/pkg/models"
)

// DefaultApprovalDeadline bounds how long a confirmation request may wait
// for a human answer.
const DefaultApprovalDeadline = 2 * time.Minute

// ParamChecker is an optional tool extension for cross-parameter rules
// the flat schema cannot express (conditionally required fields and the
// like). The framework calls it during validation, before the body runs.
type ParamChecker interface {
	CheckParams(params map[string]any) error
}

// FrameworkConfig tunes the execution framework.
type FrameworkConfig struct {
	// ForceConfirmation makes every tool whose scopes touch writes,
	// system state, or process spawning require confirmation regardless
	// of its manifest.
	ForceConfirmation bool

	ApprovalDeadline time.Duration

	Gate   ApprovalGate
	Logger *slog.Logger

	// OnApprovalOutcome observes every confirmation decision. Wired to
	// the metrics collectors by the composition root; nil skips it.
	OnApprovalOutcome func(tool, outcome string)
}

// Framework runs tools behind manifest validation, default application,
// and the approval gate. It owns the per-tool stats book.
type Framework struct {
	cfg    FrameworkConfig
	gate   ApprovalGate
	logger *slog.Logger
	stats  *statsBook
}

// NewFramework builds the framework. A nil gate denies everything that
// requires confirmation.
func NewFramework(cfg FrameworkConfig) *Framework {
	gate := cfg.Gate
	if gate == nil {
		gate = DenyAll{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ApprovalDeadline <= 0 {
		cfg.ApprovalDeadline = DefaultApprovalDeadline
	}
	return &Framework{
		cfg:    cfg,
		gate:   gate,
		logger: logger,
		stats:  newStatsBook(),
	}
}

// SetGate replaces the approval gate. Called once during startup wiring,
// before the framework serves requests.
func (f *Framework) SetGate(gate ApprovalGate) {
	if gate == nil {
		gate = DenyAll{}
	}
	f.gate = gate
}

// Execute validates parameters against the tool's manifest and runs the
// body. Validation failures and approval denials return before the body;
// only invocations that reach the body count toward the tool's stats.
func (f *Framework) Execute(ctx context.Context, principal string, tool Tool, validator *paramValidator, params map[string]any) *models.ToolResult {
	manifest := tool.Manifest()

	if err := validator.check(params); err != nil {
		return models.ToolFailure(models.KindValidation, err.Error())
	}
	params = validator.applyDefaults(params)
	if checker, ok := tool.(ParamChecker); ok {
		if err := checker.CheckParams(params); err != nil {
			return models.ToolFailure(models.KindValidation, err.Error())
		}
	}

	if f.needsConfirmation(&manifest) {
		decision := f.gate.RequestApproval(ctx, principal, manifest.Name, params, f.cfg.ApprovalDeadline)
		if f.cfg.OnApprovalOutcome != nil {
			f.cfg.OnApprovalOutcome(manifest.Name, decision.String())
		}
		if decision != DecisionApproved {
			f.logger.Info("tool invocation not approved",
				"tool", manifest.Name,
				"principal", principal,
				"decision", decision.String())
			return models.ToolFailure(models.KindNotAuthorized,
				fmt.Sprintf("tool %s was not approved (%s)", manifest.Name, decision))
		}
	}

	result := f.run(WithPrincipal(ctx, principal), tool, params)
	f.stats.reportResult(manifest.Name, result.Success)
	return result
}

func (f *Framework) run(ctx context.Context, tool Tool, params map[string]any) (result *models.ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("tool panicked",
				"tool", tool.Manifest().Name, "panic", r)
			result = models.ToolFailure(models.KindInternal, "tool execution panicked")
		}
	}()
	result = tool.Execute(ctx, params)
	if result == nil {
		result = models.ToolFailure(models.KindInternal, "tool returned no result")
	}
	return result
}

func (f *Framework) needsConfirmation(m *Manifest) bool {
	if m.RequiresConfirmation {
		return true
	}
	if !f.cfg.ForceConfirmation {
		return false
	}
	return m.HasScope(ScopeSystemModify) || m.HasScope(ScopeReadWrite) || m.HasScope(ScopeProcessSpawn)
}

// StatsFor returns the counters for one tool.
func (f *Framework) StatsFor(toolName string) ToolStats {
	return f.stats.statsFor(toolName)
}

// Stats returns counters for every tool that has executed.
func (f *Framework) Stats() map[string]ToolStats {
	return f.stats.all()
}
