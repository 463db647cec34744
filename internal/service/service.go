// Package service is the composition root: it constructs the relay's
// components in dependency order and exposes the public entry points
// consumed by the chat front-end and the CLI.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/relay/internal/backend"
	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/internal/classify"
	"github.com/haasonsaas/relay/internal/config"
	"github.com/haasonsaas/relay/internal/engine"
	"github.com/haasonsaas/relay/internal/jobs"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/routing"
	"github.com/haasonsaas/relay/internal/security"
	"github.com/haasonsaas/relay/internal/tools"
	"github.com/haasonsaas/relay/internal/tools/builtin"
	"github.com/haasonsaas/relay/pkg/models"
)

// ExecOptions tunes one RouteAndExecute call. Zero values fall back to
// the configured defaults.
type ExecOptions struct {
	Strategy    string
	BackendPref string
	Temperature float64
	MaxTokens   int
	Deadline    time.Duration
	System      string
}

// ToolOptions tunes one ExecuteTool call.
type ToolOptions struct {
	Deadline time.Duration

	// RequireConfirmation forces the approval gate for this call even if
	// neither the manifest nor the configuration demands it.
	RequireConfirmation bool
}

// ModelSummary is the listing view of a catalog entry.
type ModelSummary struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Backend     string  `json:"backend"`
	SpeedClass  string  `json:"speed_class"`
	Cost        float64 `json:"cost"`
	Available   bool    `json:"available"`
}

// StatsSnapshot aggregates the counters of every component.
type StatsSnapshot struct {
	Engine  engine.Snapshot            `json:"engine"`
	Routing routing.Snapshot           `json:"routing"`
	Tools   map[string]tools.ToolStats `json:"tools"`
}

// Options carries the collaborators a front-end may inject.
type Options struct {
	// Gate confirms tool invocations. Nil denies everything that needs
	// confirmation.
	Gate tools.ApprovalGate

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Service owns the component graph. Construct with New, tear down with
// Close.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	catalog    *catalog.Catalog
	classifier *classify.Classifier
	router     *routing.Router
	pool       *backend.Pool
	engine     *engine.Engine

	framework *tools.Framework
	registry  *tools.Registry
	jobStore  jobs.Store

	limiter      *security.RateLimiter
	sanitizer    *security.Sanitizer
	approvalGate tools.ApprovalGate

	reloader     *classify.Reloader
	reloadCancel context.CancelFunc
}

// New builds the full component graph from the configuration. The order
// follows the dependency chain: catalog, classifier, router, pool,
// engine, tool registry, security, entry points.
func New(cfg *config.Config, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:  cfg.LogLevel,
			Format: cfg.LogFormat,
		})
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	cat := catalog.New()
	for _, m := range cfg.Models {
		if err := cat.Register(m); err != nil {
			return nil, fmt.Errorf("register model: %w", err)
		}
	}

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return nil, err
	}

	router := routing.New(cat, logger)

	pool := backend.NewPool(cat, backend.PoolConfig{
		BaseURLs: cfg.BaseURLs(),
		NewRunner: func(m catalog.Model) (backend.Runner, error) {
			if cfg.LocalRunner.Binary == "" {
				return nil, fmt.Errorf("no local runner binary configured for model %s", m.ID)
			}
			return backend.NewCommandRunner(cfg.LocalRunner.Binary, cfg.LocalRunner.ExtraArgs...), nil
		},
		Logger: logger,
	})

	eng := engine.New(cat, classifier, router, pool, logger)
	eng.SetMetrics(metrics)

	store, err := buildJobStore(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	framework := tools.NewFramework(tools.FrameworkConfig{
		ForceConfirmation: cfg.ToolsRequireConfirmation,
		Gate:              opts.Gate,
		Logger:            logger,
		OnApprovalOutcome: func(tool, outcome string) {
			metrics.ApprovalOutcomes.WithLabelValues(tool, outcome).Inc()
		},
	})
	registry := tools.NewRegistry(framework)
	factories := builtin.Factories(store)
	var report tools.LoadReport
	if cfg.ToolsRoot != "" {
		report = tools.NewDiscoverer(cfg.ToolsRoot, factories, logger).Discover(registry)
	} else {
		report = tools.RegisterAll(registry, factories, logger)
	}
	for _, f := range report.Failures {
		logger.Warn("tool unit skipped", "unit", f.UnitPath, "error", f.ErrorMessage)
	}

	svc := &Service{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		catalog:    cat,
		classifier: classifier,
		router:     router,
		pool:       pool,
		engine:     eng,
		framework:  framework,
		registry:   registry,
		jobStore:   store,
		limiter:    security.NewRateLimiter(cfg.RateLimitMessages, cfg.RateLimitWindow()),
		sanitizer:  security.NewSanitizer(security.SanitizerConfig{}),
	}
	svc.approvalGate = opts.Gate
	if svc.approvalGate == nil {
		svc.approvalGate = tools.DenyAll{}
	}

	if cfg.PatternsPath != "" {
		reloader, err := classify.NewReloader(classifier, cfg.PatternsPath, logger)
		if err != nil {
			logger.Warn("pattern reload disabled", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			svc.reloader = reloader
			svc.reloadCancel = cancel
			go reloader.Run(ctx)
		}
	}

	logger.Info("relay service constructed",
		"models", cat.Len(),
		"tools", registry.Len())
	return svc, nil
}

func buildClassifier(cfg *config.Config) (*classify.Classifier, error) {
	if cfg.PatternsPath == "" {
		return classify.NewDefault(), nil
	}
	table, err := classify.LoadPatterns(cfg.PatternsPath)
	if err != nil {
		return nil, fmt.Errorf("load pattern tables: %w", err)
	}
	classifier, err := classify.New(table)
	if err != nil {
		return nil, fmt.Errorf("compile pattern tables: %w", err)
	}
	return classifier, nil
}

func buildJobStore(cfg *config.Config) (jobs.Store, error) {
	if cfg.JobsDBPath == "" {
		return jobs.NewMemoryStore(), nil
	}
	store, err := jobs.NewSQLiteStore(cfg.JobsDBPath)
	if err != nil {
		return nil, fmt.Errorf("open jobs store: %w", err)
	}
	return store, nil
}

// RouteAndExecute is the primary entry point: security middleware, then
// classify, route, and generate. The default strategy and deadline come
// from the configuration.
func (s *Service) RouteAndExecute(ctx context.Context, principal, request string, opts ExecOptions) models.ExecutionResult {
	ctx = observability.WithTraceID(ctx, uuid.NewString())
	ctx, span := observability.StartSpan(ctx, "relay.RouteAndExecute",
		attribute.String("principal", principal))
	defer span.End()

	if denied, res := s.admit(ctx, principal, request); denied {
		return models.ExecutionResult{
			Success:      false,
			ErrorKind:    res.ErrorKind,
			ErrorMessage: res.ErrorMessage,
		}
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = s.cfg.DefaultDeadline()
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	strategy := opts.Strategy
	if strategy == "" {
		strategy = s.cfg.RoutingStrategy
	}
	parsed, err := routing.ParseStrategy(strategy)
	if err != nil {
		observability.SpanError(span, err)
		return models.Failure("", models.KindValidation, err.Error(), 0)
	}

	result := s.engine.Execute(ctx, request, engine.Options{
		System:      opts.System,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Strategy:    parsed,
		BackendPref: catalog.BackendKind(opts.BackendPref),
		MaxCost:     s.cfg.RoutingMaxCost,
	})

	s.metrics.RecordExecution(result.ModelID, result.Success, result.Elapsed)
	if result.FallbackUsed {
		s.metrics.Fallbacks.Inc()
	}
	if !result.Success {
		observability.SpanError(span, fmt.Errorf("%s: %s", result.ErrorKind, result.ErrorMessage))
	}
	observability.LoggerFrom(ctx, s.logger).Info("request executed",
		"principal", principal,
		"model", result.ModelID,
		"success", result.Success,
		"fallback", result.FallbackUsed,
		"elapsed_seconds", result.Elapsed)
	return result
}

// ExecuteTool runs a registered tool through the security middleware and
// the framework's validation and approval pipeline.
func (s *Service) ExecuteTool(ctx context.Context, principal, toolName string, params map[string]any, opts ToolOptions) *models.ToolResult {
	ctx = observability.WithTraceID(ctx, uuid.NewString())
	ctx, span := observability.StartSpan(ctx, "relay.ExecuteTool",
		attribute.String("tool", toolName))
	defer span.End()

	if denied, res := s.admit(ctx, principal, fmt.Sprint(params)); denied {
		return res
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = s.cfg.DefaultDeadline()
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	if opts.RequireConfirmation {
		if denied := s.confirmOverride(ctx, principal, toolName, params); denied != nil {
			return denied
		}
	}

	start := time.Now()
	result := s.registry.Execute(ctx, principal, toolName, params)
	s.metrics.RecordTool(toolName, result.Success, time.Since(start).Seconds())
	if !result.Success {
		observability.SpanError(span, fmt.Errorf("%s: %s", result.ErrorKind, result.ErrorMessage))
	}
	observability.LoggerFrom(ctx, s.logger).Info("tool executed",
		"principal", principal,
		"tool", toolName,
		"success", result.Success)
	return result
}

// admit runs the shared security middleware: rate limit, then sanitizer.
// Only Critical input is blocked at this layer; lower risk labels are
// advisory and land in the logs.
func (s *Service) admit(ctx context.Context, principal, input string) (bool, *models.ToolResult) {
	verdict := s.limiter.CheckAndConsume(principal)
	if !verdict.Allowed {
		s.metrics.RateLimitDenials.WithLabelValues(principal).Inc()
		return true, models.ToolFailure(models.KindNotAuthorized,
			fmt.Sprintf("rate limit exceeded, retry in %.0fs", verdict.RetryAfter.Seconds()))
	}

	assessment := s.sanitizer.Assess(input)
	if assessment.Risk >= security.RiskCritical {
		observability.LoggerFrom(ctx, s.logger).Warn("input blocked",
			"principal", principal,
			"risk", assessment.Risk.String(),
			"reason", assessment.Reason)
		return true, models.ToolFailure(models.KindNotAuthorized,
			"input rejected: "+assessment.Reason)
	}
	if assessment.Risk > security.RiskLow {
		observability.LoggerFrom(ctx, s.logger).Info("input flagged",
			"principal", principal,
			"risk", assessment.Risk.String(),
			"reason", assessment.Reason)
	}
	return false, nil
}

// confirmOverride asks the gate directly when the caller demands
// confirmation for a tool that would not otherwise require it. Tools the
// framework already confirms are not asked twice.
func (s *Service) confirmOverride(ctx context.Context, principal, toolName string, params map[string]any) *models.ToolResult {
	tool, ok := s.registry.Get(toolName)
	if !ok {
		return nil // the registry reports unknown tools itself
	}
	manifest := tool.Manifest()
	if manifest.RequiresConfirmation {
		return nil
	}
	if s.cfg.ToolsRequireConfirmation &&
		(manifest.HasScope(tools.ScopeSystemModify) ||
			manifest.HasScope(tools.ScopeReadWrite) ||
			manifest.HasScope(tools.ScopeProcessSpawn)) {
		return nil
	}
	decision := s.approvalGate.RequestApproval(ctx, principal, toolName, params, tools.DefaultApprovalDeadline)
	s.metrics.ApprovalOutcomes.WithLabelValues(toolName, decision.String()).Inc()
	if decision != tools.DecisionApproved {
		return models.ToolFailure(models.KindNotAuthorized,
			fmt.Sprintf("tool %s was not approved (%s)", toolName, decision))
	}
	return nil
}

// SetApprovalGate installs the front-end's gate after construction.
// Called once during startup, before requests are served.
func (s *Service) SetApprovalGate(gate tools.ApprovalGate) {
	if gate == nil {
		gate = tools.DenyAll{}
	}
	s.approvalGate = gate
	s.framework.SetGate(gate)
}

// ListTools returns manifest summaries sorted by name.
func (s *Service) ListTools() []tools.ManifestSummary {
	return s.registry.ListAll()
}

// ListModels returns catalog summaries sorted by id.
func (s *Service) ListModels() []ModelSummary {
	descriptors := s.catalog.List()
	out := make([]ModelSummary, 0, len(descriptors))
	for _, m := range descriptors {
		out = append(out, ModelSummary{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Backend:     string(m.Backend),
			SpeedClass:  string(m.Speed),
			Cost:        m.Cost,
			Available:   m.Available,
		})
	}
	return out
}

// HealthCheck probes every model and refreshes catalog availability.
func (s *Service) HealthCheck(ctx context.Context) map[string]bool {
	return s.engine.HealthCheck(ctx)
}

// Stats aggregates the counters of the engine, the router, and the tool
// framework.
func (s *Service) Stats() StatsSnapshot {
	return StatsSnapshot{
		Engine:  s.engine.Stats(),
		Routing: s.router.Stats(),
		Tools:   s.framework.Stats(),
	}
}

// JobStore exposes the scheduler's store to front-ends that deliver due
// reminders.
func (s *Service) JobStore() jobs.Store {
	return s.jobStore
}

// Metrics exposes the collector set for the HTTP endpoint.
func (s *Service) Metrics() *observability.Metrics {
	return s.metrics
}

// Close tears the graph down in reverse construction order. The context
// bounds how long teardown may take.
func (s *Service) Close(ctx context.Context) error {
	if s.reloadCancel != nil {
		s.reloadCancel()
	}

	done := make(chan error, 1)
	go func() {
		var firstErr error
		if err := s.pool.Close(); err != nil {
			firstErr = err
		}
		if err := s.jobStore.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		done <- firstErr
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
