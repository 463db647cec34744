// Package engine executes classified requests against routed model
// adapters, with a single automatic fallback attempt on retryable
// failures.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/relay/internal/backend"
	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/internal/classify"
	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/internal/routing"
	"github.com/haasonsaas/relay/pkg/models"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 2000
)

// legacyErrorPrefix marks in-band failure text some backends return with
// a 200 status.
const legacyErrorPrefix = "Error:"

// Options tunes one Execute call. Zero values pick the defaults.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration

	Strategy    routing.Strategy
	BackendPref catalog.BackendKind
	MaxCost     float64
}

func (o Options) withDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = defaultTemperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = defaultMaxTokens
	}
	return o
}

// AdapterSource hands out initialized adapters by model id. Satisfied by
// *backend.Pool.
type AdapterSource interface {
	Acquire(ctx context.Context, modelID string) (backend.Adapter, error)
}

// Engine owns the classify-route-generate pipeline. It reads the catalog
// through the router and reaches backends only through the pool.
type Engine struct {
	catalog    *catalog.Catalog
	classifier *classify.Classifier
	router     *routing.Router
	pool       AdapterSource
	logger     *slog.Logger
	metrics    *observability.Metrics
	stats      stats
}

// New wires an engine from its collaborators.
func New(c *catalog.Catalog, cls *classify.Classifier, r *routing.Router, p AdapterSource, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:    c,
		classifier: cls,
		router:     r,
		pool:       p,
		logger:     logger,
		stats:      newStats(),
	}
}

// SetMetrics installs the collector set. Called once during wiring,
// before the engine serves requests; a nil receiver field skips all
// recording.
func (e *Engine) SetMetrics(m *observability.Metrics) {
	e.metrics = m
}

// Execute classifies and routes the request, then generates with at most
// one fallback attempt. Elapsed time is wall clock across all attempts.
func (e *Engine) Execute(ctx context.Context, request string, opts Options) models.ExecutionResult {
	opts = opts.withDefaults()
	start := time.Now()

	cls := e.classifier.Classify(request, false)
	if e.metrics != nil {
		e.metrics.ClassifyDuration.Observe(time.Since(start).Seconds())
	}
	chosen, ok := e.router.Route(cls, routing.Options{
		Strategy:    opts.Strategy,
		BackendPref: opts.BackendPref,
		MaxCost:     opts.MaxCost,
	})
	if !ok {
		res := models.Failure("", models.KindModelUnavailable,
			"no model satisfies the routing constraints", time.Since(start))
		e.stats.record(res)
		return res
	}
	if e.metrics != nil {
		strategy := opts.Strategy
		if strategy == "" {
			strategy = routing.StrategyAuto
		}
		e.metrics.RoutingDecisions.WithLabelValues(string(strategy), string(cls.Complexity)).Inc()
	}

	req := backend.GenerateRequest{
		Prompt:      request,
		System:      opts.System,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Timeout:     opts.Timeout,
	}

	res, backendDown := e.attempt(ctx, chosen.ID, req)
	if !res.Success && (res.ErrorKind.Retryable() || backendDown) {
		if fb, ok := e.router.FallbackFor(chosen); ok {
			e.logger.Info("falling back after failed attempt",
				"failed_model", chosen.ID,
				"fallback_model", fb.ID,
				"error_kind", string(res.ErrorKind))
			res, _ = e.attempt(ctx, fb.ID, req)
			res.FallbackUsed = true
		}
	}
	res.Elapsed = time.Since(start).Seconds()
	e.stats.record(res)
	return res
}

// ExecuteParallel dispatches the request to every listed model
// concurrently. The returned slice matches the input order and failures
// do not cancel peers.
func (e *Engine) ExecuteParallel(ctx context.Context, request string, modelIDs []string, opts Options) []models.ExecutionResult {
	opts = opts.withDefaults()
	req := backend.GenerateRequest{
		Prompt:      request,
		System:      opts.System,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Timeout:     opts.Timeout,
	}

	results := make([]models.ExecutionResult, len(modelIDs))
	var wg sync.WaitGroup
	for i, id := range modelIDs {
		i, id := i, id
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = e.attempt(ctx, id, req)
		}()
	}
	wg.Wait()

	e.stats.recordParallel(results)
	return results
}

// ExecuteChain tries the listed models in order and returns the first
// success. When every attempt fails, the last failure is returned with
// the fallback flag set, unless the chain held a single model.
func (e *Engine) ExecuteChain(ctx context.Context, request string, modelIDs []string, opts Options) models.ExecutionResult {
	opts = opts.withDefaults()
	start := time.Now()

	if len(modelIDs) == 0 {
		res := models.Failure("", models.KindValidation, "empty model chain", time.Since(start))
		e.stats.record(res)
		return res
	}

	req := backend.GenerateRequest{
		Prompt:      request,
		System:      opts.System,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Timeout:     opts.Timeout,
	}

	var last models.ExecutionResult
	for _, id := range modelIDs {
		last, _ = e.attempt(ctx, id, req)
		if last.Success {
			last.Elapsed = time.Since(start).Seconds()
			e.stats.record(last)
			return last
		}
	}
	last.FallbackUsed = len(modelIDs) > 1
	last.Elapsed = time.Since(start).Seconds()
	e.stats.record(last)
	return last
}

// attempt runs one adapter call and converts the outcome to a result.
// The backendDown flag marks a backend that failed its availability
// check, which Execute treats as fallback-eligible even though the kind
// is not retryable. The per-attempt elapsed value is overwritten by
// callers that span multiple attempts.
func (e *Engine) attempt(ctx context.Context, modelID string, req backend.GenerateRequest) (result models.ExecutionResult, backendDown bool) {
	start := time.Now()

	adapter, err := e.pool.Acquire(ctx, modelID)
	if err != nil {
		return models.Failure(modelID, backend.KindOf(err), backend.MessageOf(err), time.Since(start)), false
	}
	if !adapter.IsAvailable(ctx) {
		return models.Failure(modelID, models.KindModelUnavailable,
			"backend did not answer the availability check", time.Since(start)), true
	}

	text, err := adapter.Generate(ctx, req)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.Warn("generation failed",
			"model", modelID,
			"error_kind", string(backend.KindOf(err)),
			"error", err)
		return models.Failure(modelID, backend.KindOf(err), backend.MessageOf(err), elapsed), false
	}
	if text == "" {
		return models.Failure(modelID, models.KindBackend, "backend returned an empty response", elapsed), false
	}
	if strings.HasPrefix(strings.TrimSpace(text), legacyErrorPrefix) {
		return models.Failure(modelID, models.KindBackend,
			strings.TrimSpace(text), elapsed), false
	}

	return models.ExecutionResult{
		Success:      true,
		ResponseText: text,
		ModelID:      modelID,
		Elapsed:      elapsed.Seconds(),
	}, false
}

// HealthCheck probes every registered model and refreshes catalog
// availability. Initialization failures are reported as unavailable and
// never propagate. The probe does not touch execution totals.
func (e *Engine) HealthCheck(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, m := range e.catalog.List() {
		m := m
		wg.Add(1)
		go func() {
			defer wg.Done()
			alive := false
			if adapter, err := e.pool.Acquire(ctx, m.ID); err == nil {
				alive = adapter.IsAvailable(ctx)
			}
			e.catalog.SetAvailable(m.ID, alive)
			mu.Lock()
			out[m.ID] = alive
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}

// Stats returns a snapshot of execution counters.
func (e *Engine) Stats() Snapshot {
	return e.stats.snapshot()
}
