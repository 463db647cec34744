package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/pkg/models"
)

// RunnerFactory builds the local runtime for one in-process model. Wired
// from configuration; tests substitute fakes.
type RunnerFactory func(model catalog.Model) (Runner, error)

// PoolConfig carries the pool's construction knobs.
type PoolConfig struct {
	// BaseURLs supplies per-kind default server addresses used when a
	// descriptor does not carry its own backend address.
	BaseURLs map[catalog.BackendKind]string

	// NewRunner builds local runtimes for in-process models. Required
	// only when the catalog contains in-process descriptors.
	NewRunner RunnerFactory

	Logger *slog.Logger
}

type poolEntry struct {
	once    sync.Once
	ready   chan struct{}
	adapter Adapter
	err     error
}

// Pool hands out one initialized adapter per model id. Construction and
// initialization happen exactly once per model even under concurrent
// Acquire calls; later callers wait on the first caller's result.
type Pool struct {
	catalog *catalog.Catalog
	cfg     PoolConfig
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[string]*poolEntry
	closed  bool
}

// NewPool creates a pool over the given catalog.
func NewPool(c *catalog.Catalog, cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		catalog: c,
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*poolEntry),
	}
}

// Acquire returns the shared adapter for a model, constructing and
// initializing it on first use. A failed construction is not cached: the
// next Acquire retries, so a backend coming up late starts serving
// without a restart.
func (p *Pool) Acquire(ctx context.Context, modelID string) (Adapter, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, &Error{
			Kind:    models.KindInternal,
			Backend: "pool",
			Model:   modelID,
			Message: "adapter pool is closed",
		}
	}
	entry, ok := p.entries[modelID]
	if !ok {
		entry = &poolEntry{ready: make(chan struct{})}
		p.entries[modelID] = entry
	}
	p.mu.Unlock()

	entry.once.Do(func() {
		defer close(entry.ready)
		entry.adapter, entry.err = p.build(ctx, modelID)
		if entry.err != nil {
			p.logger.Warn("adapter construction failed",
				"model", modelID, "error", entry.err)
			p.mu.Lock()
			// Drop the failed entry so the next Acquire retries.
			if p.entries[modelID] == entry {
				delete(p.entries, modelID)
			}
			p.mu.Unlock()
		}
	})

	select {
	case <-entry.ready:
	case <-ctx.Done():
		return nil, NewError("pool", modelID, ctx.Err())
	}
	return entry.adapter, entry.err
}

func (p *Pool) build(ctx context.Context, modelID string) (Adapter, error) {
	model, ok := p.catalog.Get(modelID)
	if !ok {
		return nil, &Error{
			Kind:    models.KindModelUnavailable,
			Backend: "pool",
			Model:   modelID,
			Message: "model is not registered",
		}
	}

	addr := model.BackendAddress
	if addr == "" {
		addr = p.cfg.BaseURLs[model.Backend]
	}

	var adapter Adapter
	switch model.Backend {
	case catalog.BackendHTTPChat:
		if addr == "" {
			return nil, p.missingAddress(model)
		}
		adapter = NewHTTPChatAdapter(addr, model.ID, model.ModelPath)
	case catalog.BackendHTTPCompletion:
		if addr == "" {
			return nil, p.missingAddress(model)
		}
		adapter = NewOpenAICompatAdapter(addr, model.ID, model.ModelPath)
	case catalog.BackendInProcess:
		if p.cfg.NewRunner == nil {
			return nil, &Error{
				Kind:    models.KindInternal,
				Backend: "pool",
				Model:   model.ID,
				Message: "no local runner configured for in-process models",
			}
		}
		runner, err := p.cfg.NewRunner(model)
		if err != nil {
			return nil, NewError("in_process", model.ID, fmt.Errorf("build runner: %w", err))
		}
		adapter = NewLocalAdapter(runner, model.ID, model.ModelPath, model.Format, p.logger)
	default:
		return nil, &Error{
			Kind:    models.KindInternal,
			Backend: "pool",
			Model:   model.ID,
			Message: fmt.Sprintf("unsupported backend kind %q", model.Backend),
		}
	}

	if err := adapter.Initialize(ctx); err != nil {
		_ = adapter.Close()
		return nil, err
	}
	return adapter, nil
}

func (p *Pool) missingAddress(model catalog.Model) *Error {
	return &Error{
		Kind:    models.KindModelUnavailable,
		Backend: string(model.Backend),
		Model:   model.ID,
		Message: "no backend address configured",
	}
}

// Close tears down every constructed adapter concurrently and marks the
// pool closed. Safe to call once; later Acquire calls fail.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		e := e
		g.Go(func() error {
			<-e.ready
			if e.adapter == nil {
				return nil
			}
			return e.adapter.Close()
		})
	}
	return g.Wait()
}
