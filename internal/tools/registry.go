package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/relay/pkg/models"
)

// Registry owns the process's tool instances, indexed by manifest name
// and category. Registration compiles the parameter schema once; lookup
// and execution share it.
type Registry struct {
	framework *Framework

	mu     sync.RWMutex
	byName map[string]*registryEntry
}

type registryEntry struct {
	tool      Tool
	validator *paramValidator
}

// NewRegistry creates an empty registry executing through the framework.
func NewRegistry(f *Framework) *Registry {
	return &Registry{
		framework: f,
		byName:    make(map[string]*registryEntry),
	}
}

// Register validates the tool's manifest, compiles its parameter schema,
// and records the instance. A name collision rejects the later instance.
func (r *Registry) Register(tool Tool) error {
	manifest := tool.Manifest()
	if err := manifest.Validate(); err != nil {
		return err
	}
	validator, err := newParamValidator(manifest)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[manifest.Name]; exists {
		return fmt.Errorf("tool %s is already registered", manifest.Name)
	}
	r.byName[manifest.Name] = &registryEntry{tool: tool, validator: validator}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.tool, true
}

// Execute runs the named tool through the framework's validation and
// approval pipeline.
func (r *Registry) Execute(ctx context.Context, principal, name string, params map[string]any) *models.ToolResult {
	r.mu.RLock()
	e, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return models.ToolFailure(models.KindValidation, fmt.Sprintf("unknown tool %q", name))
	}
	return r.framework.Execute(ctx, principal, e.tool, e.validator, params)
}

// ListAll returns manifest summaries sorted by name.
func (r *Registry) ListAll() []ManifestSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ManifestSummary, 0, len(r.byName))
	for _, e := range r.byName {
		m := e.tool.Manifest()
		out = append(out, m.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListByCategory returns the tools tagged with the category, sorted by
// name.
func (r *Registry) ListByCategory(cat Category) []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, e := range r.byName {
		if e.tool.Manifest().Category == cat {
			out = append(out, e.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].Manifest(), out[j].Manifest()
		return mi.Name < mj.Name
	})
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}
