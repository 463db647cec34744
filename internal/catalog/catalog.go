package catalog

import (
	"fmt"
	"sort"
	"sync"
)

// Catalog is the model registry: a read-mostly mapping from model id to
// descriptor. Filter and pick operations observe a consistent snapshot of
// the Available flags; SetAvailable is the only writer after construction.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]*Model
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{models: make(map[string]*Model)}
}

// Register validates and adds a descriptor. Duplicate ids are rejected.
func (c *Catalog) Register(m Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.models[m.ID]; exists {
		return fmt.Errorf("model %s already registered", m.ID)
	}
	stored := m
	stored.Capabilities = append([]Capability(nil), m.Capabilities...)
	c.models[m.ID] = &stored
	return nil
}

// Get returns a copy of the descriptor for id.
func (c *Catalog) Get(id string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	if !ok {
		return Model{}, false
	}
	return *m, true
}

// Len returns the number of registered models.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// List returns copies of all descriptors sorted by id.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Model, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FilterByCapability returns all descriptors declaring cap, sorted by id.
func (c *Catalog) FilterByCapability(cap Capability) []Model {
	return c.filter(func(m *Model) bool { return m.HasCapability(cap) })
}

// FilterBySpeed returns all descriptors in the given speed class.
func (c *Catalog) FilterBySpeed(class SpeedClass) []Model {
	return c.filter(func(m *Model) bool { return m.Speed == class })
}

// FilterByBackend returns all descriptors using the given backend kind.
func (c *Catalog) FilterByBackend(kind BackendKind) []Model {
	return c.filter(func(m *Model) bool { return m.Backend == kind })
}

func (c *Catalog) filter(keep func(*Model) bool) []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Model
	for _, m := range c.models {
		if keep(m) {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// PickFastest returns the available model minimizing (speed class rank,
// -tokens_per_second), matching cap when non-empty. Ties break by id.
func (c *Catalog) PickFastest(cap Capability) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var best *Model
	for _, m := range c.models {
		if !m.Available {
			continue
		}
		if cap != "" && !m.HasCapability(cap) {
			continue
		}
		if best == nil || fasterThan(m, best) {
			best = m
		}
	}
	if best == nil {
		return Model{}, false
	}
	return *best, true
}

func fasterThan(a, b *Model) bool {
	if ar, br := a.Speed.Rank(), b.Speed.Rank(); ar != br {
		return ar < br
	}
	if a.TokensPerSecond != b.TokensPerSecond {
		return a.TokensPerSecond > b.TokensPerSecond
	}
	return a.ID < b.ID
}

// PickBestQuality returns the available model declaring cap with
// cost <= costCap that maximizes QualityFor(cap). Ties break by lower
// cost, then id.
func (c *Catalog) PickBestQuality(cap Capability, costCap float64) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var best *Model
	for _, m := range c.models {
		if !m.Available || !m.HasCapability(cap) || m.Cost > costCap {
			continue
		}
		if best == nil || betterQuality(m, best, cap) {
			best = m
		}
	}
	if best == nil {
		return Model{}, false
	}
	return *best, true
}

func betterQuality(a, b *Model, cap Capability) bool {
	if aq, bq := a.QualityFor(cap), b.QualityFor(cap); aq != bq {
		return aq > bq
	}
	if a.Cost != b.Cost {
		return a.Cost < b.Cost
	}
	return a.ID < b.ID
}

// SetAvailable flips the availability flag for id. Idempotent; unknown ids
// are ignored so health probes can run against a shrinking catalog.
func (c *Catalog) SetAvailable(id string, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.models[id]; ok {
		m.Available = available
	}
}
