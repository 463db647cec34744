// Package routing selects a model descriptor for a classified request and
// picks fallback candidates when an attempt fails.
package routing

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/haasonsaas/relay/internal/catalog"
	"github.com/haasonsaas/relay/internal/classify"
)

// Strategy names a routing policy.
type Strategy string

const (
	StrategyAuto          Strategy = "auto"
	StrategySpeed         Strategy = "speed"
	StrategyQuality       Strategy = "quality"
	StrategyBalanced      Strategy = "balanced"
	StrategyCostOptimized Strategy = "cost_optimized"
)

// ParseStrategy maps a config string onto a strategy, defaulting to Auto
// for the empty string.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return StrategyAuto, nil
	case StrategyAuto:
		return StrategyAuto, nil
	case StrategySpeed:
		return StrategySpeed, nil
	case StrategyQuality:
		return StrategyQuality, nil
	case StrategyBalanced:
		return StrategyBalanced, nil
	case StrategyCostOptimized:
		return StrategyCostOptimized, nil
	default:
		return "", fmt.Errorf("unknown routing strategy %q", s)
	}
}

// Options narrows the candidate set for one routing decision.
type Options struct {
	Strategy Strategy

	// BackendPref restricts candidates to one backend kind when set.
	BackendPref catalog.BackendKind

	// MaxCost caps candidate cost; zero or negative means uncapped.
	MaxCost float64
}

// Router picks descriptors out of the catalog and keeps routing counters.
type Router struct {
	catalog *catalog.Catalog
	logger  *slog.Logger
	stats   stats
}

// New creates a router over the catalog.
func New(c *catalog.Catalog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		catalog: c,
		logger:  logger,
		stats:   newStats(),
	}
}

// Route chooses a descriptor for the classification, or reports none when
// no candidate survives the filters.
func (r *Router) Route(cls classify.Classification, opts Options) (catalog.Model, bool) {
	maxCost := opts.MaxCost
	if maxCost <= 0 {
		maxCost = 1.0
	}

	candidates := r.candidates(opts.BackendPref, maxCost)
	if len(candidates) == 0 {
		r.logger.Warn("no routing candidates",
			"strategy", string(opts.Strategy),
			"backend_pref", string(opts.BackendPref))
		return catalog.Model{}, false
	}

	primary := cls.Primary()
	var chosen catalog.Model
	var ok bool
	switch opts.Strategy {
	case StrategySpeed:
		chosen, ok = pickFastest(candidates, primary)
	case StrategyQuality:
		chosen, ok = pickBestQuality(candidates, primary)
	case StrategyCostOptimized:
		chosen, ok = pickCheapest(candidates, primary)
	case StrategyBalanced:
		chosen, ok = r.routeBalanced(candidates, cls, primary)
	default: // Auto
		chosen, ok = r.routeAuto(candidates, cls, primary)
	}
	if ok {
		r.stats.recordRouting(cls.Complexity, chosen.ID)
		r.logger.Debug("routed request",
			"model", chosen.ID,
			"strategy", string(opts.Strategy),
			"complexity", string(cls.Complexity),
			"category", string(cls.Category))
	}
	return chosen, ok
}

func (r *Router) routeBalanced(candidates []catalog.Model, cls classify.Classification, primary catalog.Capability) (catalog.Model, bool) {
	switch cls.Complexity {
	case classify.ComplexityTrivial, classify.ComplexitySimple:
		return pickFastest(candidates, primary)
	case classify.ComplexityComplex, classify.ComplexityVeryComplex:
		return pickBestQuality(candidates, primary)
	default: // Moderate: mid-cost band, closest to the band center.
		var best catalog.Model
		found := false
		for _, m := range candidates {
			if m.Cost < 0.3 || m.Cost > 0.6 {
				continue
			}
			if !found ||
				math.Abs(m.Cost-0.45) < math.Abs(best.Cost-0.45) ||
				(math.Abs(m.Cost-0.45) == math.Abs(best.Cost-0.45) && m.ID < best.ID) {
				best, found = m, true
			}
		}
		if found {
			return best, true
		}
		return pickFastest(candidates, primary)
	}
}

func (r *Router) routeAuto(candidates []catalog.Model, cls classify.Classification, primary catalog.Capability) (catalog.Model, bool) {
	switch {
	case cls.Complexity == classify.ComplexityTrivial:
		if m, ok := firstOfSpeed(candidates, catalog.SpeedUltraFast); ok {
			return m, true
		}
		return pickFastest(candidates, primary)
	case cls.Complexity == classify.ComplexitySimple:
		if m, ok := firstOfSpeed(candidates, catalog.SpeedFast); ok {
			return m, true
		}
		return pickFastest(candidates, primary)
	case cls.Category == classify.CategoryCode:
		coders := make([]catalog.Model, 0, len(candidates))
		strict := cls.Complexity == classify.ComplexityComplex || cls.Complexity == classify.ComplexityVeryComplex
		for _, m := range candidates {
			if !m.HasCapability(catalog.CapCode) {
				continue
			}
			if strict && m.QualityCode < 0.75 {
				continue
			}
			coders = append(coders, m)
		}
		if m, ok := maxBy(coders, func(a, b catalog.Model) bool {
			if a.QualityCode != b.QualityCode {
				return a.QualityCode > b.QualityCode
			}
			if a.Cost != b.Cost {
				return a.Cost < b.Cost
			}
			return a.ID < b.ID
		}); ok {
			return m, true
		}
		return pickBestQuality(candidates, primary)
	case cls.Complexity == classify.ComplexityComplex || cls.Complexity == classify.ComplexityVeryComplex:
		return pickBestQuality(candidates, primary)
	default:
		return r.routeBalanced(candidates, cls, primary)
	}
}

// FallbackFor returns the best alternative to a failed descriptor: shares
// at least one capability, is available, and is a different model. Same
// backend kind wins first, then higher general quality, then id.
func (r *Router) FallbackFor(failed catalog.Model) (catalog.Model, bool) {
	all := r.catalog.List()
	pool := make([]catalog.Model, 0, len(all))
	for _, m := range all {
		if !m.Available || m.ID == failed.ID {
			continue
		}
		if !sharesCapability(&m, failed.Capabilities) {
			continue
		}
		pool = append(pool, m)
	}
	chosen, ok := maxBy(pool, func(a, b catalog.Model) bool {
		aSame, bSame := a.Backend == failed.Backend, b.Backend == failed.Backend
		if aSame != bSame {
			return aSame
		}
		if a.QualityGeneral != b.QualityGeneral {
			return a.QualityGeneral > b.QualityGeneral
		}
		return a.ID < b.ID
	})
	if ok {
		r.stats.recordFallback()
	}
	return chosen, ok
}

// Stats returns a snapshot of the router's counters.
func (r *Router) Stats() Snapshot {
	return r.stats.snapshot()
}

func (r *Router) candidates(pref catalog.BackendKind, maxCost float64) []catalog.Model {
	all := r.catalog.List()
	out := make([]catalog.Model, 0, len(all))
	for _, m := range all {
		if !m.Available {
			continue
		}
		if pref != "" && m.Backend != pref {
			continue
		}
		if m.Cost > maxCost {
			continue
		}
		out = append(out, m)
	}
	return out
}

func sharesCapability(m *catalog.Model, caps []catalog.Capability) bool {
	for _, c := range caps {
		if m.HasCapability(c) {
			return true
		}
	}
	return false
}

// maxBy returns the element that wins every less comparison, scanning
// left to right.
func maxBy(models []catalog.Model, better func(a, b catalog.Model) bool) (catalog.Model, bool) {
	if len(models) == 0 {
		return catalog.Model{}, false
	}
	best := models[0]
	for _, m := range models[1:] {
		if better(m, best) {
			best = m
		}
	}
	return best, true
}

func pickFastest(candidates []catalog.Model, cap catalog.Capability) (catalog.Model, bool) {
	pool := withCapability(candidates, cap)
	return maxBy(pool, func(a, b catalog.Model) bool {
		if ra, rb := a.Speed.Rank(), b.Speed.Rank(); ra != rb {
			return ra < rb
		}
		if a.TokensPerSecond != b.TokensPerSecond {
			return a.TokensPerSecond > b.TokensPerSecond
		}
		return a.ID < b.ID
	})
}

func pickBestQuality(candidates []catalog.Model, cap catalog.Capability) (catalog.Model, bool) {
	pool := withCapability(candidates, cap)
	return maxBy(pool, func(a, b catalog.Model) bool {
		qa, qb := a.QualityFor(cap), b.QualityFor(cap)
		if qa != qb {
			return qa > qb
		}
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		return a.ID < b.ID
	})
}

func pickCheapest(candidates []catalog.Model, cap catalog.Capability) (catalog.Model, bool) {
	pool := withCapability(candidates, cap)
	return maxBy(pool, func(a, b catalog.Model) bool {
		if a.Cost != b.Cost {
			return a.Cost < b.Cost
		}
		qa, qb := a.QualityFor(cap), b.QualityFor(cap)
		if qa != qb {
			return qa > qb
		}
		return a.ID < b.ID
	})
}

func withCapability(candidates []catalog.Model, cap catalog.Capability) []catalog.Model {
	if cap == "" {
		return candidates
	}
	out := make([]catalog.Model, 0, len(candidates))
	for _, m := range candidates {
		if m.HasCapability(cap) {
			out = append(out, m)
		}
	}
	return out
}

// firstOfSpeed returns the first candidate of the given speed class in id
// order. Candidates arrive sorted from the catalog, so "first" is stable.
func firstOfSpeed(candidates []catalog.Model, speed catalog.SpeedClass) (catalog.Model, bool) {
	for _, m := range candidates {
		if m.Speed == speed {
			return m, true
		}
	}
	return catalog.Model{}, false
}
