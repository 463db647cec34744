package routing

import (
	"sync"

	"github.com/haasonsaas/relay/internal/classify"
)

// Snapshot is a point-in-time copy of the router's counters.
type Snapshot struct {
	TotalRoutings int                         `json:"total_routings"`
	ByComplexity  map[classify.Complexity]int `json:"by_complexity"`
	ByModel       map[string]int              `json:"by_model"`
	Fallbacks     int                         `json:"fallbacks"`
}

type stats struct {
	mu           sync.Mutex
	total        int
	byComplexity map[classify.Complexity]int
	byModel      map[string]int
	fallbacks    int
}

func newStats() stats {
	return stats{
		byComplexity: make(map[classify.Complexity]int),
		byModel:      make(map[string]int),
	}
}

func (s *stats) recordRouting(c classify.Complexity, modelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	s.byComplexity[c]++
	s.byModel[modelID]++
}

func (s *stats) recordFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbacks++
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		TotalRoutings: s.total,
		ByComplexity:  make(map[classify.Complexity]int, len(s.byComplexity)),
		ByModel:       make(map[string]int, len(s.byModel)),
		Fallbacks:     s.fallbacks,
	}
	for k, v := range s.byComplexity {
		out.ByComplexity[k] = v
	}
	for k, v := range s.byModel {
		out.ByModel[k] = v
	}
	return out
}
