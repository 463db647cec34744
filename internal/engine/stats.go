package engine

import (
	"sync"

	"github.com/haasonsaas/relay/pkg/models"
)

// ModelStats holds per-model execution counters.
type ModelStats struct {
	Executions     int     `json:"executions"`
	Successes      int     `json:"successes"`
	Failures       int     `json:"failures"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Snapshot is a point-in-time copy of the engine's counters with the
// derived aggregates filled in.
type Snapshot struct {
	Executions          int                   `json:"executions"`
	Successes           int                   `json:"successes"`
	Failures            int                   `json:"failures"`
	Fallbacks           int                   `json:"fallbacks"`
	ParallelInvocations int                   `json:"parallel_invocations"`
	ElapsedSeconds      float64               `json:"elapsed_seconds"`
	AverageElapsed      float64               `json:"average_elapsed_seconds"`
	SuccessRate         float64               `json:"success_rate"`
	PerModel            map[string]ModelStats `json:"per_model"`
}

type stats struct {
	mu        sync.Mutex
	total     int
	successes int
	failures  int
	fallbacks int
	parallel  int
	elapsed   float64
	perModel  map[string]*ModelStats
}

func newStats() stats {
	return stats{perModel: make(map[string]*ModelStats)}
}

func (s *stats) record(res models.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(res)
}

func (s *stats) recordParallel(results []models.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallel++
	for _, r := range results {
		s.recordLocked(r)
	}
}

func (s *stats) recordLocked(res models.ExecutionResult) {
	s.total++
	s.elapsed += res.Elapsed
	if res.Success {
		s.successes++
	} else {
		s.failures++
	}
	if res.FallbackUsed {
		s.fallbacks++
	}
	if res.ModelID != "" {
		m := s.perModel[res.ModelID]
		if m == nil {
			m = &ModelStats{}
			s.perModel[res.ModelID] = m
		}
		m.Executions++
		m.ElapsedSeconds += res.Elapsed
		if res.Success {
			m.Successes++
		} else {
			m.Failures++
		}
	}
}

func (s *stats) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{
		Executions:          s.total,
		Successes:           s.successes,
		Failures:            s.failures,
		Fallbacks:           s.fallbacks,
		ParallelInvocations: s.parallel,
		ElapsedSeconds:      s.elapsed,
		PerModel:            make(map[string]ModelStats, len(s.perModel)),
	}
	if s.total > 0 {
		out.AverageElapsed = s.elapsed / float64(s.total)
		out.SuccessRate = float64(s.successes) / float64(s.total)
	}
	for id, m := range s.perModel {
		out.PerModel[id] = *m
	}
	return out
}
