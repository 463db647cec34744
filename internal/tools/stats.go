package tools

import "sync"

// ToolStats holds per-tool execution counters.
type ToolStats struct {
	Executions int `json:"executions"`
	Errors     int `json:"errors"`
}

// SuccessRate derives the fraction of successful executions.
func (s ToolStats) SuccessRate() float64 {
	if s.Executions == 0 {
		return 0
	}
	return float64(s.Executions-s.Errors) / float64(s.Executions)
}

// statsBook tracks per-tool counters. Only invocations that reach the
// tool body are counted; validation and approval rejections never touch
// the book.
type statsBook struct {
	mu      sync.Mutex
	perTool map[string]*ToolStats
}

func newStatsBook() *statsBook {
	return &statsBook{perTool: make(map[string]*ToolStats)}
}

func (b *statsBook) reportResult(toolName string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.perTool[toolName]
	if s == nil {
		s = &ToolStats{}
		b.perTool[toolName] = s
	}
	s.Executions++
	if !success {
		s.Errors++
	}
}

func (b *statsBook) statsFor(toolName string) ToolStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s := b.perTool[toolName]; s != nil {
		return *s
	}
	return ToolStats{}
}

func (b *statsBook) all() map[string]ToolStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]ToolStats, len(b.perTool))
	for k, v := range b.perTool {
		out[k] = *v
	}
	return out
}
