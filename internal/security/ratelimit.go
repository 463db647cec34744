// Package security holds the two request gates: the per-principal
// sliding-window rate limiter and the pattern-based input sanitizer.
package security

import (
	"sync"
	"sync/atomic"
	"time"
)

// Verdict is the outcome of a rate-limit check.
type Verdict struct {
	Allowed bool `json:"allowed"`

	// RetryAfter is how long the principal must wait before the next
	// request can be admitted. Zero when allowed.
	RetryAfter time.Duration `json:"retry_after"`

	// Remaining is the number of further requests admissible in the
	// current window. Zero when denied.
	Remaining int `json:"remaining"`
}

// WindowStats is the observable state of one principal's window.
type WindowStats struct {
	Used       int `json:"used"`
	Remaining  int `json:"remaining"`
	Violations int `json:"violations"`
}

type window struct {
	mu         sync.Mutex
	events     []time.Time
	violations int
}

// RateLimiter admits at most maxRequests events per principal within any
// sliding window of the configured length. Safe for concurrent use from
// many principals.
// gcInterval is the number of admissions between opportunistic sweeps of
// empty windows.
const gcInterval = 64

type RateLimiter struct {
	maxRequests int
	windowLen   time.Duration
	now         func() time.Time
	ops         atomic.Uint64

	mu      sync.RWMutex
	windows map[string]*window
}

// NewRateLimiter builds a limiter with the given parameters.
func NewRateLimiter(maxRequests int, windowLen time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		windowLen:   windowLen,
		now:         time.Now,
		windows:     make(map[string]*window),
	}
}

func (l *RateLimiter) windowFor(principal string) *window {
	l.mu.RLock()
	w, ok := l.windows[principal]
	l.mu.RUnlock()
	if ok {
		return w
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.windows[principal]; ok {
		return w
	}
	w = &window{}
	l.windows[principal] = w
	return w
}

// prune drops events older than the window. Caller holds w.mu.
func (l *RateLimiter) prune(w *window, now time.Time) {
	cutoff := now.Add(-l.windowLen)
	idx := 0
	for idx < len(w.events) && !w.events[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.events = append(w.events[:0], w.events[idx:]...)
	}
}

// CheckAndConsume admits the request iff the principal has budget left in
// the current window, consuming one slot on admission. Every gcInterval
// calls it also sweeps windows left empty by idle principals.
func (l *RateLimiter) CheckAndConsume(principal string) Verdict {
	if l.ops.Add(1)%gcInterval == 0 {
		l.GC()
	}
	now := l.now()
	w := l.windowFor(principal)

	w.mu.Lock()
	defer w.mu.Unlock()
	l.prune(w, now)

	if len(w.events) >= l.maxRequests {
		w.violations++
		oldest := w.events[0]
		retry := oldest.Add(l.windowLen).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Verdict{Allowed: false, RetryAfter: retry, Remaining: 0}
	}
	w.events = append(w.events, now)
	return Verdict{Allowed: true, Remaining: l.maxRequests - len(w.events)}
}

// StatsFor returns the principal's current window state.
func (l *RateLimiter) StatsFor(principal string) WindowStats {
	l.mu.RLock()
	w, ok := l.windows[principal]
	l.mu.RUnlock()
	if !ok {
		return WindowStats{Remaining: l.maxRequests}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	l.prune(w, l.now())
	return WindowStats{
		Used:       len(w.events),
		Remaining:  l.maxRequests - len(w.events),
		Violations: w.violations,
	}
}

// Reset clears the principal's window and violation count.
func (l *RateLimiter) Reset(principal string) {
	l.mu.RLock()
	w, ok := l.windows[principal]
	l.mu.RUnlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.events = nil
	w.violations = 0
	w.mu.Unlock()
}

// GC drops windows that hold no live events. Called opportunistically by
// long-running owners; windows reappear on the principal's next event.
func (l *RateLimiter) GC() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for principal, w := range l.windows {
		w.mu.Lock()
		l.prune(w, now)
		empty := len(w.events) == 0
		w.mu.Unlock()
		if empty {
			delete(l.windows, principal)
			removed++
		}
	}
	return removed
}
