package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit events per trailing window.
// Timestamps are appended in order, so pruning walks expired entries off
// the front instead of rebuilding the slice.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu     sync.Mutex
	events []time.Time
	head   int
}

// NewSlidingWindowLimiter builds a limiter. A non-positive window or limit
// disables it: Allow always returns true.
func NewSlidingWindowLimiter(window time.Duration, limit int, clock func() time.Time) *SlidingWindowLimiter {
	if clock == nil {
		clock = time.Now
	}
	return &SlidingWindowLimiter{window: window, limit: limit, now: clock}
}

// Allow records an event and reports whether it fits the window budget.
func (l *SlidingWindowLimiter) Allow() bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for l.head < len(l.events) && !l.events[l.head].After(cutoff) {
		l.head++
	}
	if l.head > 0 && (l.head == len(l.events) || l.head > l.limit) {
		l.events = append(l.events[:0], l.events[l.head:]...)
		l.head = 0
	}
	if len(l.events)-l.head >= l.limit {
		return false
	}
	l.events = append(l.events, l.now())
	return true
}
