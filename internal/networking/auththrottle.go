package networking

import (
	"sync"
	"time"
)

// AuthFailureThrottle tracks failed authentication attempts per session and
// blocks further attempts once a session accumulates too many failures
// inside the trailing window. Successful authentication never counts
// against the budget, so a worker with the right credential is unaffected
// by the throttle.
type AuthFailureThrottle struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

// NewAuthFailureThrottle builds a throttle permitting limit failures per
// window for each session. A non-positive window or limit disables it.
func NewAuthFailureThrottle(window time.Duration, limit int, clock func() time.Time) *AuthFailureThrottle {
	if clock == nil {
		clock = time.Now
	}
	return &AuthFailureThrottle{
		window:   window,
		limit:    limit,
		now:      clock,
		failures: make(map[string][]time.Time),
	}
}

func (t *AuthFailureThrottle) enabled() bool {
	return t != nil && t.window > 0 && t.limit > 0
}

// pruneLocked drops failures older than the window; an emptied session is
// removed entirely so the map does not accumulate closed sessions.
func (t *AuthFailureThrottle) pruneLocked(sessionID string) []time.Time {
	cutoff := t.now().Add(-t.window)
	recent := t.failures[sessionID][:0]
	for _, ts := range t.failures[sessionID] {
		if ts.After(cutoff) {
			recent = append(recent, ts)
		}
	}
	if len(recent) == 0 {
		delete(t.failures, sessionID)
		return nil
	}
	t.failures[sessionID] = recent
	return recent
}

// Blocked reports whether sessionID has exhausted its failure budget.
func (t *AuthFailureThrottle) Blocked(sessionID string) bool {
	if !t.enabled() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pruneLocked(sessionID)) >= t.limit
}

// RecordFailure charges one failed attempt against sessionID.
func (t *AuthFailureThrottle) RecordFailure(sessionID string) {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	t.pruneLocked(sessionID)
	t.failures[sessionID] = append(t.failures[sessionID], t.now())
	t.mu.Unlock()
}

// Forget drops all failure history for a closed session.
func (t *AuthFailureThrottle) Forget(sessionID string) {
	if !t.enabled() {
		return
	}
	t.mu.Lock()
	delete(t.failures, sessionID)
	t.mu.Unlock()
}
