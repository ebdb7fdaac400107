// Package networking holds transport-adjacent plumbing shared by the raw
// stream and websocket session servers.
package networking

import (
	"math"
	"sync"
	"time"
)

// DefaultDeliveryBytesPerSecond caps per-session outbound delivery
// throughput at 48 kbps (decimal) when no explicit rate is configured.
const DefaultDeliveryBytesPerSecond = 48000.0 / 8.0

// DeliveryUsage is a point-in-time throttling sample for one session,
// exported to the metrics surface.
type DeliveryUsage struct {
	SessionID        string
	AvailableBytes   float64
	BytesPerSecond   float64
	ObservedSeconds  float64
	DeniedDeliveries int64
	LastCharge       time.Time
}

// sessionBudget is the token-bucket state for one session. delivered and
// windowStart feed the sustained-throughput sample; denied counts charges
// that found the bucket empty.
type sessionBudget struct {
	tokens      float64
	lastRefill  time.Time
	windowStart time.Time
	delivered   int64
	denied      int64
}

// BandwidthRegulator accounts outbound delivery bytes per session against a
// token-bucket budget. It observes rather than gates: callers log and
// surface a denial, but the delivery itself still goes out, because a
// delivered message must always be ackable regardless of throttle pressure.
type BandwidthRegulator struct {
	mu       sync.Mutex
	sessions map[string]*sessionBudget
	capacity float64
	rate     float64
	now      func() time.Time
}

// NewBandwidthRegulator builds a regulator targeting bytesPerSecond per
// session. A non-positive rate falls back to the default; a nil clock uses
// time.Now.
func NewBandwidthRegulator(bytesPerSecond float64, clock func() time.Time) *BandwidthRegulator {
	if bytesPerSecond <= 0 {
		bytesPerSecond = DefaultDeliveryBytesPerSecond
	}
	if clock == nil {
		clock = time.Now
	}
	return &BandwidthRegulator{
		sessions: make(map[string]*sessionBudget),
		capacity: bytesPerSecond,
		rate:     bytesPerSecond,
		now:      clock,
	}
}

// refill credits tokens for the time elapsed since the last charge, capped
// at one second's worth of burst. Clock regressions credit nothing.
func (r *BandwidthRegulator) refill(b *sessionBudget, now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = math.Min(b.tokens+elapsed*r.rate, r.capacity)
	b.lastRefill = now
}

// Allow charges payloadBytes against sessionID's budget and reports whether
// the budget covered it. New sessions start with a full bucket so the first
// delivery always passes.
func (r *BandwidthRegulator) Allow(sessionID string, payloadBytes int) bool {
	if r == nil || sessionID == "" || payloadBytes <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.sessions[sessionID]
	if !ok {
		b = &sessionBudget{tokens: r.capacity, lastRefill: now, windowStart: now}
		r.sessions[sessionID] = b
	}
	r.refill(b, now)

	cost := float64(payloadBytes)
	if cost > b.tokens {
		b.denied++
		return false
	}
	b.tokens -= cost
	b.delivered += int64(payloadBytes)
	return true
}

// Forget drops all accounting for a closed session so SnapshotUsage stops
// reporting it.
func (r *BandwidthRegulator) Forget(sessionID string) {
	if r == nil || sessionID == "" {
		return
	}
	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()
}

// SnapshotUsage reports a consistent throttling sample per live session, or
// nil when nothing is tracked.
func (r *BandwidthRegulator) SnapshotUsage() map[string]DeliveryUsage {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}

	now := r.now()
	out := make(map[string]DeliveryUsage, len(r.sessions))
	for sessionID, b := range r.sessions {
		r.refill(b, now)
		observed := now.Sub(b.windowStart).Seconds()
		sample := DeliveryUsage{
			SessionID:        sessionID,
			AvailableBytes:   math.Max(b.tokens, 0),
			ObservedSeconds:  math.Max(observed, 0),
			DeniedDeliveries: b.denied,
			LastCharge:       b.lastRefill,
		}
		if observed > 0 {
			sample.BytesPerSecond = float64(b.delivered) / observed
		}
		out[sessionID] = sample
	}
	return out
}
