package networking

import "sync"

// ClientGate bounds how many connections the broker serves at once, across
// both transports. Zero max disables the limit.
type ClientGate struct {
	mu     sync.Mutex
	max    int
	active int
}

// NewClientGate builds a gate admitting up to max concurrent connections.
func NewClientGate(max int) *ClientGate {
	return &ClientGate{max: max}
}

// Acquire claims a connection slot, reporting false when the broker is at
// capacity. Every successful Acquire must be paired with a Release.
func (g *ClientGate) Acquire() bool {
	if g == nil {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.max > 0 && g.active >= g.max {
		return false
	}
	g.active++
	return true
}

// Release frees a slot claimed by Acquire.
func (g *ClientGate) Release() {
	if g == nil {
		return
	}
	g.mu.Lock()
	if g.active > 0 {
		g.active--
	}
	g.mu.Unlock()
}

// Active reports the number of currently held slots.
func (g *ClientGate) Active() int {
	if g == nil {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
