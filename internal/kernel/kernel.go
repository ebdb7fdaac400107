package kernel

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// PopResult is the outcome of a Pop call.
type PopResult struct {
	HadResult bool
	ID        string
	Payload   []byte
}

// Stats is a point-in-time snapshot of kernel occupancy, used by the admin
// HTTP surface and by tests asserting that every message id is accounted
// for in exactly one store.
type Stats struct {
	PendingHigh int
	PendingLow  int
	InFlight    int
	Waiters     int
}

// Kernel is the BRQueue coordinator. A single mutex guards the priority
// store, the in-flight table and the waiter registry together, so every
// public method is atomic with respect to every other: no external
// observer can see a state halfway between one operation and the next.
type Kernel struct {
	mu       sync.Mutex
	store    *PriorityStore
	inflight *inFlightTable
	waiters  *waiterRegistry
}

// New constructs an empty kernel.
func New() *Kernel {
	return &Kernel{
		store:    newPriorityStore(),
		inflight: newInFlightTable(),
		waiters:  newWaiterRegistry(),
	}
}

// Enqueue admits a new message, attempting immediate dispatch to the first
// FIFO-ordered waiter whose capabilities subsume it; otherwise the message
// is appended to its priority sequence. Never fails.
func (k *Kernel) Enqueue(payload []byte, priority Priority, requiredCapabilities []string) string {
	k.mu.Lock()
	defer k.mu.Unlock()

	m := newMessage(payload, priority, requiredCapabilities)
	if !k.tryDispatchMessage(m) {
		k.store.PushBack(m)
	}
	return m.ID
}

// Pop scans the priority store for the first message the caller's
// capabilities subsume. If none is found and wait is false, it returns
// immediately with HadResult=false. If wait is true, it registers a
// one-shot waiter and blocks until a matching Enqueue delivers to it, the
// session is cancelled (ctx.Done, or CancelSession closes the waiter), or
// ctx expires.
func (k *Kernel) Pop(ctx context.Context, sessionID string, capabilities []string, wait bool) (PopResult, error) {
	caps := NewCapabilitySet(capabilities)

	k.mu.Lock()
	if m := k.store.FindMatch(caps); m != nil {
		k.inflight.put(m, sessionID)
		k.mu.Unlock()
		return PopResult{HadResult: true, ID: m.ID, Payload: m.Payload}, nil
	}
	if !wait {
		k.mu.Unlock()
		return PopResult{}, nil
	}

	w := &waiter{
		id:           uuid.NewString(),
		sessionID:    sessionID,
		capabilities: caps,
		remaining:    1,
		sink:         make(chan Delivery, 1),
	}
	k.waiters.register(w)
	k.mu.Unlock()

	select {
	case d, ok := <-w.sink:
		if !ok {
			return PopResult{}, ErrWaiterCancelled
		}
		return PopResult{HadResult: true, ID: d.ID, Payload: d.Payload}, nil
	case <-ctx.Done():
		k.mu.Lock()
		k.waiters.unregister(w)
		k.mu.Unlock()
		return PopResult{}, ctx.Err()
	}
}

// Subscribe registers a streaming waiter permitted up to maxCount
// deliveries and returns its delivery channel. The kernel never places more
// than one unacknowledged delivery on the channel at a time: after a
// delivery the waiter is unregistered and only re-registered by
// Acknowledge. The channel is closed once maxCount deliveries have been
// made or the session is cancelled.
func (k *Kernel) Subscribe(sessionID string, capabilities []string, maxCount int) <-chan Delivery {
	k.mu.Lock()
	defer k.mu.Unlock()

	w := &waiter{
		id:           uuid.NewString(),
		sessionID:    sessionID,
		capabilities: NewCapabilitySet(capabilities),
		remaining:    maxCount,
		sink:         make(chan Delivery, 1),
	}
	k.waiters.register(w)
	k.tryDispatchWaiter(w)
	return w.sink
}

// Acknowledge removes id from the in-flight table. If it was delivered to a
// streaming subscribe waiter that still has deliveries remaining, the
// waiter is re-registered and a dispatch step is immediately attempted
// against the priority store on its behalf.
func (k *Kernel) Acknowledge(id string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entry, ok := k.inflight.remove(id)
	if !ok {
		return ErrUnknownID
	}
	if entry.subscribeWaiter != nil {
		w := entry.subscribeWaiter
		k.waiters.register(w)
		k.tryDispatchWaiter(w)
	}
	return nil
}

// GetAll returns a snapshot of every pending message, HIGH sequence then
// LOW, FIFO within each. In-flight messages are not included.
func (k *Kernel) GetAll() []Message {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.store.Snapshot()
}

// CancelSession tears down every waiter and in-flight message owned by
// sessionID: waiters are unregistered and their sinks closed so any blocked
// Pop/Subscribe caller unblocks; in-flight messages are requeued (an
// immediate dispatch is attempted first so an already-waiting worker can
// pick them straight up, then the remainder falls back to the tail of
// their priority sequence).
func (k *Kernel) CancelSession(sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for _, w := range k.waiters.removeBySession(sessionID) {
		close(w.sink)
	}
	for _, entry := range k.inflight.removeBySession(sessionID) {
		// A subscribe waiter awaiting this acknowledgement is out of the
		// registry, so its sink is closed here instead.
		if entry.subscribeWaiter != nil {
			close(entry.subscribeWaiter.sink)
		}
		if !k.tryDispatchMessage(entry.message) {
			k.store.PushBack(entry.message)
		}
	}
}

// Stats reports current occupancy for introspection/metrics.
func (k *Kernel) Stats() Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	high, low := k.store.Len()
	return Stats{
		PendingHigh: high,
		PendingLow:  low,
		InFlight:    k.inflight.len(),
		Waiters:     k.waiters.len(),
	}
}
