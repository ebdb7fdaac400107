package kernel

import "container/list"

// Delivery is handed to a waiter's sink when the dispatcher matches it to a
// message.
type Delivery struct {
	ID      string
	Payload []byte
}

// waiter is a registered blocked pop or streaming subscribe consumer.
// Enqueue-side dispatch walks waiters FIFO by registration order, never by
// hashing, so a worker that has waited longer is offered a match first.
type waiter struct {
	id           string
	sessionID    string
	capabilities CapabilitySet
	remaining    int
	sink         chan Delivery
}

// waiterRegistry is the ordered set of waiters currently eligible for
// dispatch. A waiter is present here only while it has deliveries
// remaining; it is removed before any delivery is attempted against it.
type waiterRegistry struct {
	order *list.List
	byID  map[string]*list.Element
}

func newWaiterRegistry() *waiterRegistry {
	return &waiterRegistry{order: list.New(), byID: make(map[string]*list.Element)}
}

func (r *waiterRegistry) register(w *waiter) {
	r.byID[w.id] = r.order.PushBack(w)
}

func (r *waiterRegistry) unregister(w *waiter) {
	elem, ok := r.byID[w.id]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.byID, w.id)
}

// findMatch scans waiters in registration (FIFO) order for the first one
// whose advertised capabilities are a superset of required. The matched
// waiter is removed from the registry before being returned.
func (r *waiterRegistry) findMatch(required CapabilitySet) *waiter {
	for e := r.order.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		if required.Subset(w.capabilities) {
			r.order.Remove(e)
			delete(r.byID, w.id)
			return w
		}
	}
	return nil
}

// removeBySession unregisters and returns every waiter owned by sessionID,
// for use on session close.
func (r *waiterRegistry) removeBySession(sessionID string) []*waiter {
	var out []*waiter
	for e := r.order.Front(); e != nil; {
		next := e.Next()
		w := e.Value.(*waiter)
		if w.sessionID == sessionID {
			r.order.Remove(e)
			delete(r.byID, w.id)
			out = append(out, w)
		}
		e = next
	}
	return out
}

func (r *waiterRegistry) len() int { return r.order.Len() }
