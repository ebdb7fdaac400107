package kernel

// tryDeliver attempts a non-blocking send of m to w's sink. The send cannot
// block in practice: a waiter carries at most one outstanding delivery, and
// every waiter reachable from the registry or a re-dispatch call has an
// empty, open sink by construction. The select/default guard exists only
// to honour the documented dead-sink failure path defensively rather than
// assume that invariant holds forever.
//
// On success, remaining is decremented. Once it reaches zero the waiter is
// done: its sink is closed and the in-flight entry carries no
// re-registration template. Otherwise the entry remembers w so Acknowledge
// can bring it back for another round.
func (k *Kernel) tryDeliver(w *waiter, m *Message) bool {
	select {
	case w.sink <- Delivery{ID: m.ID, Payload: m.Payload}:
	default:
		return false
	}

	w.remaining--
	if w.remaining <= 0 {
		close(w.sink)
		k.inflight.put(m, w.sessionID)
	} else {
		k.inflight.putSubscribe(m, w.sessionID, w)
	}
	return true
}

// tryDispatchMessage is the enqueue-side dispatch step: find the
// earliest-registered waiter able to take m. If delivery to that waiter
// fails (a dead sink that slipped past the invariant above), the waiter is
// dropped and the next matching waiter is tried against the same message.
func (k *Kernel) tryDispatchMessage(m *Message) bool {
	for {
		w := k.waiters.findMatch(m.RequiredCapabilities)
		if w == nil {
			return false
		}
		if k.tryDeliver(w, m) {
			return true
		}
	}
}

// tryDispatchWaiter is the ack-side dispatch step: find the
// highest-priority, earliest-enqueued message w can take. If delivery
// fails, the message is reinserted at the head of its sequence (it never
// left, from an external observer's perspective) and the waiter is left
// dropped rather than retried, since a dead sink is a property of the
// waiter, not the message.
func (k *Kernel) tryDispatchWaiter(w *waiter) bool {
	m := k.store.FindMatch(w.capabilities)
	if m == nil {
		return false
	}
	k.waiters.unregister(w)
	if k.tryDeliver(w, m) {
		return true
	}
	k.store.PushFront(m)
	return false
}
