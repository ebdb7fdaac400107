package kernel

// inFlightEntry binds a delivered-but-unacknowledged message to the session
// that received it, so a session close can requeue exactly its own messages.
// subscribeWaiter is non-nil when the delivery went to a streaming waiter
// with deliveries still remaining: Acknowledge re-registers it.
type inFlightEntry struct {
	message         *Message
	sessionID       string
	subscribeWaiter *waiter
}

// inFlightTable is a simple id -> entry map; the kernel mutex guards every
// access, so no internal locking is needed here.
type inFlightTable struct {
	entries map[string]*inFlightEntry
}

func newInFlightTable() *inFlightTable {
	return &inFlightTable{entries: make(map[string]*inFlightEntry)}
}

func (t *inFlightTable) put(m *Message, sessionID string) {
	t.entries[m.ID] = &inFlightEntry{message: m, sessionID: sessionID}
}

// putSubscribe records a delivery made to a streaming waiter that still has
// deliveries remaining, so Acknowledge can re-register it.
func (t *inFlightTable) putSubscribe(m *Message, sessionID string, w *waiter) {
	t.entries[m.ID] = &inFlightEntry{message: m, sessionID: sessionID, subscribeWaiter: w}
}

func (t *inFlightTable) remove(id string) (*inFlightEntry, bool) {
	entry, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	delete(t.entries, id)
	return entry, true
}

// removeBySession pops every entry owned by sessionID, for use on session
// close / requeue.
func (t *inFlightTable) removeBySession(sessionID string) []*inFlightEntry {
	var out []*inFlightEntry
	for id, entry := range t.entries {
		if entry.sessionID == sessionID {
			out = append(out, entry)
			delete(t.entries, id)
		}
	}
	return out
}

func (t *inFlightTable) len() int { return len(t.entries) }
