package kernel

import "container/list"

// PriorityStore holds pending messages in two FIFO sequences, HIGH and LOW.
// It supports an O(pending) scan-with-removal used by the dispatch rule and
// a full ordered snapshot used by get_all.
type PriorityStore struct {
	high *list.List
	low  *list.List
}

func newPriorityStore() *PriorityStore {
	return &PriorityStore{high: list.New(), low: list.New()}
}

func (s *PriorityStore) sequence(p Priority) *list.List {
	if p == High {
		return s.high
	}
	return s.low
}

// PushBack appends a message to the tail of its priority sequence. Used for
// a fresh Enqueue with no matching waiter, and for session-drop requeues.
func (s *PriorityStore) PushBack(m *Message) {
	s.sequence(m.Priority).PushBack(m)
}

// PushFront reinserts a message at the head of its priority sequence,
// preserving its relative order against other same-priority pendings by
// treating it as having never left (used on delivery-failure requeue).
func (s *PriorityStore) PushFront(m *Message) {
	s.sequence(m.Priority).PushFront(m)
}

// FindMatch scans HIGH before LOW, earliest-first within a sequence, for the
// first message whose required capabilities are a subset of candidate. If
// found, it is removed from the store and returned.
func (s *PriorityStore) FindMatch(candidate CapabilitySet) *Message {
	for _, seq := range []*list.List{s.high, s.low} {
		for e := seq.Front(); e != nil; e = e.Next() {
			m := e.Value.(*Message)
			if m.RequiredCapabilities.Subset(candidate) {
				seq.Remove(e)
				return m
			}
		}
	}
	return nil
}

// Snapshot returns every pending message in dispatch order: HIGH sequence
// then LOW sequence, FIFO within each. The store itself is untouched.
func (s *PriorityStore) Snapshot() []Message {
	out := make([]Message, 0, s.high.Len()+s.low.Len())
	for _, seq := range []*list.List{s.high, s.low} {
		for e := seq.Front(); e != nil; e = e.Next() {
			out = append(out, *e.Value.(*Message))
		}
	}
	return out
}

// Len reports the number of pending messages per priority.
func (s *PriorityStore) Len() (high, low int) {
	return s.high.Len(), s.low.Len()
}
