// Package kernel implements the BRQueue queue kernel: the priority store,
// in-flight table, waiter registry and the dispatch rule that ties them
// together. It has no knowledge of transports, sessions or wire formats.
package kernel

import "github.com/google/uuid"

// Priority orders pending messages. HIGH always preempts LOW.
type Priority int

const (
	// Low is the default priority.
	Low Priority = iota
	// High messages are always dispatched before Low ones.
	High
)

// String renders the priority for logging.
func (p Priority) String() string {
	if p == High {
		return "high"
	}
	return "low"
}

// CapabilitySet is an unordered, duplicate-free collection of capability
// strings. The zero value is a usable empty set.
type CapabilitySet map[string]struct{}

// NewCapabilitySet collapses a slice of capability strings into a set.
func NewCapabilitySet(values []string) CapabilitySet {
	set := make(CapabilitySet, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		set[v] = struct{}{}
	}
	return set
}

// Subset reports whether every capability in required is present in the
// candidate set (required ⊆ candidate).
func (c CapabilitySet) Subset(candidate CapabilitySet) bool {
	for cap := range c {
		if _, ok := candidate[cap]; !ok {
			return false
		}
	}
	return true
}

// Slice returns the set contents as a sorted-free slice; order is not
// significant since capability matching is pure set membership.
func (c CapabilitySet) Slice() []string {
	if len(c) == 0 {
		return nil
	}
	out := make([]string, 0, len(c))
	for cap := range c {
		out = append(out, cap)
	}
	return out
}

// Message is the immutable unit of work once admitted by Enqueue.
type Message struct {
	ID                   string
	Payload              []byte
	Priority             Priority
	RequiredCapabilities CapabilitySet
}

// newMessage constructs a Message with a fresh, process-unique id. The
// payload slice is taken by reference: the producer is expected to
// relinquish ownership of it once Enqueue returns.
func newMessage(payload []byte, priority Priority, required []string) *Message {
	return &Message{
		ID:                   uuid.NewString(),
		Payload:              payload,
		Priority:             priority,
		RequiredCapabilities: NewCapabilitySet(required),
	}
}
