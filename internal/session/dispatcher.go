// Package session implements the per-connection state machine that sits
// between a transport (raw stream or websocket) and the queue kernel: it
// tracks the UNAUTH/READY/CLOSED lifecycle, authenticates, and translates
// wire requests into kernel calls.
package session

import (
	"context"
	"sync"

	"brqueue/internal/auth"
	"brqueue/internal/kernel"
	"brqueue/internal/logging"
	"brqueue/internal/networking"
	"brqueue/internal/wire"
)

// State is the per-connection authentication lifecycle.
type State int

const (
	StateUnauth State = iota
	StateReady
	StateClosed
)

// Conn tracks one connection's authentication state. It has its own mutex
// because Pop(wait=true) requests are dispatched on their own goroutine so
// a slow blocking pop never stalls reads of subsequent requests on the
// same connection; responses may therefore arrive out of request order.
type Conn struct {
	// ID identifies this connection's session to the kernel, for in-flight
	// ownership and waiter cancellation on close.
	ID string

	mu    sync.Mutex
	state State
}

// NewConn creates a fresh, unauthenticated connection context.
func NewConn(id string) *Conn {
	return &Conn{ID: id, state: StateUnauth}
}

func (c *Conn) getState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// State reports the connection's current lifecycle state. Exported for
// transports, like the websocket gateway, that handle some request types
// (subscribe) outside of Handle and need to enforce the same
// authentication gate themselves.
func (c *Conn) State() State { return c.getState() }

func (c *Conn) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// AuthThrottle bounds failed authentication attempts per session. It is
// satisfied by networking.AuthFailureThrottle without a direct dependency
// on that type, so tests can substitute their own.
type AuthThrottle interface {
	Blocked(sessionID string) bool
	RecordFailure(sessionID string)
	Forget(sessionID string)
}

// Dispatcher holds the collaborators every connection needs to service a
// request: the kernel and the authenticator. It is safe for concurrent use
// by many connections and many in-flight requests per connection.
type Dispatcher struct {
	Kernel        *kernel.Kernel
	Authenticator auth.Authenticator
	Log           *logging.Logger

	// AuthThrottle, if set, rejects authenticate requests from sessions
	// that keep presenting bad credentials.
	AuthThrottle AuthThrottle

	// Bandwidth, if set, tracks outbound delivery throughput per session for
	// the metrics surface. A session over its budget is still delivered its
	// message (the ack contract takes priority over throttling) but the
	// overage is recorded so sustained pressure is visible at /metrics.
	Bandwidth *networking.BandwidthRegulator
}

// Handle processes one request against conn's current state and returns
// the response to send back. For Pop(wait=true), Handle blocks until the
// kernel delivers, the session is cancelled, or ctx is done; callers that
// want concurrent requests on one connection must invoke Handle from its
// own goroutine per request.
func (d *Dispatcher) Handle(ctx context.Context, conn *Conn, req wire.RequestWrapper) wire.ResponseWrapper {
	if req.Type == wire.RequestAuthenticate {
		return d.handleAuthenticate(conn, req)
	}

	if conn.getState() != StateReady {
		return wire.NewErrorResponse(req.RefID, "unauthenticated")
	}

	switch req.Type {
	case wire.RequestEnqueue:
		return d.handleEnqueue(req)
	case wire.RequestPop:
		return d.handlePop(ctx, conn, req)
	case wire.RequestAcknowledge:
		return d.handleAcknowledge(req)
	default:
		return wire.NewErrorResponse(req.RefID, "protocol_error: unrecognised request type")
	}
}

func (d *Dispatcher) handleAuthenticate(conn *Conn, req wire.RequestWrapper) wire.ResponseWrapper {
	if req.Authenticate == nil {
		return wire.NewErrorResponse(req.RefID, "protocol_error: empty authenticate body")
	}
	if d.AuthThrottle != nil && d.AuthThrottle.Blocked(conn.ID) {
		return wire.NewErrorResponse(req.RefID, "rate_limited: too many failed authentication attempts")
	}
	err := d.Authenticator.Verify(req.Authenticate.Username, req.Authenticate.Password)
	success := err == nil
	if success {
		conn.setState(StateReady)
	} else {
		if d.AuthThrottle != nil {
			d.AuthThrottle.RecordFailure(conn.ID)
		}
		d.Log.Warn("authentication failed", logging.String("session_id", conn.ID))
	}
	return wire.ResponseWrapper{
		RefID:        req.RefID,
		Type:         wire.ResponseAuthenticate,
		Authenticate: &wire.AuthenticateResponse{Success: success},
	}
}

func (d *Dispatcher) handleEnqueue(req wire.RequestWrapper) wire.ResponseWrapper {
	if req.Enqueue == nil {
		return wire.NewErrorResponse(req.RefID, "protocol_error: empty enqueue body")
	}
	id := d.Kernel.Enqueue(req.Enqueue.Payload, toKernelPriority(req.Enqueue.Priority), req.Enqueue.RequiredCapabilities)
	return wire.ResponseWrapper{
		RefID:   req.RefID,
		Type:    wire.ResponseEnqueue,
		Enqueue: &wire.EnqueueResponse{ID: id},
	}
}

func (d *Dispatcher) handlePop(ctx context.Context, conn *Conn, req wire.RequestWrapper) wire.ResponseWrapper {
	if req.Pop == nil {
		return wire.NewErrorResponse(req.RefID, "protocol_error: empty pop body")
	}
	result, err := d.Kernel.Pop(ctx, conn.ID, req.Pop.AvailableCapabilities, req.Pop.WaitForMessage)
	if err != nil {
		// Context cancellation or waiter cancellation: the session is on
		// its way down. The response is written best-effort; nobody may
		// read it.
		return wire.NewErrorResponse(req.RefID, "transport_error: "+err.Error())
	}
	if result.HadResult {
		d.recordDelivery(conn.ID, len(result.Payload))
	}
	return wire.ResponseWrapper{
		RefID: req.RefID,
		Type:  wire.ResponsePop,
		Pop:   &wire.PopResponse{HadResult: result.HadResult, ID: result.ID, Payload: result.Payload},
	}
}

func (d *Dispatcher) handleAcknowledge(req wire.RequestWrapper) wire.ResponseWrapper {
	if req.Acknowledge == nil {
		return wire.NewErrorResponse(req.RefID, "protocol_error: empty acknowledge body")
	}
	if err := d.Kernel.Acknowledge(req.Acknowledge.ID); err != nil {
		return wire.NewErrorResponse(req.RefID, "unknown_id")
	}
	return wire.ResponseWrapper{
		RefID:       req.RefID,
		Type:        wire.ResponseAcknowledge,
		Acknowledge: &wire.AcknowledgeResponse{},
	}
}

// recordDelivery charges a delivered payload against the session's
// bandwidth budget. A denial is logged but never blocks or drops the
// delivery: the acknowledge contract takes priority over throttling, so
// the regulator here is an overage signal for /metrics, not a gate.
func (d *Dispatcher) recordDelivery(sessionID string, payloadBytes int) {
	if d.Bandwidth == nil {
		return
	}
	if !d.Bandwidth.Allow(sessionID, payloadBytes) {
		d.Log.Warn("session exceeded delivery bandwidth budget",
			logging.String("session_id", sessionID), logging.Int("payload_bytes", payloadBytes))
	}
}

// Close releases every waiter and requeues every in-flight message this
// connection owns. It must be called exactly once, when the transport
// reports the connection is gone.
func (d *Dispatcher) Close(conn *Conn) {
	conn.setState(StateClosed)
	d.Kernel.CancelSession(conn.ID)
	if d.Bandwidth != nil {
		d.Bandwidth.Forget(conn.ID)
	}
	if d.AuthThrottle != nil {
		d.AuthThrottle.Forget(conn.ID)
	}
}

func toKernelPriority(p wire.Priority) kernel.Priority {
	if p == wire.PriorityHigh {
		return kernel.High
	}
	return kernel.Low
}
