package session

import (
	"context"
	"testing"
	"time"

	"brqueue/internal/auth"
	"brqueue/internal/kernel"
	"brqueue/internal/logging"
	"brqueue/internal/networking"
	"brqueue/internal/wire"
)

func newTestDispatcher() *Dispatcher {
	return &Dispatcher{
		Kernel:        kernel.New(),
		Authenticator: auth.NewStaticAuthenticator("worker", "s3cret"),
		Log:           logging.NewTestLogger(),
	}
}

func TestUnauthenticatedRequestIsRejected(t *testing.T) {
	d := newTestDispatcher()
	conn := NewConn("conn-1")

	resp := d.Handle(context.Background(), conn, wire.RequestWrapper{
		RefID: 1,
		Type:  wire.RequestEnqueue,
		Enqueue: &wire.EnqueueRequest{
			Payload: []byte("x"),
		},
	})
	if resp.Type != wire.ResponseError || resp.Error == nil {
		t.Fatalf("expected error response before authentication, got %+v", resp)
	}
}

func TestAuthenticateThenEnqueuePopAcknowledge(t *testing.T) {
	d := newTestDispatcher()
	conn := NewConn("conn-1")
	ctx := context.Background()

	authResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID:        1,
		Type:         wire.RequestAuthenticate,
		Authenticate: &wire.AuthenticateRequest{Username: "worker", Password: "s3cret"},
	})
	if authResp.Authenticate == nil || !authResp.Authenticate.Success {
		t.Fatalf("expected successful authentication, got %+v", authResp)
	}

	enqResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID: 2,
		Type:  wire.RequestEnqueue,
		Enqueue: &wire.EnqueueRequest{
			Payload:  []byte("payload"),
			Priority: wire.PriorityHigh,
		},
	})
	if enqResp.Enqueue == nil || enqResp.Enqueue.ID == "" {
		t.Fatalf("expected enqueue response with id, got %+v", enqResp)
	}
	if enqResp.RefID != 2 {
		t.Fatalf("expected refId echoed, got %d", enqResp.RefID)
	}

	popResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID: 3,
		Type:  wire.RequestPop,
		Pop:   &wire.PopRequest{WaitForMessage: false},
	})
	if popResp.Pop == nil || !popResp.Pop.HadResult || popResp.Pop.ID != enqResp.Enqueue.ID {
		t.Fatalf("expected pop to return the enqueued message, got %+v", popResp)
	}

	ackResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID:       4,
		Type:        wire.RequestAcknowledge,
		Acknowledge: &wire.AcknowledgeRequest{ID: popResp.Pop.ID},
	})
	if ackResp.Acknowledge == nil {
		t.Fatalf("expected acknowledge response, got %+v", ackResp)
	}

	dupAckResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID:       5,
		Type:        wire.RequestAcknowledge,
		Acknowledge: &wire.AcknowledgeRequest{ID: popResp.Pop.ID},
	})
	if dupAckResp.Type != wire.ResponseError {
		t.Fatalf("expected unknown_id error on duplicate ack, got %+v", dupAckResp)
	}
}

func TestAuthenticateWithWrongCredentialFails(t *testing.T) {
	d := newTestDispatcher()
	conn := NewConn("conn-1")

	resp := d.Handle(context.Background(), conn, wire.RequestWrapper{
		RefID:        1,
		Type:         wire.RequestAuthenticate,
		Authenticate: &wire.AuthenticateRequest{Username: "worker", Password: "wrong"},
	})
	if resp.Authenticate == nil || resp.Authenticate.Success {
		t.Fatalf("expected authentication failure, got %+v", resp)
	}
	if conn.getState() != StateUnauth {
		t.Fatalf("expected connection to remain unauthenticated, state=%v", conn.getState())
	}
}

func TestRepeatedAuthFailuresAreThrottled(t *testing.T) {
	d := newTestDispatcher()
	d.AuthThrottle = networking.NewAuthFailureThrottle(time.Minute, 2, nil)
	conn := NewConn("conn-1")
	ctx := context.Background()

	badAuth := wire.RequestWrapper{
		RefID:        1,
		Type:         wire.RequestAuthenticate,
		Authenticate: &wire.AuthenticateRequest{Username: "worker", Password: "wrong"},
	}
	for i := 0; i < 2; i++ {
		resp := d.Handle(ctx, conn, badAuth)
		if resp.Authenticate == nil || resp.Authenticate.Success {
			t.Fatalf("expected plain failure on attempt %d, got %+v", i+1, resp)
		}
	}

	resp := d.Handle(ctx, conn, badAuth)
	if resp.Type != wire.ResponseError {
		t.Fatalf("expected throttled attempt to be rejected, got %+v", resp)
	}

	// The budget is per session: a fresh connection is unaffected and the
	// correct credential goes straight through.
	other := NewConn("conn-2")
	good := d.Handle(ctx, other, wire.RequestWrapper{
		RefID:        1,
		Type:         wire.RequestAuthenticate,
		Authenticate: &wire.AuthenticateRequest{Username: "worker", Password: "s3cret"},
	})
	if good.Authenticate == nil || !good.Authenticate.Success {
		t.Fatalf("expected other session to authenticate, got %+v", good)
	}
}

func TestCloseRequeuesInFlightMessages(t *testing.T) {
	d := newTestDispatcher()
	conn := NewConn("conn-1")
	conn.setState(StateReady)
	ctx := context.Background()

	enqResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID:   1,
		Type:    wire.RequestEnqueue,
		Enqueue: &wire.EnqueueRequest{Payload: []byte("x")},
	})
	popResp := d.Handle(ctx, conn, wire.RequestWrapper{
		RefID: 2,
		Type:  wire.RequestPop,
		Pop:   &wire.PopRequest{},
	})
	if !popResp.Pop.HadResult {
		t.Fatalf("expected pop to return the message, got %+v", popResp)
	}

	d.Close(conn)

	other := NewConn("conn-2")
	other.setState(StateReady)
	requeued := d.Handle(ctx, other, wire.RequestWrapper{
		RefID: 3,
		Type:  wire.RequestPop,
		Pop:   &wire.PopRequest{},
	})
	if !requeued.Pop.HadResult || requeued.Pop.ID != enqResp.Enqueue.ID {
		t.Fatalf("expected requeued message poppable by another session, got %+v", requeued)
	}
}
