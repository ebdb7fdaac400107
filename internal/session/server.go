package session

import (
	"context"
	"fmt"
	"net"

	"brqueue/internal/logging"
	"brqueue/internal/networking"
	"brqueue/internal/wire"
)

// Server accepts raw stream connections and hands each to its own
// TCPSession.
type Server struct {
	Dispatcher    *Dispatcher
	Log           *logging.Logger
	Codec         *wire.Codec
	MaxFrameBytes uint32

	// Clients, if set, caps concurrent connections across both transports.
	// Over-capacity connections are closed without a response, mirroring a
	// connection refusal.
	Clients *networking.ClientGate
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("session: accept: %w", err)
			}
		}
		if !s.Clients.Acquire() {
			s.Log.Warn("refusing connection: client limit reached",
				logging.String("remote_addr", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		sess := NewTCPSession(conn, s.Codec, s.Dispatcher, s.Log, s.MaxFrameBytes)
		go func() {
			defer s.Clients.Release()
			sess.Serve(ctx)
		}()
	}
}
