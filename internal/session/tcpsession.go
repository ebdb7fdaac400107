package session

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"brqueue/internal/logging"
	"brqueue/internal/wire"
)

// TCPSession drives one raw stream connection: it reads length-prefixed
// frames, decodes requests, dispatches them (concurrently, so a blocking
// Pop never stalls the next request on the same connection) and writes
// responses back through a single writer guarded by writeMu.
type TCPSession struct {
	conn          net.Conn
	codec         *wire.Codec
	dispatcher    *Dispatcher
	log           *logging.Logger
	maxFrameBytes uint32

	connState *Conn

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewTCPSession wraps conn for service by dispatcher.
func NewTCPSession(conn net.Conn, codec *wire.Codec, dispatcher *Dispatcher, log *logging.Logger, maxFrameBytes uint32) *TCPSession {
	return &TCPSession{
		conn:          conn,
		codec:         codec,
		dispatcher:    dispatcher,
		log:           log.With(logging.String("remote_addr", conn.RemoteAddr().String())),
		maxFrameBytes: maxFrameBytes,
		connState:     NewConn(uuid.NewString()),
	}
}

// Serve reads and dispatches requests until the connection errors or
// ctx is cancelled. It always cleans up kernel state for this session
// before returning.
func (s *TCPSession) Serve(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer s.teardown(cancel)

	for {
		frame, err := wire.ReadFrame(s.conn, s.maxFrameBytes)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("tcp session read ended", logging.Error(err))
			}
			return
		}
		req, err := s.codec.DecodeRequest(frame)
		if err != nil {
			s.log.Warn("dropping connection after undecodable frame", logging.Error(err))
			s.writeResponse(wire.NewErrorResponse(0, "protocol_error: undecodable frame"))
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			resp := s.dispatcher.Handle(ctx, s.connState, req)
			s.writeResponse(resp)
		}()
	}
}

func (s *TCPSession) writeResponse(resp wire.ResponseWrapper) {
	frame, err := s.codec.EncodeResponse(resp)
	if err != nil {
		s.log.Error("failed to encode response", logging.Error(err))
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := wire.WriteFrame(s.conn, frame); err != nil {
		s.log.Debug("failed to write response", logging.Error(err))
	}
}

func (s *TCPSession) teardown(cancel context.CancelFunc) {
	// Cancel first so any goroutine blocked in a waiting Pop unblocks via
	// ctx.Done before we wait for every dispatched goroutine to finish.
	cancel()
	s.dispatcher.Close(s.connState)
	s.conn.Close()
	s.wg.Wait()
}
