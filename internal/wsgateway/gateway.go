// Package wsgateway exposes the same request/response protocol as the raw
// stream transport over a websocket connection, and additionally supports
// genuine server-push streaming subscriptions: a websocket connection can
// carry both request/response traffic and unsolicited delivery pushes
// without the client having to poll.
package wsgateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"brqueue/internal/logging"
	"brqueue/internal/networking"
	"brqueue/internal/session"
	"brqueue/internal/wire"
)

const (
	// writeWait bounds how long a single outgoing frame write may take.
	writeWait = 10 * time.Second
	// pongWaitMultiplier sets the read deadline as a multiple of the
	// configured ping interval: a missed ping-pong round trip by this
	// factor is treated as a dead peer.
	pongWaitMultiplier = 2
	sendBufferSize     = 256
)

// Gateway upgrades HTTP requests to websocket connections and services
// them with the same Dispatcher the raw stream transport uses.
type Gateway struct {
	Dispatcher      *session.Dispatcher
	Log             *logging.Logger
	Upgrader        websocket.Upgrader
	MaxPayloadBytes int64
	PingInterval    time.Duration

	// Clients, if set, caps concurrent connections across both transports.
	// Over-capacity upgrade requests are refused before the handshake.
	Clients *networking.ClientGate
}

type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	connState *session.Conn
	log       *logging.Logger
	gateway   *Gateway
	wg        sync.WaitGroup
}

// ServeHTTP upgrades the connection and spawns its read/write loops.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.Clients.Acquire() {
		g.Log.Warn("refusing websocket connection: client limit reached",
			logging.String("remote_addr", r.RemoteAddr))
		http.Error(w, "client limit reached", http.StatusServiceUnavailable)
		return
	}
	conn, err := g.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.Clients.Release()
		g.Log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	c := &wsClient{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		connState: session.NewConn(uuid.NewString()),
		log:       g.Log.With(logging.String("remote_addr", conn.RemoteAddr().String())),
		gateway:   g,
	}

	if g.MaxPayloadBytes > 0 {
		conn.SetReadLimit(g.MaxPayloadBytes)
	}

	waitDuration := time.Duration(pongWaitMultiplier) * g.PingInterval
	if err := conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
		c.log.Error("failed to set initial read deadline", logging.Error(err))
		conn.Close()
		g.Clients.Release()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(waitDuration))
	})

	ctx, cancel := context.WithCancel(r.Context())
	go c.writeLoop(cancel)
	c.readLoop(ctx, cancel, waitDuration)
}

func (c *wsClient) readLoop(ctx context.Context, cancel context.CancelFunc, waitDuration time.Duration) {
	defer func() {
		cancel()
		c.gateway.Dispatcher.Close(c.connState)
		c.conn.Close()
		c.wg.Wait()
		close(c.send)
		c.gateway.Clients.Release()
	}()

	for {
		messageType, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("unexpected websocket close", logging.Error(err))
			} else if !errors.Is(err, net.ErrClosed) {
				c.log.Debug("websocket read ended", logging.Error(err))
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(waitDuration)); err != nil {
			c.log.Error("failed to extend read deadline", logging.Error(err))
			return
		}
		if messageType != websocket.TextMessage {
			c.log.Debug("dropping non-text websocket message")
			continue
		}

		var req wire.RequestWrapper
		if err := json.Unmarshal(msg, &req); err != nil {
			c.log.Warn("dropping connection after undecodable message", logging.Error(err))
			c.enqueueResponse(wire.NewErrorResponse(0, "protocol_error: undecodable frame"))
			return
		}

		if req.Type == wire.RequestSubscribe {
			c.handleSubscribe(ctx, req)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			resp := c.gateway.Dispatcher.Handle(ctx, c.connState, req)
			c.enqueueResponse(resp)
		}()
	}
}

func (c *wsClient) handleSubscribe(ctx context.Context, req wire.RequestWrapper) {
	if req.Subscribe == nil {
		c.enqueueResponse(wire.NewErrorResponse(req.RefID, "protocol_error: empty subscribe body"))
		return
	}
	if c.connState.State() != session.StateReady {
		c.enqueueResponse(wire.NewErrorResponse(req.RefID, "unauthenticated"))
		return
	}
	if req.Subscribe.MaxCount <= 0 {
		c.enqueueResponse(wire.NewErrorResponse(req.RefID, "protocol_error: maxCount must be positive"))
		return
	}

	deliveries := c.gateway.Dispatcher.Kernel.Subscribe(c.connState.ID, req.Subscribe.AvailableCapabilities, int(req.Subscribe.MaxCount))
	c.enqueueResponse(wire.ResponseWrapper{RefID: req.RefID, Type: wire.ResponseSubscribe, Subscribe: &wire.SubscribeResponse{}})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for d := range deliveries {
			if bandwidth := c.gateway.Dispatcher.Bandwidth; bandwidth != nil {
				if !bandwidth.Allow(c.connState.ID, len(d.Payload)) {
					c.log.Warn("session exceeded delivery bandwidth budget",
						logging.String("session_id", c.connState.ID), logging.Int("payload_bytes", len(d.Payload)))
				}
			}
			push := wire.NewPushWrapper(wire.DeliveryPush{SubscriptionRefID: req.RefID, ID: d.ID, Payload: d.Payload})
			data, err := json.Marshal(push)
			if err != nil {
				c.log.Error("failed to encode delivery push", logging.Error(err))
				continue
			}
			select {
			case c.send <- data:
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (c *wsClient) enqueueResponse(resp wire.ResponseWrapper) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("failed to encode response", logging.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("dropping response: send buffer full")
	}
}

func (c *wsClient) writeLoop(cancel context.CancelFunc) {
	pingTicker := time.NewTicker(c.gateway.PingInterval)
	defer func() {
		pingTicker.Stop()
		cancel()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Error("failed to set write deadline", logging.Error(err))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("websocket write error", logging.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				c.log.Warn("ping failure", logging.Error(err))
				return
			}
		}
	}
}
