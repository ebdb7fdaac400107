// Package websockettest holds helpers for tests that drive the broker's
// websocket transport with a real client connection.
package websockettest

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// WSURL converts an httptest server URL into the equivalent ws:// URL.
func WSURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

// Dial establishes a websocket connection with the default dialer, which
// answers server pings automatically.
func Dial(httpURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return websocket.DefaultDialer.Dial(WSURL(httpURL), header)
}

// DialIgnoringPongs establishes a websocket connection and disables the
// automatic ping/pong responses so tests can simulate an unresponsive peer
// that the keepalive loop should disconnect.
func DialIgnoringPongs(httpURL string, header http.Header) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(WSURL(httpURL), header)
	if err != nil {
		return nil, resp, err
	}
	conn.SetPingHandler(func(string) error { return nil })
	conn.SetPongHandler(func(string) error { return nil })
	return conn, resp, nil
}
