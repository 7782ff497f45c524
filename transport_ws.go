package mqtt311

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the subprotocol MQTT 3.1.1 brokers expect.
const WebSocketSubprotocol = "mqtt"

// ErrTextFrame is returned when the broker sends a WebSocket text message.
var ErrTextFrame = errors.New("websocket: text message on MQTT stream")

// WSConn presents a WebSocket connection as a byte stream. Every Write is
// one binary message; reads continue across message boundaries.
type WSConn struct {
	*websocket.Conn
	current io.Reader
}

// NewWSConn wraps an established WebSocket connection.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{Conn: conn}
}

// Read reads from the current binary message, moving to the next one when
// it is exhausted.
func (c *WSConn) Read(p []byte) (int, error) {
	for {
		if c.current == nil {
			messageType, r, err := c.Conn.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				return 0, ErrTextFrame
			}
			c.current = r
		}

		n, err := c.current.Read(p)
		if errors.Is(err, io.EOF) {
			c.current = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

// Write sends b as a single binary message.
func (c *WSConn) Write(b []byte) (int, error) {
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

// SetDeadline sets both read and write deadlines.
func (c *WSConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

// WSDialer connects to brokers over WebSocket.
type WSDialer struct {
	Dialer *websocket.Dialer

	// Header is sent with the opening handshake.
	Header http.Header
}

// NewWSDialer creates a dialer negotiating the mqtt subprotocol. A non-nil
// proxy tunnels the handshake.
func NewWSDialer(p *ProxyDialer) *WSDialer {
	d := &websocket.Dialer{
		Subprotocols:     []string{WebSocketSubprotocol},
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	if p != nil {
		d.NetDialContext = p.DialContext
	}
	return &WSDialer{Dialer: d}
}

// Dial performs the WebSocket handshake with a ws:// URL.
func (d *WSDialer) Dial(ctx context.Context, address string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = NewWSDialer(nil).Dialer
	}

	conn, resp, err := dialer.DialContext(ctx, address, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	return NewWSConn(conn), nil
}
