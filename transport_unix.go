package mqtt311

import (
	"context"
	"net"
)

// UnixDialer connects to brokers listening on a Unix domain socket.
type UnixDialer struct{}

// NewUnixDialer creates a new Unix socket dialer.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}

// Dial connects to the socket file at path.
func (d *UnixDialer) Dial(ctx context.Context, path string) (Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", path)
}
