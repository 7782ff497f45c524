package mqtt311

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"
)

// Default broker ports per scheme.
const (
	DefaultPort          = "1883"
	DefaultWebSocketPort = "80"
)

// ErrUnsupportedScheme is returned for broker addresses with an unknown scheme.
var ErrUnsupportedScheme = errors.New("unsupported scheme")

// Conn is a byte stream to the broker.
type Conn interface {
	net.Conn
}

// Dialer establishes broker connections.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (Conn, error)
}

// TCPDialer connects to brokers over TCP, optionally through a proxy.
type TCPDialer struct {
	// Timeout bounds the connection attempt. Zero means no timeout.
	Timeout time.Duration

	// Proxy, when set, tunnels the connection.
	Proxy *ProxyDialer
}

// Dial connects to a host:port address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	if d.Proxy != nil {
		return d.Proxy.DialContext(ctx, "tcp", address)
	}

	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", address)
}

// connSender sends frames on a Conn, bounding each write by timeout.
type connSender struct {
	conn    Conn
	timeout time.Duration
}

func (s connSender) Send(frame []byte) (int, error) {
	if s.timeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout)); err != nil {
			return 0, err
		}
	}
	return s.conn.Write(frame)
}

// brokerAddress splits a broker URL into its scheme and dial address.
// A bare host:port is treated as tcp.
func brokerAddress(address string) (scheme, target string, err error) {
	u, err := url.Parse(address)
	if err != nil || u.Scheme == "" || u.Host == "" && u.Path == "" || u.Opaque != "" {
		if _, _, splitErr := net.SplitHostPort(address); splitErr == nil {
			return "tcp", address, nil
		}
		if err == nil {
			err = ErrUnsupportedScheme
		}
		return "", "", err
	}

	switch u.Scheme {
	case "tcp", "mqtt":
		host := u.Host
		if u.Port() == "" {
			host = net.JoinHostPort(u.Hostname(), DefaultPort)
		}
		return "tcp", host, nil
	case "ws":
		if u.Port() == "" {
			u.Host = net.JoinHostPort(u.Hostname(), DefaultWebSocketPort)
		}
		if u.Path == "" {
			u.Path = "/mqtt"
		}
		return "ws", u.String(), nil
	case "unix":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + u.Path
		}
		return "unix", path, nil
	default:
		return "", "", ErrUnsupportedScheme
	}
}
