package mqtt311

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
)

// streamTransport is the network side of a dialed client.
type streamTransport struct {
	conn   Conn
	cancel context.CancelFunc
	group  *errgroup.Group
	err    error
}

// Dial connects to the broker at address, starts the receive and keepalive
// loops and performs the MQTT handshake.
//
// Supported addresses are tcp://host:port, mqtt://host:port,
// ws://host:port/path, unix:///path/to/socket and a bare host:port.
// Messages are delivered to handler from the receive goroutine. Frames
// longer than WithMaxPacketSize end the connection.
func Dial(ctx context.Context, address string, handler Handler, opts ...Option) (*Client, error) {
	options := applyOptions(opts...)

	scheme, target, err := brokerAddress(address)
	if err != nil {
		return nil, err
	}

	dialer, err := options.selectDialer(scheme, target)
	if err != nil {
		return nil, err
	}

	conn, err := dialer.Dial(ctx, target)
	if err != nil {
		return nil, err
	}

	if remote := conn.RemoteAddr(); remote != nil {
		options.logger = options.logger.WithFields(LogFields{LogFieldRemoteAddr: remote.String()})
	}

	c := newClient(connSender{conn: conn, timeout: options.writeTimeout}, handler, options)

	c.start(conn)

	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// selectDialer returns the configured dialer or one matching the scheme.
func (o *clientOptions) selectDialer(scheme, target string) (Dialer, error) {
	if o.dialer != nil {
		return o.dialer, nil
	}

	switch scheme {
	case "tcp":
		p, err := o.proxyDialer("tcp://" + target)
		if err != nil {
			return nil, err
		}
		return &TCPDialer{Timeout: o.connectTimeout, Proxy: p}, nil
	case "ws":
		p, err := o.proxyDialer(target)
		if err != nil {
			return nil, err
		}
		d := NewWSDialer(p)
		d.Header = o.wsHeader
		return d, nil
	case "unix":
		return NewUnixDialer(), nil
	default:
		return nil, ErrUnsupportedScheme
	}
}

// proxyDialer returns the explicit proxy, the environment proxy for
// brokerURL, or nil.
func (o *clientOptions) proxyDialer(brokerURL string) (*ProxyDialer, error) {
	if o.proxyConfig != nil {
		return NewProxyDialer(*o.proxyConfig)
	}
	if !o.proxyFromEnv {
		return nil, nil
	}

	u, err := ProxyFromEnvironment(brokerURL)
	if err != nil || u == nil {
		return nil, err
	}
	return NewProxyDialer(ProxyConfig{URL: u.String()})
}

// start runs the receive, keepalive and shutdown goroutines for conn.
func (c *Client) start(conn Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	c.stream = &streamTransport{conn: conn, cancel: cancel, group: group}

	group.Go(func() error { return c.readLoop(conn) })
	group.Go(func() error { return c.keepAliveLoop(gctx) })
	group.Go(func() error {
		<-gctx.Done()
		return conn.Close()
	})

	go func() {
		err := group.Wait()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
		c.stream.err = err
		cancel()
		close(c.done)
	}()
}

// readLoop hands every complete frame to Receive until the stream ends.
func (c *Client) readLoop(conn Conn) error {
	fr := NewFrameReader(conn, c.options.maxPacketSize)

	for {
		err := fr.ReadFrame(func(frame []byte) error {
			if err := c.Receive(frame); err != nil {
				c.logger.Debug("frame rejected", LogFields{LogFieldError: err.Error()})
			}
			return nil
		})
		if err == nil {
			continue
		}

		if c.closed.Load() {
			return nil
		}

		if errors.Is(err, ErrPacketTooLarge) {
			c.logger.Warn("frame exceeds maximum packet size", LogFields{
				LogFieldError: err.Error(),
			})
		}

		c.Reset()
		lost := &ConnectionLostError{Cause: err}
		if errors.Is(err, io.EOF) {
			lost.Cause = nil
		}
		c.logger.Warn("connection lost", LogFields{LogFieldError: err.Error()})
		c.emit(lost)
		return lost
	}
}

// keepAliveLoop advances the keepalive countdown every tick interval.
func (c *Client) keepAliveLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.options.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			err := c.KeepAlive(now.Sub(last))
			last = now
			if err != nil && !errors.Is(err, ErrNotConnected) {
				c.logger.Warn("keepalive failed", LogFields{LogFieldError: err.Error()})
			}
		}
	}
}

// Close sends DISCONNECT when connected and releases the network
// connection of a dialed client. Close is idempotent. It must not be called
// from a Handler callback of a dialed client.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if c.State() == StateConnected {
		err = c.Disconnect()
	}

	if c.stream == nil {
		close(c.done)
		return err
	}

	c.stream.cancel()
	<-c.done
	return err
}

// Done is closed when the client stops: after Close, or when the stream of a
// dialed client ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the stream of a dialed client once Done
// is closed. A connection closed by Close reports nil.
func (c *Client) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	if c.stream == nil {
		return nil
	}
	return c.stream.err
}
