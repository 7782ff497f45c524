package mqtt311

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Client is a synchronous MQTT 3.1.1 client on top of Connection.
//
// The transport is supplied by the caller: frames go out through a Sender
// and every complete frame received from the broker is handed to Receive.
// Use Dial for a client that owns a network connection.
//
// All methods are safe for concurrent use. Handler callbacks run after the
// client lock is released and may call back into the Client.
type Client struct {
	mu      sync.Mutex
	conn    *Connection
	options *clientOptions
	handler Handler
	limiter *rate.Limiter
	metrics *ClientMetrics
	logger  Logger

	// acknowledgement state, guarded by mu
	connackSeen   bool
	connackStatus Status
	events        []clientEvent

	closed atomic.Bool
	done   chan struct{}

	// set by Dial
	stream *streamTransport
}

type clientEvent struct {
	connack bool
	status  Status
	msg     *Message
}

// NewClient creates a client that sends frames through sender and reports
// broker events to handler. The connection starts Disconnected.
func NewClient(sender Sender, handler Handler, opts ...Option) *Client {
	return newClient(sender, handler, applyOptions(opts...))
}

func newClient(sender Sender, handler Handler, options *clientOptions) *Client {
	if handler == nil {
		handler = HandlerFuncs{}
	}

	c := &Client{
		options: options,
		handler: handler,
		limiter: rate.NewLimiter(options.publishLimit, options.publishBurst),
		metrics: NewClientMetrics(options.metrics),
		logger:  options.logger.WithFields(LogFields{LogFieldClientID: options.clientID}),
		done:    make(chan struct{}),
	}

	c.conn = NewConnection(ConnectionConfig{
		Sender:  sender,
		Handler: (*recordingHandler)(c),
		Buffer:  options.transmitBuffer(),
		Logger:  c.logger,
		Metrics: options.metrics,
	})

	return c
}

// recordingHandler is the Handler installed on the Connection. It runs with
// c.mu held and queues events for delivery after the lock is released.
type recordingHandler Client

func (h *recordingHandler) OnConnected(status Status) {
	h.connackSeen = true
	h.connackStatus = status
	h.events = append(h.events, clientEvent{connack: true, status: status})
}

func (h *recordingHandler) OnMessage(status Status, msg *Message) {
	h.events = append(h.events, clientEvent{status: status, msg: msg})
}

// dispatch runs one action under the lock and delivers queued events.
func (c *Client) dispatch(action Action) (Status, error) {
	c.mu.Lock()
	status := c.conn.Dispatch(action)
	cause := c.conn.Err()
	events := c.events
	c.events = nil
	c.mu.Unlock()

	for _, ev := range events {
		if ev.connack {
			c.handler.OnConnected(ev.status)
			continue
		}
		c.handler.OnMessage(ev.status, ev.msg)
	}

	return status, cause
}

// Dispatch runs an action on the underlying Connection and returns the raw
// status.
func (c *Client) Dispatch(action Action) Status {
	status, _ := c.dispatch(action)
	return status
}

// ClientID returns the client identifier sent in CONNECT.
func (c *Client) ClientID() string {
	return c.options.clientID
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.State()
}

// IsConnected reports whether the connection is in the Connected state.
func (c *Client) IsConnected() bool {
	return !c.closed.Load() && c.State() == StateConnected
}

// SubscribeStatus returns the acknowledgement state of the last SUBSCRIBE.
func (c *Client) SubscribeStatus() SubscribeStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.SubscribeStatus()
}

// Connect sends CONNECT and waits for the CONNACK until the connect timeout
// or ctx expires. On timeout the connection is reset to Disconnected.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	c.mu.Lock()
	c.connackSeen = false
	c.mu.Unlock()

	start := time.Now()

	status, cause := c.dispatch(ConnectAction{Packet: c.options.connectPacket()})
	if err := statusError(status, cause); err != nil {
		return err
	}

	if c.options.connectTimeout <= 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.options.connectTimeout)
	defer cancel()

	var ack Status
	err := c.poll(waitCtx, func() bool {
		if c.connackSeen {
			ack = c.connackStatus
		}
		return c.connackSeen
	})
	if err != nil {
		c.Dispatch(InitAction{})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrConnectTimeout
	}

	if ack != StatusSuccess {
		connErr := NewConnectError(ack)
		c.emit(connErr)
		return connErr
	}

	c.metrics.ConnectLatency(time.Since(start))
	c.logger.Info("connected", LogFields{LogFieldDuration: time.Since(start).String()})
	c.emit(ErrConnected)
	return nil
}

// poll calls cond under the lock every poll interval until it returns true
// or ctx is done.
func (c *Client) poll(ctx context.Context, cond func() bool) error {
	check := func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return cond()
	}

	if check() {
		return nil
	}

	ticker := time.NewTicker(c.options.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if check() {
				return nil
			}
		}
	}
}

// Publish sends a QoS 0 message using the client's transmit buffer.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.PublishMessage(context.Background(), &Message{Topic: topic, Payload: payload}, nil)
}

// PublishBuf sends a QoS 0 message building the frame in buf instead of the
// shared transmit buffer. A nil buf falls back to the shared buffer.
func (c *Client) PublishBuf(topic string, payload, buf []byte) error {
	return c.PublishMessage(context.Background(), &Message{Topic: topic, Payload: payload}, buf)
}

// PublishMessage sends msg. QoS, Retain and DUP are taken from msg; no
// acknowledgement is awaited for QoS 1 and 2. A non-nil buf is used as the
// frame buffer. ctx bounds the wait for the publish rate limiter.
func (c *Client) PublishMessage(ctx context.Context, msg *Message, buf []byte) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if msg == nil {
		return StatusInvalidArgument
	}
	if err := ValidateTopicName(msg.Topic); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	status, cause := c.dispatch(PublishAction{
		Packet: &PublishPacket{
			Topic:   msg.Topic,
			Payload: msg.Payload,
			QoS:     msg.QoS,
			Retain:  msg.Retain,
			DUP:     msg.DUP,
		},
		Buffer: buf,
	})
	return statusError(status, cause)
}

// Subscribe subscribes to filter at QoS 0 and waits for the SUBACK until the
// subscribe timeout or ctx expires.
func (c *Client) Subscribe(ctx context.Context, filter string) error {
	return c.SubscribeQoS(ctx, filter, QoS0)
}

// SubscribeQoS is Subscribe with an explicit requested QoS.
func (c *Client) SubscribeQoS(ctx context.Context, filter string, qos QoS) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}

	status, cause := c.dispatch(SubscribeAction{Topic: filter, QoS: qos})
	if err := statusError(status, cause); err != nil {
		return err
	}

	if c.options.subscribeTimeout <= 0 {
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.options.subscribeTimeout)
	defer cancel()

	var result SubscribeStatus
	err := c.poll(waitCtx, func() bool {
		result = c.conn.SubscribeStatus()
		return result != SubscribePending
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrSubscribeTimeout
	}

	if result == SubscribeFailed {
		return &SubscribeError{Topic: filter}
	}

	c.logger.Debug("subscribed", LogFields{LogFieldTopic: filter})
	return nil
}

// KeepAlive advances the keepalive countdown by elapsed and sends PINGREQ
// when it is due. A ping that is not yet due is not an error.
func (c *Client) KeepAlive(elapsed time.Duration) error {
	status, cause := c.dispatch(KeepAliveAction{Elapsed: elapsed})
	return statusError(status, cause)
}

// Receive handles one complete frame from the broker.
func (c *Client) Receive(frame []byte) error {
	status, cause := c.dispatch(ParseAction{Data: frame})
	return statusError(status, cause)
}

// Disconnect sends DISCONNECT. The connection is Disconnected afterwards
// even when the send fails.
func (c *Client) Disconnect() error {
	status, cause := c.dispatch(DisconnectAction{})
	if status != StatusNoConnection {
		c.emit(ErrDisconnected)
	}
	return statusError(status, cause)
}

// Reset returns the connection to its initial Disconnected state.
func (c *Client) Reset() {
	c.Dispatch(InitAction{})
}

func (c *Client) emit(event error) {
	if c.options.onEvent != nil {
		c.options.onEvent(c, event)
	}
}
