package mqtt311

import (
	"errors"
	"fmt"
)

// State is the connection state tracked by Connection.
type State int32

// Connection states.
const (
	StateDisconnected State = iota
	StateConnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// SubscribeStatus tracks the acknowledgement of the last SUBSCRIBE.
type SubscribeStatus int32

// Subscribe acknowledgement states.
const (
	SubscribeNone SubscribeStatus = iota
	SubscribePending
	SubscribeAcked
	SubscribeFailed
)

// String returns the string representation of the subscribe status.
func (s SubscribeStatus) String() string {
	switch s {
	case SubscribeNone:
		return "none"
	case SubscribePending:
		return "pending"
	case SubscribeAcked:
		return "acked"
	case SubscribeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Sender hands one complete frame to the transport.
// Writing fewer than len(frame) bytes is treated as a failure.
type Sender interface {
	Send(frame []byte) (int, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(frame []byte) (int, error)

// Send calls f(frame).
func (f SenderFunc) Send(frame []byte) (int, error) { return f(frame) }

// Handler receives broker events decoded by Connection.
type Handler interface {
	// OnConnected is called for every CONNACK with the mapped return code.
	OnConnected(status Status)

	// OnMessage is called for every PUBLISH and SUBACK. msg is nil for SUBACK
	// and for frames that failed to decode.
	OnMessage(status Status, msg *Message)
}

// HandlerFuncs adapts plain functions to the Handler interface. Nil fields
// ignore the event.
type HandlerFuncs struct {
	Connected func(status Status)
	Message   func(status Status, msg *Message)
}

// OnConnected calls h.Connected if set.
func (h HandlerFuncs) OnConnected(status Status) {
	if h.Connected != nil {
		h.Connected(status)
	}
}

// OnMessage calls h.Message if set.
func (h HandlerFuncs) OnMessage(status Status, msg *Message) {
	if h.Message != nil {
		h.Message(status, msg)
	}
}

// ConnectionConfig holds the collaborators of a Connection.
type ConnectionConfig struct {
	// Sender transmits frames. Required.
	Sender Sender

	// Handler receives CONNACK, PUBLISH and SUBACK events. Optional.
	Handler Handler

	// Buffer is the transmit buffer frames are built in. A nil buffer makes
	// every frame allocate.
	Buffer []byte

	// Logger defaults to NoOpLogger.
	Logger Logger

	// Metrics defaults to NoOpMetrics.
	Metrics Metrics
}

// Connection is the client side MQTT 3.1.1 state machine.
//
// All work happens in Dispatch, which runs each action to completion. A
// Connection is not safe for concurrent use; callers serialize access.
type Connection struct {
	state     State
	sender    Sender
	handler   Handler
	buf       []byte
	control   [2]byte
	counter   uint32
	keepAlive KeepAliveTimer
	subscribe SubscribeStatus
	err       error
	logger    Logger
	metrics   *ClientMetrics
}

// NewConnection creates a Connection in the Disconnected state.
func NewConnection(cfg ConnectionConfig) *Connection {
	c := &Connection{
		sender:  cfg.Sender,
		handler: cfg.Handler,
		buf:     cfg.Buffer,
		logger:  cfg.Logger,
	}

	if c.handler == nil {
		c.handler = HandlerFuncs{}
	}
	if c.logger == nil {
		c.logger = NewNoOpLogger()
	}

	m := cfg.Metrics
	if m == nil {
		m = &NoOpMetrics{}
	}
	c.metrics = NewClientMetrics(m)

	return c
}

// State returns the current connection state.
func (c *Connection) State() State { return c.state }

// KeepAlive returns a copy of the keepalive timer.
func (c *Connection) KeepAlive() KeepAliveTimer { return c.keepAlive }

// SubscribeStatus returns the acknowledgement state of the last SUBSCRIBE.
func (c *Connection) SubscribeStatus() SubscribeStatus { return c.subscribe }

// PacketCounter returns the number of packet identifiers handed out since
// the last InitAction.
func (c *Connection) PacketCounter() uint32 { return c.counter }

// Err returns the encode or transport error behind the status of the last
// Dispatch, if there was one.
func (c *Connection) Err() error { return c.err }

// Dispatch runs one action and returns its status.
func (c *Connection) Dispatch(action Action) Status {
	var status Status
	c.err = nil

	switch a := action.(type) {
	case InitAction:
		status = c.init()
	case ConnectAction:
		status = c.connect(a)
	case PublishAction:
		status = c.publish(a)
	case SubscribeAction:
		status = c.subscribeTopic(a)
	case KeepAliveAction:
		status = c.tick(a)
	case ParseAction:
		status = c.parse(a)
	case DisconnectAction:
		status = c.disconnect()
	default:
		return StatusInvalidArgument
	}

	if status != StatusPingNotSent {
		c.logger.Debug("dispatch", LogFields{
			LogFieldAction: action.actionName(),
			LogFieldStatus: status.String(),
			LogFieldState:  c.state.String(),
		})
	}

	return status
}

func (c *Connection) init() Status {
	c.setState(StateDisconnected)
	c.counter = 0
	c.keepAlive = KeepAliveTimer{}
	c.subscribe = SubscribeNone
	return StatusSuccess
}

func (c *Connection) connect(a ConnectAction) Status {
	if a.Packet == nil {
		return StatusInvalidArgument
	}
	if c.state == StateConnected {
		return StatusAlreadyConnected
	}

	frame, err := MarshalPacket(c.buf, a.Packet)
	if err != nil {
		c.logEncodeError(PacketCONNECT, err)
		return StatusInvalidArgument
	}

	if err := c.send(PacketCONNECT, frame); err != nil {
		c.setState(StateDisconnected)
		return StatusServerUnavailable
	}

	c.keepAlive.start(a.Packet.KeepAlive)
	c.subscribe = SubscribeNone
	c.setState(StateConnected)
	return StatusSuccess
}

func (c *Connection) publish(a PublishAction) Status {
	if a.Packet == nil {
		return StatusInvalidArgument
	}
	if c.state != StateConnected {
		return StatusNoConnection
	}

	pkt := *a.Packet
	pkt.PacketID = c.nextPacketID()

	buf := c.buf
	if a.Buffer != nil {
		buf = a.Buffer
	}

	frame, err := MarshalPacket(buf, &pkt)
	if err != nil {
		c.logEncodeError(PacketPUBLISH, err)
		return StatusInvalidArgument
	}

	if err := c.send(PacketPUBLISH, frame); err != nil {
		c.setState(StateDisconnected)
		return StatusServerUnavailable
	}

	c.keepAlive.Reset()
	return StatusSuccess
}

func (c *Connection) subscribeTopic(a SubscribeAction) Status {
	if c.state != StateConnected {
		return StatusNoConnection
	}

	pkt := SubscribePacket{Topic: a.Topic, QoS: a.QoS}
	if err := pkt.Validate(); err != nil {
		c.logEncodeError(PacketSUBSCRIBE, err)
		return StatusInvalidArgument
	}
	pkt.PacketID = c.nextPacketID()

	frame, err := MarshalPacket(c.buf, &pkt)
	if err != nil {
		c.logEncodeError(PacketSUBSCRIBE, err)
		return StatusInvalidArgument
	}

	if err := c.send(PacketSUBSCRIBE, frame); err != nil {
		c.setState(StateDisconnected)
		return StatusServerUnavailable
	}

	c.keepAlive.Reset()
	c.subscribe = SubscribePending
	return StatusSuccess
}

func (c *Connection) tick(a KeepAliveAction) Status {
	if c.state != StateConnected {
		return StatusNoConnection
	}
	if !c.keepAlive.Enabled() {
		return StatusSuccess
	}
	if !c.keepAlive.Tick(a.Elapsed) {
		return StatusPingNotSent
	}

	frame, err := MarshalPacket(c.control[:0], &PingreqPacket{})
	if err != nil {
		c.logEncodeError(PacketPINGREQ, err)
		return StatusInvalidArgument
	}

	if err := c.send(PacketPINGREQ, frame); err != nil {
		c.setState(StateDisconnected)
		return StatusServerUnavailable
	}

	c.metrics.PingSent()
	c.keepAlive.Reset()
	return StatusSuccess
}

func (c *Connection) disconnect() Status {
	if c.state != StateConnected {
		return StatusNoConnection
	}

	status := StatusSuccess

	frame, err := MarshalPacket(c.control[:0], &DisconnectPacket{})
	if err == nil {
		err = c.send(PacketDISCONNECT, frame)
	}
	if err != nil {
		status = StatusServerUnavailable
	}

	c.setState(StateDisconnected)
	return status
}

func (c *Connection) parse(a ParseAction) Status {
	if len(a.Data) == 0 {
		return StatusInvalidArgument
	}

	header, pkt, err := parseFrame(a.Data)
	c.keepAlive.Reset()
	c.metrics.BytesReceived(len(a.Data))

	if err != nil {
		return c.parseFailed(header, err)
	}

	c.metrics.PacketReceived(header.Type)

	switch p := pkt.(type) {
	case *ConnackPacket:
		status := p.ReturnCode.Status()
		if status == StatusSuccess {
			c.setState(StateConnected)
		} else {
			c.setState(StateDisconnected)
			c.logger.Warn("connection refused", LogFields{
				LogFieldReturnCode: p.ReturnCode.String(),
			})
		}
		c.handler.OnConnected(status)
		return status

	case *PublishPacket:
		c.metrics.MessageReceived(p.QoS)
		c.handler.OnMessage(StatusSuccess, p.Message())
		return StatusSuccess

	case *SubackPacket:
		status := StatusSuccess
		c.subscribe = SubscribeAcked
		if !p.Granted() {
			status = StatusPublishDecodeError
			c.subscribe = SubscribeFailed
		}
		c.handler.OnMessage(status, nil)
		return status

	case *PingrespPacket:
		return StatusSuccess

	default:
		return StatusInvalidArgument
	}
}

func (c *Connection) parseFailed(header FixedHeader, err error) Status {
	c.err = err
	c.metrics.DecodeError()
	c.logger.Debug("frame decode failed", LogFields{
		LogFieldPacketType: header.Type.String(),
		LogFieldError:      err.Error(),
	})

	if errors.Is(err, ErrUnexpectedPacketType) {
		return StatusInvalidArgument
	}

	switch header.Type {
	case PacketPUBLISH:
		c.handler.OnMessage(StatusPublishDecodeError, nil)
		return StatusPublishDecodeError
	case PacketSUBACK:
		c.subscribe = SubscribeFailed
		c.handler.OnMessage(StatusPublishDecodeError, nil)
		return StatusPublishDecodeError
	default:
		return StatusInvalidArgument
	}
}

// nextPacketID advances the counter and returns its low 16 bits, skipping 0.
func (c *Connection) nextPacketID() uint16 {
	c.counter++
	if uint16(c.counter) == 0 {
		c.counter++
	}
	return uint16(c.counter)
}

func (c *Connection) send(packetType PacketType, frame []byte) error {
	if c.sender == nil {
		c.err = errNoSender
		return errNoSender
	}

	n, err := c.sender.Send(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("%w: %d of %d bytes", errShortWrite, n, len(frame))
	}
	if err != nil {
		c.err = err
		c.logger.Warn("send failed", LogFields{
			LogFieldPacketType: packetType.String(),
			LogFieldError:      err.Error(),
		})
		return err
	}

	c.metrics.PacketSent(packetType)
	c.metrics.BytesSent(n)
	return nil
}

func (c *Connection) setState(s State) {
	c.state = s
	c.metrics.Connected(s == StateConnected)
}

func (c *Connection) logEncodeError(packetType PacketType, err error) {
	c.err = err
	c.logger.Debug("encode failed", LogFields{
		LogFieldPacketType: packetType.String(),
		LogFieldError:      err.Error(),
	})
}

var errNoSender = errors.New("no sender configured")

