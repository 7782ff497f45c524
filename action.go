package mqtt311

import "time"

// Action is a request handled by Connection.Dispatch.
//
// The set of actions is closed: InitAction, ConnectAction, PublishAction,
// SubscribeAction, KeepAliveAction, ParseAction and DisconnectAction.
type Action interface {
	actionName() string
}

// InitAction resets the connection to Disconnected and clears the packet
// counter and keepalive timers.
type InitAction struct{}

// ConnectAction sends CONNECT.
type ConnectAction struct {
	Packet *ConnectPacket
}

// PublishAction sends PUBLISH. When Buffer is non-nil the frame is built in
// it instead of the connection's transmit buffer.
type PublishAction struct {
	Packet *PublishPacket
	Buffer []byte
}

// SubscribeAction sends SUBSCRIBE for a single topic filter.
type SubscribeAction struct {
	Topic string
	QoS   QoS
}

// KeepAliveAction advances the keepalive countdown by Elapsed.
type KeepAliveAction struct {
	Elapsed time.Duration
}

// ParseAction handles one complete frame received from the broker.
type ParseAction struct {
	Data []byte
}

// DisconnectAction sends DISCONNECT.
type DisconnectAction struct{}

func (InitAction) actionName() string       { return "init" }
func (ConnectAction) actionName() string    { return "connect" }
func (PublishAction) actionName() string    { return "publish" }
func (SubscribeAction) actionName() string  { return "subscribe" }
func (KeepAliveAction) actionName() string  { return "keepalive" }
func (ParseAction) actionName() string      { return "parse" }
func (DisconnectAction) actionName() string { return "disconnect" }
