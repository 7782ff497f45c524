package mqtt311

import "io"

// Packet is the interface that all MQTT control packets implement.
// Encoding is two-pass: the body size is computed first so the fixed header
// can be written once with its final length.
type Packet interface {
	// Type returns the packet type.
	Type() PacketType

	// Encode writes the complete frame to the writer.
	// Returns the number of bytes written.
	Encode(w io.Writer) (int, error)

	// Validate validates the packet contents.
	Validate() error

	// fixedHeader returns the header flags; RemainingLength is filled in by the codec.
	fixedHeader() FixedHeader

	// bodySize returns the size of the variable header plus payload.
	bodySize() int

	// appendBody appends the variable header and payload to dst.
	appendBody(dst []byte) ([]byte, error)
}

// Message represents an MQTT application message.
// This is the user-facing struct with public fields for easy access.
type Message struct {
	// Topic is the topic name the message was published to.
	Topic string

	// Payload is the application message payload.
	Payload []byte

	// QoS is the Quality of Service level from the fixed header.
	QoS QoS

	// Retain indicates if this is a retained message.
	Retain bool

	// DUP is the duplicate delivery flag.
	DUP bool

	// PacketID is set only when QoS > 0.
	PacketID uint16
}

// Clone creates a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}

	clone := *m
	if m.Payload != nil {
		clone.Payload = make([]byte, len(m.Payload))
		copy(clone.Payload, m.Payload)
	}

	return &clone
}
