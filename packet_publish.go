package mqtt311

import (
	"errors"
	"io"
)

// PUBLISH packet errors.
var (
	ErrEmptyTopic      = errors.New("topic cannot be empty")
	ErrMalformedPacket = errors.New("malformed packet")
)

// PublishPacket represents an MQTT PUBLISH packet.
type PublishPacket struct {
	Topic    string
	Payload  []byte
	QoS      QoS
	Retain   bool
	DUP      bool
	PacketID uint16 // written only when QoS > 0
}

// Type returns the packet type.
func (p *PublishPacket) Type() PacketType {
	return PacketPUBLISH
}

// Validate validates the packet contents.
func (p *PublishPacket) Validate() error {
	if p.Topic == "" {
		return ErrEmptyTopic
	}
	if len(p.Topic) > maxUint16 {
		return ErrStringTooLong
	}
	if !p.QoS.Valid() {
		return ErrInvalidQoS
	}
	return nil
}

func (p *PublishPacket) fixedHeader() FixedHeader {
	return FixedHeader{
		Type:   PacketPUBLISH,
		DUP:    p.DUP,
		QoS:    p.QoS,
		Retain: p.Retain,
	}
}

func (p *PublishPacket) bodySize() int {
	size := 2 + len(p.Topic) + len(p.Payload)
	if p.QoS > QoS0 {
		size += 2
	}
	return size
}

func (p *PublishPacket) appendBody(dst []byte) ([]byte, error) {
	dst, err := appendString(dst, p.Topic)
	if err != nil {
		return dst, err
	}

	if p.QoS > QoS0 {
		dst = appendUint16(dst, p.PacketID)
	}

	return append(dst, p.Payload...), nil
}

// Encode writes the packet to the writer.
func (p *PublishPacket) Encode(w io.Writer) (int, error) {
	return WritePacket(w, p)
}

// DecodePublish splits a PUBLISH body (everything after the fixed header)
// into topic and payload. The returned slices alias body and are only valid
// until body is reused.
func DecodePublish(body []byte, qos QoS) (topic, payload []byte, err error) {
	topicLen, err := readUint16(body, 0)
	if err != nil {
		return nil, nil, ErrMalformedPacket
	}

	headerSize := 2 + int(topicLen)
	if qos > QoS0 {
		headerSize += 2
	}

	if headerSize > len(body) {
		return nil, nil, ErrMalformedPacket
	}

	return body[2 : 2+int(topicLen)], body[headerSize:], nil
}

// Decode reads the packet body. Topic and payload are copied out of body.
func (p *PublishPacket) Decode(body []byte, header FixedHeader) error {
	topic, payload, err := DecodePublish(body, header.QoS)
	if err != nil {
		return err
	}

	p.Topic = string(topic)
	p.Payload = make([]byte, len(payload))
	copy(p.Payload, payload)
	p.QoS = header.QoS
	p.Retain = header.Retain
	p.DUP = header.DUP
	p.PacketID = 0

	if header.QoS > QoS0 {
		p.PacketID, _ = readUint16(body, 2+len(topic))
	}

	return nil
}

// Message converts the packet into an application message.
func (p *PublishPacket) Message() *Message {
	return &Message{
		Topic:    p.Topic,
		Payload:  p.Payload,
		QoS:      p.QoS,
		Retain:   p.Retain,
		DUP:      p.DUP,
		PacketID: p.PacketID,
	}
}
