package mqtt311

import "io"

// SubscribePacket represents an MQTT SUBSCRIBE packet carrying one topic filter.
//
// The fixed header is always encoded as (dup, QoS0): first byte 0x82. The
// packet identifier is always present.
type SubscribePacket struct {
	PacketID uint16
	Topic    string
	QoS      QoS
}

// Type returns the packet type.
func (p *SubscribePacket) Type() PacketType {
	return PacketSUBSCRIBE
}

// Validate validates the packet contents.
func (p *SubscribePacket) Validate() error {
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

func (p *SubscribePacket) fixedHeader() FixedHeader {
	return FixedHeader{Type: PacketSUBSCRIBE, DUP: true, QoS: QoS0}
}

func (p *SubscribePacket) bodySize() int {
	return 2 + 2 + len(p.Topic) + 1
}

func (p *SubscribePacket) appendBody(dst []byte) ([]byte, error) {
	dst = appendUint16(dst, p.PacketID)

	dst, err := appendString(dst, p.Topic)
	if err != nil {
		return dst, err
	}

	return append(dst, byte(p.QoS)), nil
}

// Encode writes the packet to the writer.
func (p *SubscribePacket) Encode(w io.Writer) (int, error) {
	return WritePacket(w, p)
}
