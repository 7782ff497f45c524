package mqtt311

import "io"

// SubackFailure is the SUBACK return code for a rejected subscription.
const SubackFailure byte = 0x80

// SubackPacket represents an MQTT SUBACK packet for a single topic filter.
type SubackPacket struct {
	PacketID   uint16
	ReturnCode byte
}

// Type returns the packet type.
func (p *SubackPacket) Type() PacketType {
	return PacketSUBACK
}

// Granted reports whether the broker accepted the subscription.
// Return codes 0x00-0x02 carry the granted QoS; 0x80 is a failure.
func (p *SubackPacket) Granted() bool {
	return p.ReturnCode <= byte(QoS2)
}

// GrantedQoS returns the granted QoS, or QoSInvalid when the subscription failed.
func (p *SubackPacket) GrantedQoS() QoS {
	if !p.Granted() {
		return QoSInvalid
	}
	return QoS(p.ReturnCode)
}

// DecodeSubackHeader decodes a SUBACK body: the packet identifier followed by
// the first return code.
func DecodeSubackHeader(vh []byte) (SubackPacket, error) {
	id, err := readUint16(vh, 0)
	if err != nil {
		return SubackPacket{}, err
	}

	if len(vh) < 3 {
		return SubackPacket{}, ErrShortBuffer
	}

	return SubackPacket{PacketID: id, ReturnCode: vh[2]}, nil
}

// Decode reads the packet body.
func (p *SubackPacket) Decode(body []byte, _ FixedHeader) error {
	decoded, err := DecodeSubackHeader(body)
	if err != nil {
		return err
	}

	*p = decoded
	return nil
}

// Validate validates the packet contents.
func (p *SubackPacket) Validate() error {
	return nil
}

func (p *SubackPacket) fixedHeader() FixedHeader {
	return FixedHeader{Type: PacketSUBACK}
}

func (p *SubackPacket) bodySize() int {
	return 3
}

func (p *SubackPacket) appendBody(dst []byte) ([]byte, error) {
	return append(appendUint16(dst, p.PacketID), p.ReturnCode), nil
}

// Encode writes the packet to the writer.
func (p *SubackPacket) Encode(w io.Writer) (int, error) {
	return WritePacket(w, p)
}
