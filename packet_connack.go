package mqtt311

import "io"

// ConnackCode is the CONNACK return code.
type ConnackCode byte

// CONNACK return codes (MQTT 3.1.1 section 3.2.2.3).
const (
	ConnackAccepted                    ConnackCode = 0x00
	ConnackUnacceptableProtocolVersion ConnackCode = 0x01
	ConnackIdentifierRejected          ConnackCode = 0x02
	ConnackServerUnavailable           ConnackCode = 0x03
	ConnackBadUsernameOrPassword       ConnackCode = 0x04
	ConnackNotAuthorized               ConnackCode = 0x05
)

// String returns the string representation of the return code.
func (c ConnackCode) String() string {
	switch c {
	case ConnackAccepted:
		return "connection accepted"
	case ConnackUnacceptableProtocolVersion:
		return "unacceptable protocol version"
	case ConnackIdentifierRejected:
		return "identifier rejected"
	case ConnackServerUnavailable:
		return "server unavailable"
	case ConnackBadUsernameOrPassword:
		return "bad user name or password"
	case ConnackNotAuthorized:
		return "not authorized"
	default:
		return "unknown return code"
	}
}

// Status maps the return code onto the connection status codes. Codes 1-5
// share their numeric value with the status.
func (c ConnackCode) Status() Status {
	if c > ConnackNotAuthorized {
		return StatusInvalidArgument
	}
	return Status(c)
}

// ConnackPacket represents an MQTT CONNACK packet.
type ConnackPacket struct {
	// SessionPresent is bit 0 of the acknowledge flags.
	SessionPresent bool

	// ReturnCode is the broker's answer to CONNECT.
	ReturnCode ConnackCode
}

// Type returns the packet type.
func (p *ConnackPacket) Type() PacketType {
	return PacketCONNACK
}

// DecodeConnackHeader decodes the 2 byte CONNACK variable header.
// Byte 1 holds the return code.
func DecodeConnackHeader(vh []byte) (ConnackPacket, error) {
	if len(vh) < 2 {
		return ConnackPacket{}, ErrShortBuffer
	}

	return ConnackPacket{
		SessionPresent: vh[0]&0x01 != 0,
		ReturnCode:     ConnackCode(vh[1]),
	}, nil
}

// Decode reads the packet body.
func (p *ConnackPacket) Decode(body []byte, _ FixedHeader) error {
	decoded, err := DecodeConnackHeader(body)
	if err != nil {
		return err
	}

	*p = decoded
	return nil
}

// Validate validates the packet contents.
func (p *ConnackPacket) Validate() error {
	return nil
}

func (p *ConnackPacket) fixedHeader() FixedHeader {
	return FixedHeader{Type: PacketCONNACK}
}

func (p *ConnackPacket) bodySize() int {
	return 2
}

func (p *ConnackPacket) appendBody(dst []byte) ([]byte, error) {
	var ack byte
	if p.SessionPresent {
		ack = 0x01
	}
	return append(dst, ack, byte(p.ReturnCode)), nil
}

// Encode writes the packet to the writer.
func (p *ConnackPacket) Encode(w io.Writer) (int, error) {
	return WritePacket(w, p)
}
