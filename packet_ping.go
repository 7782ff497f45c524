package mqtt311

import (
	"errors"
	"io"
)

// ErrUnexpectedBody is returned when a packet that has no body carries one.
var ErrUnexpectedBody = errors.New("packet must not have a body")

// PingreqPacket represents an MQTT PINGREQ packet.
type PingreqPacket struct{}

// Type returns the packet type.
func (p *PingreqPacket) Type() PacketType { return PacketPINGREQ }

// Encode writes the packet to the writer.
func (p *PingreqPacket) Encode(w io.Writer) (int, error) { return WritePacket(w, p) }

// Validate validates the packet contents.
func (p *PingreqPacket) Validate() error { return nil }

func (p *PingreqPacket) fixedHeader() FixedHeader { return FixedHeader{Type: PacketPINGREQ} }

func (p *PingreqPacket) bodySize() int { return 0 }

func (p *PingreqPacket) appendBody(dst []byte) ([]byte, error) { return dst, nil }

// PingrespPacket represents an MQTT PINGRESP packet.
type PingrespPacket struct{}

// Type returns the packet type.
func (p *PingrespPacket) Type() PacketType { return PacketPINGRESP }

// Encode writes the packet to the writer.
func (p *PingrespPacket) Encode(w io.Writer) (int, error) { return WritePacket(w, p) }

// Decode checks that the body is empty.
func (p *PingrespPacket) Decode(body []byte, _ FixedHeader) error {
	if len(body) != 0 {
		return ErrUnexpectedBody
	}
	return nil
}

// Validate validates the packet contents.
func (p *PingrespPacket) Validate() error { return nil }

func (p *PingrespPacket) fixedHeader() FixedHeader { return FixedHeader{Type: PacketPINGRESP} }

func (p *PingrespPacket) bodySize() int { return 0 }

func (p *PingrespPacket) appendBody(dst []byte) ([]byte, error) { return dst, nil }
