package mqtt311

import "io"

// DisconnectPacket represents an MQTT DISCONNECT packet.
type DisconnectPacket struct{}

// Type returns the packet type.
func (p *DisconnectPacket) Type() PacketType { return PacketDISCONNECT }

// Encode writes the packet to the writer.
func (p *DisconnectPacket) Encode(w io.Writer) (int, error) { return WritePacket(w, p) }

// Validate validates the packet contents.
func (p *DisconnectPacket) Validate() error { return nil }

func (p *DisconnectPacket) fixedHeader() FixedHeader { return FixedHeader{Type: PacketDISCONNECT} }

func (p *DisconnectPacket) bodySize() int { return 0 }

func (p *DisconnectPacket) appendBody(dst []byte) ([]byte, error) { return dst, nil }
