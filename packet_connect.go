package mqtt311

import (
	"errors"
	"io"
)

// CONNECT packet constants.
const (
	protocolName    = "MQTT"
	protocolLevel   = 0x04
	connectHeaderSz = 10
)

// Connect flag bit positions.
const (
	connectFlagReserved     = 0x01
	connectFlagCleanSession = 0x02
	connectFlagWill         = 0x04
	connectFlagWillQoSShift = 3
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
)

// CONNECT packet errors.
var (
	ErrEmptyClientID          = errors.New("client ID is required")
	ErrInvalidConnectFlags    = errors.New("invalid connect flags")
	ErrInvalidProtocolName    = errors.New("invalid protocol name")
	ErrInvalidProtocolVersion = errors.New("unsupported protocol version")
)

// ConnectFlags is the unpacked connect flags byte of the CONNECT variable header.
type ConnectFlags struct {
	CleanSession bool
	Will         bool
	WillQoS      QoS
	WillRetain   bool
	Password     bool
	Username     bool
}

// Byte packs the flags. The reserved bit is always zero.
func (f ConnectFlags) Byte() byte {
	var b byte

	if f.CleanSession {
		b |= connectFlagCleanSession
	}
	if f.Will {
		b |= connectFlagWill
	}
	b |= (byte(f.WillQoS) & 0x03) << connectFlagWillQoSShift
	if f.WillRetain {
		b |= connectFlagWillRetain
	}
	if f.Password {
		b |= connectFlagPassword
	}
	if f.Username {
		b |= connectFlagUsername
	}

	return b
}

// ParseConnectFlags unpacks a connect flags byte.
func ParseConnectFlags(b byte) (ConnectFlags, error) {
	if b&connectFlagReserved != 0 {
		return ConnectFlags{}, ErrInvalidConnectFlags
	}

	f := ConnectFlags{
		CleanSession: b&connectFlagCleanSession != 0,
		Will:         b&connectFlagWill != 0,
		WillQoS:      QoS((b >> connectFlagWillQoSShift) & 0x03),
		WillRetain:   b&connectFlagWillRetain != 0,
		Password:     b&connectFlagPassword != 0,
		Username:     b&connectFlagUsername != 0,
	}

	if !f.WillQoS.Valid() {
		return ConnectFlags{}, ErrInvalidQoS
	}

	return f, nil
}

// AppendConnectHeader appends the 10 byte CONNECT variable header:
// protocol name, protocol level 4, connect flags and keep alive seconds.
func AppendConnectHeader(dst []byte, flags ConnectFlags, keepAlive uint16) ([]byte, error) {
	if !flags.WillQoS.Valid() {
		return dst, ErrInvalidQoS
	}

	dst, _ = appendString(dst, protocolName)
	dst = append(dst, protocolLevel, flags.Byte())
	return appendUint16(dst, keepAlive), nil
}

// DecodeConnectHeader decodes the CONNECT variable header at the start of vh.
func DecodeConnectHeader(vh []byte) (ConnectFlags, uint16, error) {
	if len(vh) < connectHeaderSz {
		return ConnectFlags{}, 0, ErrShortBuffer
	}

	name, _, err := readBinary(vh, 0)
	if err != nil {
		return ConnectFlags{}, 0, err
	}
	if string(name) != protocolName {
		return ConnectFlags{}, 0, ErrInvalidProtocolName
	}
	if vh[6] != protocolLevel {
		return ConnectFlags{}, 0, ErrInvalidProtocolVersion
	}

	flags, err := ParseConnectFlags(vh[7])
	if err != nil {
		return ConnectFlags{}, 0, err
	}

	keepAlive, _ := readUint16(vh, 8)
	return flags, keepAlive, nil
}

// ConnectPacket represents an MQTT CONNECT packet.
//
// The will is sent only when both WillTopic and WillMessage are non-empty.
// Username and Password are sent only when non-empty.
type ConnectPacket struct {
	// ClientID is the client identifier. It must not be empty.
	ClientID string

	// CleanSession asks the broker to discard any previous session.
	CleanSession bool

	// KeepAlive is the keep alive interval in seconds. Zero disables it.
	KeepAlive uint16

	// Username for authentication.
	Username string

	// Password for authentication.
	Password []byte

	// Will message configuration.
	WillTopic   string
	WillMessage []byte
	WillQoS     QoS
	WillRetain  bool
}

// Type returns the packet type.
func (p *ConnectPacket) Type() PacketType {
	return PacketCONNECT
}

// hasWill reports whether the will fields are both present.
func (p *ConnectPacket) hasWill() bool {
	return p.WillTopic != "" && len(p.WillMessage) > 0
}

// Flags returns the connect flags the packet will be encoded with.
func (p *ConnectPacket) Flags() ConnectFlags {
	f := ConnectFlags{
		CleanSession: p.CleanSession,
		Password:     len(p.Password) > 0,
		Username:     p.Username != "",
	}

	if p.hasWill() {
		f.Will = true
		f.WillQoS = p.WillQoS
		f.WillRetain = p.WillRetain
	}

	return f
}

// Validate validates the packet contents.
func (p *ConnectPacket) Validate() error {
	if p.ClientID == "" {
		return ErrEmptyClientID
	}

	if p.hasWill() && !p.WillQoS.Valid() {
		return ErrInvalidQoS
	}

	for _, n := range []int{len(p.ClientID), len(p.WillTopic), len(p.WillMessage), len(p.Username), len(p.Password)} {
		if n > maxUint16 {
			return ErrStringTooLong
		}
	}

	return nil
}

func (p *ConnectPacket) fixedHeader() FixedHeader {
	return FixedHeader{Type: PacketCONNECT}
}

func (p *ConnectPacket) bodySize() int {
	size := connectHeaderSz + 2 + len(p.ClientID)

	if p.hasWill() {
		size += 2 + len(p.WillTopic) + 2 + len(p.WillMessage)
	}
	if p.Username != "" {
		size += 2 + len(p.Username)
	}
	if len(p.Password) > 0 {
		size += 2 + len(p.Password)
	}

	return size
}

func (p *ConnectPacket) appendBody(dst []byte) ([]byte, error) {
	dst, err := AppendConnectHeader(dst, p.Flags(), p.KeepAlive)
	if err != nil {
		return dst, err
	}

	if dst, err = appendString(dst, p.ClientID); err != nil {
		return dst, err
	}

	if p.hasWill() {
		if dst, err = appendString(dst, p.WillTopic); err != nil {
			return dst, err
		}
		if dst, err = appendBinary(dst, p.WillMessage); err != nil {
			return dst, err
		}
	}

	if p.Username != "" {
		if dst, err = appendString(dst, p.Username); err != nil {
			return dst, err
		}
	}

	if len(p.Password) > 0 {
		if dst, err = appendBinary(dst, p.Password); err != nil {
			return dst, err
		}
	}

	return dst, nil
}

// Encode writes the packet to the writer.
func (p *ConnectPacket) Encode(w io.Writer) (int, error) {
	return WritePacket(w, p)
}
