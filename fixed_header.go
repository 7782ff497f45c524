package mqtt311

import (
	"errors"
	"io"
)

// PacketType represents an MQTT control packet type.
type PacketType byte

// MQTT 3.1.1 control packet types.
const (
	PacketCONNECT     PacketType = 1
	PacketCONNACK     PacketType = 2
	PacketPUBLISH     PacketType = 3
	PacketPUBACK      PacketType = 4
	PacketPUBREC      PacketType = 5
	PacketPUBREL      PacketType = 6
	PacketPUBCOMP     PacketType = 7
	PacketSUBSCRIBE   PacketType = 8
	PacketSUBACK      PacketType = 9
	PacketUNSUBSCRIBE PacketType = 10
	PacketUNSUBACK    PacketType = 11
	PacketPINGREQ     PacketType = 12
	PacketPINGRESP    PacketType = 13
	PacketDISCONNECT  PacketType = 14
)

// String returns the string representation of the packet type.
func (p PacketType) String() string {
	switch p {
	case PacketCONNECT:
		return "CONNECT"
	case PacketCONNACK:
		return "CONNACK"
	case PacketPUBLISH:
		return "PUBLISH"
	case PacketPUBACK:
		return "PUBACK"
	case PacketPUBREC:
		return "PUBREC"
	case PacketPUBREL:
		return "PUBREL"
	case PacketPUBCOMP:
		return "PUBCOMP"
	case PacketSUBSCRIBE:
		return "SUBSCRIBE"
	case PacketSUBACK:
		return "SUBACK"
	case PacketUNSUBSCRIBE:
		return "UNSUBSCRIBE"
	case PacketUNSUBACK:
		return "UNSUBACK"
	case PacketPINGREQ:
		return "PINGREQ"
	case PacketPINGRESP:
		return "PINGRESP"
	case PacketDISCONNECT:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Valid returns true if the packet type is in [CONNECT, DISCONNECT].
func (p PacketType) Valid() bool {
	return p >= PacketCONNECT && p <= PacketDISCONNECT
}

// Fixed header errors.
var (
	ErrInvalidPacketType = errors.New("invalid packet type")
	ErrInvalidQoS        = errors.New("invalid QoS level")
)

// Bit positions inside the first header byte.
const (
	flagRetain    = 0x01
	flagDUP       = 0x02
	flagQoSShift  = 2
	flagQoSMask   = 0x03
	flagTypeShift = 4

	// MaxFixedHeaderSize is the flags byte plus a 4 byte remaining length.
	MaxFixedHeaderSize = 1 + maxVarintBytes
)

// FixedHeader represents the fixed header of an MQTT control packet.
//
// The first byte is packed as retain (bit 0), dup (bit 1), qos (bits 2-3)
// and packet type (bits 4-7).
type FixedHeader struct {
	Type            PacketType
	DUP             bool
	QoS             QoS
	Retain          bool
	RemainingLength uint32
}

// Validate checks the QoS, the packet type and the remaining length.
func (h *FixedHeader) Validate() error {
	if !h.QoS.Valid() {
		return ErrInvalidQoS
	}

	if !h.Type.Valid() {
		return ErrInvalidPacketType
	}

	if h.RemainingLength > maxVarint {
		return ErrVarintTooLarge
	}

	return nil
}

// FlagsByte returns the packed first byte of the header.
func (h *FixedHeader) FlagsByte() byte {
	b := byte(h.Type)<<flagTypeShift | (byte(h.QoS)&flagQoSMask)<<flagQoSShift
	if h.DUP {
		b |= flagDUP
	}
	if h.Retain {
		b |= flagRetain
	}
	return b
}

// AppendTo appends the encoded header to dst.
// On error dst is returned unchanged.
func (h *FixedHeader) AppendTo(dst []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return dst, err
	}

	return AppendVarint(append(dst, h.FlagsByte()), h.RemainingLength)
}

// Encode writes the fixed header to the writer.
// Returns the number of bytes written.
func (h *FixedHeader) Encode(w io.Writer) (int, error) {
	var buf [MaxFixedHeaderSize]byte

	out, err := h.AppendTo(buf[:0])
	if err != nil {
		return 0, err
	}

	return w.Write(out)
}

// Size returns the encoded size of the fixed header in bytes.
func (h *FixedHeader) Size() int {
	return 1 + VarintSize(h.RemainingLength)
}

// FrameSize returns the size of the whole frame this header introduces.
func (h *FixedHeader) FrameSize() int {
	return h.Size() + int(h.RemainingLength)
}

// unpackFlags fills the flag fields from the first header byte.
func (h *FixedHeader) unpackFlags(b byte) {
	h.Type = PacketType(b >> flagTypeShift)
	h.QoS = QoS((b >> flagQoSShift) & flagQoSMask)
	h.DUP = b&flagDUP != 0
	h.Retain = b&flagRetain != 0
}

// DecodeFixedHeader decodes the fixed header at the start of buf.
// Returns the header and the number of bytes it occupies. On failure the
// returned header is the zero value.
func DecodeFixedHeader(buf []byte) (FixedHeader, int, error) {
	if len(buf) < 2 {
		return FixedHeader{}, 0, ErrShortBuffer
	}

	var h FixedHeader
	h.unpackFlags(buf[0])

	if !h.QoS.Valid() {
		return FixedHeader{}, 0, ErrInvalidQoS
	}

	if !h.Type.Valid() {
		return FixedHeader{}, 0, ErrInvalidPacketType
	}

	length, n, err := DecodeVarint(buf, 1)
	if err != nil {
		return FixedHeader{}, 0, err
	}

	h.RemainingLength = length
	return h, 1 + n, nil
}

// Decode reads the fixed header from the reader.
// Returns the number of bytes read.
func (h *FixedHeader) Decode(r io.Reader) (int, error) {
	var buf [MaxFixedHeaderSize]byte

	n, err := io.ReadFull(r, buf[:1])
	if err != nil {
		return n, err
	}

	for i := 1; i < len(buf); i++ {
		rn, err := io.ReadFull(r, buf[i:i+1])
		n += rn
		if err != nil {
			*h = FixedHeader{}
			return n, err
		}

		if buf[i]&varintContinueBit == 0 {
			break
		}
	}

	decoded, _, err := DecodeFixedHeader(buf[:n])
	if err != nil {
		*h = FixedHeader{}
		return n, err
	}

	*h = decoded
	return n, nil
}
