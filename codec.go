package mqtt311

import (
	"errors"
	"fmt"
	"io"
)

// Codec errors.
var (
	ErrPacketTooLarge       = errors.New("packet exceeds maximum size")
	ErrInsufficientBuffer   = errors.New("buffer too small for packet")
	ErrUnexpectedPacketType = errors.New("unexpected packet type")
	ErrIncompleteFrame      = errors.New("frame shorter than its remaining length")
	errBodySizeMismatch     = errors.New("encoded body size mismatch")
	errShortWrite           = errors.New("short write")
)

// MarshalPacket encodes pkt into buf and returns the frame.
//
// The frame is written from buf[0]; if it does not fit in cap(buf) the call
// fails with ErrInsufficientBuffer and nothing is written. A nil buf allocates
// a buffer of exactly the frame size.
func MarshalPacket(buf []byte, pkt Packet) ([]byte, error) {
	if err := pkt.Validate(); err != nil {
		return nil, err
	}

	bodySize := pkt.bodySize()
	if bodySize > MaxRemainingLength {
		return nil, ErrPacketTooLarge
	}

	header := pkt.fixedHeader()
	header.RemainingLength = uint32(bodySize)
	total := header.FrameSize()

	switch {
	case buf == nil:
		buf = make([]byte, 0, total)
	case total > cap(buf):
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrInsufficientBuffer, pkt.Type(), total, cap(buf))
	}

	out, err := header.AppendTo(buf[:0])
	if err != nil {
		return nil, err
	}

	out, err = pkt.appendBody(out)
	if err != nil {
		return nil, err
	}

	if len(out) != total {
		return nil, errBodySizeMismatch
	}

	return out, nil
}

// WritePacket encodes pkt and writes the frame to w in a single Write call.
func WritePacket(w io.Writer, pkt Packet) (int, error) {
	buf := getBytesBuffer()
	defer putBytesBuffer(buf)

	frame, err := MarshalPacket(buf.data[:0], pkt)
	if errors.Is(err, ErrInsufficientBuffer) {
		frame, err = MarshalPacket(nil, pkt)
	}
	if err != nil {
		return 0, err
	}
	buf.data = frame

	n, err := w.Write(frame)
	if err == nil && n != len(frame) {
		err = errShortWrite
	}
	return n, err
}

// FrameSize returns the total size of the frame that starts at buf[0], using
// only the fixed header. It needs at least the flags byte and the complete
// remaining length.
func FrameSize(buf []byte) (int, error) {
	header, _, err := DecodeFixedHeader(buf)
	if err != nil {
		return 0, err
	}

	return header.FrameSize(), nil
}

// ParseFrame decodes one complete frame received from the broker.
//
// CONNACK, PUBLISH, SUBACK and PINGRESP are understood; any other valid type
// returns ErrUnexpectedPacketType. Decoded packets do not alias frame.
func ParseFrame(frame []byte) (Packet, error) {
	_, pkt, err := parseFrame(frame)
	return pkt, err
}

// parseFrame is ParseFrame that also returns the decoded header, which is
// valid whenever the first error is not a header error.
func parseFrame(frame []byte) (FixedHeader, Packet, error) {
	header, n, err := DecodeFixedHeader(frame)
	if err != nil {
		return FixedHeader{}, nil, err
	}

	end := n + int(header.RemainingLength)
	if end > len(frame) {
		return header, nil, ErrIncompleteFrame
	}
	body := frame[n:end]

	switch header.Type {
	case PacketCONNACK:
		pkt := &ConnackPacket{}
		return header, pkt, pkt.Decode(body, header)
	case PacketPUBLISH:
		pkt := &PublishPacket{}
		return header, pkt, pkt.Decode(body, header)
	case PacketSUBACK:
		pkt := &SubackPacket{}
		return header, pkt, pkt.Decode(body, header)
	case PacketPINGRESP:
		pkt := &PingrespPacket{}
		return header, pkt, pkt.Decode(body, header)
	default:
		return header, nil, fmt.Errorf("%w: %s", ErrUnexpectedPacketType, header.Type)
	}
}

// ReadPacket reads and parses one packet from r.
// If maxSize is greater than 0, larger frames return ErrPacketTooLarge.
func ReadPacket(r io.Reader, maxSize uint32) (Packet, int, error) {
	var (
		pkt Packet
		n   int
	)

	err := NewFrameReader(r, maxSize).ReadFrame(func(frame []byte) error {
		n = len(frame)

		var err error
		pkt, err = ParseFrame(frame)
		return err
	})
	if err != nil {
		return nil, n, err
	}

	return pkt, n, nil
}

// ReadFrame reads one complete frame from r into buf and returns it. It
// reads the fixed header, computes the frame size and reads the remainder.
// If the frame does not fit cap(buf) a new slice is allocated.
func ReadFrame(r io.Reader, buf []byte) ([]byte, error) {
	var header FixedHeader
	rec := &recordingReader{r: r, dst: make([]byte, MaxFixedHeaderSize)}
	hn, err := header.Decode(rec)
	if err != nil {
		if hn > 0 && errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	total := hn + int(header.RemainingLength)
	if total > cap(buf) {
		buf = make([]byte, total)
	}
	frame := buf[:total]
	copy(frame, rec.dst[:hn])

	if _, err := io.ReadFull(r, frame[hn:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	return frame, nil
}

// smallFrameSize covers CONNACK, SUBACK, PINGRESP and short PUBLISH frames.
const smallFrameSize = 32

// FrameReader splits a byte stream into complete MQTT frames.
//
// It reads the fixed header, computes the frame size from the remaining
// length and reads the rest before handing the frame on. Frames that do not
// fit the inline buffer use a pooled buffer that is released when the
// callback returns.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	small   [smallFrameSize]byte
}

// NewFrameReader creates a FrameReader. A maxSize of 0 means no limit beyond
// the protocol maximum.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	return &FrameReader{r: r, maxSize: maxSize}
}

// ReadFrame reads exactly one frame and passes it to fn. The frame is only
// valid for the duration of fn.
func (fr *FrameReader) ReadFrame(fn func(frame []byte) error) error {
	var header FixedHeader
	hn, err := header.Decode(&recordingReader{r: fr.r, dst: fr.small[:MaxFixedHeaderSize]})
	if err != nil {
		if hn > 0 && errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	if fr.maxSize > 0 && header.RemainingLength > fr.maxSize {
		return ErrPacketTooLarge
	}

	total := hn + int(header.RemainingLength)

	var frame []byte
	if total > smallFrameSize {
		pooled := getFrameBuffer(total)
		defer putFrameBuffer(pooled)

		frame = (*pooled)[:total]
		copy(frame, fr.small[:hn])
	} else {
		frame = fr.small[:total:total]
	}

	if _, err := io.ReadFull(fr.r, frame[hn:]); err != nil {
		if errors.Is(err, io.EOF) {
			return io.ErrUnexpectedEOF
		}
		return err
	}

	return fn(frame)
}

// recordingReader keeps a copy of the raw header bytes read through it.
type recordingReader struct {
	r   io.Reader
	dst []byte
	pos int
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	rr.pos += copy(rr.dst[rr.pos:], p[:n])
	return n, err
}
