package mqtt311

import (
	"encoding/binary"
	"errors"
)

// Encoding errors.
var (
	ErrStringTooLong   = errors.New("string exceeds maximum length of 65535 bytes")
	ErrVarintTooLarge  = errors.New("variable byte integer exceeds maximum value")
	ErrVarintMalformed = errors.New("malformed variable byte integer")
	ErrShortBuffer     = errors.New("buffer too short")
)

const (
	maxUint16         = 65535
	maxVarint         = 268435455 // 0x0FFFFFFF
	maxVarintBytes    = 4
	varintContinueBit = 0x80
	varintValueMask   = 0x7F
)

// MaxRemainingLength is the largest remaining length a fixed header can carry.
const MaxRemainingLength = maxVarint

// AppendVarint appends the variable byte integer encoding of value to dst.
// Values above MaxRemainingLength are rejected and dst is returned unchanged.
func AppendVarint(dst []byte, value uint32) ([]byte, error) {
	if value > maxVarint {
		return dst, ErrVarintTooLarge
	}

	for {
		encodedByte := byte(value % 128)
		value /= 128

		if value > 0 {
			encodedByte |= varintContinueBit
		}

		dst = append(dst, encodedByte)

		if value == 0 {
			return dst, nil
		}
	}
}

// DecodeVarint decodes a variable byte integer starting at buf[offset].
// Returns the value and the number of bytes consumed.
func DecodeVarint(buf []byte, offset int) (uint32, int, error) {
	if offset < 0 {
		return 0, 0, ErrShortBuffer
	}

	var value uint32
	var multiplier uint32 = 1

	for i := 0; i < maxVarintBytes; i++ {
		if offset+i >= len(buf) {
			return 0, i, ErrShortBuffer
		}

		encodedByte := buf[offset+i]
		value += uint32(encodedByte&varintValueMask) * multiplier

		if encodedByte&varintContinueBit == 0 {
			return value, i + 1, nil
		}

		multiplier *= 128
	}

	// the 4th byte still asked for a 5th one
	return 0, maxVarintBytes, ErrVarintMalformed
}

// VarintSize returns the number of bytes needed to encode value.
// Returns 0 if value cannot be encoded.
func VarintSize(value uint32) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	case value <= maxVarint:
		return 4
	default:
		return 0
	}
}

// appendUint16 appends v in network byte order.
func appendUint16(dst []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(dst, v)
}

// appendBinary appends data with a 2-byte length prefix.
func appendBinary(dst []byte, data []byte) ([]byte, error) {
	if len(data) > maxUint16 {
		return dst, ErrStringTooLong
	}

	dst = appendUint16(dst, uint16(len(data)))
	return append(dst, data...), nil
}

// appendString appends s with a 2-byte length prefix.
func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > maxUint16 {
		return dst, ErrStringTooLong
	}

	dst = appendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

// readUint16 reads a big-endian uint16 at buf[offset].
func readUint16(buf []byte, offset int) (uint16, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, ErrShortBuffer
	}

	return binary.BigEndian.Uint16(buf[offset:]), nil
}

// readBinary reads a length-prefixed field at buf[offset] and returns a view of it
// together with the total number of bytes consumed.
func readBinary(buf []byte, offset int) ([]byte, int, error) {
	length, err := readUint16(buf, offset)
	if err != nil {
		return nil, 0, err
	}

	start := offset + 2
	end := start + int(length)
	if end > len(buf) {
		return nil, 0, ErrShortBuffer
	}

	return buf[start:end], 2 + int(length), nil
}
