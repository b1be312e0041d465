package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	HeaderLen   = 4
	MaxPayload  = 1020
	MaxFrameLen = HeaderLen + MaxPayload
	AckLen      = 1

	// checksumModulus is 255, not 256. Peers depend on it.
	checksumModulus = 255
)

var (
	ErrMalformed       = errors.New("frame: malformed")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrMalformedAck    = errors.New("frame: malformed ack")
)

// Frame is one decoded data datagram.
//
// Wire layout:
//
//	[0]    checksum (payload byte sum mod 255)
//	[1]    sequence
//	[2:4]  payload length, big-endian
//	[4:]   payload, trailing bytes ignored
type Frame struct {
	Checksum   uint8
	Sequence   uint8
	Payload    []byte
	ChecksumOK bool
}

// Valid reports whether the stored checksum matches the payload.
func (f Frame) Valid() bool {
	return f.ChecksumOK
}

// Checksum sums payload bytes modulo 255.
func Checksum(payload []byte) uint8 {
	var sum uint32
	for _, b := range payload {
		sum = (sum + uint32(b)) % checksumModulus
	}
	return uint8(sum)
}

func Encode(payload []byte, seq uint8) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), MaxPayload)
	}
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = Checksum(payload)
	buf[1] = seq
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(payload)))
	copy(buf[HeaderLen:], payload)
	return buf, nil
}

// Decode parses a datagram. A checksum mismatch is reported through
// Frame.ChecksumOK, never as an error.
func Decode(b []byte) (Frame, error) {
	if len(b) < HeaderLen {
		return Frame{}, fmt.Errorf("%w: short header (%d bytes)", ErrMalformed, len(b))
	}
	n := int(binary.BigEndian.Uint16(b[2:4]))
	if n > MaxPayload {
		return Frame{}, fmt.Errorf("%w: payload length %d exceeds %d", ErrMalformed, n, MaxPayload)
	}
	if n > len(b)-HeaderLen {
		return Frame{}, fmt.Errorf("%w: payload length %d, have %d", ErrMalformed, n, len(b)-HeaderLen)
	}
	payload := make([]byte, n)
	copy(payload, b[HeaderLen:HeaderLen+n])
	return Frame{
		Checksum:   b[0],
		Sequence:   b[1],
		Payload:    payload,
		ChecksumOK: Checksum(payload) == b[0],
	}, nil
}

func EncodeAck(seq uint8) []byte {
	return []byte{seq}
}

func DecodeAck(b []byte) (uint8, error) {
	if len(b) != AckLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedAck, len(b))
	}
	return b[0], nil
}

// Split cuts data into ordered chunks of at most max bytes. Empty input
// yields no chunks.
func Split(data []byte, max int) [][]byte {
	if max <= 0 || max > MaxPayload {
		max = MaxPayload
	}
	chunks := make([][]byte, 0, (len(data)+max-1)/max)
	for off := 0; off < len(data); off += max {
		end := off + max
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}
