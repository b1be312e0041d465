package frame

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sizes := []int{0, 1, 2, 5, 254, 255, 256, 1019, MaxPayload}
	for i := 0; i < 64; i++ {
		sizes = append(sizes, rng.Intn(MaxPayload+1))
	}
	for i, n := range sizes {
		payload := make([]byte, n)
		rng.Read(payload)
		seq := uint8(i)
		buf, err := Encode(payload, seq)
		if err != nil {
			t.Fatalf("encode size=%d: %v", n, err)
		}
		if len(buf) != HeaderLen+n {
			t.Fatalf("encoded len=%d want=%d", len(buf), HeaderLen+n)
		}
		got, err := Decode(buf)
		if err != nil {
			t.Fatalf("decode size=%d: %v", n, err)
		}
		if !got.Valid() {
			t.Fatalf("checksum not ok size=%d", n)
		}
		if got.Sequence != seq {
			t.Fatalf("sequence got=%d want=%d", got.Sequence, seq)
		}
		if !bytes.Equal(got.Payload, payload) {
			t.Fatalf("payload mismatch size=%d", n)
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	buf, err := Encode([]byte("HELLO"), 3)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := []byte{Checksum([]byte("HELLO")), 3, 0x00, 0x05, 'H', 'E', 'L', 'L', 'O'}
	if !bytes.Equal(buf, want) {
		t.Fatalf("layout got=%v want=%v", buf, want)
	}
}

func TestChecksumModulus(t *testing.T) {
	if got := Checksum(bytes.Repeat([]byte{1}, 255)); got != 0 {
		t.Fatalf("255 ones got=%d want=0", got)
	}
	if got := Checksum([]byte{0xFF}); got != 0 {
		t.Fatalf("0xff got=%d want=0", got)
	}
	if got := Checksum([]byte{200, 100}); got != 45 {
		t.Fatalf("200+100 got=%d want=45", got)
	}
	if got := Checksum(nil); got != 0 {
		t.Fatalf("empty got=%d", got)
	}
}

func TestDecodeDetectsSingleByteFlip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	payload := make([]byte, 300)
	rng.Read(payload)
	buf, err := Encode(payload, 9)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := HeaderLen; i < len(buf); i++ {
		corrupt := append([]byte(nil), buf...)
		corrupt[i] ^= 0x01
		got, err := Decode(corrupt)
		if err != nil {
			t.Fatalf("decode flip at %d: %v", i, err)
		}
		if got.Valid() {
			t.Fatalf("flip at %d not detected", i)
		}
	}
}

func TestDecodeChecksumByteFlipIsContentError(t *testing.T) {
	buf, _ := Encode([]byte("payload"), 1)
	buf[0] ^= 0xFF
	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("checksum mismatch must not be a decode error: %v", err)
	}
	if got.Valid() {
		t.Fatalf("expected checksum mismatch")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"empty":      nil,
		"short":      {1, 2, 3},
		"len_beyond": {0, 0, 0x00, 0x08, 'a', 'b'},
		"len_max":    {0, 0, 0x04, 0x00},
	}
	for name, in := range cases {
		if _, err := Decode(in); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestDecodeIgnoresPadding(t *testing.T) {
	buf, _ := Encode([]byte("abc"), 4)
	padded := make([]byte, MaxFrameLen)
	copy(padded, buf)
	got, err := Decode(padded)
	if err != nil {
		t.Fatalf("decode padded: %v", err)
	}
	if string(got.Payload) != "abc" || !got.Valid() {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestEncodePayloadTooLarge(t *testing.T) {
	_, err := Encode(make([]byte, MaxPayload+1), 0)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestAckCodec(t *testing.T) {
	seq, err := DecodeAck(EncodeAck(200))
	if err != nil || seq != 200 {
		t.Fatalf("ack round trip seq=%d err=%v", seq, err)
	}
	if _, err := DecodeAck(nil); !errors.Is(err, ErrMalformedAck) {
		t.Fatalf("expected ErrMalformedAck for empty, got %v", err)
	}
	if _, err := DecodeAck([]byte{1, 2}); !errors.Is(err, ErrMalformedAck) {
		t.Fatalf("expected ErrMalformedAck for two bytes, got %v", err)
	}
}

func TestSplit(t *testing.T) {
	chunks := Split([]byte("HELLO WORLD"), 5)
	want := []string{"HELLO", " WORL", "D"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks=%d want=%d", len(chunks), len(want))
	}
	for i := range want {
		if string(chunks[i]) != want[i] {
			t.Fatalf("chunk[%d]=%q want=%q", i, chunks[i], want[i])
		}
	}
	if got := Split(nil, 5); len(got) != 0 {
		t.Fatalf("empty input produced %d chunks", len(got))
	}
	if got := Split(make([]byte, MaxPayload*2+1), 0); len(got) != 3 {
		t.Fatalf("default chunk size produced %d chunks", len(got))
	}
}
