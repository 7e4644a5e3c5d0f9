package varint

import (
	"testing"

	"github.com/fluxorio/flowqueue/internal/errors"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1, ^uint64(0)}
	for _, v := range cases {
		var buf [MaxLen]byte
		encoded := Encode(buf[:0], v)
		got, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("Decode(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: encoded %d, decoded %d", v, got)
		}
		if n != len(encoded) {
			t.Fatalf("Decode consumed %d bytes, Encode produced %d", n, len(encoded))
		}
		if Len(v) != len(encoded) {
			t.Fatalf("Len(%d) = %d, want %d", v, Len(v), len(encoded))
		}
	}
}

func TestDecode_Truncated(t *testing.T) {
	var buf [MaxLen]byte
	encoded := Encode(buf[:0], 1<<20)
	_, _, err := Decode(encoded[:1])
	if errors.KindOf(err) != errors.MalformedFrame {
		t.Fatalf("expected MalformedFrame, got %v", err)
	}
}

func TestDecode_Empty(t *testing.T) {
	_, _, err := Decode(nil)
	if err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}
