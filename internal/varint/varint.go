// Package varint implements unsigned LEB128-style variable-length integer
// encoding, the wire format used by frame headers in the queue's segment
// files.
package varint

import "github.com/fluxorio/flowqueue/internal/errors"

// MaxLen is the largest number of bytes a u64 can ever occupy. Encode never
// emits more than this; Decode tolerates one extra all-zero continuation
// byte on read, per the frame format's 4-bit vlen field.
const MaxLen = 10

// Encode appends the LEB128 encoding of v to dst and returns the result.
// Encoding 0 produces the single byte 0x00.
func Encode(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// Len returns the number of bytes Encode would emit for v, without
// allocating.
func Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// Decode reads a LEB128-encoded value from the front of buf and returns the
// value plus the number of bytes consumed. It fails with errors.MalformedFrame
// if buf is exhausted before a terminating byte, or if the encoded length
// exceeds 10 bytes (11 tolerated only when trailing bytes are all zero
// continuations, matching the original vlen <= 11 allowance).
func Decode(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if i > MaxLen || (i == MaxLen && b != 0) {
			return 0, 0, errors.New(errors.MalformedFrame, "varint.Decode", "value too long")
		}
		if b < 0x80 {
			v |= uint64(b) << shift
			return v, i + 1, nil
		}
		v |= uint64(b&0x7f) << shift
		shift += 7
	}
	return 0, 0, errors.New(errors.MalformedFrame, "varint.Decode", "truncated varint")
}
