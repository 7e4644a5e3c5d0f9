package sysvsem

import "testing"

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, base - 1, base, base + 1, base * base, 1 << 40}
	for _, v := range cases {
		digits := encode(v)
		got := decode(digits)
		if got != v {
			t.Fatalf("round trip mismatch: encoded %d, decoded %d", v, got)
		}
	}
}

func TestEncode_DigitsBelowBase(t *testing.T) {
	digits := encode(uint64(numDigits)*base*base + 12345)
	for i, d := range digits {
		if uint64(d) >= base {
			t.Fatalf("digit %d = %d exceeds base %d", i, d, base)
		}
	}
}
