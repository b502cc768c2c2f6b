package util

import "testing"

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 40, ^uint64(0)} {
		buf := EncodeVarint(nil, v)
		rest, got, ok := DecodeVarint(buf)
		if !ok || got != v || len(rest) != 0 {
			t.Fatalf("EncodeVarint/DecodeVarint(%d): got %d, ok=%v, rest=%d", v, got, ok, len(rest))
		}
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, -1, 1, -128, 128, -1 << 40, 1 << 40} {
		buf := EncodeZigzag64(nil, v)
		rest, got, ok := DecodeZigzag64(buf)
		if !ok || got != v || len(rest) != 0 {
			t.Fatalf("EncodeZigzag64/DecodeZigzag64(%d): got %d, ok=%v", v, got, ok)
		}
	}
}

func TestFixedWidthRoundTrip(t *testing.T) {
	buf := EncodeUint64(nil, 0x0102030405060708)
	_, got64, ok := DecodeUint64(buf)
	if !ok || got64 != 0x0102030405060708 {
		t.Fatalf("uint64 round trip failed: %x ok=%v", got64, ok)
	}
	buf = EncodeUint32(nil, 0xaabbccdd)
	_, got32, ok := DecodeUint32(buf)
	if !ok || got32 != 0xaabbccdd {
		t.Fatalf("uint32 round trip failed: %x ok=%v", got32, ok)
	}
}
