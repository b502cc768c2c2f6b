// Package util holds the small binary-encoding helpers shared by the mvcc
// intent-log codec and the commitlog ledger codec: a standard LEB128
// varint, zigzag signed-integer mapping,
// and fixed-width big-endian integers. These predate (and are independent
// of) the SQLite-file-format varint in package record, which is a
// different, byte-for-byte specified encoding used by the pager/btree wire
// format; this package's callers instead want an appendable, self-describing
// row encoding for their own on-disk layouts.
package util

import "encoding/binary"

// EncodeVarint appends the standard unsigned LEB128 varint encoding of v to
// buf and returns the extended slice.
func EncodeVarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

// DecodeVarint decodes a varint from the start of buf, returning the
// remaining bytes, the value, and whether the encoding was well formed.
func DecodeVarint(buf []byte) ([]byte, uint64, bool) {
	v, n := binary.Uvarint(buf)
	if n <= 0 {
		return buf, 0, false
	}
	return buf[n:], v, true
}

// EncodeZigzag64 appends the zigzag-mapped varint encoding of a signed v,
// so small negative values stay small after encoding.
func EncodeZigzag64(buf []byte, v int64) []byte {
	return EncodeVarint(buf, zigzagEncode(v))
}

// DecodeZigzag64 is the inverse of EncodeZigzag64.
func DecodeZigzag64(buf []byte) ([]byte, int64, bool) {
	rest, u, ok := DecodeVarint(buf)
	if !ok {
		return buf, 0, false
	}
	return rest, zigzagDecode(u), true
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func zigzagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// EncodeUint64 appends v as 8 big-endian bytes to buf.
func EncodeUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeUint64 reads 8 big-endian bytes from the start of buf.
func DecodeUint64(buf []byte) ([]byte, uint64, bool) {
	if len(buf) < 8 {
		return buf, 0, false
	}
	return buf[8:], binary.BigEndian.Uint64(buf[:8]), true
}

// EncodeUint32 appends v as 4 big-endian bytes to buf.
func EncodeUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// DecodeUint32 reads 4 big-endian bytes from the start of buf.
func DecodeUint32(buf []byte) ([]byte, uint32, bool) {
	if len(buf) < 4 {
		return buf, 0, false
	}
	return buf[4:], binary.BigEndian.Uint32(buf[:4]), true
}
