package record

import (
	"math"

	"github.com/leftmike/frankensqlite/sql"
)

// Serial types 0-9 are fixed per the SQLite record format: 0 is NULL, 1-6
// are signed integers of increasing width (1,2,3,4,6,8 bytes), 7 is an
// IEEE-754 float64, 8 and 9 are the integer constants 0 and 1 with no
// payload. Serial type >= 12 and even is a BLOB of (n-12)/2 bytes; >= 13
// and odd is a TEXT of (n-13)/2 bytes.
const (
	SerialNull    = 0
	SerialInt8    = 1
	SerialInt16   = 2
	SerialInt24   = 3
	SerialInt32   = 4
	SerialInt48   = 5
	SerialInt64   = 6
	SerialFloat64 = 7
	SerialZero    = 8
	SerialOne     = 9
)

// SerialType returns the serial type that encodes v, and the number of
// payload bytes that follow the type in the record's body (0 for the
// fixed-constant and NULL types).
func SerialType(v sql.Value) (uint64, int) {
	switch v := v.(type) {
	case nil:
		return SerialNull, 0
	case sql.BoolValue:
		if v {
			return SerialOne, 0
		}
		return SerialZero, 0
	case sql.Int64Value:
		n := int64(v)
		switch {
		case n == 0:
			return SerialZero, 0
		case n == 1:
			return SerialOne, 0
		case n >= -(1<<7) && n < (1<<7):
			return SerialInt8, 1
		case n >= -(1<<15) && n < (1<<15):
			return SerialInt16, 2
		case n >= -(1<<23) && n < (1<<23):
			return SerialInt24, 3
		case n >= -(1<<31) && n < (1<<31):
			return SerialInt32, 4
		case n >= -(1<<47) && n < (1<<47):
			return SerialInt48, 6
		default:
			return SerialInt64, 8
		}
	case sql.Float64Value:
		return SerialFloat64, 8
	case sql.StringValue:
		n := len(v)
		return uint64(13 + 2*n), n
	case sql.BytesValue:
		n := len(v)
		return uint64(12 + 2*n), n
	default:
		panic("record: unexpected sql.Value type")
	}
}

// PutValue appends the record-body encoding of v (the bytes following its
// serial type in SerialType's payload-length accounting) to buf.
func PutValue(buf []byte, v sql.Value) []byte {
	switch v := v.(type) {
	case nil, sql.BoolValue:
		return buf
	case sql.Int64Value:
		_, n := SerialType(v)
		return putBigEndianInt(buf, int64(v), n)
	case sql.Float64Value:
		bits := math.Float64bits(float64(v))
		return append(buf, byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
			byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
	case sql.StringValue:
		return append(buf, []byte(v)...)
	case sql.BytesValue:
		return append(buf, []byte(v)...)
	default:
		panic("record: unexpected sql.Value type")
	}
}

func putBigEndianInt(buf []byte, n int64, width int) []byte {
	if width == 0 {
		return buf
	}
	var tmp [8]byte
	u := uint64(n)
	for i := 7; i >= 0; i-- {
		tmp[i] = byte(u)
		u >>= 8
	}
	return append(buf, tmp[8-width:]...)
}

// DecodeValue reads the body of serial type st from buf, returning the
// decoded sql.Value and the number of bytes consumed.
func DecodeValue(st uint64, buf []byte) (sql.Value, int) {
	switch st {
	case SerialNull:
		return nil, 0
	case SerialZero:
		return sql.Int64Value(0), 0
	case SerialOne:
		return sql.Int64Value(1), 0
	case SerialInt8, SerialInt16, SerialInt24, SerialInt32, SerialInt48, SerialInt64:
		width := intWidth(st)
		n := getSignedBigEndian(buf[:width])
		return sql.Int64Value(n), width
	case SerialFloat64:
		bits := uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
			uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])
		return sql.Float64Value(math.Float64frombits(bits)), 8
	default:
		if st >= 12 && st%2 == 0 {
			n := int((st - 12) / 2)
			return sql.BytesValue(append([]byte(nil), buf[:n]...)), n
		}
		n := int((st - 13) / 2)
		return sql.StringValue(append([]byte(nil), buf[:n]...)), n
	}
}

func intWidth(st uint64) int {
	switch st {
	case SerialInt8:
		return 1
	case SerialInt16:
		return 2
	case SerialInt24:
		return 3
	case SerialInt32:
		return 4
	case SerialInt48:
		return 6
	default:
		return 8
	}
}

func getSignedBigEndian(buf []byte) int64 {
	var u uint64
	for _, b := range buf {
		u = (u << 8) | uint64(b)
	}
	// Left-align into 64 bits then arithmetic-shift back: sign-extends
	// from the top bit of the width-byte quantity.
	shift := uint(64 - 8*len(buf))
	return int64(u<<shift) >> shift
}
