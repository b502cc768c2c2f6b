package record

import (
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/sql"
)

var corruptRecord = dberr.New(dberr.Corrupt, "record: truncated header")

// MakeRecord encodes vals as a record payload: varint(header
// size), then one varint(serial_type) per column, then the packed column
// bodies in order.
func MakeRecord(vals []sql.Value) []byte {
	serials := make([]uint64, len(vals))
	bodyLen := 0
	headerLen := 0
	for i, v := range vals {
		st, n := SerialType(v)
		serials[i] = st
		bodyLen += n
		headerLen += VarintLen(st)
	}

	// The header's own length varint is itself included in header_size, so
	// account for its own encoded width by trying candidate lengths until
	// stable (it never needs more than one extra byte in practice, but this
	// loop is exact regardless of page size).
	hdrSizeLen := VarintLen(uint64(headerLen))
	for {
		total := hdrSizeLen + headerLen
		if VarintLen(uint64(total)) == hdrSizeLen {
			break
		}
		hdrSizeLen = VarintLen(uint64(total))
	}
	totalHeaderLen := hdrSizeLen + headerLen

	buf := make([]byte, 0, totalHeaderLen+bodyLen)
	buf = PutVarint(buf, uint64(totalHeaderLen))
	for _, st := range serials {
		buf = PutVarint(buf, st)
	}
	for _, v := range vals {
		buf = PutValue(buf, v)
	}
	return buf
}

// DecodeRecord parses a record payload back into its column values;
// serialization is bijective modulo affinity coercion.
func DecodeRecord(buf []byte) ([]sql.Value, error) {
	headerLen, n, ok := Varint(buf)
	if !ok {
		return nil, shortRecordErr()
	}
	if int(headerLen) > len(buf) {
		return nil, shortRecordErr()
	}

	var serials []uint64
	pos := n
	for pos < int(headerLen) {
		st, m, ok := Varint(buf[pos:])
		if !ok {
			return nil, shortRecordErr()
		}
		serials = append(serials, st)
		pos += m
	}

	vals := make([]sql.Value, len(serials))
	bodyPos := int(headerLen)
	for i, st := range serials {
		v, n := DecodeValue(st, buf[bodyPos:])
		vals[i] = v
		bodyPos += n
	}
	return vals, nil
}

func shortRecordErr() error {
	return corruptRecord
}
