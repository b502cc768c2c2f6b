package btree

import (
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/record"
)

var cellCorruptErr = dberr.New(dberr.Corrupt, "btree: truncated cell")

// Cell layouts. A single overflow-flag byte follows the size varint(s)
// so a cell's length can be recovered without re-deriving it from page
// geometry:
//   table leaf:     varint(payload_size) varint(rowid) byte(has_overflow) payload [overflow_page(4)]
//   table interior: child_page(4) varint(rowid)
//   index leaf:     varint(key_size) byte(has_overflow) key [overflow_page(4)]
//   index interior: child_page(4) varint(key_size) byte(has_overflow) key [overflow_page(4)]
//
// A page never allows a single cell's local payload to exceed 3/4 of the
// page size; anything beyond that spills into an overflow chain.

func localLimit(pageSize int) int {
	return (pageSize * 3) / 4
}

func encodeTableLeafCell(pageSize int, rowid int64, payload []byte, allocOverflow func([]byte) (uint32, error)) ([]byte, error) {
	limit := localLimit(pageSize)
	local := payload
	var overflowPage uint32
	if len(payload) > limit {
		local = payload[:limit]
		pg, err := allocOverflow(payload[limit:])
		if err != nil {
			return nil, err
		}
		overflowPage = pg
	}
	buf := make([]byte, 0, len(local)+32)
	buf = record.PutVarint(buf, uint64(len(payload)))
	buf = record.PutVarint(buf, uint64(zigzag(rowid)))
	if overflowPage != 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, local...)
	if overflowPage != 0 {
		buf = append(buf, byte(overflowPage>>24), byte(overflowPage>>16), byte(overflowPage>>8), byte(overflowPage))
	}
	return buf, nil
}

func decodeTableLeafCell(cell []byte, readOverflow func(uint32, int) ([]byte, error)) (rowid int64, payload []byte, err error) {
	size, n, ok := record.Varint(cell)
	if !ok {
		return 0, nil, cellCorruptErr
	}
	cell = cell[n:]
	rid, n, ok := record.Varint(cell)
	if !ok {
		return 0, nil, cellCorruptErr
	}
	rowid = unzigzag(rid)
	cell = cell[n:]
	hasOverflow := cell[0] != 0
	cell = cell[1:]

	total := int(size)
	if !hasOverflow {
		return rowid, append([]byte(nil), cell[:total]...), nil
	}
	local := append([]byte(nil), cell[:len(cell)-4]...)
	overflowPage := be32(cell[len(cell)-4:])
	rest, err := readOverflow(overflowPage, total-len(local))
	if err != nil {
		return 0, nil, err
	}
	return rowid, append(local, rest...), nil
}

func cellRowid(cell []byte) int64 {
	_, n, _ := record.Varint(cell)
	rid, _, _ := record.Varint(cell[n:])
	return unzigzag(rid)
}

func encodeTableInteriorCell(child uint32, rowid int64) []byte {
	buf := make([]byte, 4, 12)
	putBE32(buf, 0, child)
	return record.PutVarint(buf, uint64(zigzag(rowid)))
}

func decodeTableInteriorCell(cell []byte) (child uint32, rowid int64) {
	child = be32(cell)
	rid, _, _ := record.Varint(cell[4:])
	return child, unzigzag(rid)
}

func encodeIndexLeafCell(pageSize int, key []byte, allocOverflow func([]byte) (uint32, error)) ([]byte, error) {
	limit := localLimit(pageSize)
	local := key
	var overflowPage uint32
	if len(key) > limit {
		local = key[:limit]
		pg, err := allocOverflow(key[limit:])
		if err != nil {
			return nil, err
		}
		overflowPage = pg
	}
	buf := make([]byte, 0, len(local)+16)
	buf = record.PutVarint(buf, uint64(len(key)))
	if overflowPage != 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, local...)
	if overflowPage != 0 {
		buf = append(buf, byte(overflowPage>>24), byte(overflowPage>>16), byte(overflowPage>>8), byte(overflowPage))
	}
	return buf, nil
}

func decodeIndexLeafCell(cell []byte, readOverflow func(uint32, int) ([]byte, error)) ([]byte, error) {
	size, n, ok := record.Varint(cell)
	if !ok {
		return nil, cellCorruptErr
	}
	cell = cell[n:]
	hasOverflow := cell[0] != 0
	cell = cell[1:]
	total := int(size)
	if !hasOverflow {
		return append([]byte(nil), cell[:total]...), nil
	}
	local := append([]byte(nil), cell[:len(cell)-4]...)
	overflowPage := be32(cell[len(cell)-4:])
	rest, err := readOverflow(overflowPage, total-len(local))
	if err != nil {
		return nil, err
	}
	return append(local, rest...), nil
}

func encodeIndexInteriorCell(pageSize int, child uint32, key []byte, allocOverflow func([]byte) (uint32, error)) ([]byte, error) {
	limit := localLimit(pageSize)
	local := key
	var overflowPage uint32
	if len(key) > limit {
		local = key[:limit]
		pg, err := allocOverflow(key[limit:])
		if err != nil {
			return nil, err
		}
		overflowPage = pg
	}
	buf := make([]byte, 4, len(local)+20)
	putBE32(buf, 0, child)
	buf = record.PutVarint(buf, uint64(len(key)))
	if overflowPage != 0 {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, local...)
	if overflowPage != 0 {
		buf = append(buf, byte(overflowPage>>24), byte(overflowPage>>16), byte(overflowPage>>8), byte(overflowPage))
	}
	return buf, nil
}

func decodeIndexInteriorCell(cell []byte, readOverflow func(uint32, int) ([]byte, error)) (child uint32, key []byte, err error) {
	child = be32(cell)
	rest := cell[4:]
	size, n, ok := record.Varint(rest)
	if !ok {
		return 0, nil, cellCorruptErr
	}
	rest = rest[n:]
	hasOverflow := rest[0] != 0
	rest = rest[1:]
	total := int(size)
	if !hasOverflow {
		return child, append([]byte(nil), rest[:total]...), nil
	}
	local := append([]byte(nil), rest[:len(rest)-4]...)
	overflowPage := be32(rest[len(rest)-4:])
	tail, err := readOverflow(overflowPage, total-len(local))
	if err != nil {
		return 0, nil, err
	}
	return child, append(local, tail...), nil
}

func indexCellKey(cell []byte) []byte {
	size, n, _ := record.Varint(cell)
	body := cell[n+1:]
	if int(size) <= len(body) {
		return body[:size]
	}
	return append([]byte(nil), body[:len(body)-4]...)
}

// cellLen reports how many bytes of buf (the page's remaining tail
// starting at this cell) belong to the cell itself, used by decodePage to
// slice each cell out of the raw page image at its pointer-array offset.
func cellLen(pageType byte, pageSize int, buf []byte) int {
	limit := localLimit(pageSize)
	switch pageType {
	case record.PageLeafTable:
		size, n, _ := record.Varint(buf)
		_, m, _ := record.Varint(buf[n:])
		hasOverflow := buf[n+m] != 0
		local := int(size)
		if hasOverflow {
			local = limit
		}
		n2 := n + m + 1 + local
		if hasOverflow {
			n2 += 4
		}
		return n2
	case record.PageInteriorTable:
		_, m, _ := record.Varint(buf[4:])
		return 4 + m
	case record.PageLeafIndex:
		size, n, _ := record.Varint(buf)
		hasOverflow := buf[n] != 0
		local := int(size)
		if hasOverflow {
			local = limit
		}
		n2 := n + 1 + local
		if hasOverflow {
			n2 += 4
		}
		return n2
	case record.PageInteriorIndex:
		size, n, _ := record.Varint(buf[4:])
		hasOverflow := buf[4+n] != 0
		local := int(size)
		if hasOverflow {
			local = limit
		}
		n2 := 4 + n + 1 + local
		if hasOverflow {
			n2 += 4
		}
		return n2
	default:
		return 0
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func zigzag(n int64) uint64 {
	return uint64((n << 1) ^ (n >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
