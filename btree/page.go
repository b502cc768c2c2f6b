// Package btree implements the table and index B+trees over pager
// pages: cursor navigation, insertion with page split,
// deletion with page merge, and overflow chains for payloads too large to
// fit locally.
package btree

import (
	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/record"
)

// page is an in-memory decoded view of one B-tree page: the header plus
// the ordered list of raw cell byte-strings. Mutation always happens on
// this decoded form and the page is fully re-packed by encode(), trading
// the fragmented free-block bookkeeping a production pager would keep
// for simplicity -- every insert/delete recompacts rather than patching
// offsets in place. Cell ordering within the slice is the page's logical
// key order throughout; content area and pointer array never overlap
// because capacity is checked before a mutation is accepted.
type page struct {
	header record.BTreePageHeader
	cells  [][]byte
	size   int
}

func decodePage(buf []byte, size int) (*page, error) {
	h, err := record.DecodeBTreePageHeader(buf)
	if err != nil {
		return nil, err
	}
	hdrSize := record.BTreePageHeaderSize(h.PageType)
	cells := make([][]byte, 0, h.CellCount)
	for i := 0; i < int(h.CellCount); i++ {
		ptrOff := hdrSize + 2*i
		off := int(buf[ptrOff])<<8 | int(buf[ptrOff+1])
		n := cellLen(h.PageType, size, buf[off:])
		cell := make([]byte, n)
		copy(cell, buf[off:off+n])
		cells = append(cells, cell)
	}
	return &page{header: *h, cells: cells, size: size}, nil
}

// encode re-packs the page's header, pointer array, and cell content into
// a fresh size-byte buffer, content growing down from the end of the page.
func (p *page) encode() ([]byte, error) {
	buf := make([]byte, p.size)
	hdrSize := record.BTreePageHeaderSize(p.header.PageType)

	contentStart := p.size
	for _, c := range p.cells {
		contentStart -= len(c)
	}
	if contentStart < hdrSize+2*len(p.cells) {
		return nil, dberr.New(dberr.Internal, "btree: page overflow: %d cells do not fit in %d bytes",
			len(p.cells), p.size)
	}

	off := contentStart
	for i, c := range p.cells {
		copy(buf[off:off+len(c)], c)
		ptrOff := hdrSize + 2*i
		buf[ptrOff] = byte(off >> 8)
		buf[ptrOff+1] = byte(off)
		off += len(c)
	}

	p.header.CellCount = uint16(len(p.cells))
	p.header.CellContentArea = uint16(contentStart)
	p.header.FirstFreeblock = 0
	p.header.FragmentedFree = 0
	record.EncodeBTreePageHeader(buf, &p.header)
	return buf, nil
}

// fits reports whether cell could be appended to this page without
// overflowing it, used before committing to a mutation so a split can be
// triggered instead.
func (p *page) fits(cell []byte) bool {
	hdrSize := record.BTreePageHeaderSize(p.header.PageType)
	used := hdrSize + 2*(len(p.cells)+1)
	for _, c := range p.cells {
		used += len(c)
	}
	used += len(cell)
	return used <= p.size
}

func (p *page) isLeaf() bool {
	return p.header.PageType == record.PageLeafTable || p.header.PageType == record.PageLeafIndex
}

func (p *page) isTable() bool {
	return p.header.PageType == record.PageInteriorTable || p.header.PageType == record.PageLeafTable
}

func newLeafTablePage(size int) *page {
	return &page{header: record.BTreePageHeader{PageType: record.PageLeafTable}, size: size}
}

func newInteriorTablePage(size int) *page {
	return &page{header: record.BTreePageHeader{PageType: record.PageInteriorTable}, size: size}
}

func newLeafIndexPage(size int) *page {
	return &page{header: record.BTreePageHeader{PageType: record.PageLeafIndex}, size: size}
}

func newInteriorIndexPage(size int) *page {
	return &page{header: record.BTreePageHeader{PageType: record.PageInteriorIndex}, size: size}
}
