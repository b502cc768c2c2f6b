package pager

import "github.com/leftmike/frankensqlite/dberr"

// Free-list trunk pages:
// bytes 0-3 are the next trunk page number (0 if none), bytes 4-7 are the
// leaf count, followed by that many 4-byte leaf page numbers.
const (
	trunkNextOff  = 0
	trunkCountOff = 4
	trunkLeafOff  = 8
)

func getU32(b []byte, off int) uint32 {
	return uint32(b[off])<<24 | uint32(b[off+1])<<16 | uint32(b[off+2])<<8 | uint32(b[off+3])
}

func putU32(b []byte, off int, v uint32) {
	b[off] = byte(v >> 24)
	b[off+1] = byte(v >> 16)
	b[off+2] = byte(v >> 8)
	b[off+3] = byte(v)
}

func (h *Handle) maxLeavesPerTrunk() int {
	return (int(h.p.pageSize) - trunkLeafOff) / 4
}

// popFreeList removes and returns one page number from the free list,
// reporting ok=false if the free list is empty.
func (h *Handle) popFreeList() (uint32, bool, error) {
	trunk := h.p.header.FreelistTrunk
	if trunk == 0 {
		return 0, false, nil
	}
	page, err := h.GetPage(trunk)
	if err != nil {
		return 0, false, err
	}
	count := getU32(page, trunkCountOff)
	if count > 0 {
		pgno := getU32(page, trunkLeafOff+4*int(count-1))
		page2 := make([]byte, len(page))
		copy(page2, page)
		putU32(page2, trunkCountOff, count-1)
		if err := h.WritePage(trunk, page2); err != nil {
			return 0, false, err
		}
		h.p.header.FreelistCount--
		return pgno, true, nil
	}

	// Trunk is empty of leaves: the trunk page itself becomes the freed
	// page, and the next trunk in the chain becomes the new root.
	next := getU32(page, trunkNextOff)
	h.p.header.FreelistTrunk = next
	h.p.header.FreelistCount--
	return trunk, true, nil
}

// pushFreeList adds pgno to the free list, starting a new trunk page if
// the current trunk is full or absent.
func (h *Handle) pushFreeList(pgno uint32) error {
	trunk := h.p.header.FreelistTrunk
	if trunk != 0 {
		page, err := h.GetPage(trunk)
		if err != nil {
			return err
		}
		count := getU32(page, trunkCountOff)
		if int(count) < h.maxLeavesPerTrunk() {
			page2 := make([]byte, len(page))
			copy(page2, page)
			putU32(page2, trunkCountOff, count+1)
			putU32(page2, trunkLeafOff+4*int(count), pgno)
			if err := h.WritePage(trunk, page2); err != nil {
				return err
			}
			h.p.header.FreelistCount++
			return nil
		}
	}

	// pgno becomes the new trunk page, pointing at the old trunk.
	newTrunk := make([]byte, h.p.pageSize)
	putU32(newTrunk, trunkNextOff, trunk)
	putU32(newTrunk, trunkCountOff, 0)
	if err := h.WritePage(pgno, newTrunk); err != nil {
		return err
	}
	h.p.header.FreelistTrunk = pgno
	h.p.header.FreelistCount++
	return nil
}

// checkPageNumber validates pgno is a legal 1-based page address; page 0
// is never a valid address.
func checkPageNumber(pgno uint32) error {
	if pgno == 0 {
		return dberr.New(dberr.Internal, "pager: page 0 is not a valid address")
	}
	return nil
}
