package btree

import "github.com/leftmike/frankensqlite/pager"

// Overflow pages chain via a 4-byte page-number link at offset 0: the
// remaining pageSize-4 bytes hold payload.

func writeOverflowChain(h *pager.Handle, data []byte) (uint32, error) {
	pageSize := int(h.PageSize())
	chunk := pageSize - 4

	var head uint32
	var prev uint32
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		pgno, err := h.AllocatePage()
		if err != nil {
			return 0, err
		}
		buf := make([]byte, pageSize)
		copy(buf[4:], data[off:end])
		if err := h.WritePage(pgno, buf); err != nil {
			return 0, err
		}
		if head == 0 {
			head = pgno
		}
		if prev != 0 {
			prevBuf, err := h.GetPage(prev)
			if err != nil {
				return 0, err
			}
			linked := make([]byte, len(prevBuf))
			copy(linked, prevBuf)
			putBE32(linked, 0, pgno)
			if err := h.WritePage(prev, linked); err != nil {
				return 0, err
			}
		}
		prev = pgno
	}
	return head, nil
}

func readOverflowChain(h *pager.Handle, pgno uint32, want int) ([]byte, error) {
	pageSize := int(h.PageSize())
	chunk := pageSize - 4
	out := make([]byte, 0, want)
	for pgno != 0 && len(out) < want {
		buf, err := h.GetPage(pgno)
		if err != nil {
			return nil, err
		}
		next := be32(buf)
		n := chunk
		if want-len(out) < n {
			n = want - len(out)
		}
		out = append(out, buf[4:4+n]...)
		pgno = next
	}
	return out, nil
}
