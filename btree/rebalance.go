package btree

import (
	"github.com/leftmike/frankensqlite/record"
)

// Rebalancing after delete: when a leaf falls below
// half-fill and an adjacent sibling can absorb it, the two pages merge, the
// separator between them leaves the parent, and the check recurses up. An
// interior root left holding nothing but its rightmost child collapses into
// that child, shrinking the tree by one level.

func (p *page) usedBytes() int {
	used := record.BTreePageHeaderSize(p.header.PageType) + 2*len(p.cells)
	for _, c := range p.cells {
		used += len(c)
	}
	return used
}

// underfull is the half-fill trigger. The root is exempt; callers check
// path length before asking.
func (p *page) underfull() bool {
	return p.usedBytes()*2 < p.size
}

// rebalance restores the fill invariant at pgno, whose already-written
// decoded content is pg, merging with a sibling where one can absorb it.
// A page that stays under-filled because neither sibling has room is left
// in place; it is still a valid page, just a sparse one.
func (bt *BTree) rebalance(path []pathEntry, pgno uint32, pg *page) error {
	if len(path) == 0 {
		return bt.collapseRoot(pg)
	}
	if !pg.underfull() {
		return nil
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]
	parentPg, err := bt.loadPage(parent.pgno)
	if err != nil {
		return err
	}
	entries, err := bt.entriesOfInterior(parentPg)
	if err != nil {
		return err
	}
	if len(entries) < 2 {
		// No sibling under this parent; the parent itself shrinks on the
		// way up.
		return nil
	}

	// Prefer absorbing into the left sibling; a leftmost child pairs with
	// its right neighbor instead. leftIdx names the left page of the pair,
	// whose separator (entries[leftIdx]) is the one the merge removes.
	leftIdx := parent.childIdx - 1
	if parent.childIdx == 0 {
		leftIdx = 0
	}
	rightIdx := leftIdx + 1

	leftPgno := entries[leftIdx].child
	rightPgno := entries[rightIdx].child
	leftPg, err := bt.loadPage(leftPgno)
	if err != nil {
		return err
	}
	rightPg, err := bt.loadPage(rightPgno)
	if err != nil {
		return err
	}

	merged, err := bt.mergePages(leftPg, rightPg, entries[leftIdx])
	if err != nil {
		return err
	}
	if _, err := merged.encode(); err != nil {
		// Sibling cannot absorb this page; leave it under-filled.
		return nil
	}
	if err := bt.writePage(leftPgno, merged); err != nil {
		return err
	}

	newEntries := make([]entry, 0, len(entries)-1)
	newEntries = append(newEntries, entries[:leftIdx]...)
	newEntries = append(newEntries, entries[rightIdx:]...)
	newEntries[leftIdx].child = leftPgno

	newParent, err := bt.buildInteriorPage(newEntries)
	if err != nil {
		return err
	}
	if err := bt.writePage(parent.pgno, newParent); err != nil {
		return err
	}
	if err := bt.h.FreePage(rightPgno); err != nil {
		return err
	}
	return bt.rebalance(rest, parent.pgno, newParent)
}

// mergePages combines two adjacent siblings into one page. For leaves the
// cell lists simply concatenate; for interior pages the parent separator
// sep is pulled down between the left page's rightmost child and the right
// page's entries.
func (bt *BTree) mergePages(left, right *page, sep entry) (*page, error) {
	if left.isLeaf() {
		var pg *page
		if bt.isTable {
			pg = newLeafTablePage(left.size)
		} else {
			pg = newLeafIndexPage(left.size)
		}
		pg.cells = append(append([][]byte{}, left.cells...), right.cells...)
		return pg, nil
	}

	le, err := bt.entriesOfInterior(left)
	if err != nil {
		return nil, err
	}
	re, err := bt.entriesOfInterior(right)
	if err != nil {
		return nil, err
	}
	le[len(le)-1] = entry{child: le[len(le)-1].child, rowid: sep.rowid, key: sep.key}
	return bt.buildInteriorPage(append(le, re...))
}

// collapseRoot removes empty interior levels at the top of the tree: as
// long as the root holds no separators and one rightmost child, the child's
// content moves up into the root page (whose number must stay the tree's
// root pointer) and the child page is freed.
func (bt *BTree) collapseRoot(rootPg *page) error {
	for !rootPg.isLeaf() && len(rootPg.cells) == 0 {
		childPgno := rootPg.header.RightmostChild
		childPg, err := bt.loadPage(childPgno)
		if err != nil {
			return err
		}
		if err := bt.writePage(bt.root, childPg); err != nil {
			return err
		}
		if err := bt.h.FreePage(childPgno); err != nil {
			return err
		}
		rootPg = childPg
	}
	return nil
}
