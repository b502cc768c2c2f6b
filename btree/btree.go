package btree

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/leftmike/frankensqlite/dberr"
	"github.com/leftmike/frankensqlite/mvcc"
	"github.com/leftmike/frankensqlite/pager"
)

// BTree is a table or index B+tree rooted at a fixed page number. Table
// trees key rows by int64 rowid; index trees key entries by an arbitrary
// byte string (typically a record.MakeRecord-encoded composite key, so
// comparison is plain lexicographic order on the encoded bytes). Name
// identifies the tree to the merge ladder's deterministic-rebase
// strategy: every mutation is also appended to the transaction's intent
// log under this name.
type BTree struct {
	h       *pager.Handle
	root    uint32
	isTable bool
	name    string
}

// Open wraps an existing root page as a BTree handle.
func Open(h *pager.Handle, root uint32, isTable bool, name string) *BTree {
	return &BTree{h: h, root: root, isTable: isTable, name: name}
}

// CreateTable allocates a fresh empty table B+tree and returns a handle to
// it; Root reports its root page number.
func CreateTable(h *pager.Handle, name string) (*BTree, error) {
	return createRoot(h, true, name)
}

// CreateIndex allocates a fresh empty index B+tree and returns a handle to
// it; Root reports its root page number.
func CreateIndex(h *pager.Handle, name string) (*BTree, error) {
	return createRoot(h, false, name)
}

func createRoot(h *pager.Handle, isTable bool, name string) (*BTree, error) {
	pgno, err := h.AllocatePage()
	if err != nil {
		return nil, err
	}
	var pg *page
	if isTable {
		pg = newLeafTablePage(int(h.PageSize()))
	} else {
		pg = newLeafIndexPage(int(h.PageSize()))
	}
	buf, err := pg.encode()
	if err != nil {
		return nil, err
	}
	if err := h.WritePage(pgno, buf); err != nil {
		return nil, err
	}
	return &BTree{h: h, root: pgno, isTable: isTable, name: name}, nil
}

// EncodeRowidKey renders a table rowid as the fixed-width key bytes used in
// intent-log entries (not a storage format; table cells keep the compact
// varint/zigzag encoding in cell.go).
func EncodeRowidKey(rowid int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(rowid))
	return buf
}

// DecodeRowidKey is the inverse of EncodeRowidKey.
func DecodeRowidKey(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

func (bt *BTree) logIntent(kind mvcc.IntentKind, key, value []byte) {
	if bt.name == "" {
		return
	}
	bt.h.Txn().LogIntent(mvcc.IntentOp{Kind: kind, Table: bt.name, Key: key, Value: value})
}

// Root returns the tree's root page number, persisted by the caller
// (typically into a catalog row) to reopen the tree later.
func (bt *BTree) Root() uint32 { return bt.root }

func (bt *BTree) loadPage(pgno uint32) (*page, error) {
	buf, err := bt.h.GetPage(pgno)
	if err != nil {
		return nil, err
	}
	return decodePage(buf, int(bt.h.PageSize()))
}

func (bt *BTree) writePage(pgno uint32, pg *page) error {
	buf, err := pg.encode()
	if err != nil {
		return err
	}
	return bt.h.WritePage(pgno, buf)
}

func (bt *BTree) allocOverflow(data []byte) (uint32, error) {
	return writeOverflowChain(bt.h, data)
}

func (bt *BTree) readOverflow(pgno uint32, want int) ([]byte, error) {
	return readOverflowChain(bt.h, pgno, want)
}

// entry is a uniform view of one interior-page child pointer, whether the
// tree is a table tree (int64 rowid separators) or an index tree (byte-
// string separators). The final entry in an entriesOfInterior slice always
// has last == true and represents the page's RightmostChild, which covers
// every key greater than the last real separator.
type entry struct {
	child uint32
	rowid int64
	key   []byte
	last  bool
}

func (bt *BTree) entriesOfInterior(pg *page) ([]entry, error) {
	es := make([]entry, 0, len(pg.cells)+1)
	if bt.isTable {
		for _, c := range pg.cells {
			child, rowid := decodeTableInteriorCell(c)
			es = append(es, entry{child: child, rowid: rowid})
		}
	} else {
		for _, c := range pg.cells {
			child, key, err := decodeIndexInteriorCell(c, bt.readOverflow)
			if err != nil {
				return nil, err
			}
			es = append(es, entry{child: child, key: key})
		}
	}
	es = append(es, entry{child: pg.header.RightmostChild, last: true})
	return es, nil
}

// entriesOfInterior is the package-level helper used by Cursor, which
// cannot see an error from mid-traversal key decoding: separators built
// by this package never spill into overflow chains, so decoding them
// cannot fail in practice, but the method form above still plumbs the
// error through for callers that want it.
func entriesOfInterior(pg *page) []entry {
	es := make([]entry, 0, len(pg.cells)+1)
	if pg.isTable() {
		for _, c := range pg.cells {
			child, rowid := decodeTableInteriorCell(c)
			es = append(es, entry{child: child, rowid: rowid})
		}
	} else {
		for _, c := range pg.cells {
			child := be32(c)
			es = append(es, entry{child: child, key: indexCellKey(c[4:])})
		}
	}
	es = append(es, entry{child: pg.header.RightmostChild, last: true})
	return es
}

func (bt *BTree) buildInteriorPage(entries []entry) (*page, error) {
	var pg *page
	if bt.isTable {
		pg = newInteriorTablePage(int(bt.h.PageSize()))
	} else {
		pg = newInteriorIndexPage(int(bt.h.PageSize()))
	}
	for _, e := range entries {
		if e.last {
			pg.header.RightmostChild = e.child
			continue
		}
		if bt.isTable {
			pg.cells = append(pg.cells, encodeTableInteriorCell(e.child, e.rowid))
		} else {
			cell, err := encodeIndexInteriorCell(int(bt.h.PageSize()), e.child, e.key, bt.allocOverflow)
			if err != nil {
				return nil, err
			}
			pg.cells = append(pg.cells, cell)
		}
	}
	return pg, nil
}

// cmpEntry compares an interior entry's separator against a target key,
// table rows compared as int64, index entries compared lexicographically.
func (bt *BTree) cmpEntry(e entry, rowid int64, key []byte) int {
	if bt.isTable {
		switch {
		case e.rowid < rowid:
			return -1
		case e.rowid > rowid:
			return 1
		default:
			return 0
		}
	}
	return bytes.Compare(e.key, key)
}

func (bt *BTree) descend(rowid int64, key []byte) (path []pathEntry, leafPgno uint32, leafPage *page, err error) {
	pgno := bt.root
	for {
		pg, err := bt.loadPage(pgno)
		if err != nil {
			return nil, 0, nil, err
		}
		if pg.isLeaf() {
			return path, pgno, pg, nil
		}
		entries, err := bt.entriesOfInterior(pg)
		if err != nil {
			return nil, 0, nil, err
		}
		idx := len(entries) - 1
		for i, e := range entries {
			if e.last {
				break
			}
			if bt.cmpEntry(e, rowid, key) >= 0 {
				idx = i
				break
			}
		}
		path = append(path, pathEntry{pgno, idx})
		pgno = entries[idx].child
	}
}

func (bt *BTree) descendToLeaf(rowid int64) ([]pathEntry, uint32, *page, int, error) {
	path, leafPgno, leafPage, err := bt.descend(rowid, nil)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	idx := sort.Search(len(leafPage.cells), func(i int) bool { return cellRowid(leafPage.cells[i]) >= rowid })
	return path, leafPgno, leafPage, idx, nil
}

func (bt *BTree) descendToLeafKey(key []byte) ([]pathEntry, uint32, *page, int, error) {
	path, leafPgno, leafPage, err := bt.descend(0, key)
	if err != nil {
		return nil, 0, nil, 0, err
	}
	idx := sort.Search(len(leafPage.cells), func(i int) bool {
		return bytes.Compare(indexCellKey(leafPage.cells[i]), key) >= 0
	})
	return path, leafPgno, leafPage, idx, nil
}

func (bt *BTree) descendFrom(pgno uint32, path []pathEntry, toRight bool) ([]pathEntry, uint32, *page, error) {
	for {
		pg, err := bt.loadPage(pgno)
		if err != nil {
			return nil, 0, nil, err
		}
		if pg.isLeaf() {
			return path, pgno, pg, nil
		}
		entries, err := bt.entriesOfInterior(pg)
		if err != nil {
			return nil, 0, nil, err
		}
		idx := 0
		if toRight {
			idx = len(entries) - 1
		}
		path = append(path, pathEntry{pgno, idx})
		pgno = entries[idx].child
	}
}

func (bt *BTree) descendEdge(toRight bool) ([]pathEntry, uint32, *page, error) {
	return bt.descendFrom(bt.root, nil, toRight)
}

// NewCursor returns a positionless cursor over the tree.
func (bt *BTree) NewCursor() *Cursor { return &Cursor{bt: bt} }

// Insert writes or replaces the row at rowid in a table B+tree: locate
// the leaf, insert in sorted position, split on overflow, propagating
// splits up to the root.
func (bt *BTree) Insert(rowid int64, payload []byte) error {
	if !bt.isTable {
		return dberr.New(dberr.Internal, "btree: Insert is table-tree only")
	}
	path, leafPgno, leafPage, idx, err := bt.descendToLeaf(rowid)
	if err != nil {
		return err
	}
	cell, err := encodeTableLeafCell(int(bt.h.PageSize()), rowid, payload, bt.allocOverflow)
	if err != nil {
		return err
	}
	cells := append([][]byte{}, leafPage.cells...)
	if idx < len(cells) && cellRowid(cells[idx]) == rowid {
		cells[idx] = cell
	} else {
		cells = append(cells, nil)
		copy(cells[idx+1:], cells[idx:])
		cells[idx] = cell
	}
	leafPage.cells = cells
	bt.logIntent(mvcc.IntentInsert, EncodeRowidKey(rowid), payload)
	return bt.storeLeaf(path, leafPgno, leafPage)
}

// IndexInsert inserts key into an index B+tree, allowing duplicate keys
// (callers that need uniqueness check before calling, e.g. a primary-key
// or UNIQUE index constraint).
func (bt *BTree) IndexInsert(key []byte) error {
	if bt.isTable {
		return dberr.New(dberr.Internal, "btree: IndexInsert is index-tree only")
	}
	path, leafPgno, leafPage, idx, err := bt.descendToLeafKey(key)
	if err != nil {
		return err
	}
	cell, err := encodeIndexLeafCell(int(bt.h.PageSize()), key, bt.allocOverflow)
	if err != nil {
		return err
	}
	cells := append([][]byte{}, leafPage.cells...)
	cells = append(cells, nil)
	copy(cells[idx+1:], cells[idx:])
	cells[idx] = cell
	leafPage.cells = cells
	bt.logIntent(mvcc.IntentInsert, key, nil)
	return bt.storeLeaf(path, leafPgno, leafPage)
}

// storeLeaf writes the (already-mutated) leaf page back, splitting it and
// propagating the split up the path if it no longer fits.
func (bt *BTree) storeLeaf(path []pathEntry, leafPgno uint32, leafPage *page) error {
	if buf, err := leafPage.encode(); err == nil {
		return bt.h.WritePage(leafPgno, buf)
	}
	return bt.splitLeaf(path, leafPgno, leafPage)
}

func (bt *BTree) splitLeaf(path []pathEntry, leafPgno uint32, leafPage *page) error {
	cells := leafPage.cells
	mid := len(cells) / 2

	var left, right *page
	if bt.isTable {
		left, right = newLeafTablePage(leafPage.size), newLeafTablePage(leafPage.size)
	} else {
		left, right = newLeafIndexPage(leafPage.size), newLeafIndexPage(leafPage.size)
	}
	left.cells = append([][]byte{}, cells[:mid]...)
	right.cells = append([][]byte{}, cells[mid:]...)

	// When the root itself is the leaf being split, its page number must
	// stay the database's root pointer and become an interior page; the
	// left half's content moves to a freshly allocated page rather than
	// reusing leafPgno.
	if len(path) == 0 {
		return bt.splitRoot(left, right, bt.separatorFor(left.cells[len(left.cells)-1]))
	}

	rightPgno, err := bt.h.AllocatePage()
	if err != nil {
		return err
	}
	if err := bt.writePage(leafPgno, left); err != nil {
		return err
	}
	if err := bt.writePage(rightPgno, right); err != nil {
		return err
	}

	sep := bt.separatorFor(left.cells[len(left.cells)-1])
	return bt.propagateSplit(path, leafPgno, rightPgno, sep)
}

// splitRoot allocates fresh pages for left and right and rewrites bt.root
// itself as the new interior page joining them under sep, growing the
// tree's height by one. It is only ever called for the page that was
// bt.root before the split, since bt.root's page number cannot be reused
// for one of the halves without aliasing the new root onto itself.
func (bt *BTree) splitRoot(left, right *page, sep separator) error {
	leftPgno, err := bt.h.AllocatePage()
	if err != nil {
		return err
	}
	rightPgno, err := bt.h.AllocatePage()
	if err != nil {
		return err
	}
	if err := bt.writePage(leftPgno, left); err != nil {
		return err
	}
	if err := bt.writePage(rightPgno, right); err != nil {
		return err
	}
	entries := []entry{
		{child: leftPgno, rowid: sep.rowid, key: sep.key},
		{child: rightPgno, last: true},
	}
	pg, err := bt.buildInteriorPage(entries)
	if err != nil {
		return err
	}
	return bt.writePage(bt.root, pg)
}

// separator is the promoted key for a newly split-off right sibling: the
// max table rowid or max index key of the cell that ends the left half.
type separator struct {
	rowid int64
	key   []byte
}

func (bt *BTree) separatorFor(lastLeftCell []byte) separator {
	if bt.isTable {
		return separator{rowid: cellRowid(lastLeftCell)}
	}
	return separator{key: indexCellKey(lastLeftCell)}
}

// propagateSplit installs a new separator in the parent named by the top
// of path, pointing leftChild at the promoted key's subtree and rightChild
// at everything above it, recursing up through further interior splits.
// Callers never invoke this with an empty path: a split whose parent would
// be the root goes through splitRoot instead, since bt.root's page number
// cannot double as one of the split halves.
func (bt *BTree) propagateSplit(path []pathEntry, leftChild, rightChild uint32, sep separator) error {
	if len(path) == 0 {
		return dberr.New(dberr.Internal, "btree: propagateSplit called with empty path")
	}

	parent := path[len(path)-1]
	rest := path[:len(path)-1]
	pg, err := bt.loadPage(parent.pgno)
	if err != nil {
		return err
	}
	entries, err := bt.entriesOfInterior(pg)
	if err != nil {
		return err
	}

	idx := parent.childIdx
	newEntries := make([]entry, 0, len(entries)+1)
	newEntries = append(newEntries, entries[:idx]...)
	newEntries = append(newEntries, entry{child: leftChild, rowid: sep.rowid, key: sep.key})
	newEntries = append(newEntries, entries[idx:]...)
	newEntries[idx+1].child = rightChild

	newPg, err := bt.buildInteriorPage(newEntries)
	if err != nil {
		return err
	}
	if buf, err := newPg.encode(); err == nil {
		return bt.h.WritePage(parent.pgno, buf)
	}
	return bt.splitInterior(rest, parent.pgno, newEntries)
}

func (bt *BTree) splitInterior(path []pathEntry, pgno uint32, entries []entry) error {
	mid := len(entries) / 2
	if mid == 0 {
		mid = 1
	}
	promoted := entries[mid-1]
	leftEntries := append([]entry{}, entries[:mid-1]...)
	leftEntries = append(leftEntries, entry{child: promoted.child, last: true})
	rightEntries := append([]entry{}, entries[mid:]...)

	leftPg, err := bt.buildInteriorPage(leftEntries)
	if err != nil {
		return err
	}
	rightPg, err := bt.buildInteriorPage(rightEntries)
	if err != nil {
		return err
	}
	sep := separator{rowid: promoted.rowid, key: promoted.key}

	// As in splitLeaf: if pgno is bt.root, its page number must remain the
	// interior root rather than being reused for the left half.
	if len(path) == 0 {
		return bt.splitRoot(leftPg, rightPg, sep)
	}

	rightPgno, err := bt.h.AllocatePage()
	if err != nil {
		return err
	}
	if err := bt.writePage(pgno, leftPg); err != nil {
		return err
	}
	if err := bt.writePage(rightPgno, rightPg); err != nil {
		return err
	}
	return bt.propagateSplit(path, pgno, rightPgno, sep)
}

// Delete removes the row at rowid from a table B+tree: locate the leaf,
// remove the cell, merge with a sibling when the leaf falls below
// half-fill, cascading the merge up the path.
func (bt *BTree) Delete(rowid int64) error {
	if !bt.isTable {
		return dberr.New(dberr.Internal, "btree: Delete is table-tree only")
	}
	path, leafPgno, leafPage, idx, err := bt.descendToLeaf(rowid)
	if err != nil {
		return err
	}
	if idx >= len(leafPage.cells) || cellRowid(leafPage.cells[idx]) != rowid {
		return nil
	}
	leafPage.cells = append(leafPage.cells[:idx], leafPage.cells[idx+1:]...)
	if err := bt.writePage(leafPgno, leafPage); err != nil {
		return err
	}
	bt.logIntent(mvcc.IntentDelete, EncodeRowidKey(rowid), nil)
	return bt.rebalance(path, leafPgno, leafPage)
}

// IndexDelete removes the first leaf entry equal to key from an index
// B+tree.
func (bt *BTree) IndexDelete(key []byte) error {
	if bt.isTable {
		return dberr.New(dberr.Internal, "btree: IndexDelete is index-tree only")
	}
	path, leafPgno, leafPage, idx, err := bt.descendToLeafKey(key)
	if err != nil {
		return err
	}
	if idx >= len(leafPage.cells) || !bytes.Equal(indexCellKey(leafPage.cells[idx]), key) {
		return nil
	}
	leafPage.cells = append(leafPage.cells[:idx], leafPage.cells[idx+1:]...)
	if err := bt.writePage(leafPgno, leafPage); err != nil {
		return err
	}
	bt.logIntent(mvcc.IntentDelete, key, nil)
	return bt.rebalance(path, leafPgno, leafPage)
}

// Seek positions c at the first row with rowid >= the given key (table
// tree) using Cursor.SeekGE, retained here for callers that only hold a
// BTree and not yet a Cursor.
func (bt *BTree) Seek(rowid int64) (*Cursor, error) {
	c := bt.NewCursor()
	if err := c.SeekGE(rowid); err != nil {
		return nil, err
	}
	return c, nil
}

// IndexSeekGE positions a fresh cursor at the first index entry >= key.
func (bt *BTree) IndexSeekGE(key []byte) (*Cursor, error) {
	path, leaf, leafPage, idx, err := bt.descendToLeafKey(key)
	if err != nil {
		return nil, err
	}
	c := &Cursor{bt: bt, path: path, leaf: leaf, leafIdx: idx, valid: idx < len(leafPage.cells)}
	return c, nil
}
