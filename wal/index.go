package wal

import (
	"sync"

	"github.com/google/btree"
)

// frameEntry is a WAL index entry: the newest frame for a given page is
// found by descending through entries ordered (PageNo, TxnID). TxnID 0 is
// the pre-MVCC baseline tag recovery assigns to frames whose writers are
// no longer known; it is visible to every snapshot.
type frameEntry struct {
	PageNo uint32
	TxnID  uint64
	Offset int64
}

func (e frameEntry) Less(than btree.Item) bool {
	o := than.(frameEntry)
	if e.PageNo != o.PageNo {
		return e.PageNo < o.PageNo
	}
	return e.TxnID < o.TxnID
}

// Index is the in-memory WAL index: an ordered map from (page_no,
// txn_id) to byte offset, kept in a google/btree.BTree so checkpoint
// can range-scan per page in commit order without a full index walk.
type Index struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func NewIndex() *Index {
	return &Index{tree: btree.New(32)}
}

// Put records that page pageNo was written by transaction txnID, landing
// at byte offset in the WAL file.
func (idx *Index) Put(pageNo uint32, txnID uint64, offset int64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree.ReplaceOrInsert(frameEntry{PageNo: pageNo, TxnID: txnID, Offset: offset})
}

// Visible is the snapshot-visibility predicate the caller supplies: true
// if a version written by txnID is visible to the reading snapshot.
type Visible func(txnID uint64) bool

// Lookup returns the offset of the newest frame for pageNo visible under
// visible, scanning backward from the newest writer.
func (idx *Index) Lookup(pageNo uint32, visible Visible) (int64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var found int64
	var ok bool
	idx.tree.DescendLessOrEqual(frameEntry{PageNo: pageNo, TxnID: ^uint64(0)},
		func(item btree.Item) bool {
			e := item.(frameEntry)
			if e.PageNo != pageNo {
				return false // crossed into a lower page number; stop
			}
			if visible(e.TxnID) {
				found, ok = e.Offset, true
				return false
			}
			return true
		})
	return found, ok
}

// PagesBelow returns the set of distinct page numbers with any frame whose
// writer is at or below horizon, used by Passive/Full checkpoint to decide
// which pages are eligible to copy back to the main file.
func (idx *Index) PagesBelow(horizon uint64) []uint32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := map[uint32]bool{}
	var pages []uint32
	idx.tree.Ascend(func(item btree.Item) bool {
		e := item.(frameEntry)
		if e.TxnID <= horizon && !seen[e.PageNo] {
			seen[e.PageNo] = true
			pages = append(pages, e.PageNo)
		}
		return true
	})
	return pages
}

// Reset discards the entire index, used after Restart/Truncate checkpoints
// reset the WAL to byte 0.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.tree = btree.New(32)
}

// Len reports the number of indexed frames.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Len()
}
