package vdbe

import "github.com/leftmike/frankensqlite/btree"

// vcursor is the Machine's per-slot cursor state: the underlying btree
// cursor plus enough to know how to reopen it after Insert/Delete
// invalidate the cursor's position (this Machine re-seeks rather than
// trying to preserve position across a structural mutation).
type vcursor struct {
	bt      *btree.BTree
	btCur   *btree.Cursor
	isTable bool
}

// cur lazily creates the underlying btree.Cursor on first navigation, so
// OpenRead/OpenWrite don't have to guess which navigation opcode comes
// next.
func (c *vcursor) cur() *btree.Cursor {
	if c.btCur == nil {
		c.btCur = c.bt.NewCursor()
	}
	return c.btCur
}

func (c *vcursor) valid() bool {
	return c.btCur != nil && c.btCur.Valid()
}
