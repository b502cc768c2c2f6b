package btree

// pathEntry is one (page_no, cell_index) step on the path from root to the
// current cursor position. childIdx for an interior page is
// the index of the interior cell whose child pointer was followed, or
// len(cells) if the page's RightmostChild was followed.
type pathEntry struct {
	pgno     uint32
	childIdx int
}

// Cursor is a stack of pathEntry describing the path from root to the
// current leaf position, plus the index of the current cell within that
// leaf.
type Cursor struct {
	bt      *BTree
	path    []pathEntry // interior pages only
	leaf    uint32
	leafIdx int
	valid   bool
}

// Valid reports whether the cursor currently references a cell.
func (c *Cursor) Valid() bool { return c.valid }

// Rowid returns the current row's key. Only valid for a table btree
// cursor.
func (c *Cursor) Rowid() (int64, error) {
	pg, err := c.bt.loadPage(c.leaf)
	if err != nil {
		return 0, err
	}
	return cellRowid(pg.cells[c.leafIdx]), nil
}

// Payload returns the current row's record bytes (table btree) or key
// bytes (index btree).
func (c *Cursor) Payload() ([]byte, error) {
	pg, err := c.bt.loadPage(c.leaf)
	if err != nil {
		return nil, err
	}
	if c.bt.isTable {
		_, payload, err := decodeTableLeafCell(pg.cells[c.leafIdx], c.bt.readOverflow)
		return payload, err
	}
	return decodeIndexLeafCell(pg.cells[c.leafIdx], c.bt.readOverflow)
}

// First descends to the leftmost cell in the tree.
func (c *Cursor) First() error {
	path, leaf, leafPage, err := c.bt.descendEdge(false)
	if err != nil {
		return err
	}
	c.path, c.leaf = path, leaf
	c.leafIdx = 0
	c.valid = len(leafPage.cells) > 0
	return nil
}

// Last descends to the rightmost cell in the tree.
func (c *Cursor) Last() error {
	path, leaf, leafPage, err := c.bt.descendEdge(true)
	if err != nil {
		return err
	}
	c.path, c.leaf = path, leaf
	c.leafIdx = len(leafPage.cells) - 1
	c.valid = c.leafIdx >= 0
	return nil
}

// Next advances to the next cell, ascending and descending across page
// boundaries as needed.
func (c *Cursor) Next() error {
	if !c.valid {
		return nil
	}
	leafPage, err := c.bt.loadPage(c.leaf)
	if err != nil {
		return err
	}
	if c.leafIdx+1 < len(leafPage.cells) {
		c.leafIdx++
		return nil
	}
	return c.ascendAndDescend(true)
}

// Prev moves to the previous cell.
func (c *Cursor) Prev() error {
	if !c.valid {
		return nil
	}
	if c.leafIdx > 0 {
		c.leafIdx--
		return nil
	}
	return c.ascendAndDescend(false)
}

func (c *Cursor) ascendAndDescend(forward bool) error {
	for len(c.path) > 0 {
		top := c.path[len(c.path)-1]
		c.path = c.path[:len(c.path)-1]
		pg, err := c.bt.loadPage(top.pgno)
		if err != nil {
			return err
		}
		nextChildIdx := top.childIdx + 1
		if !forward {
			nextChildIdx = top.childIdx - 1
		}
		entries := entriesOfInterior(pg)
		if nextChildIdx < 0 || nextChildIdx >= len(entries) {
			continue
		}
		c.path = append(c.path, pathEntry{top.pgno, nextChildIdx})
		path, leaf, leafPage, err := c.bt.descendFrom(entries[nextChildIdx].child, c.path, forward)
		if err != nil {
			return err
		}
		c.path, c.leaf = path, leaf
		if forward {
			c.leafIdx = 0
		} else {
			c.leafIdx = len(leafPage.cells) - 1
		}
		c.valid = len(leafPage.cells) > 0
		return nil
	}
	c.valid = false
	return nil
}

// SeekGE positions the cursor at the first cell with key >= key (table
// btree rowid comparison).
func (c *Cursor) SeekGE(rowid int64) error {
	path, leaf, leafPage, idx, err := c.bt.descendToLeaf(rowid)
	if err != nil {
		return err
	}
	c.path, c.leaf, c.leafIdx = path, leaf, idx
	c.valid = idx < len(leafPage.cells)
	return nil
}
