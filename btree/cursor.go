package btree

// Cursor is a forward-only scan over every row in key order, used by the
// query executor when a predicate can't be satisfied by a single point
// lookup. It holds the current leaf page and slot index and crosses
// next_leaf links as it exhausts each leaf.
type Cursor struct {
	t        *BTree
	leafPage uint32
	slot     int
	leaf     Leaf
	done     bool
}

// NewCursor positions a cursor at the tree's leftmost entry.
func NewCursor(t *BTree) (*Cursor, error) {
	c := &Cursor{t: t}
	cur := t.root
	buf := t.alloc.AllocPage()
	for {
		if err := t.rw.ReadPage(cur, buf); err != nil {
			t.alloc.ReleasePage(buf)
			return nil, err
		}
		if NodeType(buf.ReadU8(offNodeType)) == NodeTypeLeaf {
			break
		}
		internal, err := LoadInternal(buf)
		if err != nil {
			t.alloc.ReleasePage(buf)
			return nil, err
		}
		cur = internal.FirstChild()
	}
	leaf, err := LoadLeaf(buf, t.nullFlagsWidth)
	if err != nil {
		t.alloc.ReleasePage(buf)
		return nil, err
	}
	c.leafPage = cur
	c.leaf = leaf
	c.slot = 0

	// A leaf can be empty and still referenced by its parent (no
	// merge/rebalance on delete), so skip forward through empty leaves the
	// same way Next does before handing the cursor back to the caller.
	for c.leaf.KeyCount() == 0 {
		next := c.leaf.NextLeaf()
		if next == 0 {
			c.done = true
			return c, nil
		}
		nbuf := t.alloc.AllocPage()
		if err := t.rw.ReadPage(next, nbuf); err != nil {
			t.alloc.ReleasePage(nbuf)
			t.alloc.ReleasePage(c.leaf.buf)
			return nil, err
		}
		nleaf, err := LoadLeaf(nbuf, t.nullFlagsWidth)
		if err != nil {
			t.alloc.ReleasePage(nbuf)
			t.alloc.ReleasePage(c.leaf.buf)
			return nil, err
		}
		t.alloc.ReleasePage(c.leaf.buf)
		c.leafPage = next
		c.leaf = nleaf
	}
	return c, nil
}

// Valid reports whether the cursor is positioned at an entry.
func (c *Cursor) Valid() bool { return !c.done }

// Entry returns the row at the cursor's current position, resolving
// overflow if present.
func (c *Cursor) Entry() (Entry, error) {
	cell := c.leaf.Cell(c.slot)
	payload, err := c.t.resolvePayload(cell)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: cell.Key, NullFlags: cell.NullFlags, Payload: payload}, nil
}

// Next advances the cursor by one entry, crossing into the next leaf via
// next_leaf when the current one is exhausted.
func (c *Cursor) Next() error {
	c.slot++
	for c.slot >= c.leaf.KeyCount() {
		next := c.leaf.NextLeaf()
		if next == 0 {
			c.done = true
			return nil
		}
		buf := c.t.alloc.AllocPage()
		if err := c.t.rw.ReadPage(next, buf); err != nil {
			c.t.alloc.ReleasePage(buf)
			return err
		}
		leaf, err := LoadLeaf(buf, c.t.nullFlagsWidth)
		if err != nil {
			c.t.alloc.ReleasePage(buf)
			return err
		}
		c.t.alloc.ReleasePage(c.leaf.buf)
		c.leafPage = next
		c.leaf = leaf
		c.slot = 0
		if leaf.KeyCount() > 0 {
			return nil
		}
	}
	return nil
}

// Close releases the cursor's page buffer back to the allocator.
func (c *Cursor) Close() {
	c.t.alloc.ReleasePage(c.leaf.buf)
}
