package btree

import "bytes"

// splitLeaf moves the upper half of leaf's cells (by cell count) into a
// freshly allocated right leaf, links next_leaf, and returns the new page
// number and the smallest key now owned by the right half — the separator
// the caller propagates upward.
func splitLeaf(t *BTree, leafPage uint32, leaf Leaf) (rightPage uint32, sepKey []byte, err error) {
	n := leaf.KeyCount()
	mid := n / 2

	rightPage, err = t.fl.Allocate()
	if err != nil {
		return 0, nil, err
	}
	rightBuf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(rightBuf)
	right := NewLeaf(rightBuf, t.nullFlagsWidth)

	for i := mid; i < n; i++ {
		if err := right.Insert(right.KeyCount(), leaf.Cell(i)); err != nil {
			return 0, nil, err
		}
	}
	// Rebuild the left half from a fresh layout: removing slots alone would
	// leave the moved cells' bytes abandoned, so the left leaf would gain
	// almost no room for the insert that triggered the split.
	leftCells := make([]LeafCell, 0, mid)
	for i := 0; i < mid; i++ {
		leftCells = append(leftCells, leaf.Cell(i))
	}
	oldNext := leaf.NextLeaf()
	leaf.initHeader(NodeTypeLeaf)
	for i, c := range leftCells {
		if err := leaf.Insert(i, c); err != nil {
			return 0, nil, err
		}
	}

	right.SetNextLeaf(oldNext)
	leaf.SetNextLeaf(rightPage)
	sepKey = append([]byte(nil), right.Key(0)...)

	if err := t.writePage(leafPage, leaf.buf); err != nil {
		return 0, nil, err
	}
	if err := t.writePage(rightPage, rightBuf); err != nil {
		return 0, nil, err
	}
	return rightPage, sepKey, nil
}

// splitInternalAndInsert merges newCell into node's existing separators,
// promotes the middle one to the caller (it becomes the grandparent's
// separator), and splits the rest into node (left, in place) and a new
// right sibling whose FirstChild is the promoted entry's own child.
func splitInternalAndInsert(t *BTree, page uint32, node Internal, newCell InternalCell) (rightPage uint32, sepKey []byte, err error) {
	n := node.KeyCount()
	cells := make([]InternalCell, 0, n+1)
	for i := 0; i < n; i++ {
		cells = append(cells, node.Cell(i))
	}
	idx := 0
	for idx < len(cells) && bytes.Compare(cells[idx].Key, newCell.Key) < 0 {
		idx++
	}
	cells = append(cells, InternalCell{})
	copy(cells[idx+1:], cells[idx:])
	cells[idx] = newCell

	medianIdx := len(cells) / 2
	median := cells[medianIdx]
	leftCells := cells[:medianIdx]
	rightCells := cells[medianIdx+1:]

	firstChild := node.FirstChild()

	rightPage, err = t.fl.Allocate()
	if err != nil {
		return 0, nil, err
	}
	rightBuf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(rightBuf)
	right := NewInternal(rightBuf, median.Child)
	for _, c := range rightCells {
		if err := right.Insert(c); err != nil {
			return 0, nil, err
		}
	}

	node.initHeader(NodeTypeInternal)
	node.SetFirstChild(firstChild)
	for _, c := range leftCells {
		if err := node.Insert(c); err != nil {
			return 0, nil, err
		}
	}

	if err := t.writePage(page, node.buf); err != nil {
		return 0, nil, err
	}
	if err := t.writePage(rightPage, rightBuf); err != nil {
		return 0, nil, err
	}
	return rightPage, median.Key, nil
}

// insertSeparator propagates a (sepKey, newChildPage) pair up the recorded
// path of ancestor internal pages, splitting each in turn if it has no
// room, and finally growing a new root when the whole path is exhausted.
func (t *BTree) insertSeparator(path []uint32, sepKey []byte, newChildPage uint32) error {
	for i := len(path) - 1; i >= 0; i-- {
		parentPage := path[i]
		buf := t.alloc.AllocPage()
		if err := t.rw.ReadPage(parentPage, buf); err != nil {
			t.alloc.ReleasePage(buf)
			return err
		}
		parent, err := LoadInternal(buf)
		if err != nil {
			t.alloc.ReleasePage(buf)
			return err
		}
		cell := InternalCell{Key: sepKey, Child: newChildPage}
		if parent.Fits(cell) {
			if err := parent.Insert(cell); err != nil {
				t.alloc.ReleasePage(buf)
				return err
			}
			err := t.writePage(parentPage, buf)
			t.alloc.ReleasePage(buf)
			return err
		}

		rightPage, upSepKey, err := splitInternalAndInsert(t, parentPage, parent, cell)
		t.alloc.ReleasePage(buf)
		if err != nil {
			return err
		}
		sepKey, newChildPage = upSepKey, rightPage
	}

	newRootPage, err := t.fl.Allocate()
	if err != nil {
		return err
	}
	rootBuf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(rootBuf)
	root := NewInternal(rootBuf, t.root)
	if err := root.Insert(InternalCell{Key: sepKey, Child: newChildPage}); err != nil {
		return err
	}
	if err := t.writePage(newRootPage, rootBuf); err != nil {
		return err
	}
	t.root = newRootPage
	return nil
}
