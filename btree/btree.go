// Package btree implements one table's clustered row index: a disk-backed
// B-tree keyed on raw bytes compared unsigned-lexicographically, with
// variable-length cells built from fixed-width length fields, no
// merge/rebalance on delete, and an optional
// write-ahead log wrapped around every page it touches.
package btree

import (
	"bytes"

	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/overflow"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/wal"
)

// Entry is one decoded row: a B-tree cell with its overflow payload, if
// any, already resolved into a single contiguous Payload.
type Entry struct {
	Key       []byte
	NullFlags []byte
	Payload   []byte
}

// BTree is a clustered index rooted at a single page, shared by exactly one
// writer and one reader at a time (see Guard in latch.go).
type BTree struct {
	rw             *pager.PageRW
	fl             *freelist.FreeList
	alloc          pagefile.Allocator
	w              *wal.WAL
	nullFlagsWidth int
	root           uint32
}

// Create formats a brand-new, empty leaf as the tree's root and returns its
// page number (the caller persists this in the owning table's descriptor).
// w may be nil, in which case the root page is not WAL-logged (the
// package tests run without a WAL this way).
func Create(rw *pager.PageRW, fl *freelist.FreeList, alloc pagefile.Allocator, w *wal.WAL, nullFlagsWidth int) (uint32, error) {
	page, err := fl.Allocate()
	if err != nil {
		return 0, err
	}
	buf := alloc.AllocPage()
	defer alloc.ReleasePage(buf)
	NewLeaf(buf, nullFlagsWidth)
	if err := rw.WritePage(page, buf); err != nil {
		return 0, err
	}
	if w == nil {
		return page, nil
	}
	logBuf := alloc.AllocPage()
	defer alloc.ReleasePage(logBuf)
	if err := w.AppendPage(rw, page, logBuf); err != nil {
		return 0, err
	}
	return page, nil
}

// Open attaches to an existing tree rooted at root. w may be nil, in which
// case mutations are not WAL-logged (the btree, catalog and query tests
// run without a WAL this way).
func Open(rw *pager.PageRW, fl *freelist.FreeList, alloc pagefile.Allocator, w *wal.WAL, root uint32, nullFlagsWidth int) *BTree {
	return &BTree{rw: rw, fl: fl, alloc: alloc, w: w, nullFlagsWidth: nullFlagsWidth, root: root}
}

// Root returns the tree's current root page, which changes whenever the
// root itself splits.
func (t *BTree) Root() uint32 { return t.root }

// writePage writes buf's content to page n and, if the tree is WAL-backed,
// immediately logs it (wal.AppendPage re-reads from rw, so the write must
// land first).
func (t *BTree) writePage(n uint32, buf *pagefile.PageBuffer) error {
	if err := t.rw.WritePage(n, buf); err != nil {
		return err
	}
	if t.w == nil {
		return nil
	}
	logBuf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(logBuf)
	return t.w.AppendPage(t.rw, n, logBuf)
}

// descend walks from the root to the leaf that would contain key, recording
// the internal pages visited along the way (nearest ancestor last).
func (t *BTree) descend(key []byte) (leafPage uint32, path []uint32, err error) {
	cur := t.root
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	for {
		if err := t.rw.ReadPage(cur, buf); err != nil {
			return 0, nil, err
		}
		nt := NodeType(buf.ReadU8(offNodeType))
		if nt == NodeTypeLeaf {
			return cur, path, nil
		}
		internal, err := LoadInternal(buf)
		if err != nil {
			return 0, nil, err
		}
		path = append(path, cur)
		cur = internal.ChildForKey(key)
	}
}

// resolvePayload assembles a cell's full payload, following its overflow
// chain when one is present.
func (t *BTree) resolvePayload(c LeafCell) ([]byte, error) {
	if c.OverflowPage == 0 {
		return append([]byte(nil), c.InlinePayload...), nil
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	rest, err := overflow.Read(t.rw, c.OverflowPage, int(c.PayloadLen)-int(c.InlineLen), buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, c.PayloadLen)
	out = append(out, c.InlinePayload...)
	return append(out, rest...), nil
}

// Search looks up key, returning its row (overflow resolved) or
// common.ErrNotFound.
func (t *BTree) Search(key []byte) (Entry, error) {
	leafPage, _, err := t.descend(key)
	if err != nil {
		return Entry{}, err
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	if err := t.rw.ReadPage(leafPage, buf); err != nil {
		return Entry{}, err
	}
	leaf, err := LoadLeaf(buf, t.nullFlagsWidth)
	if err != nil {
		return Entry{}, err
	}
	idx, found := leaf.Search(key)
	if !found {
		return Entry{}, common.ErrNotFound
	}
	cell := leaf.Cell(idx)
	payload, err := t.resolvePayload(cell)
	if err != nil {
		return Entry{}, err
	}
	return Entry{Key: cell.Key, NullFlags: cell.NullFlags, Payload: payload}, nil
}

// inlineBudget is the largest inline payload Insert will place directly in
// a cell; InlineLen is a u8 so 255 is a hard ceiling regardless of free
// space, and anything longer always spills to the overflow chain.
const inlineBudget = 255

// buildCell decides whether payload fits inline or needs an overflow chain,
// writing the chain now if so.
func (t *BTree) buildCell(key, nullFlags, payload []byte) (LeafCell, error) {
	if len(payload) <= inlineBudget {
		return LeafCell{
			Key:           key,
			PayloadLen:    uint32(len(payload)),
			InlineLen:     uint8(len(payload)),
			NullFlags:     nullFlags,
			InlinePayload: payload,
		}, nil
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	head, err := overflow.Write(t.rw, t.fl, t.alloc, t.w, payload, buf)
	if err != nil {
		return LeafCell{}, err
	}
	return LeafCell{
		Key:          key,
		PayloadLen:   uint32(len(payload)),
		OverflowPage: head,
		InlineLen:    0,
		NullFlags:    nullFlags,
	}, nil
}

// Insert adds a new row keyed on key. Duplicate keys are rejected with
// common.ErrDuplicateKey.
func (t *BTree) Insert(key, nullFlags, payload []byte) error {
	leafPage, path, err := t.descend(key)
	if err != nil {
		return err
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	if err := t.rw.ReadPage(leafPage, buf); err != nil {
		return err
	}
	leaf, err := LoadLeaf(buf, t.nullFlagsWidth)
	if err != nil {
		return err
	}
	if _, found := leaf.Search(key); found {
		return common.ErrDuplicateKey
	}

	cell, err := t.buildCell(key, nullFlags, payload)
	if err != nil {
		return err
	}

	if leaf.Fits(cell) {
		idx, _ := leaf.Search(key)
		if err := leaf.Insert(idx, cell); err != nil {
			return err
		}
		return t.writePage(leafPage, buf)
	}

	rightPage, sepKey, err := splitLeaf(t, leafPage, leaf)
	if err != nil {
		return err
	}
	var target Leaf
	var targetPage uint32
	if bytes.Compare(key, sepKey) < 0 {
		target, targetPage = leaf, leafPage
	} else {
		rbuf := t.alloc.AllocPage()
		defer t.alloc.ReleasePage(rbuf)
		if err := t.rw.ReadPage(rightPage, rbuf); err != nil {
			return err
		}
		target, err = LoadLeaf(rbuf, t.nullFlagsWidth)
		if err != nil {
			return err
		}
		targetPage = rightPage
	}
	idx, _ := target.Search(key)
	if err := target.Insert(idx, cell); err != nil {
		return err
	}
	if err := t.writePage(targetPage, target.buf); err != nil {
		return err
	}
	return t.insertSeparator(path, sepKey, rightPage)
}

// Update overwrites an existing row's payload in place, releasing the old
// overflow chain first if there was one.
func (t *BTree) Update(key, nullFlags, payload []byte) error {
	leafPage, _, err := t.descend(key)
	if err != nil {
		return err
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	if err := t.rw.ReadPage(leafPage, buf); err != nil {
		return err
	}
	leaf, err := LoadLeaf(buf, t.nullFlagsWidth)
	if err != nil {
		return err
	}
	idx, found := leaf.Search(key)
	if !found {
		return common.ErrNotFound
	}
	old := leaf.Cell(idx)
	if old.OverflowPage != 0 {
		obuf := t.alloc.AllocPage()
		defer t.alloc.ReleasePage(obuf)
		if err := overflow.Release(t.rw, t.fl, old.OverflowPage, obuf); err != nil {
			return err
		}
	}
	leaf.Remove(idx)

	cell, err := t.buildCell(key, nullFlags, payload)
	if err != nil {
		return err
	}
	if leaf.Fits(cell) {
		newIdx, _ := leaf.Search(key)
		if err := leaf.Insert(newIdx, cell); err != nil {
			return err
		}
		return t.writePage(leafPage, buf)
	}

	// Rare: the updated row no longer fits after removing the old cell and
	// re-encoding (e.g. its overflow chain was freed but the new value
	// grew). Fall back to delete-then-insert, which handles splitting.
	if err := t.writePage(leafPage, buf); err != nil {
		return err
	}
	return t.Insert(key, nullFlags, payload)
}

// Delete removes key's row, releasing its overflow chain if any. No
// merge/rebalance runs afterward, so leaves may become sparse or empty.
func (t *BTree) Delete(key []byte) error {
	leafPage, _, err := t.descend(key)
	if err != nil {
		return err
	}
	buf := t.alloc.AllocPage()
	defer t.alloc.ReleasePage(buf)
	if err := t.rw.ReadPage(leafPage, buf); err != nil {
		return err
	}
	leaf, err := LoadLeaf(buf, t.nullFlagsWidth)
	if err != nil {
		return err
	}
	idx, found := leaf.Search(key)
	if !found {
		return common.ErrNotFound
	}
	cell := leaf.Cell(idx)
	if cell.OverflowPage != 0 {
		obuf := t.alloc.AllocPage()
		defer t.alloc.ReleasePage(obuf)
		if err := overflow.Release(t.rw, t.fl, cell.OverflowPage, obuf); err != nil {
			return err
		}
	}
	leaf.Remove(idx)
	return t.writePage(leafPage, buf)
}
