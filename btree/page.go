// Package btree implements one table's clustered row index: a disk-backed
// B-tree keyed on raw bytes compared unsigned-lexicographically. Page
// layout is a fixed header, a 16-bit slot directory, and cells growing
// backward from the page end.
package btree

import (
	"fmt"

	"github.com/stufffdb/stufffdb/pagefile"
)

// NodeType tags a page as one or the other kind of B-tree node.
type NodeType uint8

const (
	NodeTypeLeaf     NodeType = 1
	NodeTypeInternal NodeType = 2
)

// Both leaf and internal pages share one header shape:
//
//	node_type(1) | key_count(u16) | free_start(u16) | free_end(u16) | u32
//
// The trailing u32 is next_leaf for a leaf and first_child (the leftmost
// child, see Internal.FirstChild) for an internal node — same offset,
// different meaning, so the slot-directory helpers
// below are shared between both.
const (
	offNodeType  = 0
	offKeyCount  = 1
	offFreeStart = 3
	offFreeEnd   = 5
	offTrailer   = 7
	headerSize   = 11

	slotSize = 2
)

// errPageFull is returned internally by allocCell when a cell does not fit
// and the caller (Insert) must split instead.
var errPageFull = fmt.Errorf("btree: page full")

// slotted wraps the header + slot-directory machinery common to leaf and
// internal pages. Cell encoding differs between them and lives in leaf.go
// / internal.go.
type slotted struct {
	buf *pagefile.PageBuffer
}

func (s slotted) nodeType() NodeType   { return NodeType(s.buf.ReadU8(offNodeType)) }
func (s slotted) keyCount() int        { return int(s.buf.ReadU16(offKeyCount)) }
func (s slotted) freeStart() int       { return int(s.buf.ReadU16(offFreeStart)) }
func (s slotted) freeEnd() int         { return int(s.buf.ReadU16(offFreeEnd)) }
func (s slotted) trailer() uint32      { return s.buf.ReadU32(offTrailer) }
func (s slotted) setTrailer(v uint32)  { s.buf.WriteU32(offTrailer, v) }
func (s slotted) setKeyCount(n int)    { s.buf.WriteU16(offKeyCount, uint16(n)) }
func (s slotted) setFreeStart(off int) { s.buf.WriteU16(offFreeStart, uint16(off)) }
func (s slotted) setFreeEnd(off int)   { s.buf.WriteU16(offFreeEnd, uint16(off)) }

func (s slotted) initHeader(nodeType NodeType) {
	s.buf.Reset()
	s.buf.WriteU8(offNodeType, uint8(nodeType))
	s.setKeyCount(0)
	s.setFreeStart(headerSize)
	s.setFreeEnd(pagefile.PageSize)
	s.setTrailer(0)
}

func (s slotted) slotOffset(i int) int {
	return headerSize + i*slotSize
}

func (s slotted) cellOffset(i int) int {
	return int(s.buf.ReadU16(s.slotOffset(i)))
}

// freeBytes is how much room remains between the slot directory and the
// cell area.
func (s slotted) freeBytes() int {
	return s.freeEnd() - s.freeStart()
}

// allocCell carves size bytes off the end of the free region for a new
// cell and inserts a slot for it at index i (shifting slots [i:) right),
// keeping the slot array in whatever order the caller inserts in. Returns
// the cell's start offset.
func (s slotted) allocCell(i, size int) (int, error) {
	if s.freeBytes() < size+slotSize {
		return 0, errPageFull
	}
	n := s.keyCount()
	for j := n; j > i; j-- {
		src := s.slotOffset(j - 1)
		dst := s.slotOffset(j)
		s.buf.WriteU16(dst, s.buf.ReadU16(src))
	}
	cellOff := s.freeEnd() - size
	s.buf.WriteU16(s.slotOffset(i), uint16(cellOff))
	s.setFreeStart(s.freeStart() + slotSize)
	s.setFreeEnd(cellOff)
	s.setKeyCount(n + 1)
	return cellOff, nil
}

// removeSlot deletes the slot at index i. The bytes the cell itself
// occupied are abandoned rather than compacted, leaking page-local
// fragmentation; a page is only ever reclaimed whole, via the free list.
func (s slotted) removeSlot(i int) {
	n := s.keyCount()
	for j := i; j < n-1; j++ {
		src := s.slotOffset(j + 1)
		dst := s.slotOffset(j)
		s.buf.WriteU16(dst, s.buf.ReadU16(src))
	}
	s.setFreeStart(s.freeStart() - slotSize)
	s.setKeyCount(n - 1)
}
