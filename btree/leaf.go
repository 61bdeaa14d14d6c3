package btree

import (
	"bytes"
	"fmt"

	"github.com/stufffdb/stufffdb/pagefile"
)

// LeafCell is a decoded leaf row cell:
//
//	len: u8, key: [u8;len], payload_len: u32, payload_overflow: u32,
//	inline_len: u8, null_flags: [u8;w], payload: [u8;inline_len]
//
// PayloadLen is the row payload's total logical length; when
// OverflowPage != 0, only the first InlineLen bytes live in InlinePayload
// and the remaining PayloadLen-InlineLen bytes live in the overflow chain
// rooted at OverflowPage (see overflow.Read).
type LeafCell struct {
	Key          []byte
	PayloadLen   uint32
	OverflowPage uint32
	InlineLen    uint8
	NullFlags    []byte
	InlinePayload []byte
}

func leafCellSize(keyLen, nullFlagsWidth int, inlineLen uint8) int {
	return 1 + keyLen + 4 + 4 + 1 + nullFlagsWidth + int(inlineLen)
}

func (c LeafCell) encodedSize() int {
	return leafCellSize(len(c.Key), len(c.NullFlags), c.InlineLen)
}

func encodeLeafCell(buf *pagefile.PageBuffer, off int, c LeafCell) {
	buf.WriteU8(off, uint8(len(c.Key)))
	off++
	buf.WriteBytes(off, c.Key)
	off += len(c.Key)
	buf.WriteU32(off, c.PayloadLen)
	off += 4
	buf.WriteU32(off, c.OverflowPage)
	off += 4
	buf.WriteU8(off, c.InlineLen)
	off++
	buf.WriteBytes(off, c.NullFlags)
	off += len(c.NullFlags)
	buf.WriteBytes(off, c.InlinePayload)
}

func decodeLeafCell(buf *pagefile.PageBuffer, off int, nullFlagsWidth int) LeafCell {
	keyLen := int(buf.ReadU8(off))
	off++
	key := append([]byte(nil), buf.ReadBytes(off, keyLen)...)
	off += keyLen
	payloadLen := buf.ReadU32(off)
	off += 4
	overflowPage := buf.ReadU32(off)
	off += 4
	inlineLen := buf.ReadU8(off)
	off++
	nullFlags := append([]byte(nil), buf.ReadBytes(off, nullFlagsWidth)...)
	off += nullFlagsWidth
	payload := append([]byte(nil), buf.ReadBytes(off, int(inlineLen))...)
	return LeafCell{
		Key:           key,
		PayloadLen:    payloadLen,
		OverflowPage:  overflowPage,
		InlineLen:     inlineLen,
		NullFlags:     nullFlags,
		InlinePayload: payload,
	}
}

// Leaf is a typed view over a page buffer formatted as a leaf node.
type Leaf struct {
	slotted
	nullFlagsWidth int
}

// NewLeaf formats buf as a fresh, empty leaf.
func NewLeaf(buf *pagefile.PageBuffer, nullFlagsWidth int) Leaf {
	l := Leaf{slotted: slotted{buf: buf}, nullFlagsWidth: nullFlagsWidth}
	l.initHeader(NodeTypeLeaf)
	return l
}

// LoadLeaf wraps an already-formatted leaf page.
func LoadLeaf(buf *pagefile.PageBuffer, nullFlagsWidth int) (Leaf, error) {
	l := Leaf{slotted: slotted{buf: buf}, nullFlagsWidth: nullFlagsWidth}
	if l.nodeType() != NodeTypeLeaf {
		return Leaf{}, fmt.Errorf("btree: page is not a leaf (type %d)", l.nodeType())
	}
	return l, nil
}

func (l Leaf) NextLeaf() uint32     { return l.trailer() }
func (l Leaf) SetNextLeaf(v uint32) { l.setTrailer(v) }
func (l Leaf) KeyCount() int        { return l.keyCount() }

func (l Leaf) Key(i int) []byte {
	off := l.cellOffset(i)
	keyLen := int(l.buf.ReadU8(off))
	return l.buf.ReadBytes(off+1, keyLen)
}

func (l Leaf) Cell(i int) LeafCell {
	return decodeLeafCell(l.buf, l.cellOffset(i), l.nullFlagsWidth)
}

// Search returns the slot index of key, and whether it was found exactly.
// When not found, idx is the insertion point that keeps the slot array
// sorted ascending.
func (l Leaf) Search(key []byte) (idx int, found bool) {
	lo, hi := 0, l.keyCount()
	for lo < hi {
		mid := (lo + hi) / 2
		cmp := bytes.Compare(l.Key(mid), key)
		switch {
		case cmp == 0:
			return mid, true
		case cmp < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}

// Fits reports whether c can be inserted without splitting.
func (l Leaf) Fits(c LeafCell) bool {
	return l.freeBytes() >= c.encodedSize()+slotSize
}

// Insert places c at slot idx (the caller supplies the sorted insertion
// point, typically from Search).
func (l Leaf) Insert(idx int, c LeafCell) error {
	off, err := l.allocCell(idx, c.encodedSize())
	if err != nil {
		return err
	}
	encodeLeafCell(l.buf, off, c)
	return nil
}

// Remove deletes the cell at slot idx. The caller is responsible for
// releasing any overflow chain first.
func (l Leaf) Remove(idx int) {
	l.removeSlot(idx)
}
