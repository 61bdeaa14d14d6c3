package btree

import (
	"bytes"
	"fmt"

	"github.com/stufffdb/stufffdb/pagefile"
)

// InternalCell is one separator: key, and the child responsible for keys
// in [key, nextKey) — or [key, +inf) for the last separator.
type InternalCell struct {
	Key   []byte
	Child uint32
}

func internalCellSize(keyLen int) int { return 1 + keyLen + 4 }

func (c InternalCell) encodedSize() int { return internalCellSize(len(c.Key)) }

func encodeInternalCell(buf *pagefile.PageBuffer, off int, c InternalCell) {
	buf.WriteU8(off, uint8(len(c.Key)))
	off++
	buf.WriteBytes(off, c.Key)
	off += len(c.Key)
	buf.WriteU32(off, c.Child)
}

func decodeInternalCell(buf *pagefile.PageBuffer, off int) InternalCell {
	keyLen := int(buf.ReadU8(off))
	off++
	key := append([]byte(nil), buf.ReadBytes(off, keyLen)...)
	off += keyLen
	return InternalCell{Key: key, Child: buf.ReadU32(off)}
}

// Internal is a typed view over a page buffer formatted as an internal
// node. Its key_count separators each own the child responsible for keys
// in [separator.Key, nextSeparator.Key); FirstChild is the one pointer
// with no attached key, covering keys less than the smallest separator
// (see DESIGN.md for why the header's extra pointer is the leftmost
// child rather than the rightmost).
type Internal struct {
	slotted
}

// NewInternal formats buf as a fresh internal node with the given sole
// child, before any separator is inserted (used when the root splits and
// for the right half of an internal-node split).
func NewInternal(buf *pagefile.PageBuffer, firstChild uint32) Internal {
	n := Internal{slotted: slotted{buf: buf}}
	n.initHeader(NodeTypeInternal)
	n.SetFirstChild(firstChild)
	return n
}

// LoadInternal wraps an already-formatted internal page.
func LoadInternal(buf *pagefile.PageBuffer) (Internal, error) {
	n := Internal{slotted: slotted{buf: buf}}
	if n.nodeType() != NodeTypeInternal {
		return Internal{}, fmt.Errorf("btree: page is not internal (type %d)", n.nodeType())
	}
	return n, nil
}

func (n Internal) FirstChild() uint32     { return n.trailer() }
func (n Internal) SetFirstChild(v uint32) { n.setTrailer(v) }
func (n Internal) KeyCount() int          { return n.keyCount() }

func (n Internal) Key(i int) []byte {
	off := n.cellOffset(i)
	keyLen := int(n.buf.ReadU8(off))
	return n.buf.ReadBytes(off+1, keyLen)
}

func (n Internal) Cell(i int) InternalCell {
	return decodeInternalCell(n.buf, n.cellOffset(i))
}

// ChildForKey finds the child responsible for key: the greatest
// separator ≤ key, or FirstChild if key is less than every separator.
func (n Internal) ChildForKey(key []byte) uint32 {
	count := n.keyCount()
	lo, hi := 0, count
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.Key(mid), key) <= 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return n.FirstChild()
	}
	return n.Cell(lo - 1).Child
}

// Fits reports whether c can be inserted without splitting.
func (n Internal) Fits(c InternalCell) bool {
	return n.freeBytes() >= c.encodedSize()+slotSize
}

// searchInsertionPoint returns the slot index a new separator with this
// key belongs at, keeping the array sorted ascending.
func (n Internal) searchInsertionPoint(key []byte) int {
	lo, hi := 0, n.keyCount()
	for lo < hi {
		mid := (lo + hi) / 2
		if bytes.Compare(n.Key(mid), key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Insert places a new separator, keeping the slot array sorted by key.
func (n Internal) Insert(c InternalCell) error {
	idx := n.searchInsertionPoint(c.Key)
	off, err := n.allocCell(idx, c.encodedSize())
	if err != nil {
		return err
	}
	encodeInternalCell(n.buf, off, c)
	return nil
}
