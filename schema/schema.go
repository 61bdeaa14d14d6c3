// Package schema describes tables and columns: the table descriptor
// format, stored on a descriptor page of its own whose page number the
// db_cat B-tree (page 2) records under the table's name.
package schema

import (
	"encoding/binary"
	"fmt"

	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/pagefile"
)

// NameMaxLen bounds a table or column name.
const NameMaxLen = 32

// Name is a fixed-width, NUL-padded identifier.
type Name [NameMaxLen]byte

// NewName truncates s to NameMaxLen bytes and zero-pads the rest.
func NewName(s string) Name {
	var n Name
	copy(n[:], s)
	return n
}

// String trims trailing NUL bytes.
func (n Name) String() string {
	i := 0
	for i < len(n) && n[i] != 0 {
		i++
	}
	return string(n[:i])
}

// ColumnType tags a column's value domain.
type ColumnType uint8

const (
	ColumnNull ColumnType = iota
	ColumnInt
	ColumnFloat
	ColumnChars
)

// Flags is a bitmask of per-column attributes.
type Flags uint8

const (
	FlagNone     Flags = 0
	FlagPrimary  Flags = 1 << 0
	FlagNullable Flags = 1 << 1
	FlagRef      Flags = 1 << 2
)

func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Column is one column descriptor. RefTable/RefCol name a foreign column
// when FlagRef is set; the engine records this reference but never
// enforces it.
type Column struct {
	Name     Name
	Flags    Flags
	Type     ColumnType
	RefTable uint32
	RefCol   uint16
}

// columnEncodedSize is a Column's packed on-disk layout: name(32) +
// flags(1) + col_type(1) + ref_table(4) + ref_col(2) = 40 bytes, no
// padding.
const columnEncodedSize = NameMaxLen + 1 + 1 + 4 + 2

// NewColumn starts a Column with no flags set.
func NewColumn(name string, t ColumnType) Column {
	return Column{Name: NewName(name), Type: t}
}

func (c Column) Nullable() Column {
	c.Flags |= FlagNullable
	return c
}

func (c Column) Primary() Column {
	c.Flags |= FlagPrimary
	return c
}

func (c Column) RefTo(refTable uint32, refCol uint16) Column {
	c.Flags |= FlagRef
	c.RefTable = refTable
	c.RefCol = refCol
	return c
}

func (c Column) encode(dst []byte) {
	copy(dst[0:NameMaxLen], c.Name[:])
	dst[NameMaxLen] = uint8(c.Flags)
	dst[NameMaxLen+1] = uint8(c.Type)
	binary.LittleEndian.PutUint32(dst[NameMaxLen+2:NameMaxLen+6], c.RefTable)
	binary.LittleEndian.PutUint16(dst[NameMaxLen+6:NameMaxLen+8], c.RefCol)
}

func decodeColumn(src []byte) Column {
	var c Column
	copy(c.Name[:], src[0:NameMaxLen])
	c.Flags = Flags(src[NameMaxLen])
	c.Type = ColumnType(src[NameMaxLen+1])
	c.RefTable = binary.LittleEndian.Uint32(src[NameMaxLen+2 : NameMaxLen+6])
	c.RefCol = binary.LittleEndian.Uint16(src[NameMaxLen+6 : NameMaxLen+8])
	return c
}

// tableHeaderSize is name(32) + rows_btree_page(4) + col_count(4).
const tableHeaderSize = NameMaxLen + 4 + 4

// MaxColumns is how many Column records fit after the header in one
// PageSize-sized descriptor. AddColumn enforces this bound directly
// rather than against an unrelated constant.
const MaxColumns = (pagefile.PageSize - tableHeaderSize) / columnEncodedSize

// Table is a catalog entry: a table's name, the root page of its row
// B-tree, and its column list. Encoded form is always exactly PageSize
// bytes and fills the table's descriptor page; db_cat stores only that
// page's number.
type Table struct {
	Name          Name
	RowsBTreePage uint32
	Columns       []Column
}

// NewTable starts an empty table descriptor. RowsBTreePage is filled in
// once its row B-tree root page has been allocated.
func NewTable(name string) *Table {
	return &Table{Name: NewName(name)}
}

// AddColumn appends a column, enforcing MaxColumns.
func (t *Table) AddColumn(c Column) error {
	if len(t.Columns) >= MaxColumns {
		return common.ErrMaxColumns
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// ColumnIndex returns the position of the column named name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name.String() == name {
			return i
		}
	}
	return -1
}

// PrimaryColumnIndex returns the index of the column flagged Primary, or -1
// if the table has none.
func (t *Table) PrimaryColumnIndex() int {
	for i, c := range t.Columns {
		if c.Flags.Has(FlagPrimary) {
			return i
		}
	}
	return -1
}

// NullFlagsWidthBytes is the width of the null bitmap that precedes a row's
// encoded values: the next power of two bits needed for one flag per
// column, floored at 8 bits, expressed in bytes.
func (t *Table) NullFlagsWidthBytes() int {
	bits := nextPowerOfTwo(uint32(len(t.Columns)))
	if bits < 8 {
		bits = 8
	}
	return int(bits) / 8
}

func nextPowerOfTwo(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// Encode serializes t into a PageSize-length buffer.
func (t *Table) Encode() ([]byte, error) {
	if len(t.Columns) > MaxColumns {
		return nil, common.ErrMaxColumns
	}
	buf := make([]byte, pagefile.PageSize)
	copy(buf[0:NameMaxLen], t.Name[:])
	binary.LittleEndian.PutUint32(buf[NameMaxLen:NameMaxLen+4], t.RowsBTreePage)
	binary.LittleEndian.PutUint32(buf[NameMaxLen+4:NameMaxLen+8], uint32(len(t.Columns)))
	off := tableHeaderSize
	for _, c := range t.Columns {
		c.encode(buf[off : off+columnEncodedSize])
		off += columnEncodedSize
	}
	return buf, nil
}

// Decode parses a Table out of a PageSize-length buffer produced by Encode.
func Decode(buf []byte) (*Table, error) {
	if len(buf) != pagefile.PageSize {
		return nil, fmt.Errorf("schema: decode table: expected %d bytes, got %d", pagefile.PageSize, len(buf))
	}
	t := &Table{}
	copy(t.Name[:], buf[0:NameMaxLen])
	t.RowsBTreePage = binary.LittleEndian.Uint32(buf[NameMaxLen : NameMaxLen+4])
	colCount := binary.LittleEndian.Uint32(buf[NameMaxLen+4 : NameMaxLen+8])
	if int(colCount) > MaxColumns {
		return nil, fmt.Errorf("schema: decode table: col_count %d exceeds capacity %d", colCount, MaxColumns)
	}
	off := tableHeaderSize
	t.Columns = make([]Column, colCount)
	for i := range t.Columns {
		t.Columns[i] = decodeColumn(buf[off : off+columnEncodedSize])
		off += columnEncodedSize
	}
	return t, nil
}
