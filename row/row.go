// Package row implements the typed row codec: a tagged Value union, its
// comparison operators, and serialize/deserialize between a Row and the
// (key, null-bitmap, payload) triple a B-tree cell stores.
//
// Decode consults the null bitmap column by column, skipping the payload
// reader entirely for any column flagged null, since Encode contributes
// zero payload bytes for a null value — reading a fixed-width field for a
// null column would desync every field that follows it.
package row

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/schema"
)

// CharsMaxLen bounds an inline Chars value, matching the original's
// CHARS_MAX_LEN. Encode and EncodeKeyValue truncate longer values to this
// length, since the length prefix is a single byte.
const CharsMaxLen = 255

type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindChars
)

// Value is a single column's typed runtime value.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Chars []byte
}

func Null() Value               { return Value{Kind: KindNull} }
func Int(v int64) Value         { return Value{Kind: KindInt, Int: v} }
func Float(v float64) Value     { return Value{Kind: KindFloat, Float: v} }
func Chars(v []byte) Value      { return Value{Kind: KindChars, Chars: v} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Eq, Gt, Lt, StartsWith, EndsWith and Contains mirror the original's
// Operations trait: mismatched kinds (including either side being Null)
// compare false rather than erroring, so a predicate like age > 30 simply
// excludes rows where age is null.
func (v Value) Eq(rhs Value) bool {
	if v.Kind != rhs.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindInt:
		return v.Int == rhs.Int
	case KindFloat:
		return v.Float == rhs.Float
	case KindChars:
		return string(v.Chars) == string(rhs.Chars)
	}
	return false
}

func (v Value) Gt(rhs Value) bool {
	if v.Kind != rhs.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int > rhs.Int
	case KindFloat:
		return v.Float > rhs.Float
	case KindChars:
		return string(v.Chars) > string(rhs.Chars)
	}
	return false
}

func (v Value) Lt(rhs Value) bool {
	if v.Kind != rhs.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int < rhs.Int
	case KindFloat:
		return v.Float < rhs.Float
	case KindChars:
		return string(v.Chars) < string(rhs.Chars)
	}
	return false
}

func (v Value) StartsWith(rhs Value) bool {
	if v.Kind != KindChars || rhs.Kind != KindChars {
		return false
	}
	return len(v.Chars) >= len(rhs.Chars) && string(v.Chars[:len(rhs.Chars)]) == string(rhs.Chars)
}

func (v Value) EndsWith(rhs Value) bool {
	if v.Kind != KindChars || rhs.Kind != KindChars {
		return false
	}
	return len(v.Chars) >= len(rhs.Chars) && string(v.Chars[len(v.Chars)-len(rhs.Chars):]) == string(rhs.Chars)
}

func (v Value) Contains(rhs Value) bool {
	if v.Kind != KindChars || rhs.Kind != KindChars {
		return false
	}
	if len(rhs.Chars) == 0 {
		return true
	}
	if len(rhs.Chars) > len(v.Chars) {
		return false
	}
	for i := 0; i+len(rhs.Chars) <= len(v.Chars); i++ {
		if string(v.Chars[i:i+len(rhs.Chars)]) == string(rhs.Chars) {
			return true
		}
	}
	return false
}

// Row is one table row, values in column order.
type Row []Value

// Encoded is what a B-tree cell actually stores for one row.
type Encoded struct {
	Key       []byte
	NullFlags []byte
	Payload   []byte
}

// Encode validates row against table's column types/nullability and
// produces the (key, null-bitmap, payload) triple a cell stores. A null
// value contributes zero payload bytes, matching the original; the
// caller's column loop and table.Columns must be the same length.
func Encode(table *schema.Table, row Row) (Encoded, error) {
	if len(row) != len(table.Columns) {
		return Encoded{}, fmt.Errorf("row: expected %d values, got %d", len(table.Columns), len(row))
	}

	var payload []byte
	var key []byte
	nullFlags := make([]byte, table.NullFlagsWidthBytes())

	for i, col := range table.Columns {
		v := row[i]
		if v.IsNull() {
			if col.Flags.Has(schema.FlagPrimary) || !col.Flags.Has(schema.FlagNullable) {
				return Encoded{}, common.ErrCannotBeNull
			}
			nullFlags[i/8] |= 1 << uint(i%8)
			continue
		}

		switch col.Type {
		case schema.ColumnInt:
			if v.Kind != KindInt {
				return Encoded{}, common.ErrTypeMismatch
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(v.Int))
			payload = append(payload, b[:]...)
		case schema.ColumnFloat:
			if v.Kind != KindFloat {
				return Encoded{}, common.ErrTypeMismatch
			}
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.Float))
			payload = append(payload, b[:]...)
		case schema.ColumnChars:
			if v.Kind != KindChars {
				return Encoded{}, common.ErrTypeMismatch
			}
			n := len(v.Chars)
			if n > CharsMaxLen {
				n = CharsMaxLen
			}
			payload = append(payload, byte(n))
			payload = append(payload, v.Chars[:n]...)
		default:
			return Encoded{}, fmt.Errorf("row: unsupported column type %d", col.Type)
		}

		if col.Flags.Has(schema.FlagPrimary) {
			key = encodeKeyBytes(v)
		}
	}

	return Encoded{Key: key, NullFlags: nullFlags, Payload: payload}, nil
}

// EncodeKeyValue derives the B-tree key bytes for a single primary-key
// value, the same way Encode does for whichever column is flagged Primary.
// Exposed for callers (query's point-lookup path) that already have a
// typed Value and no full Row to encode.
func EncodeKeyValue(v Value) []byte { return encodeKeyBytes(v) }

func encodeKeyBytes(v Value) []byte {
	switch v.Kind {
	case KindInt:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.Int))
		return b
	case KindFloat:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float))
		return b
	case KindChars:
		n := len(v.Chars)
		if n > CharsMaxLen {
			n = CharsMaxLen
		}
		return append([]byte(nil), v.Chars[:n]...)
	default:
		return nil
	}
}

// Decode reverses Encode, consulting nullFlags per column instead of
// assuming every column produced payload bytes.
func Decode(table *schema.Table, nullFlags, payload []byte) (Row, error) {
	row := make(Row, len(table.Columns))
	off := 0
	for i, col := range table.Columns {
		if i/8 < len(nullFlags) && nullFlags[i/8]&(1<<uint(i%8)) != 0 {
			row[i] = Null()
			continue
		}
		switch col.Type {
		case schema.ColumnInt:
			if off+8 > len(payload) {
				return nil, fmt.Errorf("row: truncated payload decoding column %d", i)
			}
			row[i] = Int(int64(binary.LittleEndian.Uint64(payload[off : off+8])))
			off += 8
		case schema.ColumnFloat:
			if off+8 > len(payload) {
				return nil, fmt.Errorf("row: truncated payload decoding column %d", i)
			}
			row[i] = Float(math.Float64frombits(binary.LittleEndian.Uint64(payload[off : off+8])))
			off += 8
		case schema.ColumnChars:
			if off >= len(payload) {
				return nil, fmt.Errorf("row: truncated payload decoding column %d", i)
			}
			n := int(payload[off])
			off++
			if off+n > len(payload) {
				return nil, fmt.Errorf("row: truncated chars decoding column %d", i)
			}
			row[i] = Chars(append([]byte(nil), payload[off:off+n]...))
			off += n
		default:
			return nil, fmt.Errorf("row: unsupported column type %d", col.Type)
		}
	}
	return row, nil
}
