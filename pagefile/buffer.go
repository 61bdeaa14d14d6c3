// PageBuffer and View live in pagefile (rather than pager) so that
// Allocator can hand them out without pagefile depending on pager — pager
// is the one that depends on pagefile, for PageFile.
package pagefile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PageSize is the fixed on-disk page size, a compile-time constant used by
// every package and by tests alike; the WAL records it and refuses to
// replay a log written with a different value.
const PageSize = 4096

// PageBuffer is a single page-sized byte buffer loaned to the engine by its
// host allocator. It is never resized; after its contents are overwritten
// in place, Reload bumps a generation counter so any View captured before
// the reload can detect it is stale. Callers must never retain a View across a
// reload of the buffer it was captured from.
type PageBuffer struct {
	data       [PageSize]byte
	generation uint64
}

// NewPageBuffer allocates a zeroed buffer. Real hosts obtain these from
// pagefile.Allocator instead of calling this directly; it exists for tests
// and for allocator implementations themselves.
func NewPageBuffer() *PageBuffer {
	return &PageBuffer{}
}

// Bytes returns the full backing array as a slice, for handing to
// PageRW.ReadPage/WritePage.
func (b *PageBuffer) Bytes() []byte {
	return b.data[:]
}

// Reset zeroes the buffer and advances its generation, invalidating any
// outstanding View.
func (b *PageBuffer) Reset() {
	b.data = [PageSize]byte{}
	b.generation++
}

// Reload is called after the buffer's bytes were overwritten out from under
// it (e.g. by PageRW.ReadPage) so outstanding Views are invalidated even
// though the byte contents, not the Go pointer, changed.
func (b *PageBuffer) Reload() {
	b.generation++
}

func (b *PageBuffer) checkBounds(offset, n int) {
	if offset < 0 || n < 0 || offset+n > PageSize {
		panic(fmt.Sprintf("pagefile: buffer access [%d:%d] out of bounds (page size %d)", offset, offset+n, PageSize))
	}
}

func (b *PageBuffer) ReadU8(offset int) uint8 {
	b.checkBounds(offset, 1)
	return b.data[offset]
}

func (b *PageBuffer) WriteU8(offset int, v uint8) {
	b.checkBounds(offset, 1)
	b.data[offset] = v
}

func (b *PageBuffer) ReadU16(offset int) uint16 {
	b.checkBounds(offset, 2)
	return binary.LittleEndian.Uint16(b.data[offset:])
}

func (b *PageBuffer) WriteU16(offset int, v uint16) {
	b.checkBounds(offset, 2)
	binary.LittleEndian.PutUint16(b.data[offset:], v)
}

func (b *PageBuffer) ReadU32(offset int) uint32 {
	b.checkBounds(offset, 4)
	return binary.LittleEndian.Uint32(b.data[offset:])
}

func (b *PageBuffer) WriteU32(offset int, v uint32) {
	b.checkBounds(offset, 4)
	binary.LittleEndian.PutUint32(b.data[offset:], v)
}

func (b *PageBuffer) ReadU64(offset int) uint64 {
	b.checkBounds(offset, 8)
	return binary.LittleEndian.Uint64(b.data[offset:])
}

func (b *PageBuffer) WriteU64(offset int, v uint64) {
	b.checkBounds(offset, 8)
	binary.LittleEndian.PutUint64(b.data[offset:], v)
}

func (b *PageBuffer) ReadI64(offset int) int64 {
	return int64(b.ReadU64(offset))
}

func (b *PageBuffer) WriteI64(offset int, v int64) {
	b.WriteU64(offset, uint64(v))
}

func (b *PageBuffer) ReadF64(offset int) float64 {
	return math.Float64frombits(b.ReadU64(offset))
}

func (b *PageBuffer) WriteF64(offset int, v float64) {
	b.WriteU64(offset, math.Float64bits(v))
}

// ReadBytes returns a slice aliasing the buffer's own storage — callers
// that need to retain the bytes past the buffer's next Reload must copy.
func (b *PageBuffer) ReadBytes(offset, n int) []byte {
	b.checkBounds(offset, n)
	return b.data[offset : offset+n]
}

func (b *PageBuffer) WriteBytes(offset int, src []byte) {
	b.checkBounds(offset, len(src))
	copy(b.data[offset:offset+len(src)], src)
}

// View captures the buffer's generation at construction time so later
// accesses through it can panic on stale use instead of silently reading
// through a reloaded page. It never aliases: constructing a
// second live View over the same buffer is the caller's responsibility to
// avoid, as with any Go slice aliasing concern.
type View struct {
	buf        *PageBuffer
	generation uint64
}

// NewView snapshots the buffer's current generation.
func NewView(buf *PageBuffer) View {
	return View{buf: buf, generation: buf.generation}
}

// Buffer returns the underlying buffer after checking it has not been
// reloaded since the view was created.
func (v View) Buffer() *PageBuffer {
	if v.buf.generation != v.generation {
		panic("pagefile: view used after its buffer was reloaded")
	}
	return v.buf
}
