package testutil

import (
	"github.com/stufffdb/stufffdb/pagefile"
)

// BoundedAllocator wraps pagefile.HeapAllocator with a ResourceLimiter,
// standing in for an embedded host whose page pool and scratch-byte budget
// are fixed at boot. pagefile.Allocator's methods have no error return,
// matching a real bump/pool allocator's signature, so exhaustion panics
// with common.ErrAllocatorExhausted rather than propagating an error the
// interface has no room for.
type BoundedAllocator struct {
	Limiter *ResourceLimiter
	heap    pagefile.HeapAllocator
}

// NewBoundedAllocator returns an Allocator that panics once more than
// maxPages page buffers are outstanding at once, or once more than maxBytes
// scratch bytes have been requested in total (AllocBytes has no matching
// release, so the byte budget is never given back).
func NewBoundedAllocator(maxPages, maxBytes int64) *BoundedAllocator {
	return &BoundedAllocator{Limiter: NewResourceLimiter(maxPages, maxBytes)}
}

func (b *BoundedAllocator) AllocPage() *pagefile.PageBuffer {
	if err := b.Limiter.AllocPage(); err != nil {
		panic(err)
	}
	return b.heap.AllocPage()
}

func (b *BoundedAllocator) ReleasePage(buf *pagefile.PageBuffer) {
	b.Limiter.FreePage()
	b.heap.ReleasePage(buf)
}

func (b *BoundedAllocator) AllocBytes(capacity int) []byte {
	if err := b.Limiter.AllocBytes(int64(capacity)); err != nil {
		panic(err)
	}
	return b.heap.AllocBytes(capacity)
}
