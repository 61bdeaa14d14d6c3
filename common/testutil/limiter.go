package testutil

import (
	"sync/atomic"

	"github.com/stufffdb/stufffdb/common"
)

// ResourceLimiter bounds how many page buffers and scratch byte slices a
// pagefile.Allocator hands out in a test, standing in for the bounded
// memory budget a real embedded host enforces.
type ResourceLimiter struct {
	maxPages int64
	maxBytes int64
	pagesUsed atomic.Int64
	bytesUsed atomic.Int64
}

func NewResourceLimiter(maxPages, maxBytes int64) *ResourceLimiter {
	return &ResourceLimiter{
		maxPages: maxPages,
		maxBytes: maxBytes,
	}
}

func (r *ResourceLimiter) AllocPage() error {
	if r.pagesUsed.Add(1) > r.maxPages {
		r.pagesUsed.Add(-1)
		return common.ErrAllocatorExhausted
	}
	return nil
}

func (r *ResourceLimiter) FreePage() {
	r.pagesUsed.Add(-1)
}

func (r *ResourceLimiter) PagesUsed() int64 {
	return r.pagesUsed.Load()
}

func (r *ResourceLimiter) AllocBytes(n int64) error {
	if r.bytesUsed.Add(n) > r.maxBytes {
		r.bytesUsed.Add(-n)
		return common.ErrAllocatorExhausted
	}
	return nil
}

func (r *ResourceLimiter) FreeBytes(n int64) {
	r.bytesUsed.Add(-n)
}

func (r *ResourceLimiter) BytesUsed() int64 {
	return r.bytesUsed.Load()
}
