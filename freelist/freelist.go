// Package freelist manages the chain of free-page pages rooted at page 1,
// handing out recycled page numbers to callers that would otherwise grow
// the file. See the type doc below for the chain-promotion/spill policy.
package freelist

import (
	"fmt"

	"github.com/stufffdb/stufffdb/dbheader"
	"github.com/stufffdb/stufffdb/dbpages"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/wal"
)

// RootPage is the fixed page number of the free list root.
const RootPage = dbpages.FreeList

const (
	offCount = 0
	offNext  = 4
	offArray = 8
)

// capacity is how many page numbers fit in one free-list page's inline
// array after the count/next header.
const capacity = (pagefile.PageSize - offArray) / 4

// FreeList allocates and releases page numbers against the chain rooted at
// RootPage, extending the file via rw when the chain is empty.
//
// Policy:
//   - Allocate pops the root's inline array; when that empties and the root
//     chains to another page, that page's entire content is promoted into
//     the root in place (so RootPage never moves), and the now-unused page
//     number is fed back through Release.
//   - Release pushes onto the root's inline array; when that array is
//     full, the root's current content is copied verbatim into a freshly
//     recycled page which becomes the new chain head, and the root is
//     reset to hold just the one incoming entry.
type FreeList struct {
	rw      *pager.PageRW
	w       *wal.WAL
	alloc   pagefile.Allocator
	root    *pagefile.PageBuffer
	chain   *pagefile.PageBuffer
	hdrBuf  *pagefile.PageBuffer
	scratch *pagefile.PageBuffer
}

// New wraps rw. The caller must have already bootstrapped page 0 and page 1
// (see Bootstrap). w may be nil, in which case Allocate/Release do not log
// to the WAL themselves (the package tests run without a WAL this way;
// engine.Open always passes its WAL).
func New(rw *pager.PageRW, w *wal.WAL, alloc pagefile.Allocator) *FreeList {
	return &FreeList{
		rw:      rw,
		w:       w,
		alloc:   alloc,
		root:    alloc.AllocPage(),
		chain:   alloc.AllocPage(),
		hdrBuf:  alloc.AllocPage(),
		scratch: alloc.AllocPage(),
	}
}

// writePage writes buf to page n and, when the free list is WAL-backed,
// logs the page's new content immediately after (wal.AppendPage re-reads
// from rw, so the write must land first) — mirroring btree.BTree.writePage,
// since page 0 (header) and page 1 (free list root) are touched by
// Allocate/Release just as often as any B-tree page.
func (f *FreeList) writePage(n uint32, buf *pagefile.PageBuffer) error {
	if err := f.rw.WritePage(n, buf); err != nil {
		return err
	}
	if f.w == nil {
		return nil
	}
	logBuf := f.alloc.AllocPage()
	defer f.alloc.ReleasePage(logBuf)
	return f.w.AppendPage(f.rw, n, logBuf)
}

// Bootstrap initializes an empty free list at RootPage and the database
// header at page 0 for a brand-new file. Page 2 (the catalog root) is
// reserved here too, so the first Allocate afterward returns page 3.
func Bootstrap(rw *pager.PageRW, buf *pagefile.PageBuffer) error {
	if err := dbheader.Write(rw, buf, dbheader.Header{PageCount: 3}); err != nil {
		return err
	}
	// Page 1: an empty free list root is all-zero (count 0, next 0), which
	// is exactly what a freshly extended page already contains.
	if _, err := rw.ExtendFileByPages(1, buf); err != nil {
		return fmt.Errorf("freelist: extend for root: %w", err)
	}
	// Page 2: reserved for the catalog root; its content is written by
	// whatever bootstraps the catalog next.
	if _, err := rw.ExtendFileByPages(1, buf); err != nil {
		return fmt.Errorf("freelist: extend for catalog: %w", err)
	}
	return nil
}

// Allocate returns a page number the caller may overwrite freely, either
// recycled from the free list or newly appended to the file.
func (f *FreeList) Allocate() (uint32, error) {
	if err := f.rw.ReadPage(RootPage, f.root); err != nil {
		return 0, fmt.Errorf("freelist: read root: %w", err)
	}
	count := f.root.ReadU32(offCount)
	if count > 0 {
		idx := count - 1
		page := f.root.ReadU32(offArray + int(idx)*4)
		f.root.WriteU32(offCount, count-1)
		if err := f.writePage(RootPage, f.root); err != nil {
			return 0, fmt.Errorf("freelist: write root after pop: %w", err)
		}
		return page, nil
	}

	next := f.root.ReadU32(offNext)
	if next != 0 {
		if err := f.rw.ReadPage(next, f.chain); err != nil {
			return 0, fmt.Errorf("freelist: read chain page %d: %w", next, err)
		}
		copy(f.root.Bytes(), f.chain.Bytes())
		f.root.Reload()
		if err := f.writePage(RootPage, f.root); err != nil {
			return 0, fmt.Errorf("freelist: write promoted root: %w", err)
		}
		page, err := f.Allocate()
		if err != nil {
			return 0, err
		}
		if err := f.Release(next); err != nil {
			return 0, fmt.Errorf("freelist: release promoted chain page %d: %w", next, err)
		}
		return page, nil
	}

	if err := f.rw.ReadPage(dbheader.HeaderPage, f.hdrBuf); err != nil {
		return 0, fmt.Errorf("freelist: read header: %w", err)
	}
	page, err := f.rw.ExtendFileByPages(1, f.scratch)
	if err != nil {
		return 0, fmt.Errorf("freelist: extend file: %w", err)
	}
	pageCount := f.hdrBuf.ReadU32(8)
	f.hdrBuf.WriteU32(8, pageCount+1)
	if err := f.writePage(dbheader.HeaderPage, f.hdrBuf); err != nil {
		return 0, fmt.Errorf("freelist: bump page count: %w", err)
	}
	return page, nil
}

// Count returns the total number of pages currently on the free list,
// walking the root's inline array and every chained overflow page.
func (f *FreeList) Count() (uint32, error) {
	if err := f.rw.ReadPage(RootPage, f.root); err != nil {
		return 0, fmt.Errorf("freelist: read root: %w", err)
	}
	total := f.root.ReadU32(offCount)
	next := f.root.ReadU32(offNext)
	for next != 0 {
		if err := f.rw.ReadPage(next, f.chain); err != nil {
			return 0, fmt.Errorf("freelist: read chain page %d: %w", next, err)
		}
		total += f.chain.ReadU32(offCount)
		next = f.chain.ReadU32(offNext)
	}
	return total, nil
}

// Release returns page n to the free list for future Allocate calls.
func (f *FreeList) Release(n uint32) error {
	if err := f.rw.ReadPage(RootPage, f.root); err != nil {
		return fmt.Errorf("freelist: read root: %w", err)
	}
	count := f.root.ReadU32(offCount)
	if count < capacity {
		f.root.WriteU32(offArray+int(count)*4, n)
		f.root.WriteU32(offCount, count+1)
		if err := f.writePage(RootPage, f.root); err != nil {
			return fmt.Errorf("freelist: write root after push: %w", err)
		}
		return nil
	}

	newPage, err := f.Allocate()
	if err != nil {
		return fmt.Errorf("freelist: allocate overflow page: %w", err)
	}
	if err := f.rw.ReadPage(RootPage, f.root); err != nil {
		return fmt.Errorf("freelist: re-read root: %w", err)
	}
	copy(f.chain.Bytes(), f.root.Bytes())
	f.chain.Reload()
	if err := f.writePage(newPage, f.chain); err != nil {
		return fmt.Errorf("freelist: write overflow page %d: %w", newPage, err)
	}

	f.root.Reset()
	f.root.WriteU32(offCount, 1)
	f.root.WriteU32(offNext, newPage)
	f.root.WriteU32(offArray, n)
	if err := f.writePage(RootPage, f.root); err != nil {
		return fmt.Errorf("freelist: write new root: %w", err)
	}
	return nil
}
