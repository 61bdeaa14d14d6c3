// Package overflow stores payloads too large for a single B-tree cell as a
// singly-linked chain of dedicated pages. Each write is sized to exactly
// what remains of the payload, so a final partial chunk never overruns
// the page.
package overflow

import (
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/wal"
)

// payloadPerPage is how many payload bytes one overflow page holds after
// its 4-byte next-page pointer.
const payloadPerPage = pagefile.PageSize - 4

// writePage writes buf to page n and, when w is non-nil, logs the page's
// new content immediately after (wal.AppendPage re-reads from rw, so the
// write must land first) — mirroring btree.BTree.writePage, since overflow
// chain pages need the same crash protection as any other page a
// transaction touches.
func writePage(rw *pager.PageRW, alloc pagefile.Allocator, w *wal.WAL, n uint32, buf *pagefile.PageBuffer) error {
	if err := rw.WritePage(n, buf); err != nil {
		return err
	}
	if w == nil {
		return nil
	}
	logBuf := alloc.AllocPage()
	defer alloc.ReleasePage(logBuf)
	return w.AppendPage(rw, n, logBuf)
}

// Write spills data across as many overflow pages as needed and returns the
// page number of the first one. Callers are expected to already know data's
// total length (it is recorded alongside the chain pointer in the owning
// row cell) since overflow pages carry no length field of their own. w may
// be nil, in which case pages are not WAL-logged.
func Write(rw *pager.PageRW, fl *freelist.FreeList, alloc pagefile.Allocator, w *wal.WAL, data []byte, buf *pagefile.PageBuffer) (uint32, error) {
	first, err := fl.Allocate()
	if err != nil {
		return 0, err
	}

	cur := first
	start := 0
	for {
		end := start + payloadPerPage
		if end > len(data) {
			end = len(data)
		}
		buf.Reset()
		buf.WriteBytes(4, data[start:end])
		if end == len(data) {
			if err := writePage(rw, alloc, w, cur, buf); err != nil {
				return 0, err
			}
			break
		}
		next, err := fl.Allocate()
		if err != nil {
			return 0, err
		}
		buf.WriteU32(0, next)
		if err := writePage(rw, alloc, w, cur, buf); err != nil {
			return 0, err
		}
		cur = next
		start = end
	}
	return first, nil
}

// Read walks the chain starting at page, returning exactly total bytes.
func Read(rw *pager.PageRW, page uint32, total int, buf *pagefile.PageBuffer) ([]byte, error) {
	out := make([]byte, 0, total)
	remaining := total
	for page != 0 && remaining > 0 {
		if err := rw.ReadPage(page, buf); err != nil {
			return nil, err
		}
		next := buf.ReadU32(0)
		chunk := payloadPerPage
		if chunk > remaining {
			chunk = remaining
		}
		out = append(out, buf.ReadBytes(4, chunk)...)
		remaining -= chunk
		page = next
	}
	return out, nil
}

// Release returns every page in the chain starting at page to fl, used
// when the owning row is updated or deleted. It writes no page content of
// its own — each release is logged by fl.Release's own WAL-backed write
// of the free list page — so it takes no *wal.WAL.
func Release(rw *pager.PageRW, fl *freelist.FreeList, page uint32, buf *pagefile.PageBuffer) error {
	for page != 0 {
		if err := rw.ReadPage(page, buf); err != nil {
			return err
		}
		next := buf.ReadU32(0)
		if err := fl.Release(page); err != nil {
			return err
		}
		page = next
	}
	return nil
}
