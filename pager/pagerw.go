// Package pager implements page-granular I/O over a pagefile.PageFile:
// read, write and extend a file one fixed-size page at a time. The typed
// buffer it reads and writes through, pagefile.PageBuffer, lives in
// package pagefile so that pagefile.Allocator can hand one out without
// importing this package.
package pager

import (
	"fmt"

	"github.com/stufffdb/stufffdb/pagefile"
)

// PageSize re-exports pagefile.PageSize for callers that otherwise have no
// reason to import pagefile directly.
const PageSize = pagefile.PageSize

// ErrShortRead is returned by ReadPage when the host file yielded fewer
// than PageSize bytes without reporting an error; a host error (such as
// localfs's io.EOF on a short read) is returned wrapped instead.
var ErrShortRead = fmt.Errorf("pager: short read")

// PageRW is a typed reader/writer over a pagefile.PageFile at page
// granularity.
type PageRW struct {
	file pagefile.PageFile
}

// New wraps an already-open PageFile.
func New(file pagefile.PageFile) *PageRW {
	return &PageRW{file: file}
}

// ReadPage seeks to page n*PageSize and fills buf.
func (p *PageRW) ReadPage(n uint32, buf *pagefile.PageBuffer) error {
	if err := p.file.SeekFromStart(n * PageSize); err != nil {
		return fmt.Errorf("pager: seek page %d: %w", n, err)
	}
	read, err := p.file.Read(buf.Bytes())
	if err != nil {
		return fmt.Errorf("pager: read page %d: %w", n, err)
	}
	if read != PageSize {
		return fmt.Errorf("%w: page %d got %d bytes", ErrShortRead, n, read)
	}
	buf.Reload()
	return nil
}

// WritePage seeks to page n*PageSize and writes buf. The file must already
// be long enough; callers grow it first via ExtendFileByPages.
func (p *PageRW) WritePage(n uint32, buf *pagefile.PageBuffer) error {
	if err := p.file.SeekFromStart(n * PageSize); err != nil {
		return fmt.Errorf("pager: seek page %d: %w", n, err)
	}
	if err := p.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("pager: write page %d: %w", n, err)
	}
	return nil
}

// ExtendFileByPages appends count zeroed pages to the file and returns the
// logical page index of the first newly allocated page.
func (p *PageRW) ExtendFileByPages(count uint32, scratch *pagefile.PageBuffer) (uint32, error) {
	firstNew := p.file.Length() / PageSize
	scratch.Reset()
	for i := uint32(0); i < count; i++ {
		if err := p.WritePage(firstNew+i, scratch); err != nil {
			return 0, fmt.Errorf("pager: extend file by %d pages: %w", count, err)
		}
	}
	return firstNew, nil
}

// PageCount returns the file's current length in whole pages.
func (p *PageRW) PageCount() uint32 {
	return p.file.Length() / PageSize
}

// Flush forwards to the underlying file.
func (p *PageRW) Flush() error {
	return p.file.Flush()
}

// Close forwards to the underlying file.
func (p *PageRW) Close() error {
	return p.file.Close()
}
