// Package dbheader reads and writes page 0 of the database file: the magic
// string and page count that let Open distinguish a freshly created file
// from one that needs bootstrapping.
package dbheader

import (
	"bytes"
	"fmt"

	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/dbpages"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
)

// Magic is the 8-byte signature stamped at offset 0 of page 0.
var Magic = [8]byte{'_', 's', 't', 'u', 'f', 'f', 'f', '_'}

const (
	offMagic     = 0
	offPageCount = 8
	// HeaderPage is the fixed page number of the database header.
	HeaderPage = dbpages.Header
)

// Header is the decoded content of page 0.
type Header struct {
	PageCount uint32
}

// Read loads and validates the header page. common.ErrHeaderNotFound is
// returned when the file is empty or the magic does not match, which Open
// treats as "needs bootstrap" rather than corruption.
func Read(rw *pager.PageRW, buf *pagefile.PageBuffer) (Header, error) {
	if rw.PageCount() == 0 {
		return Header{}, common.ErrHeaderNotFound
	}
	if err := rw.ReadPage(HeaderPage, buf); err != nil {
		return Header{}, fmt.Errorf("dbheader: read page 0: %w", err)
	}
	got := buf.ReadBytes(offMagic, len(Magic))
	if !bytes.Equal(got, Magic[:]) {
		return Header{}, common.ErrHeaderNotFound
	}
	return Header{PageCount: buf.ReadU32(offPageCount)}, nil
}

// Write stamps the magic and page count into buf and persists it as page 0.
func Write(rw *pager.PageRW, buf *pagefile.PageBuffer, h Header) error {
	buf.Reset()
	buf.WriteBytes(offMagic, Magic[:])
	buf.WriteU32(offPageCount, h.PageCount)
	if err := rw.WritePage(HeaderPage, buf); err != nil {
		return fmt.Errorf("dbheader: write page 0: %w", err)
	}
	return nil
}
