// Package wal implements the write-ahead log that protects the three fixed
// pages (header, free-list root, catalog root) and whatever other pages a
// transaction touches, so a transaction whose EndWrite completed can be
// replayed on the next Open if the database file lost its writes. A log
// whose EndWrite never completed is not replayed.
//
// The log file carries a fixed magic ("WAL_FILE") and trailer
// ("WAL_FILE_END") around a sequence of fixed-size records, each holding a
// page number, that page's full new image, and an xxhash64 checksum over
// it (github.com/cespare/xxhash/v2) so a torn write is detectable during
// replay instead of silently corrupting the database file.
package wal

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/dbpages"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
)

// FileName is the name the host Directory stores the WAL under.
const FileName = "DB_WAL"

var (
	magic   = [8]byte{'W', 'A', 'L', '_', 'F', 'I', 'L', 'E'}
	trailer = [12]byte{'W', 'A', 'L', '_', 'F', 'I', 'L', 'E', '_', 'E', 'N', 'D'}
)

const (
	headerSize = 16 // magic(8) + page_size(4) + page_count(4)
	recordSize = 4 + pagefile.PageSize + 8 // page_num(4) + page data + xxhash64(8)
)

// WAL is a handle on one open DB_WAL file.
type WAL struct {
	mu     sync.Mutex
	file   pagefile.PageFile
	log    *zap.Logger
	header header
	// offset tracks where the next record (or the trailer) gets written.
	offset uint32
}

type header struct {
	pageSize  uint32
	pageCount uint32
}

// Open creates or attaches to DB_WAL within dir.
func Open(dir pagefile.Directory, log *zap.Logger) (*WAL, error) {
	f, err := dir.OpenFileInDir(FileName, pagefile.ModeReadWriteCreateOrAppend)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", FileName, err)
	}
	return &WAL{file: f, log: log}, nil
}

// Close closes the underlying file without deleting it.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Delete removes DB_WAL (it does not close it; call Close first), used once
// a database is closed cleanly and no replay will ever be needed again.
func Delete(dir pagefile.Directory) error {
	return dir.DeleteFileInDir(FileName)
}

func (w *WAL) readHeader(buf *pagefile.PageBuffer) (header, error) {
	if err := w.file.SeekFromStart(0); err != nil {
		return header{}, fmt.Errorf("wal: seek header: %w", err)
	}
	hbuf := make([]byte, headerSize)
	n, err := w.file.Read(hbuf)
	if err != nil || n != headerSize {
		return header{}, common.ErrInvalidWAL
	}
	if !bytes.Equal(hbuf[0:8], magic[:]) {
		return header{}, common.ErrInvalidWAL
	}
	return header{
		pageSize:  binary.LittleEndian.Uint32(hbuf[8:12]),
		pageCount: binary.LittleEndian.Uint32(hbuf[12:16]),
	}, nil
}

func (w *WAL) writeHeader(h header) error {
	hbuf := make([]byte, headerSize)
	copy(hbuf[0:8], magic[:])
	binary.LittleEndian.PutUint32(hbuf[8:12], h.pageSize)
	binary.LittleEndian.PutUint32(hbuf[12:16], h.pageCount)
	if err := w.file.SeekFromStart(0); err != nil {
		return fmt.Errorf("wal: seek header: %w", err)
	}
	if err := w.file.Write(hbuf); err != nil {
		return fmt.Errorf("wal: write header: %w", err)
	}
	return nil
}

// verifyTrailer reports whether the file ends in the WAL trailer. A missing
// or foreign trailer means the last write session never completed, so the
// WAL is not safe to replay.
func (w *WAL) verifyTrailer() bool {
	if err := w.file.SeekFromEnd(uint32(len(trailer))); err != nil {
		return false
	}
	got := make([]byte, len(trailer))
	n, err := w.file.Read(got)
	if err != nil || n != len(trailer) {
		return false
	}
	return bytes.Equal(got, trailer[:])
}

// CheckRestore performs crash recovery: if a
// complete, checksum-valid WAL is present, every logged page is replayed
// into dbRW and the WAL is reset to an empty header so a second crash
// before the next transaction replays nothing (idempotent replay). Returns
// the number of pages replayed.
func (w *WAL) CheckRestore(dbRW *pager.PageRW, buf *pagefile.PageBuffer) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	h, err := w.readHeader(buf)
	if err != nil || !w.verifyTrailer() {
		w.header = header{}
		return 0, nil
	}
	if h.pageSize != pagefile.PageSize {
		return 0, common.ErrWalNotSupported
	}

	if err := w.file.SeekFromStart(headerSize); err != nil {
		return 0, fmt.Errorf("wal: seek records: %w", err)
	}
	replayed := 0
	for i := uint32(0); i < h.pageCount; i++ {
		rec := make([]byte, recordSize)
		n, err := w.file.Read(rec)
		if err != nil || n != recordSize {
			return replayed, fmt.Errorf("wal: truncated record %d of %d: %w", i, h.pageCount, common.ErrInvalidWAL)
		}
		page := binary.LittleEndian.Uint32(rec[0:4])
		data := rec[4 : 4+pagefile.PageSize]
		wantSum := binary.LittleEndian.Uint64(rec[4+pagefile.PageSize:])
		if xxhash.Sum64(data) != wantSum {
			return replayed, fmt.Errorf("wal: checksum mismatch on page %d: %w", page, common.ErrInvalidWAL)
		}
		buf.Reset()
		buf.WriteBytes(0, data)
		if err := dbRW.WritePage(page, buf); err != nil {
			return replayed, fmt.Errorf("wal: replay page %d: %w", page, err)
		}
		replayed++
	}
	if err := dbRW.Flush(); err != nil {
		return replayed, fmt.Errorf("wal: flush after replay: %w", err)
	}
	if w.log != nil && replayed > 0 {
		w.log.Info("wal replay complete", zap.Int("pages", replayed))
	}

	w.header = header{}
	if err := w.writeHeader(w.header); err != nil {
		return replayed, fmt.Errorf("wal: reset header after replay: %w", err)
	}
	return replayed, nil
}

// BeginWrite starts a transaction: it resets the WAL header to an empty
// record count and immediately snapshots the three fixed pages, since any
// mutation is liable to touch the header (page count), the free-list root
// or the catalog root.
func (w *WAL) BeginWrite(dbRW *pager.PageRW, buf *pagefile.PageBuffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.header = header{pageSize: pagefile.PageSize}
	w.offset = headerSize
	if err := w.writeHeader(w.header); err != nil {
		return err
	}
	for _, fixed := range [3]uint32{dbpages.Header, dbpages.FreeList, dbpages.DbCat} {
		if err := w.appendPageLocked(dbRW, fixed, buf); err != nil {
			return err
		}
	}
	return nil
}

// AppendPage re-reads page n from the db file and logs its contents.
// Callers invoke this right after writing a page's new content to the db
// file via dbRW, not before: that way the WAL holds exactly the bytes each
// touched page should end up with, and CheckRestore can unconditionally
// replay every logged page forward without distinguishing which of the
// transaction's writes actually landed before a crash.
func (w *WAL) AppendPage(dbRW *pager.PageRW, n uint32, buf *pagefile.PageBuffer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendPageLocked(dbRW, n, buf)
}

func (w *WAL) appendPageLocked(dbRW *pager.PageRW, n uint32, buf *pagefile.PageBuffer) error {
	if err := dbRW.ReadPage(n, buf); err != nil {
		return fmt.Errorf("wal: read page %d for log: %w", n, err)
	}
	rec := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(rec[0:4], n)
	copy(rec[4:4+pagefile.PageSize], buf.Bytes())
	binary.LittleEndian.PutUint64(rec[4+pagefile.PageSize:], xxhash.Sum64(buf.Bytes()))

	if err := w.file.SeekFromStart(w.offset); err != nil {
		return fmt.Errorf("wal: seek record: %w", err)
	}
	if err := w.file.Write(rec); err != nil {
		return fmt.Errorf("wal: write record for page %d: %w", n, err)
	}
	w.offset += uint32(recordSize)
	w.header.pageCount++
	return nil
}

// EndWrite commits the transaction: the header is rewritten with the final
// page count and the trailer is appended, only after which the WAL is
// considered replayable.
func (w *WAL) EndWrite() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writeHeader(w.header); err != nil {
		return err
	}
	if err := w.file.SeekFromStart(w.offset); err != nil {
		return fmt.Errorf("wal: seek trailer: %w", err)
	}
	if err := w.file.Write(trailer[:]); err != nil {
		return fmt.Errorf("wal: write trailer: %w", err)
	}
	return w.file.Flush()
}
