// Package engine ties every lower layer together into the database
// session API: Open, CreateTable, GetTable and the mutation/query entry
// points on a Table handle, with every mutating call framed by a WAL
// transaction (BeginWrite/EndWrite).
package engine

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/catalog"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/dbheader"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/schema"
	"github.com/stufffdb/stufffdb/wal"
)

// DBFileName is the name the host Directory stores the main data file
// under.
const DBFileName = "DB"

// Options configures Open. Alloc and Log default to
// pagefile.HeapAllocator{} and zap.NewNop() when left zero.
type Options struct {
	Dir   pagefile.Directory
	Alloc pagefile.Allocator
	Log   *zap.Logger
}

// Engine is one open database: a single writer and single reader share it
// cooperatively, coordinated by guard.
type Engine struct {
	dir    pagefile.Directory
	alloc  pagefile.Allocator
	log    *zap.Logger
	dbFile pagefile.PageFile
	rw     *pager.PageRW
	w      *wal.WAL
	fl     *freelist.FreeList
	cat    *catalog.Catalog
	guard  btree.Guard
	closed bool
}

// Open attaches to (or creates) the database rooted at opts.Dir, replaying
// any complete WAL left by a prior crash before anything else touches the
// data file.
func Open(opts Options) (*Engine, error) {
	alloc := opts.Alloc
	if alloc == nil {
		alloc = pagefile.HeapAllocator{}
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	dbFile, err := opts.Dir.OpenFileInDir(DBFileName, pagefile.ModeReadWriteCreateOrAppend)
	if err != nil {
		return nil, fmt.Errorf("engine: open %s: %w", DBFileName, err)
	}
	rw := pager.New(dbFile)

	w, err := wal.Open(opts.Dir, log)
	if err != nil {
		dbFile.Close()
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	buf := alloc.AllocPage()
	defer alloc.ReleasePage(buf)
	if rw.PageCount() > 0 {
		if _, err := w.CheckRestore(rw, buf); err != nil {
			w.Close()
			dbFile.Close()
			return nil, fmt.Errorf("engine: wal recovery: %w", err)
		}
	}

	if _, err := dbheader.Read(rw, buf); err == common.ErrHeaderNotFound {
		if err := freelist.Bootstrap(rw, buf); err != nil {
			w.Close()
			dbFile.Close()
			return nil, fmt.Errorf("engine: bootstrap free list: %w", err)
		}
		if err := catalog.Bootstrap(rw, alloc); err != nil {
			w.Close()
			dbFile.Close()
			return nil, fmt.Errorf("engine: bootstrap catalog: %w", err)
		}
	} else if err != nil {
		w.Close()
		dbFile.Close()
		return nil, fmt.Errorf("engine: read header: %w", err)
	}

	fl := freelist.New(rw, w, alloc)
	cat := catalog.Open(rw, fl, alloc, w)

	return &Engine{
		dir:    opts.Dir,
		alloc:  alloc,
		log:    log,
		dbFile: dbFile,
		rw:     rw,
		w:      w,
		fl:     fl,
		cat:    cat,
	}, nil
}

// writeDescriptor writes a schema.Table's encoded form to its descriptor
// page and logs it, mirroring btree.BTree.writePage.
func (e *Engine) writeDescriptor(page uint32, t *schema.Table) error {
	encoded, err := t.Encode()
	if err != nil {
		return err
	}
	buf := e.alloc.AllocPage()
	defer e.alloc.ReleasePage(buf)
	buf.Reset()
	buf.WriteBytes(0, encoded)
	if err := e.rw.WritePage(page, buf); err != nil {
		return err
	}
	logBuf := e.alloc.AllocPage()
	defer e.alloc.ReleasePage(logBuf)
	return e.w.AppendPage(e.rw, page, logBuf)
}

// CreateTable registers a new table named name with the given columns:
// allocate a descriptor page, allocate an empty rows B-tree, write the
// descriptor, record (name, descriptorPage) in db_cat.
func (e *Engine) CreateTable(name string, columns []schema.Column) error {
	if e.closed {
		return common.ErrClosed
	}
	e.guard.Lock()
	defer e.guard.Unlock()

	table := schema.NewTable(name)
	for _, c := range columns {
		if err := table.AddColumn(c); err != nil {
			return err
		}
	}

	beginBuf := e.alloc.AllocPage()
	err := e.w.BeginWrite(e.rw, beginBuf)
	e.alloc.ReleasePage(beginBuf)
	if err != nil {
		return err
	}

	descriptorPage, err := e.fl.Allocate()
	if err != nil {
		return err
	}
	rowsRoot, err := btree.Create(e.rw, e.fl, e.alloc, e.w, table.NullFlagsWidthBytes())
	if err != nil {
		return err
	}
	table.RowsBTreePage = rowsRoot

	if err := e.writeDescriptor(descriptorPage, table); err != nil {
		return err
	}
	if err := e.cat.Insert(name, descriptorPage); err != nil {
		return err
	}

	return e.w.EndWrite()
}

// GetTable opens a handle on an existing table: point lookup by name in
// db_cat, then read the descriptor page.
func (e *Engine) GetTable(name string) (*Table, error) {
	if e.closed {
		return nil, common.ErrClosed
	}
	e.guard.RLock()
	defer e.guard.RUnlock()

	descriptorPage, err := e.cat.Lookup(name)
	if err != nil {
		return nil, err
	}
	buf := e.alloc.AllocPage()
	defer e.alloc.ReleasePage(buf)
	if err := e.rw.ReadPage(descriptorPage, buf); err != nil {
		return nil, err
	}
	table, err := schema.Decode(buf.Bytes())
	if err != nil {
		return nil, err
	}
	tree := btree.Open(e.rw, e.fl, e.alloc, e.w, table.RowsBTreePage, table.NullFlagsWidthBytes())
	return &Table{e: e, schema: table, descriptorPage: descriptorPage, tree: tree}, nil
}

// Stats reports page-level accounting for the open database.
func (e *Engine) Stats() (common.Stats, error) {
	free, err := e.fl.Count()
	if err != nil {
		return common.Stats{}, err
	}
	return common.Stats{NumPages: e.rw.PageCount(), FreePages: free}, nil
}

// Close flushes and closes the data file, then deletes the WAL: a cleanly
// closed engine needs no replay on its next Open.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.rw.Flush(); err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	if err := e.w.Close(); err != nil {
		return fmt.Errorf("engine: close wal: %w", err)
	}
	if err := wal.Delete(e.dir); err != nil {
		return fmt.Errorf("engine: delete wal: %w", err)
	}
	return e.rw.Close()
}
