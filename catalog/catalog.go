// Package catalog implements db_cat: the fixed B-tree at page 2 mapping
// table name → table descriptor page. Unlike a user table,
// db_cat's own two-column schema (db_name: Chars primary key, page: Int
// payload) is fixed and never itself stored in a descriptor page, so this
// package encodes/decodes its one row shape directly instead of going
// through the general row/schema codec.
package catalog

import (
	"encoding/binary"

	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/dbpages"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/schema"
	"github.com/stufffdb/stufffdb/wal"
)

// nullFlagsWidth is 1 byte even though db_cat never stores a null: the
// B-tree cell format always reserves a null-flags field, and one byte is
// the minimum (schema.Table.NullFlagsWidthBytes's floor for zero columns
// worth of flags).
const nullFlagsWidth = 1

// Catalog wraps the db_cat B-tree rooted at the reserved page dbpages.DbCat.
type Catalog struct {
	tree *btree.BTree
}

// Bootstrap formats page 2 as an empty leaf, called once when a brand-new
// database file is created (after freelist.Bootstrap has reserved pages
// 0-2).
func Bootstrap(rw *pager.PageRW, alloc pagefile.Allocator) error {
	buf := alloc.AllocPage()
	defer alloc.ReleasePage(buf)
	btree.NewLeaf(buf, nullFlagsWidth)
	return rw.WritePage(dbpages.DbCat, buf)
}

// Open attaches to an already-bootstrapped db_cat.
func Open(rw *pager.PageRW, fl *freelist.FreeList, alloc pagefile.Allocator, w *wal.WAL) *Catalog {
	return &Catalog{tree: btree.Open(rw, fl, alloc, w, dbpages.DbCat, nullFlagsWidth)}
}

func keyFor(name string) []byte {
	n := schema.NewName(name)
	return []byte(n.String())
}

// Lookup returns the descriptor page stored under name, or
// common.ErrTableNotFound.
func (c *Catalog) Lookup(name string) (uint32, error) {
	entry, err := c.tree.Search(keyFor(name))
	if err == common.ErrNotFound {
		return 0, common.ErrTableNotFound
	}
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(entry.Payload), nil
}

// Insert records name → descriptorPage. Returns common.ErrDuplicateKey if
// the name is already registered.
func (c *Catalog) Insert(name string, descriptorPage uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, descriptorPage)
	return c.tree.Insert(keyFor(name), []byte{0}, payload)
}

// Cursor returns a forward scan over every (name, descriptorPage) pair,
// used to enumerate all tables.
func (c *Catalog) Cursor() (*btree.Cursor, error) {
	return btree.NewCursor(c.tree)
}
