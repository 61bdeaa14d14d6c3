package engine

import (
	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/query"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

// Table is a handle on one table, obtained via Engine.GetTable.
type Table struct {
	e              *Engine
	schema         *schema.Table
	descriptorPage uint32
	tree           *btree.BTree
}

// Schema exposes the table's column descriptors.
func (t *Table) Schema() *schema.Table { return t.schema }

func (t *Table) beginWrite() error {
	buf := t.e.alloc.AllocPage()
	defer t.e.alloc.ReleasePage(buf)
	return t.e.w.BeginWrite(t.e.rw, buf)
}

// persistRootIfChanged rewrites the descriptor page when a split grew the
// rows B-tree's root, keeping db_cat's view of the table consistent.
func (t *Table) persistRootIfChanged() error {
	if t.tree.Root() == t.schema.RowsBTreePage {
		return nil
	}
	t.schema.RowsBTreePage = t.tree.Root()
	return t.e.writeDescriptor(t.descriptorPage, t.schema)
}

// Insert encodes r against the table's schema and adds it to the rows
// B-tree, framed by a WAL transaction.
func (t *Table) Insert(r row.Row) error {
	if t.e.closed {
		return common.ErrClosed
	}
	t.e.guard.Lock()
	defer t.e.guard.Unlock()

	encoded, err := row.Encode(t.schema, r)
	if err != nil {
		return err
	}
	if err := t.beginWrite(); err != nil {
		return err
	}
	if err := t.tree.Insert(encoded.Key, encoded.NullFlags, encoded.Payload); err != nil {
		return err
	}
	if err := t.persistRootIfChanged(); err != nil {
		return err
	}
	return t.e.w.EndWrite()
}

// Update re-encodes r and overwrites the row currently stored under key
// (the primary-key value), framed by a WAL transaction.
func (t *Table) Update(key row.Value, r row.Row) error {
	if t.e.closed {
		return common.ErrClosed
	}
	t.e.guard.Lock()
	defer t.e.guard.Unlock()

	encoded, err := row.Encode(t.schema, r)
	if err != nil {
		return err
	}
	if err := t.beginWrite(); err != nil {
		return err
	}
	keyBytes := row.EncodeKeyValue(key)
	if err := t.tree.Update(keyBytes, encoded.NullFlags, encoded.Payload); err != nil {
		return err
	}
	if err := t.persistRootIfChanged(); err != nil {
		return err
	}
	return t.e.w.EndWrite()
}

// Delete removes the row stored under key, framed by a WAL transaction.
func (t *Table) Delete(key row.Value) error {
	if t.e.closed {
		return common.ErrClosed
	}
	t.e.guard.Lock()
	defer t.e.guard.Unlock()

	if err := t.beginWrite(); err != nil {
		return err
	}
	keyBytes := row.EncodeKeyValue(key)
	if err := t.tree.Delete(keyBytes); err != nil {
		return err
	}
	return t.e.w.EndWrite()
}

// Query runs q (which the caller has already pointed at this table's name,
// though Query itself only needs the predicate fields) against the rows
// B-tree.
func (t *Table) Query(q *query.Query) ([]query.Result, error) {
	if t.e.closed {
		return nil, common.ErrClosed
	}
	t.e.guard.RLock()
	defer t.e.guard.RUnlock()

	return query.Run(t.schema, t.tree, q)
}
