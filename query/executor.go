package query

import (
	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

// Result pairs a matched row with the key it was stored under.
type Result struct {
	Key []byte
	Row row.Row
}

// Run executes q against tree (the table's rows B-tree): a pinned key
// does a single point lookup and tests it against the filter; otherwise
// a forward cursor scan tests every row, stopping at limit.
func Run(table *schema.Table, tree *btree.BTree, q *Query) ([]Result, error) {
	if q.Key.Kind != row.KindNull {
		return runPointLookup(table, tree, q)
	}
	return runScan(table, tree, q)
}

func runPointLookup(table *schema.Table, tree *btree.BTree, q *Query) ([]Result, error) {
	key := row.EncodeKeyValue(q.Key)
	entry, err := tree.Search(key)
	if err == common.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r, err := row.Decode(table, entry.NullFlags, entry.Payload)
	if err != nil {
		return nil, err
	}
	ok, err := Evaluate(table, r, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return []Result{{Key: entry.Key, Row: r}}, nil
}

func runScan(table *schema.Table, tree *btree.BTree, q *Query) ([]Result, error) {
	cur, err := btree.NewCursor(tree)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var results []Result
	skipped := 0
	for cur.Valid() {
		entry, err := cur.Entry()
		if err != nil {
			return nil, err
		}
		r, err := row.Decode(table, entry.NullFlags, entry.Payload)
		if err != nil {
			return nil, err
		}
		ok, err := Evaluate(table, r, q)
		if err != nil {
			return nil, err
		}
		if ok {
			if skipped < q.Offset {
				skipped++
			} else {
				results = append(results, Result{Key: entry.Key, Row: r})
				if q.Count > 0 && len(results) >= q.Count {
					break
				}
			}
		}
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return results, nil
}
