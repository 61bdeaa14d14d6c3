package query_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/pager"
	"github.com/stufffdb/stufffdb/query"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

func newPeopleTable(t *testing.T) (*schema.Table, *btree.BTree) {
	t.Helper()
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)
	f, err := dir.OpenFileInDir("DB_FILE", pagefile.ModeReadWriteCreateOrAppend)
	require.NoError(t, err)
	rw := pager.New(f)
	alloc := pagefile.HeapAllocator{}

	buf := alloc.AllocPage()
	require.NoError(t, freelist.Bootstrap(rw, buf))
	fl := freelist.New(rw, nil, alloc)

	table := schema.NewTable("people")
	require.NoError(t, table.AddColumn(schema.NewColumn("name", schema.ColumnChars).Primary()))
	require.NoError(t, table.AddColumn(schema.NewColumn("age", schema.ColumnInt)))
	require.NoError(t, table.AddColumn(schema.NewColumn("nickname", schema.ColumnChars).Nullable()))

	root, err := btree.Create(rw, fl, alloc, nil, table.NullFlagsWidthBytes())
	require.NoError(t, err)
	tree := btree.Open(rw, fl, alloc, nil, root, table.NullFlagsWidthBytes())

	rows := []row.Row{
		{row.Chars([]byte("alice")), row.Int(30), row.Chars([]byte("ali"))},
		{row.Chars([]byte("bob")), row.Int(25), row.Null()},
		{row.Chars([]byte("carol")), row.Int(40), row.Chars([]byte("caz"))},
	}
	for _, r := range rows {
		enc, err := row.Encode(table, r)
		require.NoError(t, err)
		require.NoError(t, tree.Insert(enc.Key, enc.NullFlags, enc.Payload))
	}
	return table, tree
}

func TestRunPointLookupMatchesKey(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").WithKey(row.Chars([]byte("bob")))
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bob", string(results[0].Row[0].Chars))
}

func TestRunPointLookupMissingKey(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").WithKey(row.Chars([]byte("dave")))
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestRunScanWithConditionFiltersRows(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").Where(query.Condition{
		Op: query.Op{Column: "age", Operator: query.OpGt, Value: row.Int(28)},
	})
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	var names []string
	for _, r := range results {
		names = append(names, string(r.Row[0].Chars))
	}
	require.ElementsMatch(t, []string{"alice", "carol"}, names)
}

func TestRunScanIsNullCondition(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").Where(query.Condition{
		Op: query.Op{Column: "nickname", Operator: query.OpIsNull},
	})
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bob", string(results[0].Row[0].Chars))
}

func TestRunScanOrJoin(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").Or().
		Where(query.Condition{Op: query.Op{Column: "age", Operator: query.OpEq, Value: row.Int(25)}}).
		Where(query.Condition{Op: query.Op{Column: "age", Operator: query.OpEq, Value: row.Int(40)}})
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	var names []string
	for _, r := range results {
		names = append(names, string(r.Row[0].Chars))
	}
	require.ElementsMatch(t, []string{"bob", "carol"}, names)
}

func TestRunScanNotCondition(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").Where(query.Condition{
		Op:  query.Op{Column: "age", Operator: query.OpEq, Value: row.Int(25)},
		Not: true,
	})
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	var names []string
	for _, r := range results {
		names = append(names, string(r.Row[0].Chars))
	}
	require.ElementsMatch(t, []string{"alice", "carol"}, names)
}

func TestRunScanLimit(t *testing.T) {
	table, tree := newPeopleTable(t)
	q := query.New("people").Limit(1, 1)
	results, err := query.Run(table, tree, q)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "bob", string(results[0].Row[0].Chars))
}
