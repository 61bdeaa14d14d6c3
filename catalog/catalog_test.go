package catalog_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/stufffdb/stufffdb/catalog"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/pager"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)
	f, err := dir.OpenFileInDir("DB_FILE", pagefile.ModeReadWriteCreateOrAppend)
	require.NoError(t, err)
	rw := pager.New(f)
	alloc := pagefile.HeapAllocator{}

	buf := alloc.AllocPage()
	require.NoError(t, freelist.Bootstrap(rw, buf))
	require.NoError(t, catalog.Bootstrap(rw, alloc))
	fl := freelist.New(rw, nil, alloc)
	return catalog.Open(rw, fl, alloc, nil)
}

func TestCatalogInsertAndLookup(t *testing.T) {
	cat := newTestCatalog(t)
	require.NoError(t, cat.Insert("users", 42))
	require.NoError(t, cat.Insert("orders", 99))

	page, err := cat.Lookup("users")
	require.NoError(t, err)
	require.Equal(t, uint32(42), page)

	page, err = cat.Lookup("orders")
	require.NoError(t, err)
	require.Equal(t, uint32(99), page)
}

func TestCatalogLookupMissing(t *testing.T) {
	cat := newTestCatalog(t)
	_, err := cat.Lookup("nope")
	require.ErrorIs(t, err, common.ErrTableNotFound)
}

func TestCatalogInsertDuplicateRejected(t *testing.T) {
	cat := newTestCatalog(t)
	require.NoError(t, cat.Insert("users", 42))
	err := cat.Insert("users", 43)
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestCatalogCursorEnumeratesTables(t *testing.T) {
	cat := newTestCatalog(t)
	require.NoError(t, cat.Insert("b_table", 10))
	require.NoError(t, cat.Insert("a_table", 20))
	require.NoError(t, cat.Insert("c_table", 30))

	cur, err := cat.Cursor()
	require.NoError(t, err)
	defer cur.Close()

	var names []string
	for cur.Valid() {
		e, err := cur.Entry()
		require.NoError(t, err)
		names = append(names, string(e.Key))
		require.NoError(t, cur.Next())
	}
	require.Equal(t, []string{"a_table", "b_table", "c_table"}, names)
}
