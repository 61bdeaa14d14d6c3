package btree_test

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/stufffdb/stufffdb/btree"
	"github.com/stufffdb/stufffdb/common"
	"github.com/stufffdb/stufffdb/common/testutil"
	"github.com/stufffdb/stufffdb/freelist"
	"github.com/stufffdb/stufffdb/pagefile"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/pager"
)

func newTestTree(t *testing.T, nullFlagsWidth int) *btree.BTree {
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

	root, err := btree.Create(rw, fl, alloc, nil, nullFlagsWidth)
	require.NoError(t, err)
	return btree.Open(rw, fl, alloc, nil, root, nullFlagsWidth)
}

func TestInsertAndSearchRoundTrip(t *testing.T) {
	tree := newTestTree(t, 1)
	require.NoError(t, tree.Insert([]byte("alice"), []byte{0}, []byte("payload-alice")))
	require.NoError(t, tree.Insert([]byte("bob"), []byte{0}, []byte("payload-bob")))

	got, err := tree.Search([]byte("alice"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload-alice"), got.Payload)

	got, err = tree.Search([]byte("bob"))
	require.NoError(t, err)
	require.Equal(t, []byte("payload-bob"), got.Payload)
}

func TestInsertDuplicateKeyRejected(t *testing.T) {
	tree := newTestTree(t, 1)
	require.NoError(t, tree.Insert([]byte("k"), []byte{0}, []byte("v1")))
	err := tree.Insert([]byte("k"), []byte{0}, []byte("v2"))
	require.ErrorIs(t, err, common.ErrDuplicateKey)
}

func TestSearchMissingKey(t *testing.T) {
	tree := newTestTree(t, 1)
	_, err := tree.Search([]byte("nope"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSplitsAcrossManyRows(t *testing.T) {
	tree := newTestTree(t, 1)
	const n = 500
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		require.NoError(t, tree.Insert(key, []byte{0}, []byte(fmt.Sprintf("value-%05d", i))))
	}
	for i := 0; i < n; i++ {
		key := []byte(fmt.Sprintf("key-%05d", i))
		got, err := tree.Search(key)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("value-%05d", i), string(got.Payload))
	}
}

func TestCursorScansInOrder(t *testing.T) {
	tree := newTestTree(t, 1)
	keys := []string{"d", "b", "a", "c", "e"}
	for _, k := range keys {
		require.NoError(t, tree.Insert([]byte(k), []byte{0}, []byte("v-"+k)))
	}

	cur, err := btree.NewCursor(tree)
	require.NoError(t, err)
	defer cur.Close()

	var seen []string
	for cur.Valid() {
		e, err := cur.Entry()
		require.NoError(t, err)
		seen = append(seen, string(e.Key))
		require.NoError(t, cur.Next())
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)
}

func TestUpdateOverwritesPayload(t *testing.T) {
	tree := newTestTree(t, 1)
	require.NoError(t, tree.Insert([]byte("k"), []byte{0}, []byte("old")))
	require.NoError(t, tree.Update([]byte("k"), []byte{0}, []byte("new-and-longer")))

	got, err := tree.Search([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("new-and-longer"), got.Payload)
}

func TestDeleteThenSearchMisses(t *testing.T) {
	tree := newTestTree(t, 1)
	require.NoError(t, tree.Insert([]byte("k"), []byte{0}, []byte("v")))
	require.NoError(t, tree.Delete([]byte("k")))

	_, err := tree.Search([]byte("k"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestOverflowChainRoundTrip(t *testing.T) {
	tree := newTestTree(t, 1)
	big := make([]byte, pagefile.PageSize*3)
	for i := range big {
		big[i] = byte(i % 251)
	}
	require.NoError(t, tree.Insert([]byte("big"), []byte{0}, big))

	got, err := tree.Search([]byte("big"))
	require.NoError(t, err)
	require.Equal(t, big, got.Payload)

	require.NoError(t, tree.Delete([]byte("big")))
	_, err = tree.Search([]byte("big"))
	require.ErrorIs(t, err, common.ErrNotFound)
}

// TestInsertPanicsWhenAllocatorExhausted drives the tree through a host
// allocator with a page budget too small to service a single Insert,
// standing in for an embedded host whose fixed pool is already spoken for
// elsewhere.
func TestInsertPanicsWhenAllocatorExhausted(t *testing.T) {
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)
	f, err := dir.OpenFileInDir("DB_FILE", pagefile.ModeReadWriteCreateOrAppend)
	require.NoError(t, err)
	rw := pager.New(f)

	setupAlloc := pagefile.HeapAllocator{}
	buf := setupAlloc.AllocPage()
	require.NoError(t, freelist.Bootstrap(rw, buf))
	fl := freelist.New(rw, nil, setupAlloc)
	root, err := btree.Create(rw, fl, setupAlloc, nil, 1)
	require.NoError(t, err)

	bounded := testutil.NewBoundedAllocator(0, 1<<20)
	tree := btree.Open(rw, fl, bounded, nil, root, 1)

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		require.ErrorIs(t, err, common.ErrAllocatorExhausted)
	}()
	_ = tree.Insert([]byte("k"), []byte{0}, []byte("v"))
	t.Fatal("expected Insert to panic on allocator exhaustion")
}
