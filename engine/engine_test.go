package engine_test

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/stufffdb/stufffdb/common/testutil"
	"github.com/stufffdb/stufffdb/dbheader"
	"github.com/stufffdb/stufffdb/engine"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/query"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

func peopleColumns() []schema.Column {
	return []schema.Column{
		schema.NewColumn("name", schema.ColumnChars).Primary(),
		schema.NewColumn("age", schema.ColumnInt),
	}
}

func TestEngineCreateTableAndInsertQueryRoundTrip(t *testing.T) {
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)

	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("bob")), row.Int(25)}))

	results, err := table.Query(query.New("people").WithKey(row.Chars([]byte("alice"))))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(30), results[0].Row[1].Int)
}

func TestEngineUpdateAndDelete(t *testing.T) {
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))

	require.NoError(t, table.Update(row.Chars([]byte("alice")), row.Row{row.Chars([]byte("alice")), row.Int(31)}))
	results, err := table.Query(query.New("people").WithKey(row.Chars([]byte("alice"))))
	require.NoError(t, err)
	require.Equal(t, int64(31), results[0].Row[1].Int)

	require.NoError(t, table.Delete(row.Chars([]byte("alice"))))
	results, err = table.Query(query.New("people").WithKey(row.Chars([]byte("alice"))))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestEngineGetTableMissing(t *testing.T) {
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.GetTable("ghost")
	require.Error(t, err)
}

func TestEngineReopenPreservesData(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir, err := localfs.New(fs, "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))
	require.NoError(t, e.Close())

	dir2, err := localfs.New(fs, "/db")
	require.NoError(t, err)
	e2, err := engine.Open(engine.Options{Dir: dir2})
	require.NoError(t, err)
	defer e2.Close()

	table2, err := e2.GetTable("people")
	require.NoError(t, err)
	results, err := table2.Query(query.New("people").WithKey(row.Chars([]byte("alice"))))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(30), results[0].Row[1].Int)
}

// TestEngineWALReplaysAfterCrash simulates a crash by corrupting the
// on-disk header page (page 0) after a transaction has already committed
// a complete WAL (trailer written) but the engine was never cleanly
// Closed, so DB_WAL was never deleted. A fresh Open over the same
// directory must replay the WAL before anything else touches the file,
// restoring page 0 (and every other page the transaction logged).
func TestEngineWALReplaysAfterCrash(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir, err := localfs.New(fs, "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))

	// Crash: corrupt page 0's magic in place, without closing e (so DB_WAL
	// is left behind with its completed trailer).
	f, err := fs.OpenFile("/db/DB", os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, len(dbheader.Magic)), 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dir2, err := localfs.New(fs, "/db")
	require.NoError(t, err)
	e2, err := engine.Open(engine.Options{Dir: dir2})
	require.NoError(t, err)
	defer e2.Close()

	table2, err := e2.GetTable("people")
	require.NoError(t, err)
	results, err := table2.Query(query.New("people").WithKey(row.Chars([]byte("alice"))))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int64(30), results[0].Row[1].Int)
}

// TestEngineOnRealFilesystem exercises localfs against an actual OS
// directory instead of afero's in-memory filesystem, so the unix.Flock and
// unix.Fdatasync paths in pagefile/localfs run for real rather than being
// skipped (those only activate when the afero.File is backed by *os.File).
func TestEngineOnRealFilesystem(t *testing.T) {
	dir, err := localfs.New(afero.NewOsFs(), testutil.TempDir(t))
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))
	require.NoError(t, e.Close())
}

func TestEngineStatsReportsPageCounts(t *testing.T) {
	dir, err := localfs.New(afero.NewMemMapFs(), "/db")
	require.NoError(t, err)

	e, err := engine.Open(engine.Options{Dir: dir})
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.CreateTable("people", peopleColumns()))
	table, err := e.GetTable("people")
	require.NoError(t, err)
	require.NoError(t, table.Insert(row.Row{row.Chars([]byte("alice")), row.Int(30)}))

	stats, err := e.Stats()
	require.NoError(t, err)
	require.Greater(t, stats.NumPages, uint32(0))
}
