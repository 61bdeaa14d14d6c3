// Command demo walks through stufffdb's core workflow end to end: open a
// database, create a table, insert, query, update and delete rows, then
// close and reopen it to show the data survives (Open runs WAL recovery,
// which has nothing to replay after a clean Close).
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/stufffdb/stufffdb/engine"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/query"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

func main() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("stufffdb Demo: a page-oriented embedded relational engine")
	fmt.Println(strings.Repeat("=", 80))

	dir, err := os.MkdirTemp("", "stufffdb-demo-*")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	hostDir, err := localfs.New(afero.NewOsFs(), dir)
	if err != nil {
		logger.Fatal("open directory", zap.Error(err))
	}

	e, err := engine.Open(engine.Options{Dir: hostDir, Log: logger})
	if err != nil {
		logger.Fatal("open engine", zap.Error(err))
	}

	fmt.Println("\n[Creating table `people`]")
	err = e.CreateTable("people", []schema.Column{
		schema.NewColumn("name", schema.ColumnChars).Primary(),
		schema.NewColumn("age", schema.ColumnInt),
		schema.NewColumn("city", schema.ColumnChars).Nullable(),
	})
	if err != nil {
		logger.Fatal("create table", zap.Error(err))
	}

	people, err := e.GetTable("people")
	if err != nil {
		logger.Fatal("get table", zap.Error(err))
	}

	fmt.Println("\n[Inserting rows]")
	rows := []row.Row{
		{row.Chars([]byte("alice")), row.Int(30), row.Chars([]byte("nyc"))},
		{row.Chars([]byte("bob")), row.Int(25), row.Null()},
		{row.Chars([]byte("carol")), row.Int(40), row.Chars([]byte("sf"))},
	}
	for _, r := range rows {
		if err := people.Insert(r); err != nil {
			logger.Fatal("insert", zap.Error(err))
		}
		fmt.Printf("  INSERT %s\n", string(r[0].Chars))
	}

	fmt.Println("\n[Point lookup by primary key]")
	results, err := people.Query(query.New("people").WithKey(row.Chars([]byte("bob"))))
	if err != nil {
		logger.Fatal("query", zap.Error(err))
	}
	printRows(results)

	fmt.Println("\n[Scan with a predicate: age > 28]")
	results, err = people.Query(query.New("people").Where(query.Condition{
		Op: query.Op{Column: "age", Operator: query.OpGt, Value: row.Int(28)},
	}))
	if err != nil {
		logger.Fatal("query", zap.Error(err))
	}
	printRows(results)

	fmt.Println("\n[Update: bob moves to sf]")
	if err := people.Update(row.Chars([]byte("bob")), row.Row{
		row.Chars([]byte("bob")), row.Int(25), row.Chars([]byte("sf")),
	}); err != nil {
		logger.Fatal("update", zap.Error(err))
	}
	results, err = people.Query(query.New("people").WithKey(row.Chars([]byte("bob"))))
	if err != nil {
		logger.Fatal("query", zap.Error(err))
	}
	printRows(results)

	fmt.Println("\n[Delete: carol leaves]")
	if err := people.Delete(row.Chars([]byte("carol"))); err != nil {
		logger.Fatal("delete", zap.Error(err))
	}
	results, err = people.Query(query.New("people"))
	if err != nil {
		logger.Fatal("query", zap.Error(err))
	}
	printRows(results)

	fmt.Println("\n[Closing and reopening: WAL recovery runs on Open]")
	if err := e.Close(); err != nil {
		logger.Fatal("close", zap.Error(err))
	}
	hostDir2, err := localfs.New(afero.NewOsFs(), dir)
	if err != nil {
		logger.Fatal("reopen directory", zap.Error(err))
	}
	e2, err := engine.Open(engine.Options{Dir: hostDir2, Log: logger})
	if err != nil {
		logger.Fatal("reopen engine", zap.Error(err))
	}
	defer e2.Close()

	people2, err := e2.GetTable("people")
	if err != nil {
		logger.Fatal("get table after reopen", zap.Error(err))
	}
	results, err = people2.Query(query.New("people"))
	if err != nil {
		logger.Fatal("query after reopen", zap.Error(err))
	}
	fmt.Println("  Surviving rows after reopen:")
	printRows(results)

	stats, err := e2.Stats()
	if err != nil {
		logger.Fatal("stats", zap.Error(err))
	}
	fmt.Printf("\n[Stats] pages=%d free=%d\n", stats.NumPages, stats.FreePages)
}

func printRows(results []query.Result) {
	for _, r := range results {
		fields := make([]string, len(r.Row))
		for i, v := range r.Row {
			fields[i] = formatValue(v)
		}
		fmt.Printf("  %s\n", strings.Join(fields, ", "))
	}
	if len(results) == 0 {
		fmt.Println("  (no rows)")
	}
}

func formatValue(v row.Value) string {
	switch v.Kind {
	case row.KindNull:
		return "NULL"
	case row.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case row.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case row.KindChars:
		return string(v.Chars)
	default:
		return "?"
	}
}
