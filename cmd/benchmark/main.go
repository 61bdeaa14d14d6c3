// Command benchmark measures insert, point-lookup and scan throughput for
// stufffdb against a real OS directory, reporting ops/sec and simple
// latency percentiles.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/stufffdb/stufffdb/engine"
	"github.com/stufffdb/stufffdb/pagefile/localfs"
	"github.com/stufffdb/stufffdb/query"
	"github.com/stufffdb/stufffdb/row"
	"github.com/stufffdb/stufffdb/schema"
)

func main() {
	numRows := flag.Int("rows", 50000, "number of rows to insert before measuring lookups/scans")
	lookups := flag.Int("lookups", 10000, "number of point lookups to measure")
	flag.Parse()

	fmt.Println("stufffdb Benchmark")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Rows:    %d\n", *numRows)
	fmt.Printf("Lookups: %d\n\n", *lookups)

	dir, err := os.MkdirTemp("", "stufffdb-bench-*")
	if err != nil {
		fmt.Println("mkdir temp:", err)
		os.Exit(1)
	}
	defer os.RemoveAll(dir)

	hostDir, err := localfs.New(afero.NewOsFs(), dir)
	if err != nil {
		fmt.Println("open dir:", err)
		os.Exit(1)
	}

	e, err := engine.Open(engine.Options{Dir: hostDir, Log: zap.NewNop()})
	if err != nil {
		fmt.Println("open engine:", err)
		os.Exit(1)
	}
	defer e.Close()

	if err := e.CreateTable("bench", []schema.Column{
		schema.NewColumn("id", schema.ColumnChars).Primary(),
		schema.NewColumn("value", schema.ColumnInt),
	}); err != nil {
		fmt.Println("create table:", err)
		os.Exit(1)
	}
	table, err := e.GetTable("bench")
	if err != nil {
		fmt.Println("get table:", err)
		os.Exit(1)
	}

	keys := make([]string, *numRows)
	insertLatencies := make([]time.Duration, *numRows)
	insertStart := time.Now()
	for i := 0; i < *numRows; i++ {
		key := fmt.Sprintf("key-%010d", i)
		keys[i] = key
		start := time.Now()
		err := table.Insert(row.Row{row.Chars([]byte(key)), row.Int(int64(i))})
		insertLatencies[i] = time.Since(start)
		if err != nil {
			fmt.Println("insert:", err)
			os.Exit(1)
		}
	}
	insertElapsed := time.Since(insertStart)

	fmt.Println("[Insert]")
	printStats(*numRows, insertElapsed, insertLatencies)

	rng := rand.New(rand.NewSource(1))
	lookupLatencies := make([]time.Duration, *lookups)
	lookupStart := time.Now()
	for i := 0; i < *lookups; i++ {
		key := keys[rng.Intn(len(keys))]
		start := time.Now()
		_, err := table.Query(query.New("bench").WithKey(row.Chars([]byte(key))))
		lookupLatencies[i] = time.Since(start)
		if err != nil {
			fmt.Println("lookup:", err)
			os.Exit(1)
		}
	}
	lookupElapsed := time.Since(lookupStart)

	fmt.Println("\n[Point Lookup]")
	printStats(*lookups, lookupElapsed, lookupLatencies)

	fmt.Println("\n[Full Scan]")
	scanStart := time.Now()
	results, err := table.Query(query.New("bench"))
	if err != nil {
		fmt.Println("scan:", err)
		os.Exit(1)
	}
	scanElapsed := time.Since(scanStart)
	fmt.Printf("  Rows scanned: %d\n", len(results))
	fmt.Printf("  Duration:     %v\n", scanElapsed)
	fmt.Printf("  Throughput:   %.0f rows/sec\n", float64(len(results))/scanElapsed.Seconds())

	if stats, err := e.Stats(); err == nil {
		fmt.Printf("\n[Pages] total=%d free=%d\n", stats.NumPages, stats.FreePages)
	}
}

func printStats(n int, elapsed time.Duration, latencies []time.Duration) {
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("  Throughput: %.0f ops/sec\n", float64(n)/elapsed.Seconds())
	fmt.Printf("  P50: %v  P95: %v  P99: %v  Max: %v\n",
		percentile(sorted, 0.50), percentile(sorted, 0.95), percentile(sorted, 0.99), sorted[len(sorted)-1])
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
