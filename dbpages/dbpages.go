// Package dbpages names the three page numbers that are fixed for the
// lifetime of a database file. Kept as a zero-dependency package so
// dbheader, freelist, wal, schema and engine can all refer to the same
// numbers without an import cycle.
package dbpages

const (
	Header   uint32 = 0
	FreeList uint32 = 1
	DbCat    uint32 = 2
)
