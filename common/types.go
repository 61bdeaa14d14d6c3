package common

// Stats reports page-level accounting for one open database.
type Stats struct {
	NumPages  uint32
	FreePages uint32
}
