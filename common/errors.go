// Package common holds error sentinels shared across every stufffdb
// package.
package common

import "errors"

var (
	// Io-layer / lifecycle conditions.
	ErrClosed = errors.New("stufffdb: engine is closed")

	// WAL conditions.
	ErrInvalidWAL      = errors.New("stufffdb: wal magic or trailer mismatch")
	ErrWalNotSupported = errors.New("stufffdb: wal page size does not match engine page size")

	// Bootstrap conditions.
	ErrHeaderNotFound   = errors.New("stufffdb: db header not found")
	ErrFreeListNotFound = errors.New("stufffdb: free list root not found")
	ErrInitError        = errors.New("stufffdb: engine used before initialization completed")

	// Lookup/mutation conditions.
	ErrNotFound      = errors.New("stufffdb: key not found")
	ErrDuplicateKey  = errors.New("stufffdb: primary key already exists")
	ErrMaxColumns    = errors.New("stufffdb: table exceeds column capacity for one page")
	ErrTypeMismatch  = errors.New("stufffdb: value type does not match column type")
	ErrCannotBeNull  = errors.New("stufffdb: column cannot be null")
	ErrTableNotFound = errors.New("stufffdb: table not found")
	ErrColumnNotFound = errors.New("stufffdb: column not found")

	// Query conditions.
	ErrMissingOperands = errors.New("stufffdb: operator is missing a required operand")
	ErrInvalidOperands = errors.New("stufffdb: operator operands have incompatible shape")

	// ErrAllocatorExhausted is returned by testutil's ResourceLimiter, and
	// raised as a panic by its BoundedAllocator, when a caller requests more
	// page/byte-buffer budget than configured.
	ErrAllocatorExhausted = errors.New("stufffdb: allocator budget exhausted")
)
