// Package memory provides access to the address space that hooks are
// installed into and reserves executable memory for trampolines.
package memory

import "errors"

const (
	// AllocationGranularity is the alignment of reserved trampoline regions.
	AllocationGranularity = 0x10000
	// PageSize is the granularity of page protection changes.
	PageSize = 0x1000
)

// Errors returned by the memory backends and the allocator.
var (
	ErrNotMapped   = errors.New("address range not mapped")
	ErrOutOfRange  = errors.New("no free region within branch range")
	ErrExhausted   = errors.New("trampoline region exhausted")
	ErrCursorOpen  = errors.New("an allocation is already in progress")
	ErrUnsupported = errors.New("live memory access is not supported on this platform")
)

// Memory reads and patches code of the target address space.
type Memory interface {
	// Read returns size bytes starting at address.
	Read(address uintptr, size int) ([]byte, error)
	// Patch overwrites code at address with a single contiguous write,
	// temporarily relaxing page protection if needed.
	Patch(address uintptr, data []byte) error
}

// Pager reserves and protects memory pages for generated code.
type Pager interface {
	// Reserve reserves and commits a writable region of size bytes whose
	// start is within rel32 branch range of near.
	Reserve(near uintptr, size int) (uintptr, error)
	// Write copies data into a region returned by Reserve.
	Write(address uintptr, data []byte) error
	// Protect switches a reserved region between writable and executable.
	Protect(address uintptr, size int, executable bool) error
	// Flush flushes the instruction cache for the given range.
	Flush(address uintptr, size int) error
}
