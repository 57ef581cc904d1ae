package memory

import (
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
)

const codeAlignment = 16

// Allocator hands out trampoline space from a single region reserved within
// branch range of the hooked module. Allocations are never freed, the region
// lives as long as the process.
type Allocator struct {
	pager Pager
	near  uintptr
	size  int

	base uintptr
	used int
	open *Cursor
}

// NewAllocator returns an allocator that reserves its region close to near,
// usually the base address of the hooked module.
func NewAllocator(pager Pager, near uintptr) *Allocator {
	return &Allocator{
		pager: pager,
		near:  near,
		size:  AllocationGranularity,
	}
}

// Begin starts a new allocation and returns a cursor to emit code into.
// Only one allocation can be in progress at a time.
func (a *Allocator) Begin() (*Cursor, error) {
	if a.open != nil {
		return nil, ErrCursorOpen
	}
	if a.base == 0 {
		base, err := a.pager.Reserve(a.near, a.size)
		if err != nil {
			return nil, fmt.Errorf("reserving trampoline region near 0x%X: %w", a.near, err)
		}
		if !x64.InRange(a.near, base) {
			return nil, fmt.Errorf("%w: region 0x%X is not reachable from 0x%X", ErrOutOfRange, base, a.near)
		}
		a.base = base
	}
	if a.used >= a.size {
		return nil, ErrExhausted
	}

	a.open = &Cursor{
		alloc:   a,
		address: a.base + uintptr(a.used),
	}
	return a.open, nil
}

// Base returns the start of the reserved region, 0 before the first allocation.
func (a *Allocator) Base() uintptr {
	return a.base
}

// Used returns the number of bytes handed out.
func (a *Allocator) Used() int {
	return a.used
}

// Cursor is a writable view of an allocation in progress.
type Cursor struct {
	alloc   *Allocator
	address uintptr
	buf     []byte
	done    bool
}

// Address returns the address that the emitted code will be located at.
func (c *Cursor) Address() uintptr {
	return c.address
}

// Write appends code to the allocation.
func (c *Cursor) Write(p []byte) (int, error) {
	if c.done {
		return 0, fmt.Errorf("write to finished allocation at 0x%X", c.address)
	}
	remaining := c.alloc.size - c.alloc.used - len(c.buf)
	if len(p) > remaining {
		return 0, fmt.Errorf("%w: %d bytes requested, %d available", ErrExhausted, len(p), remaining)
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// End finalizes the allocation: the code is copied into the region, the
// pages it spans are made executable and the instruction cache is flushed.
// Pages holding only earlier allocations keep their protection.
func (c *Cursor) End() (uintptr, error) {
	if c.done {
		return 0, fmt.Errorf("allocation at 0x%X already finished", c.address)
	}
	a := c.alloc
	c.done = true
	a.open = nil

	if len(c.buf) == 0 {
		return c.address, nil
	}

	pages, size := pageSpan(c.address, len(c.buf))
	if err := a.pager.Protect(pages, size, false); err != nil {
		return 0, fmt.Errorf("making trampoline pages writable: %w", err)
	}
	if err := a.pager.Write(c.address, c.buf); err != nil {
		return 0, fmt.Errorf("writing trampoline at 0x%X: %w", c.address, err)
	}
	if err := a.pager.Protect(pages, size, true); err != nil {
		return 0, fmt.Errorf("making trampoline pages executable: %w", err)
	}
	if err := a.pager.Flush(c.address, len(c.buf)); err != nil {
		return 0, fmt.Errorf("flushing instruction cache: %w", err)
	}

	a.used += alignUp(len(c.buf), codeAlignment)
	return c.address, nil
}

// pageSpan returns the start and size of the pages covering the range.
func pageSpan(address uintptr, size int) (uintptr, int) {
	start := address &^ (PageSize - 1)
	return start, alignUp(int(address-start)+size, PageSize)
}

// Abort discards the allocation without consuming region space.
func (c *Cursor) Abort() {
	if !c.done {
		c.done = true
		c.alloc.open = nil
	}
}
