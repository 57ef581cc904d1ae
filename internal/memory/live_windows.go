//go:build windows

package memory

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"golang.org/x/sys/windows"
)

// not exported by x/sys/windows
const memFree = 0x10000

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procFlushInstructionCache = kernel32.NewProc("FlushInstructionCache")
)

// Live accesses the memory of the current process.
type Live struct{}

// NewLive returns the memory of the current process.
func NewLive() (*Live, error) {
	return &Live{}, nil
}

// ModuleBase returns the load address of the main executable of the process.
func ModuleBase() (uintptr, error) {
	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		return 0, fmt.Errorf("getting module handle: %w", err)
	}
	return uintptr(module), nil
}

func bytesAt(address uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(address)), size) //nolint:govet // foreign memory
}

// Read implements Memory.
func (l *Live) Read(address uintptr, size int) ([]byte, error) {
	var info windows.MemoryBasicInformation
	if err := windows.VirtualQuery(address, &info, unsafe.Sizeof(info)); err != nil {
		return nil, fmt.Errorf("querying 0x%X: %w", address, err)
	}
	if info.State != windows.MEM_COMMIT || address+uintptr(size) > info.BaseAddress+info.RegionSize {
		return nil, fmt.Errorf("%w: 0x%X+%d", ErrNotMapped, address, size)
	}
	return append([]byte(nil), bytesAt(address, size)...), nil
}

// Patch implements Memory. When the patched bytes fit into one aligned
// quadword the write is a single atomic 8 byte store, so a concurrently
// executing thread observes either the old or the new instruction.
func (l *Live) Patch(address uintptr, data []byte) error {
	var old uint32
	if err := windows.VirtualProtect(address, uintptr(len(data)), windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return fmt.Errorf("unprotecting 0x%X: %w", address, err)
	}

	aligned := address &^ 7
	if address+uintptr(len(data)) <= aligned+8 {
		word := (*uint64)(unsafe.Pointer(aligned)) //nolint:govet // foreign memory
		current := atomic.LoadUint64(word)
		buf := (*[8]byte)(unsafe.Pointer(&current))
		copy(buf[address-aligned:], data)
		atomic.StoreUint64(word, current)
	} else {
		copy(bytesAt(address, len(data)), data)
	}

	if err := windows.VirtualProtect(address, uintptr(len(data)), old, &old); err != nil {
		return fmt.Errorf("restoring protection of 0x%X: %w", address, err)
	}
	return l.Flush(address, len(data))
}

// Reserve implements Pager by walking the address space around near with
// VirtualQuery and committing the first free region that is in branch range.
func (l *Live) Reserve(near uintptr, size int) (uintptr, error) {
	size = alignUp(size, AllocationGranularity)
	origin := near &^ (AllocationGranularity - 1)

	for delta := uintptr(AllocationGranularity); delta < 1<<31; delta += AllocationGranularity {
		for _, candidate := range []uintptr{origin - delta, origin + delta} {
			if candidate > origin+delta || candidate == 0 {
				continue
			}
			if !x64.InRange(near, candidate) || !x64.InRange(near, candidate+uintptr(size)) {
				continue
			}
			var info windows.MemoryBasicInformation
			if err := windows.VirtualQuery(candidate, &info, unsafe.Sizeof(info)); err != nil {
				continue
			}
			if info.State != memFree || info.BaseAddress+info.RegionSize < candidate+uintptr(size) {
				continue
			}
			address, err := windows.VirtualAlloc(candidate, uintptr(size),
				windows.MEM_RESERVE|windows.MEM_COMMIT, windows.PAGE_READWRITE)
			if err != nil {
				continue // raced with another allocation
			}
			return address, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%X", ErrOutOfRange, near)
}

// Write implements Pager.
func (l *Live) Write(address uintptr, data []byte) error {
	copy(bytesAt(address, len(data)), data)
	return nil
}

// Protect implements Pager.
func (l *Live) Protect(address uintptr, size int, executable bool) error {
	protection := uint32(windows.PAGE_READWRITE)
	if executable {
		protection = windows.PAGE_EXECUTE_READ
	}
	var old uint32
	if err := windows.VirtualProtect(address, uintptr(size), protection, &old); err != nil {
		return fmt.Errorf("protecting 0x%X: %w", address, err)
	}
	return nil
}

// Flush implements Pager.
func (l *Live) Flush(address uintptr, size int) error {
	r, _, err := procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), address, uintptr(size))
	if r == 0 {
		return fmt.Errorf("flushing instruction cache at 0x%X: %w", address, err)
	}
	return nil
}
