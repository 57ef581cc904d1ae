package memory

import (
	"fmt"
	"sort"

	"github.com/retroenv/retrohook/internal/arch/x64"
)

type region struct {
	base       uintptr
	data       []byte
	executable bool
}

func (r *region) end() uintptr {
	return r.base + uintptr(len(r.data))
}

func (r *region) contains(address uintptr, size int) bool {
	return address >= r.base && address+uintptr(size) <= r.end()
}

// Image is a simulated sparse address space. It backs offline planning
// against a host executable loaded from disk and all tests.
type Image struct {
	regions []*region
	patches int
}

// NewImage returns an empty address space.
func NewImage() *Image {
	return &Image{}
}

// Map maps a copy of data at base. Mapped ranges must not overlap.
func (m *Image) Map(base uintptr, data []byte) error {
	if m.overlaps(base, len(data)) {
		return fmt.Errorf("mapping 0x%X-0x%X overlaps an existing region", base, base+uintptr(len(data)))
	}
	r := &region{base: base, data: append([]byte(nil), data...)}
	m.regions = append(m.regions, r)
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].base < m.regions[j].base
	})
	return nil
}

func (m *Image) overlaps(base uintptr, size int) bool {
	end := base + uintptr(size)
	for _, r := range m.regions {
		if base < r.end() && r.base < end {
			return true
		}
	}
	return false
}

func (m *Image) find(address uintptr, size int) (*region, error) {
	for _, r := range m.regions {
		if r.contains(address, size) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%X+%d", ErrNotMapped, address, size)
}

// Read implements Memory.
func (m *Image) Read(address uintptr, size int) ([]byte, error) {
	r, err := m.find(address, size)
	if err != nil {
		return nil, err
	}
	start := address - r.base
	return append([]byte(nil), r.data[start:start+uintptr(size)]...), nil
}

// Patch implements Memory.
func (m *Image) Patch(address uintptr, data []byte) error {
	r, err := m.find(address, len(data))
	if err != nil {
		return err
	}
	copy(r.data[address-r.base:], data)
	m.patches++
	return nil
}

// Patches returns how many patches were applied.
func (m *Image) Patches() int {
	return m.patches
}

// Reserve implements Pager by searching the closest free aligned region
// around near, alternating above and below.
func (m *Image) Reserve(near uintptr, size int) (uintptr, error) {
	size = alignUp(size, AllocationGranularity)
	origin := near &^ (AllocationGranularity - 1)

	for delta := uintptr(AllocationGranularity); delta < 1<<31; delta += AllocationGranularity {
		for _, candidate := range []uintptr{origin + delta, origin - delta} {
			if candidate > origin+delta || candidate == 0 {
				continue // wrapped around
			}
			if !x64.InRange(near, candidate) || !x64.InRange(near, candidate+uintptr(size)) {
				continue
			}
			if m.overlaps(candidate, size) {
				continue
			}
			if err := m.Map(candidate, make([]byte, size)); err != nil {
				return 0, err
			}
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("%w: 0x%X", ErrOutOfRange, near)
}

// Write implements Pager.
func (m *Image) Write(address uintptr, data []byte) error {
	r, err := m.find(address, len(data))
	if err != nil {
		return err
	}
	if r.executable {
		return fmt.Errorf("writing to executable region at 0x%X", address)
	}
	copy(r.data[address-r.base:], data)
	return nil
}

// Protect implements Pager.
func (m *Image) Protect(address uintptr, size int, executable bool) error {
	r, err := m.find(address, size)
	if err != nil {
		return err
	}
	r.executable = executable
	return nil
}

// Flush implements Pager.
func (m *Image) Flush(uintptr, int) error {
	return nil
}

// Executable returns whether the region containing address is executable.
func (m *Image) Executable(address uintptr) bool {
	r, err := m.find(address, 1)
	return err == nil && r.executable
}

func alignUp(n, alignment int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}
