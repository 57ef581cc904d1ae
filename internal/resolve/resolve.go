// Package resolve computes absolute addresses of hook sites and their call
// targets from module relative offsets and rel32 call encodings.
package resolve

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
)

// ErrOpcodeMismatch is returned when the byte at a computed address is not the
// expected opcode, which usually means the host binary does not match the
// offsets of the selected build.
var ErrOpcodeMismatch = errors.New("unexpected opcode at hook site")

// Reader reads bytes of the target address space.
type Reader interface {
	Read(address uintptr, size int) ([]byte, error)
}

// Absolute returns the absolute address of a module relative offset.
func Absolute(base uintptr, offset uint64) uintptr {
	return base + uintptr(offset)
}

// Relative returns the module relative offset of an absolute address.
func Relative(base, address uintptr) uint64 {
	return uint64(address - base)
}

// CallTarget decodes the 5 byte rel32 call instruction in code, which is
// located at address, and returns the absolute call target.
func CallTarget(address uintptr, code []byte) (uintptr, error) {
	if len(code) < x64.BranchSize {
		return 0, fmt.Errorf("call instruction at 0x%X truncated to %d bytes", address, len(code))
	}
	if code[0] != x64.OpCallRel32 {
		return 0, fmt.Errorf("%w: 0x%02X at 0x%X, expected 0x%02X", ErrOpcodeMismatch, code[0], address, x64.OpCallRel32)
	}
	disp := int32(binary.LittleEndian.Uint32(code[1:x64.BranchSize]))
	return uintptr(int64(address) + x64.BranchSize + int64(disp)), nil
}

// Resolver reads instructions from an address space and resolves hook site addresses.
type Resolver struct {
	mem Reader
}

// New returns a resolver reading from the given address space.
func New(mem Reader) *Resolver {
	return &Resolver{mem: mem}
}

// Expect reads length bytes at address and verifies that the first one is the
// expected opcode. The read bytes are returned as the pre-image of the site.
func (r *Resolver) Expect(address uintptr, opcode byte, length int) ([]byte, error) {
	code, err := r.mem.Read(address, length)
	if err != nil {
		return nil, fmt.Errorf("reading %d bytes at 0x%X: %w", length, address, err)
	}
	if len(code) < length || length == 0 {
		return nil, fmt.Errorf("short read of %d/%d bytes at 0x%X", len(code), length, address)
	}
	if code[0] != opcode {
		return nil, fmt.Errorf("%w: 0x%02X at 0x%X, expected 0x%02X", ErrOpcodeMismatch, code[0], address, opcode)
	}
	return code, nil
}

// CallTarget reads the rel32 call instruction at address and returns its absolute target.
func (r *Resolver) CallTarget(address uintptr) (uintptr, error) {
	code, err := r.Expect(address, x64.OpCallRel32, x64.BranchSize)
	if err != nil {
		return 0, err
	}
	return CallTarget(address, code)
}
