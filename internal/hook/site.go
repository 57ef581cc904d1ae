// Package hook redirects host call sites through generated trampolines.
//
// Installation is split into three steps: a site is resolved against the
// memory of the host, its trampoline is generated by a pure function and
// finally the call site is patched to branch to the trampoline.
package hook

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/resolve"
)

// ErrNotRelocatable is returned when the bytes following a call site can not
// be executed from the trampoline.
var ErrNotRelocatable = x64.ErrNotRelocatable

// liveWindow is the number of bytes after the return address that are
// inspected for registers the host code reads.
const liveWindow = 64

// Site is a resolved hook site. All addresses are absolute and are computed
// once before installation.
type Site struct {
	Name     string
	Variant  hooktable.Variant
	Required bool

	Enter          uintptr // address of the hooked instruction
	Length         int     // length of the hooked instruction
	OriginalTarget uintptr // address the instruction calls
	Return         uintptr // address execution continues at after the trampoline
	PreImage       []byte  // original bytes of the hooked instruction
	Tail           []byte  // instructions between the call and Return, executed by the trampoline
	Live           x64.RegSet

	Handler    uintptr
	Code       []byte  // generated trampoline
	Trampoline uintptr // address of the trampoline
	Installed  bool
}

// Locator supplies the addresses that site offsets are relative to.
type Locator struct {
	Base    uintptr
	Anchors map[string]uintptr
}

func (l Locator) origin(anchor string) (uintptr, error) {
	if anchor == "" {
		return l.Base, nil
	}
	address, ok := l.Anchors[anchor]
	if !ok || address == 0 {
		return 0, fmt.Errorf("unknown anchor '%s'", anchor)
	}
	return address, nil
}

// Resolve computes the addresses of a site and captures the code around it.
// A changed opcode at the site results in resolve.ErrOpcodeMismatch.
func Resolve(spec hooktable.SiteSpec, loc Locator, mem resolve.Reader) (*Site, error) {
	origin, err := loc.origin(spec.Anchor)
	if err != nil {
		return nil, err
	}

	length := spec.InstructionLength()
	site := &Site{
		Name:     spec.Name,
		Variant:  spec.Variant,
		Required: spec.Required,
		Enter:    resolve.Absolute(origin, spec.Offset),
		Length:   length,
	}

	r := resolve.New(mem)
	site.PreImage, err = r.Expect(site.Enter, spec.Opcode, length)
	if err != nil {
		return nil, err
	}

	if spec.Opcode == x64.OpCallRel32 {
		site.OriginalTarget, err = resolve.CallTarget(site.Enter, site.PreImage)
		if err != nil {
			return nil, err
		}
	} else {
		site.OriginalTarget = resolve.Absolute(loc.Base, spec.Target)
	}

	next := site.Enter + uintptr(length)
	site.Return = next + uintptr(spec.Tail)

	if spec.Tail > 0 {
		site.Tail, err = mem.Read(next, spec.Tail)
		if err != nil {
			return nil, fmt.Errorf("reading tail of site '%s': %w", spec.Name, err)
		}
		insts, err := x64.Decode(site.Tail, uint64(next))
		if err != nil {
			return nil, fmt.Errorf("decoding tail of site '%s': %w", spec.Name, err)
		}
		if err := x64.CheckRelocatable(insts); err != nil {
			return nil, fmt.Errorf("site '%s': %w", spec.Name, err)
		}
	}

	site.Live = liveAfter(mem, next)
	return site, nil
}

// liveAfter returns the volatile registers that the host code following the
// call reads. If the code can not be read, the return registers are assumed
// to be live.
func liveAfter(mem resolve.Reader, address uintptr) x64.RegSet {
	for size := liveWindow; size >= 16; size /= 2 {
		code, err := mem.Read(address, size)
		if err != nil {
			continue
		}
		insts := x64.DecodeWindow(code, uint64(address), 16)
		if len(insts) == 0 {
			break
		}
		return x64.LiveIn(insts)
	}
	return x64.RegSet(0).Add(x64.RAX).Add(x64.XMM0)
}

// IsMismatch reports whether err is caused by host code that differs from
// the expected layout.
func IsMismatch(err error) bool {
	return errors.Is(err, resolve.ErrOpcodeMismatch) || errors.Is(err, ErrPreImageMismatch) ||
		errors.Is(err, ErrNotRelocatable)
}
