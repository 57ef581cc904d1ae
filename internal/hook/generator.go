package hook

import (
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hooktable"
)

// argumentRegisters are the integer argument registers of the Windows x64
// calling convention in argument order.
var argumentRegisters = []x64.Reg{x64.RCX, x64.RDX, x64.R8, x64.R9}

const (
	// xmmSaveSize is the stack space used to save one xmm register.
	xmmSaveSize = 16
	// floatArguments is the number of xmm argument registers, xmm0 to xmm3.
	floatArguments = 4
)

// Generate returns the trampoline code for a resolved site. The code is
// position independent and expects to be entered by a jump from the site,
// with the stack aligned the way it is at the original call.
func Generate(site *Site) ([]byte, error) {
	if site.Handler == 0 {
		return nil, fmt.Errorf("site '%s' has no handler", site.Name)
	}
	if site.OriginalTarget == 0 || site.Return == 0 {
		return nil, fmt.Errorf("site '%s' is not resolved", site.Name)
	}

	a := x64.NewAssembler()
	switch site.Variant {
	case hooktable.Pre:
		generatePre(a, site)
	case hooktable.Post:
		generatePost(a, site)
	default:
		return nil, fmt.Errorf("site '%s': unsupported variant '%s'", site.Name, site.Variant)
	}

	a.Raw(site.Tail)
	a.JmpAbs(uint64(site.Return))
	return a.Bytes(), nil
}

// generatePre emits the handler call with the original arguments, followed by
// the original call with the arguments restored. Both the integer and the
// floating point argument registers are saved.
func generatePre(a *x64.Assembler, site *Site) {
	for _, reg := range argumentRegisters {
		a.Push(reg)
	}
	a.SubRSP(floatArguments * xmmSaveSize)
	for i := range floatArguments {
		a.StoreXMM(i, uint8(i*xmmSaveSize))
	}

	callAligned(a, site.Handler, len(argumentRegisters)*8+floatArguments*xmmSaveSize)

	for i := floatArguments - 1; i >= 0; i-- {
		a.LoadXMM(i, uint8(i*xmmSaveSize))
	}
	a.AddRSP(floatArguments * xmmSaveSize)
	for i := len(argumentRegisters) - 1; i >= 0; i-- {
		a.Pop(argumentRegisters[i])
	}

	a.MovImm64(x64.RAX, uint64(site.OriginalTarget))
	a.CallReg(x64.RAX)
}

// generatePost emits the original call followed by the handler call.
// Registers that the host code after the call reads are saved around the
// handler call.
func generatePost(a *x64.Assembler, site *Site) {
	a.MovImm64(x64.RAX, uint64(site.OriginalTarget))
	a.CallReg(x64.RAX)

	saved := 0
	if site.Live.Has(x64.XMM0) {
		a.SubRSP(xmmSaveSize)
		a.StoreXMM(0, 0)
		saved += xmmSaveSize
	}
	regs := savedRegisters(site.Live)
	for _, reg := range regs {
		a.Push(reg)
	}
	saved += len(regs) * 8

	callAligned(a, site.Handler, saved)

	for i := len(regs) - 1; i >= 0; i-- {
		a.Pop(regs[i])
	}
	if site.Live.Has(x64.XMM0) {
		a.LoadXMM(0, 0)
		a.AddRSP(xmmSaveSize)
	}
}

// savedRegisters returns the general purpose registers of the set in
// encoding order.
func savedRegisters(live x64.RegSet) []x64.Reg {
	var regs []x64.Reg
	for reg := x64.RAX; reg <= x64.R15; reg++ {
		if live.Has(reg) {
			regs = append(regs, reg)
		}
	}
	return regs
}

// callAligned calls target with shadow space reserved and the stack 16 byte
// aligned, given the number of bytes pushed since the trampoline was entered.
func callAligned(a *x64.Assembler, target uintptr, pushed int) {
	frame := frameSize(pushed)
	a.SubRSP(uint8(frame))
	a.MovImm64(x64.RAX, uint64(target))
	a.CallReg(x64.RAX)
	a.AddRSP(uint8(frame))
}

func frameSize(pushed int) int {
	frame := x64.ShadowSpace
	if (pushed+frame)%16 != 0 {
		frame += 8
	}
	return frame
}
