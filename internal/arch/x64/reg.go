// Package x64 contains the x86-64 instruction encodings used to build hook
// trampolines and the decoding helpers used to inspect host code around a
// hooked call site.
package x64

import "strings"

// Reg is a 64-bit general purpose register in hardware encoding order.
type Reg uint8

// General purpose registers.
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// XMM0 is tracked as a pseudo register in a RegSet since it carries floating
// point return values.
const XMM0 Reg = 16

var regNames = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	"xmm0",
}

func (r Reg) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "reg?"
}

// low returns the low 3 bits used in ModRM and opcode+reg encodings.
func (r Reg) low() byte {
	return byte(r) & 7
}

// extended returns whether the register needs a REX.B or REX.R bit.
func (r Reg) extended() bool {
	return r >= R8 && r <= R15
}

// RegSet is a bit set of registers.
type RegSet uint32

// Volatile contains the registers that the Microsoft x64 calling convention
// does not preserve across a call.
const Volatile = RegSet(1<<RAX | 1<<RCX | 1<<RDX | 1<<R8 | 1<<R9 | 1<<R10 | 1<<R11 | 1<<XMM0)

// Add returns the set with r included.
func (s RegSet) Add(r Reg) RegSet {
	return s | 1<<r
}

// Has returns whether r is part of the set.
func (s RegSet) Has(r Reg) bool {
	return s&(1<<r) != 0
}

// Empty returns whether the set contains no register.
func (s RegSet) Empty() bool {
	return s == 0
}

func (s RegSet) String() string {
	var names []string
	for r := RAX; r <= XMM0; r++ {
		if s.Has(r) {
			names = append(names, r.String())
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}
