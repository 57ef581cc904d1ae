package x64

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// ErrNotRelocatable is returned for instructions that can not be copied to
// a different address without changing their meaning.
var ErrNotRelocatable = errors.New("instruction is not relocatable")

// Inst is a decoded instruction with its address and raw bytes.
type Inst struct {
	x86asm.Inst

	Addr uint64
	Raw  []byte
	Text string // Intel syntax disassembly
}

// Decode decodes all instructions in code, which is located at address pc.
// It fails if any byte range does not decode.
func Decode(code []byte, pc uint64) ([]Inst, error) {
	var insts []Inst
	for offset := 0; offset < len(code); {
		inst, err := decodeOne(code[offset:], pc+uint64(offset))
		if err != nil {
			return insts, fmt.Errorf("decoding at offset 0x%X: %w", offset, err)
		}
		insts = append(insts, inst)
		offset += inst.Len
	}
	return insts, nil
}

// DecodeWindow decodes up to max instructions starting at pc and stops at the
// first instruction that leaves the straight line code path or fails to decode.
// Unlike Decode it never returns an error since the bytes following a window
// are not necessarily code.
func DecodeWindow(code []byte, pc uint64, max int) []Inst {
	var insts []Inst
	for offset := 0; offset < len(code) && len(insts) < max; {
		inst, err := decodeOne(code[offset:], pc+uint64(offset))
		if err != nil {
			break
		}
		insts = append(insts, inst)
		if endsBlock(inst.Op) {
			break
		}
		offset += inst.Len
	}
	return insts
}

func decodeOne(code []byte, pc uint64) (Inst, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return Inst{}, err
	}
	return Inst{
		Inst: inst,
		Addr: pc,
		Raw:  code[:inst.Len],
		Text: x86asm.IntelSyntax(inst, pc, nil),
	}, nil
}

func endsBlock(op x86asm.Op) bool {
	switch op {
	case x86asm.RET, x86asm.JMP, x86asm.CALL, x86asm.INT, x86asm.UD2:
		return true
	default:
		return false
	}
}

// CheckRelocatable verifies that the instructions can be executed at a
// different address: no relative branches, no RIP-relative memory operands
// and no instruction that transfers control elsewhere.
func CheckRelocatable(insts []Inst) error {
	for _, inst := range insts {
		if endsBlock(inst.Op) {
			return fmt.Errorf("%w: '%s' at 0x%X transfers control", ErrNotRelocatable, inst.Text, inst.Addr)
		}
		for _, arg := range inst.Args {
			if arg == nil {
				break
			}
			switch a := arg.(type) {
			case x86asm.Rel:
				return fmt.Errorf("%w: '%s' at 0x%X is a relative branch", ErrNotRelocatable, inst.Text, inst.Addr)
			case x86asm.Mem:
				if a.Base == x86asm.RIP {
					return fmt.Errorf("%w: '%s' at 0x%X addresses memory relative to rip", ErrNotRelocatable, inst.Text, inst.Addr)
				}
			}
		}
	}
	return nil
}

// LiveIn returns the volatile registers that the instruction sequence reads
// before it writes them. The analysis ends at the first call, return or jump.
// Unknown instructions are treated as reading all their register operands, so
// the result errs on the side of preserving too much.
func LiveIn(insts []Inst) RegSet {
	var live, written RegSet
	for _, inst := range insts {
		reads, writes := effects(inst.Inst)
		live |= reads &^ written
		written |= writes
		if endsBlock(inst.Op) {
			break
		}
	}
	return live & Volatile
}

// destinationOnly lists instructions that overwrite their first operand
// without reading it.
var destinationOnly = map[x86asm.Op]bool{
	x86asm.MOV:    true,
	x86asm.MOVZX:  true,
	x86asm.MOVSX:  true,
	x86asm.MOVSXD: true,
	x86asm.LEA:    true,
	x86asm.POP:    true,
	x86asm.MOVAPS: true,
	x86asm.MOVUPS: true,
	x86asm.MOVDQA: true,
	x86asm.MOVDQU: true,
	x86asm.MOVQ:   true,
	x86asm.MOVD:   true,
}

// readOnly lists instructions that only read their first operand.
var readOnly = map[x86asm.Op]bool{
	x86asm.CMP:  true,
	x86asm.TEST: true,
	x86asm.PUSH: true,
	x86asm.BT:   true,
}

func effects(inst x86asm.Inst) (reads, writes RegSet) {
	switch inst.Op {
	case x86asm.CALL:
		reads = reads.Add(RCX).Add(RDX).Add(R8).Add(R9)
		return reads | argReads(inst), Volatile
	case x86asm.RET:
		return reads.Add(RAX).Add(XMM0), 0
	case x86asm.CQO, x86asm.CDQ:
		return reads.Add(RAX), writes.Add(RDX)
	case x86asm.CDQE, x86asm.CWDE:
		return reads.Add(RAX), writes.Add(RAX)
	case x86asm.MUL, x86asm.IMUL, x86asm.DIV, x86asm.IDIV:
		if inst.Args[1] == nil {
			reads = reads.Add(RAX).Add(RDX)
			writes = writes.Add(RAX).Add(RDX)
		}
	}

	if zeroIdiom(inst) {
		reg, _, _ := family(inst.Args[0].(x86asm.Reg))
		return reads, writes.Add(reg)
	}

	for i, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Reg:
			reg, width, ok := family(a)
			if !ok {
				continue
			}
			switch {
			case i != 0 || readOnly[inst.Op]:
				reads = reads.Add(reg)
			case destinationOnly[inst.Op] && width >= 32:
				writes = writes.Add(reg)
			default:
				// partial register writes keep the upper bits
				reads = reads.Add(reg)
				writes = writes.Add(reg)
			}
		case x86asm.Mem:
			reads |= memReads(a)
		}
	}
	return reads, writes
}

func argReads(inst x86asm.Inst) RegSet {
	var reads RegSet
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Reg:
			if reg, _, ok := family(a); ok {
				reads = reads.Add(reg)
			}
		case x86asm.Mem:
			reads |= memReads(a)
		}
	}
	return reads
}

func memReads(m x86asm.Mem) RegSet {
	var reads RegSet
	if reg, _, ok := family(m.Base); ok {
		reads = reads.Add(reg)
	}
	if reg, _, ok := family(m.Index); ok {
		reads = reads.Add(reg)
	}
	return reads
}

// zeroIdiom detects xor reg,reg and sub reg,reg which do not depend on the
// previous register value.
func zeroIdiom(inst x86asm.Inst) bool {
	if inst.Op != x86asm.XOR && inst.Op != x86asm.SUB && inst.Op != x86asm.PXOR && inst.Op != x86asm.XORPS {
		return false
	}
	a, ok1 := inst.Args[0].(x86asm.Reg)
	b, ok2 := inst.Args[1].(x86asm.Reg)
	if !ok1 || !ok2 || a != b {
		return false
	}
	_, width, ok := family(a)
	return ok && width >= 32
}

type regInfo struct {
	reg   Reg
	width int
}

var families = buildFamilies()

func buildFamilies() map[x86asm.Reg]regInfo {
	m := make(map[x86asm.Reg]regInfo)
	add := func(width int, regs ...x86asm.Reg) {
		for i, r := range regs {
			m[r] = regInfo{reg: Reg(i), width: width}
		}
	}
	add(8, x86asm.AL, x86asm.CL, x86asm.DL, x86asm.BL, x86asm.SPB, x86asm.BPB, x86asm.SIB, x86asm.DIB,
		x86asm.R8B, x86asm.R9B, x86asm.R10B, x86asm.R11B, x86asm.R12B, x86asm.R13B, x86asm.R14B, x86asm.R15B)
	add(16, x86asm.AX, x86asm.CX, x86asm.DX, x86asm.BX, x86asm.SP, x86asm.BP, x86asm.SI, x86asm.DI,
		x86asm.R8W, x86asm.R9W, x86asm.R10W, x86asm.R11W, x86asm.R12W, x86asm.R13W, x86asm.R14W, x86asm.R15W)
	add(32, x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX, x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
		x86asm.R8L, x86asm.R9L, x86asm.R10L, x86asm.R11L, x86asm.R12L, x86asm.R13L, x86asm.R14L, x86asm.R15L)
	add(64, x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX, x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
		x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15)

	m[x86asm.AH] = regInfo{reg: RAX, width: 8}
	m[x86asm.CH] = regInfo{reg: RCX, width: 8}
	m[x86asm.DH] = regInfo{reg: RDX, width: 8}
	m[x86asm.BH] = regInfo{reg: RBX, width: 8}
	m[x86asm.X0] = regInfo{reg: XMM0, width: 128}
	return m
}

func family(r x86asm.Reg) (Reg, int, bool) {
	info, ok := families[r]
	return info.reg, info.width, ok
}
