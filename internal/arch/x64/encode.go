package x64

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Opcodes of the 5 byte rel32 encodings used at hook sites.
const (
	OpCallRel32 = 0xE8
	OpJmpRel32  = 0xE9
	OpGroup5    = 0xFF // call/jmp r/m64
)

// BranchSize is the size of a rel32 call or jump instruction.
const BranchSize = 5

// AbsJumpSize is the size of the RIP-relative indirect jump including its
// trailing 8 byte target literal.
const AbsJumpSize = 14

// AbsJumpLiteralSize is the size of the target literal of the indirect jump.
const AbsJumpLiteralSize = 8

// ShadowSpace is the stack area a caller reserves for the callee's register arguments.
const ShadowSpace = 0x20

// ErrOutOfRange is returned when a rel32 displacement can not reach its target.
var ErrOutOfRange = errors.New("branch target out of rel32 range")

const (
	rexW = 0x48
	rexB = 0x41
)

// Rel32 returns the displacement encoded in a rel32 instruction of the given
// length that starts at from and transfers control to to.
func Rel32(from, to uintptr, length int) (int32, error) {
	disp := int64(to) - int64(from) - int64(length)
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		return 0, fmt.Errorf("%w: 0x%X -> 0x%X", ErrOutOfRange, from, to)
	}
	return int32(disp), nil
}

// InRange returns whether a rel32 branch placed at from can reach to.
func InRange(from, to uintptr) bool {
	_, err := Rel32(from, to, BranchSize)
	return err == nil
}

// EncodeBranch encodes a 5 byte rel32 call or jump at address at that
// transfers control to target.
func EncodeBranch(opcode byte, at, target uintptr) ([]byte, error) {
	if opcode != OpCallRel32 && opcode != OpJmpRel32 {
		return nil, fmt.Errorf("unsupported branch opcode 0x%02X", opcode)
	}
	disp, err := Rel32(at, target, BranchSize)
	if err != nil {
		return nil, err
	}
	code := make([]byte, BranchSize)
	code[0] = opcode
	binary.LittleEndian.PutUint32(code[1:], uint32(disp))
	return code, nil
}

// Assembler emits the small instruction subset needed for trampolines.
// All emitted code is position independent.
type Assembler struct {
	buf []byte
}

// NewAssembler returns an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Bytes returns the emitted code.
func (a *Assembler) Bytes() []byte {
	return a.buf
}

// Len returns the number of emitted bytes.
func (a *Assembler) Len() int {
	return len(a.buf)
}

// Raw appends already encoded instructions.
func (a *Assembler) Raw(code []byte) {
	a.buf = append(a.buf, code...)
}

// MovImm64 emits mov reg, imm64.
func (a *Assembler) MovImm64(reg Reg, value uint64) {
	rex := byte(rexW)
	if reg.extended() {
		rex |= 0x01
	}
	a.buf = append(a.buf, rex, 0xB8+reg.low())
	a.buf = binary.LittleEndian.AppendUint64(a.buf, value)
}

// CallReg emits call reg.
func (a *Assembler) CallReg(reg Reg) {
	a.group5(2, reg)
}

// JmpReg emits jmp reg.
func (a *Assembler) JmpReg(reg Reg) {
	a.group5(4, reg)
}

func (a *Assembler) group5(ext byte, reg Reg) {
	if reg.extended() {
		a.buf = append(a.buf, rexB)
	}
	a.buf = append(a.buf, OpGroup5, 0xC0|ext<<3|reg.low())
}

// JmpAbs emits jmp qword [rip+0] followed by the 8 byte destination.
// It does not modify any register.
func (a *Assembler) JmpAbs(target uint64) {
	a.buf = append(a.buf, OpGroup5, 0x25, 0, 0, 0, 0)
	a.buf = binary.LittleEndian.AppendUint64(a.buf, target)
}

// Push emits push reg.
func (a *Assembler) Push(reg Reg) {
	if reg.extended() {
		a.buf = append(a.buf, rexB)
	}
	a.buf = append(a.buf, 0x50+reg.low())
}

// Pop emits pop reg.
func (a *Assembler) Pop(reg Reg) {
	if reg.extended() {
		a.buf = append(a.buf, rexB)
	}
	a.buf = append(a.buf, 0x58+reg.low())
}

// SubRSP emits sub rsp, imm8.
func (a *Assembler) SubRSP(n uint8) {
	a.buf = append(a.buf, rexW, 0x83, 0xEC, n)
}

// AddRSP emits add rsp, imm8.
func (a *Assembler) AddRSP(n uint8) {
	a.buf = append(a.buf, rexW, 0x83, 0xC4, n)
}

// StoreXMM emits movdqu [rsp+offset], xmmN for xmm0 to xmm7.
func (a *Assembler) StoreXMM(n int, offset uint8) {
	a.movdqu(0x7F, n, offset)
}

// LoadXMM emits movdqu xmmN, [rsp+offset] for xmm0 to xmm7.
func (a *Assembler) LoadXMM(n int, offset uint8) {
	a.movdqu(0x6F, n, offset)
}

func (a *Assembler) movdqu(opcode byte, n int, offset uint8) {
	reg := byte(n&7) << 3
	if offset == 0 {
		a.buf = append(a.buf, 0xF3, 0x0F, opcode, 0x04|reg, 0x24)
		return
	}
	a.buf = append(a.buf, 0xF3, 0x0F, opcode, 0x44|reg, 0x24, offset)
}
