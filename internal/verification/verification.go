// Package verification verifies generated trampolines and installed patches
// by decoding them again.
package verification

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/resolve"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/arch/x86/x86asm"
)

// Expectation describes what a trampoline has to do.
type Expectation struct {
	Variant  hooktable.Variant
	Handler  uint64
	Original uint64
	Return   uint64
	Tail     []byte
}

var absJumpPrefix = []byte{0xFF, 0x25, 0, 0, 0, 0}

// VerifyTrampoline decodes a trampoline and checks that it calls the handler
// and the original target in the order of its variant with an aligned stack,
// restores every register it saved, executes the tail and finally jumps to
// the return address with the stack pointer unchanged.
func VerifyTrampoline(code []byte, expect Expectation) error {
	if len(code) < x64.AbsJumpSize {
		return fmt.Errorf("trampoline of %d bytes is too short", len(code))
	}

	jump := code[len(code)-x64.AbsJumpSize:]
	if !bytes.HasPrefix(jump, absJumpPrefix) {
		return errors.New("trampoline does not end with an absolute jump")
	}
	if target := binary.LittleEndian.Uint64(jump[len(absJumpPrefix):]); target != expect.Return {
		return fmt.Errorf("trampoline returns to 0x%X instead of 0x%X", target, expect.Return)
	}

	body := code[:len(code)-x64.AbsJumpSize]
	if !bytes.HasSuffix(body, expect.Tail) {
		return errors.New("trampoline does not execute the call site tail")
	}
	body = body[:len(body)-len(expect.Tail)]

	insts, err := x64.Decode(body, 0)
	if err != nil {
		return fmt.Errorf("decoding trampoline: %w", err)
	}

	calls, err := simulate(insts)
	if err != nil {
		return err
	}

	var order []uint64
	switch expect.Variant {
	case hooktable.Pre:
		order = []uint64{expect.Handler, expect.Original}
	case hooktable.Post:
		order = []uint64{expect.Original, expect.Handler}
	default:
		return fmt.Errorf("unsupported variant '%s'", expect.Variant)
	}
	if len(calls) != len(order) {
		return fmt.Errorf("trampoline has %d calls, expected %d", len(calls), len(order))
	}
	for i, c := range calls {
		if c.target != order[i] {
			return fmt.Errorf("call %d targets 0x%X, expected 0x%X", i, c.target, order[i])
		}
		if c.target == expect.Handler && c.shadow < x64.ShadowSpace {
			return fmt.Errorf("handler call has %d bytes of shadow space", c.shadow)
		}
	}
	return nil
}

type call struct {
	target uint64
	shadow int // stack reserved directly below the arguments
}

// simulate tracks the stack depth and the value of rax through the
// instructions that the trampoline generator emits.
func simulate(insts []x64.Inst) ([]call, error) {
	var (
		calls  []call
		pushed []x86asm.Reg
		depth  int
		shadow int
		rax    uint64
		xmm    = map[int]x86asm.Reg{} // saved registers by slot above the entry stack
	)

	for _, inst := range insts {
		switch inst.Op {
		case x86asm.PUSH:
			reg, _ := inst.Args[0].(x86asm.Reg)
			pushed = append(pushed, reg)
			depth += 8
			shadow = 0

		case x86asm.POP:
			reg, _ := inst.Args[0].(x86asm.Reg)
			if len(pushed) == 0 || pushed[len(pushed)-1] != reg {
				return nil, fmt.Errorf("'%s' does not restore the last saved register", inst.Text)
			}
			pushed = pushed[:len(pushed)-1]
			depth -= 8

		case x86asm.SUB, x86asm.ADD:
			if inst.Args[0] != x86asm.RSP {
				return nil, fmt.Errorf("unexpected instruction '%s'", inst.Text)
			}
			imm, ok := inst.Args[1].(x86asm.Imm)
			if !ok {
				return nil, fmt.Errorf("unexpected instruction '%s'", inst.Text)
			}
			if inst.Op == x86asm.SUB {
				depth += int(imm)
				shadow = int(imm)
			} else {
				depth -= int(imm)
				shadow = 0
			}

		case x86asm.MOV:
			imm, ok := inst.Args[1].(x86asm.Imm)
			if inst.Args[0] != x86asm.RAX || !ok {
				return nil, fmt.Errorf("unexpected instruction '%s'", inst.Text)
			}
			rax = uint64(imm)

		case x86asm.CALL:
			if inst.Args[0] != x86asm.RAX {
				return nil, fmt.Errorf("unexpected instruction '%s'", inst.Text)
			}
			if depth%16 != 0 {
				return nil, fmt.Errorf("call at offset 0x%X with misaligned stack", inst.Addr)
			}
			calls = append(calls, call{target: rax, shadow: shadow})

		case x86asm.MOVDQU:
			if err := trackXMM(inst, depth, xmm); err != nil {
				return nil, err
			}

		default:
			return nil, fmt.Errorf("unexpected instruction '%s'", inst.Text)
		}

		if depth < 0 {
			return nil, fmt.Errorf("'%s' releases more stack than was reserved", inst.Text)
		}
	}

	if depth != 0 || len(pushed) != 0 {
		return nil, fmt.Errorf("stack is unbalanced by %d bytes", depth)
	}
	if len(xmm) != 0 {
		return nil, fmt.Errorf("%d saved xmm registers are not restored", len(xmm))
	}
	return calls, nil
}

// trackXMM records an xmm register saved to the reserved stack or checks
// that a restore reads back the register saved in that slot.
func trackXMM(inst x64.Inst, depth int, saved map[int]x86asm.Reg) error {
	store := true
	mem, ok := inst.Args[0].(x86asm.Mem)
	reg, isReg := inst.Args[1].(x86asm.Reg)
	if !ok {
		store = false
		reg, isReg = inst.Args[0].(x86asm.Reg)
		mem, ok = inst.Args[1].(x86asm.Mem)
	}
	if !ok || !isReg || mem.Base != x86asm.RSP || mem.Index != 0 {
		return fmt.Errorf("unexpected instruction '%s'", inst.Text)
	}
	if mem.Disp < 0 || int(mem.Disp)+16 > depth {
		return fmt.Errorf("'%s' accesses stack outside of the reserved space", inst.Text)
	}

	slot := depth - int(mem.Disp)
	if store {
		saved[slot] = reg
		return nil
	}
	if saved[slot] != reg {
		return fmt.Errorf("'%s' does not restore the saved register", inst.Text)
	}
	delete(saved, slot)
	return nil
}

// VerifyPatch checks that the memory at address contains the expected bytes.
func VerifyPatch(logger *log.Logger, mem resolve.Reader, address uintptr, expected []byte) error {
	current, err := mem.Read(address, len(expected))
	if err != nil {
		return fmt.Errorf("reading patched site: %w", err)
	}
	if err := checkBufferEqual(logger, expected, current); err != nil {
		return fmt.Errorf("patch at 0x%X: %w", address, err)
	}
	return nil
}

func checkBufferEqual(logger *log.Logger, input, output []byte) error {
	if len(input) != len(output) {
		return fmt.Errorf("mismatched lengths, %d != %d", len(input), len(output))
	}

	var diffs uint64
	for i := range input {
		if input[i] == output[i] {
			continue
		}

		diffs++
		if diffs < 10 {
			logger.Warn("Offset mismatch",
				log.Hex("offset", i),
				log.Hex("expected", input[i]),
				log.Hex("got", output[i]))
		}
	}
	if diffs == 0 {
		return nil
	}
	return fmt.Errorf("%d offset mismatches", diffs)
}
