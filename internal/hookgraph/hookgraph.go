// Package hookgraph renders the control flow of planned hooks as Graphviz
// DOT graphs.
package hookgraph

import (
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"
	"golang.org/x/arch/x86/x86asm"
)

// Callee names of the calls a trampoline makes.
const (
	calleeHandler  = "handler"
	calleeOriginal = "original"
	calleeReturn   = "return"
)

// CallGraph returns the graph of every installed site calling its handler and
// its original target.
func CallGraph(reports []hook.Report) *lattice.Graph {
	g := &lattice.Graph{}
	for _, report := range reports {
		if report.Err != nil {
			continue
		}
		site := report.Site
		handler := fmt.Sprintf("handler_0x%X", site.Handler)
		original := fmt.Sprintf("sub_0x%X", site.OriginalTarget)
		g.Nodes = append(g.Nodes, site.Name, handler, original)
		g.Edges = append(g.Edges,
			lattice.Edge{Caller: site.Name, Callee: handler, Args: []string{string(site.Variant)}},
			lattice.Edge{Caller: site.Name, Callee: original},
		)
	}
	g.Dedup()
	return g
}

// CFG returns the control flow graph of the trampolines of all installed
// sites. Every call ends a block, the final block jumps back to the host.
func CFG(reports []hook.Report) (*lattice.CFGGraph, error) {
	g := &lattice.CFGGraph{}
	for _, report := range reports {
		if report.Err != nil {
			continue
		}
		f, err := trampolineCFG(report.Site)
		if err != nil {
			return nil, fmt.Errorf("site '%s': %w", report.Name, err)
		}
		g.Funcs = append(g.Funcs, f)
	}
	return g, nil
}

func trampolineCFG(site *hook.Site) (*lattice.FuncCFG, error) {
	if len(site.Code) < x64.AbsJumpSize {
		return nil, fmt.Errorf("trampoline of %d bytes is truncated", len(site.Code))
	}
	code := site.Code[:len(site.Code)-x64.AbsJumpLiteralSize]
	insts, err := x64.Decode(code, 0)
	if err != nil {
		return nil, fmt.Errorf("decoding trampoline: %w", err)
	}

	f := &lattice.FuncCFG{Name: site.Name}
	block := &lattice.BasicBlock{}
	var loaded uint64

	for _, inst := range insts {
		offset := int(inst.Addr)
		switch inst.Op {
		case x86asm.MOV:
			if imm, ok := inst.Args[1].(x86asm.Imm); ok {
				loaded = uint64(imm)
			}

		case x86asm.CALL:
			block.Calls = append(block.Calls, lattice.CallSite{
				Offset: offset,
				Callee: calleeName(site, loaded),
			})
			block.End = offset + inst.Len
			block.Succs = []lattice.Successor{{BlockID: block.ID + 1}}
			f.Blocks = append(f.Blocks, block)
			block = &lattice.BasicBlock{ID: block.ID + 1, Start: block.End}

		case x86asm.JMP:
			block.Calls = append(block.Calls, lattice.CallSite{
				Offset: offset,
				Callee: calleeReturn,
				Args:   []string{fmt.Sprintf("0x%X", site.Return)},
			})
			block.End = offset + inst.Len
			block.Term = true
		}
	}
	if block.End == 0 {
		block.End = len(code)
	}
	f.Blocks = append(f.Blocks, block)
	return f, nil
}

func calleeName(site *hook.Site, target uint64) string {
	switch uintptr(target) {
	case site.Handler:
		return calleeHandler
	case site.OriginalTarget:
		return calleeOriginal
	default:
		return fmt.Sprintf("0x%X", target)
	}
}

// DOT renders the call graph of the reports.
func DOT(reports []hook.Report, title string) string {
	return render.DOT(CallGraph(reports), title)
}

// DOTCFG renders the trampoline control flow graphs of the reports.
func DOTCFG(reports []hook.Report, title string) (string, error) {
	g, err := CFG(reports)
	if err != nil {
		return "", err
	}
	return render.DOTCFG(g, title), nil
}
