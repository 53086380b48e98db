package regalloc

import (
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
)

// Allocation is the final mapping from an LFunction's virtual registers
// to physical locations, plus the bookkeeping pkg/frame and pkg/emit
// need to build the stack frame.
type Allocation struct {
	Loc             map[Reg]target.Loc
	UsedCalleeSaved []target.PhysReg
	SpillSlots      int
}

func (al *Allocation) Location(r lir.Reg) (target.Loc, bool) {
	loc, ok := al.Loc[r]
	return loc, ok
}

// AllocateFunction colors fn's virtual registers against rf, running the
// IRC algorithm once for integer registers and once for float registers:
// pkg/lir keeps the two classes in disjoint numbering and they never
// interfere with each other, so they're independent coloring problems.
func AllocateFunction(fn *lir.LFunction, rf target.RegisterFile) *Allocation {
	liveness := AnalyzeLiveness(fn)

	isInt := func(r Reg) bool { return r.Class == mir.ClassInt }
	isFloat := func(r Reg) bool { return r.Class == mir.ClassFloat }

	intResult := runClass(fn, liveness, isInt, len(rf.AllocatableGPR), rf.CallerSavedGPRCount, rf.ArgGPR, 0)
	floatResult := runClass(fn, liveness, isFloat, len(rf.AllocatableFPR), rf.CallerSavedFPRCount, rf.ArgFPR, intResult.nextSpill)

	alloc := &Allocation{Loc: make(map[Reg]target.Loc)}
	usedCallee := make(map[target.PhysReg]bool)

	// Color indices run [caller-saved...][callee-saved...] in rf's lists,
	// so a color at or beyond CallerSaved*Count names a callee-saved reg.
	apply := func(result *classResult, regs []target.PhysReg, calleeCount int) {
		for r, color := range result.colors {
			if result.spilled.Contains(r) || color >= len(regs) {
				continue
			}
			phys := regs[color]
			alloc.Loc[r] = target.InReg{Reg: phys}
			if color >= calleeCount {
				usedCallee[phys] = true
			}
		}
		for r := range result.spilled {
			alloc.Loc[r] = target.InSpill{Slot: result.spillSlot[r]}
		}
	}

	apply(intResult, rf.AllocatableGPR, rf.CallerSavedGPRCount)
	apply(floatResult, rf.AllocatableFPR, rf.CallerSavedFPRCount)

	for phys, used := range usedCallee {
		if used {
			alloc.UsedCalleeSaved = append(alloc.UsedCalleeSaved, phys)
		}
	}
	alloc.SpillSlots = floatResult.nextSpill

	return alloc
}

// runClass builds the interference graph for one register class and
// colors it, precoloring used non-call-crossing parameters to their
// calling-convention argument registers.
func runClass(fn *lir.LFunction, liveness *LivenessInfo, include func(Reg) bool, k, callerCount int, argRegs []target.PhysReg, startSpillSlot int) *classResult {
	graph := BuildInterferenceGraph(fn, liveness, include)

	precolored := make(map[Reg]int)
	argIdx := 0
	for _, p := range fn.Params {
		if !include(p) {
			continue
		}
		idx := argIdx
		argIdx++
		if graph.LiveAcrossCalls.Contains(p) {
			// Live across a call: leave it uncolored so it gets a
			// callee-saved register instead of being clobbered.
			continue
		}
		if idx < len(argRegs) {
			precolored[p] = idx
		}
	}

	if k == 0 {
		// No registers of this class at all: every node of this class
		// spills immediately.
		result := &classResult{colors: map[Reg]int{}, spillSlot: map[Reg]int{}, spilled: NewRegSet(), nextSpill: startSpillSlot}
		for r := range graph.Nodes {
			result.spilled.Add(r)
			result.spillSlot[r] = result.nextSpill
			result.nextSpill++
		}
		return result
	}

	a := newAllocator(graph, k, callerCount, startSpillSlot, precolored)
	return a.allocate()
}
