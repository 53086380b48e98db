package regalloc

import (
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
)

// Node addresses one instruction within an LFunction: Index in
// [0,len(Inst)) names an ordinary instruction, Index == len(Inst) names
// the block's terminator. LIR is block-structured rather than the
// teacher's one-instruction-per-CFG-node RTL, so liveness here walks
// (block, index) pairs instead of rtl.Node, but the dataflow equations
// and the Def/Use/LiveIn/LiveOut shape are the same.
type Node struct {
	Block mir.BlockId
	Index int
}

// LivenessInfo holds the per-node def/use sets and the fixed point of
// the backward liveness dataflow.
type LivenessInfo struct {
	Def     map[Node]RegSet
	Use     map[Node]RegSet
	LiveIn  map[Node]RegSet
	LiveOut map[Node]RegSet
}

// ComputeDefUse returns the registers each node defines and uses,
// without running the liveness fixed point.
func ComputeDefUse(fn *lir.LFunction) (def, use map[Node]RegSet) {
	def = make(map[Node]RegSet)
	use = make(map[Node]RegSet)
	for _, b := range fn.Blocks {
		for i, instr := range b.Inst {
			n := Node{Block: b.ID, Index: i}
			d, u := instructionDefUse(instr)
			def[n] = d
			use[n] = u
		}
		term := Node{Block: b.ID, Index: len(b.Inst)}
		def[term] = NewRegSet()
		use[term] = terminatorUse(b.Term)
	}
	return def, use
}

// AnalyzeLiveness runs the backward liveness dataflow to a fixed point.
func AnalyzeLiveness(fn *lir.LFunction) *LivenessInfo {
	def, use := ComputeDefUse(fn)
	blockByID := make(map[mir.BlockId]*lir.LBlock, len(fn.Blocks))
	for i := range fn.Blocks {
		blockByID[fn.Blocks[i].ID] = &fn.Blocks[i]
	}

	var allNodes []Node
	for _, b := range fn.Blocks {
		for i := 0; i <= len(b.Inst); i++ {
			allNodes = append(allNodes, Node{Block: b.ID, Index: i})
		}
	}

	liveIn := make(map[Node]RegSet, len(allNodes))
	liveOut := make(map[Node]RegSet, len(allNodes))
	for _, n := range allNodes {
		liveIn[n] = NewRegSet()
		liveOut[n] = NewRegSet()
	}

	succs := func(n Node) []Node {
		b := blockByID[n.Block]
		if n.Index < len(b.Inst) {
			return []Node{{Block: n.Block, Index: n.Index + 1}}
		}
		switch t := b.Term.(type) {
		case lir.Jump:
			return []Node{{Block: t.Target, Index: 0}}
		case lir.Branch:
			return []Node{{Block: t.IfTrue, Index: 0}, {Block: t.IfFalse, Index: 0}}
		default: // lir.Ret
			return nil
		}
	}

	for {
		changed := false
		for i := len(allNodes) - 1; i >= 0; i-- {
			n := allNodes[i]
			newOut := NewRegSet()
			for _, s := range succs(n) {
				newOut = newOut.Union(liveIn[s])
			}
			newIn := use[n].Union(newOut.Minus(def[n]))

			if !newOut.Equal(liveOut[n]) || !newIn.Equal(liveIn[n]) {
				liveOut[n] = newOut
				liveIn[n] = newIn
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	return &LivenessInfo{Def: def, Use: use, LiveIn: liveIn, LiveOut: liveOut}
}

func operandRegs(o lir.Operand) []Reg {
	if ro, ok := o.(lir.RegOperand); ok {
		return []Reg{ro.Reg}
	}
	return nil
}

func addrRegs(a lir.Addr) []Reg {
	switch x := a.(type) {
	case lir.BaseOff:
		return []Reg{x.Base}
	case lir.BaseIndex:
		return []Reg{x.Base, x.Index}
	default: // GlobalAddr, LocalAddr: no register operands
		return nil
	}
}

func instructionDefUse(instr lir.Instruction) (def, use RegSet) {
	def, use = NewRegSet(), NewRegSet()
	addUse := func(regs ...Reg) {
		for _, r := range regs {
			use.Add(r)
		}
	}
	switch i := instr.(type) {
	case lir.Add:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.Sub:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.Mul:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.Div:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.Mod:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.CmpSet:
		def.Add(i.Dst)
		addUse(operandRegs(i.A)...)
		addUse(operandRegs(i.B)...)
	case lir.Cast:
		def.Add(i.Dst)
		addUse(operandRegs(i.Src)...)
	case lir.Load:
		def.Add(i.Dst)
		addUse(addrRegs(i.Addr)...)
	case lir.Store:
		addUse(operandRegs(i.Src)...)
		addUse(addrRegs(i.Addr)...)
	case lir.Call:
		if i.Dst != nil {
			def.Add(*i.Dst)
		}
		for _, a := range i.Args {
			addUse(operandRegs(a)...)
		}
		if ind, ok := i.Target.(lir.IndirectCall); ok {
			addUse(ind.Reg)
		}
	case lir.Mov:
		def.Add(i.Dst)
		addUse(operandRegs(i.Src)...)
	case lir.Lea:
		def.Add(i.Dst)
		addUse(addrRegs(i.Addr)...)
	}
	return def, use
}

func terminatorUse(term lir.Terminator) RegSet {
	use := NewRegSet()
	switch t := term.(type) {
	case lir.Ret:
		if t.Value != nil {
			for _, r := range operandRegs(t.Value) {
				use.Add(r)
			}
		}
	case lir.Branch:
		for _, r := range operandRegs(t.Cond) {
			use.Add(r)
		}
	}
	return use
}

func isCallNode(instr lir.Instruction) bool {
	_, ok := instr.(lir.Call)
	return ok
}

func isMoveNode(instr lir.Instruction) (src Reg, ok bool) {
	mv, ok := instr.(lir.Mov)
	if !ok {
		return Reg{}, false
	}
	ro, ok := mv.Src.(lir.RegOperand)
	if !ok {
		return Reg{}, false
	}
	return ro.Reg, true
}
