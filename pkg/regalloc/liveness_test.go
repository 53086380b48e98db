package regalloc

import (
	"testing"

	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
)

func ireg(id int) Reg { return Reg{ID: id, Class: mir.ClassInt, Width: mir.W32} }

func TestAnalyzeLivenessSimple(t *testing.T) {
	// x1 = 1; x2 = 2; x3 = add(x1,x2); return x3
	fn := &lir.LFunction{
		Blocks: []lir.LBlock{
			{
				ID: 0,
				Inst: []lir.Instruction{
					lir.Mov{Dst: ireg(1), Src: lir.ImmI64{Value: 1}},
					lir.Mov{Dst: ireg(2), Src: lir.ImmI64{Value: 2}},
					lir.Add{Dst: ireg(3), A: lir.RegOperand{Reg: ireg(1)}, B: lir.RegOperand{Reg: ireg(2)}},
				},
				Term: lir.Ret{Value: lir.RegOperand{Reg: ireg(3)}},
			},
		},
	}
	info := AnalyzeLiveness(fn)
	term := Node{Block: 0, Index: 3}
	if !info.LiveIn[term].Contains(ireg(3)) {
		t.Error("x3 should be live at the return")
	}
	if len(info.LiveOut[term]) != 0 {
		t.Error("nothing should be live after a return")
	}

	add := Node{Block: 0, Index: 2}
	if !info.LiveIn[add].Contains(ireg(1)) || !info.LiveIn[add].Contains(ireg(2)) {
		t.Error("x1 and x2 should be live entering the add")
	}
	if !info.LiveOut[add].Contains(ireg(3)) {
		t.Error("x3 should be live leaving the add")
	}
}

func TestAnalyzeLivenessWithBranch(t *testing.T) {
	fn := &lir.LFunction{
		Blocks: []lir.LBlock{
			{
				ID:   0,
				Inst: []lir.Instruction{lir.Mov{Dst: ireg(1), Src: lir.ImmI64{Value: 1}}},
				Term: lir.Branch{Cond: lir.RegOperand{Reg: ireg(1)}, IfTrue: 1, IfFalse: 2},
			},
			{
				ID:   1,
				Inst: []lir.Instruction{lir.Mov{Dst: ireg(2), Src: lir.ImmI64{Value: 10}}},
				Term: lir.Jump{Target: 3},
			},
			{
				ID:   2,
				Inst: []lir.Instruction{lir.Mov{Dst: ireg(2), Src: lir.ImmI64{Value: 20}}},
				Term: lir.Jump{Target: 3},
			},
			{
				ID:   3,
				Inst: nil,
				Term: lir.Ret{Value: lir.RegOperand{Reg: ireg(2)}},
			},
		},
	}
	info := AnalyzeLiveness(fn)
	branch := Node{Block: 0, Index: 1}
	if !info.LiveIn[branch].Contains(ireg(1)) {
		t.Error("x1 should be live at the branch condition")
	}
	if info.LiveIn[branch].Contains(ireg(2)) || info.LiveOut[branch].Contains(ireg(2)) {
		t.Error("x2 isn't defined yet at the branch")
	}
}

func TestAnalyzeLivenessAcrossCall(t *testing.T) {
	// n is a param; x2 = call f(n); x3 = add(n, x2); return x3
	// n must be live out of the call.
	n := ireg(1)
	dest := ireg(2)
	fn := &lir.LFunction{
		Params: []Reg{n},
		Blocks: []lir.LBlock{
			{
				ID: 0,
				Inst: []lir.Instruction{
					lir.Call{Dst: &dest, Target: lir.DirectCall{Sym: "f"}, Args: []lir.Operand{lir.RegOperand{Reg: n}}},
					lir.Add{Dst: ireg(3), A: lir.RegOperand{Reg: n}, B: lir.RegOperand{Reg: dest}},
				},
				Term: lir.Ret{Value: lir.RegOperand{Reg: ireg(3)}},
			},
		},
	}
	info := AnalyzeLiveness(fn)
	call := Node{Block: 0, Index: 0}
	if !info.LiveOut[call].Contains(n) {
		t.Error("n should be live out of the call since it's used after it")
	}
}
