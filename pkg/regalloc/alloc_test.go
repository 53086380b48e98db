package regalloc

import (
	"testing"

	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
)

func TestAllocateFunctionIdentityPrecolorsParamToArgRegister(t *testing.T) {
	p := ireg(0)
	fn := &lir.LFunction{
		Params: []Reg{p},
		Blocks: []lir.LBlock{
			{ID: 0, Term: lir.Ret{Value: lir.RegOperand{Reg: p}}},
		},
	}
	alloc := AllocateFunction(fn, target.AArch64())
	loc, ok := alloc.Location(p)
	if !ok {
		t.Fatal("expected a location for the sole parameter")
	}
	reg, ok := loc.(target.InReg)
	if !ok {
		t.Fatalf("expected InReg, got %T", loc)
	}
	if reg.Reg != "x0" {
		t.Fatalf("expected param in x0, got %s", reg.Reg)
	}
}

func TestAllocateFunctionSpillsWhenOutOfRegisters(t *testing.T) {
	// More simultaneously-live values than a tiny register file can hold.
	rf := target.RegisterFile{
		AllocatableGPR:      []target.PhysReg{"r0", "r1"},
		CallerSavedGPRCount: 2,
	}
	var insts []lir.Instruction
	var args []lir.Operand
	for i := 1; i <= 5; i++ {
		insts = append(insts, lir.Mov{Dst: ireg(i), Src: lir.ImmI64{Value: int64(i)}})
		args = append(args, lir.RegOperand{Reg: ireg(i)})
	}
	dest := ireg(100)
	insts = append(insts, lir.Call{Dst: &dest, Target: lir.DirectCall{Sym: "sink"}, Args: args})
	fn := &lir.LFunction{Blocks: []lir.LBlock{{ID: 0, Inst: insts, Term: lir.Ret{Value: lir.RegOperand{Reg: dest}}}}}

	alloc := AllocateFunction(fn, rf)
	spilled := 0
	for i := 1; i <= 5; i++ {
		loc, _ := alloc.Location(ireg(i))
		if _, ok := loc.(target.InSpill); ok {
			spilled++
		}
	}
	if spilled == 0 {
		t.Fatal("expected at least one spill with only 2 allocatable registers and 5 simultaneously live values")
	}
}

func TestAllocateFunctionKeepsFloatAndIntRegistersIndependent(t *testing.T) {
	rf := target.AArch64()
	a := ireg(1)
	f := Reg{ID: 2, Class: mir.ClassFloat, Width: mir.W64}
	fn := &lir.LFunction{
		Blocks: []lir.LBlock{
			{
				ID: 0,
				Inst: []lir.Instruction{
					lir.Mov{Dst: a, Src: lir.ImmI64{Value: 1}},
					lir.Mov{Dst: f, Src: lir.ImmF64{Value: 1}},
				},
				Term: lir.Ret{},
			},
		},
	}
	alloc := AllocateFunction(fn, rf)
	aLoc, _ := alloc.Location(a)
	if _, ok := aLoc.(target.InReg); !ok {
		t.Error("int register should be allocated")
	}
	fLoc, _ := alloc.Location(f)
	if _, ok := fLoc.(target.InReg); !ok {
		t.Error("float register should be allocated")
	}
}
