package arm64

import (
	"strings"
	"testing"

	"github.com/quorlang/quorc/pkg/frame"
	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/target"
)

type fakeLocator map[lir.Reg]target.Loc

func (f fakeLocator) Location(r lir.Reg) (target.Loc, bool) {
	l, ok := f[r]
	return l, ok
}

func ireg(id int) lir.Reg { return lir.Reg{ID: id, Class: mir.ClassInt, Width: mir.W64} }

func TestPrologueEmitsFrameReservationAndCalleeSaves(t *testing.T) {
	e := &Emitter{isDarwin: false, rf: target.AArch64()}
	fn := &lir.LFunction{Name: "add_one"}
	fl := &frame.Layout{TotalSize: 32, CalleeSaveOffset: 16}
	out := e.Prologue(fn, fl, []target.PhysReg{"x19", "x20"})
	if !strings.Contains(out, "add_one:") {
		t.Errorf("missing function label: %q", out)
	}
	if !strings.Contains(out, "stp\tx29, x30, [sp, #-32]!") {
		t.Errorf("missing frame reservation: %q", out)
	}
	if !strings.Contains(out, "stp\tx19, x20, [x29, #16]") {
		t.Errorf("missing callee-save spill: %q", out)
	}
}

func TestPrologueDarwinPrefixesSymbol(t *testing.T) {
	e := &Emitter{isDarwin: true, rf: target.AArch64()}
	out := e.Prologue(&lir.LFunction{Name: "main"}, &frame.Layout{}, nil)
	if !strings.Contains(out, "_main:") {
		t.Errorf("expected darwin symbol prefix, got %q", out)
	}
}

func TestEpilogueRestoresCalleeSavesAndReturns(t *testing.T) {
	e := &Emitter{isDarwin: false, rf: target.AArch64()}
	fl := &frame.Layout{TotalSize: 32, CalleeSaveOffset: 16}
	out := e.Epilogue(&lir.LFunction{Name: "f"}, fl, []target.PhysReg{"x19"})
	if !strings.Contains(out, "ldr\tx19, [x29, #16]") {
		t.Errorf("missing callee-save reload: %q", out)
	}
	if !strings.Contains(out, "ret") {
		t.Errorf("missing ret: %q", out)
	}
}

func TestEmitInstructionAddWithSpilledOperand(t *testing.T) {
	e := New()
	a, b, dst := ireg(1), ireg(2), ireg(3)
	loc := fakeLocator{
		a:   target.InSpill{Slot: 0},
		b:   target.InReg{Reg: "x9"},
		dst: target.InReg{Reg: "x10"},
	}
	fl := &frame.Layout{SpillOffset: 0}
	out := e.EmitInstruction(lir.Add{Dst: dst, A: lir.RegOperand{Reg: a}, B: lir.RegOperand{Reg: b}}, fl, loc)
	if !strings.Contains(out, "ldr\tx16, [x29, #0]") {
		t.Errorf("expected spill reload before use: %q", out)
	}
	if !strings.Contains(out, "add\tx10, x16, x9") {
		t.Errorf("expected add using reloaded scratch: %q", out)
	}
}

func TestEmitInstructionStoreSpillsDestination(t *testing.T) {
	e := New()
	dst := ireg(1)
	loc := fakeLocator{dst: target.InSpill{Slot: 1}}
	fl := &frame.Layout{SpillOffset: 0}
	out := e.EmitInstruction(lir.Mov{Dst: dst, Src: lir.ImmI64{Value: 42}}, fl, loc)
	if !strings.Contains(out, "mov\tx16, #42") {
		t.Errorf("expected move into scratch: %q", out)
	}
	if !strings.Contains(out, "str\tx16, [x29, #8]") {
		t.Errorf("expected spill store after def: %q", out)
	}
}

func TestEmitTerminatorBranch(t *testing.T) {
	e := New()
	cond := ireg(1)
	loc := fakeLocator{cond: target.InReg{Reg: "x9"}}
	label := func(id int) string { return "L" + string(rune('0'+id)) }
	out := e.EmitTerminator(lir.Branch{Cond: lir.RegOperand{Reg: cond}, IfTrue: 1, IfFalse: 2}, &frame.Layout{}, loc, label)
	if !strings.Contains(out, "cmp\tx9, #0") || !strings.Contains(out, "bne\tL1") || !strings.Contains(out, "b\tL2") {
		t.Errorf("unexpected branch lowering: %q", out)
	}
}

func TestEmitGlobalConstString(t *testing.T) {
	e := New()
	prog := lir.LProgram{GlobalConsts: []mir.GlobalDef{{ID: 0, Value: mir.StringValue{Value: "hi"}}}}
	out := e.EmitGlobalConst(prog, 0)
	if !strings.Contains(out, "__q_g_0:") || !strings.Contains(out, ".asciz \"hi\"") {
		t.Errorf("unexpected global const text: %q", out)
	}
}
