package x86

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

func TestPrologueReservesFrameAndSpillsCalleeSaves(t *testing.T) {
	e := New()
	fl := &frame.Layout{TotalSize: 32, SavedRegBytes: 8, CalleeSaveOffset: 8}
	out := e.Prologue(&lir.LFunction{Name: "f"}, fl, []target.PhysReg{"rbx"})
	if !strings.Contains(out, "pushq\t%rbp") || !strings.Contains(out, "movq\t%rsp, %rbp") {
		t.Errorf("missing frame setup: %q", out)
	}
	if !strings.Contains(out, "subq\t$24, %rsp") {
		t.Errorf("expected stack reservation for body size, got %q", out)
	}
	if !strings.Contains(out, "movq\t%rbx, -8(%rbp)") {
		t.Errorf("missing callee-save spill: %q", out)
	}
}

func TestEpilogueRestoresAndLeaves(t *testing.T) {
	e := New()
	fl := &frame.Layout{CalleeSaveOffset: 8}
	out := e.Epilogue(&lir.LFunction{Name: "f"}, fl, []target.PhysReg{"rbx"})
	if !strings.Contains(out, "movq\t-8(%rbp), %rbx") {
		t.Errorf("missing callee-save reload: %q", out)
	}
	if !strings.Contains(out, "leave") || !strings.Contains(out, "ret") {
		t.Errorf("expected leave/ret, got %q", out)
	}
}

func TestPrologueAndEpilogueSkipFrameForNoFrame(t *testing.T) {
	e := New()
	fl := &frame.Layout{}
	fn := &lir.LFunction{Name: "raw", NoFrame: true}
	pro := e.Prologue(fn, fl, nil)
	if strings.Contains(pro, "pushq") || strings.Contains(pro, "subq") {
		t.Errorf("expected no frame setup for @no_frame function, got %q", pro)
	}
	if !strings.Contains(pro, "raw:") {
		t.Errorf("expected function label to still be emitted, got %q", pro)
	}
	epi := e.Epilogue(fn, fl, nil)
	if strings.Contains(epi, "leave") {
		t.Errorf("expected no leave for @no_frame function, got %q", epi)
	}
	if !strings.Contains(epi, "ret") {
		t.Errorf("expected bare ret, got %q", epi)
	}
}

func TestEmitInstructionCallZerosAlForVariadic(t *testing.T) {
	e := New()
	out := e.EmitInstruction(lir.Call{Target: lir.DirectCall{Sym: "printf"}, Variadic: true}, &frame.Layout{}, fakeLocator{})
	if !strings.Contains(out, "xorl\t%eax, %eax") {
		t.Errorf("expected %%al/%%eax zeroed before a variadic call, got %q", out)
	}
	callIdx := strings.Index(out, "call\tprintf")
	zeroIdx := strings.Index(out, "xorl")
	if callIdx == -1 || zeroIdx == -1 || zeroIdx > callIdx {
		t.Errorf("expected the zeroing instruction before call, got %q", out)
	}
}

func TestEmitInstructionCallSkipsAlZeroForNonVariadic(t *testing.T) {
	e := New()
	out := e.EmitInstruction(lir.Call{Target: lir.DirectCall{Sym: "add"}}, &frame.Layout{}, fakeLocator{})
	if strings.Contains(out, "xorl\t%eax, %eax") {
		t.Errorf("expected no %%al zeroing for a non-variadic call, got %q", out)
	}
}

func TestEmitInstructionAddMovesAThenAddsB(t *testing.T) {
	e := New()
	a, bb, dst := ireg(1), ireg(2), ireg(3)
	loc := fakeLocator{
		a:   target.InReg{Reg: "rcx"},
		bb:  target.InReg{Reg: "rsi"},
		dst: target.InReg{Reg: "rdi"},
	}
	out := e.EmitInstruction(lir.Add{Dst: dst, A: lir.RegOperand{Reg: a}, B: lir.RegOperand{Reg: bb}}, &frame.Layout{}, loc)
	if !strings.Contains(out, "movq\t%rcx, %rdi") {
		t.Errorf("expected A moved into Dst first: %q", out)
	}
	if !strings.Contains(out, "addq\t%rsi, %rdi") {
		t.Errorf("expected in-place add: %q", out)
	}
}

func TestEmitInstructionDivUsesRaxRdx(t *testing.T) {
	e := New()
	a, bb, dst := ireg(1), ireg(2), ireg(3)
	loc := fakeLocator{
		a:   target.InReg{Reg: "rcx"},
		bb:  target.InReg{Reg: "rsi"},
		dst: target.InReg{Reg: "rdi"},
	}
	out := e.EmitInstruction(lir.Div{Dst: dst, A: lir.RegOperand{Reg: a}, B: lir.RegOperand{Reg: bb}}, &frame.Layout{}, loc)
	if !strings.Contains(out, "cqto") || !strings.Contains(out, "idivq\t%rsi") {
		t.Errorf("expected cqto/idivq sequence: %q", out)
	}
	if !strings.Contains(out, "movq\t%rax, %rdi") {
		t.Errorf("expected quotient moved from rax: %q", out)
	}
}

func TestEmitInstructionModTakesRemainderFromRdx(t *testing.T) {
	e := New()
	a, bb, dst := ireg(1), ireg(2), ireg(3)
	loc := fakeLocator{
		a:   target.InReg{Reg: "rcx"},
		bb:  target.InReg{Reg: "rsi"},
		dst: target.InReg{Reg: "rdi"},
	}
	out := e.EmitInstruction(lir.Mod{Dst: dst, A: lir.RegOperand{Reg: a}, B: lir.RegOperand{Reg: bb}}, &frame.Layout{}, loc)
	if !strings.Contains(out, "movq\t%rdx, %rdi") {
		t.Errorf("expected remainder moved from rdx: %q", out)
	}
}

func TestEmitTerminatorBranch(t *testing.T) {
	e := New()
	cond := ireg(1)
	loc := fakeLocator{cond: target.InReg{Reg: "rcx"}}
	label := func(id int) string { return "L" + string(rune('0'+id)) }
	out := e.EmitTerminator(lir.Branch{Cond: lir.RegOperand{Reg: cond}, IfTrue: 1, IfFalse: 2}, &frame.Layout{}, loc, label)
	if !strings.Contains(out, "cmpq\t$0, %rcx") || !strings.Contains(out, "jne\tL1") || !strings.Contains(out, "jmp\tL2") {
		t.Errorf("unexpected branch lowering: %q", out)
	}
}
