// Package target describes what pkg/regalloc and pkg/frame need to know
// about a concrete machine: the physical registers available and how
// they're partitioned by the platform calling convention. pkg/emit/*
// implements the Emitter interface declared here to turn an allocated
// LFunction into assembly text.
package target

import (
	"github.com/quorlang/quorc/pkg/frame"
	"github.com/quorlang/quorc/pkg/lir"
)

// PhysReg names a physical register, e.g. "x9" or "rbx". Two PhysRegs
// from different architectures are never compared, so a bare string is
// enough; pkg/emit's printers own the final asm spelling.
type PhysReg string

// RegisterFile enumerates one architecture's registers and calling
// convention, generalizing the Rust TargetRegs trait into a plain value
// instead of a trait with one impl per architecture.
type RegisterFile struct {
	Name string

	// AllocatableGPR and AllocatableFPR list the registers regalloc may
	// assign, caller-saved entries first: this lets regalloc pick
	// "colors >= CallerSavedGPRCount" to mean callee-saved, matching the
	// convention the coloring pass relies on.
	AllocatableGPR []PhysReg
	AllocatableFPR []PhysReg

	CallerSavedGPRCount int
	CallerSavedFPRCount int

	// ArgGPR and ArgFPR are the registers incoming/outgoing arguments are
	// passed in, in order.
	ArgGPR []PhysReg
	ArgFPR []PhysReg

	RetGPR PhysReg
	RetFPR PhysReg

	SP, FP PhysReg
	// LR is the link register holding the return address; empty on
	// architectures (x86-64) where the return address lives on the
	// stack instead.
	LR PhysReg

	// Scratch and Scratch2 are registers regalloc never allocates,
	// reserved for the emitter's own use: materializing addresses, and
	// reloading spilled operands at the point of use (an instruction
	// with two spilled operands needs both at once).
	Scratch  PhysReg
	Scratch2 PhysReg
}

// Emitter turns one allocated function into assembly text. Grounded on
// the TargetEmitter capability split (prologue/epilogue/instruction/
// terminator/global), one concrete implementation per architecture.
type Emitter interface {
	EmitGlobalConst(g lir.LProgram, id int) string

	Prologue(fn *lir.LFunction, fl *frame.Layout, usedCalleeSaved []PhysReg) string
	Epilogue(fn *lir.LFunction, fl *frame.Layout, usedCalleeSaved []PhysReg) string

	EmitInstruction(instr lir.Instruction, fl *frame.Layout, alloc Locator) string
	EmitTerminator(term lir.Terminator, fl *frame.Layout, alloc Locator, blockLabel func(id int) string) string
}

// Locator is the subset of a regalloc.Allocation that emitters need:
// where a virtual register physically lives.
type Locator interface {
	Location(r lir.Reg) (Loc, bool)
}

// Loc is where regalloc placed a virtual register.
type Loc interface {
	implLoc()
}

// InReg is a register-resident value.
type InReg struct{ Reg PhysReg }

// InSpill is a stack-resident value, identified by an 8-byte-granularity
// slot index that pkg/frame resolves to a concrete frame offset.
type InSpill struct{ Slot int }

func (InReg) implLoc()   {}
func (InSpill) implLoc() {}
