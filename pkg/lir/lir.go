// Package lir defines the Low-level IR: one step closer to machine code
// than mir, with explicit addressing modes and comparison ops, but still
// expressed over virtual registers. Register allocation (pkg/regalloc)
// assigns each lir.Reg a physical location without changing this shape;
// pkg/emit/* walks an LFunction plus that allocation to produce text.
package lir

import (
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

// Reg is a virtual register, carried over unchanged from MIR: quorc has
// exactly one IR between the typed AST and LIR, so there is no second
// virtual-register numbering to invent.
type Reg = mir.VReg

// Operand is an LInst's register or immediate argument.
type Operand interface {
	implOperand()
}

type RegOperand struct{ Reg Reg }
type ImmI64 struct{ Value int64 }
type ImmF64 struct{ Value float64 }

func (RegOperand) implOperand() {}
func (ImmI64) implOperand()     {}
func (ImmF64) implOperand()     {}

// Addr is a memory addressing mode selected during MIR->LIR lowering.
type Addr interface {
	implAddr()
}

// BaseOff is [base + off].
type BaseOff struct {
	Base   Reg
	Offset int32
}

// BaseIndex is [base + index*scale + off].
type BaseIndex struct {
	Base, Index Reg
	Scale       int
	Offset      int32
}

// GlobalAddr materializes the address of a global constant plus offset.
type GlobalAddr struct {
	Sym    int
	Offset int32
}

// LocalAddr names a stack-local slot by its frame-relative index, plus a
// byte offset into it (e.g. a struct field). pkg/frame resolves Index to
// a concrete frame-pointer offset once the frame layout is known; until
// then this is the only Addr variant that isn't already a fixed address.
type LocalAddr struct {
	Index  int
	Offset int32
}

func (BaseOff) implAddr()    {}
func (BaseIndex) implAddr()  {}
func (GlobalAddr) implAddr() {}
func (LocalAddr) implAddr()  {}

// CmpOp is the comparison performed by CmpSet.
type CmpOp int

const (
	CmpEq CmpOp = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

func (op CmpOp) String() string {
	switch op {
	case CmpEq:
		return "eq"
	case CmpNe:
		return "ne"
	case CmpLt:
		return "lt"
	case CmpLe:
		return "le"
	case CmpGt:
		return "gt"
	case CmpGe:
		return "ge"
	default:
		return "?"
	}
}

// CallTarget is who a Call instruction invokes.
type CallTarget interface {
	implCallTarget()
}

type DirectCall struct{ Sym string }
type IndirectCall struct{ Reg Reg }

func (DirectCall) implCallTarget()   {}
func (IndirectCall) implCallTarget() {}

// Instruction is one non-terminating LIR operation.
type Instruction interface {
	implLInst()
}

type Add struct {
	Dst  Reg
	A, B Operand
}
type Sub struct {
	Dst  Reg
	A, B Operand
}
type Mul struct {
	Dst  Reg
	A, B Operand
}
type Div struct {
	Dst  Reg
	A, B Operand
}
type Mod struct {
	Dst  Reg
	A, B Operand
}

// CmpSet computes A `op` B and stores 0/1 in Dst.
type CmpSet struct {
	Dst  Reg
	Op   CmpOp
	A, B Operand
}

// Cast reinterprets/converts Src to Ty, storing the result in Dst.
type Cast struct {
	Dst Reg
	Src Operand
	Ty  types.Type
}

type Load struct {
	Dst  Reg
	Addr Addr
	Ty   types.Type
}

type Store struct {
	Src  Operand
	Addr Addr
	Ty   types.Type
}

// Call invokes Target; Dst is nil for a void call. Variadic marks a call
// to a function declared @variadic, which on x86-64 requires the caller
// to zero %al (the vector-register count) before the call instruction.
type Call struct {
	Dst      *Reg
	Target   CallTarget
	Args     []Operand
	Variadic bool
}

type Mov struct {
	Dst Reg
	Src Operand
}

// Lea materializes Addr itself (address-of) rather than the value at it.
type Lea struct {
	Dst  Reg
	Addr Addr
}

func (Add) implLInst()    {}
func (Sub) implLInst()    {}
func (Mul) implLInst()    {}
func (Div) implLInst()    {}
func (Mod) implLInst()    {}
func (CmpSet) implLInst() {}
func (Cast) implLInst()   {}
func (Load) implLInst()   {}
func (Store) implLInst()  {}
func (Call) implLInst()   {}
func (Mov) implLInst()    {}
func (Lea) implLInst()    {}

// Terminator is a block's single control-flow exit.
type Terminator interface {
	implLTerm()
}

type Ret struct{ Value Operand } // Value == nil for a void return
type Jump struct{ Target mir.BlockId }
type Branch struct {
	Cond           Operand
	IfTrue, IfFalse mir.BlockId
}

func (Ret) implLTerm()    {}
func (Jump) implLTerm()   {}
func (Branch) implLTerm() {}

// LBlock is one LIR basic block.
type LBlock struct {
	ID   mir.BlockId
	Inst []Instruction
	Term Terminator
}

// LFunction is one function lowered to LIR, still over virtual registers.
// NoFrame carries @no_frame forward: pkg/frame skips frame-size
// computation for it and the pkg/emit emitters skip its prologue/epilogue.
type LFunction struct {
	Name    string
	Params  []Reg
	RetType types.Type
	Blocks  []LBlock
	Entry   mir.BlockId
	NoFrame bool
}

// Block returns the block with the given id, if present.
func (f *LFunction) Block(id mir.BlockId) (*LBlock, bool) {
	for i := range f.Blocks {
		if f.Blocks[i].ID == id {
			return &f.Blocks[i], true
		}
	}
	return nil, false
}

// LProgram is a whole translation unit in LIR, carrying forward the
// globals and struct layouts MIR already resolved.
type LProgram struct {
	Externs      []string
	Functions    map[string]*LFunction
	GlobalConsts []mir.GlobalDef
	Structs      map[string]*mir.StructDef
}

func NewLProgram() *LProgram {
	return &LProgram{Functions: make(map[string]*LFunction)}
}
