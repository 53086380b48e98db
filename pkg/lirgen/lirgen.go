// Package lirgen lowers MIR into LIR: one mir.Instruction becomes one or
// a short fixed sequence of lir.Instructions, addressing modes are
// selected for every memory access, and Memcpy is expanded into
// word-sized load/store pairs. Registers stay virtual; pkg/regalloc
// assigns them physical locations afterward.
package lirgen

import (
	"fmt"

	"github.com/quorlang/quorc/pkg/lir"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

// Generate lowers a whole MIR program to LIR.
func Generate(prog *mir.IRProgram) (*lir.LProgram, error) {
	out := lir.NewLProgram()
	out.Externs = prog.Externs
	out.GlobalConsts = prog.GlobalConsts
	out.Structs = prog.Structs

	variadic := make(map[string]bool)
	for name, fn := range prog.Functions {
		if mir.HasAttribute[mir.VariadicDecl](fn) {
			variadic[name] = true
		}
	}

	for name, fn := range prog.Functions {
		lf, err := generateFunction(fn, variadic)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		out.Functions[name] = lf
	}
	return out, nil
}

// funcGen holds the per-function state needed to mint scratch registers
// that don't collide with any register already live in this function,
// plus the whole-program set of functions declared @variadic so call
// sites can be marked for the x86-64 %al-zeroing ABI rule.
type funcGen struct {
	nextID   int
	variadic map[string]bool
}

func generateFunction(fn *mir.IRFunction, variadic map[string]bool) (*lir.LFunction, error) {
	g := &funcGen{nextID: maxVReg(fn) + 1, variadic: variadic}

	blocks := make([]lir.LBlock, 0, len(fn.Blocks))
	for _, blk := range fn.Blocks {
		lb, err := g.generateBlock(blk)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, lb)
	}

	return &lir.LFunction{
		Name:    fn.Name,
		Params:  fn.Params,
		RetType: fn.RetType,
		Blocks:  blocks,
		Entry:   fn.Entry,
		NoFrame: mir.HasAttribute[mir.NoFrameDecl](fn),
	}, nil
}

func (g *funcGen) freshReg(class mir.VRegClass, width mir.RegWidth) lir.Reg {
	r := mir.VReg{ID: g.nextID, Class: class, Width: width}
	g.nextID++
	return r
}

func (g *funcGen) generateBlock(blk mir.IRBlock) (lir.LBlock, error) {
	out := lir.LBlock{ID: blk.ID}
	for _, instr := range blk.Instructions {
		translated, err := g.translateInstruction(instr)
		if err != nil {
			return lir.LBlock{}, err
		}
		out.Inst = append(out.Inst, translated...)
	}
	term, err := g.translateTerminator(blk.Terminator)
	if err != nil {
		return lir.LBlock{}, err
	}
	out.Term = term
	return out, nil
}

// operand converts a value that can only ever be a register or an
// immediate (never a bare Local/Global) into a lir.Operand.
func (g *funcGen) operand(v mir.Value) lir.Operand {
	switch x := v.(type) {
	case mir.Reg:
		return lir.RegOperand{Reg: x.Reg}
	case mir.Const:
		return lir.ImmI64{Value: x.Value}
	case mir.ConstFloat:
		return lir.ImmF64{Value: x.Value}
	default:
		// Local/Global reaching here means an address slipped into a
		// value position; materialize it rather than drop it silently.
		tmp := g.freshReg(mir.ClassInt, mir.W64)
		return lir.RegOperand{Reg: tmp}
	}
}

// resolveAddr turns an addressable MIR value (Local, Global, or a
// register already holding a raw pointer) plus a constant byte offset
// into an LIR addressing mode.
func (g *funcGen) resolveAddr(v mir.Value, offset int32) lir.Addr {
	switch a := v.(type) {
	case mir.Local:
		return lir.LocalAddr{Index: a.Index, Offset: offset}
	case mir.Global:
		return lir.GlobalAddr{Sym: a.Index, Offset: offset}
	case mir.Reg:
		return lir.BaseOff{Base: a.Reg, Offset: offset}
	default:
		tmp := g.freshReg(mir.ClassInt, mir.W64)
		return lir.BaseOff{Base: tmp, Offset: offset}
	}
}

// addConstOffset folds an extra constant byte offset into an already
// resolved addressing mode, e.g. nested Gep lowering.
func addConstOffset(a lir.Addr, delta int32) lir.Addr {
	switch x := a.(type) {
	case lir.LocalAddr:
		return lir.LocalAddr{Index: x.Index, Offset: x.Offset + delta}
	case lir.GlobalAddr:
		return lir.GlobalAddr{Sym: x.Sym, Offset: x.Offset + delta}
	case lir.BaseOff:
		return lir.BaseOff{Base: x.Base, Offset: x.Offset + delta}
	case lir.BaseIndex:
		return lir.BaseIndex{Base: x.Base, Index: x.Index, Scale: x.Scale, Offset: x.Offset + delta}
	default:
		return a
	}
}

// materializeBaseReg forces an addressing mode down into a single base
// register, emitting a Lea only when the mode isn't already a bare
// register with no offset.
func (g *funcGen) materializeBaseReg(out *[]lir.Instruction, a lir.Addr) lir.Reg {
	if bo, ok := a.(lir.BaseOff); ok && bo.Offset == 0 {
		return bo.Base
	}
	tmp := g.freshReg(mir.ClassInt, mir.W64)
	*out = append(*out, lir.Lea{Dst: tmp, Addr: a})
	return tmp
}

func (g *funcGen) translateInstruction(instr mir.Instruction) ([]lir.Instruction, error) {
	switch x := instr.(type) {
	case mir.Add:
		return []lir.Instruction{lir.Add{Dst: x.Dest, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Sub:
		return []lir.Instruction{lir.Sub{Dst: x.Dest, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Mul:
		return []lir.Instruction{lir.Mul{Dst: x.Dest, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Div:
		return []lir.Instruction{lir.Div{Dst: x.Dest, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Mod:
		return []lir.Instruction{lir.Mod{Dst: x.Dest, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Eq:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpEq, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Ne:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpNe, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Lt:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpLt, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Le:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpLe, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Gt:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpGt, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Ge:
		return []lir.Instruction{lir.CmpSet{Dst: x.Dest, Op: lir.CmpGe, A: g.operand(x.Left), B: g.operand(x.Right)}}, nil
	case mir.Cast:
		return []lir.Instruction{lir.Cast{Dst: x.Dest, Src: g.operand(x.Src), Ty: x.Ty}}, nil
	case mir.Load:
		return []lir.Instruction{lir.Load{Dst: x.Dest, Addr: g.resolveAddr(x.Addr, x.Offset), Ty: x.Ty}}, nil
	case mir.Store:
		return []lir.Instruction{lir.Store{Src: g.operand(x.Value), Addr: g.resolveAddr(x.Addr, x.Offset), Ty: x.Ty}}, nil
	case mir.Gep:
		return g.translateGep(x), nil
	case mir.Call:
		return g.translateCall(x), nil
	case mir.Move:
		return []lir.Instruction{lir.Mov{Dst: x.Dest, Src: g.operand(x.From)}}, nil
	case mir.AddressOf:
		return []lir.Instruction{lir.Lea{Dst: x.Dest, Addr: g.resolveAddr(x.Src, 0)}}, nil
	case mir.Memcpy:
		return g.translateMemcpy(x), nil
	case mir.Declaration:
		return nil, nil
	default:
		return nil, fmt.Errorf("lirgen: unhandled MIR instruction %T", instr)
	}
}

// translateGep lowers an address computation to a single Lea, picking
// BaseOff when the index is constant and BaseIndex when it is a runtime
// value, per the scale already chosen at MIR construction time.
func (g *funcGen) translateGep(x mir.Gep) []lir.Instruction {
	var out []lir.Instruction
	base := g.resolveAddr(x.Base, 0)

	if idx, ok := x.Index.(mir.Const); ok {
		addr := addConstOffset(base, int32(idx.Value)*int32(x.Scale))
		out = append(out, lir.Lea{Dst: x.Dest, Addr: addr})
		return out
	}

	baseReg := g.materializeBaseReg(&out, base)
	indexOperand := g.operand(x.Index)
	indexReg, ok := indexOperand.(lir.RegOperand)
	if !ok {
		tmp := g.freshReg(mir.ClassInt, mir.W64)
		out = append(out, lir.Mov{Dst: tmp, Src: indexOperand})
		indexReg = lir.RegOperand{Reg: tmp}
	}
	out = append(out, lir.Lea{Dst: x.Dest, Addr: lir.BaseIndex{Base: baseReg, Index: indexReg.Reg, Scale: x.Scale, Offset: 0}})
	return out
}

func (g *funcGen) translateCall(x mir.Call) []lir.Instruction {
	args := make([]lir.Operand, len(x.Args))
	for i, a := range x.Args {
		args[i] = g.operand(a)
	}
	return []lir.Instruction{lir.Call{
		Dst:      x.Dest,
		Target:   lir.DirectCall{Sym: x.Func},
		Args:     args,
		Variadic: g.variadic[x.Func],
	}}
}

// translateMemcpy expands a byte copy into the largest aligned
// load/store pairs that fit, largest chunk first.
func (g *funcGen) translateMemcpy(x mir.Memcpy) []lir.Instruction {
	var out []lir.Instruction
	remaining := x.Size
	var off int32
	for remaining > 0 {
		chunk, ty, width := chunkFor(remaining)
		tmp := g.freshReg(mir.ClassInt, width)
		out = append(out, lir.Load{Dst: tmp, Addr: g.resolveAddr(x.Src, off), Ty: ty})
		out = append(out, lir.Store{Src: lir.RegOperand{Reg: tmp}, Addr: g.resolveAddr(x.Dst, off), Ty: ty})
		remaining -= chunk
		off += int32(chunk)
	}
	return out
}

func chunkFor(remaining int) (int, types.Type, mir.RegWidth) {
	switch {
	case remaining >= 8:
		return 8, types.Long(), mir.W64
	case remaining >= 4:
		return 4, types.Int(), mir.W32
	default:
		return 1, types.Char(), mir.W8
	}
}

func (g *funcGen) translateTerminator(t mir.Terminator) (lir.Terminator, error) {
	switch x := t.(type) {
	case mir.Return:
		if x.Value == nil {
			return lir.Ret{}, nil
		}
		return lir.Ret{Value: g.operand(x.Value)}, nil
	case mir.Jump:
		return lir.Jump{Target: x.Block}, nil
	case mir.Branch:
		return lir.Branch{Cond: g.operand(x.Cond), IfTrue: x.IfTrue, IfFalse: x.IfFalse}, nil
	default:
		return nil, fmt.Errorf("lirgen: block left with an unterminated or unhandled terminator %T", t)
	}
}

// maxVReg finds the highest VReg id already used by the function so
// scratch registers minted during lowering never collide with it.
func maxVReg(fn *mir.IRFunction) int {
	max := -1
	upd := func(r mir.VReg) {
		if r.ID > max {
			max = r.ID
		}
	}
	for _, p := range fn.Params {
		upd(p)
	}
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			switch x := instr.(type) {
			case mir.Add:
				upd(x.Dest)
			case mir.Sub:
				upd(x.Dest)
			case mir.Mul:
				upd(x.Dest)
			case mir.Div:
				upd(x.Dest)
			case mir.Mod:
				upd(x.Dest)
			case mir.Eq:
				upd(x.Dest)
			case mir.Ne:
				upd(x.Dest)
			case mir.Lt:
				upd(x.Dest)
			case mir.Le:
				upd(x.Dest)
			case mir.Gt:
				upd(x.Dest)
			case mir.Ge:
				upd(x.Dest)
			case mir.Cast:
				upd(x.Dest)
			case mir.Load:
				upd(x.Dest)
			case mir.Gep:
				upd(x.Dest)
			case mir.Call:
				if x.Dest != nil {
					upd(*x.Dest)
				}
			case mir.Move:
				upd(x.Dest)
			case mir.AddressOf:
				upd(x.Dest)
			}
		}
	}
	return max
}
