// Package mirgen builds mir.IRProgram from a qualified ast.Program: it is
// the MIR Builder of spec §4.2. Structured control flow (if/while/for/
// break/continue) is lowered into an explicit CFG of basic blocks joined
// by Jump and Branch terminators; expressions are lowered into a
// straight-line instruction stream that leaves its result in a VReg, a
// Local slot, or a Global slot.
package mirgen

import (
	"fmt"
	"sort"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

// varBinding is what a local name currently denotes: its source type and
// the Value that holds it (a VReg for register-sized values, a Local
// slot otherwise).
type varBinding struct {
	ty    types.Type
	value mir.Value
}

// scopeHandler tracks the in-progress state of the block currently being
// filled, plus the break/continue targets of any loop currently open.
type scopeHandler struct {
	closed        map[mir.BlockId]bool
	breakStack    []mir.BlockId
	continueStack []mir.BlockId
	instructions  []mir.Instruction
	current       mir.BlockId
}

func (s *scopeHandler) pushBreak(b mir.BlockId)    { s.breakStack = append(s.breakStack, b) }
func (s *scopeHandler) pushContinue(b mir.BlockId) { s.continueStack = append(s.continueStack, b) }
func (s *scopeHandler) popBreak()                  { s.breakStack = s.breakStack[:len(s.breakStack)-1] }
func (s *scopeHandler) popContinue()               { s.continueStack = s.continueStack[:len(s.continueStack)-1] }
func (s *scopeHandler) topBreak() mir.BlockId      { return s.breakStack[len(s.breakStack)-1] }
func (s *scopeHandler) topContinue() mir.BlockId   { return s.continueStack[len(s.continueStack)-1] }

// Builder accumulates MIR for one translation unit. A fresh Builder
// should be used per Program; VReg, BlockId, local-slot, and global ids
// are each a monotonically increasing counter scoped to the Builder.
type Builder struct {
	nextVReg   int
	nextBlock  int
	nextLocal  int
	nextGlobal int

	varMap        map[string]varBinding
	blocks        []mir.IRBlock
	globals       map[string]mir.GlobalDef
	staticStrings map[string]mir.GlobalDef

	program *mir.IRProgram
	scope   scopeHandler
}

func NewBuilder() *Builder {
	return &Builder{
		varMap:        make(map[string]varBinding),
		globals:       make(map[string]mir.GlobalDef),
		staticStrings: make(map[string]mir.GlobalDef),
		program:       mir.NewIRProgram(),
	}
}

func (b *Builder) freshVReg(class mir.VRegClass, width mir.RegWidth) mir.VReg {
	r := mir.VReg{ID: b.nextVReg, Class: class, Width: width}
	b.nextVReg++
	return r
}

func regFor(ty types.Type) mir.VRegClass {
	if ty.Kind == types.KindFloat {
		return mir.ClassFloat
	}
	return mir.ClassInt
}

func (b *Builder) freshVRegFor(ty types.Type) mir.VReg {
	return b.freshVReg(regFor(ty), mir.TypeToRegWidth(ty))
}

func (b *Builder) freshLocal() int {
	id := b.nextLocal
	b.nextLocal++
	return id
}

func (b *Builder) freshGlobal() int {
	id := b.nextGlobal
	b.nextGlobal++
	return id
}

// newBlock allocates a fresh block in the TemporaryNone state and marks
// it as belonging to the function currently under construction.
func (b *Builder) newBlock() mir.BlockId {
	id := mir.BlockId(b.nextBlock)
	b.nextBlock++
	b.blocks = append(b.blocks, mir.IRBlock{ID: id, Terminator: mir.TemporaryNone{}})
	b.scope.closed[id] = true
	return id
}

// setCurrent flushes the pending instruction buffer into the block being
// left and switches the active block to the given id.
func (b *Builder) setCurrent(block mir.BlockId) {
	b.blocks[b.scope.current].Instructions = append(b.blocks[b.scope.current].Instructions, b.scope.instructions...)
	b.scope.instructions = nil
	b.scope.closed[b.scope.current] = true
	b.scope.current = block
}

// setTerminator finalizes a block's terminator. A TemporaryNone
// terminator is never acceptable here; every call site supplies a real
// one.
func (b *Builder) setTerminator(block mir.BlockId, term mir.Terminator) {
	if _, ok := term.(mir.TemporaryNone); ok {
		panic(fmt.Sprintf("mirgen: cannot finalize block bb%d with a TemporaryNone terminator", block))
	}
	b.blocks[block].Terminator = term
}

func (b *Builder) emit(instr mir.Instruction) {
	b.scope.instructions = append(b.scope.instructions, instr)
}

func (b *Builder) newGlobal(name string, ty types.Type, value mir.GlobalValue) {
	id := b.freshGlobal()
	def := mir.GlobalDef{ID: id, Ty: ty, Value: value}
	b.globals[name] = def
	b.program.GlobalConsts = append(b.program.GlobalConsts, def)
}

func (b *Builder) newStaticString(value string) mir.GlobalDef {
	id := b.freshGlobal()
	def := mir.GlobalDef{ID: id, Ty: types.Pointer(types.Char()), Value: mir.StringValue{Value: value}}
	b.program.GlobalConsts = append(b.program.GlobalConsts, def)
	b.staticStrings[value] = def
	return def
}

// Generate lowers an entire qualified program to MIR.
func Generate(prog *ast.Program) (*mir.IRProgram, error) {
	b := NewBuilder()

	for _, s := range prog.Stmts {
		if sd, ok := s.(ast.StructDecl); ok {
			if len(sd.Generics) > 0 {
				continue // skip generic templates; only concrete, monomorphized structs reach MIR
			}
			if err := b.generateStruct(sd); err != nil {
				return nil, err
			}
		}
	}

	for _, s := range prog.Stmts {
		switch st := s.(type) {
		case ast.FunDecl:
			if err := b.generateFunction(st); err != nil {
				return nil, err
			}
		case ast.AtDecl:
			if err := b.generateTopLevelDecl(st); err != nil {
				return nil, err
			}
		case ast.VarDecl:
			if err := b.generateTopLevelVar(st); err != nil {
				return nil, err
			}
		}
	}

	return b.program, nil
}

func (b *Builder) generateStruct(sd ast.StructDecl) error {
	offsets := fieldOffsets(sd.Fields, sd.Union)
	size := 0
	for _, f := range offsets {
		end := f.Offset + f.Type.Size()
		if end > size {
			size = end
		}
	}
	b.program.Structs[sd.Name] = &mir.StructDef{
		Name:    sd.Name,
		Fields:  offsets,
		IsUnion: sd.Union,
		Size:    size,
	}
	return nil
}

func fieldOffsets(fields []types.Field, isUnion bool) map[string]mir.StructField {
	out := make(map[string]mir.StructField, len(fields))
	if isUnion {
		for _, f := range fields {
			out[f.Name] = mir.StructField{Offset: 0, Type: f.Type}
		}
		return out
	}
	offset := 0
	for _, f := range fields {
		a := f.Type.Align()
		offset = roundUp(offset, a)
		out[f.Name] = mir.StructField{Offset: offset, Type: f.Type}
		offset += f.Type.Size()
	}
	return out
}

func roundUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

func (b *Builder) generateTopLevelDecl(decl ast.AtDecl) error {
	switch decl.Decl {
	case "extern":
		if decl.Name == nil {
			return fmt.Errorf("@extern with no name")
		}
		b.program.Externs = append(b.program.Externs, *decl.Name)
	case "const":
		if decl.Name == nil || decl.Value == nil {
			return fmt.Errorf("@const %v missing name or value", decl.Name)
		}
		cv, err := constValue(decl.Value)
		if err != nil {
			return err
		}
		b.newGlobal(*decl.Name, decl.Value.Type(), cv)
	case "import":
		// Import resolution happens in pkg/alias before MIR generation;
		// by the time a program reaches Generate, imports have already
		// been folded into qualified names and need no further action.
	}
	return nil
}

func (b *Builder) generateTopLevelVar(vd ast.VarDecl) error {
	cv, err := constValue(vd.Value)
	if err != nil {
		return err
	}
	b.newGlobal(vd.Name, vd.VarType, cv)
	return nil
}

// constValue evaluates an initializer expression to the restricted
// GlobalValue shape: a literal number, character, string, boolean, or an
// array of those (arrays may nest). Struct-init expressions are not
// accepted; they are rejected with the same error as any other
// expression.
func constValue(e ast.Expr) (mir.GlobalValue, error) {
	switch x := e.(type) {
	case ast.IntLit:
		return mir.IntValue{Value: int64(x.Value)}, nil
	case ast.LongLit:
		return mir.IntValue{Value: x.Value}, nil
	case ast.FloatLit:
		return mir.FloatValue{Value: x.Value}, nil
	case ast.BoolLit:
		return mir.BoolValue{Value: x.Value}, nil
	case ast.CharLit:
		return mir.CharValue{Value: x.Value}, nil
	case ast.StringLit:
		return mir.StringValue{Value: x.Value}, nil
	case ast.ArrayLit:
		elems := make([]mir.GlobalValue, len(x.Elems))
		for i, el := range x.Elems {
			v, err := constValue(el)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return mir.ArrayValue{Elems: elems}, nil
	default:
		return nil, fmt.Errorf("global constants must be a number, character, string, boolean, or array literal, got %T", e)
	}
}

func (b *Builder) generateFunction(fn ast.FunDecl) error {
	b.scope = scopeHandler{closed: make(map[mir.BlockId]bool)}
	b.varMap = make(map[string]varBinding)

	entry := b.newBlock()
	b.scope.current = entry

	params := make([]mir.VReg, 0, len(fn.Params))
	for _, p := range fn.Params {
		paramReg := b.freshVRegFor(p.Type)
		if p.Type.FitsInRegister() {
			b.varMap[p.Name] = varBinding{ty: p.Type, value: mir.Reg{Reg: paramReg}}
		} else {
			// fits_in_register() is the only branch point: a struct param
			// and any other aggregate param both arrive as an address in
			// paramReg and are lowered identically into one Memcpy.
			local := b.freshLocal()
			b.varMap[p.Name] = varBinding{ty: p.Type, value: mir.Local{Index: local}}
			b.emit(mir.Memcpy{
				Dst:   mir.Local{Index: local},
				Src:   mir.Reg{Reg: paramReg},
				Size:  p.Type.Size(),
				Align: p.Type.Align(),
			})
		}
		params = append(params, paramReg)
	}

	for _, s := range fn.Body {
		if err := b.lowerStmt(s); err != nil {
			return err
		}
	}

	b.blocks[b.scope.current].Instructions = append(b.blocks[b.scope.current].Instructions, b.scope.instructions...)
	b.scope.instructions = nil

	var blocks []mir.IRBlock
	for id := range b.scope.closed {
		blocks = append(blocks, b.blocks[id])
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].ID < blocks[j].ID })

	// A branch whose arms all return (or otherwise leave early) can strand
	// a join block that nothing ever jumps into, e.g. the continuation
	// block of an if/else where both arms return. Prune anything
	// unreachable from entry before checking terminator totality, rather
	// than carrying dead TemporaryNone blocks into LIR.
	blocks = pruneUnreachable(entry, blocks)

	// Anything still open once the body is fully lowered falls off the
	// end of the function; give it an implicit return rather than ship a
	// TemporaryNone terminator downstream.
	for i := range blocks {
		if _, ok := blocks[i].Terminator.(mir.TemporaryNone); ok {
			blocks[i].Terminator = mir.Return{}
			b.blocks[blocks[i].ID] = blocks[i]
		}
	}

	attrs := make([]mir.AtDecl, 0, len(fn.Attributes))
	for _, a := range fn.Attributes {
		if parsed, ok := mir.ParseAttribute(a); ok {
			attrs = append(attrs, parsed)
		}
	}

	b.program.Functions[fn.Name] = &mir.IRFunction{
		Name:       fn.Name,
		Params:     params,
		RetType:    fn.ReturnType,
		Blocks:     blocks,
		Entry:      entry,
		Attributes: attrs,
	}
	return nil
}

// pruneUnreachable drops blocks that no Jump or Branch in the function ever
// targets, keeping entry and everything transitively reachable from it.
func pruneUnreachable(entry mir.BlockId, blocks []mir.IRBlock) []mir.IRBlock {
	byID := make(map[mir.BlockId]mir.IRBlock, len(blocks))
	for _, blk := range blocks {
		byID[blk.ID] = blk
	}

	reachable := map[mir.BlockId]bool{entry: true}
	queue := []mir.BlockId{entry}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		blk, ok := byID[id]
		if !ok {
			continue
		}
		var targets []mir.BlockId
		switch term := blk.Terminator.(type) {
		case mir.Jump:
			targets = []mir.BlockId{term.Block}
		case mir.Branch:
			targets = []mir.BlockId{term.IfTrue, term.IfFalse}
		}
		for _, t := range targets {
			if !reachable[t] {
				reachable[t] = true
				queue = append(queue, t)
			}
		}
	}

	live := make([]mir.IRBlock, 0, len(blocks))
	for _, blk := range blocks {
		if reachable[blk.ID] {
			live = append(live, blk)
		}
	}
	return live
}

// copyStructFields copies one struct's fields from src to dst, descending
// into nested structs, for struct-to-struct local assignment (the param
// path uses a single Memcpy instead; see generateFunction).
func (b *Builder) copyStructFields(src, dst mir.Value, fields map[string]mir.StructField, baseOffset int32) {
	for _, f := range fields {
		total := baseOffset + int32(f.Offset)
		if f.Type.Kind == types.KindStruct {
			if nested, ok := b.program.Structs[f.Type.Name]; ok {
				b.copyStructFields(src, dst, nested.Fields, total)
				continue
			}
		}
		tmp := b.freshVRegFor(f.Type)
		b.emit(mir.Load{Dest: tmp, Addr: src, Offset: total, Ty: f.Type})
		b.emit(mir.Store{Value: mir.Reg{Reg: tmp}, Addr: dst, Offset: total, Ty: f.Type})
	}
}
