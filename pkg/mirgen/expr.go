package mirgen

import (
	"fmt"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

// lowerPlace evaluates expr as an lvalue: a Value naming a slot (Local,
// Global, or an address already in a Reg) plus its type, without forcing
// a load. Only a subset of expressions are places; everything else
// reports ok == false.
func (b *Builder) lowerPlace(e ast.Expr) (mir.Value, types.Type, bool) {
	switch x := e.(type) {
	case ast.Var:
		if v, ok := b.varMap[x.Name]; ok {
			return v.value, v.ty, true
		}
		if g, ok := b.globals[x.Name]; ok {
			return mir.Global{Index: g.ID}, g.Ty, true
		}
		return nil, types.Unknown(), false
	case ast.InstanceVar:
		addr, ty, ok := b.resolveVar(x.Var)
		return addr, ty, ok
	default:
		return nil, types.Unknown(), false
	}
}

// resolveVar resolves a bare name to its addressable Value and type,
// consulting the local variable map first and falling back to globals
// (spec §4.2: a field access or assignment on a global struct literal
// must resolve the same way a plain ast.Var reference does).
func (b *Builder) resolveVar(name string) (mir.Value, types.Type, bool) {
	if v, ok := b.varMap[name]; ok {
		return v.value, v.ty, true
	}
	if g, ok := b.globals[name]; ok {
		return mir.Global{Index: g.ID}, g.Ty, true
	}
	return nil, types.Unknown(), false
}

// emitIntoLocal lowers a let-binding's initializer and records the
// resulting name -> Value binding: register-sized values get a fresh
// VReg, struct/array values get a fresh stack Local that the initializer
// is copied or stored into.
func (b *Builder) emitIntoLocal(name string, declaredTy types.Type, init ast.Expr) error {
	if si, ok := init.(ast.StructInit); ok {
		return b.emitStructInitIntoLocal(name, declaredTy, si)
	}

	v, ty, err := b.lowerExpr(init)
	if err != nil {
		return err
	}

	if ty.FitsInRegister() {
		reg := b.freshVRegFor(declaredTy)
		b.varMap[name] = varBinding{ty: declaredTy, value: mir.Reg{Reg: reg}}
		rv := b.ensureRvalue(v, ty)
		b.emit(mir.Move{Dest: reg, From: rv})
		return nil
	}

	local := b.freshLocal()
	b.varMap[name] = varBinding{ty: declaredTy, value: mir.Local{Index: local}}

	if ty.Kind == types.KindStruct {
		if def, ok := b.program.Structs[ty.Name]; ok {
			b.copyStructFields(v, mir.Local{Index: local}, def.Fields, 0)
			return nil
		}
	}
	rv := b.ensureRvalue(v, ty)
	b.emit(mir.Store{Value: rv, Addr: mir.Local{Index: local}, Offset: 0, Ty: ty})
	return nil
}

func (b *Builder) emitStructInitIntoLocal(name string, declaredTy types.Type, si ast.StructInit) error {
	def, ok := b.program.Structs[si.Name]
	if !ok {
		return fmt.Errorf("mirgen: unknown struct %q", si.Name)
	}
	local := b.freshLocal()
	b.varMap[name] = varBinding{ty: declaredTy, value: mir.Local{Index: local}}

	for _, field := range si.Fields {
		f, ok := def.Fields[field.Name]
		if !ok {
			return fmt.Errorf("mirgen: struct %q has no field %q", si.Name, field.Name)
		}
		value, fieldTy, err := b.lowerExpr(field.Value)
		if err != nil {
			return err
		}
		rv := b.ensureRvalue(value, fieldTy)
		b.emit(mir.Store{Value: rv, Addr: mir.Local{Index: local}, Offset: int32(f.Offset), Ty: f.Type})
	}
	return nil
}

// ensureRvalue loads a Local/Global operand into a register when the
// type fits in one; a Reg or immediate passes through unchanged, and a
// struct/array Local/Global is left as an address because it cannot be
// loaded whole.
func (b *Builder) ensureRvalue(v mir.Value, ty types.Type) mir.Value {
	switch v.(type) {
	case mir.Reg, mir.Const, mir.ConstFloat:
		return v
	case mir.Local, mir.Global:
		if !ty.FitsInRegister() {
			return v
		}
		reg := b.freshVRegFor(ty)
		b.emit(mir.Load{Dest: reg, Addr: v, Offset: 0, Ty: ty})
		return mir.Reg{Reg: reg}
	default:
		return v
	}
}

// materializeCallArg prepares one call argument: register-sized values
// are ensured to be an rvalue; struct/array arguments are passed by
// address, so a Local/Global operand is turned into a register holding
// that address.
func (b *Builder) materializeCallArg(v mir.Value, ty types.Type) mir.Value {
	if ty.FitsInRegister() {
		return b.ensureRvalue(v, ty)
	}
	switch v.(type) {
	case mir.Local, mir.Global:
		reg := b.freshVReg(mir.ClassInt, mir.W64)
		b.emit(mir.AddressOf{Dest: reg, Src: v})
		return mir.Reg{Reg: reg}
	default:
		return v
	}
}

func (b *Builder) lowerExpr(e ast.Expr) (mir.Value, types.Type, error) {
	switch x := e.(type) {
	case ast.IntLit:
		return mir.Const{Value: int64(x.Value)}, types.Int(), nil
	case ast.LongLit:
		return mir.Const{Value: x.Value}, types.Long(), nil
	case ast.FloatLit:
		return mir.ConstFloat{Value: x.Value}, types.Float(), nil
	case ast.BoolLit:
		v := int64(0)
		if x.Value {
			v = 1
		}
		return mir.Const{Value: v}, types.Bool(), nil
	case ast.CharLit:
		return mir.Const{Value: int64(x.Value)}, types.Char(), nil
	case ast.StringLit:
		def, ok := b.staticStrings[x.Value]
		if !ok {
			def = b.newStaticString(x.Value)
		}
		return mir.Global{Index: def.ID}, def.Ty, nil

	case ast.Var:
		place, ty, ok := b.lowerPlace(x)
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: unresolved variable %q", x.Name)
		}
		if !ty.FitsInRegister() {
			return place, ty, nil
		}
		if _, isReg := place.(mir.Reg); isReg {
			return place, ty, nil
		}
		reg := b.freshVRegFor(ty)
		b.emit(mir.Load{Dest: reg, Addr: place, Offset: 0, Ty: ty})
		return mir.Reg{Reg: reg}, ty, nil

	case ast.Binary:
		if x.Op == ast.OpAnd || x.Op == ast.OpOr {
			return b.lowerLogical(x.Op, x.Left, x.Right)
		}
		left, leftTy, err := b.lowerExpr(x.Left)
		if err != nil {
			return nil, types.Unknown(), err
		}
		left = b.ensureRvalue(left, leftTy)
		right, rightTy, err := b.lowerExpr(x.Right)
		if err != nil {
			return nil, types.Unknown(), err
		}
		right = b.ensureRvalue(right, rightTy)

		reg := b.freshVRegFor(x.ResultType)
		var instr mir.Instruction
		switch x.Op {
		case ast.OpAdd:
			instr = mir.Add{Dest: reg, Left: left, Right: right}
		case ast.OpSub:
			instr = mir.Sub{Dest: reg, Left: left, Right: right}
		case ast.OpMul:
			instr = mir.Mul{Dest: reg, Left: left, Right: right}
		case ast.OpDiv:
			instr = mir.Div{Dest: reg, Left: left, Right: right}
		case ast.OpMod:
			instr = mir.Mod{Dest: reg, Left: left, Right: right}
		case ast.OpEq:
			instr = mir.Eq{Dest: reg, Left: left, Right: right}
		case ast.OpNe:
			instr = mir.Ne{Dest: reg, Left: left, Right: right}
		case ast.OpLt:
			instr = mir.Lt{Dest: reg, Left: left, Right: right}
		case ast.OpLe:
			instr = mir.Le{Dest: reg, Left: left, Right: right}
		case ast.OpGt:
			instr = mir.Gt{Dest: reg, Left: left, Right: right}
		case ast.OpGe:
			instr = mir.Ge{Dest: reg, Left: left, Right: right}
		default:
			return nil, types.Unknown(), fmt.Errorf("mirgen: unhandled binary operator %q", x.Op)
		}
		b.emit(instr)
		return mir.Reg{Reg: reg}, x.ResultType, nil

	case ast.Unary:
		switch x.Op {
		case ast.OpNot:
			v, ty, err := b.lowerExpr(x.Expr)
			if err != nil {
				return nil, types.Unknown(), err
			}
			v = b.ensureRvalue(v, ty)
			reg := b.freshVReg(mir.ClassInt, mir.W8)
			b.emit(mir.Eq{Dest: reg, Left: v, Right: mir.Const{Value: 0}})
			return mir.Reg{Reg: reg}, types.Bool(), nil
		case ast.OpNeg:
			v, ty, err := b.lowerExpr(x.Expr)
			if err != nil {
				return nil, types.Unknown(), err
			}
			v = b.ensureRvalue(v, ty)
			reg := b.freshVRegFor(x.ResultType)
			b.emit(mir.Sub{Dest: reg, Left: mir.Const{Value: 0}, Right: v})
			return mir.Reg{Reg: reg}, x.ResultType, nil
		case ast.OpAddr:
			place, innerTy, ok := b.lowerPlace(x.Expr)
			if !ok {
				return nil, types.Unknown(), fmt.Errorf("mirgen: cannot take address of a non-place expression")
			}
			reg := b.freshVReg(mir.ClassInt, mir.W64)
			b.emit(mir.AddressOf{Dest: reg, Src: place})
			return mir.Reg{Reg: reg}, types.Pointer(innerTy), nil
		case ast.OpDeref:
			ptr, ptrTy, err := b.lowerExpr(x.Expr)
			if err != nil {
				return nil, types.Unknown(), err
			}
			ptr = b.ensureRvalue(ptr, ptrTy)
			if ptrTy.Kind != types.KindPointer {
				return nil, types.Unknown(), fmt.Errorf("mirgen: cannot dereference a non-pointer type")
			}
			pointee := *ptrTy.Elem
			reg := b.freshVRegFor(pointee)
			b.emit(mir.Load{Dest: reg, Addr: ptr, Offset: 0, Ty: pointee})
			return mir.Reg{Reg: reg}, pointee, nil
		default:
			return nil, types.Unknown(), fmt.Errorf("mirgen: unhandled unary operator %q", x.Op)
		}

	case ast.Call:
		var dest *mir.VReg
		if x.ReturnType.Kind != types.KindVoid {
			r := b.freshVRegFor(x.ReturnType)
			dest = &r
		}
		args := make([]mir.Value, len(x.Args))
		for i, a := range x.Args {
			v, ty, err := b.lowerExpr(a)
			if err != nil {
				return nil, types.Unknown(), err
			}
			args[i] = b.materializeCallArg(v, ty)
		}
		b.emit(mir.Call{Dest: dest, Func: x.Name, Args: args})
		if dest != nil {
			return mir.Reg{Reg: *dest}, x.ReturnType, nil
		}
		return nil, types.Void(), nil

	case ast.Cast:
		v, ty, err := b.lowerExpr(x.Expr)
		if err != nil {
			return nil, types.Unknown(), err
		}
		v = b.ensureRvalue(v, ty)
		reg := b.freshVRegFor(x.TargetType)
		b.emit(mir.Cast{Dest: reg, Src: v, Ty: x.TargetType})
		return mir.Reg{Reg: reg}, x.TargetType, nil

	case ast.Assign:
		place, varTy, ok := b.lowerPlace(ast.Var{Name: x.Name, Ty: types.Unknown()})
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: unresolved assignment target %q", x.Name)
		}
		rhs, rhsTy, err := b.lowerExpr(x.Value)
		if err != nil {
			return nil, types.Unknown(), err
		}
		switch {
		case varTy.FitsInRegister():
			rv := b.ensureRvalue(rhs, rhsTy)
			switch dst := place.(type) {
			case mir.Local, mir.Global:
				b.emit(mir.Store{Value: rv, Addr: place, Offset: 0, Ty: varTy})
			case mir.Reg:
				b.emit(mir.Move{Dest: dst.Reg, From: rv})
			}
			return rv, varTy, nil
		case varTy.Kind == types.KindStruct:
			if def, ok := b.program.Structs[varTy.Name]; ok {
				b.copyStructFields(rhs, place, def.Fields, 0)
			}
			return rhs, varTy, nil
		default:
			rv := b.ensureRvalue(rhs, rhsTy)
			b.emit(mir.Store{Value: rv, Addr: place, Offset: 0, Ty: varTy})
			return rv, varTy, nil
		}

	case ast.CompoundAssign:
		current, ty, err := b.lowerExpr(ast.Var{Name: x.Name, Ty: types.Unknown()})
		if err != nil {
			return nil, types.Unknown(), err
		}
		rhs, rhsTy, err := b.lowerExpr(x.Value)
		if err != nil {
			return nil, types.Unknown(), err
		}
		rhs = b.ensureRvalue(rhs, rhsTy)
		reg := b.freshVRegFor(ty)
		if err := b.emitBinOp(x.Op, reg, current, rhs); err != nil {
			return nil, types.Unknown(), err
		}
		return b.lowerExpr(ast.Assign{Name: x.Name, Value: regLiteral{value: mir.Reg{Reg: reg}, ty: ty}})

	case ast.PreIncrement, ast.PostIncrement, ast.PreDecrement, ast.PostDecrement:
		return b.lowerIncDec(x)

	case ast.StructInit:
		def, ok := b.program.Structs[x.Name]
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: unknown struct %q", x.Name)
		}
		local := b.freshLocal()
		for _, field := range x.Fields {
			f, ok := def.Fields[field.Name]
			if !ok {
				return nil, types.Unknown(), fmt.Errorf("mirgen: struct %q has no field %q", x.Name, field.Name)
			}
			v, ty, err := b.lowerExpr(field.Value)
			if err != nil {
				return nil, types.Unknown(), err
			}
			b.emit(mir.Store{Value: b.ensureRvalue(v, ty), Addr: mir.Local{Index: local}, Offset: int32(f.Offset), Ty: f.Type})
		}
		return mir.Local{Index: local}, x.Ty, nil

	case ast.InstanceVar:
		addr, ty, ok := b.resolveVar(x.Var)
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: unresolved variable %q", x.Var)
		}
		def, ok := b.program.Structs[ty.Name]
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: %q is not a known struct type", ty.Name)
		}
		f, ok := def.Fields[x.Field]
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: struct %q has no field %q", ty.Name, x.Field)
		}
		reg := b.freshVRegFor(f.Type)
		b.emit(mir.Load{Dest: reg, Addr: addr, Offset: int32(f.Offset), Ty: f.Type})
		return mir.Reg{Reg: reg}, f.Type, nil

	case ast.FieldAssign:
		addr, ty, ok := b.resolveVar(x.ClassName)
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: unresolved variable %q", x.ClassName)
		}
		def, ok := b.program.Structs[ty.Name]
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: %q is not a known struct type", ty.Name)
		}
		f, ok := def.Fields[x.Field]
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: struct %q has no field %q", ty.Name, x.Field)
		}
		rhs, rhsTy, err := b.lowerExpr(x.Value)
		if err != nil {
			return nil, types.Unknown(), err
		}
		rv := b.ensureRvalue(rhs, rhsTy)
		b.emit(mir.Store{Value: rv, Addr: addr, Offset: int32(f.Offset), Ty: f.Type})
		return rv, f.Type, nil

	case ast.ArrayLit:
		local := b.freshLocal()
		elemTy := types.Unknown()
		if x.Ty.Elem != nil {
			elemTy = *x.Ty.Elem
		}
		for i, el := range x.Elems {
			v, ty, err := b.lowerExpr(el)
			if err != nil {
				return nil, types.Unknown(), err
			}
			b.emit(mir.Store{Value: b.ensureRvalue(v, ty), Addr: mir.Local{Index: local}, Offset: int32(i * elemTy.Size()), Ty: elemTy})
		}
		return mir.Local{Index: local}, x.Ty, nil

	case ast.ArrayAccess:
		arr, arrTy, err := b.lowerExpr(x.Array)
		if err != nil {
			return nil, types.Unknown(), err
		}
		elemTy := arrTy
		if arrTy.Kind == types.KindArray && arrTy.Elem != nil {
			elemTy = *arrTy.Elem
		}
		idx, idxTy, err := b.lowerExpr(x.Index)
		if err != nil {
			return nil, types.Unknown(), err
		}
		idx = b.ensureRvalue(idx, idxTy)

		base := arr
		switch arr.(type) {
		case mir.Local, mir.Global:
			reg := b.freshVReg(mir.ClassInt, mir.W64)
			b.emit(mir.AddressOf{Dest: reg, Src: arr})
			base = mir.Reg{Reg: reg}
		}

		addrReg := b.freshVReg(mir.ClassInt, mir.W64)
		b.emit(mir.Gep{Dest: addrReg, Base: base, Index: idx, Scale: elemTy.Size()})
		resultReg := b.freshVRegFor(elemTy)
		b.emit(mir.Load{Dest: resultReg, Addr: mir.Reg{Reg: addrReg}, Offset: 0, Ty: elemTy})
		return mir.Reg{Reg: resultReg}, elemTy, nil

	case ast.IndexAssign:
		base, baseTy, err := b.lowerExpr(x.Array)
		if err != nil {
			return nil, types.Unknown(), err
		}
		elemTy := baseTy
		if baseTy.Kind == types.KindArray && baseTy.Elem != nil {
			elemTy = *baseTy.Elem
		}
		idx, idxTy, err := b.lowerExpr(x.Index)
		if err != nil {
			return nil, types.Unknown(), err
		}
		idx = b.ensureRvalue(idx, idxTy)

		basePtr := base
		switch base.(type) {
		case mir.Local, mir.Global:
			reg := b.freshVReg(mir.ClassInt, mir.W64)
			b.emit(mir.AddressOf{Dest: reg, Src: base})
			basePtr = mir.Reg{Reg: reg}
		}

		addrReg := b.freshVReg(mir.ClassInt, mir.W64)
		b.emit(mir.Gep{Dest: addrReg, Base: basePtr, Index: idx, Scale: elemTy.Size()})

		rhs, rhsTy, err := b.lowerExpr(x.Value)
		if err != nil {
			return nil, types.Unknown(), err
		}
		rv := b.ensureRvalue(rhs, rhsTy)
		b.emit(mir.Store{Value: rv, Addr: mir.Reg{Reg: addrReg}, Offset: 0, Ty: elemTy})
		return rv, elemTy, nil

	case ast.AddressOf:
		place, innerTy, ok := b.lowerPlace(x.Expr)
		if !ok {
			return nil, types.Unknown(), fmt.Errorf("mirgen: cannot take address of a non-place expression")
		}
		reg := b.freshVReg(mir.ClassInt, mir.W64)
		b.emit(mir.AddressOf{Dest: reg, Src: place})
		return mir.Reg{Reg: reg}, types.Pointer(innerTy), nil

	case regLiteral:
		return x.value, x.ty, nil

	default:
		return nil, types.Unknown(), fmt.Errorf("mirgen: unhandled expression %T", e)
	}
}

// regLiteral lets already-lowered MIR values be re-fed through
// lowerExpr (used by CompoundAssign, which lowers to an equivalent
// Assign of its freshly computed result). ast.Expr's marker method is
// unexported, so regLiteral embeds an ast.IntLit to satisfy the
// interface; the embedded literal is never read.
type regLiteral struct {
	ast.IntLit
	value mir.Value
	ty    types.Type
}

func (r regLiteral) Type() types.Type { return r.ty }

func (b *Builder) emitBinOp(op ast.BinOp, dest mir.VReg, left, right mir.Value) error {
	var instr mir.Instruction
	switch op {
	case ast.OpAdd:
		instr = mir.Add{Dest: dest, Left: left, Right: right}
	case ast.OpSub:
		instr = mir.Sub{Dest: dest, Left: left, Right: right}
	case ast.OpMul:
		instr = mir.Mul{Dest: dest, Left: left, Right: right}
	case ast.OpDiv:
		instr = mir.Div{Dest: dest, Left: left, Right: right}
	case ast.OpMod:
		instr = mir.Mod{Dest: dest, Left: left, Right: right}
	default:
		return fmt.Errorf("mirgen: unsupported compound-assignment operator %q", op)
	}
	b.emit(instr)
	return nil
}

func (b *Builder) lowerIncDec(e ast.Expr) (mir.Value, types.Type, error) {
	var name string
	var op ast.BinOp
	var post bool
	switch x := e.(type) {
	case ast.PreIncrement:
		name, op, post = x.Name, ast.OpAdd, false
	case ast.PostIncrement:
		name, op, post = x.Name, ast.OpAdd, true
	case ast.PreDecrement:
		name, op, post = x.Name, ast.OpSub, false
	case ast.PostDecrement:
		name, op, post = x.Name, ast.OpSub, true
	}

	before, ty, err := b.lowerExpr(ast.Var{Name: name, Ty: types.Unknown()})
	if err != nil {
		return nil, types.Unknown(), err
	}
	reg := b.freshVRegFor(ty)
	if err := b.emitBinOp(op, reg, before, mir.Const{Value: 1}); err != nil {
		return nil, types.Unknown(), err
	}
	if _, _, err := b.lowerExpr(ast.Assign{Name: name, Value: regLiteral{value: mir.Reg{Reg: reg}, ty: ty}}); err != nil {
		return nil, types.Unknown(), err
	}
	if post {
		return before, ty, nil
	}
	return mir.Reg{Reg: reg}, ty, nil
}

// lowerLogical short-circuits && and ||: the right-hand side is only
// evaluated when it can change the result. The result lives in a stack
// slot because its value is produced from two different blocks, and MIR
// has no phi instruction to merge two VRegs at a join point.
func (b *Builder) lowerLogical(op ast.BinOp, leftExpr, rightExpr ast.Expr) (mir.Value, types.Type, error) {
	resultLocal := b.freshLocal()

	left, leftTy, err := b.lowerExpr(leftExpr)
	if err != nil {
		return nil, types.Unknown(), err
	}
	left = b.ensureRvalue(left, leftTy)

	rightBlock := b.newBlock()
	shortcutBlock := b.newBlock()
	joinBlock := b.newBlock()

	if op == ast.OpAnd {
		b.setTerminator(b.scope.current, mir.Branch{Cond: left, IfTrue: rightBlock, IfFalse: shortcutBlock})
	} else {
		b.setTerminator(b.scope.current, mir.Branch{Cond: left, IfTrue: shortcutBlock, IfFalse: rightBlock})
	}

	b.setCurrent(rightBlock)
	right, rightTy, err := b.lowerExpr(rightExpr)
	if err != nil {
		return nil, types.Unknown(), err
	}
	right = b.ensureRvalue(right, rightTy)
	b.emit(mir.Store{Value: right, Addr: mir.Local{Index: resultLocal}, Offset: 0, Ty: types.Bool()})
	b.setTerminator(b.scope.current, mir.Jump{Block: joinBlock})

	b.setCurrent(shortcutBlock)
	shortcut := int64(0)
	if op == ast.OpOr {
		shortcut = 1
	}
	b.emit(mir.Store{Value: mir.Const{Value: shortcut}, Addr: mir.Local{Index: resultLocal}, Offset: 0, Ty: types.Bool()})
	b.setTerminator(b.scope.current, mir.Jump{Block: joinBlock})

	b.setCurrent(joinBlock)
	reg := b.freshVReg(mir.ClassInt, mir.W8)
	b.emit(mir.Load{Dest: reg, Addr: mir.Local{Index: resultLocal}, Offset: 0, Ty: types.Bool()})
	return mir.Reg{Reg: reg}, types.Bool(), nil
}
