package mirgen

import (
	"testing"

	"github.com/quorlang/quorc/pkg/ast"
	"github.com/quorlang/quorc/pkg/mir"
	"github.com/quorlang/quorc/pkg/types"
)

func assertAllBlocksTerminated(t *testing.T, fn *mir.IRFunction) {
	t.Helper()
	for _, blk := range fn.Blocks {
		if _, ok := blk.Terminator.(mir.TemporaryNone); ok {
			t.Fatalf("function %s: block bb%d left with a TemporaryNone terminator", fn.Name, blk.ID)
		}
		if blk.Terminator == nil {
			t.Fatalf("function %s: block bb%d has a nil terminator", fn.Name, blk.ID)
		}
	}
}

func TestGenerateIdentityFunction(t *testing.T) {
	prog := &ast.Program{
		File: "id.quor",
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "identity",
				Params:     []ast.Param{{Name: "x", Type: types.Int()}},
				ReturnType: types.Int(),
				Body: []ast.Stmt{
					ast.ReturnStmt{Value: ast.Var{Name: "x", Ty: types.Int()}},
				},
			},
		},
	}

	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn, ok := out.Functions["identity"]
	if !ok {
		t.Fatal("expected function identity to be generated")
	}
	if len(fn.Params) != 1 {
		t.Fatalf("expected 1 param, got %d", len(fn.Params))
	}
	assertAllBlocksTerminated(t, fn)
	if len(fn.Blocks) != 1 {
		t.Fatalf("identity function should lower to a single block, got %d", len(fn.Blocks))
	}
	ret, ok := fn.Blocks[0].Terminator.(mir.Return)
	if !ok {
		t.Fatalf("expected a Return terminator, got %T", fn.Blocks[0].Terminator)
	}
	if _, ok := ret.Value.(mir.Reg); !ok {
		t.Fatalf("expected return value to be a register, got %T", ret.Value)
	}
}

func TestGenerateVoidFunctionGetsImplicitReturn(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "noop",
				ReturnType: types.Void(),
				Body:       []ast.Stmt{},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["noop"]
	assertAllBlocksTerminated(t, fn)
	last := fn.Blocks[len(fn.Blocks)-1]
	if _, ok := last.Terminator.(mir.Return); !ok {
		t.Fatalf("expected implicit Return for a void function, got %T", last.Terminator)
	}
}

func TestGenerateWhileLoopWithBreak(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "loop",
				ReturnType: types.Void(),
				Body: []ast.Stmt{
					ast.WhileStmt{
						Cond: ast.BoolLit{Value: true},
						Body: ast.BlockStmt{Stmts: []ast.Stmt{
							ast.BreakStmt{},
						}},
					},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["loop"]
	assertAllBlocksTerminated(t, fn)

	sawBranch := false
	for _, blk := range fn.Blocks {
		if _, ok := blk.Terminator.(mir.Branch); ok {
			sawBranch = true
		}
	}
	if !sawBranch {
		t.Fatal("expected a conditional branch block for the while loop")
	}
}

func TestGenerateIfElse(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "choose",
				Params:     []ast.Param{{Name: "c", Type: types.Bool()}},
				ReturnType: types.Int(),
				Body: []ast.Stmt{
					ast.IfStmt{
						Cond: ast.Var{Name: "c", Ty: types.Bool()},
						Then: ast.BlockStmt{Stmts: []ast.Stmt{ast.ReturnStmt{Value: ast.IntLit{Value: 1}}}},
						Else: ast.BlockStmt{Stmts: []ast.Stmt{ast.ReturnStmt{Value: ast.IntLit{Value: 0}}}},
					},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["choose"]
	assertAllBlocksTerminated(t, fn)

	returns := 0
	for _, blk := range fn.Blocks {
		if _, ok := blk.Terminator.(mir.Return); ok {
			returns++
		}
	}
	if returns != 2 {
		t.Fatalf("expected 2 return blocks (then/else), got %d", returns)
	}
}

func TestGenerateLogicalAndShortCircuits(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "both",
				Params:     []ast.Param{{Name: "a", Type: types.Bool()}, {Name: "b", Type: types.Bool()}},
				ReturnType: types.Bool(),
				Body: []ast.Stmt{
					ast.ReturnStmt{Value: ast.Binary{
						Op:         ast.OpAnd,
						Left:       ast.Var{Name: "a", Ty: types.Bool()},
						Right:      ast.Var{Name: "b", Ty: types.Bool()},
						ResultType: types.Bool(),
					}},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["both"]
	assertAllBlocksTerminated(t, fn)
	if len(fn.Blocks) < 4 {
		t.Fatalf("expected at least 4 blocks (entry, right, shortcut, join), got %d", len(fn.Blocks))
	}
}

func TestGenerateStructFieldReadWrite(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.StructDecl{
				Name:   "Point",
				Fields: []types.Field{{Name: "x", Type: types.Int()}, {Name: "y", Type: types.Int()}},
			},
			ast.FunDecl{
				Name:       "setX",
				Params:     []ast.Param{{Name: "p", Type: types.Struct("Point", []types.Field{{Name: "x", Type: types.Int()}, {Name: "y", Type: types.Int()}}, false)}},
				ReturnType: types.Void(),
				Body: []ast.Stmt{
					ast.ExprStmt{Expr: ast.FieldAssign{ClassName: "p", Field: "x", Value: ast.IntLit{Value: 42}}},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	def, ok := out.Structs["Point"]
	if !ok {
		t.Fatal("expected struct Point to be registered")
	}
	if def.Fields["x"].Offset != 0 || def.Fields["y"].Offset != 4 {
		t.Fatalf("unexpected Point layout: %+v", def.Fields)
	}
	fn := out.Functions["setX"]
	assertAllBlocksTerminated(t, fn)
}

// TestGenerateStructParamLowersToSingleMemcpy guards against regressing
// to the old field-by-field allocateStructOnStack path: fits_in_register
// is the only branch point, so a struct param must lower exactly like
// any other non-register-sized param (spec §4.2, §8 scenario 6).
func TestGenerateStructParamLowersToSingleMemcpy(t *testing.T) {
	fields := []types.Field{{Name: "a", Type: types.Int()}, {Name: "b", Type: types.Int()}}
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.StructDecl{Name: "Q", Fields: fields},
			ast.FunDecl{
				Name:       "sum",
				Params:     []ast.Param{{Name: "q", Type: types.Struct("Q", fields, false)}},
				ReturnType: types.Int(),
				Body: []ast.Stmt{
					ast.ReturnStmt{Value: ast.IntLit{Value: 0}},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	fn := out.Functions["sum"]
	var memcpies, loadsFromParamReg int
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			switch i := instr.(type) {
			case mir.Memcpy:
				memcpies++
				if i.Size != 8 || i.Align != 4 {
					t.Errorf("expected Memcpy{size:8, align:4}, got %+v", i)
				}
			case mir.Load:
				if _, ok := i.Addr.(mir.Reg); ok {
					loadsFromParamReg++
				}
			}
		}
	}
	if memcpies != 1 {
		t.Fatalf("expected exactly one Memcpy at callee entry, got %d", memcpies)
	}
	if loadsFromParamReg != 0 {
		t.Fatalf("expected no field-by-field Load straight off the param register, got %d", loadsFromParamReg)
	}
}

// TestInstanceVarResolvesGlobalStruct pins spec §4.2's global fallback:
// a field read on a global struct must resolve the same way a plain
// ast.Var reference to a global already does.
func TestInstanceVarResolvesGlobalStruct(t *testing.T) {
	b := NewBuilder()
	b.program.Structs["Point.0"] = &mir.StructDef{
		Name:   "Point.0",
		Fields: map[string]mir.StructField{"x": {Offset: 0, Type: types.Int()}, "y": {Offset: 4, Type: types.Int()}},
		Size:   8,
	}
	ty := types.Struct("Point.0", []types.Field{{Name: "x", Type: types.Int()}, {Name: "y", Type: types.Int()}}, false)
	b.newGlobal("pt.0", ty, mir.ZeroedValue{Size: 8})

	v, resultTy, err := b.lowerExpr(ast.InstanceVar{Var: "pt.0", Field: "x", Ty: types.Int()})
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}
	if resultTy.Kind != types.KindInt {
		t.Fatalf("expected int result, got %s", resultTy)
	}
	reg, ok := v.(mir.Reg)
	if !ok {
		t.Fatalf("expected a Reg result, got %T", v)
	}
	if len(b.scope.instructions) != 1 {
		t.Fatalf("expected exactly one instruction, got %d", len(b.scope.instructions))
	}
	load, ok := b.scope.instructions[0].(mir.Load)
	if !ok {
		t.Fatalf("expected a Load instruction, got %T", b.scope.instructions[0])
	}
	if load.Dest != reg.Reg {
		t.Errorf("Load dest %v does not match returned reg %v", load.Dest, reg.Reg)
	}
	g, ok := load.Addr.(mir.Global)
	if !ok || g.Index != 0 {
		t.Fatalf("expected Load to address global[0], got %+v", load.Addr)
	}
	if load.Offset != 0 {
		t.Errorf("expected offset 0 for field x, got %d", load.Offset)
	}
}

// TestFieldAssignResolvesGlobalStruct is the write-side counterpart of
// TestInstanceVarResolvesGlobalStruct.
func TestFieldAssignResolvesGlobalStruct(t *testing.T) {
	b := NewBuilder()
	b.program.Structs["Point.0"] = &mir.StructDef{
		Name:   "Point.0",
		Fields: map[string]mir.StructField{"x": {Offset: 0, Type: types.Int()}, "y": {Offset: 4, Type: types.Int()}},
		Size:   8,
	}
	ty := types.Struct("Point.0", []types.Field{{Name: "x", Type: types.Int()}, {Name: "y", Type: types.Int()}}, false)
	b.newGlobal("pt.0", ty, mir.ZeroedValue{Size: 8})

	_, _, err := b.lowerExpr(ast.FieldAssign{ClassName: "pt.0", Field: "y", Value: ast.IntLit{Value: 7}})
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}
	if len(b.scope.instructions) != 1 {
		t.Fatalf("expected exactly one instruction, got %d", len(b.scope.instructions))
	}
	store, ok := b.scope.instructions[0].(mir.Store)
	if !ok {
		t.Fatalf("expected a Store instruction, got %T", b.scope.instructions[0])
	}
	g, ok := store.Addr.(mir.Global)
	if !ok || g.Index != 0 {
		t.Fatalf("expected Store to address global[0], got %+v", store.Addr)
	}
	if store.Offset != 4 {
		t.Errorf("expected offset 4 for field y, got %d", store.Offset)
	}
}

// TestArrayAccessMaterializesBaseRegisterLikeIndexAssign pins spec
// §4.2's "base must be in a register" rule: a bare Local base must be
// turned into an address via AddressOf before feeding Gep, the same
// way IndexAssign already does on the write side.
func TestArrayAccessMaterializesBaseRegisterLikeIndexAssign(t *testing.T) {
	b := NewBuilder()
	elemTy := types.Int()
	arrTy := types.Array(elemTy, nil)
	b.varMap["arr"] = varBinding{ty: arrTy, value: mir.Local{Index: 0}}

	_, resultTy, err := b.lowerExpr(ast.ArrayAccess{
		Array: ast.Var{Name: "arr", Ty: arrTy},
		Index: ast.IntLit{Value: 1},
		Ty:    elemTy,
	})
	if err != nil {
		t.Fatalf("lowerExpr: %v", err)
	}
	if resultTy.Kind != types.KindInt {
		t.Fatalf("expected int result, got %s", resultTy)
	}
	if len(b.scope.instructions) != 3 {
		t.Fatalf("expected AddressOf, Gep, Load, got %d instructions: %+v", len(b.scope.instructions), b.scope.instructions)
	}
	addrOf, ok := b.scope.instructions[0].(mir.AddressOf)
	if !ok {
		t.Fatalf("expected base to be materialized via AddressOf first, got %T", b.scope.instructions[0])
	}
	gep, ok := b.scope.instructions[1].(mir.Gep)
	if !ok {
		t.Fatalf("expected a Gep second, got %T", b.scope.instructions[1])
	}
	baseReg, ok := gep.Base.(mir.Reg)
	if !ok || baseReg.Reg != addrOf.Dest {
		t.Fatalf("expected Gep.Base to be the materialized AddressOf register, got %+v", gep.Base)
	}
}

func TestGenerateGlobalConst(t *testing.T) {
	name := "limit"
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.AtDecl{Decl: "const", Name: &name, Value: ast.IntLit{Value: 100}},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(out.GlobalConsts) != 1 {
		t.Fatalf("expected 1 global const, got %d", len(out.GlobalConsts))
	}
	iv, ok := out.GlobalConsts[0].Value.(mir.IntValue)
	if !ok || iv.Value != 100 {
		t.Fatalf("unexpected global value: %+v", out.GlobalConsts[0].Value)
	}
}

func TestVRegIDsAreUniqueAcrossWholeProgram(t *testing.T) {
	prog := &ast.Program{
		Stmts: []ast.Stmt{
			ast.FunDecl{
				Name:       "f",
				Params:     []ast.Param{{Name: "a", Type: types.Int()}, {Name: "b", Type: types.Int()}},
				ReturnType: types.Int(),
				Body: []ast.Stmt{
					ast.ReturnStmt{Value: ast.Binary{Op: ast.OpAdd, Left: ast.Var{Name: "a", Ty: types.Int()}, Right: ast.Var{Name: "b", Ty: types.Int()}, ResultType: types.Int()}},
				},
			},
		},
	}
	out, err := Generate(prog)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	seen := make(map[int]bool)
	fn := out.Functions["f"]
	for _, r := range fn.Params {
		if seen[r.ID] {
			t.Fatalf("duplicate vreg id %d", r.ID)
		}
		seen[r.ID] = true
	}
	for _, blk := range fn.Blocks {
		for _, instr := range blk.Instructions {
			if add, ok := instr.(mir.Add); ok {
				if seen[add.Dest.ID] {
					t.Fatalf("duplicate vreg id %d", add.Dest.ID)
				}
				seen[add.Dest.ID] = true
			}
		}
	}
}
